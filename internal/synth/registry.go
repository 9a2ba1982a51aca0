package synth

import (
	"fmt"
	"sort"
)

// registryKey identifies one template by its normalized (platform, type).
type registryKey struct {
	Platform string
	Type     string
}

// Template is one entry in the synthesis registry: the HCL body rendered by
// Render for every resource of this (platform, type).
type Template struct {
	Body string
}

// registry covers the ≥18 (platform,type) pairs named in SPEC_FULL.md §4.7.
// Each body is rendered once per matching resource and concatenated into
// main.tf in resource order.
var registry = map[registryKey]Template{
	{"aws", "aws_ec2"}: {Body: `
resource "aws_instance" "{{name|safe_id}}" {
  ami           = "{{ami}}"
  instance_type = "{{instance_type}}"
{{#if subnet_id}}
  subnet_id     = "{{subnet_id}}"
{{/if}}
  tags = {{tags|fromjson}}
}
`},
	{"aws", "aws_security_group"}: {Body: `
resource "aws_security_group" "{{name|safe_id}}" {
  name   = "{{name}}"
  vpc_id = "{{vpc_id}}"
{{#each ingress}}
  ingress {
    from_port   = {{.from_port}}
    to_port     = {{.to_port}}
    protocol    = "tcp"
    cidr_blocks = {{.cidr_blocks|fromjson}}
  }
{{/each}}
  tags = {{tags|fromjson}}
}
`},
	{"aws", "aws_vpc"}: {Body: `
resource "aws_vpc" "{{name|safe_id}}" {
  cidr_block = "{{cidr_block}}"
  tags       = {{tags|fromjson}}
}
`},
	{"aws", "aws_subnet"}: {Body: `
resource "aws_subnet" "{{name|safe_id}}" {
  vpc_id     = aws_vpc.{{vpc_name|safe_id}}.id
  cidr_block = "{{cidr_block}}"
  tags       = {{tags|fromjson}}
}
`},
	{"aws", "aws_route_table"}: {Body: `
resource "aws_route_table" "{{name|safe_id}}" {
  vpc_id = aws_vpc.{{vpc_name|safe_id}}.id
  tags   = {{tags|fromjson}}
}
`},
	{"aws", "aws_internet_gateway"}: {Body: `
resource "aws_internet_gateway" "{{name|safe_id}}" {
  vpc_id = aws_vpc.{{vpc_name|safe_id}}.id
  tags   = {{tags|fromjson}}
}
`},
	{"aws", "aws_s3"}: {Body: `
resource "aws_s3_bucket" "{{name|safe_id}}" {
  bucket = "{{name}}"
  tags   = {{tags|fromjson}}
}

resource "aws_s3_bucket_public_access_block" "{{name|safe_id}}" {
  bucket                  = aws_s3_bucket.{{name|safe_id}}.id
  block_public_acls       = {{block_public_acls}}
  block_public_policy     = {{block_public_policy}}
  ignore_public_acls      = {{ignore_public_acls}}
  restrict_public_buckets = {{restrict_public_buckets}}
}
`},
	{"aws", "aws_rds"}: {Body: `
resource "aws_db_instance" "{{name|safe_id}}" {
  identifier     = "{{name}}"
  engine         = "{{engine}}"
  instance_class = "{{instance_class}}"
  tags           = {{tags|fromjson}}
}
`},
	{"aws", "aws_ebs_volume"}: {Body: `
resource "aws_ebs_volume" "{{name|safe_id}}" {
  availability_zone = "{{availability_zone}}"
  size              = {{size}}
  tags              = {{tags|fromjson}}
}
`},
	{"aws", "aws_elasticache"}: {Body: `
resource "aws_elasticache_cluster" "{{name|safe_id}}" {
  cluster_id = "{{name}}"
  engine     = "{{engine}}"
  node_type  = "{{node_type}}"
  tags       = {{tags|fromjson}}
}
`},
	{"aws", "aws_alb"}: {Body: `
resource "aws_lb" "{{name|safe_id}}" {
  name               = "{{name}}"
  load_balancer_type = "application"
  subnets            = {{subnets|fromjson}}
  tags               = {{tags|fromjson}}
}
`},
	{"aws", "aws_nlb"}: {Body: `
resource "aws_lb" "{{name|safe_id}}" {
  name               = "{{name}}"
  load_balancer_type = "network"
  subnets            = {{subnets|fromjson}}
  tags               = {{tags|fromjson}}
}
`},
	{"aws", "aws_lambda"}: {Body: `
resource "aws_lambda_function" "{{name|safe_id}}" {
  function_name = "{{name}}"
  runtime       = "{{runtime}}"
  handler       = "{{handler}}"
  tags          = {{tags|fromjson}}
}
`},
	{"aws", "aws_iam_role"}: {Body: `
resource "aws_iam_role" "{{name|safe_id}}" {
  name               = "{{name}}"
  assume_role_policy = "{{assume_role_policy}}"
  tags               = {{tags|fromjson}}
}
`},
	{"azure", "azure_resource_group"}: {Body: `
resource "azurerm_resource_group" "{{name|safe_id}}" {
  name     = "{{name}}"
  location = "{{location}}"
  tags     = {{tags|fromjson}}
}
`},
	{"azure", "azure_vnet"}: {Body: `
resource "azurerm_virtual_network" "{{name|safe_id}}" {
  name                = "{{name}}"
  location            = "{{location}}"
  resource_group_name = {{resource_group|azure_rg_ref}}
  address_space       = {{address_space|fromjson}}
  tags                = {{tags|fromjson}}
}
`},
	{"azure", "azure_subnet"}: {Body: `
resource "azurerm_subnet" "{{name|safe_id}}" {
  name                 = "{{name}}"
  resource_group_name  = {{resource_group|azure_rg_ref}}
  virtual_network_name = azurerm_virtual_network.{{vnet_name|safe_id}}.name
  address_prefixes     = ["{{address_prefix}}"]
}
`},
	{"azure", "azure_nsg"}: {Body: `
resource "azurerm_network_security_group" "{{name|safe_id}}" {
  name                = "{{name}}"
  location            = "{{location}}"
  resource_group_name = {{resource_group|azure_rg_ref}}
  tags                = {{tags|fromjson}}
}
`},
	{"azure", "azure_load_balancer"}: {Body: `
resource "azurerm_lb" "{{name|safe_id}}" {
  name                = "{{name}}"
  location            = "{{location}}"
  resource_group_name = {{resource_group|azure_rg_ref}}
  tags                = {{tags|fromjson}}
}
`},
	{"azure", "azure_storage_account"}: {Body: `
resource "azurerm_storage_account" "{{name|safe_id}}" {
  name                     = "{{name}}"
  location                 = "{{location}}"
  resource_group_name      = {{resource_group|azure_rg_ref}}
  account_tier             = "{{account_tier}}"
  account_replication_type = "LRS"
  min_tls_version          = "{{min_tls_version}}"
  enable_https_traffic_only = {{https_traffic_only}}
  tags                     = {{tags|fromjson}}
}
`},
	{"azure", "azure_sql_database"}: {Body: `
resource "azurerm_mssql_database" "{{name|safe_id}}" {
  name      = "{{name}}"
  server_id = "{{server_name}}"
  tags      = {{tags|fromjson}}
}
`},
	{"azure", "azure_vm"}: {Body: `
resource "azurerm_{{#if is_windows}}windows{{/if}}{{#if is_linux}}linux{{/if}}_virtual_machine" "{{name|safe_id}}" {
  name                = "{{name}}"
  location            = "{{location}}"
  resource_group_name = {{resource_group|azure_rg_ref}}
  size                = "{{size}}"
  admin_username      = "{{admin_username}}"
{{#if is_windows}}
  admin_password      = "{{admin_password}}"
{{/if}}
{{#if is_linux}}
  admin_ssh_key {
    username   = "{{admin_username}}"
    public_key = "{{ssh_key}}"
  }
{{/if}}
  tags = {{tags|fromjson}}
}
`},
}

// Lookup returns the template for (platform, normalizedType), and the sorted
// list of registered keys for that platform when not found — used to
// compose the TemplateError message in spec §7.
func Lookup(platform, normalizedType string) (Template, bool, []string) {
	key := registryKey{Platform: platform, Type: normalizedType}
	tmpl, ok := registry[key]
	if ok {
		return tmpl, true, nil
	}
	return Template{}, false, availableFor(platform)
}

func availableFor(platform string) []string {
	var out []string
	for k := range registry {
		if k.Platform == platform {
			out = append(out, fmt.Sprintf("%s/%s", k.Platform, k.Type))
		}
	}
	sort.Strings(out)
	return out
}
