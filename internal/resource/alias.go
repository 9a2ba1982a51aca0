package resource

import "strings"

// typeAliases maps known spellings of a resource type to its canonical
// "<platform>_<kind>" form. Unknown types retain their input form — callers
// should flag these for the user rather than silently dropping information.
var typeAliases = map[string]string{
	// AWS compute
	"ec2":     "aws_ec2",
	"aws_ec2": "aws_ec2",
	"instance": "aws_ec2",

	// AWS network
	"security_group":     "aws_security_group",
	"aws_security_group": "aws_security_group",
	"sg":                 "aws_security_group",
	"vpc":                "aws_vpc",
	"aws_vpc":            "aws_vpc",
	"subnet":             "aws_subnet",
	"aws_subnet":         "aws_subnet",
	"route_table":        "aws_route_table",
	"aws_route_table":    "aws_route_table",
	"internet_gateway":   "aws_internet_gateway",
	"igw":                "aws_internet_gateway",

	// AWS storage/database
	"s3":                "aws_s3",
	"aws_s3":            "aws_s3",
	"bucket":            "aws_s3",
	"rds":               "aws_rds",
	"aws_rds":           "aws_rds",
	"ebs":               "aws_ebs_volume",
	"ebs_volume":        "aws_ebs_volume",
	"aws_ebs_volume":    "aws_ebs_volume",
	"elasticache":       "aws_elasticache",
	"aws_elasticache":   "aws_elasticache",

	// AWS load balancing/compute extras
	"alb":          "aws_alb",
	"aws_alb":      "aws_alb",
	"nlb":          "aws_nlb",
	"aws_nlb":      "aws_nlb",
	"lambda":       "aws_lambda",
	"aws_lambda":   "aws_lambda",
	"iam_role":     "aws_iam_role",
	"aws_iam_role": "aws_iam_role",

	// Azure compute
	"vm":       "azure_vm",
	"azure_vm": "azure_vm",

	// Azure network
	"vnet":                "azure_vnet",
	"azure_vnet":          "azure_vnet",
	"azure_subnet":        "azure_subnet",
	"nsg":                 "azure_nsg",
	"azure_nsg":           "azure_nsg",
	"load_balancer":       "azure_load_balancer",
	"azure_load_balancer": "azure_load_balancer",

	// Azure storage/database
	"storage_account":       "azure_storage_account",
	"azure_storage_account": "azure_storage_account",
	"sql_database":          "azure_sql_database",
	"azure_sql_database":    "azure_sql_database",

	// Azure resource containers
	"resource_group":       "azure_resource_group",
	"azure_resource_group": "azure_resource_group",
	"rg":                   "azure_resource_group",
}

// NormalizeType collapses any known spelling of typ into its canonical
// "<platform>_<kind>" form. Matching is case-insensitive; the platform
// prefix, if already present, is preserved by the alias table entries
// above. Unrecognized types are returned lowercased but otherwise unchanged.
func NormalizeType(typ string) string {
	key := strings.ToLower(strings.TrimSpace(typ))
	if canonical, ok := typeAliases[key]; ok {
		return canonical
	}
	return key
}

// IsKnownType reports whether typ (after normalization) appears in the
// alias table's canonical values, i.e. whether it is a type the rest of the
// pipeline recognizes rather than an unrecognized pass-through.
func IsKnownType(typ string) bool {
	normalized := NormalizeType(typ)
	for _, canonical := range typeAliases {
		if canonical == normalized {
			return true
		}
	}
	return false
}
