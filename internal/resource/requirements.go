package resource

// RequiredFields maps each normalized type to the property keys that must be
// present and non-empty for the resource to be considered complete. Types
// absent from this table have no required fields beyond platform/type/name.
var RequiredFields = map[string][]string{
	"aws_ec2":              {"instance_type", "ami"},
	"aws_security_group":   {"ingress"},
	"aws_vpc":              {"cidr_block"},
	"aws_subnet":           {"cidr_block", "vpc_name"},
	"aws_route_table":      {"vpc_name"},
	"aws_internet_gateway": {"vpc_name"},
	"aws_s3":               {},
	"aws_rds":              {"engine", "instance_class"},
	"aws_ebs_volume":       {"size", "availability_zone"},
	"aws_elasticache":      {"engine", "node_type"},
	"aws_alb":              {"subnets"},
	"aws_nlb":              {"subnets"},
	"aws_lambda":           {"runtime", "handler"},
	"aws_iam_role":         {"assume_role_policy"},

	"azure_vm":              {"size", "resource_group", "location", "admin_username", "os"},
	"azure_vnet":            {"address_space", "resource_group", "location"},
	"azure_subnet":          {"address_prefix", "vnet_name", "resource_group"},
	"azure_nsg":             {"resource_group", "location"},
	"azure_load_balancer":   {"resource_group", "location"},
	"azure_storage_account": {"resource_group", "location", "account_tier"},
	"azure_sql_database":    {"resource_group", "server_name"},
	"azure_resource_group":  {"location"},
}

// MissingFields returns the subset of r's required fields that are absent
// or empty, preserving the order declared in RequiredFields.
func MissingFields(r CanonicalResource) []string {
	required, ok := RequiredFields[NormalizeType(r.Type)]
	if !ok {
		return nil
	}

	var missing []string
	for _, field := range required {
		v, present := r.Properties[field]
		if !present || isEmptyValue(v) {
			missing = append(missing, field)
		}
	}
	return missing
}

// isEmptyValue reports whether v represents an "absent" value for the
// purposes of required-field detection: nil, empty string, or empty slice.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	default:
		return false
	}
}
