package resource

// ApplySafeDefaults injects the security-baseline defaults called out in
// spec §4.5 at ingestion time, before the resource ever reaches template
// synthesis. Safe defaults never overwrite an explicit user-supplied value.
func ApplySafeDefaults(r *CanonicalResource) {
	if r.Properties == nil {
		r.Properties = map[string]any{}
	}

	switch NormalizeType(r.Type) {
	case "aws_s3":
		setIfAbsent(r.Properties, "block_public_acls", true)
		setIfAbsent(r.Properties, "block_public_policy", true)
		setIfAbsent(r.Properties, "ignore_public_acls", true)
		setIfAbsent(r.Properties, "restrict_public_buckets", true)
	case "azure_storage_account":
		setIfAbsent(r.Properties, "min_tls_version", "TLS1_2")
		setIfAbsent(r.Properties, "https_traffic_only", true)
	}
}

// setIfAbsent sets m[key]=val only when key is missing or its existing
// value is empty per isEmptyValue, preserving explicit user input.
func setIfAbsent(m map[string]any, key string, val any) {
	if existing, ok := m[key]; ok && !isEmptyValue(existing) {
		return
	}
	m[key] = val
}
