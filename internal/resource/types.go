// Package resource defines the canonical resource representation shared by
// every stage of the intent pipeline after parsing, plus the normalization
// and merge logic that keeps a stable identity for each resource across
// turns.
package resource

import (
	"regexp"
	"strings"
)

// TagsKey is the reserved Properties key holding the tag map. It is always
// present, possibly empty, and never a plain string.
const TagsKey = "Tags"

// MetadataTagKeys are the reserved metadata keys mirrored into Tags at
// ingestion time (spreadsheet or LLM extraction), case-insensitively.
var MetadataTagKeys = []string{"Environment", "Project", "Owner", "CostCenter"}

// CanonicalResource is the single resource representation all pipeline
// stages operate on after normalization.
type CanonicalResource struct {
	// Platform is "aws" or "azure".
	Platform string `json:"platform"`
	// Type is the normalized type, e.g. "aws_ec2", "azure_vm".
	Type string `json:"type"`
	// Name is the logical identifier as supplied by the user.
	Name string `json:"name"`
	// Properties holds all other fields including the reserved "Tags" map.
	Properties map[string]any `json:"properties"`
}

// safeIDPattern is the identifier shape every emitted Terraform resource
// label must satisfy: lowercase alpha start, then [a-z0-9_]*.
var safeIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// SafeID derives a Terraform-safe identifier from r.Name. It is computed on
// read and never stored on the resource itself.
func SafeID(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := collapseUnderscores(b.String())
	id = strings.Trim(id, "_")
	if id == "" || !safeIDPattern.MatchString(id) {
		id = "res_" + id
	}
	if id == "res_" {
		id = "res_unnamed"
	}
	return id
}

// collapseUnderscores replaces runs of consecutive underscores with a single
// underscore so sanitized identifiers stay readable.
func collapseUnderscores(s string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range s {
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Tags returns the resource's Tags map, creating and attaching an empty one
// if absent or malformed. Callers should prefer this over reading
// Properties[TagsKey] directly since it enforces the "always a map" invariant.
func (r *CanonicalResource) Tags() map[string]string {
	if r.Properties == nil {
		r.Properties = map[string]any{}
	}
	tags, ok := asStringMap(r.Properties[TagsKey])
	if !ok {
		tags = map[string]string{}
	}
	r.Properties[TagsKey] = tags
	return tags
}

// asStringMap coerces v into a map[string]string, accommodating the shapes
// that arrive from JSON decoding (map[string]any with string values) and
// from direct construction in tests (map[string]string).
func asStringMap(v any) (map[string]string, bool) {
	switch m := v.(type) {
	case map[string]string:
		return m, true
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// identityKey is the (normalized type, lower(name)) pair used to match
// resources across turns.
func identityKey(r CanonicalResource) string {
	return NormalizeType(r.Type) + "\x00" + strings.ToLower(strings.TrimSpace(r.Name))
}
