// Package policy compiles natural-language organizational rules into
// executable rule objects and evaluates them against canonical resources.
package policy

import "github.com/go-playground/validator/v10"

// policyValidator is shared across all Validate calls; validator.Validate
// is safe for concurrent use once constructed and caches struct metadata
// internally, so a single package-level instance is the idiomatic choice.
var policyValidator = validator.New()

// Severity controls whether a violation blocks compliance.
type Severity string

const (
	// SeverityError blocks compliance — compliance_passed becomes false.
	SeverityError Severity = "error"
	// SeverityWarning is reported but never blocks.
	SeverityWarning Severity = "warning"
)

// Platform scopes a policy to a cloud platform, or "all".
type Platform string

const (
	PlatformAWS   Platform = "aws"
	PlatformAzure Platform = "azure"
	PlatformAll   Platform = "all"
)

// Policy is an organizational rule as authored by an operator, per spec §3.
// Struct tags drive validator.Validate on every policy loaded from an
// operator-authored file before it ever reaches the compiler or evaluator.
type Policy struct {
	ID                  string        `json:"id" validate:"required"`
	Name                string        `json:"name" validate:"required"`
	Description         string        `json:"description,omitempty"`
	NaturalLanguageRule string        `json:"natural_language_rule" validate:"required"`
	CloudPlatform       Platform      `json:"cloud_platform" validate:"required,oneof=aws azure all"`
	Severity            Severity      `json:"severity" validate:"required,oneof=error warning"`
	Enabled             bool          `json:"enabled"`
	CompiledLogic       *CompiledRule `json:"compiled_logic,omitempty"`
}

// Validate checks p's struct tags via go-playground/validator, returning a
// wrapped error naming the policy on failure. Called from loadPolicies
// (cmd/infrapilot/commands) so a malformed operator-authored policy file is
// rejected before it reaches Compile/Evaluate rather than failing silently
// or panicking on a zero-value CloudPlatform/Severity deep in evaluation.
func Validate(p Policy) error {
	return policyValidator.Struct(p)
}

// Violation is a single policy breach found during evaluation.
type Violation struct {
	PolicyID     string `json:"policy_id"`
	PolicyName   string `json:"policy_name"`
	ResourceName string `json:"resource_name"`
	Detail       string `json:"detail"`
	Severity     Severity `json:"severity"`
}
