package workflow

import "fmt"

// Error taxonomy per spec §7. Each type carries enough context to compose a
// clear assistant-facing or diagnostic message; stage implementations
// return these instead of bare errors so the runner knows how to route and
// record the failure.

// ParseError means the LLM response was not valid JSON or violated the
// output schema. Non-fatal to the session: reported, not retried.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("workflow: parse: %v", e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// IncompleteInformationError means one or more resources are missing
// required fields. Not a failure for the pipeline — it halts at collect
// awaiting the next user turn.
type IncompleteInformationError struct {
	MissingByResource map[string][]string
}

func (e *IncompleteInformationError) Error() string {
	return fmt.Sprintf("workflow: incomplete information for %d resource(s)", len(e.MissingByResource))
}

// ComplianceViolationError means at least one error-severity policy
// violation was found. Halts at comply; no code is generated.
type ComplianceViolationError struct {
	Violations int
}

func (e *ComplianceViolationError) Error() string {
	return fmt.Sprintf("workflow: %d compliance violation(s)", e.Violations)
}

// TemplateError means a resource's template was missing, failed to render,
// or the generated bundle was suspiciously empty (see EmptyOutputError).
type TemplateError struct {
	Platform       string
	NormalizedType string
	Available      []string
	Err            error
}

func (e *TemplateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workflow: template error for %s/%s: %v (available: %v)", e.Platform, e.NormalizedType, e.Err, e.Available)
	}
	return fmt.Sprintf("workflow: no template registered for %s/%s (available: %v)", e.Platform, e.NormalizedType, e.Available)
}
func (e *TemplateError) Unwrap() error { return e.Err }

// EmptyOutputError means generate completed but produced empty or
// suspiciously short files. Per spec §7 this is treated as a TemplateError
// by the stage boundary (wrapped, not aliased) so callers can still branch
// on *TemplateError.
type EmptyOutputError struct {
	Filename string
	Bytes    int
}

func (e *EmptyOutputError) Error() string {
	return fmt.Sprintf("workflow: generated file %q is suspiciously short (%d bytes)", e.Filename, e.Bytes)
}

// DeploymentError means the terraform subprocess exited non-zero.
type DeploymentError struct {
	Subcommand string
	ExitCode   int
	Output     string
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("workflow: terraform %s exited %d", e.Subcommand, e.ExitCode)
}

// InternalError wraps an unexpected failure caught at the workflow
// boundary. Full diagnostics are retained on Err; the user sees a generic
// message composed by the caller.
type InternalError struct {
	Stage string
	Err   error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("workflow: internal error in stage %q: %v", e.Stage, e.Err)
}
func (e *InternalError) Unwrap() error { return e.Err }

// errorKind returns the taxonomy label recorded on WorkflowState.Errors for
// the given error, used by the runner when it persists diagnostics.
func errorKind(err error) string {
	switch err.(type) {
	case *ParseError:
		return "ParseError"
	case *IncompleteInformationError:
		return "IncompleteInformation"
	case *ComplianceViolationError:
		return "ComplianceViolation"
	case *TemplateError:
		return "TemplateError"
	case *EmptyOutputError:
		return "EmptyOutput"
	case *DeploymentError:
		return "DeploymentError"
	case *InternalError:
		return "InternalError"
	default:
		return "InternalError"
	}
}
