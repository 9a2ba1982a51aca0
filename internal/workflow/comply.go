package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/infrapilot/infrapilot/internal/policy"
)

// runComply implements spec §4.4: evaluate every enabled policy against the
// current resource list and render violations into an assistant message
// when compliance fails.
func runComply(ctx context.Context, deps *Deps, state *WorkflowState) (*WorkflowState, error) {
	emit(deps, string(StageComply), "started", "")

	if len(deps.Policies) == 0 {
		passed := true
		state.CompliancePassed = &passed
		emit(deps, string(StageComply), "completed", "no policies configured")
		return state, nil
	}

	violations, passed, err := policy.Evaluate(ctx, state.Resources, deps.Policies, deps.Compiler)
	if err != nil {
		emit(deps, string(StageComply), "failed", err.Error())
		return state, &InternalError{Stage: string(StageComply), Err: err}
	}

	state.Violations = violations
	state.CompliancePassed = &passed

	if !passed {
		state.appendAssistant(composeViolationsMessage(violations))
		emit(deps, string(StageComply), "completed", fmt.Sprintf("%d violation(s)", len(violations)))
		errorCount := 0
		for _, v := range violations {
			if v.Severity == policy.SeverityError {
				errorCount++
			}
		}
		return state, &ComplianceViolationError{Violations: errorCount}
	}

	emit(deps, string(StageComply), "completed", "compliant")
	return state, nil
}

func composeViolationsMessage(violations []policy.Violation) string {
	var b strings.Builder
	b.WriteString("This configuration violates the following policies:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- [%s] %s: %s (%s)\n", v.PolicyName, v.ResourceName, v.Detail, v.Severity)
	}
	return b.String()
}
