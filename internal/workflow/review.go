package workflow

import "context"

// runReview is the advisory final stage per spec §4.1: it always routes to
// completed regardless of its own findings. It never blocks code delivery;
// today it only records a summary message. A future reviewer that inspects
// the generated HCL for style issues plugs in here without touching the
// routing logic in Run.
func runReview(_ context.Context, deps *Deps, state *WorkflowState) (*WorkflowState, error) {
	emit(deps, string(StageReview), "started", "")

	state.appendAssistant("Generated Terraform configuration is ready.")
	state.State = StageCompleted

	emit(deps, string(StageReview), "completed", "")
	return state, nil
}
