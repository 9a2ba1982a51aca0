package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/infrapilot/infrapilot/internal/synth"
)

// runGenerate implements spec §4.5: dispatch every resource to its template
// and assemble the five-file Terraform project. Failures are wrapped into
// workflow's own TemplateError/EmptyOutputError at this stage boundary,
// since internal/synth deliberately does not import internal/workflow.
func runGenerate(_ context.Context, deps *Deps, state *WorkflowState) (*WorkflowState, error) {
	emit(deps, string(StageGenerate), "started", "")

	files, err := synth.Assemble(state.Resources)
	if err != nil {
		wrapped := wrapSynthError(err)
		emit(deps, string(StageGenerate), "failed", wrapped.Error())
		return state, wrapped
	}

	state.GeneratedCode = files
	emit(deps, string(StageGenerate), "completed", fmt.Sprintf("%d file(s) generated", len(files)))
	return state, nil
}

func wrapSynthError(err error) error {
	var tmplErr *synth.TemplateError
	if errors.As(err, &tmplErr) {
		return &TemplateError{
			Platform:       tmplErr.Platform,
			NormalizedType: tmplErr.NormalizedType,
			Available:      tmplErr.Available,
		}
	}

	var emptyErr *synth.EmptyOutputError
	if errors.As(err, &emptyErr) {
		return &TemplateError{Err: &EmptyOutputError{Filename: emptyErr.Filename, Bytes: emptyErr.Bytes}}
	}

	return &InternalError{Stage: string(StageGenerate), Err: err}
}
