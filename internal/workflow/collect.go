package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/infrapilot/infrapilot/internal/resource"
)

// runCollect implements spec §4.3: per-type required-field detection,
// information_complete computation, and the grouped clarifying message.
// Merging itself already happened in parse (via resource.Merge); collect's
// job is purely to judge completeness of the merged list.
func runCollect(_ context.Context, deps *Deps, state *WorkflowState) (*WorkflowState, error) {
	emit(deps, string(StageCollect), "started", "")

	missing := map[string][]string{}
	for _, r := range state.Resources {
		if fields := resource.MissingFields(r); len(fields) > 0 {
			missing[r.Name] = fields
		}
	}

	state.MissingFields = missing
	state.InformationComplete = len(missing) == 0

	if !state.InformationComplete {
		state.appendAssistant(composeMissingFieldsMessage(missing))
		emit(deps, string(StageCollect), "completed", "awaiting missing fields")
		return state, &IncompleteInformationError{MissingByResource: missing}
	}

	emit(deps, string(StageCollect), "completed", "information complete")
	return state, nil
}

// composeMissingFieldsMessage enumerates missing fields grouped by resource,
// in deterministic (sorted) order.
func composeMissingFieldsMessage(missing map[string][]string) string {
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("I need a few more details before I can continue:\n")
	for _, name := range names {
		fields := append([]string{}, missing[name]...)
		sort.Strings(fields)
		fmt.Fprintf(&b, "- %s: %s\n", name, strings.Join(fields, ", "))
	}
	return b.String()
}
