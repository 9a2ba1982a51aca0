package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/infrapilot/infrapilot/internal/resource"
)

// StateStore persists WorkflowState across turns. The default, in-process
// implementation is sufficient for a single-node deployment; a SQLite-backed
// adapter over internal/store plugs in behind the same interface without
// Runner changing.
type StateStore interface {
	Load(ctx context.Context, sessionID string) (*WorkflowState, bool, error)
	Save(ctx context.Context, state *WorkflowState) error
}

// memoryStateStore is the zero-configuration StateStore used when no
// persistent store is supplied.
type memoryStateStore struct {
	mu     sync.Mutex
	states map[string]*WorkflowState
}

// NewMemoryStateStore constructs an in-process StateStore, useful for tests
// and single-process deployments.
func NewMemoryStateStore() StateStore {
	return &memoryStateStore{states: map[string]*WorkflowState{}}
}

func (m *memoryStateStore) Load(_ context.Context, sessionID string) (*WorkflowState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[sessionID]
	return s, ok, nil
}

func (m *memoryStateStore) Save(_ context.Context, state *WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.SessionID] = state
	return nil
}

// Runner executes the five-stage pipeline for a session, serializing
// concurrent calls against the same session per spec §5.
type Runner struct {
	deps  Deps
	store StateStore

	mu         sync.Mutex
	sessionMus map[string]*sync.Mutex
}

// NewRunner constructs a Runner. If store is nil, an in-process
// memoryStateStore is used.
func NewRunner(deps Deps, store StateStore) *Runner {
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &Runner{
		deps:       deps,
		store:      store,
		sessionMus: map[string]*sync.Mutex{},
	}
}

func (r *Runner) lockFor(sessionID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessionMus[sessionID]
	if !ok {
		m = &sync.Mutex{}
		r.sessionMus[sessionID] = m
	}
	return m
}

// Run loads prior state if present, appends the new user message (and any
// spreadsheet-seeded resources), executes the stage DAG per spec §4.1, and
// persists the resulting state before returning. It never panics: any
// recovered panic is converted into an InternalError and still persisted.
func (r *Runner) Run(ctx context.Context, sessionID, userInput string, spreadsheetResources []CanonicalResourceInput) (state *WorkflowState, runErr error) {
	sessionLock := r.lockFor(sessionID)
	sessionLock.Lock()
	defer sessionLock.Unlock()

	loaded, found, err := r.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("workflow: loading state for %q: %w", sessionID, err)
	}
	if found {
		state = loaded
	} else {
		state = NewState(sessionID)
	}

	defer func() {
		if p := recover(); p != nil {
			state.recordError("InternalError", fmt.Errorf("panic: %v", p))
			runErr = &InternalError{Stage: string(state.State), Err: fmt.Errorf("panic: %v", p)}
		}
		if saveErr := r.store.Save(ctx, state); saveErr != nil && runErr == nil {
			runErr = fmt.Errorf("workflow: persisting state for %q: %w", sessionID, saveErr)
		}
	}()

	if userInput != "" {
		state.Messages = append(state.Messages, Message{Role: "user", Content: userInput})
	}

	if len(spreadsheetResources) > 0 {
		state.InputType = InputSpreadsheet
		seeded := make([]resource.CanonicalResource, 0, len(spreadsheetResources))
		for _, in := range spreadsheetResources {
			cr := resource.CanonicalResource{
				Platform:   in.Platform,
				Type:       resource.NormalizeType(in.Type),
				Name:       in.Name,
				Properties: in.Properties,
			}
			if cr.Properties == nil {
				cr.Properties = map[string]any{}
			}
			resource.MirrorMetadataTags(&cr)
			resource.ApplySafeDefaults(&cr)
			seeded = append(seeded, cr)
		}
		state.Resources = resource.Merge(state.Resources, seeded)
	}

	state.State = StageParse
	state, err = runParse(ctx, &r.deps, state)
	if err != nil {
		state.recordError(errorKind(err), err)
		return state, err
	}
	if len(state.Resources) == 0 {
		return state, nil
	}

	state.State = StageCollect
	state, err = runCollect(ctx, &r.deps, state)
	if err != nil {
		// IncompleteInformationError is a routing halt, not a pipeline
		// failure: the clarifying message is already on state, and the
		// session stays at StageCollect awaiting the next turn.
		if _, ok := err.(*IncompleteInformationError); ok {
			return state, nil
		}
		state.recordError(errorKind(err), err)
		return state, err
	}

	state.State = StageComply
	state, err = runComply(ctx, &r.deps, state)
	if err != nil {
		// ComplianceViolationError likewise halts without marking the
		// session "error": violations are already recorded on state.
		if _, ok := err.(*ComplianceViolationError); ok {
			return state, nil
		}
		state.recordError(errorKind(err), err)
		return state, err
	}

	state.State = StageGenerate
	state, err = runGenerate(ctx, &r.deps, state)
	if err != nil {
		state.recordError(errorKind(err), err)
		return state, err
	}

	state.State = StageReview
	state, err = runReview(ctx, &r.deps, state)
	if err != nil {
		state.recordError(errorKind(err), err)
		return state, err
	}

	return state, nil
}
