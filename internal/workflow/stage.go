package workflow

import (
	"context"

	"github.com/cloudwego/eino/components/model"

	"github.com/infrapilot/infrapilot/internal/policy"
	"github.com/infrapilot/infrapilot/internal/rag"
	"github.com/infrapilot/infrapilot/internal/store"
)

// Stage is a pure function over WorkflowState: it reads the current state
// (plus its externalized collaborators in Deps) and returns the next state,
// per the "stages share one state record, treat each as WorkflowState ->
// WorkflowState" design note.
type Stage func(ctx context.Context, deps *Deps, state *WorkflowState) (*WorkflowState, error)

// Deps collects every external collaborator a stage may call. All fields are
// optional except ChatModel, which parse and the policy compiler require.
type Deps struct {
	// ChatModel drives the parse-stage extraction call and the policy
	// compiler's LLM fallback.
	ChatModel model.ToolCallingChatModel
	// Retriever optionally injects RAG context ahead of the parse call.
	Retriever rag.Retriever
	// RAGTopK bounds how many documents Retriever.Retrieve returns.
	RAGTopK int
	// MaxContextTokens bounds the parse-stage message budget.
	MaxContextTokens int
	// Policies is the full policy set considered during comply.
	Policies []policy.Policy
	// Compiler compiles natural-language policies into executable rules.
	Compiler *policy.Compiler
	// History is a conversation store of the kind internal/agent uses; Run
	// and the stages do not read or write it.
	History store.ConversationStore
	// SpreadsheetResources is not read by Run or by any stage; Run's
	// spreadsheetResources argument is what seeds a session.
	SpreadsheetResources []CanonicalResourceInput
	// Progress receives one ProgressEvent per stage transition. It may be
	// nil, in which case events are dropped; a send never blocks, and an
	// event the channel cannot take at once is dropped.
	Progress chan<- ProgressEvent
}

// CanonicalResourceInput is the wire shape spreadsheet ingestion and the
// server handlers pass in; workflow converts it to resource.CanonicalResource
// without importing the server package.
type CanonicalResourceInput struct {
	Platform   string
	Type       string
	Name       string
	Properties map[string]any
}

// ProgressEvent mirrors the teacher's SSE progress frame shape, now carrying
// a workflow stage name instead of a chat agent name.
type ProgressEvent struct {
	Agent   string
	Status  string // "started", "completed", "failed"
	Message string
}

func emit(deps *Deps, agent, status, message string) {
	if deps == nil || deps.Progress == nil {
		return
	}
	select {
	case deps.Progress <- ProgressEvent{Agent: agent, Status: status, Message: message}:
	default:
		// A slow or absent consumer must never block the stage pipeline,
		// mirroring the teacher's sseWriter "never let slow IO back up the
		// producer" idiom.
	}
}
