// Package workflow implements the five-stage intent pipeline
// (parse → collect → comply → generate → review) that turns a user's chat
// message or spreadsheet upload into a compliance-checked Terraform project,
// persisted per session.
package workflow

import (
	"time"

	"github.com/infrapilot/infrapilot/internal/policy"
	"github.com/infrapilot/infrapilot/internal/resource"
)

// InputType identifies how a session's resources were originally populated.
type InputType string

const (
	// InputText means the session started from a conversational message.
	InputText InputType = "text"
	// InputSpreadsheet means the session started from a spreadsheet upload.
	InputSpreadsheet InputType = "spreadsheet"
)

// StageName labels a position in the workflow DAG, matching spec §4.1.
type StageName string

const (
	StageParse     StageName = "parse"
	StageCollect   StageName = "collect"
	StageComply    StageName = "comply"
	StageGenerate  StageName = "generate"
	StageReview    StageName = "review"
	StageCompleted StageName = "completed"
	StageError     StageName = "error"
)

// Message is one turn in the session's conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrorRecord captures one taxonomy error raised during a run, retained on
// the state for diagnostics per spec §7.
type ErrorRecord struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// WorkflowState is the durable, per-session record every stage reads and
// mutates. It is JSON-serializable for persistence via internal/store.
type WorkflowState struct {
	SessionID string `json:"session_id"`

	Messages  []Message                     `json:"messages"`
	Resources []resource.CanonicalResource  `json:"resources"`

	InputType InputType `json:"input_type"`

	InformationComplete bool                `json:"information_complete"`
	MissingFields        map[string][]string `json:"missing_fields,omitempty"`

	State StageName `json:"workflow_state"`

	CompliancePassed *bool              `json:"compliance_passed,omitempty"`
	Violations       []policy.Violation `json:"violations,omitempty"`

	GeneratedCode map[string]string `json:"generated_code,omitempty"`

	Errors []ErrorRecord `json:"errors,omitempty"`
}

// NewState initializes an empty state for a fresh session.
func NewState(sessionID string) *WorkflowState {
	return &WorkflowState{
		SessionID: sessionID,
		State:     StageParse,
	}
}

// appendAssistant records an assistant-authored message, the shape every
// stage uses to hand the user a clarifying/violation/completion message.
func (s *WorkflowState) appendAssistant(content string) {
	s.Messages = append(s.Messages, Message{Role: "assistant", Content: content})
}

// recordError appends a taxonomy error and advances the state to "error".
// Per spec §7, the workflow runner converts any non-recoverable stage error
// into one of these before persisting.
func (s *WorkflowState) recordError(kind string, err error) {
	s.Errors = append(s.Errors, ErrorRecord{
		Kind:    kind,
		Message: err.Error(),
		At:      time.Now(),
	})
	s.State = StageError
}
