package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteStateStore persists WorkflowState records keyed by session id,
// satisfying the StateStore interface so it can be handed to NewRunner in
// place of the default in-process memoryStateStore. It expects the
// workflow_states table already created by internal/store's migration
// (internal/store.SQLiteStore.DB exposes the shared connection pool, kept
// here rather than in internal/store itself to avoid a store<->workflow
// import cycle: workflow.Deps already depends on store.ConversationStore).
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore wraps an already-migrated *sql.DB.
func NewSQLiteStateStore(db *sql.DB) *SQLiteStateStore {
	return &SQLiteStateStore{db: db}
}

func (s *SQLiteStateStore) Load(ctx context.Context, sessionID string) (*WorkflowState, bool, error) {
	const q = `SELECT state_json FROM workflow_states WHERE session_id = ?`
	var raw string
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("workflow: loading state %q: %w", sessionID, err)
	}

	var state WorkflowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false, fmt.Errorf("workflow: decoding state %q: %w", sessionID, err)
	}
	return &state, true, nil
}

func (s *SQLiteStateStore) Save(ctx context.Context, state *WorkflowState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("workflow: encoding state %q: %w", state.SessionID, err)
	}

	const q = `
INSERT INTO workflow_states (session_id, state_json, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at
`
	if _, err := s.db.ExecContext(ctx, q, state.SessionID, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("workflow: saving state %q: %w", state.SessionID, err)
	}
	return nil
}
