package workflow

import (
	"context"
	"testing"

	"github.com/infrapilot/infrapilot/internal/resource"
	"github.com/infrapilot/infrapilot/internal/store"
)

// openTestDB opens an in-memory, migrated SQLite connection via
// internal/store (which owns the workflow_states DDL) and hands back the
// raw *sql.DB for SQLiteStateStore, mirroring how a real caller wires the
// two packages together.
func openTestDB(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStateStore_SaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	st := NewSQLiteStateStore(db.DB())
	ctx := context.Background()

	_, found, err := st.Load(ctx, "sess-missing")
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a session that was never saved")
	}

	state := NewState("sess-1")
	state.Messages = append(state.Messages, Message{Role: "user", Content: "create an ec2"})
	state.Resources = append(state.Resources, resource.CanonicalResource{
		Platform: "aws", Type: "aws_ec2", Name: "web",
		Properties: map[string]any{"Tags": map[string]string{"Project": "demo"}},
	})
	state.State = StageCollect

	if err := st.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := st.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected found=true after save")
	}
	if loaded.State != StageCollect {
		t.Errorf("want stage collect, got %s", loaded.State)
	}
	if len(loaded.Resources) != 1 || loaded.Resources[0].Name != "web" {
		t.Errorf("unexpected resources after round-trip: %+v", loaded.Resources)
	}
}

func TestSQLiteStateStore_SaveOverwritesExisting(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	st := NewSQLiteStateStore(db.DB())
	ctx := context.Background()

	state := NewState("sess-1")
	state.State = StageParse
	if err := st.Save(ctx, state); err != nil {
		t.Fatalf("first save: %v", err)
	}

	state.State = StageCompleted
	if err := st.Save(ctx, state); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, _, err := st.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.State != StageCompleted {
		t.Errorf("want stage completed after overwrite, got %s", loaded.State)
	}
}

// Runner accepts any StateStore — verify a *SQLiteStateStore satisfies the
// interface at compile time.
var _ StateStore = (*SQLiteStateStore)(nil)
