package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/infrapilot/infrapilot/internal/deploy"
)

// DeploymentStore persists deploy.Deployment records. Unlike the in-memory
// map kept by deploy.Executor during a process's lifetime, this survives
// restarts — a deployment created before a crash can still be looked up by
// ID with Get, even though its working directory (and
// therefore any further plan/apply/destroy) may no longer be recoverable.
type DeploymentStore struct {
	db *sql.DB
}

// NewDeploymentStore wraps an open SQLiteStore's connection pool.
func NewDeploymentStore(s *SQLiteStore) *DeploymentStore {
	return &DeploymentStore{db: s.db}
}

// Save upserts the given deployment, keyed by its DeploymentID.
func (d *DeploymentStore) Save(ctx context.Context, dep *deploy.Deployment) error {
	raw, err := json.Marshal(dep)
	if err != nil {
		return fmt.Errorf("store: encoding deployment %q: %w", dep.DeploymentID, err)
	}

	const q = `
INSERT INTO deployments (deployment_id, session_id, deployment_json, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(deployment_id) DO UPDATE SET deployment_json = excluded.deployment_json, updated_at = excluded.updated_at
`
	if _, err := d.db.ExecContext(ctx, q, dep.DeploymentID, dep.SessionID, string(raw), time.Now().Unix()); err != nil {
		return fmt.Errorf("store: saving deployment %q: %w", dep.DeploymentID, err)
	}
	return nil
}

// Get returns the persisted deployment for deploymentID, or found=false.
func (d *DeploymentStore) Get(ctx context.Context, deploymentID string) (*deploy.Deployment, bool, error) {
	const q = `SELECT deployment_json FROM deployments WHERE deployment_id = ?`
	var raw string
	err := d.db.QueryRowContext(ctx, q, deploymentID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: loading deployment %q: %w", deploymentID, err)
	}

	var dep deploy.Deployment
	if err := json.Unmarshal([]byte(raw), &dep); err != nil {
		return nil, false, fmt.Errorf("store: decoding deployment %q: %w", deploymentID, err)
	}
	return &dep, true, nil
}

// BySession returns all deployments recorded for a session, most-recent
// first.
func (d *DeploymentStore) BySession(ctx context.Context, sessionID string) ([]*deploy.Deployment, error) {
	const q = `
SELECT deployment_json FROM deployments
WHERE session_id = ?
ORDER BY updated_at DESC`
	rows, err := d.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: listing deployments for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var out []*deploy.Deployment
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scanning deployment row: %w", err)
		}
		var dep deploy.Deployment
		if err := json.Unmarshal([]byte(raw), &dep); err != nil {
			return nil, fmt.Errorf("store: decoding deployment row: %w", err)
		}
		out = append(out, &dep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: deployment rows: %w", err)
	}
	return out, nil
}
