package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fraudgrid/fraudgrid/internal/domain"
	"github.com/fraudgrid/fraudgrid/internal/domain/workflow"
)

// Store implements snapshot.Store using PostgreSQL. The full snapshot lives
// in a JSONB column; the indexed columns exist for filtering and ordering.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Save upserts a workflow snapshot keyed by workflow ID.
func (s *Store) Save(ctx context.Context, snap workflow.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflow_snapshots (workflow_id, intent_id, intent_type, status, risk_score, snapshot, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (workflow_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   risk_score = EXCLUDED.risk_score,
		   snapshot = EXCLUDED.snapshot,
		   updated_at = EXCLUDED.updated_at`,
		snap.ID, snap.IntentID, snap.IntentType, string(snap.Status),
		snap.RiskScore, doc, snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Load returns the snapshot for the given workflow ID.
func (s *Store) Load(ctx context.Context, workflowID string) (*workflow.Snapshot, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM workflow_snapshots WHERE workflow_id = $1`,
		workflowID).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load snapshot %s: %w", workflowID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load snapshot %s: %w", workflowID, err)
	}

	var snap workflow.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", workflowID, err)
	}
	return &snap, nil
}

// List returns snapshots newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status workflow.Status, limit int) ([]workflow.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT snapshot FROM workflow_snapshots WHERE status = $1
			 ORDER BY updated_at DESC LIMIT $2`, string(status), limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT snapshot FROM workflow_snapshots
			 ORDER BY updated_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []workflow.Snapshot
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap workflow.Snapshot
		if err := json.Unmarshal(doc, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Delete removes a snapshot.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM workflow_snapshots WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", workflowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete snapshot %s: %w", workflowID, domain.ErrNotFound)
	}
	return nil
}
