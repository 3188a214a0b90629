// Package snapshot defines the persistence port for workflow snapshots.
package snapshot

import (
	"context"

	"github.com/fraudgrid/fraudgrid/internal/domain/workflow"
)

// Store is the port interface for persisting and loading workflow snapshots.
type Store interface {
	// Save upserts a workflow snapshot keyed by workflow ID.
	Save(ctx context.Context, snap workflow.Snapshot) error

	// Load returns the snapshot for the given workflow ID.
	Load(ctx context.Context, workflowID string) (*workflow.Snapshot, error)

	// List returns snapshots, newest first, optionally filtered by status.
	List(ctx context.Context, status workflow.Status, limit int) ([]workflow.Snapshot, error)

	// Delete removes a snapshot.
	Delete(ctx context.Context, workflowID string) error
}
