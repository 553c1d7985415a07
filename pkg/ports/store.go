package ports

import (
	"context"

	"github.com/aretw0/mintline/pkg/domain"
)

// StateStore persists workflow snapshots so workflows survive a restart.
type StateStore interface {
	// Save persists the snapshot for a given workflow ID.
	Save(ctx context.Context, workflowID string, state *domain.WorkflowState) error

	// Load retrieves the snapshot for a given workflow ID.
	// Returns domain.ErrWorkflowNotFound if the workflow does not exist.
	Load(ctx context.Context, workflowID string) (*domain.WorkflowState, error)

	// Delete removes the snapshot for a given workflow ID.
	Delete(ctx context.Context, workflowID string) error

	// List returns the IDs of all stored workflows.
	List(ctx context.Context) ([]string, error)
}
