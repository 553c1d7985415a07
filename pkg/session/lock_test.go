package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/mintline/pkg/domain"
)

// nopStore accepts everything.
type nopStore struct{}

func (nopStore) Save(ctx context.Context, workflowID string, state *domain.WorkflowState) error {
	return nil
}
func (nopStore) Load(ctx context.Context, workflowID string) (*domain.WorkflowState, error) {
	return nil, domain.ErrWorkflowNotFound
}
func (nopStore) Delete(ctx context.Context, workflowID string) error { return nil }
func (nopStore) List(ctx context.Context) ([]string, error)          { return nil, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()
	count := 10000

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("workflow-%d", i)
		_ = mgr.WithLock(ctx, id, func(ctx context.Context) error {
			state := domain.NewWorkflowState(id)
			state.Version = 1
			_, err := mgr.Save(ctx, state)
			return err
		})
		_ = mgr.Delete(ctx, id)
	}

	if n := mgr.control.len() + mgr.writes.len(); n != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory after Delete", n)
	}
	if n := len(mgr.persist); n != 0 {
		t.Errorf("Version table leaked %d entries", n)
	}
}
