package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/mintline/pkg/domain"
)

// Store implements ports.StateStore in memory. Snapshots are lost with the
// process, so it suits tests and the simulated backend. Safe for concurrent use.
type Store struct {
	data map[string]*domain.WorkflowState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.WorkflowState),
	}
}

// Save persists a copy of the snapshot.
func (s *Store) Save(ctx context.Context, workflowID string, state *domain.WorkflowState) error {
	if state.ID != "" && state.ID != workflowID {
		return fmt.Errorf("snapshot of workflow %q saved as %q", state.ID, workflowID)
	}
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[workflowID] = copied
	return nil
}

// Load returns a copy so callers can't mutate store state by pointer.
func (s *Store) Load(ctx context.Context, workflowID string) (*domain.WorkflowState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[workflowID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return state.Clone(), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, workflowID)
	return nil
}

// List returns stored workflow IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
