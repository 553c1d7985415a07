package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/aretw0/mintline/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a distributed lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds a reference.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*lockEntry)}
}

// lock acquires the mutex for key. The returned func unlocks it and drops the reference.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	entry, exists := k.locks[key]
	if !exists {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		defer k.mu.Unlock()
		entry.refs--
		if entry.refs <= 0 {
			delete(k.locks, key)
		}
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Manager serializes control calls per workflow and persists snapshots monotonically.
type Manager struct {
	store ports.StateStore

	control *keyedMutex
	writes  *keyedMutex

	mu      sync.Mutex
	persist map[string]int64 // last persisted version per workflow

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking of control calls.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given persistence store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		control: newKeyedMutex(),
		writes:  newKeyedMutex(),
		persist: make(map[string]int64),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithLock executes fn while holding the control lock for the workflow.
// Snapshot writes (Save) do not take this lock, so fn may persist.
func (m *Manager) WithLock(ctx context.Context, workflowID string, fn func(context.Context) error) error {
	unlockLocal := m.control.lock(workflowID)
	defer unlockLocal()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, workflowID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"workflow_id", workflowID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Load retrieves a snapshot from the store.
func (m *Manager) Load(ctx context.Context, workflowID string) (*domain.WorkflowState, error) {
	state, err := m.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	m.observe(workflowID, state.Version)
	return state, nil
}

// Save persists the snapshot unless an equal or newer version was already written.
// It reports whether the store was written.
func (m *Manager) Save(ctx context.Context, state *domain.WorkflowState) (bool, error) {
	unlock := m.writes.lock(state.ID)
	defer unlock()

	m.mu.Lock()
	last, seen := m.persist[state.ID]
	m.mu.Unlock()
	if seen && state.Version <= last {
		m.logger.Debug("Skipping stale snapshot",
			"workflow_id", state.ID,
			"version", state.Version,
			"persisted", last,
		)
		return false, nil
	}

	if err := m.store.Save(ctx, state.ID, state); err != nil {
		return false, err
	}
	m.observe(state.ID, state.Version)
	return true, nil
}

func (m *Manager) observe(workflowID string, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version > m.persist[workflowID] {
		m.persist[workflowID] = version
	}
}

// Delete removes the snapshot from the store.
func (m *Manager) Delete(ctx context.Context, workflowID string) error {
	unlock := m.writes.lock(workflowID)
	defer unlock()

	if err := m.store.Delete(ctx, workflowID); err != nil && !errors.Is(err, domain.ErrWorkflowNotFound) {
		return err
	}

	m.mu.Lock()
	delete(m.persist, workflowID)
	m.mu.Unlock()
	return nil
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}
