package mintline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/internal/workflow"
	"github.com/aretw0/mintline/pkg/adapters/memory"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/aretw0/mintline/pkg/ports"
	"github.com/aretw0/mintline/pkg/session"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// ErrClosed is returned by a Service after Close.
var ErrClosed = errors.New("service closed")

// Service runs any number of issuance workflows against one issuance backend
// and one signing agent. Snapshots go through a session.Manager, so workflows
// can be listed, inspected and resumed from its store.
type Service struct {
	issuer  ports.IssuanceService
	signer  ports.Signer
	store   ports.StateStore
	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
	newID   func() string
	manager *session.Manager
	opts    []workflow.Option

	mu        sync.Mutex
	workflows map[string]*workflow.Orchestrator
	closed    bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger shared by every workflow.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every workflow.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Service) {
		s.opts = append(s.opts, workflow.WithHooks(hooks))
	}
}

// WithStore persists snapshots in store (default: in memory).
func WithStore(store ports.StateStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLocker serializes control calls across processes sharing a store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

// WithLockTTL sets how long a distributed lock outlives a crashed holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.lockTTL = ttl
	}
}

// WithTracer sets the tracer used for collaborator call spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.opts = append(s.opts, workflow.WithTracer(tracer))
	}
}

// WithClock replaces the wall clock driving trustline polling.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.opts = append(s.opts, workflow.WithClock(c))
	}
}

// WithPolling sets the trustline poll interval and timeout.
func WithPolling(interval, timeout time.Duration) Option {
	return func(s *Service) {
		s.opts = append(s.opts, workflow.WithPollInterval(interval), workflow.WithPollTimeout(timeout))
	}
}

// WithNetworkID sets the network identifier handed to the signing agent.
func WithNetworkID(id string) Option {
	return func(s *Service) {
		s.opts = append(s.opts, workflow.WithNetworkID(id))
	}
}

// WithCallTimeout bounds every issuance backend call. Signing is never bounded.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.opts = append(s.opts, workflow.WithCallTimeout(d))
	}
}

// WithExplorer fills in explorer links the backend leaves out.
func WithExplorer(baseURL string) Option {
	return func(s *Service) {
		s.opts = append(s.opts, workflow.WithExplorer(baseURL))
	}
}

// WithIDGenerator replaces the UUID workflow ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New creates a Service.
func New(issuer ports.IssuanceService, signer ports.Signer, opts ...Option) *Service {
	s := &Service{
		issuer:    issuer,
		signer:    signer,
		logger:    logging.NewNop(),
		newID:     uuid.NewString,
		workflows: make(map[string]*workflow.Orchestrator),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = memory.NewStore()
	}

	mopts := []session.Option{session.WithLogger(s.logger)}
	if s.locker != nil {
		mopts = append(mopts, session.WithLocker(s.locker))
	}
	if s.lockTTL > 0 {
		mopts = append(mopts, session.WithLockTTL(s.lockTTL))
	}
	s.manager = session.NewManager(s.store, mopts...)
	return s
}

// Store returns the snapshot store.
func (s *Service) Store() ports.StateStore {
	return s.store
}

func (s *Service) spawn(id string) (*workflow.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if o, ok := s.workflows[id]; ok {
		return o, nil
	}

	opts := append([]workflow.Option{
		workflow.WithLogger(s.logger),
		workflow.WithPersister(s.manager),
	}, s.opts...)
	o := workflow.New(id, s.issuer, s.signer, opts...)
	s.workflows[id] = o
	return o, nil
}

func (s *Service) lookup(id string) (*workflow.Orchestrator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	o, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	return o, nil
}

// Start creates a workflow and runs it up to READY_TO_SIGN,
// WAITING_FOR_TRUSTLINE or ERROR. A rejected request returns a
// *domain.ValidationError together with the IDLE snapshot and is not kept.
func (s *Service) Start(ctx context.Context, req domain.IssuanceRequest) (*domain.WorkflowState, error) {
	o, err := s.spawn(s.newID())
	if err != nil {
		return nil, err
	}

	var state *domain.WorkflowState
	err = s.manager.WithLock(ctx, o.ID(), func(ctx context.Context) error {
		var err error
		state, err = o.Start(ctx, req)
		return err
	})
	if state == nil {
		state = o.Snapshot()
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		s.mu.Lock()
		delete(s.workflows, o.ID())
		s.mu.Unlock()
		o.Close()
		if derr := s.manager.Delete(ctx, o.ID()); derr != nil {
			s.logger.Warn("Failed to discard rejected workflow", "workflow_id", o.ID(), "err", derr)
		}
	}
	return state, err
}

// Get returns the current snapshot of a workflow, falling back to the store
// for workflows this process does not run.
func (s *Service) Get(ctx context.Context, id string) (*domain.WorkflowState, error) {
	if o, err := s.lookup(id); err == nil {
		return o.Snapshot(), nil
	} else if errors.Is(err, ErrClosed) {
		return nil, err
	}

	state, err := s.manager.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// List returns every known workflow, most recently updated first.
func (s *Service) List(ctx context.Context) ([]*domain.WorkflowState, error) {
	s.mu.Lock()
	states := make(map[string]*domain.WorkflowState, len(s.workflows))
	for id, o := range s.workflows {
		states[id] = o.Snapshot()
	}
	s.mu.Unlock()

	ids, err := s.manager.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored workflows: %w", err)
	}
	for _, id := range ids {
		if _, ok := states[id]; ok {
			continue
		}
		state, err := s.manager.Load(ctx, id)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		states[id] = state
	}

	out := make([]*domain.WorkflowState, 0, len(states))
	for _, st := range states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SignAndSubmit signs the emission of a READY_TO_SIGN workflow and drives it
// to SUCCESS or ERROR.
func (s *Service) SignAndSubmit(ctx context.Context, id string) (*domain.WorkflowState, error) {
	return s.control(ctx, id, (*workflow.Orchestrator).SignAndSubmit)
}

// Retry re-runs the failed stage of a workflow in ERROR.
func (s *Service) Retry(ctx context.Context, id string) (*domain.WorkflowState, error) {
	return s.control(ctx, id, (*workflow.Orchestrator).Retry)
}

func (s *Service) control(ctx context.Context, id string, fn func(*workflow.Orchestrator, context.Context) (*domain.WorkflowState, error)) (*domain.WorkflowState, error) {
	o, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	var state *domain.WorkflowState
	err = s.manager.WithLock(ctx, id, func(ctx context.Context) error {
		var err error
		state, err = fn(o, ctx)
		return err
	})
	if state == nil {
		state = o.Snapshot()
	}
	return state, err
}

// Reset abandons a workflow and returns it to IDLE. It does not wait for the
// control lock, so it can interrupt a call in progress.
func (s *Service) Reset(ctx context.Context, id string) (*domain.WorkflowState, error) {
	o, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return o.Reset(ctx), nil
}

// Remove stops a workflow and deletes its snapshot.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	o, ok := s.workflows[id]
	delete(s.workflows, id)
	s.mu.Unlock()

	if ok {
		o.Reset(ctx)
		o.Close()
	}
	return s.manager.Delete(ctx, id)
}

// Resume adopts the stored workflows this process is not running yet.
// Idle and finished workflows are left in the store. It returns how many
// workflows were adopted.
func (s *Service) Resume(ctx context.Context) (int, error) {
	ids, err := s.manager.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored workflows: %w", err)
	}

	adopted := 0
	for _, id := range ids {
		s.mu.Lock()
		_, running := s.workflows[id]
		s.mu.Unlock()
		if running {
			continue
		}

		state, err := s.manager.Load(ctx, id)
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return adopted, fmt.Errorf("failed to load workflow %s: %w", id, err)
		}
		if state.Stage == domain.StageIdle || state.Stage == domain.StageSuccess {
			continue
		}

		o, err := s.spawn(id)
		if err != nil {
			return adopted, err
		}
		err = s.manager.WithLock(ctx, id, func(ctx context.Context) error {
			restored := o.Resume(ctx, state)
			s.logger.Info("Workflow resumed", "workflow_id", id, "stage", restored.Stage)
			return nil
		})
		if err != nil {
			return adopted, err
		}
		adopted++
	}
	return adopted, nil
}

// Close stops every workflow. Their last snapshots stay in the store.
func (s *Service) Close() {
	s.mu.Lock()
	workflows := s.workflows
	s.workflows = make(map[string]*workflow.Orchestrator)
	s.closed = true
	s.mu.Unlock()

	for _, o := range workflows {
		o.Close()
	}
}
