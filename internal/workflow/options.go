package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/mintline/pkg/domain"
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/trace"
)

// Persister stores snapshots. session.Manager implements it.
type Persister interface {
	Save(ctx context.Context, state *domain.WorkflowState) (bool, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the workflow logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithPersister saves a snapshot after every committed change.
func WithPersister(p Persister) Option {
	return func(o *Orchestrator) {
		o.persister = p
	}
}

// WithTracer wraps collaborator calls in spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock replaces the wall clock used for timestamps and polling.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithPollInterval sets the delay between trustline status checks.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollInterval = d
	}
}

// WithPollTimeout bounds a polling session by wall-clock time.
func WithPollTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollTimeout = d
	}
}

// WithNetworkID sets the network passphrase handed to the signer.
func WithNetworkID(id string) Option {
	return func(o *Orchestrator) {
		o.networkID = id
	}
}

// WithCallTimeout bounds every one-shot collaborator call. Zero disables it.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.callTimeout = d
	}
}

// WithExplorer fills missing transaction and asset links from a block explorer base URL.
func WithExplorer(baseURL string) Option {
	return func(o *Orchestrator) {
		o.explorer = strings.TrimRight(baseURL, "/")
	}
}

// WithContext sets the parent of background polling. Cancelling it stops polling.
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		o.parent = ctx
	}
}
