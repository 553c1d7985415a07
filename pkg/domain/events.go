package domain

import (
	"context"
	"time"
)

// TransitionEvent is emitted after a stage change has been committed.
type TransitionEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	From       Stage     `json:"from"`
	To         Stage     `json:"to"`
	Event      Event     `json:"event"`
	ErrorKind  ErrorKind `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// CallEvent describes one finished collaborator call.
type CallEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	WorkflowID string        `json:"workflow_id"`
	Operation  string        `json:"operation"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// PollEvent describes the lifecycle of a trustline polling session.
type PollEvent struct {
	Timestamp  time.Time       `json:"timestamp"`
	WorkflowID string          `json:"workflow_id"`
	SessionID  string          `json:"session_id"`
	Attempt    int             `json:"attempt,omitempty"`
	Status     TrustlineStatus `json:"status,omitempty"`
	Outcome    string          `json:"outcome,omitempty"`
	Err        error           `json:"-"`
}

// LifecycleHooks defines callbacks for workflow observability.
// Hooks run outside the workflow lock, one event at a time, and may read
// snapshots. They must not call control operations of the same workflow.
type LifecycleHooks struct {
	OnTransition func(context.Context, *TransitionEvent)
	OnCall       func(context.Context, *CallEvent)
	OnPollStart  func(context.Context, *PollEvent)
	OnPollCheck  func(context.Context, *PollEvent)
	OnPollEnd    func(context.Context, *PollEvent)
}

// Merge returns hooks calling h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition: chain(h.OnTransition, other.OnTransition),
		OnCall:       chain(h.OnCall, other.OnCall),
		OnPollStart:  chain(h.OnPollStart, other.OnPollStart),
		OnPollCheck:  chain(h.OnPollCheck, other.OnPollCheck),
		OnPollEnd:    chain(h.OnPollEnd, other.OnPollEnd),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
