package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/mintline/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the workflow collectors.
type Metrics struct {
	Transitions  *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	PollChecks   *prometheus.CounterVec
	PollSessions *prometheus.CounterVec
	Polling      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mintline_transitions_total",
				Help: "Committed stage transitions.",
			},
			[]string{"from", "to"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mintline_failures_total",
				Help: "Workflows entering ERROR, by failed stage and error kind.",
			},
			[]string{"stage", "kind"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mintline_call_duration_seconds",
				Help:    "Duration of issuance service and signing agent calls.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
			},
			[]string{"operation", "outcome"},
		),
		PollChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mintline_poll_checks_total",
				Help: "Trustline status checks by reported status.",
			},
			[]string{"status"},
		),
		PollSessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mintline_poll_sessions_total",
				Help: "Finished trustline polling sessions by outcome.",
			},
			[]string{"outcome"},
		),
		Polling: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mintline_polling_sessions",
			Help: "Trustline polling sessions currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Transitions, m.Failures, m.CallDuration, m.PollChecks, m.PollSessions, m.Polling)
	}
	return m
}

// Hooks records every lifecycle event into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(e.From.String(), e.To.String()).Inc()
			if e.To == domain.StageError {
				m.Failures.WithLabelValues(e.From.String(), string(e.ErrorKind)).Inc()
			}
		},
		OnCall: func(ctx context.Context, e *domain.CallEvent) {
			m.CallDuration.WithLabelValues(e.Operation, callOutcome(e.Err)).Observe(e.Duration.Seconds())
		},
		OnPollStart: func(ctx context.Context, e *domain.PollEvent) {
			m.Polling.Inc()
		},
		OnPollCheck: func(ctx context.Context, e *domain.PollEvent) {
			status := string(e.Status)
			if e.Err != nil {
				status = "error"
			}
			m.PollChecks.WithLabelValues(status).Inc()
		},
		OnPollEnd: func(ctx context.Context, e *domain.PollEvent) {
			m.Polling.Dec()
			m.PollSessions.WithLabelValues(e.Outcome).Inc()
		},
	}
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTransient):
		return "transient"
	case errors.Is(err, domain.ErrSignatureRejected), errors.Is(err, domain.ErrSignerUnavailable):
		return "declined"
	}
	return "error"
}

// LogHooks writes one structured line per lifecycle event.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			if e.To == domain.StageError {
				logger.Warn("workflow_failed",
					"workflow_id", e.WorkflowID,
					"from", e.From,
					"kind", e.ErrorKind,
					"err", e.Error,
				)
				return
			}
			logger.Info("workflow_transition",
				"workflow_id", e.WorkflowID,
				"from", e.From,
				"to", e.To,
				"event", e.Event,
			)
		},
		OnCall: func(ctx context.Context, e *domain.CallEvent) {
			logger.Debug("collaborator_call",
				"workflow_id", e.WorkflowID,
				"operation", e.Operation,
				"duration", e.Duration,
				"err", e.Err,
			)
		},
		OnPollStart: func(ctx context.Context, e *domain.PollEvent) {
			logger.Info("poll_start", "workflow_id", e.WorkflowID, "session_id", e.SessionID)
		},
		OnPollEnd: func(ctx context.Context, e *domain.PollEvent) {
			logger.Info("poll_end",
				"workflow_id", e.WorkflowID,
				"session_id", e.SessionID,
				"outcome", e.Outcome,
				"attempts", e.Attempt,
			)
		},
	}
}
