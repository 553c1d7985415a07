package observability_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/mintline/pkg/domain"
	"github.com/aretw0/mintline/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	h := m.Hooks()
	ctx := context.Background()

	h.OnTransition(ctx, &domain.TransitionEvent{From: domain.StageIdle, To: domain.StagePreparing})
	h.OnTransition(ctx, &domain.TransitionEvent{From: domain.StagePreparing, To: domain.StageError, ErrorKind: domain.KindCollaborator})
	h.OnCall(ctx, &domain.CallEvent{Operation: "prepare", Duration: 120 * time.Millisecond})
	h.OnCall(ctx, &domain.CallEvent{Operation: "sign", Err: fmt.Errorf("%w: no", domain.ErrSignatureRejected)})
	h.OnPollStart(ctx, &domain.PollEvent{})
	h.OnPollCheck(ctx, &domain.PollEvent{Status: domain.TrustlinePending})
	h.OnPollCheck(ctx, &domain.PollEvent{Err: domain.ErrTransient})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("IDLE", "PREPARING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Failures.WithLabelValues("PREPARING", "collaborator_fault")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollChecks.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollChecks.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Polling))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CallDuration))

	h.OnPollEnd(ctx, &domain.PollEvent{Outcome: "confirmed"})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Polling))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollSessions.WithLabelValues("confirmed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilRegisterer(t *testing.T) {
	assert.NotPanics(t, func() {
		observability.NewMetrics(nil)
		observability.NewMetrics(nil)
	})
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := observability.LogHooks(logger).Merge(domain.LifecycleHooks{})
	ctx := context.Background()

	h.OnTransition(ctx, &domain.TransitionEvent{WorkflowID: "wf-1", From: domain.StageIdle, To: domain.StagePreparing, Event: domain.EventStart})
	h.OnTransition(ctx, &domain.TransitionEvent{WorkflowID: "wf-1", From: domain.StageSubmitting, To: domain.StageError, ErrorKind: domain.KindTransient, Error: "timeout"})
	h.OnPollEnd(ctx, &domain.PollEvent{WorkflowID: "wf-1", Outcome: "timeout", Attempt: 30})

	out := buf.String()
	assert.Contains(t, out, "workflow_transition")
	assert.Contains(t, out, "to=PREPARING")
	assert.Contains(t, out, "level=WARN msg=workflow_failed")
	assert.Contains(t, out, "kind=transient_network")
	assert.Contains(t, out, "attempts=30")
}
