package poller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/mintline/internal/poller"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChecker answers checks from a script; the last entry repeats.
type scriptedChecker struct {
	calls  int32
	script []func() (domain.StatusResult, error)
}

func (c *scriptedChecker) Check(ctx context.Context) (domain.StatusResult, error) {
	n := int(atomic.AddInt32(&c.calls, 1))
	if n > len(c.script) {
		n = len(c.script)
	}
	return c.script[n-1]()
}

func (c *scriptedChecker) Calls() int { return int(atomic.LoadInt32(&c.calls)) }

func pending() (domain.StatusResult, error) {
	return domain.StatusResult{Status: domain.TrustlinePending}, nil
}

func confirmed() (domain.StatusResult, error) {
	return domain.StatusResult{Status: domain.TrustlineConfirmed, TrustlineTxRef: "trustline-tx"}, nil
}

func transient() (domain.StatusResult, error) {
	return domain.StatusResult{}, errors.New("connection reset by peer")
}

type sink struct {
	ch chan poller.Result
}

func newSink() *sink { return &sink{ch: make(chan poller.Result, 4)} }

func (s *sink) deliver(r poller.Result) { s.ch <- r }

func (s *sink) await(t *testing.T) poller.Result {
	t.Helper()
	select {
	case r := <-s.ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return poller.Result{}
	}
}

func (s *sink) assertEmpty(t *testing.T) {
	t.Helper()
	select {
	case r := <-s.ch:
		t.Fatalf("unexpected result %+v", r)
	case <-time.After(20 * time.Millisecond):
	}
}

func waitCalls(t *testing.T, c *scriptedChecker, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Calls() >= n }, time.Second, time.Millisecond)
}

func TestPoller_ConfirmsOnThirdCheck(t *testing.T) {
	mock := clock.NewMock()
	checker := &scriptedChecker{script: []func() (domain.StatusResult, error){pending, pending, confirmed}}
	out := newSink()

	p := poller.New(poller.WithClock(mock))
	s := p.Start(context.Background(), checker.Check, out.deliver)

	waitCalls(t, checker, 1)
	mock.Add(2 * time.Second)
	waitCalls(t, checker, 2)
	out.assertEmpty(t)
	mock.Add(2 * time.Second)

	r := out.await(t)
	assert.Equal(t, poller.OutcomeConfirmed, r.Outcome)
	assert.Equal(t, "trustline-tx", r.TrustlineTxRef)
	assert.Equal(t, s.ID(), r.SessionID)
	assert.Equal(t, 3, r.Attempts)

	<-s.Done()
	assert.False(t, s.Cancel(), "ended sessions cannot be cancelled")

	mock.Add(10 * time.Second)
	assert.Equal(t, 3, checker.Calls(), "no checks after release")
}

func TestPoller_TimeoutBoundIgnoresTransientErrors(t *testing.T) {
	mock := clock.NewMock()
	checker := &scriptedChecker{script: []func() (domain.StatusResult, error){transient, pending, transient, pending}}
	out := newSink()
	var observed int32

	p := poller.New(
		poller.WithClock(mock),
		poller.WithObserver(func(sessionID string, attempt int, status domain.StatusResult, err error) {
			atomic.AddInt32(&observed, 1)
		}),
	)
	start := mock.Now()
	s := p.Start(context.Background(), checker.Check, out.deliver)

	waitCalls(t, checker, 1)
	for i := 1; i < 30; i++ {
		mock.Add(2 * time.Second)
		waitCalls(t, checker, i+1)
	}
	out.assertEmpty(t)

	// 58s elapsed; the bound is 60s.
	mock.Add(2 * time.Second)
	r := out.await(t)

	assert.Equal(t, poller.OutcomeTimeout, r.Outcome)
	assert.Equal(t, poller.TimeoutMessage, r.Message)
	assert.WithinDuration(t, start.Add(poller.DefaultTimeout), mock.Now(), poller.DefaultInterval)
	<-s.Done()
	assert.Equal(t, poller.OutcomeTimeout, s.Outcome())
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&observed)), 30)
}

func TestPoller_TerminalFailure(t *testing.T) {
	mock := clock.NewMock()
	checker := &scriptedChecker{script: []func() (domain.StatusResult, error){
		func() (domain.StatusResult, error) {
			return domain.StatusResult{Status: domain.TrustlineFailed}, nil
		},
	}}
	out := newSink()

	s := poller.New(poller.WithClock(mock)).Start(context.Background(), checker.Check, out.deliver)

	r := out.await(t)
	assert.Equal(t, poller.OutcomeFailed, r.Outcome)
	assert.Equal(t, "Token creation failed. Please try again.", r.Message)
	<-s.Done()
}

func TestPoller_CancelSuppressesDelivery(t *testing.T) {
	mock := clock.NewMock()
	checker := &scriptedChecker{script: []func() (domain.StatusResult, error){pending}}
	out := newSink()

	s := poller.New(poller.WithClock(mock)).Start(context.Background(), checker.Check, out.deliver)
	waitCalls(t, checker, 1)

	assert.True(t, s.Cancel())
	assert.False(t, s.Cancel())
	<-s.Done()

	mock.Add(2 * time.Minute)
	out.assertEmpty(t)
	assert.Equal(t, poller.OutcomeCancelled, s.Outcome())
	assert.Equal(t, 1, checker.Calls())
}

func TestPoller_CancelAbortsInFlightCheck(t *testing.T) {
	mock := clock.NewMock()
	entered := make(chan struct{})
	var once sync.Once
	check := func(ctx context.Context) (domain.StatusResult, error) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return domain.StatusResult{}, ctx.Err()
	}
	out := newSink()

	s := poller.New(poller.WithClock(mock)).Start(context.Background(), check, out.deliver)
	<-entered

	require.True(t, s.Cancel())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session goroutine did not exit")
	}
	out.assertEmpty(t)
	assert.Equal(t, 0, s.Attempts())
}

func TestPoller_ParentContextEndsSession(t *testing.T) {
	mock := clock.NewMock()
	checker := &scriptedChecker{script: []func() (domain.StatusResult, error){pending}}
	out := newSink()
	ctx, cancel := context.WithCancel(context.Background())

	s := poller.New(poller.WithClock(mock)).Start(ctx, checker.Check, out.deliver)
	waitCalls(t, checker, 1)
	cancel()

	<-s.Done()
	out.assertEmpty(t)
	assert.Equal(t, poller.OutcomeCancelled, s.Outcome())
}

func TestPoller_Options(t *testing.T) {
	p := poller.New(poller.WithInterval(time.Second), poller.WithTimeout(10*time.Second), poller.WithInterval(0))
	assert.Equal(t, time.Second, p.Interval())
	assert.Equal(t, 10*time.Second, p.Timeout())
}
