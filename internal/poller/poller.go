// Package poller watches the trustline of an asset until the backend reports a
// terminal status or a wall-clock bound elapses.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 60 * time.Second
)

// TimeoutMessage is reported when the bound elapses without a terminal status.
const TimeoutMessage = "Trustline creation timed out. Please try again."

// Outcome is how a session ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeConfirmed
	OutcomeFailed
	OutcomeTimeout
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "none"
}

// Result is delivered once per session, unless the session was cancelled.
type Result struct {
	SessionID      string
	Outcome        Outcome
	TrustlineTxRef string
	Message        string
	Attempts       int
}

// CheckFunc asks the backend for the current trustline status.
type CheckFunc func(ctx context.Context) (domain.StatusResult, error)

// CheckObserver sees every finished check, including transient failures.
type CheckObserver func(sessionID string, attempt int, status domain.StatusResult, err error)

// Poller creates polling sessions sharing one configuration.
type Poller struct {
	clock    clock.Clock
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	observe  CheckObserver
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock, typically with clock.NewMock in tests.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) {
		p.clock = c
	}
}

// WithInterval sets the delay between checks.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithTimeout sets the hard bound measured from session start.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger for tick and session events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithObserver registers a callback run after every check.
func WithObserver(fn CheckObserver) Option {
	return func(p *Poller) {
		p.observe = fn
	}
}

// New creates a Poller.
func New(opts ...Option) *Poller {
	p := &Poller{
		clock:    clock.New(),
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured check interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// Timeout returns the configured session bound.
func (p *Poller) Timeout() time.Duration { return p.timeout }

// Session is one running watch. Its ticker, timeout timer and context are
// released together, exactly once.
type Session struct {
	id     string
	poller *Poller
	check  CheckFunc

	mu       sync.Mutex
	released bool
	outcome  Outcome
	result   Result
	attempts int
	ticker   *clock.Ticker
	timer    *clock.Timer
	cancel   context.CancelFunc

	done chan struct{}
}

// Start performs one immediate check, then checks every interval until a terminal
// status, the timeout, or Cancel. deliver runs on the session goroutine and is
// never called after Cancel returned true.
func (p *Poller) Start(ctx context.Context, check CheckFunc, deliver func(Result)) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     uuid.NewString(),
		poller: p,
		check:  check,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// Both handles exist before the goroutine runs so Cancel can always release them.
	s.ticker = p.clock.Ticker(p.interval)
	s.timer = p.clock.AfterFunc(p.timeout, s.expire)

	p.logger.Debug("Polling session started",
		"session_id", s.id,
		"interval", p.interval,
		"timeout", p.timeout,
	)

	go s.run(ctx, deliver)
	return s
}

// ID is the identity token the owner compares results against.
func (s *Session) ID() string { return s.id }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Attempts returns the number of finished checks.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Outcome returns how the session ended, or OutcomeNone while it runs.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Cancel stops the session. It reports false if the session had already ended.
// Timers are cleared before Cancel returns.
func (s *Session) Cancel() bool {
	return s.release(OutcomeCancelled, Result{})
}

func (s *Session) expire() {
	if s.release(OutcomeTimeout, Result{Outcome: OutcomeTimeout, Message: TimeoutMessage}) {
		s.poller.logger.Warn("Polling session timed out",
			"session_id", s.id,
			"timeout", s.poller.timeout,
		)
	}
}

// release is the only place a session ends.
func (s *Session) release(outcome Outcome, result Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.released = true
	s.outcome = outcome
	result.SessionID = s.id
	result.Attempts = s.attempts
	s.result = result

	s.ticker.Stop()
	s.timer.Stop()
	s.cancel()
	return true
}

func (s *Session) run(ctx context.Context, deliver func(Result)) {
	defer close(s.done)

	s.tick(ctx)
	for !s.isReleased() {
		select {
		case <-ctx.Done():
			// Parent shutdown ends the session without a result.
			s.release(OutcomeCancelled, Result{})
		case <-s.ticker.C:
			s.tick(ctx)
		}
	}

	s.mu.Lock()
	outcome, result := s.outcome, s.result
	s.mu.Unlock()

	if outcome != OutcomeCancelled && deliver != nil {
		deliver(result)
	}
}

func (s *Session) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// tick runs one check and ends the session on a terminal status.
func (s *Session) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	status, err := s.check(ctx)

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if s.poller.observe != nil {
		s.poller.observe(s.id, attempt, status, err)
	}

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.poller.logger.Warn("Trustline check failed, retrying on next tick",
				"session_id", s.id,
				"attempt", attempt,
				"err", err,
			)
		}
		return
	}

	switch status.Status {
	case domain.TrustlineConfirmed:
		s.release(OutcomeConfirmed, Result{
			Outcome:        OutcomeConfirmed,
			TrustlineTxRef: status.TrustlineTxRef,
			Message:        status.Message,
		})
	case domain.TrustlineFailed:
		msg := status.Message
		if msg == "" {
			msg = "Token creation failed. Please try again."
		}
		s.release(OutcomeFailed, Result{Outcome: OutcomeFailed, Message: msg})
	default:
		s.poller.logger.Debug("Trustline still pending",
			"session_id", s.id,
			"attempt", attempt,
		)
	}
}
