// Package workflow drives one token issuance from request to distribution.
//
// An Orchestrator owns a single domain.WorkflowState. Control calls, collaborator
// completions and poll results all commit through the same locked path, and a
// completion is dropped when the workflow was reset after the call began.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/internal/poller"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/aretw0/mintline/pkg/ports"
	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ErrSuperseded is returned when a reset discarded the workflow while a call was in flight.
var ErrSuperseded = errors.New("workflow was reset while the call was in flight")

var errNoRequest = errors.New("workflow has no issuance request. Reset and start again")

// InterruptedMessage is recorded for restored workflows that stopped mid-call.
const InterruptedMessage = "Operation was interrupted before it completed. Retry to resume."

// Collaborator operation names, used in spans and CallEvents.
const (
	OpPrepare      = "prepare"
	OpCheckStatus  = "check_status"
	OpEmission     = "get_emission_payload"
	OpSign         = "sign"
	OpSubmit       = "submit_signed"
	OpDistribution = "execute_distribution"
)

// Orchestrator sequences the issuance stages for one workflow.
type Orchestrator struct {
	id     string
	issuer ports.IssuanceService
	signer ports.Signer

	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	persister    Persister
	tracer       trace.Tracer
	clock        clock.Clock
	pollInterval time.Duration
	pollTimeout  time.Duration
	networkID    string
	callTimeout  time.Duration
	explorer     string
	parent       context.Context

	poller *poller.Poller
	ctx    context.Context
	stop   context.CancelFunc

	mu      sync.Mutex
	state   *domain.WorkflowState
	epoch   uint64
	busy    bool
	session *poller.Session

	// dispatch serializes hook delivery. polls pairs OnPollStart with
	// OnPollEnd per session, whichever of the two is published first.
	dispatch sync.Mutex
	polls    map[string]pollMark
}

type pollMark int

const (
	pollAnnounced pollMark = iota + 1
	pollSkipped
	pollEnded
)

// update is what a commit publishes once the lock is released.
type update struct {
	epoch       uint64
	snapshot    *domain.WorkflowState
	transitions []domain.TransitionEvent
	pollStart   *domain.PollEvent
	pollEnd     *domain.PollEvent
}

// New creates an Orchestrator in IDLE.
func New(id string, issuer ports.IssuanceService, signer ports.Signer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		id:     id,
		issuer: issuer,
		signer: signer,
		logger: logging.NewNop(),
		tracer: noop.NewTracerProvider().Tracer("mintline"),
		clock:  clock.New(),
		parent: context.Background(),
		state:  domain.NewWorkflowState(id),
		polls:  make(map[string]pollMark),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("workflow_id", id)
	o.ctx, o.stop = context.WithCancel(o.parent)
	o.poller = poller.New(
		poller.WithClock(o.clock),
		poller.WithInterval(o.pollInterval),
		poller.WithTimeout(o.pollTimeout),
		poller.WithLogger(o.logger),
		poller.WithObserver(o.observeCheck),
	)
	return o
}

// ID returns the workflow ID.
func (o *Orchestrator) ID() string { return o.id }

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() *domain.WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Polling reports whether a trustline polling session is active.
func (o *Orchestrator) Polling() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session != nil
}

// Close stops background polling. The state is left as is.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	var end *domain.PollEvent
	if o.session != nil {
		o.session.Cancel()
		end = o.pollEvent(o.session.ID(), o.session.Attempts(), "", poller.OutcomeCancelled.String(), nil)
		o.session = nil
	}
	o.mu.Unlock()

	if end != nil {
		o.dispatch.Lock()
		o.endPoll(o.ctx, end)
		o.dispatch.Unlock()
	}
	o.stop()
}

// Start validates req and provisions the distribution account.
// It returns once the workflow is READY_TO_SIGN, WAITING_FOR_TRUSTLINE or ERROR.
// Collaborator faults are recorded in the state, not returned.
func (o *Orchestrator) Start(ctx context.Context, req domain.IssuanceRequest) (*domain.WorkflowState, error) {
	o.mu.Lock()
	if err := o.checkControl(domain.EventStart); err != nil {
		o.mu.Unlock()
		return o.Snapshot(), err
	}

	if err := req.Validate(); err != nil {
		o.state.Error = err.Error()
		o.state.ErrorKind = domain.KindValidation
		u := o.commit()
		o.mu.Unlock()
		o.publish(ctx, u)
		o.logger.Info("Issuance request rejected", "err", err)
		return u.snapshot, err
	}

	o.state.Request = &req
	u := o.commit(o.advance(domain.EventStart))
	o.busy = true
	epoch := o.epoch
	o.mu.Unlock()
	o.publish(ctx, u)

	o.logger.Info("Issuance started",
		"asset_code", req.AssetCode,
		"creator", req.Creator,
		"fee_bps", req.FeeBps,
	)
	return o.finish(o.runPrepare(ctx, epoch))
}

// SignAndSubmit fetches the emission payload, has it signed and drives the
// workflow through submission and distribution.
func (o *Orchestrator) SignAndSubmit(ctx context.Context) (*domain.WorkflowState, error) {
	o.mu.Lock()
	if err := o.checkControl(domain.EventSigned); err != nil {
		o.mu.Unlock()
		return o.Snapshot(), err
	}
	o.busy = true
	epoch := o.epoch
	o.mu.Unlock()

	return o.finish(o.runSign(ctx, epoch))
}

// Retry re-runs the entry action of the stage that failed.
// Artifacts already recorded (account, transaction refs) are never recreated.
func (o *Orchestrator) Retry(ctx context.Context) (*domain.WorkflowState, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return o.Snapshot(), domain.ErrBusy
	}
	if o.state.Stage != domain.StageError {
		stage := o.state.Stage
		o.mu.Unlock()
		return o.Snapshot(), fmt.Errorf("%w: retry from %s", domain.ErrIllegalTransition, stage)
	}
	failed := o.state.FailedStage
	event, err := domain.RetryEvent(failed)
	if err != nil {
		o.mu.Unlock()
		return o.Snapshot(), err
	}

	u := o.commit(o.advance(event))
	epoch := o.epoch

	switch failed {
	case domain.StageWaitingForTrustline:
		o.startPolling(&u)
		o.mu.Unlock()
		o.publish(ctx, u)
		o.logger.Info("Retrying trustline confirmation")
		return u.snapshot, nil
	case domain.StageReadyToSign:
		o.mu.Unlock()
		o.publish(ctx, u)
		o.logger.Info("Workflow ready to sign again")
		return u.snapshot, nil
	}

	o.busy = true
	o.mu.Unlock()
	o.publish(ctx, u)
	o.logger.Info("Retrying failed stage", "stage", failed)

	switch failed {
	case domain.StagePreparing:
		return o.finish(o.runPrepare(ctx, epoch))
	case domain.StageSubmitting:
		return o.finish(o.runSubmit(ctx, epoch))
	default:
		return o.finish(o.runDistribute(ctx, epoch))
	}
}

// Reset cancels any polling and returns the workflow to an empty IDLE state.
// Results of calls still in flight are discarded when they complete.
func (o *Orchestrator) Reset(ctx context.Context) *domain.WorkflowState {
	o.mu.Lock()
	u := update{}
	if o.session != nil {
		o.session.Cancel()
		u.pollEnd = o.pollEvent(o.session.ID(), o.session.Attempts(), "", poller.OutcomeCancelled.String(), nil)
		o.session = nil
	}
	o.epoch++
	o.busy = false

	from := o.state.Stage
	version := o.state.Version
	o.state = domain.NewWorkflowState(o.id)
	o.state.Version = version

	u = o.mergeCommit(u, o.transitionEvent(from, domain.StageIdle, domain.EventReset))
	o.mu.Unlock()

	o.publish(ctx, u)
	o.logger.Info("Workflow reset", "from", from)
	return u.snapshot
}

// Resume adopts a persisted state. In-flight stages become retryable errors
// and a workflow waiting for its trustline resumes polling.
func (o *Orchestrator) Resume(ctx context.Context, state *domain.WorkflowState) *domain.WorkflowState {
	o.mu.Lock()
	o.state = state.Clone()
	o.state.ID = o.id

	var u update
	switch {
	case o.state.Stage.InFlight():
		stage := o.state.Stage
		u = o.commit(o.failLocked(stage, domain.NewError(domain.KindTransient, stage, InterruptedMessage, nil)))
		o.logger.Warn("Restored workflow was interrupted", "stage", stage)
	case o.state.Stage == domain.StageWaitingForTrustline && o.state.Request != nil:
		u = update{epoch: o.epoch, snapshot: o.state.Clone()}
		o.startPolling(&u)
		o.logger.Info("Resumed trustline polling")
	default:
		u = update{epoch: o.epoch, snapshot: o.state.Clone()}
	}
	o.mu.Unlock()

	o.publish(ctx, u)
	return u.snapshot
}

// checkControl rejects a control call that is illegal now. Caller holds o.mu.
func (o *Orchestrator) checkControl(event domain.Event) error {
	if o.busy {
		return domain.ErrBusy
	}
	_, err := domain.Transition(o.state.Stage, event)
	return err
}

// runPrepare is the PREPARING entry action.
func (o *Orchestrator) runPrepare(ctx context.Context, epoch uint64) error {
	o.mu.Lock()
	req, err := o.claim(epoch)
	if err != nil {
		o.mu.Unlock()
		return o.abandon(ctx, epoch, domain.StagePreparing, err)
	}
	provisioned := o.state.DistributionAccount != ""
	trustline := o.state.TrustlineTxRef
	o.mu.Unlock()

	if !provisioned {
		var res domain.PrepareResult
		err := o.call(ctx, OpPrepare, func(ctx context.Context) error {
			var err error
			res, err = o.issuer.Prepare(ctx, domain.PrepareParamsFrom(req))
			return err
		})
		if err != nil {
			return o.fail(ctx, epoch, domain.StagePreparing, err, false)
		}
		if res.Warning != "" {
			o.logger.Info("Backend warning during prepare", "warning", res.Warning)
		}

		o.mu.Lock()
		if o.epoch != epoch {
			o.mu.Unlock()
			return ErrSuperseded
		}
		if err := o.state.SetDistributionAccount(res.DistributionAccount); err != nil {
			o.mu.Unlock()
			return o.fail(ctx, epoch, domain.StagePreparing, err, false)
		}
		if res.TrustlineTxRef != "" {
			if err := o.state.SetTrustlineTxRef(res.TrustlineTxRef); err != nil {
				o.mu.Unlock()
				return o.fail(ctx, epoch, domain.StagePreparing, err, false)
			}
		}
		trustline = o.state.TrustlineTxRef
		o.mu.Unlock()
	} else {
		o.logger.Info("Distribution account already provisioned, skipping prepare")
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return ErrSuperseded
	}

	var u update
	if trustline != "" {
		u = o.commit(o.advance(domain.EventTrustlineConfirmed))
	} else {
		u = o.commit(o.advance(domain.EventTrustlinePending))
		o.startPolling(&u)
	}
	o.busy = false
	o.mu.Unlock()

	o.publish(ctx, u)
	return nil
}

// startPolling opens a session for the current request. Caller holds o.mu.
func (o *Orchestrator) startPolling(u *update) {
	assetCode, issuer := o.state.Request.AssetCode, o.state.Request.Creator
	check := func(ctx context.Context) (domain.StatusResult, error) {
		var res domain.StatusResult
		err := o.call(ctx, OpCheckStatus, func(ctx context.Context) error {
			var err error
			res, err = o.issuer.CheckStatus(ctx, assetCode, issuer)
			return err
		})
		return res, err
	}

	o.session = o.poller.Start(o.ctx, check, o.onPollResult)
	u.pollStart = o.pollEvent(o.session.ID(), 0, "", "", nil)
}

// onPollResult routes a session outcome through the commit path.
func (o *Orchestrator) onPollResult(r poller.Result) {
	o.mu.Lock()
	if o.session == nil || o.session.ID() != r.SessionID || o.state.Stage != domain.StageWaitingForTrustline {
		o.mu.Unlock()
		o.logger.Debug("Discarding result of stale polling session", "session_id", r.SessionID)
		return
	}
	o.session = nil

	var u update
	switch r.Outcome {
	case poller.OutcomeConfirmed:
		if r.TrustlineTxRef != "" {
			if err := o.state.SetTrustlineTxRef(r.TrustlineTxRef); err != nil {
				u = o.commit(o.failLocked(domain.StageWaitingForTrustline, domain.Classify(domain.StageWaitingForTrustline, err, false)))
				break
			}
		}
		u = o.commit(o.advance(domain.EventTrustlineConfirmed))
	case poller.OutcomeTimeout:
		u = o.commit(o.failLocked(domain.StageWaitingForTrustline,
			domain.NewError(domain.KindTimeout, domain.StageWaitingForTrustline, r.Message, nil)))
	default:
		u = o.commit(o.failLocked(domain.StageWaitingForTrustline,
			domain.NewError(domain.KindCollaborator, domain.StageWaitingForTrustline, r.Message, nil)))
	}
	u.pollEnd = o.pollEvent(r.SessionID, r.Attempts, "", r.Outcome.String(), nil)
	o.mu.Unlock()

	o.publish(o.ctx, u)
	o.logger.Info("Polling session ended",
		"session_id", r.SessionID,
		"outcome", r.Outcome,
		"attempts", r.Attempts,
	)
}

func (o *Orchestrator) observeCheck(sessionID string, attempt int, status domain.StatusResult, err error) {
	if o.hooks.OnPollCheck == nil {
		return
	}
	o.hooks.OnPollCheck(o.ctx, o.pollEvent(sessionID, attempt, status.Status, "", err))
}

// runSign fetches the payload and asks the signer. READY_TO_SIGN entry.
func (o *Orchestrator) runSign(ctx context.Context, epoch uint64) error {
	o.mu.Lock()
	req, err := o.claim(epoch)
	o.mu.Unlock()
	if err != nil {
		return o.abandon(ctx, epoch, domain.StageReadyToSign, err)
	}

	var payload string
	err = o.call(ctx, OpEmission, func(ctx context.Context) error {
		var err error
		payload, err = o.issuer.GetEmissionPayload(ctx, req.Creator, req.AssetCode, req.TotalSupply)
		return err
	})
	if err != nil {
		return o.fail(ctx, epoch, domain.StageReadyToSign, err, false)
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return ErrSuperseded
	}
	o.state.EmissionPayload = payload
	u := o.commit()
	o.mu.Unlock()
	o.publish(ctx, u)

	var signed string
	err = o.call(ctx, OpSign, func(ctx context.Context) error {
		var err error
		signed, err = o.signer.Sign(ctx, payload, o.networkID, req.Creator)
		return err
	})
	if err != nil {
		return o.fail(ctx, epoch, domain.StageReadyToSign, err, true)
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return ErrSuperseded
	}
	o.state.EmissionPayload = ""
	o.state.SignedPayload = signed
	u = o.commit(o.advance(domain.EventSigned))
	o.mu.Unlock()
	o.publish(ctx, u)

	return o.runSubmit(ctx, epoch)
}

// runSubmit is the SUBMITTING entry action.
func (o *Orchestrator) runSubmit(ctx context.Context, epoch uint64) error {
	o.mu.Lock()
	req, err := o.claim(epoch)
	if err != nil {
		o.mu.Unlock()
		return o.abandon(ctx, epoch, domain.StageSubmitting, err)
	}
	signed := o.state.SignedPayload
	emitted := o.state.EmissionTxRef
	o.mu.Unlock()

	if emitted == "" {
		if signed == "" {
			return o.fail(ctx, epoch, domain.StageSubmitting,
				domain.NewError(domain.KindCollaborator, domain.StageSubmitting, "No signed transaction to submit. Reset and sign again.", nil), false)
		}

		var ref string
		err := o.call(ctx, OpSubmit, func(ctx context.Context) error {
			var err error
			ref, err = o.issuer.SubmitSigned(ctx, signed, req.AssetCode, req.Creator)
			return err
		})
		if err != nil {
			return o.fail(ctx, epoch, domain.StageSubmitting, err, false)
		}

		o.mu.Lock()
		if o.epoch != epoch {
			o.mu.Unlock()
			return ErrSuperseded
		}
		if err := o.state.SetEmissionTxRef(ref); err != nil {
			o.mu.Unlock()
			return o.fail(ctx, epoch, domain.StageSubmitting, err, false)
		}
		o.mu.Unlock()
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return ErrSuperseded
	}
	o.state.SignedPayload = ""
	u := o.commit(o.advance(domain.EventSubmitted))
	o.mu.Unlock()
	o.publish(ctx, u)

	return o.runDistribute(ctx, epoch)
}

// runDistribute is the DISTRIBUTING entry action.
func (o *Orchestrator) runDistribute(ctx context.Context, epoch uint64) error {
	o.mu.Lock()
	req, err := o.claim(epoch)
	o.mu.Unlock()
	if err != nil {
		return o.abandon(ctx, epoch, domain.StageDistributing, err)
	}

	var res domain.DistributionResult
	err = o.call(ctx, OpDistribution, func(ctx context.Context) error {
		var err error
		res, err = o.issuer.ExecuteDistribution(ctx, req.Creator, req.AssetCode)
		return err
	})
	if err != nil {
		return o.fail(ctx, epoch, domain.StageDistributing, err, false)
	}

	split := domain.SplitAmounts{CreatorShare: res.CreatorShare, PlatformShare: res.PlatformShare}
	if err := split.Verify(req.TotalSupply); err != nil {
		return o.fail(ctx, epoch, domain.StageDistributing, err, false)
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return ErrSuperseded
	}
	if err := o.state.SetDistributionTxRef(res.DistributionTxRef); err != nil {
		o.mu.Unlock()
		return o.fail(ctx, epoch, domain.StageDistributing, err, false)
	}
	o.state.Split = &split
	o.state.TransactionURL, o.state.AssetURL = o.links(res, req)
	u := o.commit(o.advance(domain.EventDistributed))
	o.busy = false
	o.mu.Unlock()
	o.publish(ctx, u)

	o.logger.Info("Issuance complete",
		"asset_code", req.AssetCode,
		"creator_share", split.CreatorShare,
		"platform_share", split.PlatformShare,
	)
	return nil
}

func (o *Orchestrator) links(res domain.DistributionResult, req domain.IssuanceRequest) (string, string) {
	txURL, assetURL := res.TransactionURL, res.AssetURL
	if o.explorer == "" {
		return txURL, assetURL
	}
	if txURL == "" {
		txURL = o.explorer + "/tx/" + res.DistributionTxRef
	}
	if assetURL == "" {
		assetURL = o.explorer + "/asset/" + req.AssetCode + "-" + req.Creator
	}
	return txURL, assetURL
}

// claim returns the request an entry action works on, or ErrSuperseded when
// a reset replaced the state since epoch. Caller holds o.mu.
func (o *Orchestrator) claim(epoch uint64) (domain.IssuanceRequest, error) {
	if o.epoch != epoch {
		return domain.IssuanceRequest{}, ErrSuperseded
	}
	if o.state.Request == nil {
		return domain.IssuanceRequest{}, errNoRequest
	}
	return *o.state.Request, nil
}

// abandon ends an entry action that could not claim its request.
func (o *Orchestrator) abandon(ctx context.Context, epoch uint64, stage domain.Stage, err error) error {
	if errors.Is(err, ErrSuperseded) {
		o.logger.Debug("Entry action superseded by reset", "stage", stage)
		return err
	}
	return o.fail(ctx, epoch, stage, err, false)
}

// fail records err as the failure of stage and releases the workflow.
func (o *Orchestrator) fail(ctx context.Context, epoch uint64, stage domain.Stage, err error, fromSigner bool) error {
	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		o.logger.Debug("Dropping failure of superseded call", "stage", stage, "err", err)
		return ErrSuperseded
	}
	derr := domain.Classify(stage, err, fromSigner)
	u := o.commit(o.failLocked(stage, derr))
	o.busy = false
	o.mu.Unlock()

	o.publish(ctx, u)
	o.logger.Warn("Stage failed",
		"stage", stage,
		"kind", derr.Kind,
		"err", err,
	)
	return nil
}

// failLocked moves to ERROR. Caller holds o.mu.
func (o *Orchestrator) failLocked(stage domain.Stage, derr *domain.Error) domain.TransitionEvent {
	ev := o.advance(domain.EventFail)
	o.state.FailedStage = stage
	o.state.Error = derr.Message
	o.state.ErrorKind = derr.Kind
	ev.ErrorKind = derr.Kind
	ev.Error = derr.Message
	return ev
}

// advance applies event to the current stage. Caller holds o.mu and has
// already checked that the event is legal.
func (o *Orchestrator) advance(event domain.Event) domain.TransitionEvent {
	from := o.state.Stage
	to, err := domain.Transition(from, event)
	if err != nil {
		// Every caller checks legality first, so this is a programming error.
		panic(err)
	}
	o.state.Stage = to
	o.state.History = append(o.state.History, to)
	if to != domain.StageError {
		o.state.FailedStage = domain.StageIdle
		o.state.Error = ""
		o.state.ErrorKind = ""
	}
	return o.transitionEvent(from, to, event)
}

func (o *Orchestrator) transitionEvent(from, to domain.Stage, event domain.Event) domain.TransitionEvent {
	return domain.TransitionEvent{
		Timestamp:  o.clock.Now(),
		WorkflowID: o.id,
		From:       from,
		To:         to,
		Event:      event,
	}
}

// commit bumps the version and captures what must be published. Caller holds o.mu.
func (o *Orchestrator) commit(events ...domain.TransitionEvent) update {
	return o.mergeCommit(update{}, events...)
}

func (o *Orchestrator) mergeCommit(u update, events ...domain.TransitionEvent) update {
	o.state.Version++
	o.state.UpdatedAt = o.clock.Now()
	u.epoch = o.epoch
	u.snapshot = o.state.Clone()
	u.transitions = append(u.transitions, events...)
	return u
}

// publish persists the snapshot and runs hooks. Never called with o.mu held.
// Hooks run one update at a time, and transitions committed before a reset
// are dropped once the reset has happened.
func (o *Orchestrator) publish(ctx context.Context, u update) {
	ctx = context.WithoutCancel(ctx)

	if o.persister != nil && u.snapshot != nil {
		if _, err := o.persister.Save(ctx, u.snapshot); err != nil {
			o.logger.Error("Failed to persist workflow",
				"version", u.snapshot.Version,
				"err", err,
			)
		}
	}

	o.dispatch.Lock()
	defer o.dispatch.Unlock()

	o.mu.Lock()
	stale := o.epoch != u.epoch
	o.mu.Unlock()

	if u.pollEnd != nil {
		o.endPoll(ctx, u.pollEnd)
	}
	if stale {
		if u.pollStart != nil {
			o.startPoll(ctx, u.pollStart, false)
		}
		if len(u.transitions) > 0 {
			o.logger.Debug("Dropping transitions superseded by reset", "count", len(u.transitions))
		}
		return
	}
	for i := range u.transitions {
		ev := u.transitions[i]
		o.logger.Debug("Stage transition", "from", ev.From, "to", ev.To, "event", ev.Event)
		if o.hooks.OnTransition != nil {
			o.hooks.OnTransition(ctx, &ev)
		}
	}
	if u.pollStart != nil {
		o.startPoll(ctx, u.pollStart, true)
	}
}

// startPoll reports a session start unless the session already ended or
// deliver is false. Caller holds o.dispatch.
func (o *Orchestrator) startPoll(ctx context.Context, e *domain.PollEvent, deliver bool) {
	if o.polls[e.SessionID] == pollEnded {
		delete(o.polls, e.SessionID)
		return
	}
	if !deliver {
		o.polls[e.SessionID] = pollSkipped
		return
	}
	o.polls[e.SessionID] = pollAnnounced
	if o.hooks.OnPollStart != nil {
		o.hooks.OnPollStart(ctx, e)
	}
}

// endPoll reports a session end only when its start was reported.
// Caller holds o.dispatch.
func (o *Orchestrator) endPoll(ctx context.Context, e *domain.PollEvent) {
	switch o.polls[e.SessionID] {
	case pollAnnounced:
		delete(o.polls, e.SessionID)
		if o.hooks.OnPollEnd != nil {
			o.hooks.OnPollEnd(ctx, e)
		}
	case pollSkipped:
		delete(o.polls, e.SessionID)
	default:
		o.polls[e.SessionID] = pollEnded
	}
}

func (o *Orchestrator) pollEvent(sessionID string, attempt int, status domain.TrustlineStatus, outcome string, err error) *domain.PollEvent {
	return &domain.PollEvent{
		Timestamp:  o.clock.Now(),
		WorkflowID: o.id,
		SessionID:  sessionID,
		Attempt:    attempt,
		Status:     status,
		Outcome:    outcome,
		Err:        err,
	}
}

// call runs one collaborator call inside a span, bounded by the call timeout.
func (o *Orchestrator) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if o.callTimeout > 0 && op != OpSign {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "mintline."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("workflow.id", o.id)),
	)
	start := o.clock.Now()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	if o.hooks.OnCall != nil {
		o.hooks.OnCall(ctx, &domain.CallEvent{
			Timestamp:  o.clock.Now(),
			WorkflowID: o.id,
			Operation:  op,
			Duration:   o.clock.Since(start),
			Err:        err,
		})
	}
	return err
}

// finish maps an entry-action result onto the public return values.
func (o *Orchestrator) finish(err error) (*domain.WorkflowState, error) {
	return o.Snapshot(), err
}
