package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/aretw0/mintline"
	"github.com/aretw0/mintline/internal/presentation/tui"
	"github.com/aretw0/mintline/pkg/domain"
)

// DefaultWatchInterval is how often Issue refreshes a workflow that is still
// preparing or waiting for its trustline.
const DefaultWatchInterval = 500 * time.Millisecond

// ErrWorkflowFailed is returned when a workflow ends in ERROR.
var ErrWorkflowFailed = errors.New("workflow failed")

// IssueOptions configures an interactive issuance.
type IssueOptions struct {
	Request       domain.IssuanceRequest
	WatchInterval time.Duration
}

// Issue runs one issuance from start to finish in the foreground: it starts
// the workflow, waits for the trustline, asks the signer for the emission and
// prints the outcome.
func Issue(ctx context.Context, svc *mintline.Service, p *tui.Printer, opts IssueOptions) (*domain.WorkflowState, error) {
	if opts.WatchInterval <= 0 {
		opts.WatchInterval = DefaultWatchInterval
	}

	state, err := svc.Start(ctx, opts.Request)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for _, field := range slices.Sorted(maps.Keys(verr.Fields)) {
				p.Errorf("%s: %s", field, verr.Fields[field])
			}
		}
		return state, err
	}
	p.Info("Workflow %s started for %s", state.ID, opts.Request.AssetCode)

	state, err = Watch(ctx, svc, state.ID, opts.WatchInterval, func(s *domain.WorkflowState) {
		p.Info("%s", p.Stage(s.Stage))
	})
	if err != nil {
		return state, err
	}
	if state.Stage == domain.StageError {
		p.Summary(state)
		return state, fmt.Errorf("%w: %s", ErrWorkflowFailed, state.Error)
	}

	p.Info("Trustline ready, requesting the emission signature")
	state, err = svc.SignAndSubmit(ctx, state.ID)
	if err != nil {
		return state, err
	}
	p.Summary(state)
	if state.Stage == domain.StageError {
		return state, fmt.Errorf("%w: %s", ErrWorkflowFailed, state.Error)
	}
	return state, nil
}

// Watch refreshes a workflow until it leaves PREPARING and
// WAITING_FOR_TRUSTLINE. onChange sees every stage it observes, including the
// first.
func Watch(ctx context.Context, svc *mintline.Service, id string, interval time.Duration, onChange func(*domain.WorkflowState)) (*domain.WorkflowState, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := domain.Stage(-1)
	for {
		state, err := svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if state.Stage != last {
			last = state.Stage
			if onChange != nil {
				onChange(state)
			}
		}
		if state.Stage != domain.StagePreparing && state.Stage != domain.StageWaitingForTrustline {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-ticker.C:
		}
	}
}
