package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/mintline"
	"github.com/aretw0/mintline/internal/presentation/graph"
	"github.com/aretw0/mintline/internal/presentation/tui"
	"github.com/aretw0/mintline/pkg/domain"
)

// ListWorkflows prints every known workflow, as a table or as JSON.
func ListWorkflows(ctx context.Context, svc *mintline.Service, w io.Writer, asJSON bool) error {
	states, err := svc.List(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(w, states)
	}
	if len(states) == 0 {
		fmt.Fprintln(w, "No workflows found.")
		return nil
	}
	tui.NewPrinter(w).Table(states)
	return nil
}

// InspectWorkflow prints one workflow.
func InspectWorkflow(ctx context.Context, svc *mintline.Service, w io.Writer, id string, asJSON bool) error {
	state, err := svc.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load workflow '%s': %w", id, err)
	}
	if asJSON {
		return writeJSON(w, state)
	}
	tui.NewPrinter(w).Summary(state)
	return nil
}

// RemoveWorkflows deletes each workflow, reporting every failure.
func RemoveWorkflows(ctx context.Context, svc *mintline.Service, w io.Writer, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := svc.Remove(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove '%s': %w", id, err))
			continue
		}
		fmt.Fprintf(w, "Removed workflow '%s'\n", id)
	}
	return errors.Join(errs...)
}

// Action is a control call resumed from the store.
type Action string

const (
	ActionSign  Action = "sign"
	ActionRetry Action = "retry"
	ActionReset Action = "reset"
)

// Continue adopts the stored workflows and applies action to id. It lets a
// workflow started by an earlier process be finished from a new one.
func Continue(ctx context.Context, svc *mintline.Service, p *tui.Printer, id string, action Action) (*domain.WorkflowState, error) {
	if _, err := svc.Resume(ctx); err != nil {
		return nil, err
	}

	var (
		state *domain.WorkflowState
		err   error
	)
	switch action {
	case ActionSign:
		state, err = svc.SignAndSubmit(ctx, id)
	case ActionRetry:
		state, err = svc.Retry(ctx, id)
		if err == nil {
			state, err = Watch(ctx, svc, id, DefaultWatchInterval, nil)
		}
	case ActionReset:
		state, err = svc.Reset(ctx, id)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return state, err
	}

	p.Summary(state)
	if state.Stage == domain.StageError {
		return state, fmt.Errorf("%w: %s", ErrWorkflowFailed, state.Error)
	}
	return state, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintGraph writes the stage graph as Mermaid, highlighting the path of
// workflow id when one is given.
func PrintGraph(ctx context.Context, svc *mintline.Service, w io.Writer, id string) error {
	var overlay *graph.GraphOverlay
	if id != "" {
		state, err := svc.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load workflow '%s': %w", id, err)
		}
		overlay = graph.OverlayFor(state)
	}
	_, err := io.WriteString(w, graph.GenerateMermaid(domain.Edges(), overlay))
	return err
}
