// Package tui renders workflow snapshots for terminals.
package tui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aretw0/mintline/pkg/domain"
	"github.com/muesli/termenv"
)

// Printer writes styled workflow output. Styling degrades to plain text when
// w is not a terminal.
type Printer struct {
	w   io.Writer
	out *termenv.Output
}

// NewPrinter creates a Printer over w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, out: termenv.NewOutput(w)}
}

var stageColors = map[domain.Stage]string{
	domain.StageIdle:                "#9ca3af",
	domain.StagePreparing:           "#60a5fa",
	domain.StageWaitingForTrustline: "#fbbf24",
	domain.StageReadyToSign:         "#a78bfa",
	domain.StageSubmitting:          "#60a5fa",
	domain.StageDistributing:        "#60a5fa",
	domain.StageSuccess:             "#34d399",
	domain.StageError:               "#f87171",
}

// Stage returns the stage name colored by progress.
func (p *Printer) Stage(stage domain.Stage) string {
	return p.out.String(stage.String()).Foreground(p.out.Color(stageColors[stage])).Bold().String()
}

// Info prints a status line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.out.String(">>>").Faint(), fmt.Sprintf(format, args...))
}

// Errorf prints an error line.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintln(p.w, p.out.String("error: "+fmt.Sprintf(format, args...)).Foreground(p.out.Color("#f87171")))
}

// Summary prints every recorded field of a workflow.
func (p *Printer) Summary(s *domain.WorkflowState) {
	tw := tabwriter.NewWriter(p.w, 0, 2, 2, ' ', 0)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "  %s\t%s\n", p.out.String(label).Faint(), value)
		}
	}

	fmt.Fprintf(tw, "Workflow %s\t%s\n", s.ID, p.Stage(s.Stage))
	if r := s.Request; r != nil {
		row("asset", fmt.Sprintf("%s (%s)", r.AssetCode, r.DisplayName))
		row("creator", r.Creator)
		row("supply", r.TotalSupply)
		row("fee", fmt.Sprintf("%d bps", r.FeeBps))
	}
	row("distribution account", s.DistributionAccount)
	row("trustline tx", s.TrustlineTxRef)
	row("emission tx", s.EmissionTxRef)
	row("distribution tx", s.DistributionTxRef)
	if s.Split != nil {
		row("creator share", s.Split.CreatorShare)
		row("platform share", s.Split.PlatformShare)
	}
	row("transaction", s.TransactionURL)
	row("asset page", s.AssetURL)
	if s.Stage == domain.StageError {
		row("failed stage", s.FailedStage.String())
		row("error kind", string(s.ErrorKind))
	}
	if s.Error != "" {
		row("error", p.out.String(s.Error).Foreground(p.out.Color("#f87171")).String())
	}
	if len(s.History) > 0 {
		names := make([]string, len(s.History))
		for i, st := range s.History {
			names[i] = st.String()
		}
		row("history", strings.Join(names, " > "))
	}
	if !s.UpdatedAt.IsZero() {
		row("updated", s.UpdatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

// Table prints one line per workflow.
func (p *Printer) Table(states []*domain.WorkflowState) {
	tw := tabwriter.NewWriter(p.w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tASSET\tUPDATED")
	for _, s := range states {
		asset := "-"
		if s.Request != nil {
			asset = s.Request.AssetCode
		}
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = s.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, p.Stage(s.Stage), asset, updated)
	}
	_ = tw.Flush()
}
