package tui_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/aretw0/mintline/internal/presentation/tui"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_SummaryPlainText(t *testing.T) {
	var buf bytes.Buffer
	p := tui.NewPrinter(&buf)

	s := domain.NewWorkflowState("wf-1")
	s.Stage = domain.StageError
	s.FailedStage = domain.StageWaitingForTrustline
	s.ErrorKind = domain.KindTimeout
	s.Error = "Trustline creation timed out. Please try again."
	s.Request = &domain.IssuanceRequest{Creator: "GCREATOR", AssetCode: "SONG", DisplayName: "Song", TotalSupply: "100", FeeBps: 500}
	s.History = []domain.Stage{domain.StageIdle, domain.StagePreparing, domain.StageWaitingForTrustline, domain.StageError}
	s.UpdatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	p.Summary(s)
	out := buf.String()

	assert.NotContains(t, out, "\x1b[", "no escape codes outside a terminal")
	assert.Contains(t, out, "Workflow wf-1")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "SONG (Song)")
	assert.Contains(t, out, "500 bps")
	assert.Contains(t, out, "WAITING_FOR_TRUSTLINE")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "IDLE > PREPARING > WAITING_FOR_TRUSTLINE > ERROR")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.NotContains(t, out, "emission tx")
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := tui.NewPrinter(&buf)

	done := domain.NewWorkflowState("wf-2")
	done.Stage = domain.StageSuccess
	done.Request = &domain.IssuanceRequest{AssetCode: "ABC"}

	p.Table([]*domain.WorkflowState{domain.NewWorkflowState("wf-1"), done})
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "wf-1")
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "ABC")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "v1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
