package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/aretw0/mintline/internal/presentation/tui"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(code string) domain.IssuanceRequest {
	return domain.IssuanceRequest{
		Creator:     "GCREATOR",
		AssetCode:   code,
		DisplayName: "Test asset",
		TotalSupply: "1000",
		FeeBps:      1000,
	}
}

func TestIssue_RunsToSuccess(t *testing.T) {
	app, _ := build(t, testConfig(t))
	var out bytes.Buffer

	state, err := Issue(context.Background(), app.Service, tui.NewPrinter(&out), IssueOptions{
		Request:       request("SONG"),
		WatchInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StageSuccess, state.Stage)
	require.NotNil(t, state.Split)
	assert.Equal(t, "900", state.Split.CreatorShare)
	assert.Equal(t, "100", state.Split.PlatformShare)

	text := out.String()
	assert.Contains(t, text, "WAITING_FOR_TRUSTLINE")
	assert.Contains(t, text, "READY_TO_SIGN")
	assert.Contains(t, text, "SUCCESS")
}

func TestIssue_ValidationError(t *testing.T) {
	app, _ := build(t, testConfig(t))
	var out bytes.Buffer

	req := request("TOOLONGASSETCODE")
	req.TotalSupply = "-1"
	_, err := Issue(context.Background(), app.Service, tui.NewPrinter(&out), IssueOptions{Request: req})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, out.String(), "assetCode")
	assert.Contains(t, out.String(), "totalSupply")

	states, err := app.Service.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestWatch_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Poll.Interval = time.Hour
	cfg.Poll.Timeout = 2 * time.Hour
	app, _ := build(t, cfg)

	ctx := context.Background()
	state, err := app.Service.Start(ctx, request("WAIT"))
	require.NoError(t, err)
	require.Equal(t, domain.StageWaitingForTrustline, state.Stage)

	wctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	seen := 0
	state, err = Watch(wctx, app.Service, state.ID, 5*time.Millisecond, func(*domain.WorkflowState) { seen++ })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StageWaitingForTrustline, state.Stage)
	assert.Equal(t, 1, seen)
}

func TestPrintGraph(t *testing.T) {
	app, _ := build(t, testConfig(t))
	ctx := context.Background()

	var plain bytes.Buffer
	require.NoError(t, PrintGraph(ctx, app.Service, &plain, ""))
	assert.Contains(t, plain.String(), "graph TD")
	assert.NotContains(t, plain.String(), "classDef")

	state, err := Issue(ctx, app.Service, tui.NewPrinter(&bytes.Buffer{}), IssueOptions{
		Request:       request("GRAF"),
		WatchInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	var highlighted bytes.Buffer
	require.NoError(t, PrintGraph(ctx, app.Service, &highlighted, state.ID))
	assert.Contains(t, highlighted.String(), "class success current;")

	assert.ErrorIs(t, PrintGraph(ctx, app.Service, &bytes.Buffer{}, "missing"), domain.ErrWorkflowNotFound)
}

func TestContinue(t *testing.T) {
	cfg := testConfig(t)
	cfg.Poll.Interval = 5 * time.Millisecond
	app, _ := build(t, cfg)
	ctx := context.Background()

	state, err := app.Service.Start(ctx, request("CONT"))
	require.NoError(t, err)
	state, err = Watch(ctx, app.Service, state.ID, 5*time.Millisecond, nil)
	require.NoError(t, err)
	require.Equal(t, domain.StageReadyToSign, state.Stage)

	var out bytes.Buffer
	state, err = Continue(ctx, app.Service, tui.NewPrinter(&out), state.ID, ActionSign)
	require.NoError(t, err)
	assert.Equal(t, domain.StageSuccess, state.Stage)
	assert.Contains(t, out.String(), "SUCCESS")

	_, err = Continue(ctx, app.Service, tui.NewPrinter(&out), state.ID, ActionRetry)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	state, err = Continue(ctx, app.Service, tui.NewPrinter(&out), state.ID, ActionReset)
	require.NoError(t, err)
	assert.Equal(t, domain.StageIdle, state.Stage)

	_, err = Continue(ctx, app.Service, tui.NewPrinter(&out), state.ID, Action("launch"))
	assert.ErrorContains(t, err, "unknown action")
}
