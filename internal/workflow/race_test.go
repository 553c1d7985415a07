package workflow

import (
	"context"
	"testing"

	"github.com/aretw0/mintline/internal/poller"
	"github.com/aretw0/mintline/pkg/adapters/memory"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReset_LatePollSuccessIsIgnored(t *testing.T) {
	issuer := memory.NewIssuer(memory.WithConfirmAfter(-1))
	o := New("wf-race", issuer, memory.NewSigner(), WithClock(clock.NewMock()))
	t.Cleanup(o.Close)
	ctx := context.Background()

	_, err := o.Start(ctx, domain.IssuanceRequest{
		Creator:     "GCREATOR",
		AssetCode:   "ABC",
		DisplayName: "Alpha",
		TotalSupply: "1000000",
		FeeBps:      1000,
	})
	require.NoError(t, err)

	o.mu.Lock()
	stale := o.session.ID()
	o.mu.Unlock()

	after := o.Reset(ctx)

	// A check that was in flight when reset ran resolves now.
	o.onPollResult(poller.Result{
		SessionID:      stale,
		Outcome:        poller.OutcomeConfirmed,
		TrustlineTxRef: "late-trustline",
		Attempts:       1,
	})

	got := o.Snapshot()
	assert.Equal(t, after, got)
	assert.Equal(t, domain.StageIdle, got.Stage)
	assert.Empty(t, got.TrustlineTxRef)

	// Same after a new workflow started polling with a fresh session.
	_, err = o.Start(ctx, domain.IssuanceRequest{
		Creator:     "GCREATOR",
		AssetCode:   "XYZ",
		DisplayName: "Xylophone",
		TotalSupply: "10",
		FeeBps:      500,
	})
	require.NoError(t, err)

	o.onPollResult(poller.Result{SessionID: stale, Outcome: poller.OutcomeConfirmed, TrustlineTxRef: "late-trustline"})
	got = o.Snapshot()
	assert.Equal(t, domain.StageWaitingForTrustline, got.Stage)
	assert.Empty(t, got.TrustlineTxRef)
	assert.True(t, o.Polling())
}
