package mintline_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/mintline"
	"github.com/aretw0/mintline/pkg/adapters/memory"
	"github.com/aretw0/mintline/pkg/domain"
)

// ExampleNew runs one issuance against the simulated backend. The trustline
// is created during prepare, so the workflow is ready to sign right away.
func ExampleNew() {
	issuer := memory.NewIssuer(memory.WithSyncTrustline())
	svc := mintline.New(issuer, memory.NewSigner())
	defer svc.Close()

	ctx := context.Background()
	state, err := svc.Start(ctx, domain.IssuanceRequest{
		Creator:     "GCREATOR",
		AssetCode:   "SONG",
		DisplayName: "My Song",
		TotalSupply: "1000000",
		FeeBps:      domain.TierPremium.Bps(),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(state.Stage)

	state, err = svc.SignAndSubmit(ctx, state.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(state.Stage)
	fmt.Println(state.Split.CreatorShare, state.Split.PlatformShare)

	// Output:
	// READY_TO_SIGN
	// SUCCESS
	// 900000 100000
}

// ExampleService_Retry shows a failed submission being retried. The signed
// emission is kept, so the signer is not asked twice.
func ExampleService_Retry() {
	issuer := memory.NewIssuer(memory.WithSyncTrustline())
	signer := memory.NewSigner()
	svc := mintline.New(issuer, signer)
	defer svc.Close()

	ctx := context.Background()
	state, err := svc.Start(ctx, domain.IssuanceRequest{
		Creator:     "GCREATOR",
		AssetCode:   "ALBUM",
		DisplayName: "Album",
		TotalSupply: "500",
		FeeBps:      domain.TierBasic.Bps(),
	})
	if err != nil {
		log.Fatal(err)
	}

	issuer.FailNext(memory.OpSubmit, fmt.Errorf("%w: connection reset", domain.ErrTransient))
	state, err = svc.SignAndSubmit(ctx, state.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(state.Stage, state.FailedStage, state.ErrorKind)

	state, err = svc.Retry(ctx, state.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(state.Stage, signer.Calls())

	// Output:
	// ERROR SUBMITTING transient_network
	// SUCCESS 1
}
