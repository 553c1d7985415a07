/*
Package mintline orchestrates the issuance of a fungible asset on behalf of a
creator.

A workflow moves through a fixed sequence of stages:

	IDLE -> PREPARING -> [WAITING_FOR_TRUSTLINE] -> READY_TO_SIGN
	     -> SUBMITTING -> DISTRIBUTING -> SUCCESS

Any stage after IDLE may fail into ERROR, from which Retry resumes the failed
stage without recreating artifacts the backend already produced. The issuance
backend (ports.IssuanceService) provisions the distribution account, builds the
emission and splits the supply; the creator's signing agent (ports.Signer)
signs the emission. Keys never pass through mintline.

# Usage

	svc := mintline.New(issuer, signer,
		mintline.WithStore(file.New("")),
		mintline.WithNetworkID(passphrase),
	)
	defer svc.Close()

	state, err := svc.Start(ctx, domain.IssuanceRequest{
		Creator:     "G...",
		AssetCode:   "SONG",
		DisplayName: "Song Token",
		TotalSupply: "1000000",
		FeeBps:      domain.TierPremium.Bps(),
	})
	if err != nil {
		return err // invalid request
	}

	// Start returns while the trustline is still pending; poll Get until
	// the workflow is READY_TO_SIGN, then:
	state, err = svc.SignAndSubmit(ctx, state.ID)

Collaborator failures do not surface as errors from Start, SignAndSubmit or
Retry: they put the workflow in ERROR with a classified domain.ErrorKind.
*/
package mintline
