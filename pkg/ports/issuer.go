package ports

import (
	"context"

	"github.com/aretw0/mintline/pkg/domain"
)

// IssuanceService is the backend issuance API.
// Implementations return domain.ErrTransient (wrapped) when the request never reached the backend,
// and an error carrying the backend's own message otherwise.
type IssuanceService interface {
	// Prepare provisions the distribution account and starts the trustline creation.
	Prepare(ctx context.Context, params domain.PrepareParams) (domain.PrepareResult, error)

	// CheckStatus reports whether the trustline for assetCode issued by issuer exists.
	CheckStatus(ctx context.Context, assetCode, issuer string) (domain.StatusResult, error)

	// GetEmissionPayload returns the unsigned emission transaction for the issuer to sign.
	GetEmissionPayload(ctx context.Context, issuer, assetCode, totalSupply string) (string, error)

	// SubmitSigned submits the signed emission and returns its transaction reference.
	SubmitSigned(ctx context.Context, signedPayload, assetCode, issuer string) (string, error)

	// ExecuteDistribution moves the platform share to the treasury.
	ExecuteDistribution(ctx context.Context, issuer, assetCode string) (domain.DistributionResult, error)
}
