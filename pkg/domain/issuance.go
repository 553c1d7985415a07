package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PrepareParams asks the issuance service to provision a distribution account
// and start the trustline creation.
type PrepareParams struct {
	Creator     string
	AssetCode   string
	DisplayName string
	TotalSupply string
	FeeBps      int
	Description string
}

// PrepareParamsFrom maps a request onto the prepare call.
func PrepareParamsFrom(req IssuanceRequest) PrepareParams {
	return PrepareParams{
		Creator:     req.Creator,
		AssetCode:   req.AssetCode,
		DisplayName: req.DisplayName,
		TotalSupply: req.TotalSupply,
		FeeBps:      req.FeeBps,
		Description: req.Description,
	}
}

// PrepareResult carries the provisioned account. TrustlineTxRef is set only
// when the backend observed the trustline synchronously.
type PrepareResult struct {
	DistributionAccount string
	TrustlineTxRef      string
	Warning             string
}

// TrustlineStatus is the backend's view of the trustline.
type TrustlineStatus string

const (
	TrustlinePending   TrustlineStatus = "pending"
	TrustlineConfirmed TrustlineStatus = "confirmed"
	TrustlineFailed    TrustlineStatus = "failed"
)

// StatusResult is the answer to a trustline status check.
type StatusResult struct {
	Status         TrustlineStatus
	TrustlineTxRef string
	Message        string
}

// DistributionResult describes the split executed by the backend.
type DistributionResult struct {
	DistributionTxRef string
	CreatorShare      string
	PlatformShare     string
	TransactionURL    string
	AssetURL          string
	Message           string
}

// SplitAmounts is how the minted supply was divided. The creator share stays
// in the distribution account because an issuer cannot hold its own asset.
type SplitAmounts struct {
	CreatorShare  string `json:"creatorShare"`
	PlatformShare string `json:"platformShare"`
}

// ComputeSplit divides total by feeBps. The platform share is truncated to the
// asset precision and the creator receives the remainder, so the shares always
// add up to total.
func ComputeSplit(total string, feeBps int) (SplitAmounts, error) {
	supply, err := ParseSupply(total)
	if err != nil {
		return SplitAmounts{}, err
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return SplitAmounts{}, fmt.Errorf("fee %d bps out of range", feeBps)
	}

	platform := supply.Mul(decimal.NewFromInt(int64(feeBps))).
		Div(decimal.NewFromInt(10000)).
		Truncate(AssetDecimals)
	creator := supply.Sub(platform)

	return SplitAmounts{
		CreatorShare:  creator.String(),
		PlatformShare: platform.String(),
	}, nil
}

// Verify checks that both shares are well-formed and add up to total.
func (s SplitAmounts) Verify(total string) error {
	supply, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("total supply %q: %w", total, err)
	}
	creator, err := decimal.NewFromString(s.CreatorShare)
	if err != nil {
		return fmt.Errorf("creator share %q: %w", s.CreatorShare, err)
	}
	platform, err := decimal.NewFromString(s.PlatformShare)
	if err != nil {
		return fmt.Errorf("platform share %q: %w", s.PlatformShare, err)
	}
	if creator.IsNegative() || platform.IsNegative() {
		return fmt.Errorf("negative share in split %s/%s", s.CreatorShare, s.PlatformShare)
	}

	sum := creator.Add(platform).Round(AssetDecimals)
	if !sum.Equal(supply.Round(AssetDecimals)) {
		return fmt.Errorf("split %s + %s does not add up to %s", s.CreatorShare, s.PlatformShare, total)
	}
	return nil
}
