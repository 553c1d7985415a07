package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	// MaxAssetCodeLength is the longest asset code the ledger accepts.
	MaxAssetCodeLength = 12

	// MaxFeeBps caps the platform fee at 20%.
	MaxFeeBps = 2000

	// AssetDecimals is the precision of ledger amounts.
	AssetDecimals = 7
)

// MaxSupply is the largest amount representable on the ledger (int64 stroops).
var MaxSupply = decimal.RequireFromString("922337203685.4775807")

var (
	assetCodePattern = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)
	supplyPattern    = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,7})?$`)
)

// IssuanceRequest is what the creator submitted. It is never mutated after Start.
type IssuanceRequest struct {
	Creator     string `json:"creator" validate:"required,alphanum,max=69"`
	AssetCode   string `json:"assetCode" validate:"required,assetcode"`
	DisplayName string `json:"displayName" validate:"required,max=64"`
	TotalSupply string `json:"totalSupply" validate:"required,supply"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	FeeBps      int    `json:"feeBps" validate:"gte=0,lte=2000"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("assetcode", func(fl validator.FieldLevel) bool {
			return assetCodePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("supply", func(fl validator.FieldLevel) bool {
			_, err := ParseSupply(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

var tagMessages = map[string]string{
	"required":  "is required",
	"alphanum":  "must be alphanumeric",
	"assetcode": fmt.Sprintf("must be 1-%d uppercase letters or digits", MaxAssetCodeLength),
	"supply":    fmt.Sprintf("must be a positive number with at most %d decimals", AssetDecimals),
	"gte":       fmt.Sprintf("must be between 0 and %d basis points", MaxFeeBps),
	"lte":       fmt.Sprintf("must be between 0 and %d basis points", MaxFeeBps),
}

// Validate checks the request shape without contacting any collaborator.
// It returns a *ValidationError describing every offending field.
func (r IssuanceRequest) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
		}
		if fe.Tag() == "max" {
			msg = fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		fields[fe.Field()] = msg
	}
	return &ValidationError{Fields: fields}
}

// Supply returns the parsed total supply. The request must be valid.
func (r IssuanceRequest) Supply() decimal.Decimal {
	d, _ := ParseSupply(r.TotalSupply)
	return d
}

// ParseSupply parses a positive ledger amount.
func ParseSupply(raw string) (decimal.Decimal, error) {
	if !supplyPattern.MatchString(raw) {
		return decimal.Zero, fmt.Errorf("malformed amount %q", raw)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %q must be positive", raw)
	}
	if d.GreaterThan(MaxSupply) {
		return decimal.Zero, fmt.Errorf("amount %q exceeds ledger maximum", raw)
	}
	return d, nil
}

// NormalizeAssetCode uppercases raw input and drops characters the ledger rejects.
func NormalizeAssetCode(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == MaxAssetCodeLength {
			break
		}
	}
	return b.String()
}

// FeeTier is a named platform fee preset offered to creators.
type FeeTier string

const (
	TierBasic   FeeTier = "BASIC"
	TierPremium FeeTier = "PREMIUM"
	TierVIP     FeeTier = "VIP"
)

// DefaultTier is preselected for new tokens.
const DefaultTier = TierPremium

var tierBps = map[FeeTier]int{
	TierBasic:   500,
	TierPremium: 1000,
	TierVIP:     1500,
}

// Bps returns the fee of the tier in basis points.
func (t FeeTier) Bps() int {
	return tierBps[t]
}

// ParseFeeTier resolves a tier name, case-insensitively.
func ParseFeeTier(name string) (FeeTier, error) {
	tier := FeeTier(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := tierBps[tier]; !ok {
		return "", fmt.Errorf("unknown fee tier %q", name)
	}
	return tier, nil
}
