package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/mintline/pkg/domain"
	"github.com/google/uuid"
)

// Operation names accepted by Issuer.FailNext and Issuer.Calls.
const (
	OpPrepare      = "prepare"
	OpCheckStatus  = "check_status"
	OpEmission     = "emission_payload"
	OpSubmit       = "submit_signed"
	OpDistribution = "execute_distribution"
)

// SignedPrefix marks payloads produced by Signer.
const SignedPrefix = "signed:"

type token struct {
	params       domain.PrepareParams
	account      string
	checks       int
	trustlineRef string
	emissionRef  string
	distRef      string
	split        domain.SplitAmounts
}

// Issuer simulates the issuance backend and the ledger behind it.
// The trustline is confirmed after a configurable number of status checks.
// Safe for concurrent use.
type Issuer struct {
	mu            sync.Mutex
	confirmAfter  int
	syncTrustline bool
	failTrustline bool
	tokens        map[string]*token
	calls         map[string]int
	faults        map[string]error
}

// IssuerOption configures the simulated backend.
type IssuerOption func(*Issuer)

// WithConfirmAfter makes the first n status checks report pending. A negative n never confirms.
func WithConfirmAfter(n int) IssuerOption {
	return func(i *Issuer) {
		i.confirmAfter = n
	}
}

// WithSyncTrustline makes Prepare report the trustline as already created.
func WithSyncTrustline() IssuerOption {
	return func(i *Issuer) {
		i.syncTrustline = true
	}
}

// WithTrustlineFailure makes status checks report a terminal failure.
func WithTrustlineFailure() IssuerOption {
	return func(i *Issuer) {
		i.failTrustline = true
	}
}

// NewIssuer creates a simulated backend.
func NewIssuer(opts ...IssuerOption) *Issuer {
	i := &Issuer{
		tokens: make(map[string]*token),
		calls:  make(map[string]int),
		faults: make(map[string]error),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// FailNext makes the next call of op return err.
func (i *Issuer) FailNext(op string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.faults[op] = err
}

// Calls returns how many times op was invoked.
func (i *Issuer) Calls(op string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[op]
}

// enter records the call and pops an injected fault. Caller holds i.mu.
func (i *Issuer) enter(op string) error {
	i.calls[op]++
	if err, ok := i.faults[op]; ok {
		delete(i.faults, op)
		return err
	}
	return nil
}

func tokenKey(assetCode, issuer string) string {
	return assetCode + ":" + issuer
}

func (i *Issuer) lookup(assetCode, issuer string) (*token, error) {
	tok, ok := i.tokens[tokenKey(assetCode, issuer)]
	if !ok {
		return nil, fmt.Errorf("token %s issued by %s not found", assetCode, issuer)
	}
	return tok, nil
}

// Prepare provisions a distribution account. Preparing the same token twice returns the same account.
func (i *Issuer) Prepare(ctx context.Context, params domain.PrepareParams) (domain.PrepareResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.enter(OpPrepare); err != nil {
		return domain.PrepareResult{}, err
	}

	key := tokenKey(params.AssetCode, params.Creator)
	tok, ok := i.tokens[key]
	if !ok {
		tok = &token{params: params, account: newAccount()}
		i.tokens[key] = tok
	}

	result := domain.PrepareResult{DistributionAccount: tok.account}
	if i.syncTrustline && !i.failTrustline {
		if tok.trustlineRef == "" {
			tok.trustlineRef = newTxRef()
		}
		result.TrustlineTxRef = tok.trustlineRef
	} else {
		result.Warning = "trustline creation pending"
	}
	return result, nil
}

// CheckStatus reports the simulated trustline state.
func (i *Issuer) CheckStatus(ctx context.Context, assetCode, issuer string) (domain.StatusResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.enter(OpCheckStatus); err != nil {
		return domain.StatusResult{}, err
	}
	tok, err := i.lookup(assetCode, issuer)
	if err != nil {
		return domain.StatusResult{}, err
	}

	if i.failTrustline {
		return domain.StatusResult{Status: domain.TrustlineFailed, Message: "trustline transaction failed"}, nil
	}

	tok.checks++
	if tok.trustlineRef == "" && (i.confirmAfter < 0 || tok.checks <= i.confirmAfter) {
		return domain.StatusResult{Status: domain.TrustlinePending}, nil
	}
	if tok.trustlineRef == "" {
		tok.trustlineRef = newTxRef()
	}
	return domain.StatusResult{Status: domain.TrustlineConfirmed, TrustlineTxRef: tok.trustlineRef}, nil
}

// GetEmissionPayload builds the unsigned emission for a token whose trustline exists.
func (i *Issuer) GetEmissionPayload(ctx context.Context, issuer, assetCode, totalSupply string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.enter(OpEmission); err != nil {
		return "", err
	}
	tok, err := i.lookup(assetCode, issuer)
	if err != nil {
		return "", err
	}
	if tok.trustlineRef == "" {
		return "", errors.New("trustline not ready")
	}
	return fmt.Sprintf("emission/%s/%s/%s/%s", assetCode, issuer, tok.account, totalSupply), nil
}

// SubmitSigned accepts payloads produced by Signer.
func (i *Issuer) SubmitSigned(ctx context.Context, signedPayload, assetCode, issuer string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.enter(OpSubmit); err != nil {
		return "", err
	}
	tok, err := i.lookup(assetCode, issuer)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(signedPayload, SignedPrefix) {
		return "", errors.New("transaction is not signed by the issuer")
	}
	if tok.emissionRef == "" {
		tok.emissionRef = newTxRef()
	}
	return tok.emissionRef, nil
}

// ExecuteDistribution splits the minted supply using the fee chosen at prepare time.
func (i *Issuer) ExecuteDistribution(ctx context.Context, issuer, assetCode string) (domain.DistributionResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.enter(OpDistribution); err != nil {
		return domain.DistributionResult{}, err
	}
	tok, err := i.lookup(assetCode, issuer)
	if err != nil {
		return domain.DistributionResult{}, err
	}
	if tok.emissionRef == "" {
		return domain.DistributionResult{}, errors.New("asset has not been emitted")
	}

	if tok.distRef == "" {
		split, err := domain.ComputeSplit(tok.params.TotalSupply, tok.params.FeeBps)
		if err != nil {
			return domain.DistributionResult{}, err
		}
		tok.split = split
		tok.distRef = newTxRef()
	}

	return domain.DistributionResult{
		DistributionTxRef: tok.distRef,
		CreatorShare:      tok.split.CreatorShare,
		PlatformShare:     tok.split.PlatformShare,
		Message:           "creator share kept in distribution account " + tok.account,
	}, nil
}

func newTxRef() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func newAccount() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", ""))
	return "G" + raw[:55]
}

// Signer is an in-memory signing agent that signs everything unless told to decline.
type Signer struct {
	mu          sync.Mutex
	decline     bool
	unavailable bool
	calls       int
}

// NewSigner creates a signer that accepts every payload.
func NewSigner() *Signer {
	return &Signer{}
}

// Decline makes subsequent Sign calls report a user rejection.
func (s *Signer) Decline(decline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decline = decline
}

// Unavailable makes subsequent Sign calls report an unreachable agent.
func (s *Signer) Unavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
}

// Calls returns how many times Sign was invoked.
func (s *Signer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Sign prefixes the payload with SignedPrefix.
func (s *Signer) Sign(ctx context.Context, unsignedPayload, networkID, signerIdentity string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	switch {
	case s.unavailable:
		return "", fmt.Errorf("%w: wallet extension not detected", domain.ErrSignerUnavailable)
	case s.decline:
		return "", fmt.Errorf("%w: user declined the request", domain.ErrSignatureRejected)
	}
	return SignedPrefix + unsignedPayload, nil
}
