// Package issuer is the HTTP client of the issuance backend. Each operation is a
// JSON POST to a named backend function.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Backend function names.
const (
	FnPrepare      = "prepare-token"
	FnCheckStatus  = "check-token-status"
	FnEmission     = "get-emission-xdr"
	FnSubmit       = "submit-signed-transaction"
	FnDistribution = "execute-distribution"
)

const maxResponseBytes = 1 << 20

// APIError is a failure reported by the backend. Message is shown to users as is.
type APIError struct {
	Function   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Unwrap marks gateway failures as transient; the backend never saw those requests.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return domain.ErrTransient
	}
	return nil
}

// Client implements ports.IssuanceService over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sends key as bearer token and apikey header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the functions under baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   2 * time.Minute,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type prepareRequest struct {
	ArtistPublicKey string `json:"artistPublicKey"`
	TokenCode       string `json:"tokenCode"`
	TokenName       string `json:"tokenName"`
	TotalSupply     string `json:"totalSupply"`
	PlatformFeeBps  int    `json:"platformFeeBps"`
	Description     string `json:"description,omitempty"`
}

type prepareResponse struct {
	DistributionAccount string `json:"distributionAccount"`
	TrustlineTxHash     string `json:"trustlineTxHash"`
	Warning             string `json:"warning"`
}

// Prepare calls prepare-token.
func (c *Client) Prepare(ctx context.Context, params domain.PrepareParams) (domain.PrepareResult, error) {
	var resp prepareResponse
	err := c.invoke(ctx, FnPrepare, prepareRequest{
		ArtistPublicKey: params.Creator,
		TokenCode:       params.AssetCode,
		TokenName:       params.DisplayName,
		TotalSupply:     params.TotalSupply,
		PlatformFeeBps:  params.FeeBps,
		Description:     params.Description,
	}, &resp)
	if err != nil {
		return domain.PrepareResult{}, err
	}
	if resp.DistributionAccount == "" {
		return domain.PrepareResult{}, &APIError{Function: FnPrepare, StatusCode: http.StatusOK, Message: "Failed to prepare token"}
	}
	return domain.PrepareResult{
		DistributionAccount: resp.DistributionAccount,
		TrustlineTxRef:      resp.TrustlineTxHash,
		Warning:             resp.Warning,
	}, nil
}

type tokenRequest struct {
	ArtistPublicKey string `json:"artistPublicKey"`
	TokenCode       string `json:"tokenCode"`
}

type statusResponse struct {
	Status          string `json:"status"`
	TrustlineTxHash string `json:"trustlineTxHash"`
	Message         string `json:"message"`
}

// CheckStatus calls check-token-status.
func (c *Client) CheckStatus(ctx context.Context, assetCode, issuer string) (domain.StatusResult, error) {
	var resp statusResponse
	if err := c.invoke(ctx, FnCheckStatus, tokenRequest{ArtistPublicKey: issuer, TokenCode: assetCode}, &resp); err != nil {
		return domain.StatusResult{}, err
	}

	result := domain.StatusResult{TrustlineTxRef: resp.TrustlineTxHash, Message: resp.Message}
	switch resp.Status {
	case "trustline_created", "confirmed":
		result.Status = domain.TrustlineConfirmed
	case "failed":
		result.Status = domain.TrustlineFailed
	default:
		result.Status = domain.TrustlinePending
	}
	return result, nil
}

type emissionRequest struct {
	ArtistPublicKey string `json:"artistPublicKey"`
	TokenCode       string `json:"tokenCode"`
	TotalSupply     string `json:"totalSupply"`
}

type emissionResponse struct {
	XDR string `json:"xdr"`
}

// GetEmissionPayload calls get-emission-xdr.
func (c *Client) GetEmissionPayload(ctx context.Context, issuer, assetCode, totalSupply string) (string, error) {
	var resp emissionResponse
	err := c.invoke(ctx, FnEmission, emissionRequest{
		ArtistPublicKey: issuer,
		TokenCode:       assetCode,
		TotalSupply:     totalSupply,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.XDR == "" {
		return "", &APIError{Function: FnEmission, StatusCode: http.StatusOK, Message: "Backend returned an empty emission transaction"}
	}
	return resp.XDR, nil
}

type submitRequest struct {
	SignedXDR       string `json:"signedXdr"`
	TokenCode       string `json:"tokenCode"`
	ArtistPublicKey string `json:"artistPublicKey"`
}

type submitResponse struct {
	TxHash string `json:"txHash"`
}

// SubmitSigned calls submit-signed-transaction.
func (c *Client) SubmitSigned(ctx context.Context, signedPayload, assetCode, issuer string) (string, error) {
	var resp submitResponse
	err := c.invoke(ctx, FnSubmit, submitRequest{
		SignedXDR:       signedPayload,
		TokenCode:       assetCode,
		ArtistPublicKey: issuer,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.TxHash == "" {
		return "", &APIError{Function: FnSubmit, StatusCode: http.StatusOK, Message: "Backend did not return a transaction hash"}
	}
	return resp.TxHash, nil
}

type distributionResponse struct {
	TransactionHash string          `json:"transactionHash"`
	ArtistAmount    decimal.Decimal `json:"artistAmount"`
	PlatformAmount  decimal.Decimal `json:"platformAmount"`
	TransactionURL  string          `json:"transactionUrl"`
	AssetURL        string          `json:"assetUrl"`
	Message         string          `json:"message"`
}

// ExecuteDistribution calls execute-distribution. Amounts may arrive as JSON numbers or strings.
func (c *Client) ExecuteDistribution(ctx context.Context, issuer, assetCode string) (domain.DistributionResult, error) {
	var resp distributionResponse
	if err := c.invoke(ctx, FnDistribution, tokenRequest{ArtistPublicKey: issuer, TokenCode: assetCode}, &resp); err != nil {
		return domain.DistributionResult{}, err
	}
	return domain.DistributionResult{
		DistributionTxRef: resp.TransactionHash,
		CreatorShare:      resp.ArtistAmount.String(),
		PlatformShare:     resp.PlatformAmount.String(),
		TransactionURL:    resp.TransactionURL,
		AssetURL:          resp.AssetURL,
		Message:           resp.Message,
	}, nil
}

type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// message extracts {"error": "..."}, {"error": {"message": "..."}} or {"message": "..."}.
func (b errorBody) message() string {
	if len(b.Error) > 0 {
		var s string
		if json.Unmarshal(b.Error, &s) == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return b.Message
}

func (c *Client) invoke(ctx context.Context, fn string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransient, fn, err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", fn, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+fn, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", fn, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Backend request failed", "function", fn, "err", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", fn, err)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrTransient, fn, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", domain.ErrTransient, fn, err)
	}

	c.logger.Debug("Backend call",
		"function", fn,
		"status", res.StatusCode,
		"duration", time.Since(start),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var eb errorBody
		msg := ""
		if json.Unmarshal(data, &eb) == nil {
			msg = eb.message()
		}
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = fmt.Sprintf("%s failed: %s", fn, http.StatusText(res.StatusCode))
		}
		return &APIError{Function: fn, StatusCode: res.StatusCode, Message: msg}
	}

	// Some functions report failures in a 200 body.
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && len(eb.Error) > 0 && string(eb.Error) != "null" {
		if msg := eb.message(); msg != "" {
			return &APIError{Function: fn, StatusCode: res.StatusCode, Message: msg}
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", fn, err)
	}
	return nil
}
