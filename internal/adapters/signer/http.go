// Package signer provides signing agent adapters: a remote wallet bridge
// reached over HTTP and an interactive prompt for terminals.
package signer

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
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// FailedMessage is reported when the agent answers without a signed payload.
const FailedMessage = "Transaction signing failed"

// DefaultTimeout bounds a whole signing round trip, including the time the user takes to approve.
const DefaultTimeout = 5 * time.Minute

type signRequest struct {
	XDR               string `json:"xdr"`
	NetworkPassphrase string `json:"networkPassphrase"`
	Address           string `json:"address"`
}

type signResponse struct {
	SignedTxXDR   string `json:"signedTxXdr"`
	SignerAddress string `json:"signerAddress"`
	Error         string `json:"error"`
}

// Remote asks a wallet bridge to sign. The bridge holds the keys and asks the
// user for approval.
type Remote struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *slog.Logger
}

// RemoteOption configures a Remote signer.
type RemoteOption func(*Remote)

// WithToken authenticates against the bridge.
func WithToken(token string) RemoteOption {
	return func(r *Remote) {
		r.token = token
	}
}

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(r *Remote) {
		r.http = hc
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = logger
	}
}

// NewRemote creates a signer posting to {baseURL}/sign.
func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		endpoint: strings.TrimRight(baseURL, "/") + "/sign",
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   DefaultTimeout,
		},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sign implements ports.Signer.
func (r *Remote) Sign(ctx context.Context, unsignedPayload, networkID, signerIdentity string) (string, error) {
	body, err := json.Marshal(signRequest{
		XDR:               unsignedPayload,
		NetworkPassphrase: networkID,
		Address:           signerIdentity,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSignerUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	res, err := r.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		r.logger.Warn("Signing agent unreachable", "endpoint", r.endpoint, "err", err)
		return "", fmt.Errorf("%w: %v", domain.ErrSignerUnavailable, err)
	}
	defer res.Body.Close()

	var resp signResponse
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err == nil {
		_ = json.Unmarshal(data, &resp)
	}

	switch {
	case res.StatusCode >= 500:
		return "", fmt.Errorf("%w: agent returned %s", domain.ErrSignerUnavailable, res.Status)
	case res.StatusCode >= 400:
		msg := resp.Error
		if msg == "" {
			msg = "user declined the request"
		}
		return "", fmt.Errorf("%w: %s", domain.ErrSignatureRejected, msg)
	}

	if resp.SignedTxXDR == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrSignatureRejected, FailedMessage)
	}
	if resp.SignerAddress != "" && signerIdentity != "" && resp.SignerAddress != signerIdentity {
		return "", fmt.Errorf("%w: signed by %s instead of %s", domain.ErrSignatureRejected, resp.SignerAddress, signerIdentity)
	}
	return resp.SignedTxXDR, nil
}
