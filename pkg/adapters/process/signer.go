// Package process signs emissions by running a local signing tool, such as a
// ledger CLI holding the issuer key or a hardware wallet bridge.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/pkg/domain"
)

// Environment variables handed to the signing tool.
const (
	EnvNetworkPassphrase = "MINTLINE_NETWORK_PASSPHRASE"
	EnvSignerAddress     = "MINTLINE_SIGNER_ADDRESS"
)

// FailedMessage is reported when the tool exits cleanly without output.
const FailedMessage = "Transaction signing failed"

// Signer runs a fixed command for every signature. The unsigned payload is
// written to its stdin and the network and signer identity are passed as
// environment variables, never as arguments. The signed payload is read from
// stdout, either raw or as {"signedTxXdr": "..."}.
type Signer struct {
	command string
	args    []string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures the Signer.
type Option func(*Signer)

// WithDir sets the working directory of the tool.
func WithDir(dir string) Option {
	return func(s *Signer) {
		s.dir = dir
	}
}

// WithTimeout bounds one run of the tool. Zero means no limit beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *Signer) {
		s.timeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		s.logger = logger
	}
}

// NewSigner creates a Signer running command with args.
func NewSigner(command string, args []string, opts ...Option) *Signer {
	s := &Signer{
		command: command,
		args:    append([]string(nil), args...),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type toolOutput struct {
	SignedTxXDR string `json:"signedTxXdr"`
	Error       string `json:"error"`
}

// Sign runs the tool once. A tool that cannot be started reports
// domain.ErrSignerUnavailable; a non-zero exit is a rejection carrying the
// tool's stderr.
func (s *Signer) Sign(ctx context.Context, unsignedPayload, networkID, signerIdentity string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Dir = s.dir
	// Children left holding stdout must not outlive a cancelled signature.
	cmd.WaitDelay = time.Second
	cmd.Stdin = strings.NewReader(unsignedPayload + "\n")
	cmd.Env = append(cmd.Environ(),
		EnvNetworkPassphrase+"="+networkID,
		EnvSignerAddress+"="+signerIdentity,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	s.logger.Debug("Signing tool finished", "command", s.command, "duration", time.Since(start), "err", err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return "", fmt.Errorf("%w: %s", domain.ErrSignatureRejected, msg)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSignerUnavailable, err)
	}

	signed := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(signed, "{") {
		var out toolOutput
		if jsonErr := json.Unmarshal([]byte(signed), &out); jsonErr == nil {
			if out.Error != "" {
				return "", fmt.Errorf("%w: %s", domain.ErrSignatureRejected, out.Error)
			}
			signed = out.SignedTxXDR
		}
	}
	if signed == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrSignatureRejected, FailedMessage)
	}
	return signed, nil
}
