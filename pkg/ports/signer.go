package ports

import "context"

// Signer is the user-held signing agent. The orchestrator never sees keys.
type Signer interface {
	// Sign returns the signed payload, or an error wrapping domain.ErrSignatureRejected
	// when the user declines and domain.ErrSignerUnavailable when the agent cannot be reached.
	Sign(ctx context.Context, unsignedPayload, networkID, signerIdentity string) (string, error)
}

// SignerFunc adapts a function to the Signer interface.
type SignerFunc func(ctx context.Context, unsignedPayload, networkID, signerIdentity string) (string, error)

// Sign calls f.
func (f SignerFunc) Sign(ctx context.Context, unsignedPayload, networkID, signerIdentity string) (string, error) {
	return f(ctx, unsignedPayload, networkID, signerIdentity)
}
