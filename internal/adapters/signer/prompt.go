package signer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/mintline/pkg/domain"
)

// Prompt shows the unsigned payload and reads the signed one back, for
// operators signing with an offline wallet. An empty answer declines.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt creates a prompt signer over in and out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

type line struct {
	text string
	err  error
}

// Sign implements ports.Signer. It returns ctx.Err() if ctx ends before an answer.
func (p *Prompt) Sign(ctx context.Context, unsignedPayload, networkID, signerIdentity string) (string, error) {
	fmt.Fprintf(p.out, "\nSign with %s on %q:\n\n%s\n\n", signerIdentity, networkID, unsignedPayload)
	fmt.Fprint(p.out, "Signed transaction (empty to decline): ")

	answer := make(chan line, 1)
	go func() {
		text, err := p.in.ReadString('\n')
		answer <- line{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l := <-answer:
		text := strings.TrimSpace(l.text)
		if l.err != nil && !(errors.Is(l.err, io.EOF) && text != "") {
			return "", fmt.Errorf("%w: %v", domain.ErrSignerUnavailable, l.err)
		}
		if text == "" {
			return "", fmt.Errorf("%w: user declined the request", domain.ErrSignatureRejected)
		}
		return text, nil
	}
}
