package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// SignalError is the cancellation cause of a SignalContext stopped by a signal.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("received %s", e.Signal)
}

// SignalContext is cancelled on SIGINT or SIGTERM and remembers which one
// arrived, which signal.NotifyContext does not.
type SignalContext struct {
	context.Context
	cancel context.CancelCauseFunc
}

// NewSignalContext watches for SIGINT and SIGTERM until the context ends.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancelCause(parent)
	sc := &SignalContext{Context: ctx, cancel: cancel}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			cancel(&SignalError{Signal: sig})
		case <-ctx.Done():
		}
	}()
	return sc
}

// Cancel stops the context and releases the signal handler.
func (sc *SignalContext) Cancel() {
	sc.cancel(context.Canceled)
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	var serr *SignalError
	if errors.As(context.Cause(sc.Context), &serr) {
		return serr.Signal
	}
	return nil
}
