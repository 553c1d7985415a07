package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrIllegalTransition is returned when an operation is not allowed in the current stage.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrWorkflowNotFound is returned when a workflow ID cannot be found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrAlreadySet is returned when a write-once field would be overwritten with a different value.
	ErrAlreadySet = errors.New("field already set")

	// ErrBusy is returned when a collaborator call is already outstanding for the workflow.
	ErrBusy = errors.New("workflow busy")

	// ErrSignatureRejected is returned by signing agents when the user declines to sign.
	ErrSignatureRejected = errors.New("signature rejected")

	// ErrSignerUnavailable is returned by signing agents that cannot be reached.
	ErrSignerUnavailable = errors.New("signing agent unavailable")

	// ErrTransient marks a single request that failed before reaching the collaborator.
	ErrTransient = errors.New("transient network error")
)

// ErrorKind classifies a workflow failure.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindCollaborator ErrorKind = "collaborator_fault"
	KindUserDeclined ErrorKind = "user_declined"
	KindTimeout      ErrorKind = "timeout"
	KindTransient    ErrorKind = "transient_network"
)

// Retryable reports whether Retry may recover from this kind of failure.
// Validation errors require a corrected request and a new Start.
func (k ErrorKind) Retryable() bool {
	return k != KindValidation && k != ""
}

// Error is a classified failure of a workflow stage.
// Message is kept verbatim for display.
type Error struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error. If message is empty the cause's text is used.
func NewError(kind ErrorKind, stage Stage, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Stage: stage, Message: message, Err: cause}
}

// Classify maps a collaborator error to a workflow error for the given stage.
// Signing agent failures of any sort are UserDeclined.
func Classify(stage Stage, err error, fromSigner bool) *Error {
	var werr *Error
	if errors.As(err, &werr) {
		return werr
	}

	switch {
	case fromSigner:
		return NewError(KindUserDeclined, stage, "", err)
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTransient, stage, "", err)
	default:
		return NewError(KindCollaborator, stage, "", err)
	}
}

// KindOf extracts the classification of err, or "" if err is not a workflow error.
func KindOf(err error) ErrorKind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Kind
	}
	return ""
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s %s", field, e.Fields[field]))
	}
	return "invalid issuance request: " + strings.Join(parts, "; ")
}
