package domain

import (
	"fmt"
	"time"
)

// WorkflowState is the snapshot of one issuance workflow.
// Only the orchestrator owning the workflow mutates it; everyone else sees clones.
type WorkflowState struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Stage   Stage  `json:"stage"`

	// FailedStage is the stage whose entry action failed (only meaningful in ERROR).
	FailedStage Stage `json:"failedStage,omitempty"`

	Request *IssuanceRequest `json:"request,omitempty"`

	// Ledger evidence. Each field is write-once.
	DistributionAccount string `json:"distributionAccount,omitempty"`
	TrustlineTxRef      string `json:"trustlineTxRef,omitempty"`
	EmissionTxRef       string `json:"emissionTxRef,omitempty"`
	DistributionTxRef   string `json:"distributionTxRef,omitempty"`

	// EmissionPayload is held between trustline confirmation and signing.
	EmissionPayload string `json:"emissionPayload,omitempty"`
	// SignedPayload is held between signing and submit confirmation so a failed submit can be retried.
	SignedPayload string `json:"signedPayload,omitempty"`

	Split          *SplitAmounts `json:"splitAmounts,omitempty"`
	TransactionURL string        `json:"transactionUrl,omitempty"`
	AssetURL       string        `json:"assetUrl,omitempty"`

	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`

	History   []Stage   `json:"history"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewWorkflowState returns the initial empty value for a workflow.
func NewWorkflowState(id string) *WorkflowState {
	return &WorkflowState{
		ID:      id,
		Stage:   StageIdle,
		History: []Stage{StageIdle},
	}
}

// Clone returns a copy that shares nothing mutable with s.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Request != nil {
		req := *s.Request
		c.Request = &req
	}
	if s.Split != nil {
		split := *s.Split
		c.Split = &split
	}
	c.History = append([]Stage(nil), s.History...)
	return &c
}

// Failure returns the recorded failure, or nil outside ERROR.
func (s *WorkflowState) Failure() *Error {
	if s.Stage != StageError {
		return nil
	}
	return &Error{Kind: s.ErrorKind, Stage: s.FailedStage, Message: s.Error}
}

func setOnce(field *string, name, value string) error {
	if value == "" {
		return fmt.Errorf("%s: empty value", name)
	}
	if *field != "" && *field != value {
		return fmt.Errorf("%w: %s is %q, refusing %q", ErrAlreadySet, name, *field, value)
	}
	*field = value
	return nil
}

// SetDistributionAccount records the provisioned account.
func (s *WorkflowState) SetDistributionAccount(account string) error {
	return setOnce(&s.DistributionAccount, "distributionAccount", account)
}

// SetTrustlineTxRef records the trustline transaction.
func (s *WorkflowState) SetTrustlineTxRef(ref string) error {
	return setOnce(&s.TrustlineTxRef, "trustlineTxRef", ref)
}

// SetEmissionTxRef records the emission transaction.
func (s *WorkflowState) SetEmissionTxRef(ref string) error {
	return setOnce(&s.EmissionTxRef, "emissionTxRef", ref)
}

// SetDistributionTxRef records the distribution transaction.
func (s *WorkflowState) SetDistributionTxRef(ref string) error {
	return setOnce(&s.DistributionTxRef, "distributionTxRef", ref)
}
