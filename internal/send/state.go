// Package send implements the per-transfer workflow: one state machine per
// user attempt to compose and submit a transfer.
package send

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/quiverwallet/quiver/internal/provider"
)

// State enumerates the workflow states.
type State string

const (
	StateIdle       State = "idle"
	StateEntering   State = "entering_details"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateFailed     State = "failed"
)

// InputMode selects how the amount field is denominated.
type InputMode string

const (
	ModeToken InputMode = "token"
	ModeFiat  InputMode = "fiat"
)

// FeeStatus tracks the fee estimate lifecycle.
type FeeStatus string

const (
	FeeNone       FeeStatus = "none"
	FeeEstimating FeeStatus = "estimating"
	FeeReady      FeeStatus = "ready"
	FeeError      FeeStatus = "error"
)

// FeeEstimate is the current fee estimate, if any.
type FeeEstimate struct {
	Status FeeStatus
	Fee    decimal.Decimal
	Err    string
}

// Snapshot is a read-only copy of the workflow state.
type Snapshot struct {
	ID              string
	State           State
	Recipient       string
	AmountText      string
	Mode            InputMode
	Fee             FeeEstimate
	ValidationError string
	SubmitError     string
	Result          *provider.TransferReceipt
}

// Guard violations returned by workflow operations.
var (
	ErrClosed            = errors.New("send: workflow is closed")
	ErrNotStarted        = errors.New("send: workflow not started")
	ErrAlreadyStarted    = errors.New("send: workflow already started")
	ErrTerminal          = errors.New("send: workflow already submitted")
	ErrAlreadySubmitting = errors.New("send: submission already in flight")
	ErrMissingRecipient  = errors.New("send: recipient address is empty")
	ErrMissingAmount     = errors.New("send: amount is empty")
	ErrInvalidAmount     = errors.New("send: amount failed validation")
	ErrFeeUnavailable    = errors.New("send: no usable fee estimate")
	ErrUnknownPrice      = errors.New("send: spot price unknown, cannot convert fiat amount")
)
