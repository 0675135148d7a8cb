package send

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quiverwallet/quiver/internal/events"
	"github.com/quiverwallet/quiver/internal/pricefeed"
	"github.com/quiverwallet/quiver/internal/provider"
	"github.com/quiverwallet/quiver/internal/registry"
)

// Publisher is the subset of the event bus the workflow needs.
type Publisher interface {
	Publish(event events.Event) error
}

// Config describes one send attempt: the token and network were selected
// upstream, and Balance is the sender's aggregated balance for that pair.
type Config struct {
	WalletID string
	Network  string
	Token    registry.TokenDescriptor
	Balance  decimal.Decimal
	Provider provider.Provider
	Prices   pricefeed.PriceSource
	Bus      Publisher

	// RequireFee blocks Send until a fee estimate has resolved successfully.
	// Off by default; some networks let the provider price the fee at
	// submission time.
	RequireFee bool

	Logger *zap.Logger
}

// Workflow is the state machine for one in-flight send operation. All methods
// are safe for concurrent use; async completions (fee estimates, submission)
// are serialized through the same lock as user input.
type Workflow struct {
	id     string
	cfg    Config
	logger *zap.Logger

	mu              sync.Mutex
	state           State
	recipient       string
	amountText      string
	mode            InputMode
	fee             FeeEstimate
	validationError string
	submitError     string
	result          *provider.TransferReceipt
	closed          bool

	// feeGen invalidates stale estimate completions: only the completion
	// carrying the current generation is applied.
	feeGen    uint64
	feeCtx    context.Context
	feeCancel context.CancelFunc
}

// New creates an idle workflow.
func New(cfg Config) *Workflow {
	id := uuid.New().String()
	feeCtx, feeCancel := context.WithCancel(context.Background())
	return &Workflow{
		id:        id,
		cfg:       cfg,
		logger:    cfg.Logger.Named("send_workflow").With(zap.String("workflow_id", id)),
		state:     StateIdle,
		mode:      ModeToken,
		fee:       FeeEstimate{Status: FeeNone},
		feeCtx:    feeCtx,
		feeCancel: feeCancel,
	}
}

// ID returns the workflow instance id.
func (w *Workflow) ID() string { return w.id }

// Start moves the workflow into detail entry and kicks off the initial fee
// estimate.
func (w *Workflow) Start() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.state != StateIdle {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.state = StateEntering
	w.refreshFeeLocked()
	w.mu.Unlock()

	w.logger.Info("Send workflow started",
		zap.String("network", w.cfg.Network),
		zap.String("symbol", w.cfg.Token.Symbol))

	w.publish(&StartedEvent{
		BaseEvent:  events.NewBase(events.WorkflowStarted),
		WorkflowID: w.id,
		Network:    w.cfg.Network,
		Symbol:     w.cfg.Token.Symbol,
	})
	return nil
}

// SetRecipient records the recipient address.
func (w *Workflow) SetRecipient(address string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	w.recipient = strings.TrimSpace(address)
	return nil
}

// SetAmount sanitizes the raw input and validates it synchronously. An
// out-of-range amount sets the validation error; it never returns one.
func (w *Workflow) SetAmount(raw string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	w.amountText = sanitizeAmount(raw)
	w.validateLocked()
	return nil
}

// ToggleInputMode switches between token and fiat entry. The amount and any
// validation error are cleared: the entered number is denominated in the old
// unit and would be misread in the new one.
func (w *Workflow) ToggleInputMode() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	if w.mode == ModeToken {
		w.mode = ModeFiat
	} else {
		w.mode = ModeToken
	}
	w.amountText = ""
	w.validationError = ""
	return nil
}

// UseMax fills the amount with the spendable maximum. Token mode deducts the
// fee estimate when one exists; fiat mode is balance times spot price and
// deliberately ignores the fee.
func (w *Workflow) UseMax() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}

	if w.mode == ModeToken {
		max := w.cfg.Balance
		if w.fee.Status == FeeReady {
			max = max.Sub(w.fee.Fee)
			if max.IsNegative() {
				max = decimal.Zero
			}
		}
		w.amountText = max.String()
	} else {
		max := w.cfg.Balance.Mul(w.spotLocked())
		w.amountText = max.StringFixed(2)
	}
	w.validationError = ""
	return nil
}

// RefreshFee issues a new fee estimate request, superseding any in-flight
// one.
func (w *Workflow) RefreshFee() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editableLocked(); err != nil {
		return err
	}
	w.refreshFeeLocked()
	return nil
}

// refreshFeeLocked bumps the generation and starts the async estimate. Caller
// holds the lock.
func (w *Workflow) refreshFeeLocked() {
	w.feeGen++
	gen := w.feeGen
	w.fee = FeeEstimate{Status: FeeEstimating}

	req := provider.FeeRequest{
		Network:   w.cfg.Network,
		Token:     w.cfg.Token,
		Amount:    w.tokenAmountLocked(),
		Recipient: w.recipient,
	}

	go func() {
		fee, err := w.cfg.Provider.EstimateFee(w.feeCtx, req)
		w.applyFee(gen, fee, err)
	}()
}

// applyFee installs an estimate completion unless it was superseded or the
// workflow was closed meanwhile.
func (w *Workflow) applyFee(gen uint64, fee decimal.Decimal, err error) {
	w.mu.Lock()
	if w.closed || gen != w.feeGen {
		w.mu.Unlock()
		w.logger.Debug("Discarding superseded fee estimate", zap.Uint64("generation", gen))
		return
	}

	if err != nil {
		w.fee = FeeEstimate{Status: FeeError, Err: err.Error()}
	} else {
		w.fee = FeeEstimate{Status: FeeReady, Fee: fee}
	}
	// The spendable maximum moved, so the entered amount may have become
	// invalid (or valid again).
	w.validateLocked()
	applied := w.fee
	w.mu.Unlock()

	w.publish(&FeeEstimatedEvent{
		BaseEvent:  events.NewBase(events.FeeEstimated),
		WorkflowID: w.id,
		Fee:        applied.Fee,
		Err:        applied.Err,
	})
}

// Send submits the transfer. It is the sole path into StateSubmitting and
// rejects re-entry while a submission is in flight.
func (w *Workflow) Send() error {
	w.mu.Lock()

	switch {
	case w.closed:
		w.mu.Unlock()
		return ErrClosed
	case w.state == StateIdle:
		w.mu.Unlock()
		return ErrNotStarted
	case w.state == StateSubmitting:
		w.mu.Unlock()
		return ErrAlreadySubmitting
	case w.state == StateSubmitted:
		w.mu.Unlock()
		return ErrTerminal
	}

	if w.recipient == "" {
		w.mu.Unlock()
		return ErrMissingRecipient
	}
	if w.amountText == "" {
		w.mu.Unlock()
		return ErrMissingAmount
	}
	if w.validationError != "" {
		w.mu.Unlock()
		return ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(w.amountText)
	if err != nil || !amount.IsPositive() {
		w.mu.Unlock()
		return ErrInvalidAmount
	}
	if w.cfg.RequireFee && w.fee.Status != FeeReady {
		w.mu.Unlock()
		return ErrFeeUnavailable
	}

	tokenAmount := amount
	if w.mode == ModeFiat {
		price := w.spotLocked()
		if !price.IsPositive() {
			w.mu.Unlock()
			return ErrUnknownPrice
		}
		tokenAmount = amount.Div(price)
	}

	w.state = StateSubmitting
	w.submitError = ""
	req := provider.TransferRequest{
		Network:   w.cfg.Network,
		Token:     w.cfg.Token,
		Recipient: w.recipient,
		Amount:    tokenAmount,
	}
	w.mu.Unlock()

	w.logger.Info("Submitting transfer",
		zap.String("network", req.Network),
		zap.String("amount", req.Amount.String()))

	// Deliberately not tied to the workflow's lifetime: a funds-moving
	// operation is not abortable once handed to the provider.
	go w.submit(req)
	return nil
}

func (w *Workflow) submit(req provider.TransferRequest) {
	receipt, err := w.cfg.Provider.SubmitTransfer(context.Background(), req)

	w.mu.Lock()
	if err != nil {
		w.state = StateFailed
		w.submitError = err.Error()
		w.mu.Unlock()

		w.logger.Warn("Transfer submission failed", zap.Error(err))
		w.publish(&FailedEvent{
			BaseEvent:  events.NewBase(events.WorkflowFailed),
			WorkflowID: w.id,
			Reason:     err.Error(),
		})
		return
	}

	w.state = StateSubmitted
	w.result = &receipt
	w.mu.Unlock()

	w.logger.Info("Transfer submitted",
		zap.String("tx_hash", receipt.TxHash),
		zap.String("fee_paid", receipt.FeePaid.String()))

	w.publish(&SubmittedEvent{
		BaseEvent:  events.NewBase(events.WorkflowSubmitted),
		WorkflowID: w.id,
		TxHash:     receipt.TxHash,
		FeePaid:    receipt.FeePaid,
	})

	// Fire-and-forget invalidation; the state machine does not await it.
	go w.cfg.Provider.RefreshBalances(context.Background(), w.cfg.WalletID)
}

// Close tears the workflow down: in-flight fee estimates are cancelled and
// their results discarded. An in-flight submission keeps running.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.feeGen++
	w.mu.Unlock()

	w.feeCancel()
	w.logger.Debug("Send workflow closed")
}

// Snapshot returns a copy of the current workflow state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		ID:              w.id,
		State:           w.state,
		Recipient:       w.recipient,
		AmountText:      w.amountText,
		Mode:            w.mode,
		Fee:             w.fee,
		ValidationError: w.validationError,
		SubmitError:     w.submitError,
	}
	if w.result != nil {
		r := *w.result
		snap.Result = &r
	}
	return snap
}

// editableLocked reports whether detail entry is currently allowed. A failed
// workflow stays editable so the user can retry without losing input.
func (w *Workflow) editableLocked() error {
	switch {
	case w.closed:
		return ErrClosed
	case w.state == StateIdle:
		return ErrNotStarted
	case w.state == StateSubmitting:
		return ErrAlreadySubmitting
	case w.state == StateSubmitted:
		return ErrTerminal
	}
	return nil
}

// validateLocked recomputes the validation error for the current amount.
// Empty and non-positive amounts clear the error; the Send guard rejects them
// separately.
func (w *Workflow) validateLocked() {
	if w.amountText == "" {
		w.validationError = ""
		return
	}

	amount, err := decimal.NewFromString(w.amountText)
	if err != nil {
		w.validationError = "Invalid amount"
		return
	}
	if !amount.IsPositive() {
		w.validationError = ""
		return
	}

	if w.mode == ModeToken {
		available := w.cfg.Balance
		if w.fee.Status == FeeReady {
			available = available.Sub(w.fee.Fee)
		}
		if amount.GreaterThan(available) {
			w.validationError = fmt.Sprintf("Maximum: %s %s", available.String(), w.cfg.Token.Symbol)
			return
		}
	} else {
		price := w.spotLocked()
		if price.IsPositive() && amount.Div(price).GreaterThan(w.cfg.Balance) {
			w.validationError = fmt.Sprintf("Maximum: %s USD", w.cfg.Balance.Mul(price).StringFixed(2))
			return
		}
	}

	w.validationError = ""
}

// tokenAmountLocked converts the entered amount to token units, zero when
// absent or unconvertible.
func (w *Workflow) tokenAmountLocked() decimal.Decimal {
	amount, err := decimal.NewFromString(w.amountText)
	if err != nil {
		return decimal.Zero
	}
	if w.mode == ModeFiat {
		price := w.spotLocked()
		if !price.IsPositive() {
			return decimal.Zero
		}
		return amount.Div(price)
	}
	return amount
}

func (w *Workflow) spotLocked() decimal.Decimal {
	if w.cfg.Prices == nil {
		return decimal.Zero
	}
	return w.cfg.Prices.Spot(w.cfg.Token.Symbol)
}

func (w *Workflow) publish(event events.Event) {
	if w.cfg.Bus == nil {
		return
	}
	if err := w.cfg.Bus.Publish(event); err != nil {
		w.logger.Warn("Failed to publish workflow event", zap.Error(err))
	}
}

// sanitizeAmount strips everything but digits and separators, normalizes the
// comma to a dot and keeps only the first decimal point.
func sanitizeAmount(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	normalized := strings.ReplaceAll(b.String(), ",", ".")

	parts := strings.Split(normalized, ".")
	if len(parts) > 1 {
		return parts[0] + "." + parts[1]
	}
	return parts[0]
}
