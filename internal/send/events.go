package send

import (
	"github.com/shopspring/decimal"

	"github.com/quiverwallet/quiver/internal/events"
)

// StartedEvent is published when a workflow enters detail entry.
type StartedEvent struct {
	events.BaseEvent
	WorkflowID string
	Network    string
	Symbol     string
}

// FeeEstimatedEvent is published when a fee estimate resolves, successfully
// or not. Superseded estimates are never published.
type FeeEstimatedEvent struct {
	events.BaseEvent
	WorkflowID string
	Fee        decimal.Decimal
	Err        string
}

// SubmittedEvent is published when a transfer is accepted by the provider.
type SubmittedEvent struct {
	events.BaseEvent
	WorkflowID string
	TxHash     string
	FeePaid    decimal.Decimal
}

// FailedEvent is published when a submission is rejected. The workflow stays
// recoverable; entered details are retained for retry.
type FailedEvent struct {
	events.BaseEvent
	WorkflowID string
	Reason     string
}
