package events

import (
	"time"
)

// EventType identifies a category of event on the bus.
type EventType string

const (
	// Balance events
	BalancesUpdated      EventType = "balances.updated"
	BalanceRefreshFailed EventType = "balances.refresh_failed"

	// Send workflow events
	WorkflowStarted   EventType = "workflow.started"
	WorkflowSubmitted EventType = "workflow.submitted"
	WorkflowFailed    EventType = "workflow.failed"

	// Fee events
	FeeEstimated EventType = "fee.estimated"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides the common fields; concrete events embed it.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// NewBase stamps a BaseEvent with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}
