package balance

import (
	"github.com/quiverwallet/quiver/internal/events"
)

// UpdatedEvent carries a fresh snapshot to subscribers.
type UpdatedEvent struct {
	events.BaseEvent
	WalletID string
	Snapshot Snapshot
}

// RefreshFailedEvent is published when a whole refresh attempt gave up, after
// retries. Per-token failures never reach here; they are excluded during
// aggregation instead.
type RefreshFailedEvent struct {
	events.BaseEvent
	WalletID string
	Err      error
}
