package ledger

import (
	"time"

	"github.com/google/uuid"
)

// AggregateChangedEvent is emitted after a committed mutation changed a
// product's cached quantity. Consumers use it to invalidate read caches;
// EventID lets at-least-once consumers dedupe.
type AggregateChangedEvent struct {
	EventID   string
	TenantID  int64
	ProductID int64
	At        time.Time
}

// NewAggregateChangedEvent builds the event with a fresh ID.
func NewAggregateChangedEvent(tenantID, productID int64) AggregateChangedEvent {
	return AggregateChangedEvent{
		EventID:   uuid.NewString(),
		TenantID:  tenantID,
		ProductID: productID,
		At:        time.Now().UTC(),
	}
}
