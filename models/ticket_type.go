package models

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventEnded     EventStatus = "ended"
)

// Event is owned by event setup; this service only reads it to gate
// order creation on published events.
type Event struct {
	ID     string      `db:"id" json:"id"`
	Name   string      `db:"name" json:"name"`
	Status EventStatus `db:"status" json:"status"`
}

// TicketType is a purchasable category within an event with a finite
// quantity. Invariant: 0 <= QuantitySold <= QuantityTotal for every row
// under all concurrent access. QuantitySold is mutated only by the
// allocator (increment) and the cancellation compensator (decrement).
type TicketType struct {
	ID            string `db:"id" json:"id"`
	EventID       string `db:"event_id" json:"event_id"`
	Name          string `db:"name" json:"name"`
	PriceCents    int64  `db:"price_cents" json:"price_cents"`
	Currency      string `db:"currency" json:"currency"`
	QuantityTotal int    `db:"quantity_total" json:"quantity_total"`
	QuantitySold  int    `db:"quantity_sold" json:"quantity_sold"`
}

// Remaining returns the unsold capacity.
func (t TicketType) Remaining() int {
	return t.QuantityTotal - t.QuantitySold
}
