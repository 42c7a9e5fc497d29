package models

import (
	"time"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
)

// CanTransitionTo reports whether the order state machine allows
// moving from s to next. CREATED is the only non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s != OrderCreated {
		return false
	}
	return next == OrderPaid || next == OrderCancelled
}

// Terminal reports whether the status permits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled
}

type Order struct {
	ID         string      `db:"id" json:"id"`
	UserID     string      `db:"user_id" json:"user_id"`
	EventID    string      `db:"event_id" json:"event_id"`
	Status     OrderStatus `db:"status" json:"status"`
	TotalCents int64       `db:"total_cents" json:"total_cents"`
	CreatedAt  time.Time   `db:"created" json:"created_at"`
	Items      []OrderItem `db:"-" json:"items,omitempty"`
}

// OrderItem is a frozen snapshot of price at purchase time. The unit
// price is never recomputed, even if the ticket type's price changes.
type OrderItem struct {
	ID             string `db:"id" json:"id"`
	OrderID        string `db:"order_id" json:"order_id"`
	TicketTypeID   string `db:"ticket_type_id" json:"ticket_type_id"`
	Qty            int    `db:"qty" json:"qty"`
	UnitPriceCents int64  `db:"unit_price_cents" json:"unit_price_cents"`
}
