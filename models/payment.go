package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
)

// Payment records one successful reconciliation event. ProviderRef is
// unique so replayed provider notifications never create duplicates.
type Payment struct {
	ID          string        `db:"id" json:"id"`
	OrderID     string        `db:"order_id" json:"order_id"`
	Provider    string        `db:"provider" json:"provider"`
	ProviderRef string        `db:"provider_ref" json:"provider_ref"`
	Status      PaymentStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created" json:"created_at"`
}

// CheckoutSession is the Redis-cached view of an in-flight provider
// checkout, kept with a TTL so abandoned sessions age out on their own.
type CheckoutSession struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"` // pending, completed, cancelled
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
