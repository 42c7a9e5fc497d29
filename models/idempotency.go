package models

import (
	"time"
)

// IdempotencyRecord maps a client-supplied key, scoped to one user and
// endpoint, to the order it produced. Unique per (user_id, endpoint,
// key); created atomically with the order. After ExpiresAt the key may
// be reused with a fresh allocation.
type IdempotencyRecord struct {
	ID          string    `db:"id" json:"id"`
	Key         string    `db:"key" json:"key"`
	UserID      string    `db:"user_id" json:"user_id"`
	Endpoint    string    `db:"endpoint" json:"endpoint"`
	ResponseRef string    `db:"response_ref" json:"response_ref"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the record is past its TTL at the given time.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}
