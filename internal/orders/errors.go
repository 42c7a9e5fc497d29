package orders

import (
	"errors"
	"fmt"

	"ticket-shop/models"
)

var (
	// ErrNotFound covers unknown events, ticket types and orders.
	ErrNotFound = errors.New("orders: not found")

	// ErrSignatureInvalid marks a webhook that failed HMAC verification.
	ErrSignatureInvalid = errors.New("orders: webhook signature invalid")

	// ErrGateway marks a payment gateway dependency failure.
	ErrGateway = errors.New("orders: payment gateway error")

	// ErrIdempotencyConflict is returned by the store when another
	// writer holds a live ledger row for the same (user, endpoint, key).
	// It never reaches callers: the allocator converts it into the
	// winner's cached order.
	ErrIdempotencyConflict = errors.New("orders: idempotency key conflict")
)

// ValidationError is a malformed request, the caller's fault. Never
// retried server-side.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("orders: invalid request: %s", e.Msg)
}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientInventoryError names the ticket type whose capacity the
// request exceeded. Safe for the client to retry with different
// quantities; the server never retries it.
type InsufficientInventoryError struct {
	TicketTypeID string
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("orders: insufficient inventory for ticket type %s", e.TicketTypeID)
}

// InvalidStateTransitionError reports a rejected order state machine
// transition, e.g. cancelling a PAID order.
type InvalidStateTransitionError struct {
	OrderID string
	From    models.OrderStatus
	To      models.OrderStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("orders: order %s cannot transition %s -> %s", e.OrderID, e.From, e.To)
}

// TransientError wraps an infrastructure failure (lock timeout, store
// unavailable). Eligible for a bounded retry at the transaction
// boundary only, never mid-transaction.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("orders: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is an infrastructure failure rather
// than a terminal business outcome.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
