package orders

import (
	"context"

	"ticket-shop/models"
)

// Store is the durable inventory/order repository. Implementations must
// make RunInTransaction atomic: either every write inside fn commits or
// none does. The transaction is the engine's single serialization
// point; nothing else in this package takes locks.
type Store interface {
	// RunInTransaction executes fn atomically. A non-nil error from fn
	// rolls the transaction back and is returned as-is.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// GetEvent returns the event or ErrNotFound.
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)

	// GetOrder returns the order with its items, scoped to the owning
	// user, or ErrNotFound.
	GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error)

	// ListOrdersByUser returns the user's orders, newest first, items
	// included.
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)

	// ListTicketTypes returns the event's ticket types in ascending ID
	// order.
	ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error)

	// GetIdempotencyRecord returns the ledger row for the triple, or
	// (nil, nil) when absent. Expiry is the caller's concern.
	GetIdempotencyRecord(ctx context.Context, userID, endpoint, key string) (*models.IdempotencyRecord, error)
}

// Tx is the set of writes available inside one store transaction.
type Tx interface {
	// LockTicketTypes loads the requested ticket type rows of the event
	// with exclusive row locks, in ascending ID order. IDs that do not
	// resolve to a row of this event are simply absent from the result;
	// the caller decides that means NotFound. The deterministic lock
	// order is a contract: it is what prevents lock-ordering deadlocks
	// between overlapping orders.
	LockTicketTypes(ctx context.Context, eventID string, ticketTypeIDs []string) ([]models.TicketType, error)

	// AddQuantitySold adjusts quantity_sold by delta (positive for
	// allocation, negative for cancellation compensation).
	AddQuantitySold(ctx context.Context, ticketTypeID string, delta int) error

	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItems(ctx context.Context, items []models.OrderItem) error

	// ClaimIdempotencyKey writes the ledger row for the triple. If a
	// non-expired row already exists it returns ErrIdempotencyConflict
	// and writes nothing; an expired row is reclaimed in place.
	ClaimIdempotencyKey(ctx context.Context, rec *models.IdempotencyRecord) error

	// GetOrderForUpdate loads the order row (without items) under the
	// transaction, or ErrNotFound.
	GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error)

	GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error)

	// UpdateOrderStatus flips the order from one status to another. The
	// update is conditional on the current status; if the order is no
	// longer in from, ErrNotFound is returned and nothing changes.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error

	// FindPaymentByProviderRef returns the payment row for a provider
	// transaction reference, or (nil, nil) when absent.
	FindPaymentByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error)

	InsertPayment(ctx context.Context, payment *models.Payment) error
}
