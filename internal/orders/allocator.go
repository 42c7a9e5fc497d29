package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ticket-shop/models"
	"ticket-shop/utils"
)

// Service is the order engine: the inventory allocator plus the order
// state machine operations built on top of an injected Store.
type Service struct {
	store          Store
	idempotencyTTL time.Duration
}

func NewService(store Store, idempotencyTTL time.Duration) *Service {
	if idempotencyTTL <= 0 {
		idempotencyTTL = 24 * time.Hour
	}
	return &Service{
		store:          store,
		idempotencyTTL: idempotencyTTL,
	}
}

// OrderItemRequest is one requested line of a purchase.
type OrderItemRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Qty          int    `json:"qty"`
}

// CreateOrderResult carries the order plus whether it was served from
// the idempotency ledger instead of a fresh allocation.
type CreateOrderResult struct {
	Order  *models.Order `json:"order"`
	Cached bool          `json:"cached"`
}

// CreateOrder atomically reserves inventory for every requested ticket
// type and materializes the order, all-or-nothing. With an idempotency
// key, retried requests return the original order instead of
// re-allocating; two concurrent requests with the same key never both
// allocate, because the losing ledger writer aborts and reads the
// winner.
func (s *Service) CreateOrder(ctx context.Context, userID, eventID string, items []OrderItemRequest, endpoint, idempotencyKey string) (*CreateOrderResult, error) {
	if userID == "" || eventID == "" {
		return nil, validationf("user and event are required")
	}
	if len(items) == 0 {
		return nil, validationf("at least one item is required")
	}

	// Merge duplicate ticket type lines so each row is locked and
	// adjusted exactly once.
	qtyByType := make(map[string]int, len(items))
	for _, item := range items {
		if item.TicketTypeID == "" {
			return nil, validationf("ticket type id is required")
		}
		if item.Qty < 1 {
			return nil, validationf("qty must be >= 1 for ticket type %s", item.TicketTypeID)
		}
		qtyByType[item.TicketTypeID] += item.Qty
	}

	ticketTypeIDs := make([]string, 0, len(qtyByType))
	for id := range qtyByType {
		ticketTypeIDs = append(ticketTypeIDs, id)
	}
	// Deterministic lock order across all allocations.
	sort.Strings(ticketTypeIDs)

	// Ledger lookup comes before any gate: a retry of a completed
	// purchase must return the original order even if the event has
	// since been unpublished or ended.
	if idempotencyKey != "" {
		cached, err := s.lookupCached(ctx, userID, endpoint, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return &CreateOrderResult{Order: cached, Cached: true}, nil
		}
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventPublished {
		return nil, ErrNotFound
	}

	order := &models.Order{
		UserID:    userID,
		EventID:   eventID,
		Status:    models.OrderCreated,
		CreatedAt: time.Now(),
	}

	err = s.store.RunInTransaction(ctx, func(tx Tx) error {
		locked, err := tx.LockTicketTypes(ctx, eventID, ticketTypeIDs)
		if err != nil {
			return err
		}
		if len(locked) != len(ticketTypeIDs) {
			return ErrNotFound
		}

		for _, row := range locked {
			qty := qtyByType[row.ID]
			if row.QuantitySold+qty > row.QuantityTotal {
				return &InsufficientInventoryError{TicketTypeID: row.ID}
			}
		}

		for _, row := range locked {
			if err := tx.AddQuantitySold(ctx, row.ID, qtyByType[row.ID]); err != nil {
				return err
			}
		}

		orderID, err := utils.GenerateCode(8)
		if err != nil {
			return fmt.Errorf("generate order id: %w", err)
		}
		order.ID = orderID

		var totalCents int64
		orderItems := make([]models.OrderItem, 0, len(locked))
		for _, row := range locked {
			qty := qtyByType[row.ID]
			totalCents += row.PriceCents * int64(qty)

			itemID, err := utils.GenerateCode(8)
			if err != nil {
				return fmt.Errorf("generate item id: %w", err)
			}
			orderItems = append(orderItems, models.OrderItem{
				ID:             itemID,
				OrderID:        order.ID,
				TicketTypeID:   row.ID,
				Qty:            qty,
				UnitPriceCents: row.PriceCents,
			})
		}
		order.TotalCents = totalCents
		order.Items = orderItems

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertOrderItems(ctx, orderItems); err != nil {
			return err
		}

		if idempotencyKey != "" {
			recID, err := utils.GenerateCode(8)
			if err != nil {
				return fmt.Errorf("generate ledger id: %w", err)
			}
			return tx.ClaimIdempotencyKey(ctx, &models.IdempotencyRecord{
				ID:          recID,
				Key:         idempotencyKey,
				UserID:      userID,
				Endpoint:    endpoint,
				ResponseRef: order.ID,
				ExpiresAt:   time.Now().Add(s.idempotencyTTL),
			})
		}
		return nil
	})
	if err != nil {
		// Lost the ledger race: the whole allocation rolled back, so
		// read and return the winner's order.
		if errors.Is(err, ErrIdempotencyConflict) {
			cached, lookupErr := s.lookupCached(ctx, userID, endpoint, idempotencyKey)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if cached != nil {
				slog.Info("idempotent retry resolved to existing order",
					"user_id", userID, "order_id", cached.ID)
				return &CreateOrderResult{Order: cached, Cached: true}, nil
			}
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}

	return &CreateOrderResult{Order: order, Cached: false}, nil
}

// lookupCached resolves an idempotency key to its prior order, or nil
// when the key is unknown, expired, or points at a vanished order.
func (s *Service) lookupCached(ctx context.Context, userID, endpoint, key string) (*models.Order, error) {
	rec, err := s.store.GetIdempotencyRecord(ctx, userID, endpoint, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Expired(time.Now()) {
		return nil, nil
	}
	order, err := s.store.GetOrder(ctx, rec.ResponseRef, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}
