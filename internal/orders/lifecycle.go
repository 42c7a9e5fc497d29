package orders

import (
	"context"

	"ticket-shop/models"
)

// Cancel moves a CREATED order to CANCELLED and releases its reserved
// inventory in the same transaction. The CREATED check happens under
// the transaction, so a cancel racing a concurrent payment
// confirmation observes whichever state committed first and rejects
// cleanly instead of double-applying.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (*models.Order, error) {
	if orderID == "" || userID == "" {
		return nil, validationf("order and user are required")
	}

	var cancelled *models.Order
	err := s.store.RunInTransaction(ctx, func(tx Tx) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			// Foreign orders look like missing orders to the caller.
			return ErrNotFound
		}
		if !order.Status.CanTransitionTo(models.OrderCancelled) {
			return &InvalidStateTransitionError{
				OrderID: orderID,
				From:    order.Status,
				To:      models.OrderCancelled,
			}
		}

		if err := tx.UpdateOrderStatus(ctx, orderID, models.OrderCreated, models.OrderCancelled); err != nil {
			return err
		}

		items, err := tx.GetOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		// Restore capacity to the pool: one decrement per item row.
		for _, item := range items {
			if err := tx.AddQuantitySold(ctx, item.TicketTypeID, -item.Qty); err != nil {
				return err
			}
		}

		order.Status = models.OrderCancelled
		order.Items = items
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	if userID == "" {
		return nil, validationf("user is required")
	}
	return s.store.ListOrdersByUser(ctx, userID)
}

// GetOrder returns one order scoped to its owner.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	if orderID == "" || userID == "" {
		return nil, validationf("order and user are required")
	}
	return s.store.GetOrder(ctx, orderID, userID)
}

// ListTicketTypes returns the published event's ticket types.
func (s *Service) ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventPublished {
		return nil, ErrNotFound
	}
	return s.store.ListTicketTypes(ctx, eventID)
}
