package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-shop/models"
	"ticket-shop/utils"
)

// Notifier delivers best-effort side effects after reconciliation. It
// must never block or fail the payment acknowledgment; implementations
// swallow and log their own errors.
type Notifier interface {
	OrderPaid(ctx context.Context, order *models.Order, providerRef string)
}

// Reconciler consumes verified payment-provider events and advances
// orders to PAID. Delivery is at-least-once: replays of the same
// provider reference are acknowledged without re-mutating the order.
type Reconciler struct {
	store    Store
	provider string
	notifier Notifier
}

func NewReconciler(store Store, provider string, notifier Notifier) *Reconciler {
	return &Reconciler{
		store:    store,
		provider: provider,
		notifier: notifier,
	}
}

// ReconcileResult reports what a provider event did. Applied means the
// CREATED -> PAID transition happened now; Duplicate means the provider
// reference was already reconciled. Neither being set means the order
// was missing or no longer CREATED, which is acknowledged without any
// state change (most commonly the order was cancelled before payment
// cleared).
type ReconcileResult struct {
	Applied   bool
	Duplicate bool
	Order     *models.Order
}

// Reconcile applies one verified provider event to the named order.
func (r *Reconciler) Reconcile(ctx context.Context, orderID, providerRef string) (*ReconcileResult, error) {
	if orderID == "" || providerRef == "" {
		return nil, validationf("order id and provider reference are required")
	}

	result := &ReconcileResult{}
	err := r.store.RunInTransaction(ctx, func(tx Tx) error {
		existing, err := tx.FindPaymentByProviderRef(ctx, providerRef)
		if err != nil {
			return err
		}
		if existing != nil {
			result.Duplicate = true
			return nil
		}

		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Unknown order: acknowledge, nothing to reconcile.
				return nil
			}
			return err
		}
		if !order.Status.CanTransitionTo(models.OrderPaid) {
			slog.Info("payment event for non-CREATED order ignored",
				"order_id", orderID, "status", order.Status, "provider_ref", providerRef)
			return nil
		}

		if err := tx.UpdateOrderStatus(ctx, orderID, models.OrderCreated, models.OrderPaid); err != nil {
			return err
		}

		paymentID, err := utils.GenerateCode(8)
		if err != nil {
			return fmt.Errorf("generate payment id: %w", err)
		}
		if err := tx.InsertPayment(ctx, &models.Payment{
			ID:          paymentID,
			OrderID:     orderID,
			Provider:    r.provider,
			ProviderRef: providerRef,
			Status:      models.PaymentSucceeded,
			CreatedAt:   time.Now(),
		}); err != nil {
			return err
		}

		order.Status = models.OrderPaid
		result.Applied = true
		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied && r.notifier != nil {
		// Confirmation side effect must not block or roll back the
		// payment acknowledgment.
		r.notifier.OrderPaid(ctx, result.Order, providerRef)
	}
	return result, nil
}
