package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-shop/internal/orders"
	"ticket-shop/internal/services"
	"ticket-shop/internal/status"
	"ticket-shop/models"
	"ticket-shop/monitoring"
)

type OrderHandler struct {
	app        *pocketbase.PocketBase
	orders     *orders.Service
	checkout   *services.CheckoutService
	notifier   *services.Notifier
	reconciler *orders.Reconciler
}

func NewOrderHandler(app *pocketbase.PocketBase, orderService *orders.Service, checkout *services.CheckoutService, notifier *services.Notifier, reconciler *orders.Reconciler) *OrderHandler {
	return &OrderHandler{
		app:        app,
		orders:     orderService,
		checkout:   checkout,
		notifier:   notifier,
		reconciler: reconciler,
	}
}

type createOrderRequest struct {
	Items          []orders.OrderItemRequest `json:"items"`
	IdempotencyKey string                    `json:"idempotency_key"`
}

// CreateOrder - reserve inventory and create an order for the event
func (h *OrderHandler) CreateOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("eventId")
	ctx := e.Request.Context()

	var req createOrderRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	// Header wins over body, matching common client libraries.
	idempotencyKey := e.Request.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		idempotencyKey = req.IdempotencyKey
	}
	endpoint := fmt.Sprintf("POST:/api/v1/events/%s/orders", eventID)

	start := time.Now()
	result, err := h.orders.CreateOrder(ctx, e.Auth.Id, eventID, req.Items, endpoint, idempotencyKey)
	monitoring.TrackAllocation(createOutcome(result, err), time.Since(start))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"order":  result.Order,
		"cached": result.Cached,
	})
}

// ListOrders - list the authenticated user's orders
func (h *OrderHandler) ListOrders(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	list, err := h.orders.ListOrders(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"orders": list})
}

// GetOrder - fetch one of the user's orders
func (h *OrderHandler) GetOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	order, err := h.orders.GetOrder(e.Request.Context(), orderID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, order)
}

// CancelOrder - cancel a CREATED order and release its inventory
func (h *OrderHandler) CancelOrder(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	ctx := e.Request.Context()

	order, err := h.orders.Cancel(ctx, orderID, e.Auth.Id)
	if err != nil {
		monitoring.TrackCancellation("rejected")
		return apiError(err)
	}
	monitoring.TrackCancellation("cancelled")

	h.checkout.MarkSessionCancelled(ctx, orderID)
	h.notifier.OrderCancelled(ctx, order)

	return e.JSON(http.StatusOK, order)
}

// Checkout - open a provider checkout session for a CREATED order
func (h *OrderHandler) Checkout(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	url, err := h.checkout.CreateSession(e.Request.Context(), orderID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"url": url})
}

// GetCheckoutSession - report the order's checkout session state
//
// While the session is still pending the provider is polled directly,
// so a buyer returning from the hosted checkout page sees the paid
// order even when the webhook or stream delivery is delayed.
func (h *OrderHandler) GetCheckoutSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	orderID := e.Request.PathValue("orderId")
	ctx := e.Request.Context()

	order, err := h.orders.GetOrder(ctx, orderID, e.Auth.Id)
	if err != nil {
		return apiError(err)
	}

	session, err := h.checkout.GetSession(ctx, orderID)
	if err != nil {
		if errors.Is(err, status.ErrSessionNotFound) {
			return apis.NewNotFoundError("No checkout session for this order", nil)
		}
		return apiError(err)
	}

	if session["status"] == "pending" && order.Status == models.OrderCreated {
		tran, err := h.checkout.CheckPending(ctx, orderID)
		if err != nil {
			slog.Warn("checkout session poll failed", "order_id", orderID, "error", err)
		} else if tran != nil {
			result, err := h.reconciler.Reconcile(ctx, orderID, tran.RefID)
			if err != nil {
				return apiError(err)
			}
			if result.Applied || result.Duplicate {
				h.checkout.MarkSessionCompleted(ctx, orderID)
				session["status"] = "completed"
				order.Status = models.OrderPaid
			}
		}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"session":      session,
		"order_status": order.Status,
	})
}

// ListTicketTypes - list the event's ticket types with remaining capacity
func (h *OrderHandler) ListTicketTypes(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	ticketTypes, err := h.orders.ListTicketTypes(e.Request.Context(), eventID)
	if err != nil {
		return apiError(err)
	}

	result := make([]map[string]any, 0, len(ticketTypes))
	for _, tt := range ticketTypes {
		result = append(result, map[string]any{
			"id":          tt.ID,
			"name":        tt.Name,
			"price_cents": tt.PriceCents,
			"currency":    tt.Currency,
			"remaining":   tt.Remaining(),
		})
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket_types": result})
}

func createOutcome(result *orders.CreateOrderResult, err error) string {
	switch {
	case err == nil && result.Cached:
		return "cached"
	case err == nil:
		return "created"
	default:
		var inv *orders.InsufficientInventoryError
		if errors.As(err, &inv) {
			return "insufficient_inventory"
		}
		return "rejected"
	}
}

// apiError maps the engine's error taxonomy onto HTTP responses.
func apiError(err error) error {
	var (
		validation *orders.ValidationError
		inventory  *orders.InsufficientInventoryError
		transition *orders.InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &validation):
		return apis.NewBadRequestError(validation.Msg, nil)
	case errors.Is(err, orders.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.As(err, &inventory):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case errors.As(err, &transition):
		return apis.NewApiError(http.StatusConflict,
			fmt.Sprintf("Order is %s and cannot be modified", transition.From), nil)
	case errors.Is(err, orders.ErrGateway):
		return apis.NewApiError(http.StatusBadGateway, "Payment gateway unavailable", nil)
	case orders.IsTransient(err):
		return apis.NewApiError(http.StatusServiceUnavailable, "Temporarily unavailable, please retry", nil)
	default:
		return apis.NewInternalServerError("internal error", err)
	}
}
