package handlers

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"ticket-shop/internal/gateway"
	"ticket-shop/internal/orders"
	"ticket-shop/internal/services"
	"ticket-shop/internal/status"
	"ticket-shop/monitoring"
)

type WebhookHandler struct {
	provider   gateway.Provider
	reconciler *orders.Reconciler
	checkout   *services.CheckoutService
}

func NewWebhookHandler(provider gateway.Provider, reconciler *orders.Reconciler, checkout *services.CheckoutService) *WebhookHandler {
	return &WebhookHandler{
		provider:   provider,
		reconciler: reconciler,
		checkout:   checkout,
	}
}

// ConfirmationPayment receives the provider's signed payment webhook.
// Replays of an already reconciled reference are acknowledged without
// touching the order; a 500 tells the provider to redeliver.
func (h *WebhookHandler) ConfirmationPayment(e *core.RequestEvent) error {
	r := e.Request
	rClone := r.Clone(r.Context())

	var b bytes.Buffer
	b.ReadFrom(r.Body)
	r.Body = io.NopCloser(&b)

	// Update cloned request body
	rClone.Body = io.NopCloser(bytes.NewReader(b.Bytes()))

	// Read cloned request body
	rBody, _ := io.ReadAll(rClone.Body)

	signature := r.Header.Get("SignedHash")
	credential := r.Header.Get("X-Webhook-Token")
	tran, err := h.provider.VerifyWebhook(rBody, signature, credential)
	if err != nil {
		switch {
		case errors.Is(err, status.ErrInvalidSignature):
			monitoring.TrackWebhook("invalid_signature")
			slog.Warn("webhook signature rejected", "provider", h.provider.Name())
			return e.JSON(http.StatusUnauthorized, "invalid signature")
		default:
			monitoring.TrackWebhook("malformed")
			slog.Warn("malformed webhook body", "provider", h.provider.Name(), "error", err)
			return e.JSON(http.StatusBadRequest, "invalid hook request body")
		}
	}

	if tran.UUID == "" || tran.RefID == "" {
		monitoring.TrackWebhook("malformed")
		return e.JSON(http.StatusBadRequest, "invalid hook request body")
	}

	// Only settled transactions move an order. Everything else is an
	// informational status update and just gets acknowledged.
	if !tran.Final() {
		monitoring.TrackWebhook("not_final")
		slog.Info("non-final payment status acknowledged",
			"order_id", tran.UUID, "status", tran.Status)
		return e.JSON(http.StatusOK, map[string]any{
			"code":    200,
			"status":  "OK",
			"message": "Confirmation payment received.",
		})
	}

	result, err := h.reconciler.Reconcile(r.Context(), tran.UUID, tran.RefID)
	if err != nil {
		var validation *orders.ValidationError
		if errors.As(err, &validation) {
			monitoring.TrackWebhook("malformed")
			return e.JSON(http.StatusBadRequest, "invalid hook request body")
		}
		monitoring.TrackWebhook("failed")
		slog.Error("payment reconciliation failed",
			"order_id", tran.UUID, "provider_ref", tran.RefID, "error", err)
		return e.JSON(http.StatusInternalServerError, "reconciliation failed")
	}

	switch {
	case result.Applied:
		monitoring.TrackWebhook("applied")
		h.checkout.MarkSessionCompleted(r.Context(), tran.UUID)
	case result.Duplicate:
		monitoring.TrackWebhook("duplicate")
	default:
		monitoring.TrackWebhook("ignored")
	}

	return e.JSON(http.StatusOK, map[string]any{
		"code":    200,
		"status":  "OK",
		"message": "Confirmation payment successful.",
	})
}
