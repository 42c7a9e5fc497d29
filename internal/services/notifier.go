package services

import (
	"context"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go"

	"ticket-shop/models"
)

// Notifier publishes best-effort buyer notifications over PubNub.
// Failures are logged and swallowed; a lost notification must never
// fail the payment acknowledgment or the cancellation.
type Notifier struct {
	pn *pubnub.PubNub
}

func NewNotifier(pn *pubnub.PubNub) *Notifier {
	return &Notifier{pn: pn}
}

// OrderPaid tells the buyer their order was confirmed.
func (n *Notifier) OrderPaid(ctx context.Context, order *models.Order, providerRef string) {
	if n.pn == nil {
		return
	}
	channel := fmt.Sprintf("user-%s", order.UserID)
	_, pnStatus, err := n.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":         "payment_success",
			"order_id":     order.ID,
			"provider_ref": providerRef,
			"total_cents":  order.TotalCents,
		}).
		Execute()
	if err != nil || pnStatus.Error != nil {
		slog.Error("order confirmation publish failed",
			"order_id", order.ID, "error", err)
	}
}

// OrderCancelled tells the buyer their cancellation went through and
// the seats returned to the pool.
func (n *Notifier) OrderCancelled(ctx context.Context, order *models.Order) {
	if n.pn == nil {
		return
	}
	channel := fmt.Sprintf("user-%s", order.UserID)
	_, pnStatus, err := n.pn.Publish().
		Channel(channel).
		Message(map[string]any{
			"type":     "order_cancelled",
			"order_id": order.ID,
		}).
		Execute()
	if err != nil || pnStatus.Error != nil {
		slog.Error("cancellation publish failed",
			"order_id", order.ID, "error", err)
	}
}
