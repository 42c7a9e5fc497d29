package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-shop/internal/gateway"
	"ticket-shop/internal/orders"
	"ticket-shop/internal/status"
	"ticket-shop/models"
	"ticket-shop/utils"
)

// CheckoutService opens provider checkout sessions for CREATED orders
// and keeps a TTL-bounded session cache in Redis so a buyer re-opening
// the checkout page gets the same redirect URL instead of a second
// provider session.
type CheckoutService struct {
	Redis    *redis.Client
	provider gateway.Provider
	orders   *orders.Service
	breaker  *utils.CircuitBreaker
	ttl      time.Duration
	baseURL  string
}

func NewCheckoutService(redisClient *redis.Client, provider gateway.Provider, orderService *orders.Service, ttl time.Duration, baseURL string) *CheckoutService {
	return &CheckoutService{
		Redis:    redisClient,
		provider: provider,
		orders:   orderService,
		breaker:  utils.NewCircuitBreaker("payment-gateway"),
		ttl:      ttl,
		baseURL:  baseURL,
	}
}

// CreateSession returns the checkout redirect URL for the order. Valid
// only while the order is CREATED.
func (s *CheckoutService) CreateSession(ctx context.Context, orderID, userID string) (string, error) {
	order, err := s.orders.GetOrder(ctx, orderID, userID)
	if err != nil {
		return "", err
	}
	if order.Status != models.OrderCreated {
		return "", &orders.InvalidStateTransitionError{
			OrderID: orderID,
			From:    order.Status,
			To:      models.OrderPaid,
		}
	}

	if url := s.cachedSessionURL(ctx, orderID); url != "" {
		return url, nil
	}

	form := &status.CheckoutForm{
		UUID:        order.ID,
		UserRef:     order.UserID,
		Amount:      decimal.New(order.TotalCents, -2),
		Currency:    s.orderCurrency(ctx, order),
		Description: fmt.Sprintf("order %s (%d items)", order.ID, len(order.Items)),
		SuccessURL:  fmt.Sprintf("%s/orders/success?orderId=%s", s.baseURL, order.ID),
		CancelURL:   fmt.Sprintf("%s/orders/cancel?orderId=%s", s.baseURL, order.ID),
	}

	result, err := s.breaker.Execute(ctx, func() (any, error) {
		return s.provider.CreateCheckoutSession(ctx, form)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", orders.ErrGateway, err)
	}
	url := result.(string)

	s.cacheSession(ctx, order, url)
	return url, nil
}

// MarkSessionCompleted flips the cached session status after a
// successful reconciliation. Best effort.
func (s *CheckoutService) MarkSessionCompleted(ctx context.Context, orderID string) {
	s.setSessionStatus(ctx, orderID, "completed")
}

// MarkSessionCancelled flips the cached session status after a user
// cancellation. Best effort.
func (s *CheckoutService) MarkSessionCancelled(ctx context.Context, orderID string) {
	s.setSessionStatus(ctx, orderID, "cancelled")
}

// CheckPending asks the provider whether a pending session's payment
// has settled, covering the window where the webhook or stream delivery
// is delayed or lost. Returns nil without error while the provider has
// nothing final for the order.
func (s *CheckoutService) CheckPending(ctx context.Context, orderID string) (*status.Transaction, error) {
	result, err := s.breaker.Execute(ctx, func() (any, error) {
		tran, err := s.provider.CheckTransaction(ctx, orderID)
		if errors.Is(err, status.ErrFailedPayment) {
			// No settled transaction yet. The gateway answered, so
			// this must not count against the breaker.
			return (*status.Transaction)(nil), nil
		}
		return tran, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", orders.ErrGateway, err)
	}
	tran := result.(*status.Transaction)
	if tran == nil || !tran.Final() {
		return nil, nil
	}
	return tran, nil
}

// GetSession returns the cached session fields for an order, or
// status.ErrSessionNotFound.
func (s *CheckoutService) GetSession(ctx context.Context, orderID string) (map[string]string, error) {
	data, err := s.Redis.HGetAll(ctx, sessionKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, status.ErrSessionNotFound
	}
	return data, nil
}

func (s *CheckoutService) cachedSessionURL(ctx context.Context, orderID string) string {
	data, err := s.Redis.HGetAll(ctx, sessionKey(orderID)).Result()
	if err != nil || len(data) == 0 {
		return ""
	}
	if data["status"] != "pending" {
		return ""
	}
	return data["url"]
}

func (s *CheckoutService) cacheSession(ctx context.Context, order *models.Order, url string) {
	key := sessionKey(order.ID)
	now := time.Now()

	err := s.Redis.HSet(ctx, key, map[string]any{
		"order_id":   order.ID,
		"user_id":    order.UserID,
		"url":        url,
		"status":     "pending",
		"created_at": now.Unix(),
		"expires_at": now.Add(s.ttl).Unix(),
	}).Err()
	if err != nil {
		slog.Error("failed to cache checkout session", "order_id", order.ID, "error", err)
		return
	}
	s.Redis.Expire(ctx, key, s.ttl)
}

func (s *CheckoutService) setSessionStatus(ctx context.Context, orderID, newStatus string) {
	key := sessionKey(orderID)
	exists, err := s.Redis.Exists(ctx, key).Result()
	if err != nil || exists == 0 {
		return
	}
	if err := s.Redis.HSet(ctx, key, "status", newStatus).Err(); err != nil {
		slog.Error("failed to update checkout session status",
			"order_id", orderID, "status", newStatus, "error", err)
	}
}

// orderCurrency resolves the order's currency from its event's ticket
// types; every item of an order shares the event's currency.
func (s *CheckoutService) orderCurrency(ctx context.Context, order *models.Order) string {
	ticketTypes, err := s.orders.ListTicketTypes(ctx, order.EventID)
	if err != nil || len(ticketTypes) == 0 {
		return "USD"
	}
	if len(order.Items) > 0 {
		for _, tt := range ticketTypes {
			if tt.ID == order.Items[0].TicketTypeID {
				return tt.Currency
			}
		}
	}
	return ticketTypes[0].Currency
}

func sessionKey(orderID string) string {
	return fmt.Sprintf("checkout:%s", orderID)
}
