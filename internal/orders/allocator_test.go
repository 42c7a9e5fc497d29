package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-shop/models"
)

const orderEndpoint = "POST:/api/v1/events/ev1/orders"

func newTestService(store *memStore) *Service {
	return NewService(store, 24*time.Hour)
}

func TestCreateOrder_AllocatesAndSnapshotsPrice(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 2500, 100, 0)
	store.addTicketType("tt2", "ev1", 5000, 50, 10)

	svc := newTestService(store)

	result, err := svc.CreateOrder(context.Background(), "user1", "ev1", []OrderItemRequest{
		{TicketTypeID: "tt1", Qty: 2},
		{TicketTypeID: "tt2", Qty: 1},
	}, orderEndpoint, "")

	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, models.OrderCreated, result.Order.Status)
	assert.Equal(t, int64(2*2500+5000), result.Order.TotalCents)
	assert.Len(t, result.Order.Items, 2)

	assert.Equal(t, 2, store.sold("tt1"))
	assert.Equal(t, 11, store.sold("tt2"))

	// Unit prices are frozen on the items.
	for _, item := range result.Order.Items {
		switch item.TicketTypeID {
		case "tt1":
			assert.Equal(t, int64(2500), item.UnitPriceCents)
			assert.Equal(t, 2, item.Qty)
		case "tt2":
			assert.Equal(t, int64(5000), item.UnitPriceCents)
			assert.Equal(t, 1, item.Qty)
		}
	}
}

func TestCreateOrder_MergesDuplicateLines(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)

	result, err := svc.CreateOrder(context.Background(), "user1", "ev1", []OrderItemRequest{
		{TicketTypeID: "tt1", Qty: 2},
		{TicketTypeID: "tt1", Qty: 3},
	}, orderEndpoint, "")

	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.Equal(t, 5, result.Order.Items[0].Qty)
	assert.Equal(t, int64(5000), result.Order.TotalCents)
	assert.Equal(t, 5, store.sold("tt1"))
}

func TestCreateOrder_InsufficientInventory(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 50, 49)
	store.addTicketType("tt2", "ev1", 1000, 50, 0)

	svc := newTestService(store)

	// tt1 has one seat left; asking for two must fail and must not
	// touch tt2 either.
	_, err := svc.CreateOrder(context.Background(), "user1", "ev1", []OrderItemRequest{
		{TicketTypeID: "tt1", Qty: 2},
		{TicketTypeID: "tt2", Qty: 5},
	}, orderEndpoint, "")

	var invErr *InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "tt1", invErr.TicketTypeID)

	assert.Equal(t, 49, store.sold("tt1"))
	assert.Equal(t, 0, store.sold("tt2"))
	assert.Empty(t, store.orders)
}

func TestCreateOrder_LastSeat(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 50, 49)

	svc := newTestService(store)

	result, err := svc.CreateOrder(context.Background(), "user1", "ev1", []OrderItemRequest{
		{TicketTypeID: "tt1", Qty: 1},
	}, orderEndpoint, "")

	require.NoError(t, err)
	assert.Equal(t, 50, store.sold("tt1"))
	assert.Equal(t, int64(1000), result.Order.TotalCents)

	// Pool is exhausted now.
	_, err = svc.CreateOrder(context.Background(), "user2", "ev1", []OrderItemRequest{
		{TicketTypeID: "tt1", Qty: 1},
	}, orderEndpoint, "")

	var invErr *InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
}

func TestCreateOrder_UnknownTicketType(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), "user1", "ev1", []OrderItemRequest{
		{TicketTypeID: "tt1", Qty: 1},
		{TicketTypeID: "missing", Qty: 1},
	}, orderEndpoint, "")

	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.sold("tt1"))
}

func TestCreateOrder_TicketTypeOfOtherEvent(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addEvent("ev2", models.EventPublished)
	store.addTicketType("tt1", "ev2", 1000, 10, 0)

	svc := newTestService(store)

	_, err := svc.CreateOrder(context.Background(), "user1", "ev1", []OrderItemRequest{
		{TicketTypeID: "tt1", Qty: 1},
	}, orderEndpoint, "")

	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrder_UnpublishedEvent(t *testing.T) {
	for _, status := range []models.EventStatus{models.EventDraft, models.EventEnded} {
		store := newMemStore()
		store.addEvent("ev1", status)
		store.addTicketType("tt1", "ev1", 1000, 10, 0)

		svc := newTestService(store)

		_, err := svc.CreateOrder(context.Background(), "user1", "ev1", []OrderItemRequest{
			{TicketTypeID: "tt1", Qty: 1},
		}, orderEndpoint, "")

		require.ErrorIs(t, err, ErrNotFound, "event status %s", status)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		items  []OrderItemRequest
	}{
		{"missing user", "", []OrderItemRequest{{TicketTypeID: "tt1", Qty: 1}}},
		{"no items", "user1", nil},
		{"zero qty", "user1", []OrderItemRequest{{TicketTypeID: "tt1", Qty: 0}}},
		{"negative qty", "user1", []OrderItemRequest{{TicketTypeID: "tt1", Qty: -2}}},
		{"missing ticket type id", "user1", []OrderItemRequest{{TicketTypeID: "", Qty: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tt.userID, "ev1", tt.items, orderEndpoint, "")

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, 0, store.sold("tt1"))
		})
	}
}

func TestCreateOrder_IdempotentRetry(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	ctx := context.Background()
	items := []OrderItemRequest{{TicketTypeID: "tt1", Qty: 2}}

	first, err := svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "key-1")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	// Only the first call allocated.
	assert.Equal(t, 2, store.sold("tt1"))
	assert.Len(t, store.orders, 1)
}

func TestCreateOrder_IdempotentRetryAfterEventEnded(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	ctx := context.Background()
	items := []OrderItemRequest{{TicketTypeID: "tt1", Qty: 2}}

	first, err := svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "key-1")
	require.NoError(t, err)

	// The event closes after the purchase. A retry with the same key
	// must still resolve to the original order.
	store.addEvent("ev1", models.EventEnded)

	second, err := svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "key-1")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 2, store.sold("tt1"))

	// A fresh key against the closed event is still rejected.
	_, err = svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "key-2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOrder_SameKeyDifferentUsers(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	ctx := context.Background()
	items := []OrderItemRequest{{TicketTypeID: "tt1", Qty: 1}}

	first, err := svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "shared-key")
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, "user2", "ev1", items, orderEndpoint, "shared-key")
	require.NoError(t, err)

	// Keys are scoped per user; both orders allocate.
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 2, store.sold("tt1"))
}

func TestCreateOrder_ExpiredKeyReallocates(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	ctx := context.Background()
	items := []OrderItemRequest{{TicketTypeID: "tt1", Qty: 1}}

	first, err := svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "key-1")
	require.NoError(t, err)

	// Age the ledger row past its TTL.
	k := ledgerKey("user1", orderEndpoint, "key-1")
	rec := store.ledger[k]
	rec.ExpiresAt = time.Now().Add(-time.Minute)
	store.ledger[k] = rec

	second, err := svc.CreateOrder(ctx, "user1", "ev1", items, orderEndpoint, "key-1")
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, 2, store.sold("tt1"))
}

func TestCreateOrder_ConcurrentSameKey(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	items := []OrderItemRequest{{TicketTypeID: "tt1", Qty: 1}}

	var wg sync.WaitGroup
	results := make([]*CreateOrderResult, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.CreateOrder(context.Background(), "user1", "ev1", items, orderEndpoint, "key-1")
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	// Exactly one allocation happened; every caller got the same order.
	assert.Equal(t, 1, store.sold("tt1"))
	assert.Len(t, store.orders, 1)
	for _, result := range results {
		require.NotNil(t, result)
		assert.Equal(t, results[0].Order.ID, result.Order.ID)
	}
}

func TestCreateOrder_ConcurrentOversubscription(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 5, 0)

	svc := newTestService(store)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	rejected := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), "user1", "ev1",
				[]OrderItemRequest{{TicketTypeID: "tt1", Qty: 1}}, orderEndpoint, "")

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var invErr *InsufficientInventoryError
			assert.ErrorAs(t, err, &invErr)
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 5, store.sold("tt1"))
}
