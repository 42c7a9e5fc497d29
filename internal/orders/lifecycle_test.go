package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-shop/models"
)

func seedOrder(t *testing.T, store *memStore, svc *Service, userID string, qty int) *models.Order {
	t.Helper()

	result, err := svc.CreateOrder(context.Background(), userID, "ev1",
		[]OrderItemRequest{{TicketTypeID: "tt1", Qty: qty}}, orderEndpoint, "")
	require.NoError(t, err)
	return result.Order
}

func TestCancel_ReleasesInventory(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 3)

	svc := newTestService(store)
	order := seedOrder(t, store, svc, "user1", 2)
	require.Equal(t, 5, store.sold("tt1"))

	cancelled, err := svc.Cancel(context.Background(), order.ID, "user1")
	require.NoError(t, err)

	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	// Exactly the order's own quantity returns to the pool.
	assert.Equal(t, 3, store.sold("tt1"))
}

func TestCancel_PaidOrderRejected(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	order := seedOrder(t, store, svc, "user1", 2)

	// Pay the order through the reconciler.
	rec := NewReconciler(store, "yespay", nil)
	_, err := rec.Reconcile(context.Background(), order.ID, "ref-1")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), order.ID, "user1")

	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.OrderPaid, stateErr.From)
	assert.Equal(t, models.OrderCancelled, stateErr.To)

	// Inventory stays allocated.
	assert.Equal(t, 2, store.sold("tt1"))
}

func TestCancel_AlreadyCancelled(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	order := seedOrder(t, store, svc, "user1", 2)

	_, err := svc.Cancel(context.Background(), order.ID, "user1")
	require.NoError(t, err)
	require.Equal(t, 0, store.sold("tt1"))

	// A second cancel must not release inventory again.
	_, err = svc.Cancel(context.Background(), order.ID, "user1")

	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, 0, store.sold("tt1"))
}

func TestCancel_ForeignOrder(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	order := seedOrder(t, store, svc, "user1", 1)

	_, err := svc.Cancel(context.Background(), order.ID, "user2")

	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.sold("tt1"))
}

func TestCancel_UnknownOrder(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)

	_, err := svc.Cancel(context.Background(), "missing", "user1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetOrder_ScopedToOwner(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addTicketType("tt1", "ev1", 1000, 10, 0)

	svc := newTestService(store)
	order := seedOrder(t, store, svc, "user1", 1)

	got, err := svc.GetOrder(context.Background(), order.ID, "user1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Len(t, got.Items, 1)

	_, err = svc.GetOrder(context.Background(), order.ID, "user2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListTicketTypes_PublishedOnly(t *testing.T) {
	store := newMemStore()
	store.addEvent("ev1", models.EventPublished)
	store.addEvent("ev2", models.EventDraft)
	store.addTicketType("tt1", "ev1", 1000, 10, 4)
	store.addTicketType("tt2", "ev2", 1000, 10, 0)

	svc := newTestService(store)

	ticketTypes, err := svc.ListTicketTypes(context.Background(), "ev1")
	require.NoError(t, err)
	require.Len(t, ticketTypes, 1)
	assert.Equal(t, 6, ticketTypes[0].Remaining())

	_, err = svc.ListTicketTypes(context.Background(), "ev2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    models.OrderStatus
		to      models.OrderStatus
		allowed bool
	}{
		{models.OrderCreated, models.OrderPaid, true},
		{models.OrderCreated, models.OrderCancelled, true},
		{models.OrderPaid, models.OrderCancelled, false},
		{models.OrderPaid, models.OrderCreated, false},
		{models.OrderCancelled, models.OrderPaid, false},
		{models.OrderCancelled, models.OrderCreated, false},
		{models.OrderCreated, models.OrderCreated, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}

	assert.False(t, models.OrderCreated.Terminal())
	assert.True(t, models.OrderPaid.Terminal())
	assert.True(t, models.OrderCancelled.Terminal())
}
