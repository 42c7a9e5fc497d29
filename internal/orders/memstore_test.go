package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticket-shop/models"
)

// memStore is an in-memory Store used by the engine tests. Its mutex
// serializes transactions the same way the SQLite write transaction
// does, and a pre-transaction snapshot gives it real rollback.
type memStore struct {
	mu sync.Mutex

	events      map[string]models.Event
	ticketTypes map[string]models.TicketType
	orders      map[string]models.Order
	orderItems  map[string][]models.OrderItem
	ledger      map[string]models.IdempotencyRecord
	payments    map[string]models.Payment // by provider_ref
}

func newMemStore() *memStore {
	return &memStore{
		events:      make(map[string]models.Event),
		ticketTypes: make(map[string]models.TicketType),
		orders:      make(map[string]models.Order),
		orderItems:  make(map[string][]models.OrderItem),
		ledger:      make(map[string]models.IdempotencyRecord),
		payments:    make(map[string]models.Payment),
	}
}

func ledgerKey(userID, endpoint, key string) string {
	return fmt.Sprintf("%s|%s|%s", userID, endpoint, key)
}

func (m *memStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&memTx{store: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *memStore) snapshot() *memStore {
	s := newMemStore()
	for k, v := range m.events {
		s.events[k] = v
	}
	for k, v := range m.ticketTypes {
		s.ticketTypes[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.orderItems {
		items := make([]models.OrderItem, len(v))
		copy(items, v)
		s.orderItems[k] = items
	}
	for k, v := range m.ledger {
		s.ledger[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	return s
}

func (m *memStore) restore(s *memStore) {
	m.events = s.events
	m.ticketTypes = s.ticketTypes
	m.orders = s.orders
	m.orderItems = s.orderItems
	m.ledger = s.ledger
	m.payments = s.payments
}

func (m *memStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return &event, nil
}

func (m *memStore) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok || order.UserID != userID {
		return nil, ErrNotFound
	}
	items := make([]models.OrderItem, len(m.orderItems[orderID]))
	copy(items, m.orderItems[orderID])
	order.Items = items
	return &order, nil
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Order
	for id, order := range m.orders {
		if order.UserID != userID {
			continue
		}
		items := make([]models.OrderItem, len(m.orderItems[id]))
		copy(items, m.orderItems[id])
		order.Items = items
		result = append(result, order)
	}
	return result, nil
}

func (m *memStore) ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.TicketType
	for _, tt := range m.ticketTypes {
		if tt.EventID == eventID {
			result = append(result, tt)
		}
	}
	return result, nil
}

func (m *memStore) GetIdempotencyRecord(ctx context.Context, userID, endpoint, key string) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.ledger[ledgerKey(userID, endpoint, key)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// test seeding helpers

func (m *memStore) addEvent(id string, status models.EventStatus) {
	m.events[id] = models.Event{ID: id, Name: "event " + id, Status: status}
}

func (m *memStore) addTicketType(id, eventID string, priceCents int64, total, sold int) {
	m.ticketTypes[id] = models.TicketType{
		ID:            id,
		EventID:       eventID,
		Name:          "type " + id,
		PriceCents:    priceCents,
		Currency:      "USD",
		QuantityTotal: total,
		QuantitySold:  sold,
	}
}

func (m *memStore) sold(ticketTypeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticketTypes[ticketTypeID].QuantitySold
}

type memTx struct {
	store *memStore
}

func (t *memTx) LockTicketTypes(ctx context.Context, eventID string, ticketTypeIDs []string) ([]models.TicketType, error) {
	var rows []models.TicketType
	for _, id := range ticketTypeIDs {
		tt, ok := t.store.ticketTypes[id]
		if !ok || tt.EventID != eventID {
			continue
		}
		rows = append(rows, tt)
	}
	return rows, nil
}

func (t *memTx) AddQuantitySold(ctx context.Context, ticketTypeID string, delta int) error {
	tt, ok := t.store.ticketTypes[ticketTypeID]
	if !ok {
		return ErrNotFound
	}
	tt.QuantitySold += delta
	t.store.ticketTypes[ticketTypeID] = tt
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.store.orders[order.ID] = *order
	return nil
}

func (t *memTx) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	for _, item := range items {
		t.store.orderItems[item.OrderID] = append(t.store.orderItems[item.OrderID], item)
	}
	return nil
}

func (t *memTx) ClaimIdempotencyKey(ctx context.Context, rec *models.IdempotencyRecord) error {
	k := ledgerKey(rec.UserID, rec.Endpoint, rec.Key)
	if existing, ok := t.store.ledger[k]; ok && !existing.Expired(time.Now()) {
		return ErrIdempotencyConflict
	}
	t.store.ledger[k] = *rec
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	order, ok := t.store.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &order, nil
}

func (t *memTx) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	items := make([]models.OrderItem, len(t.store.orderItems[orderID]))
	copy(items, t.store.orderItems[orderID])
	return items, nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	order, ok := t.store.orders[orderID]
	if !ok || order.Status != from {
		return ErrNotFound
	}
	order.Status = to
	t.store.orders[orderID] = order
	return nil
}

func (t *memTx) FindPaymentByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	payment, ok := t.store.payments[providerRef]
	if !ok {
		return nil, nil
	}
	return &payment, nil
}

func (t *memTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	t.store.payments[payment.ProviderRef] = *payment
	return nil
}
