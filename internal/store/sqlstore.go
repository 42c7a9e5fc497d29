// Package store implements the order engine's repository contracts on
// top of PocketBase's SQLite database via dbx.
//
// Locking discipline: all writes happen inside app.RunInTransaction,
// and SQLite admits a single writer at a time, so every allocation
// attempt against a ticket type row is strictly serialized by the
// write transaction. That serialization is this store's contract with
// the allocator; a port to a server database must provide the same
// guarantee with SELECT ... FOR UPDATE row locks.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"ticket-shop/internal/orders"
	"ticket-shop/models"
)

type SQLStore struct {
	app core.App
}

func New(app core.App) *SQLStore {
	return &SQLStore{app: app}
}

func (s *SQLStore) RunInTransaction(ctx context.Context, fn func(tx orders.Tx) error) error {
	err := s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&sqlTx{db: txApp.DB()})
	})
	return wrapInfra(err)
}

func (s *SQLStore) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := s.app.DB().
		NewQuery("SELECT id, name, status FROM events WHERE id = {:id}").
		Bind(dbx.Params{"id": eventID}).
		WithContext(ctx).
		One(&event)
	if err != nil {
		return nil, wrapRead(err)
	}
	return &event, nil
}

func (s *SQLStore) GetOrder(ctx context.Context, orderID, userID string) (*models.Order, error) {
	var row orderRow
	err := s.app.DB().
		NewQuery("SELECT id, user_id, event_id, status, total_cents, created FROM orders WHERE id = {:id} AND user_id = {:user}").
		Bind(dbx.Params{"id": orderID, "user": userID}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, wrapRead(err)
	}

	order := row.toModel()
	items, err := loadOrderItems(ctx, s.app.DB(), orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *SQLStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var rows []orderRow
	err := s.app.DB().
		NewQuery("SELECT id, user_id, event_id, status, total_cents, created FROM orders WHERE user_id = {:user} ORDER BY created DESC").
		Bind(dbx.Params{"user": userID}).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, wrapRead(err)
	}

	result := make([]models.Order, 0, len(rows))
	for _, row := range rows {
		order := row.toModel()
		items, err := loadOrderItems(ctx, s.app.DB(), order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		result = append(result, *order)
	}
	return result, nil
}

func (s *SQLStore) ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	var rows []models.TicketType
	err := s.app.DB().
		NewQuery("SELECT id, event_id, name, price_cents, currency, quantity_total, quantity_sold FROM ticket_types WHERE event_id = {:event} ORDER BY id ASC").
		Bind(dbx.Params{"event": eventID}).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, wrapRead(err)
	}
	return rows, nil
}

func (s *SQLStore) GetIdempotencyRecord(ctx context.Context, userID, endpoint, key string) (*models.IdempotencyRecord, error) {
	var row idempotencyRow
	err := s.app.DB().
		NewQuery(`SELECT id, [key], user_id, endpoint, response_ref, expires_at FROM idempotency_keys WHERE user_id = {:user} AND endpoint = {:endpoint} AND [key] = {:key}`).
		Bind(dbx.Params{"user": userID, "endpoint": endpoint, "key": key}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapRead(err)
	}
	return row.toModel(), nil
}

// sqlTx runs against the transaction's dbx builder.
type sqlTx struct {
	db dbx.Builder
}

func (t *sqlTx) LockTicketTypes(ctx context.Context, eventID string, ticketTypeIDs []string) ([]models.TicketType, error) {
	ids := make([]any, len(ticketTypeIDs))
	for i, id := range ticketTypeIDs {
		ids[i] = id
	}

	var rows []models.TicketType
	err := t.db.
		Select("id", "event_id", "name", "price_cents", "currency", "quantity_total", "quantity_sold").
		From("ticket_types").
		Where(dbx.And(
			dbx.HashExp{"event_id": eventID},
			dbx.In("id", ids...),
		)).
		OrderBy("id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, wrapRead(err)
	}
	return rows, nil
}

func (t *sqlTx) AddQuantitySold(ctx context.Context, ticketTypeID string, delta int) error {
	result, err := t.db.
		NewQuery("UPDATE ticket_types SET quantity_sold = quantity_sold + {:delta} WHERE id = {:id}").
		Bind(dbx.Params{"delta": delta, "id": ticketTypeID}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return wrapInfra(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapInfra(err)
	}
	if affected == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := t.db.
		NewQuery("INSERT INTO orders (id, user_id, event_id, status, total_cents, created, updated) VALUES ({:id}, {:user}, {:event}, {:status}, {:total}, {:now}, {:now})").
		Bind(dbx.Params{
			"id":     order.ID,
			"user":   order.UserID,
			"event":  order.EventID,
			"status": string(order.Status),
			"total":  order.TotalCents,
			"now":    formatTime(order.CreatedAt),
		}).
		WithContext(ctx).
		Execute()
	return wrapInfra(err)
}

func (t *sqlTx) InsertOrderItems(ctx context.Context, items []models.OrderItem) error {
	for _, item := range items {
		_, err := t.db.
			NewQuery("INSERT INTO order_items (id, order_id, ticket_type_id, qty, unit_price_cents) VALUES ({:id}, {:order}, {:tt}, {:qty}, {:price})").
			Bind(dbx.Params{
				"id":    item.ID,
				"order": item.OrderID,
				"tt":    item.TicketTypeID,
				"qty":   item.Qty,
				"price": item.UnitPriceCents,
			}).
			WithContext(ctx).
			Execute()
		if err != nil {
			return wrapInfra(err)
		}
	}
	return nil
}

func (t *sqlTx) ClaimIdempotencyKey(ctx context.Context, rec *models.IdempotencyRecord) error {
	// Insert-or-reclaim: the upsert only takes over an existing row
	// when that row has expired. Zero affected rows means a live row is
	// held by a concurrent (or prior) writer.
	result, err := t.db.
		NewQuery(`INSERT INTO idempotency_keys (id, [key], user_id, endpoint, response_ref, expires_at)
			VALUES ({:id}, {:key}, {:user}, {:endpoint}, {:ref}, {:exp})
			ON CONFLICT(user_id, endpoint, [key]) DO UPDATE SET
				response_ref = excluded.response_ref,
				expires_at = excluded.expires_at
			WHERE idempotency_keys.expires_at < {:now}`).
		Bind(dbx.Params{
			"id":       rec.ID,
			"key":      rec.Key,
			"user":     rec.UserID,
			"endpoint": rec.Endpoint,
			"ref":      rec.ResponseRef,
			"exp":      formatTime(rec.ExpiresAt),
			"now":      formatTime(time.Now()),
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		if isUniqueViolation(err) {
			return orders.ErrIdempotencyConflict
		}
		return wrapInfra(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapInfra(err)
	}
	if affected == 0 {
		return orders.ErrIdempotencyConflict
	}
	return nil
}

func (t *sqlTx) GetOrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	var row orderRow
	err := t.db.
		NewQuery("SELECT id, user_id, event_id, status, total_cents, created FROM orders WHERE id = {:id}").
		Bind(dbx.Params{"id": orderID}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, wrapRead(err)
	}
	return row.toModel(), nil
}

func (t *sqlTx) GetOrderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return loadOrderItems(ctx, t.db, orderID)
}

func (t *sqlTx) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	result, err := t.db.
		NewQuery("UPDATE orders SET status = {:to}, updated = {:now} WHERE id = {:id} AND status = {:from}").
		Bind(dbx.Params{
			"to":   string(to),
			"from": string(from),
			"id":   orderID,
			"now":  formatTime(time.Now()),
		}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return wrapInfra(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapInfra(err)
	}
	if affected == 0 {
		return orders.ErrNotFound
	}
	return nil
}

func (t *sqlTx) FindPaymentByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	var row paymentRow
	err := t.db.
		NewQuery("SELECT id, order_id, provider, provider_ref, status, created FROM payments WHERE provider_ref = {:ref}").
		Bind(dbx.Params{"ref": providerRef}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapRead(err)
	}
	return row.toModel(), nil
}

func (t *sqlTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	_, err := t.db.
		NewQuery("INSERT INTO payments (id, order_id, provider, provider_ref, status, created) VALUES ({:id}, {:order}, {:provider}, {:ref}, {:status}, {:now})").
		Bind(dbx.Params{
			"id":       payment.ID,
			"order":    payment.OrderID,
			"provider": payment.Provider,
			"ref":      payment.ProviderRef,
			"status":   string(payment.Status),
			"now":      formatTime(payment.CreatedAt),
		}).
		WithContext(ctx).
		Execute()
	return wrapInfra(err)
}

func loadOrderItems(ctx context.Context, db dbx.Builder, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := db.
		NewQuery("SELECT id, order_id, ticket_type_id, qty, unit_price_cents FROM order_items WHERE order_id = {:order} ORDER BY ticket_type_id ASC").
		Bind(dbx.Params{"order": orderID}).
		WithContext(ctx).
		All(&items)
	if err != nil {
		return nil, wrapRead(err)
	}
	return items, nil
}

// Row types isolate SQLite's text timestamps from the domain structs.

type orderRow struct {
	ID         string         `db:"id"`
	UserID     string         `db:"user_id"`
	EventID    string         `db:"event_id"`
	Status     string         `db:"status"`
	TotalCents int64          `db:"total_cents"`
	Created    types.DateTime `db:"created"`
}

func (r orderRow) toModel() *models.Order {
	return &models.Order{
		ID:         r.ID,
		UserID:     r.UserID,
		EventID:    r.EventID,
		Status:     models.OrderStatus(r.Status),
		TotalCents: r.TotalCents,
		CreatedAt:  r.Created.Time(),
	}
}

type paymentRow struct {
	ID          string         `db:"id"`
	OrderID     string         `db:"order_id"`
	Provider    string         `db:"provider"`
	ProviderRef string         `db:"provider_ref"`
	Status      string         `db:"status"`
	Created     types.DateTime `db:"created"`
}

func (r paymentRow) toModel() *models.Payment {
	return &models.Payment{
		ID:          r.ID,
		OrderID:     r.OrderID,
		Provider:    r.Provider,
		ProviderRef: r.ProviderRef,
		Status:      models.PaymentStatus(r.Status),
		CreatedAt:   r.Created.Time(),
	}
}

type idempotencyRow struct {
	ID          string         `db:"id"`
	Key         string         `db:"key"`
	UserID      string         `db:"user_id"`
	Endpoint    string         `db:"endpoint"`
	ResponseRef string         `db:"response_ref"`
	ExpiresAt   types.DateTime `db:"expires_at"`
}

func (r idempotencyRow) toModel() *models.IdempotencyRecord {
	return &models.IdempotencyRecord{
		ID:          r.ID,
		Key:         r.Key,
		UserID:      r.UserID,
		Endpoint:    r.Endpoint,
		ResponseRef: r.ResponseRef,
		ExpiresAt:   r.ExpiresAt.Time(),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(types.DefaultDateLayout)
}

func wrapRead(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return orders.ErrNotFound
	}
	return wrapInfra(err)
}

// wrapInfra classifies driver-level failures as transient so callers
// can retry at the transaction boundary. Business errors and context
// cancellations pass through untouched.
func wrapInfra(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "connection") {
		return &orders.TransientError{Err: err}
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
