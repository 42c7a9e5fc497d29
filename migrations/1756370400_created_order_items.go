package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		_, err := app.DB().NewQuery(`
			CREATE TABLE IF NOT EXISTS order_items (
				id               TEXT PRIMARY KEY,
				order_id         TEXT NOT NULL REFERENCES orders (id),
				ticket_type_id   TEXT NOT NULL REFERENCES ticket_types (id),
				qty              INTEGER NOT NULL CHECK (qty > 0),
				unit_price_cents INTEGER NOT NULL CHECK (unit_price_cents >= 0),
				UNIQUE (order_id, ticket_type_id)
			)
		`).Execute()
		return err
	}, func(app core.App) error {
		_, err := app.DB().NewQuery(`DROP TABLE IF EXISTS order_items`).Execute()
		return err
	})
}
