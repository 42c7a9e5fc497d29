package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		_, err := app.DB().NewQuery(`
			CREATE TABLE IF NOT EXISTS orders (
				id          TEXT PRIMARY KEY,
				user_id     TEXT NOT NULL,
				event_id    TEXT NOT NULL REFERENCES events (id),
				status      TEXT NOT NULL DEFAULT 'CREATED'
					CHECK (status IN ('CREATED', 'PAID', 'CANCELLED')),
				total_cents INTEGER NOT NULL CHECK (total_cents >= 0),
				created     TEXT NOT NULL,
				updated     TEXT NOT NULL
			)
		`).Execute()
		if err != nil {
			return err
		}

		_, err = app.DB().NewQuery(`
			CREATE INDEX IF NOT EXISTS idx_orders_user
			ON orders (user_id, created)
		`).Execute()
		return err
	}, func(app core.App) error {
		_, err := app.DB().NewQuery(`DROP TABLE IF EXISTS orders`).Execute()
		return err
	})
}
