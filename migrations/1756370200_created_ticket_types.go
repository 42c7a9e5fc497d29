package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		_, err := app.DB().NewQuery(`
			CREATE TABLE IF NOT EXISTS ticket_types (
				id             TEXT PRIMARY KEY,
				event_id       TEXT NOT NULL REFERENCES events (id),
				name           TEXT NOT NULL,
				price_cents    INTEGER NOT NULL CHECK (price_cents >= 0),
				currency       TEXT NOT NULL DEFAULT 'USD',
				quantity_total INTEGER NOT NULL CHECK (quantity_total >= 0),
				quantity_sold  INTEGER NOT NULL DEFAULT 0
					CHECK (quantity_sold >= 0 AND quantity_sold <= quantity_total)
			)
		`).Execute()
		if err != nil {
			return err
		}

		_, err = app.DB().NewQuery(`
			CREATE INDEX IF NOT EXISTS idx_ticket_types_event
			ON ticket_types (event_id)
		`).Execute()
		return err
	}, func(app core.App) error {
		_, err := app.DB().NewQuery(`DROP TABLE IF EXISTS ticket_types`).Execute()
		return err
	})
}
