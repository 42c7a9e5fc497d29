package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		// provider_ref is unique so a webhook replay can never record
		// the same settlement twice.
		_, err := app.DB().NewQuery(`
			CREATE TABLE IF NOT EXISTS payments (
				id           TEXT PRIMARY KEY,
				order_id     TEXT NOT NULL REFERENCES orders (id),
				provider     TEXT NOT NULL,
				provider_ref TEXT NOT NULL UNIQUE,
				status       TEXT NOT NULL DEFAULT 'succeeded',
				created      TEXT NOT NULL
			)
		`).Execute()
		return err
	}, func(app core.App) error {
		_, err := app.DB().NewQuery(`DROP TABLE IF EXISTS payments`).Execute()
		return err
	})
}
