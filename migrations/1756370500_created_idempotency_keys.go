package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		// One live claim per (user, endpoint, key). Expired rows are
		// reclaimed in place by a conditional upsert rather than a
		// background sweeper.
		_, err := app.DB().NewQuery(`
			CREATE TABLE IF NOT EXISTS idempotency_keys (
				id           TEXT PRIMARY KEY,
				user_id      TEXT NOT NULL,
				endpoint     TEXT NOT NULL,
				[key]        TEXT NOT NULL,
				response_ref TEXT NOT NULL REFERENCES orders (id),
				expires_at   TEXT NOT NULL,
				UNIQUE (user_id, endpoint, [key])
			)
		`).Execute()
		return err
	}, func(app core.App) error {
		_, err := app.DB().NewQuery(`DROP TABLE IF EXISTS idempotency_keys`).Execute()
		return err
	})
}
