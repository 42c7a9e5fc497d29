package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		_, err := app.DB().NewQuery(`
			CREATE TABLE IF NOT EXISTS events (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				status     TEXT NOT NULL DEFAULT 'draft'
					CHECK (status IN ('draft', 'published', 'ended')),
				starts_at  TEXT,
				created    TEXT NOT NULL DEFAULT ''
			)
		`).Execute()
		return err
	}, func(app core.App) error {
		_, err := app.DB().NewQuery(`DROP TABLE IF EXISTS events`).Execute()
		return err
	})
}
