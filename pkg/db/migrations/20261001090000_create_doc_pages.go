package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/db"
)

func createDocPages() db.Migration {
	return db.Migration{
		Version:     20261001090000,
		Description: "Create doc_pages table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS doc_pages (
					source TEXT NOT NULL,
					url TEXT NOT NULL,
					path TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					sha256 TEXT NOT NULL,
					status INTEGER NOT NULL,
					fetched_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (source, url)
				)
			`)
			return errors.Wrap(err, "failed to create doc_pages table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS doc_pages")
			return errors.Wrap(err, "failed to drop doc_pages table")
		},
	}
}
