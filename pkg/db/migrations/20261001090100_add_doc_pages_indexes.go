package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/db"
)

func addDocPagesIndexes() db.Migration {
	return db.Migration{
		Version:     20261001090100,
		Description: "Index doc_pages by source path and fetch time",
		Up: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"CREATE UNIQUE INDEX IF NOT EXISTS idx_doc_pages_source_path ON doc_pages(source, path)",
				"CREATE INDEX IF NOT EXISTS idx_doc_pages_fetched_at ON doc_pages(source, fetched_at DESC)",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to execute %q", stmt)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, stmt := range []string{
				"DROP INDEX IF EXISTS idx_doc_pages_fetched_at",
				"DROP INDEX IF EXISTS idx_doc_pages_source_path",
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to execute %q", stmt)
				}
			}
			return nil
		},
	}
}
