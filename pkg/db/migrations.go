package db

import (
	"cmp"
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Migration is a schema change identified by a YYYYMMDDHHmmss version
type Migration struct {
	Version     int64
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error
}

// MigrationRunner applies migrations and records them in schema_migrations
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner returns a runner for db
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run applies every migration not yet recorded, in version order
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	applied, err := r.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	done := lo.SliceToMap(applied, func(v int64) (int64, bool) { return v, true })

	pending := lo.Filter(migrations, func(m Migration, _ int) bool { return !done[m.Version] })
	slices.SortFunc(pending, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})

	for _, m := range pending {
		if err := r.inTx(ctx, m.Up, func(tx *sqlx.Tx) error {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
				m.Version, time.Now().UTC(), m.Description)
			return err
		}); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d (%s)", m.Version, m.Description)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration
func (r *MigrationRunner) Rollback(ctx context.Context, migrations []Migration) error {
	applied, err := r.AppliedVersions(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	latest := applied[len(applied)-1]

	m, ok := lo.Find(migrations, func(m Migration) bool { return m.Version == latest })
	if !ok {
		return errors.Errorf("migration %d not found", latest)
	}
	if m.Down == nil {
		return errors.Errorf("migration %d cannot be rolled back", latest)
	}

	return r.inTx(ctx, m.Down, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
}

// AppliedVersions returns applied migration versions in ascending order
func (r *MigrationRunner) AppliedVersions(ctx context.Context) ([]int64, error) {
	if _, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL,
			description TEXT
		)
	`); err != nil {
		return nil, errors.Wrap(err, "failed to create schema_migrations table")
	}

	var versions []int64
	if err := r.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"); err != nil {
		return nil, errors.Wrap(err, "failed to read applied migrations")
	}
	return versions, nil
}

func (r *MigrationRunner) inTx(ctx context.Context, change func(*sql.Tx) error, record func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := change(tx.Tx); err != nil {
		return err
	}
	if err := record(tx); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}
	return tx.Commit()
}
