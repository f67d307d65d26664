// Package db opens the SQLite database used for crawl bookkeeping and
// applies its schema migrations.
package db

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/jingkaihe/agentkit/pkg/osutil"
)

// FileName is the database file name inside the data directory
const FileName = "docs.db"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// Open opens or creates the database at path, configured for WAL mode
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	if err := osutil.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}

	// modernc connections do not share pragmas, so keep a single one
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to execute %s", pragma)
		}
	}

	var mode string
	if err := db.GetContext(ctx, &mode, "PRAGMA journal_mode"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to query journal mode")
	}
	if !strings.EqualFold(mode, "wal") {
		db.Close()
		return nil, errors.Errorf("expected WAL journal mode, got %s", mode)
	}

	return db, nil
}

// OpenMigrated opens the database at path and applies migrations
func OpenMigrated(ctx context.Context, path string, migrations []Migration) (*sqlx.DB, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := NewMigrationRunner(db).Run(ctx, migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
