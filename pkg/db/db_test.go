package db_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/agentkit/pkg/db"
	"github.com/jingkaihe/agentkit/pkg/db/migrations"
)

func testMigrations() []db.Migration {
	return []db.Migration{
		{
			Version:     20240101000002,
			Description: "Add column",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("ALTER TABLE items ADD COLUMN name TEXT")
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec("ALTER TABLE items DROP COLUMN name")
				return err
			},
		},
		{
			Version:     20240101000001,
			Description: "Create items",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY)")
				return err
			},
		},
	}
}

func TestOpenCreatesDirectoryInWALMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", db.FileName)

	conn, err := db.Open(context.Background(), path)
	require.NoError(t, err)
	defer conn.Close()

	var mode string
	require.NoError(t, conn.Get(&mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
	assert.FileExists(t, path)
}

func TestMigrationRunnerOrdersAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer conn.Close()

	runner := db.NewMigrationRunner(conn)
	require.NoError(t, runner.Run(ctx, testMigrations()))
	require.NoError(t, runner.Run(ctx, testMigrations()))

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20240101000001, 20240101000002}, versions)

	_, err = conn.Exec("INSERT INTO items (id, name) VALUES (1, 'x')")
	require.NoError(t, err)
}

func TestMigrationRunnerRollback(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer conn.Close()

	runner := db.NewMigrationRunner(conn)
	require.NoError(t, runner.Run(ctx, testMigrations()))
	require.NoError(t, runner.Rollback(ctx, testMigrations()))

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20240101000001}, versions)

	// the first migration has no Down
	err = runner.Rollback(ctx, testMigrations())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be rolled back")
}

func TestMigrationFailureIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer conn.Close()

	broken := []db.Migration{{
		Version:     20240101000001,
		Description: "Broken",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE oops (")
			return err
		},
	}}

	runner := db.NewMigrationRunner(conn)
	require.Error(t, runner.Run(ctx, broken))

	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestDocPagesSchema(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenMigrated(ctx, filepath.Join(t.TempDir(), db.FileName), migrations.All())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT INTO doc_pages (source, url, path, title, sha256, status, fetched_at, updated_at)
		VALUES ('go', 'https://go.dev/doc/', 'doc/index.md', 'Docs', 'abc', 200, datetime('now'), datetime('now'))`)
	require.NoError(t, err)

	// (source, path) is unique
	_, err = conn.Exec(`INSERT INTO doc_pages (source, url, path, title, sha256, status, fetched_at, updated_at)
		VALUES ('go', 'https://go.dev/doc', 'doc/index.md', 'Docs', 'abc', 200, datetime('now'), datetime('now'))`)
	assert.Error(t, err)

	runner := db.NewMigrationRunner(conn)
	versions, err := runner.AppliedVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, len(migrations.All()))
}
