package osutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "catalog.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWriteFileAtomicFailureKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	// a directory in place of the target makes the rename fail
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "child"), 0o755))
	assert.Error(t, WriteFileAtomic(blocked, []byte("x"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestExistsAndIsBinary(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "missing")))

	assert.False(t, IsBinary([]byte("# Title\n\ntext")))
	assert.True(t, IsBinary([]byte{0x89, 'P', 'N', 'G', 0x00}))
}

func TestWithFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")

	ran := false
	require.NoError(t, WithFileLock(context.Background(), path, func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	held := flock.New(path + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	err = WithFileLock(context.Background(), path, func() error { return nil })
	assert.True(t, errors.Is(err, ErrLocked))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(2 * time.Millisecond)
	err = WithFileLock(ctx, path, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithFileLockCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog", "skills.json")

	require.NoError(t, WithFileLock(context.Background(), path, func() error { return nil }))
	assert.DirExists(t, filepath.Dir(path))
}
