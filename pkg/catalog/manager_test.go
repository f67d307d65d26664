package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/agentkit/pkg/artifact"
)

type fixture struct {
	dir string
	m   *Manager
	now time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		dir: t.TempDir(),
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	ids := 0
	opts = append([]Option{
		WithKind(artifact.KindSkill),
		WithClock(func() time.Time { return f.now }),
	}, opts...)
	f.m = NewManager(Path(f.dir, artifact.KindSkill), opts...)
	f.m.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return f
}

func (f *fixture) artifactFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, "skills", name, "SKILL.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("---\nname: "+name+"\n---\n"), 0o644))
	return path
}

func entry(name string, scope artifact.Scope, path string) Entry {
	return Entry{Name: name, Scope: scope, Path: path, Description: name + " description"}
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat, err := f.m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, cat.Version)
	assert.Empty(t, cat.Entries)

	require.NoError(t, os.MkdirAll(filepath.Dir(f.m.Path()), 0o755))
	require.NoError(t, os.WriteFile(f.m.Path(), []byte("{not json"), 0o644))
	_, err = f.m.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), f.m.Path())
}

func TestAddRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.artifactFile(t, "pdf")

	added, err := f.m.Add(ctx, entry("pdf", artifact.ScopeGlobal, path))
	require.NoError(t, err)
	assert.Equal(t, "id-1", added.ID)
	assert.Equal(t, f.now, added.CreatedAt)

	_, err = f.m.Add(ctx, entry("pdf", artifact.ScopeGlobal, path))
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	// same name in another scope is a different entry
	_, err = f.m.Add(ctx, entry("pdf", artifact.ScopeProject, path))
	require.NoError(t, err)

	entries, err := f.m.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, artifact.ScopeGlobal, entries[0].Scope)
	assert.Equal(t, artifact.ScopeProject, entries[1].Scope)
}

func TestAddRejectsRelativePath(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.Add(context.Background(), entry("pdf", artifact.ScopeGlobal, "skills/pdf/SKILL.md"))
	require.Error(t, err)
	assert.NoFileExists(t, f.m.Path())
}

func TestAddCreatesCatalogDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "fresh")
	m := NewManager(Path(dataDir, artifact.KindSkill), WithKind(artifact.KindSkill), WithBackup(true))
	require.NoDirExists(t, filepath.Dir(m.Path()))

	path := filepath.Join(t.TempDir(), "skills", "pdf", "SKILL.md")
	added, err := m.Add(context.Background(), entry("pdf", artifact.ScopeGlobal, path))
	require.NoError(t, err)
	assert.Equal(t, "pdf", added.Name)
	assert.FileExists(t, m.Path())
	assert.NoFileExists(t, m.BackupPath())
}

func TestUpsertMergesAndKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.artifactFile(t, "pdf")

	e := entry("pdf", artifact.ScopeGlobal, path)
	e.Metadata = map[string]any{"tools": []string{"Read"}, "source": "owner/repo"}
	first, err := f.m.Upsert(ctx, e)
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	second, err := f.m.Upsert(ctx, Entry{
		Name:        "pdf",
		Scope:       artifact.ScopeGlobal,
		Description: "new description",
		Metadata:    map[string]any{"tools": []string{"Read", "Bash"}},
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, f.now, second.UpdatedAt)
	assert.Equal(t, "new description", second.Description)
	assert.Equal(t, path, second.Path)
	assert.Equal(t, "owner/repo", second.Metadata["source"])
	assert.Equal(t, []string{"Read", "Bash"}, second.Metadata["tools"])

	got, err := f.m.Get(ctx, "pdf", artifact.ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, []any{"Read", "Bash"}, got.Metadata["tools"])
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.artifactFile(t, "pdf")

	_, err := f.m.Add(ctx, entry("pdf", artifact.ScopeLocal, path))
	require.NoError(t, err)

	require.NoError(t, f.m.Remove(ctx, "pdf", artifact.ScopeLocal))
	err = f.m.Remove(ctx, "pdf", artifact.ScopeLocal)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.m.Get(ctx, "pdf", artifact.ScopeLocal)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileFormat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.artifactFile(t, "b")

	_, err := f.m.Add(ctx, entry("b", artifact.ScopeGlobal, path))
	require.NoError(t, err)
	_, err = f.m.Add(ctx, entry("a", artifact.ScopeGlobal, path))
	require.NoError(t, err)

	data, err := os.ReadFile(f.m.Path())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "1.0", raw["version"])
	assert.Equal(t, "skill", raw["kind"])
	assert.Equal(t, "2026-03-01T12:00:00Z", raw["updated_at"])
	entries := raw["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].(map[string]any)["name"])
}

func TestBackupAndRestore(t *testing.T) {
	f := newFixture(t, WithBackup(true))
	ctx := context.Background()
	path := f.artifactFile(t, "pdf")

	_, err := f.m.Add(ctx, entry("pdf", artifact.ScopeGlobal, path))
	require.NoError(t, err)
	assert.NoFileExists(t, f.m.BackupPath(), "nothing to back up on first write")

	_, err = f.m.Add(ctx, entry("docx", artifact.ScopeGlobal, path))
	require.NoError(t, err)
	require.FileExists(t, f.m.BackupPath())

	require.NoError(t, f.m.Restore(ctx))
	entries, err := f.m.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pdf", entries[0].Name)
}

func TestRestoreWithoutBackup(t *testing.T) {
	f := newFixture(t)
	err := f.m.Restore(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFailedWriteRestoresBackup(t *testing.T) {
	f := newFixture(t, WithBackup(true))
	ctx := context.Background()
	path := f.artifactFile(t, "pdf")

	_, err := f.m.Add(ctx, entry("pdf", artifact.ScopeGlobal, path))
	require.NoError(t, err)
	before, err := os.ReadFile(f.m.Path())
	require.NoError(t, err)

	// simulate a writer that clobbers the file and then fails
	f.m.writeFile = func(p string, _ []byte, perm os.FileMode) error {
		require.NoError(t, os.WriteFile(p, []byte(`{"entr`), perm))
		return errors.New("disk full")
	}

	_, err = f.m.Add(ctx, entry("docx", artifact.ScopeGlobal, path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	after, err := os.ReadFile(f.m.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(f.m.Path()), ".skills.json*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep := f.artifactFile(t, "keep")
	changed := f.artifactFile(t, "changed")

	for _, e := range []Entry{
		entry("keep", artifact.ScopeProject, keep),
		entry("changed", artifact.ScopeProject, changed),
		entry("gone", artifact.ScopeProject, filepath.Join(f.dir, "skills", "gone", "SKILL.md")),
		entry("other-scope", artifact.ScopeGlobal, filepath.Join(f.dir, "missing.md")),
	} {
		_, err := f.m.Add(ctx, e)
		require.NoError(t, err)
	}

	newFile := f.artifactFile(t, "new")
	updated := entry("changed", artifact.ScopeProject, changed)
	updated.Description = "rewritten"

	f.now = f.now.Add(time.Minute)
	result, err := f.m.Reconcile(ctx, []Entry{
		entry("keep", artifact.ScopeProject, keep),
		updated,
		entry("new", artifact.ScopeProject, newFile),
	}, []artifact.Scope{artifact.ScopeProject})
	require.NoError(t, err)

	assert.Equal(t, []string{"project/new"}, result.Added)
	assert.Equal(t, []string{"project/changed"}, result.Updated)
	assert.Equal(t, []string{"project/gone"}, result.Removed)

	entries, err := f.m.List(ctx, Filter{})
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Key())
	}
	assert.Equal(t, []string{"project/changed", "project/keep", "project/new", "global/other-scope"}, names)

	// a second pass is a no-op and does not touch the file
	info, err := os.Stat(f.m.Path())
	require.NoError(t, err)
	result, err = f.m.Reconcile(ctx, []Entry{
		entry("keep", artifact.ScopeProject, keep),
		updated,
		entry("new", artifact.ScopeProject, newFile),
	}, []artifact.Scope{artifact.ScopeProject})
	require.NoError(t, err)
	assert.False(t, result.Changed())
	after, err := os.Stat(f.m.Path())
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.artifactFile(t, "x")

	for _, e := range []Entry{
		entry("a", artifact.ScopeGlobal, path),
		entry("b", artifact.ScopeGlobal, path),
		entry("c", artifact.ScopeLocal, path),
	} {
		_, err := f.m.Add(ctx, e)
		require.NoError(t, err)
	}

	stats, err := f.m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[artifact.Scope]int{
		artifact.ScopeGlobal:  2,
		artifact.ScopeProject: 0,
		artifact.ScopeLocal:   1,
	}, stats.ByScope)
}

func TestKindMismatch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(f.m.Path()), 0o755))
	require.NoError(t, os.WriteFile(f.m.Path(), []byte(`{"version":"1.0","kind":"agent","entries":[]}`), 0o644))

	_, err := f.m.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds agent entries")
}
