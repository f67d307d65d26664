package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/osutil"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
)

// Manager reads and writes one catalog file. Every mutation holds a file
// lock for the whole read-modify-write cycle.
type Manager struct {
	path   string
	kind   artifact.Kind
	backup bool
	now    func() time.Time
	newID  func() string

	writeFile func(path string, data []byte, perm os.FileMode) error
}

// Option configures a Manager
type Option func(*Manager)

// WithBackup copies the current catalog to <path>.bak before each write
func WithBackup(enabled bool) Option {
	return func(m *Manager) {
		m.backup = enabled
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithKind sets the kind recorded in the catalog file
func WithKind(kind artifact.Kind) Option {
	return func(m *Manager) {
		m.kind = kind
	}
}

// NewManager returns a Manager for the catalog at path
func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{
		path:      path,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		writeFile: osutil.WriteFileAtomic,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the catalog file path
func Path(dataDir string, kind artifact.Kind) string {
	return filepath.Join(dataDir, "catalog", kind.Plural()+".json")
}

// Path returns the catalog file path
func (m *Manager) Path() string {
	return m.path
}

// BackupPath returns the path of the backup copy
func (m *Manager) BackupPath() string {
	return m.path + ".bak"
}

// Load reads the catalog. A missing file yields an empty catalog.
func (m *Manager) Load(_ context.Context) (*Catalog, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{Version: FormatVersion, Kind: m.kind, Entries: []Entry{}}, nil
		}
		return nil, errors.Wrapf(err, "failed to read catalog %s", m.path)
	}

	cat, err := decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse catalog %s", m.path)
	}
	if m.kind != "" && cat.Kind != "" && cat.Kind != m.kind {
		return nil, errors.Errorf("catalog %s holds %s entries, expected %s", m.path, cat.Kind, m.kind)
	}
	return cat, nil
}

func decode(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	if cat.Entries == nil {
		cat.Entries = []Entry{}
	}
	return &cat, nil
}

// Get returns the entry with name in scope
func (m *Manager) Get(ctx context.Context, name string, scope artifact.Scope) (*Entry, error) {
	cat, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := cat.index(name, scope)
	if i < 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s %q in %s scope", m.kind, name, scope)
	}
	e := cat.Entries[i]
	return &e, nil
}

// List returns entries matching filter sorted by name then scope
func (m *Manager) List(ctx context.Context, filter Filter) ([]Entry, error) {
	cat, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	entries := lo.Filter(cat.Entries, func(e Entry, _ int) bool { return filter.match(e) })
	sortEntries(entries)
	return entries, nil
}

// Add inserts a new entry, failing with ErrAlreadyExists when its name and
// scope are taken
func (m *Manager) Add(ctx context.Context, entry Entry) (*Entry, error) {
	var added Entry
	err := m.update(ctx, "catalog.add", func(cat *Catalog) error {
		if cat.index(entry.Name, entry.Scope) >= 0 {
			return errors.Wrapf(ErrAlreadyExists, "%s %q in %s scope", m.kind, entry.Name, entry.Scope)
		}
		added = m.fresh(entry)
		cat.Entries = append(cat.Entries, added)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// Upsert inserts entry or merges it into the existing one. The existing id
// and creation time are kept, metadata keys of entry win.
func (m *Manager) Upsert(ctx context.Context, entry Entry) (*Entry, error) {
	var result Entry
	err := m.update(ctx, "catalog.upsert", func(cat *Catalog) error {
		i := cat.index(entry.Name, entry.Scope)
		if i < 0 {
			result = m.fresh(entry)
			cat.Entries = append(cat.Entries, result)
			return nil
		}
		cat.Entries[i] = m.merge(cat.Entries[i], entry)
		result = cat.Entries[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Remove deletes the entry with name in scope
func (m *Manager) Remove(ctx context.Context, name string, scope artifact.Scope) error {
	return m.update(ctx, "catalog.remove", func(cat *Catalog) error {
		i := cat.index(name, scope)
		if i < 0 {
			return errors.Wrapf(ErrNotFound, "%s %q in %s scope", m.kind, name, scope)
		}
		cat.Entries = slices.Delete(cat.Entries, i, i+1)
		return nil
	})
}

// Reconcile brings the catalog in line with the artifacts found on disk.
// Discovered entries are added or updated. Entries in scopes whose file no
// longer exists are removed; entries outside scopes are left alone.
func (m *Manager) Reconcile(ctx context.Context, discovered []Entry, scopes []artifact.Scope) (SyncResult, error) {
	result := SyncResult{Added: []string{}, Updated: []string{}, Removed: []string{}}
	if len(scopes) == 0 {
		scopes = artifact.Scopes
	}

	err := m.update(ctx, "catalog.reconcile", func(cat *Catalog) error {
		seen := make(map[string]bool, len(discovered))
		for _, d := range discovered {
			if !slices.Contains(scopes, d.Scope) || seen[d.Key()] {
				continue
			}
			seen[d.Key()] = true

			i := cat.index(d.Name, d.Scope)
			switch {
			case i < 0:
				cat.Entries = append(cat.Entries, m.fresh(d))
				result.Added = append(result.Added, d.Key())
			case !cat.Entries[i].sameContent(d):
				cat.Entries[i] = m.merge(cat.Entries[i], d)
				result.Updated = append(result.Updated, d.Key())
			}
		}

		cat.Entries = slices.DeleteFunc(cat.Entries, func(e Entry) bool {
			if seen[e.Key()] || !slices.Contains(scopes, e.Scope) || osutil.Exists(e.Path) {
				return false
			}
			result.Removed = append(result.Removed, e.Key())
			return true
		})

		if !result.Changed() {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		err = nil
	}
	return result, err
}

var errUnchanged = errors.New("catalog unchanged")

// Restore replaces the catalog with its backup copy
func (m *Manager) Restore(ctx context.Context) error {
	return osutil.WithFileLock(ctx, m.path, func() error {
		data, err := os.ReadFile(m.BackupPath())
		if err != nil {
			if os.IsNotExist(err) {
				return errors.Wrapf(ErrNotFound, "no backup at %s", m.BackupPath())
			}
			return errors.Wrapf(err, "failed to read backup %s", m.BackupPath())
		}
		if _, err := decode(data); err != nil {
			return errors.Wrapf(err, "backup %s is not a valid catalog", m.BackupPath())
		}
		if err := m.writeFile(m.path, data, 0o644); err != nil {
			return errors.Wrapf(err, "failed to restore catalog %s", m.path)
		}
		logger.G(ctx).WithField("path", m.path).Info("restored catalog from backup")
		return nil
	})
}

// Stats counts entries per scope
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	cat, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Kind:      m.kind,
		Total:     len(cat.Entries),
		ByScope:   make(map[artifact.Scope]int, len(artifact.Scopes)),
		UpdatedAt: cat.UpdatedAt,
	}
	for _, scope := range artifact.Scopes {
		stats.ByScope[scope] = 0
	}
	for _, e := range cat.Entries {
		stats.ByScope[e.Scope]++
	}
	return stats, nil
}

func (m *Manager) fresh(e Entry) Entry {
	now := m.now().UTC()
	e.ID = m.newID()
	e.CreatedAt = now
	e.UpdatedAt = now
	return e
}

func (m *Manager) merge(existing, incoming Entry) Entry {
	merged := existing
	if incoming.Description != "" {
		merged.Description = incoming.Description
	}
	if incoming.Path != "" {
		merged.Path = incoming.Path
	}
	if len(incoming.Metadata) > 0 {
		md := make(map[string]any, len(existing.Metadata)+len(incoming.Metadata))
		for k, v := range existing.Metadata {
			md[k] = v
		}
		for k, v := range incoming.Metadata {
			md[k] = v
		}
		merged.Metadata = md
	}
	merged.UpdatedAt = m.now().UTC()
	return merged
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.Scope), string(b.Scope))
	})
}

// update runs fn on the current catalog under the file lock and writes the
// result
func (m *Manager) update(ctx context.Context, op string, fn func(*Catalog) error) error {
	return telemetry.WithSpan(ctx, op, func(ctx context.Context) error {
		return osutil.WithFileLock(ctx, m.path, func() error {
			cat, err := m.Load(ctx)
			if err != nil {
				return err
			}
			if err := fn(cat); err != nil {
				return err
			}
			return m.write(ctx, cat)
		})
	}, attribute.String("catalog.path", m.path), attribute.String("catalog.kind", string(m.kind)))
}

func (m *Manager) write(ctx context.Context, cat *Catalog) error {
	for _, e := range cat.Entries {
		if !filepath.IsAbs(e.Path) {
			return errors.Errorf("entry %s has relative path %q", e.Key(), e.Path)
		}
	}

	cat.Version = FormatVersion
	if m.kind != "" {
		cat.Kind = m.kind
	}
	cat.UpdatedAt = m.now().UTC()
	if cat.Entries == nil {
		cat.Entries = []Entry{}
	}
	sortEntries(cat.Entries)

	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode catalog")
	}
	data = append(data, '\n')

	backedUp := false
	if m.backup && osutil.Exists(m.path) {
		if err := copy.Copy(m.path, m.BackupPath()); err != nil {
			return errors.Wrapf(err, "failed to back up catalog to %s", m.BackupPath())
		}
		backedUp = true
		telemetry.AddEvent(ctx, "catalog.backup")
	}

	if err := m.writeFile(m.path, data, 0o644); err != nil {
		if backedUp {
			if rerr := copy.Copy(m.BackupPath(), m.path); rerr != nil {
				logger.G(ctx).WithError(rerr).WithField("path", m.path).Error("failed to restore catalog backup")
			}
		}
		return errors.Wrapf(err, "failed to write catalog %s", m.path)
	}

	logger.G(ctx).WithField("path", m.path).WithField("entries", len(cat.Entries)).Debug("catalog written")
	return nil
}
