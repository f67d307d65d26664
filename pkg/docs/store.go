package docs

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/db"
	"github.com/jingkaihe/agentkit/pkg/db/migrations"
)

// Page is the record of one cached page
type Page struct {
	Source    string    `db:"source" json:"source"`
	URL       string    `db:"url" json:"url"`
	Path      string    `db:"path" json:"path"`
	Title     string    `db:"title" json:"title"`
	SHA256    string    `db:"sha256" json:"sha256"`
	Status    int       `db:"status" json:"status"`
	FetchedAt time.Time `db:"fetched_at" json:"fetched_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SourceSummary aggregates the pages of one source
type SourceSummary struct {
	Source      string    `db:"source" json:"source"`
	Pages       int       `db:"pages" json:"pages"`
	LastFetched time.Time `db:"last_fetched" json:"last_fetched"`
}

// Store keeps page records in SQLite
type Store struct {
	db *sqlx.DB
}

// OpenStore opens (and migrates) the page database at path
func OpenStore(ctx context.Context, path string) (*Store, error) {
	conn, err := db.OpenMigrated(ctx, path, migrations.All())
	if err != nil {
		return nil, err
	}
	return &Store{db: conn}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the page record of url, or nil when none exists
func (s *Store) Get(ctx context.Context, source, url string) (*Page, error) {
	var p Page
	err := s.db.GetContext(ctx, &p, `SELECT * FROM doc_pages WHERE source = ? AND url = ?`, source, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load page %s", url)
	}
	return &p, nil
}

// Save inserts or replaces a page record
func (s *Store) Save(ctx context.Context, p Page) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO doc_pages (source, url, path, title, sha256, status, fetched_at, updated_at)
		VALUES (:source, :url, :path, :title, :sha256, :status, :fetched_at, :updated_at)
		ON CONFLICT(source, url) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			sha256 = excluded.sha256,
			status = excluded.status,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
	`, p)
	return errors.Wrapf(err, "failed to save page %s", p.URL)
}

// List returns the pages of source ordered by path
func (s *Store) List(ctx context.Context, source string) ([]Page, error) {
	pages := []Page{}
	if err := s.db.SelectContext(ctx, &pages, `SELECT * FROM doc_pages WHERE source = ? ORDER BY path`, source); err != nil {
		return nil, errors.Wrapf(err, "failed to list pages of %s", source)
	}
	return pages, nil
}

// Sources summarizes every crawled source
func (s *Store) Sources(ctx context.Context) ([]SourceSummary, error) {
	var rows []struct {
		Source      string `db:"source"`
		Pages       int    `db:"pages"`
		LastFetched string `db:"last_fetched"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT source, COUNT(*) AS pages, MAX(fetched_at) AS last_fetched
		FROM doc_pages GROUP BY source ORDER BY source
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to summarize sources")
	}

	out := make([]SourceSummary, 0, len(rows))
	for _, r := range rows {
		summary := SourceSummary{Source: r.Source, Pages: r.Pages}
		// aggregates lose the column type, so the timestamp comes back as text
		if t, err := parseTime(r.LastFetched); err == nil {
			summary.LastFetched = t
		}
		out = append(out, summary)
	}
	return out, nil
}

// Prune deletes records of source whose URL is not in keep
func (s *Store) Prune(ctx context.Context, source string, keep map[string]bool) ([]Page, error) {
	pages, err := s.List(ctx, source)
	if err != nil {
		return nil, err
	}
	var removed []Page
	for _, p := range pages {
		if keep[p.URL] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM doc_pages WHERE source = ? AND url = ?`, source, p.URL); err != nil {
			return removed, errors.Wrapf(err, "failed to delete page %s", p.URL)
		}
		removed = append(removed, p)
	}
	return removed, nil
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized time %q", s)
}
