package docs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/osutil"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
	"github.com/jingkaihe/agentkit/pkg/validation"
)

const (
	// IndexFile is the page listing written into every source directory
	IndexFile = "index.md"

	reservedIndexPage = "index-page.md"
)

// CrawlResult counts what a crawl did. Fetched counts successful
// downloads; each of them is then Updated (written) or Unchanged.
type CrawlResult struct {
	Source    string        `json:"source"`
	Fetched   int           `json:"fetched"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Removed   int           `json:"removed"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Crawler mirrors documentation sources into cacheDir
type Crawler struct {
	cacheDir   string
	store      *Store
	client     *http.Client
	userAgent  string
	delay      time.Duration
	attempts   uint
	retryDelay time.Duration
	now        func() time.Time
}

// Option configures a Crawler
type Option func(*Crawler)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) {
		c.client = client
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithDelay sets the fixed delay between requests. Sources may override it.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.delay = d
	}
}

// WithRetry sets the attempts per page and the initial backoff
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Crawler) {
		c.attempts = attempts
		c.retryDelay = delay
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		c.now = now
	}
}

// NewCrawler returns a crawler writing pages below cacheDir and recording
// them in store
func NewCrawler(cacheDir string, store *Store, opts ...Option) *Crawler {
	c := &Crawler{
		cacheDir:   cacheDir,
		store:      store,
		client:     newHTTPClient(),
		userAgent:  "agentkit",
		delay:      DefaultDelay,
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SourceDir returns the cache directory of a source
func (c *Crawler) SourceDir(name string) string {
	return filepath.Join(c.cacheDir, name)
}

type queued struct {
	url   *url.URL
	depth int
}

// Crawl mirrors src breadth first. Individual page failures are counted
// and logged; only setup failures and cancellation abort the crawl.
func (c *Crawler) Crawl(ctx context.Context, src Source) (result *CrawlResult, err error) {
	if err := validation.Struct(&src); err != nil {
		return nil, err
	}
	src = src.withDefaults()
	ctx = logger.WithFields(ctx, logrus.Fields{"source": src.Name})
	ctx, end := telemetry.Start(ctx, "docs.crawl", attribute.String("source", src.Name))
	defer func() { end(err) }()

	filter, err := NewURLFilter(src)
	if err != nil {
		return nil, err
	}
	dir := c.SourceDir(src.Name)
	if err := validation.ValidatePath(c.cacheDir, dir); err != nil {
		return nil, err
	}
	if err := osutil.EnsureDir(dir); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", dir)
	}

	delay := c.delay
	if src.Delay > 0 {
		delay = src.Delay
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	if delay <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	start := c.now()
	result = &CrawlResult{Source: src.Name}
	seen := map[string]bool{}
	visited := map[string]bool{}
	var queue []queued
	var primaryHost string

	for _, raw := range src.URLs {
		u, err := normalizeURL(nil, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid seed URL %q", raw)
		}
		if primaryHost == "" {
			primaryHost = u.Host
		}
		if !seen[u.String()] {
			seen[u.String()] = true
			queue = append(queue, queued{url: u})
		}
	}

	truncated := false
	for len(queue) > 0 {
		if result.Fetched >= src.MaxPages {
			truncated = true
			break
		}
		item := queue[0]
		queue = queue[1:]

		if err := limiter.Wait(ctx); err != nil {
			return result, errors.Wrap(err, "crawl cancelled")
		}

		links, err := c.crawlPage(ctx, src, dir, primaryHost, item.url, result)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.url, err))
			logger.G(ctx).WithError(err).WithField("url", item.url.String()).Warn("failed to crawl page")
			if ctx.Err() != nil {
				return result, errors.Wrap(ctx.Err(), "crawl cancelled")
			}
			continue
		}
		visited[item.url.String()] = true

		if item.depth >= src.MaxDepth {
			continue
		}
		for _, link := range links {
			u, err := normalizeURL(item.url, link)
			if err != nil || seen[u.String()] || !filter.Allowed(u) {
				continue
			}
			seen[u.String()] = true
			queue = append(queue, queued{url: u, depth: item.depth + 1})
		}
	}

	// a complete crawl is authoritative: forget pages the site dropped
	if !truncated && result.Failed == 0 {
		removed, err := c.store.Prune(ctx, src.Name, visited)
		if err != nil {
			return result, err
		}
		for _, p := range removed {
			if err := os.Remove(filepath.Join(dir, filepath.FromSlash(p.Path))); err != nil && !os.IsNotExist(err) {
				logger.G(ctx).WithError(err).WithField("path", p.Path).Warn("failed to remove stale page")
			}
		}
		result.Removed = len(removed)
	}

	if err := c.writeIndex(ctx, src, dir); err != nil {
		return result, err
	}

	result.Duration = c.now().Sub(start)
	logger.G(ctx).WithFields(logrus.Fields{
		"fetched":   result.Fetched,
		"updated":   result.Updated,
		"unchanged": result.Unchanged,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"removed":   result.Removed,
	}).Info("crawl finished")
	return result, nil
}

// crawlPage downloads one page, stores it when its content changed and
// returns the links found on it
func (c *Crawler) crawlPage(ctx context.Context, src Source, dir, primaryHost string, u *url.URL, result *CrawlResult) ([]string, error) {
	resp, err := c.fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var doc *document
	switch classify(resp.ContentType, u, resp.Body) {
	case contentHTML:
		if doc, err = convertHTML(u, resp.Body, src.Selector); err != nil {
			return nil, err
		}
	case contentText:
		doc = convertText(resp.Body)
	default:
		result.Skipped++
		logger.G(ctx).WithField("url", u.String()).WithField("content_type", resp.ContentType).Debug("skipping binary content")
		return nil, nil
	}
	result.Fetched++

	rel := pagePath(u, primaryHost)
	target := filepath.Join(dir, filepath.FromSlash(rel))
	if err := validation.ValidatePath(dir, target); err != nil {
		return nil, err
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(rel), ".md")
	}

	sum := sha256.Sum256([]byte(doc.Markdown))
	hash := hex.EncodeToString(sum[:])
	now := c.now().UTC()

	existing, err := c.store.Get(ctx, src.Name, u.String())
	if err != nil {
		return nil, err
	}
	page := Page{
		Source:    src.Name,
		URL:       u.String(),
		Path:      rel,
		Title:     doc.Title,
		SHA256:    hash,
		Status:    resp.Status,
		FetchedAt: now,
		UpdatedAt: now,
	}

	if existing != nil && existing.SHA256 == hash && existing.Path == rel && osutil.Exists(target) {
		result.Unchanged++
		page.UpdatedAt = existing.UpdatedAt
	} else {
		content, err := artifact.Compose(map[string]any{
			"title":      doc.Title,
			"source_url": u.String(),
			"fetched_at": now.Format(time.RFC3339),
			"sha256":     hash,
		}, []string{"title", "source_url", "fetched_at", "sha256"}, doc.Markdown)
		if err != nil {
			return nil, err
		}
		if err := osutil.WriteFileAtomic(target, []byte(content), 0o644); err != nil {
			return nil, err
		}
		result.Updated++
		logger.G(ctx).WithField("url", u.String()).WithField("path", rel).Debug("page written")
	}

	if err := c.store.Save(ctx, page); err != nil {
		return nil, err
	}
	return doc.Links, nil
}

// writeIndex regenerates the page listing of src
func (c *Crawler) writeIndex(ctx context.Context, src Source, dir string) error {
	pages, err := c.store.List(ctx, src.Name)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", src.Name)
	fmt.Fprintf(&b, "%d pages mirrored from %s.\n\n", len(pages), strings.Join(src.URLs, ", "))
	for _, p := range pages {
		fmt.Fprintf(&b, "- [%s](%s) (%s)\n", p.Title, p.Path, p.URL)
	}
	return osutil.WriteFileAtomic(filepath.Join(dir, IndexFile), []byte(b.String()), 0o644)
}
