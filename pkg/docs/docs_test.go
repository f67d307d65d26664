package docs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type site struct {
	*httptest.Server
	mu         sync.Mutex
	intro      string
	flakyHits  atomic.Int32
	missingHit atomic.Int32
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{intro: "<p>Install the tool.</p>"}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			s.missingHit.Add(1)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Home</title><script>alert(1)</script></head><body>
<nav><a href="/docs/">Docs</a></nav>
<main><h1>Welcome</h1><p>Start with the <a href="docs/intro.html">intro</a>.</p></main>
<footer>
<a href="/notes.md">notes</a> <a href="/logo.png">logo</a> <a href="https://other.example/x">elsewhere</a>
<a href="/private/secret">private</a> <a href="/missing">missing</a> <a href="/flaky">flaky</a> <a href="#top">top</a>
</footer></body></html>`))
	})
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/docs/":
			_, _ = w.Write([]byte(`<html><body><article><h1>Docs</h1><a href="intro.html">Intro</a></article></body></html>`))
		case "/docs/intro.html":
			s.mu.Lock()
			body := s.intro
			s.mu.Unlock()
			_, _ = w.Write([]byte(`<html><head><title>Intro</title></head><body><main>` + body + `</main></body></html>`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/notes.md", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		_, _ = w.Write([]byte("# Notes\n\nPlain markdown.\n"))
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G', 0, 0, 0})
	})
	mux.HandleFunc("/private/secret", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("excluded page was requested")
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, _ *http.Request) {
		if s.flakyHits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("eventually fine\n"))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *site) setIntro(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intro = body
}

func newTestCrawler(t *testing.T, opts ...Option) (*Crawler, *Store, string) {
	t.Helper()
	cacheDir := t.TempDir()
	store, err := OpenStore(context.Background(), filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts = append([]Option{WithDelay(0), WithRetry(3, time.Millisecond)}, opts...)
	return NewCrawler(cacheDir, store, opts...), store, cacheDir
}

func TestCrawl(t *testing.T) {
	s := newSite(t)
	c, store, cacheDir := newTestCrawler(t)
	ctx := context.Background()
	src := Source{Name: "example", URLs: []string{s.URL + "/"}, Exclude: []string{"/private/**"}}

	result, err := c.Crawl(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 5, result.Updated)
	assert.Equal(t, 0, result.Unchanged)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, int32(2), s.flakyHits.Load(), "503 is retried")
	assert.Equal(t, int32(1), s.missingHit.Load(), "404 is not retried")

	dir := filepath.Join(cacheDir, "example")
	for _, rel := range []string{"home.md", "docs/index.md", "docs/intro.md", "notes.md", "flaky.md", IndexFile} {
		assert.FileExists(t, filepath.Join(dir, rel))
	}
	assert.NoFileExists(t, filepath.Join(dir, "logo.md"))

	home, err := os.ReadFile(filepath.Join(dir, "home.md"))
	require.NoError(t, err)
	assert.Contains(t, string(home), "title: Home")
	assert.Contains(t, string(home), "source_url: "+s.URL+"/")
	assert.Contains(t, string(home), "sha256: ")
	assert.Contains(t, string(home), "# Welcome")
	assert.NotContains(t, string(home), "alert(1)")

	notes, err := os.ReadFile(filepath.Join(dir, "notes.md"))
	require.NoError(t, err)
	assert.Contains(t, string(notes), "Plain markdown.")

	index, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "- [Home](home.md)")
	assert.Contains(t, string(index), "- [Notes](notes.md)")

	pages, err := store.List(ctx, "example")
	require.NoError(t, err)
	assert.Len(t, pages, 5)

	// unchanged content is not rewritten
	result, err = c.Crawl(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Fetched)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 5, result.Unchanged)

	s.setIntro("<p>Install the tool with go install.</p>")
	result, err = c.Crawl(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 4, result.Unchanged)

	intro, err := os.ReadFile(filepath.Join(dir, "docs", "intro.md"))
	require.NoError(t, err)
	assert.Contains(t, string(intro), "go install")
}

func TestCrawlKeepsTopLevelIndexPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>Landing</title></head><body><main><p>Landing page body.</p></main></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, _, cacheDir := newTestCrawler(t)
	ctx := context.Background()
	src := Source{Name: "site", URLs: []string{srv.URL + "/index.html"}}

	result, err := c.Crawl(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	dir := filepath.Join(cacheDir, "site")
	page, err := os.ReadFile(filepath.Join(dir, "index-page.md"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "Landing page body.")

	index, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "- [Landing](index-page.md)")

	// a second crawl still finds the page intact
	result, err = c.Crawl(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	page, err = os.ReadFile(filepath.Join(dir, "index-page.md"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "Landing page body.")
}

func TestCrawlLimits(t *testing.T) {
	s := newSite(t)
	c, _, _ := newTestCrawler(t)

	result, err := c.Crawl(context.Background(), Source{
		Name:     "limited",
		URLs:     []string{s.URL + "/"},
		Include:  []string{"/", "/docs/**"},
		MaxPages: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Zero(t, result.Failed)
	assert.Zero(t, s.missingHit.Load())
}

func TestCrawlPrunesRemovedPages(t *testing.T) {
	var withNotes atomic.Bool
	withNotes.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch {
		case r.URL.Path == "/":
			link := ""
			if withNotes.Load() {
				link = `<a href="/notes">notes</a>`
			}
			_, _ = w.Write([]byte(`<html><body><main><p>root</p>` + link + `</main></body></html>`))
		case r.URL.Path == "/notes" && withNotes.Load():
			_, _ = w.Write([]byte(`<html><body><main><p>notes</p></main></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, store, cacheDir := newTestCrawler(t)
	ctx := context.Background()
	src := Source{Name: "prune", URLs: []string{srv.URL}}

	_, err := c.Crawl(ctx, src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cacheDir, "prune", "notes.md"))

	withNotes.Store(false)
	result, err := c.Crawl(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.NoFileExists(t, filepath.Join(cacheDir, "prune", "notes.md"))

	pages, err := store.List(ctx, "prune")
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestCrawlDelay(t *testing.T) {
	s := newSite(t)
	c, _, _ := newTestCrawler(t)

	start := time.Now()
	_, err := c.Crawl(context.Background(), Source{
		Name:     "slow",
		URLs:     []string{s.URL + "/"},
		Include:  []string{"/", "/docs/**"},
		MaxPages: 3,
		Delay:    30 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestCrawlCancelled(t *testing.T) {
	s := newSite(t)
	c, _, _ := newTestCrawler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Crawl(ctx, Source{Name: "cancelled", URLs: []string{s.URL + "/"}})
	assert.Error(t, err)
}

func TestCrawlRejectsInvalidSource(t *testing.T) {
	c, _, _ := newTestCrawler(t)
	_, err := c.Crawl(context.Background(), Source{Name: "../escape", URLs: []string{"https://example.com"}})
	assert.Error(t, err)
	_, err = c.Crawl(context.Background(), Source{Name: "nourls"})
	assert.Error(t, err)
}

func TestStoreSources(t *testing.T) {
	s := newSite(t)
	c, store, _ := newTestCrawler(t)
	ctx := context.Background()

	_, err := c.Crawl(ctx, Source{Name: "a", URLs: []string{s.URL + "/notes.md"}})
	require.NoError(t, err)
	_, err = c.Crawl(ctx, Source{Name: "b", URLs: []string{s.URL + "/notes.md", s.URL + "/docs/"}, MaxDepth: 1, Include: []string{"/docs/**"}})
	require.NoError(t, err)

	summaries, err := store.Sources(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "a", summaries[0].Source)
	assert.Equal(t, 1, summaries[0].Pages)
	assert.Equal(t, 3, summaries[1].Pages)
	assert.False(t, summaries[1].LastFetched.IsZero())

	page, err := store.Get(ctx, "a", s.URL+"/notes.md")
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, "Notes", page.Title)
	assert.Equal(t, "notes.md", page.Path)

	missing, err := store.Get(ctx, "a", s.URL+"/nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPagePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://docs.example.com", "home.md"},
		{"https://docs.example.com/", "home.md"},
		{"https://docs.example.com/guide/", "guide/index.md"},
		{"https://docs.example.com/guide/setup.html", "guide/setup.md"},
		{"https://docs.example.com/README.md", "README.md"},
		{"https://docs.example.com/api?v=2", "api-v_2.md"},
		{"https://cdn.example.com/a", "cdn.example.com/a.md"},
		{"https://docs.example.com/index", "index-page.md"},
		{"https://docs.example.com/index.html", "index-page.md"},
		{"https://docs.example.com/INDEX.md", "INDEX.md"},
		{"https://docs.example.com/guide/index.html", "guide/index.md"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := url.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pagePath(u, "docs.example.com"))
		})
	}
}

func TestURLFilter(t *testing.T) {
	f, err := NewURLFilter(Source{
		Name:    "x",
		URLs:    []string{"https://docs.example.com/"},
		Hosts:   []string{"*.example.org"},
		Include: []string{"/", "/docs/**"},
		Exclude: []string{"/docs/internal/**"},
	})
	require.NoError(t, err)

	tests := map[string]bool{
		"https://docs.example.com/":                true,
		"https://docs.example.com/docs/a/b":        true,
		"https://docs.example.com/docs/internal/x": false,
		"https://docs.example.com/blog/post":       false,
		"https://api.example.org/docs/ref":         true,
		"https://evil.com/docs/x":                  false,
		"mailto:someone@docs.example.com":          false,
		"ftp://docs.example.com/docs/file":         false,
	}
	for raw, want := range tests {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, f.Allowed(u), raw)
	}

	_, err = NewURLFilter(Source{URLs: []string{"https://x.com"}, Include: []string{"[unterminated"}})
	assert.Error(t, err)
}

func TestDecodeSources(t *testing.T) {
	raw := []any{
		map[string]any{
			"name":      "go",
			"urls":      "https://go.dev/doc/",
			"include":   []any{"/doc/**"},
			"max_pages": "50",
			"delay":     "2s",
		},
		map[string]any{"name": "cobra", "urls": []any{"https://cobra.dev/"}},
	}

	sources, err := DecodeSources(raw)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, []string{"https://go.dev/doc/"}, sources[0].URLs)
	assert.Equal(t, 50, sources[0].MaxPages)
	assert.Equal(t, 2*time.Second, sources[0].Delay)

	src, err := Find(sources, "cobra")
	require.NoError(t, err)
	assert.Equal(t, "https://cobra.dev/", src.URLs[0])
	_, err = Find(sources, "missing")
	assert.Error(t, err)

	_, err = DecodeSources([]any{map[string]any{"name": "x", "urls": "https://x.dev", "bogus": 1}})
	assert.Error(t, err)
	_, err = DecodeSources([]any{map[string]any{"name": "x", "urls": "not a url"}})
	assert.Error(t, err)
	_, err = DecodeSources([]any{
		map[string]any{"name": "x", "urls": "https://x.dev"},
		map[string]any{"name": "x", "urls": "https://y.dev"},
	})
	assert.Error(t, err)

	none, err := DecodeSources(nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
