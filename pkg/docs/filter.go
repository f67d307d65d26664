package docs

import (
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// URLFilter decides which links a crawl follows: same host as a seed (or a
// host glob), and a path accepted by the include and exclude globs.
type URLFilter struct {
	hosts     map[string]bool
	hostGlobs []glob.Glob
	include   []glob.Glob
	exclude   []glob.Glob
}

// NewURLFilter compiles the filter of src
func NewURLFilter(src Source) (*URLFilter, error) {
	f := &URLFilter{hosts: make(map[string]bool)}

	for _, raw := range src.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return nil, errors.Errorf("invalid seed URL %q", raw)
		}
		f.hosts[strings.ToLower(u.Host)] = true
	}
	for _, pattern := range src.Hosts {
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid host pattern %q", pattern)
		}
		f.hostGlobs = append(f.hostGlobs, g)
	}

	var err error
	if f.include, err = compilePaths(src.Include); err != nil {
		return nil, err
	}
	if f.exclude, err = compilePaths(src.Exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compilePaths(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid path pattern %q", p)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Allowed reports whether u should be crawled
func (f *URLFilter) Allowed(u *url.URL) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Host)
	if !f.hosts[host] && !matchAny(f.hostGlobs, strings.ToLower(u.Hostname())) {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if matchAny(f.exclude, path) {
		return false
	}
	return len(f.include) == 0 || matchAny(f.include, path)
}

// normalizeURL resolves ref against base and drops the fragment
func normalizeURL(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}
