// Package builder creates, updates, deletes and checks artifacts. One
// Builder serves a single kind; skills, commands and agents share the same
// pipeline: validate the spec, run the security checks, render the template,
// write the file atomically and record it in the catalog.
package builder

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/catalog"
	"github.com/jingkaihe/agentkit/pkg/hooks"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/render"
	"github.com/jingkaihe/agentkit/pkg/validation"
)

// Builder manages artifacts of one kind
type Builder struct {
	kind      artifact.Kind
	layout    *artifact.Layout
	catalog   *catalog.Manager
	renderer  *render.Renderer
	hooks     *hooks.Manager
	discovery *artifact.Discovery
	now       func() time.Time
}

// Option configures a Builder
type Option func(*Builder)

// WithRenderer sets the template renderer
func WithRenderer(r *render.Renderer) Option {
	return func(b *Builder) {
		b.renderer = r
	}
}

// WithHooks sets the lifecycle hook manager
func WithHooks(m *hooks.Manager) Option {
	return func(b *Builder) {
		b.hooks = m
	}
}

// WithClock overrides the time source used for hook payloads
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// New returns a Builder for kind
func New(kind artifact.Kind, layout *artifact.Layout, cat *catalog.Manager, opts ...Option) *Builder {
	b := &Builder{
		kind:      kind,
		layout:    layout,
		catalog:   cat,
		renderer:  render.New(),
		discovery: artifact.NewDiscovery(layout),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Kind returns the kind this builder manages
func (b *Builder) Kind() artifact.Kind {
	return b.kind
}

// Catalog returns the catalog manager of this builder
func (b *Builder) Catalog() *catalog.Manager {
	return b.catalog
}

// Layout returns the artifact layout
func (b *Builder) Layout() *artifact.Layout {
	return b.layout
}

// Result describes a written (or, for dry runs, would-be written) artifact
type Result struct {
	Entry   *catalog.Entry `json:"entry,omitempty"`
	Path    string         `json:"path"`
	Content string         `json:"content"`
	Diff    string         `json:"diff,omitempty"`
	DryRun  bool           `json:"dry_run"`
}

// Get returns the catalog entry of name in scope
func (b *Builder) Get(ctx context.Context, name string, scope artifact.Scope) (*catalog.Entry, error) {
	return b.catalog.Get(ctx, name, scope)
}

// List returns catalog entries matching filter
func (b *Builder) List(ctx context.Context, filter catalog.Filter) ([]catalog.Entry, error) {
	return b.catalog.List(ctx, filter)
}

// Search returns catalog entries matching query, best first
func (b *Builder) Search(ctx context.Context, query string, filter catalog.Filter) ([]catalog.Entry, error) {
	return b.catalog.Search(ctx, query, filter)
}

// Discover returns the valid artifacts present on disk, sorted by name then
// scope. Files that fail to parse or fail validation are logged and skipped.
func (b *Builder) Discover(ctx context.Context, scopes ...artifact.Scope) ([]*artifact.Artifact, error) {
	locations, err := b.discovery.Locate(ctx, b.kind, scopes...)
	if err != nil {
		return nil, err
	}

	var found []*artifact.Artifact
	for _, loc := range locations {
		a, err := artifact.Load(b.kind, loc.Scope, loc.Path, loc.Rel)
		if err == nil {
			err = b.CheckArtifact(a, loc.Rel)
		}
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", loc.Path).Warn("skipping invalid artifact")
			continue
		}
		found = append(found, a)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].Name != found[j].Name {
			return found[i].Name < found[j].Name
		}
		return found[i].Scope < found[j].Scope
	})
	return found, nil
}

// Read returns the parsed file of name in scope. The catalog path is used
// when the artifact is registered; otherwise the conventional location.
func (b *Builder) Read(ctx context.Context, name string, scope artifact.Scope) (*artifact.Document, error) {
	path, err := b.resolvePath(ctx, name, scope)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.Wrapf(catalog.ErrNotFound, "%s %q in %s scope", b.kind, name, scope)
	}
	return artifact.ReadDocument(path)
}

// Preview renders spec without validating or writing anything
func (b *Builder) Preview(ctx context.Context, spec Spec) (string, error) {
	return b.renderer.Render(ctx, b.kind, spec.TemplateData())
}

func (b *Builder) resolvePath(ctx context.Context, name string, scope artifact.Scope) (string, error) {
	path, err := b.layout.Path(b.kind, scope, name)
	if err != nil {
		return "", err
	}
	entry, err := b.catalog.Get(ctx, name, scope)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return path, nil
		}
		return "", err
	}
	// never trust a catalog path outside the scope root
	if err := validation.ValidatePath(b.layout.ScopeRoot(scope), entry.Path); err != nil {
		return "", err
	}
	return entry.Path, nil
}

func (b *Builder) logCtx(ctx context.Context, name string, scope artifact.Scope) context.Context {
	return logger.WithFields(ctx, logrus.Fields{
		"kind":  b.kind,
		"name":  name,
		"scope": scope,
	})
}

func (b *Builder) fire(ctx context.Context, event hooks.HookType, name string, scope artifact.Scope, path string) {
	b.hooks.Fire(ctx, hooks.Payload{
		Event:      event,
		Kind:       b.kind,
		Scope:      scope,
		Name:       name,
		Path:       path,
		ProjectDir: b.layout.ProjectDir(),
		Timestamp:  b.now().UTC(),
	})
}

// entryFor builds the catalog entry describing doc
func entryFor(kind artifact.Kind, name string, scope artifact.Scope, path string, doc *artifact.Document) catalog.Entry {
	md := map[string]any{}
	if tools := doc.Strings(toolsKey(kind)); len(tools) > 0 {
		md["tools"] = tools
	}
	for _, key := range []string{"model", "color", "version", "license", "argument-hint"} {
		if v := doc.String(key); v != "" {
			md[key] = v
		}
	}
	if len(md) == 0 {
		md = nil
	}
	return catalog.Entry{
		Name:        name,
		Description: doc.String("description"),
		Scope:       scope,
		Path:        path,
		Metadata:    md,
	}
}
