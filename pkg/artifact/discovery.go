package artifact

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/logger"
)

// Artifact is a discovered artifact file
type Artifact struct {
	Kind     Kind
	Scope    Scope
	Name     string
	Path     string
	Document *Document
}

// Description returns the frontmatter description
func (a *Artifact) Description() string {
	return a.Document.String("description")
}

// Discovery finds artifacts under the scope roots of a Layout
type Discovery struct {
	layout *Layout
}

// NewDiscovery creates a discovery for the given layout
func NewDiscovery(layout *Layout) *Discovery {
	return &Discovery{layout: layout}
}

func globPattern(kind Kind) string {
	switch kind {
	case KindSkill:
		return "*/" + skillFileName
	case KindCommand:
		return "**/*.md"
	default:
		return "*.md"
	}
}

// Location is an artifact file found on disk, not yet parsed
type Location struct {
	Scope Scope
	Path  string
	// Rel is the slash-separated path relative to the kind directory
	Rel string
}

// Locate returns the candidate artifact files of kind in each scope
func (d *Discovery) Locate(ctx context.Context, kind Kind, scopes ...Scope) ([]Location, error) {
	if len(scopes) == 0 {
		scopes = Scopes
	}

	var found []Location
	for _, scope := range scopes {
		dir := d.layout.KindDir(kind, scope)
		if _, err := os.Stat(dir); err != nil {
			logger.G(ctx).WithField("dir", dir).Debug("artifact directory not found, skipping")
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(dir), globPattern(kind))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan %s", dir)
		}
		for _, rel := range matches {
			found = append(found, Location{
				Scope: scope,
				Path:  filepath.Join(dir, filepath.FromSlash(rel)),
				Rel:   rel,
			})
		}
	}
	return found, nil
}

// Discover walks each scope root and returns the artifacts of kind found
// there, sorted by name then scope. Files that cannot be parsed are logged
// and skipped.
func (d *Discovery) Discover(ctx context.Context, kind Kind, scopes ...Scope) ([]*Artifact, error) {
	locations, err := d.Locate(ctx, kind, scopes...)
	if err != nil {
		return nil, err
	}

	var found []*Artifact
	for _, loc := range locations {
		a, err := Load(kind, loc.Scope, loc.Path, loc.Rel)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("path", loc.Path).Warn("failed to load artifact, skipping")
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

// Load reads a single artifact. rel is the path relative to the kind
// directory and is used to derive the name when the frontmatter has none.
func Load(kind Kind, scope Scope, path, rel string) (*Artifact, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}

	name := doc.String("name")
	if name == "" || kind == KindCommand {
		name = NameFromPath(kind, rel)
	}
	if name == "" {
		return nil, errors.Errorf("cannot determine artifact name for %s", path)
	}

	return &Artifact{
		Kind:     kind,
		Scope:    scope,
		Name:     name,
		Path:     path,
		Document: doc,
	}, nil
}

// NameFromPath derives an artifact name from its path relative to the kind
// directory. Nested commands are namespaced with ':' (e.g. "git:commit").
func NameFromPath(kind Kind, rel string) string {
	rel = filepath.ToSlash(rel)
	switch kind {
	case KindSkill:
		return strings.Split(rel, "/")[0]
	case KindCommand:
		return strings.ReplaceAll(strings.TrimSuffix(rel, ".md"), "/", ":")
	default:
		return strings.TrimSuffix(filepath.Base(rel), ".md")
	}
}
