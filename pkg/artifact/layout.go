package artifact

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/validation"
)

const (
	skillFileName = "SKILL.md"
	localSubdir   = "local"
)

// Layout resolves artifact locations on disk
type Layout struct {
	homeDir      string
	projectDir   string
	assistantDir string
}

// LayoutOption configures a Layout
type LayoutOption func(*Layout) error

// WithHomeDir overrides the user home directory
func WithHomeDir(dir string) LayoutOption {
	return func(l *Layout) error {
		l.homeDir = dir
		return nil
	}
}

// WithProjectDir overrides the project directory (defaults to the working directory)
func WithProjectDir(dir string) LayoutOption {
	return func(l *Layout) error {
		l.projectDir = dir
		return nil
	}
}

// WithAssistantDir sets the name of the assistant configuration directory (e.g. ".claude")
func WithAssistantDir(name string) LayoutOption {
	return func(l *Layout) error {
		if name == "" || strings.ContainsAny(name, `/\`) {
			return errors.Errorf("invalid assistant directory name %q", name)
		}
		l.assistantDir = name
		return nil
	}
}

// NewLayout creates a layout rooted at the user home and the working directory
func NewLayout(opts ...LayoutOption) (*Layout, error) {
	l := &Layout{assistantDir: ".claude"}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	if l.homeDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get user home directory")
		}
		l.homeDir = homeDir
	}
	if l.projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get working directory")
		}
		l.projectDir = wd
	}

	var err error
	if l.homeDir, err = filepath.Abs(l.homeDir); err != nil {
		return nil, errors.Wrap(err, "failed to resolve home directory")
	}
	if l.projectDir, err = filepath.Abs(l.projectDir); err != nil {
		return nil, errors.Wrap(err, "failed to resolve project directory")
	}

	return l, nil
}

// ProjectDir returns the absolute project directory
func (l *Layout) ProjectDir() string {
	return l.projectDir
}

// ScopeRoot returns the assistant configuration root for a scope
func (l *Layout) ScopeRoot(scope Scope) string {
	switch scope {
	case ScopeGlobal:
		return filepath.Join(l.homeDir, l.assistantDir)
	case ScopeLocal:
		return filepath.Join(l.projectDir, l.assistantDir, localSubdir)
	default:
		return filepath.Join(l.projectDir, l.assistantDir)
	}
}

// KindDir returns the directory holding artifacts of kind in scope
func (l *Layout) KindDir(kind Kind, scope Scope) string {
	return filepath.Join(l.ScopeRoot(scope), kind.Subdir())
}

// Path returns the Markdown file for the named artifact. Command names may
// be namespaced ("git:commit" lives at commands/git/commit.md). The result is
// guaranteed to live inside the scope root.
func (l *Layout) Path(kind Kind, scope Scope, name string) (string, error) {
	dir := l.KindDir(kind, scope)

	var path string
	switch kind {
	case KindSkill:
		if err := validation.ValidateName(name); err != nil {
			return "", err
		}
		path = filepath.Join(dir, name, skillFileName)
	case KindCommand:
		if err := validation.ValidateCommandName(name); err != nil {
			return "", err
		}
		path = filepath.Join(dir, filepath.Join(strings.Split(name, ":")...)+".md")
	default:
		if err := validation.ValidateName(name); err != nil {
			return "", err
		}
		path = filepath.Join(dir, name+".md")
	}

	if err := validation.ValidatePath(l.ScopeRoot(scope), path); err != nil {
		return "", err
	}
	return path, nil
}

// ArtifactDir returns the path that owns the artifact on disk: the skill
// directory for skills and the Markdown file otherwise.
func ArtifactDir(kind Kind, path string) string {
	if kind == KindSkill {
		return filepath.Dir(path)
	}
	return path
}

// EnsureLocalExcluded appends the local scope root to .git/info/exclude so
// that local artifacts stay uncommitted. It is a no-op outside git repositories.
func (l *Layout) EnsureLocalExcluded() error {
	gitDir := filepath.Join(l.projectDir, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	pattern := "/" + filepath.ToSlash(filepath.Join(l.assistantDir, localSubdir)) + "/"
	excludePath := filepath.Join(gitDir, "info", "exclude")

	existing, err := os.ReadFile(excludePath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to read git exclude file")
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == pattern {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(excludePath), 0o755); err != nil {
		return errors.Wrap(err, "failed to create git info directory")
	}

	f, err := os.OpenFile(excludePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to open git exclude file")
	}
	defer f.Close()

	prefix := ""
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		prefix = "\n"
	}
	if _, err := f.WriteString(prefix + pattern + "\n"); err != nil {
		return errors.Wrap(err, "failed to update git exclude file")
	}
	return nil
}

// Locate maps an artifact file back to its scope and its path relative to
// the kind directory. The local root is checked before the project root it
// is nested in.
func (l *Layout) Locate(kind Kind, path string) (Location, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Location{}, errors.Wrapf(err, "failed to resolve %s", path)
	}
	for _, scope := range Scopes {
		dir := l.KindDir(kind, scope)
		rel, err := filepath.Rel(dir, abs)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return Location{Scope: scope, Path: abs, Rel: filepath.ToSlash(rel)}, nil
	}
	return Location{}, errors.Errorf("%s is not inside any %s directory", path, kind)
}
