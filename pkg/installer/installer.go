// Package installer copies skills, commands and agents published in a git
// repository into one of the local scopes and registers them in the
// catalog.
package installer

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/otiai10/copy"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/builder"
	"github.com/jingkaihe/agentkit/pkg/catalog"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/osutil"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
)

// patterns locates artifacts inside a cloned repository
var patterns = map[artifact.Kind]string{
	artifact.KindSkill:   "skills/*/SKILL.md",
	artifact.KindCommand: "commands/**/*.md",
	artifact.KindAgent:   "agents/*.md",
}

// Options controls Install
type Options struct {
	Scope artifact.Scope
	// Kinds restricts the installed kinds; empty means all
	Kinds []artifact.Kind
	// Force replaces artifacts that already exist in the target scope
	Force bool
}

// Installed describes one installed artifact
type Installed struct {
	Kind artifact.Kind `json:"kind"`
	Name string        `json:"name"`
	Path string        `json:"path"`
}

// Skipped describes a repository file that was not installed
type Skipped struct {
	Kind   artifact.Kind `json:"kind"`
	Path   string        `json:"path"`
	Reason string        `json:"reason"`
}

// Report summarizes an installation
type Report struct {
	Source    string      `json:"source"`
	Ref       string      `json:"ref,omitempty"`
	Commit    string      `json:"commit"`
	Installed []Installed `json:"installed"`
	Skipped   []Skipped   `json:"skipped"`
}

// Installer installs artifacts through the builder of their kind
type Installer struct {
	builders map[artifact.Kind]*builder.Builder
	tempDir  string
}

// Option configures an Installer
type Option func(*Installer)

// WithTempDir sets where repositories are cloned
func WithTempDir(dir string) Option {
	return func(i *Installer) {
		i.tempDir = dir
	}
}

// New returns an installer. builders must hold one builder per kind to be
// installed; they share the layout of the target scopes.
func New(builders []*builder.Builder, opts ...Option) *Installer {
	i := &Installer{builders: make(map[artifact.Kind]*builder.Builder, len(builders))}
	for _, b := range builders {
		i.builders[b.Kind()] = b
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install clones src and installs every valid artifact it publishes
func (i *Installer) Install(ctx context.Context, src Source, opts Options) (report *Report, err error) {
	if opts.Scope == "" {
		opts.Scope = artifact.ScopeProject
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = artifact.Kinds
	}
	ctx = logger.WithFields(ctx, logrus.Fields{"source": src.String(), "scope": opts.Scope})
	ctx, end := telemetry.Start(ctx, "installer.install",
		attribute.String("source", src.Name), attribute.String("ref", src.Ref))
	defer func() { end(err) }()

	dir, err := os.MkdirTemp(i.tempDir, "agentkit-install-")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create clone directory")
	}
	defer os.RemoveAll(dir)

	commit, err := clone(ctx, src, dir)
	if err != nil {
		return nil, err
	}

	report = &Report{Source: src.Name, Ref: src.Ref, Commit: commit, Installed: []Installed{}, Skipped: []Skipped{}}
	found := 0
	for _, kind := range opts.Kinds {
		b, ok := i.builders[kind]
		if !ok {
			return nil, errors.Errorf("no builder configured for %s", kind)
		}
		matches, err := doublestar.Glob(os.DirFS(dir), patterns[kind])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to search %s", patterns[kind])
		}
		sort.Strings(matches)
		found += len(matches)

		for _, rel := range matches {
			installed, err := i.installOne(ctx, b, dir, rel, src, commit, opts)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("path", rel).Warn("skipping artifact")
				report.Skipped = append(report.Skipped, Skipped{Kind: kind, Path: rel, Reason: err.Error()})
				continue
			}
			report.Installed = append(report.Installed, *installed)
		}
	}

	if found == 0 {
		return report, errors.Errorf("%s does not contain any skills/, commands/ or agents/", src)
	}
	logger.G(ctx).WithField("installed", len(report.Installed)).WithField("skipped", len(report.Skipped)).Info("installation finished")
	return report, nil
}

func (i *Installer) installOne(ctx context.Context, b *builder.Builder, dir, rel string, src Source, commit string, opts Options) (*Installed, error) {
	kind := b.Kind()
	kindRel, err := filepath.Rel(kind.Subdir(), filepath.FromSlash(rel))
	if err != nil {
		return nil, err
	}

	staged, err := artifact.Load(kind, opts.Scope, filepath.Join(dir, filepath.FromSlash(rel)), kindRel)
	if err != nil {
		return nil, err
	}
	if err := b.CheckArtifact(staged, kindRel); err != nil {
		return nil, err
	}

	target, err := b.Layout().Path(kind, opts.Scope, staged.Name)
	if err != nil {
		return nil, err
	}
	if !opts.Force {
		if osutil.Exists(target) {
			return nil, errors.Wrapf(catalog.ErrAlreadyExists, "%s %q in %s scope", kind, staged.Name, opts.Scope)
		}
	}

	from, to := artifact.ArtifactDir(kind, staged.Path), artifact.ArtifactDir(kind, target)
	if opts.Force {
		if err := os.RemoveAll(to); err != nil {
			return nil, errors.Wrapf(err, "failed to replace %s", to)
		}
	}
	if opts.Scope == artifact.ScopeLocal {
		if err := b.Layout().EnsureLocalExcluded(); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to exclude local scope from git")
		}
	}
	if err := copy.Copy(from, to, copy.Options{
		Skip: func(_ os.FileInfo, src, _ string) (bool, error) {
			return filepath.Base(src) == ".git", nil
		},
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Skip
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to copy %s", rel)
	}

	staged.Path = target
	md := map[string]any{"source": src.Name, "commit": commit}
	if src.Ref != "" {
		md["ref"] = src.Ref
	}
	if _, err := b.Register(ctx, staged, md); err != nil {
		return nil, err
	}
	return &Installed{Kind: kind, Name: staged.Name, Path: target}, nil
}

// clone fetches src into dir and checks out its ref, returning the commit hash
func clone(ctx context.Context, src Source, dir string) (string, error) {
	logger.G(ctx).WithField("url", src.URL).Debug("cloning repository")

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: src.URL})
	if err != nil {
		return "", errors.Wrapf(err, "failed to clone %s", src.URL)
	}

	if src.Ref != "" {
		hash, err := resolveRef(repo, src.Ref)
		if err != nil {
			return "", err
		}
		wt, err := repo.Worktree()
		if err != nil {
			return "", errors.Wrap(err, "failed to open worktree")
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
			return "", errors.Wrapf(err, "failed to check out %s", src.Ref)
		}
	}

	head, err := repo.Head()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve HEAD")
	}
	return head.Hash().String(), nil
}

func resolveRef(repo *git.Repository, ref string) (*plumbing.Hash, error) {
	for _, candidate := range []string{ref, "origin/" + ref, "refs/tags/" + ref} {
		if hash, err := repo.ResolveRevision(plumbing.Revision(candidate)); err == nil {
			return hash, nil
		}
	}
	return nil, errors.Errorf("unknown ref %q", ref)
}
