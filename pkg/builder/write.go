package builder

import (
	"context"
	"os"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/catalog"
	"github.com/jingkaihe/agentkit/pkg/hooks"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/osutil"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
	"github.com/jingkaihe/agentkit/pkg/validation"
)

// CreateOptions controls Create
type CreateOptions struct {
	// Force overwrites an existing file and catalog entry
	Force bool
	// DryRun renders and validates without writing
	DryRun bool
}

// UpdateOptions controls Update
type UpdateOptions struct {
	DryRun bool
}

// DeleteOptions controls Delete
type DeleteOptions struct {
	// KeepFiles removes only the catalog entry
	KeepFiles bool
}

// Check validates spec and runs the security checks on every field that
// may reach a shell
func (b *Builder) Check(spec Spec) error {
	if spec.Kind() != b.kind {
		return errors.Errorf("cannot build a %s with the %s builder", spec.Kind(), b.kind)
	}
	if err := validation.Struct(spec); err != nil {
		return err
	}
	for _, text := range spec.shellText() {
		if err := validation.ValidateShellText(text); err != nil {
			return err
		}
	}
	return nil
}

// render produces the artifact content and verifies it parses back
func (b *Builder) render(ctx context.Context, spec Spec) (string, *artifact.Document, error) {
	content, err := b.renderer.Render(ctx, b.kind, spec.TemplateData())
	if err != nil {
		return "", nil, err
	}
	if err := validation.ValidateText("content", content, validation.MaxBodyLength); err != nil {
		return "", nil, err
	}
	doc, err := artifact.ParseDocument([]byte(content))
	if err != nil {
		return "", nil, errors.Wrap(err, "rendered template is not a valid artifact")
	}
	return content, doc, nil
}

// Create writes a new artifact and registers it in the catalog
func (b *Builder) Create(ctx context.Context, spec Spec, opts CreateOptions) (result *Result, err error) {
	name, scope := spec.Identity()
	ctx = b.logCtx(ctx, name, scope)
	ctx, end := telemetry.Start(ctx, "builder.create",
		attribute.String("kind", string(b.kind)), attribute.String("name", name), attribute.String("scope", string(scope)))
	defer func() { end(err) }()

	if err := b.Check(spec); err != nil {
		return nil, err
	}
	path, err := b.layout.Path(b.kind, scope, name)
	if err != nil {
		return nil, err
	}
	content, doc, err := b.render(ctx, spec)
	if err != nil {
		return nil, err
	}

	fileExists := osutil.Exists(path)
	if !opts.Force {
		if fileExists {
			return nil, errors.Wrapf(catalog.ErrAlreadyExists, "%s %q in %s scope (%s)", b.kind, name, scope, path)
		}
		if _, err := b.catalog.Get(ctx, name, scope); err == nil {
			return nil, errors.Wrapf(catalog.ErrAlreadyExists, "%s %q in %s scope is already in the catalog", b.kind, name, scope)
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return nil, err
		}
	}

	entry := entryFor(b.kind, name, scope, path, doc)
	if opts.DryRun {
		return &Result{Entry: &entry, Path: path, Content: content, DryRun: true}, nil
	}

	if scope == artifact.ScopeLocal {
		if err := b.layout.EnsureLocalExcluded(); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to exclude local scope from git")
		}
	}
	if err := osutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return nil, err
	}

	var saved *catalog.Entry
	if opts.Force {
		saved, err = b.catalog.Upsert(ctx, entry)
	} else {
		saved, err = b.catalog.Add(ctx, entry)
	}
	if err != nil {
		if !fileExists {
			_ = b.removeFiles(ctx, scope, path)
		}
		return nil, err
	}

	logger.G(ctx).WithField("path", path).Info("artifact created")
	b.fire(ctx, hooks.HookTypeAfterCreate, name, scope, path)
	return &Result{Entry: saved, Path: path, Content: content}, nil
}

// Update applies patch to an existing artifact. With DryRun the unified
// diff is returned and nothing is written.
func (b *Builder) Update(ctx context.Context, name string, scope artifact.Scope, patch Patch, opts UpdateOptions) (result *Result, err error) {
	ctx = b.logCtx(ctx, name, scope)
	ctx, end := telemetry.Start(ctx, "builder.update",
		attribute.String("kind", string(b.kind)), attribute.String("name", name), attribute.String("scope", string(scope)))
	defer func() { end(err) }()

	path, err := b.resolvePath(ctx, name, scope)
	if err != nil {
		return nil, err
	}
	old, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(catalog.ErrNotFound, "%s %q in %s scope", b.kind, name, scope)
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	current, err := artifact.ParseDocument(old)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	spec := SpecFromDocument(b.kind, scope, name, current)
	if err := patch.Apply(spec); err != nil {
		return nil, err
	}
	if err := b.Check(spec); err != nil {
		return nil, err
	}
	content, doc, err := b.render(ctx, spec)
	if err != nil {
		return nil, err
	}

	diff := udiff.Unified("a/"+path, "b/"+path, string(old), content)
	entry := entryFor(b.kind, name, scope, path, doc)
	if opts.DryRun {
		return &Result{Entry: &entry, Path: path, Content: content, Diff: diff, DryRun: true}, nil
	}

	if diff != "" {
		if err := osutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	saved, err := b.catalog.Upsert(ctx, entry)
	if err != nil {
		if diff != "" {
			if rerr := osutil.WriteFileAtomic(path, old, 0o644); rerr != nil {
				logger.G(ctx).WithError(rerr).WithField("path", path).Error("failed to restore artifact, file and catalog disagree")
			}
		}
		return nil, err
	}

	logger.G(ctx).WithField("path", path).WithField("changed", diff != "").Info("artifact updated")
	b.fire(ctx, hooks.HookTypeAfterUpdate, name, scope, path)
	return &Result{Entry: saved, Path: path, Content: content, Diff: diff}, nil
}

// Delete removes an artifact's files and its catalog entry
func (b *Builder) Delete(ctx context.Context, name string, scope artifact.Scope, opts DeleteOptions) (err error) {
	ctx = b.logCtx(ctx, name, scope)
	ctx, end := telemetry.Start(ctx, "builder.delete",
		attribute.String("kind", string(b.kind)), attribute.String("name", name), attribute.String("scope", string(scope)))
	defer func() { end(err) }()

	path, err := b.resolvePath(ctx, name, scope)
	if err != nil {
		return err
	}

	_, getErr := b.catalog.Get(ctx, name, scope)
	inCatalog := getErr == nil
	if getErr != nil && !errors.Is(getErr, catalog.ErrNotFound) {
		return getErr
	}
	onDisk := osutil.Exists(path)
	if !inCatalog && !onDisk {
		return errors.Wrapf(catalog.ErrNotFound, "%s %q in %s scope", b.kind, name, scope)
	}

	if onDisk && !opts.KeepFiles {
		if err := b.removeFiles(ctx, scope, path); err != nil {
			return err
		}
	}
	if inCatalog {
		if err := b.catalog.Remove(ctx, name, scope); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return err
		}
	}

	logger.G(ctx).WithField("path", path).WithField("kept_files", opts.KeepFiles).Info("artifact deleted")
	b.fire(ctx, hooks.HookTypeAfterDelete, name, scope, path)
	return nil
}

// removeFiles deletes the file (or skill directory) owning path
func (b *Builder) removeFiles(ctx context.Context, scope artifact.Scope, path string) error {
	target := artifact.ArtifactDir(b.kind, path)
	root := b.layout.ScopeRoot(scope)
	if err := validation.ValidatePath(root, target); err != nil {
		return err
	}
	if target == root || target == b.layout.KindDir(b.kind, scope) {
		return errors.Errorf("refusing to remove %s", target)
	}
	if err := os.RemoveAll(target); err != nil {
		return errors.Wrapf(err, "failed to remove %s", target)
	}
	logger.G(ctx).WithField("path", target).Debug("removed artifact files")
	return nil
}
