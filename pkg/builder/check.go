package builder

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/catalog"
	"github.com/jingkaihe/agentkit/pkg/hooks"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
)

// ValidateReport lists the files checked by Validate
type ValidateReport struct {
	Checked []string `json:"checked"`
	Failed  []string `json:"failed"`
}

// Validate checks artifact files: each must parse, satisfy its kind's
// model and pass the security checks. Without paths every artifact of the
// builder's kind on disk is checked. All failures are returned together.
func (b *Builder) Validate(ctx context.Context, paths ...string) (*ValidateReport, error) {
	var locations []artifact.Location
	if len(paths) == 0 {
		found, err := b.discovery.Locate(ctx, b.kind)
		if err != nil {
			return nil, err
		}
		locations = found
	} else {
		for _, p := range paths {
			loc, err := b.layout.Locate(b.kind, p)
			if err != nil {
				return nil, err
			}
			locations = append(locations, loc)
		}
	}

	report := &ValidateReport{Checked: []string{}, Failed: []string{}}
	var result *multierror.Error
	for _, loc := range locations {
		report.Checked = append(report.Checked, loc.Path)
		if err := b.validateFile(loc); err != nil {
			report.Failed = append(report.Failed, loc.Path)
			result = multierror.Append(result, errors.Wrap(err, loc.Path))
		}
	}
	return report, result.ErrorOrNil()
}

func (b *Builder) validateFile(loc artifact.Location) error {
	a, err := artifact.Load(b.kind, loc.Scope, loc.Path, loc.Rel)
	if err != nil {
		return err
	}
	return b.CheckArtifact(a, loc.Rel)
}

// CheckArtifact validates a loaded artifact. rel is its path relative to
// the kind directory; the frontmatter name must agree with it.
func (b *Builder) CheckArtifact(a *artifact.Artifact, rel string) error {
	if a.Kind != b.kind {
		return errors.Errorf("cannot check a %s with the %s builder", a.Kind, b.kind)
	}
	if b.kind != artifact.KindCommand {
		if dirName := artifact.NameFromPath(b.kind, rel); a.Name != dirName {
			return errors.Errorf("name %q does not match file name %q", a.Name, dirName)
		}
	}
	return b.Check(SpecFromDocument(b.kind, a.Scope, a.Name, a.Document))
}

// Register records an artifact that was placed on disk by other means (an
// installer, a manual copy) in the catalog. extra is merged into the entry
// metadata.
func (b *Builder) Register(ctx context.Context, a *artifact.Artifact, extra map[string]any) (*catalog.Entry, error) {
	entry := entryFor(b.kind, a.Name, a.Scope, a.Path, a.Document)
	if len(extra) > 0 && entry.Metadata == nil {
		entry.Metadata = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		entry.Metadata[k] = v
	}
	saved, err := b.catalog.Upsert(ctx, entry)
	if err != nil {
		return nil, err
	}
	b.fire(b.logCtx(ctx, a.Name, a.Scope), hooks.HookTypeAfterCreate, a.Name, a.Scope, a.Path)
	return saved, nil
}

// Sync reconciles the catalog with the artifacts on disk in scopes (all
// scopes when none are given)
func (b *Builder) Sync(ctx context.Context, scopes ...artifact.Scope) (result catalog.SyncResult, err error) {
	if len(scopes) == 0 {
		scopes = artifact.Scopes
	}
	ctx, end := telemetry.Start(ctx, "builder.sync", attribute.String("kind", string(b.kind)))
	defer func() { end(err) }()

	found, err := b.Discover(ctx, scopes...)
	if err != nil {
		return result, err
	}

	entries := make([]catalog.Entry, 0, len(found))
	for _, a := range found {
		entries = append(entries, entryFor(b.kind, a.Name, a.Scope, a.Path, a.Document))
	}

	result, err = b.catalog.Reconcile(ctx, entries, scopes)
	if err != nil {
		return result, err
	}

	logger.G(ctx).WithField("kind", b.kind).
		WithField("added", len(result.Added)).
		WithField("updated", len(result.Updated)).
		WithField("removed", len(result.Removed)).
		Info("catalog synchronized")

	b.hooks.Fire(ctx, hooks.Payload{
		Event:      hooks.HookTypeAfterSync,
		Kind:       b.kind,
		ProjectDir: b.layout.ProjectDir(),
		Timestamp:  b.now().UTC(),
		Sync: &hooks.SyncSummary{
			Added:   result.Added,
			Updated: result.Updated,
			Removed: result.Removed,
		},
	})
	return result, nil
}
