package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/builder"
	"github.com/jingkaihe/agentkit/pkg/catalog"
	"github.com/jingkaihe/agentkit/pkg/config"
	"github.com/jingkaihe/agentkit/pkg/hooks"
	"github.com/jingkaihe/agentkit/pkg/presenter"
	"github.com/jingkaihe/agentkit/pkg/render"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
)

// app holds what every subcommand needs once the configuration is loaded
type app struct {
	v        *viper.Viper
	cfg      *config.Config
	layout   *artifact.Layout
	builders map[artifact.Kind]*builder.Builder
	out      *presenter.Presenter
	shutdown telemetry.ShutdownFunc
}

func kinds() []artifact.Kind {
	return artifact.Kinds
}

func (a *app) setup(cfg *config.Config) error {
	layout, err := cfg.Layout()
	if err != nil {
		return err
	}

	hookManager, err := hooks.NewManager(hooks.WithDefaultDirs(cfg.DataDir))
	if err != nil {
		return errors.Wrap(err, "failed to load hooks")
	}
	hookManager.SetTimeout(cfg.Hooks.Timeout)

	var renderOpts []render.Option
	if cfg.Templates.Dir != "" {
		renderOpts = append(renderOpts, render.WithOverrideDir(cfg.Templates.Dir))
	}
	renderer := render.New(renderOpts...)

	a.cfg = cfg
	a.layout = layout
	a.builders = make(map[artifact.Kind]*builder.Builder, len(artifact.Kinds))
	for _, kind := range artifact.Kinds {
		cat := catalog.NewManager(cfg.CatalogPath(kind), catalog.WithKind(kind), catalog.WithBackup(cfg.Catalog.Backup))
		a.builders[kind] = builder.New(kind, layout, cat,
			builder.WithRenderer(renderer),
			builder.WithHooks(hookManager),
		)
	}
	return nil
}

func (a *app) builder(kind artifact.Kind) *builder.Builder {
	return a.builders[kind]
}

func (a *app) allBuilders() []*builder.Builder {
	result := make([]*builder.Builder, 0, len(a.builders))
	for _, kind := range artifact.Kinds {
		result = append(result, a.builders[kind])
	}
	return result
}

func (a *app) close(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(ctx)
}
