package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/agentkit/pkg/config"
	"github.com/jingkaihe/agentkit/pkg/logger"
	"github.com/jingkaihe/agentkit/pkg/presenter"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
	"github.com/jingkaihe/agentkit/pkg/version"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	a := &app{v: v}

	rootCmd := &cobra.Command{
		Use:   "agentkit",
		Short: "Build and catalog skills, commands and agents for your coding assistant",
		Long: `agentkit generates, validates and catalogs the Markdown artifacts read by an
AI coding assistant: skills, slash commands and subagents. It also installs
artifacts from git repositories, caches documentation sites as Markdown and
runs both on a cron schedule.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "Log format (fmt or json)")
	flags.String("project-dir", "", "Project root (defaults to the git repository containing the working directory)")
	flags.String("data-dir", "", "Directory holding catalogs, hooks and the docs database (default ~/.agentkit)")
	flags.String("assistant-dir", "", "Name of the assistant config directory (default .claude)")
	flags.Bool("no-backup", false, "Do not copy catalogs to .bak before writing")
	flags.BoolP("quiet", "q", false, "Only print errors")
	flags.Bool("tracing-enabled", false, "Export OpenTelemetry traces over OTLP/HTTP")
	flags.String("tracing-sampler", "", "Trace sampler (always, never or ratio)")
	flags.Float64("tracing-ratio", 0, "Sampling ratio used by the ratio sampler")

	v.BindPFlag("log_level", flags.Lookup("log-level"))
	v.BindPFlag("log_format", flags.Lookup("log-format"))
	v.BindPFlag("project_dir", flags.Lookup("project-dir"))
	v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	v.BindPFlag("assistant_dir", flags.Lookup("assistant-dir"))
	v.BindPFlag("tracing.enabled", flags.Lookup("tracing-enabled"))
	v.BindPFlag("tracing.sampler", flags.Lookup("tracing-sampler"))
	v.BindPFlag("tracing.ratio", flags.Lookup("tracing-ratio"))

	for _, k := range kinds() {
		rootCmd.AddCommand(newKindCmd(a, k))
	}
	rootCmd.AddCommand(
		newCatalogCmd(a),
		newInstallCmd(a),
		newDocsCmd(a),
		newScheduleCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
		newLlmstxtCmd(),
	)
	return rootCmd
}

// init loads the configuration. Viper only sees changed flags, so unset
// flags fall back to the environment, the config file and the defaults.
func (a *app) init(cmd *cobra.Command) error {
	config.Setup(a.v)
	if err := config.ReadFile(a.v); err != nil {
		return err
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	if noBackup, _ := cmd.Flags().GetBool("no-backup"); noBackup {
		cfg.Catalog.Backup = false
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Tracing, version.Get().Version)
	if err != nil {
		return err
	}
	a.shutdown = shutdown

	a.out = presenter.NewWithOptions(cmd.OutOrStdout(), cmd.ErrOrStderr(), presenter.ColorModeFromEnv())
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		a.out.SetQuiet(true)
	}
	return a.setup(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		presenter.Error(err, "")
		stop()
		os.Exit(1)
	}
}
