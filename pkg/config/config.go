// Package config loads the agentkit configuration from flags, AGENTKIT_*
// environment variables and config.yaml through viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/catalog"
	"github.com/jingkaihe/agentkit/pkg/db"
	"github.com/jingkaihe/agentkit/pkg/docs"
	"github.com/jingkaihe/agentkit/pkg/schedule"
	"github.com/jingkaihe/agentkit/pkg/telemetry"
	"github.com/jingkaihe/agentkit/pkg/validation"
)

// EnvPrefix prefixes every environment variable read by agentkit
const EnvPrefix = "AGENTKIT"

// Config is the resolved configuration
type Config struct {
	AssistantDir string           `mapstructure:"assistant_dir" validate:"required,excludesall=/\\"`
	ProjectDir   string           `mapstructure:"project_dir"`
	DataDir      string           `mapstructure:"data_dir"`
	LogLevel     string           `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	LogFormat    string           `mapstructure:"log_format" validate:"omitempty,oneof=fmt text json"`
	Catalog      CatalogConfig    `mapstructure:"catalog"`
	Templates    TemplatesConfig  `mapstructure:"templates"`
	Docs         DocsConfig       `mapstructure:"docs"`
	Schedule     ScheduleConfig   `mapstructure:"schedule"`
	Hooks        HooksConfig      `mapstructure:"hooks"`
	Tracing      telemetry.Config `mapstructure:"tracing"`
}

// CatalogConfig configures the catalog files
type CatalogConfig struct {
	Backup bool `mapstructure:"backup"`
}

// TemplatesConfig configures artifact templates
type TemplatesConfig struct {
	// Dir holds <kind>.md.tmpl files overriding the built-in templates
	Dir string `mapstructure:"dir"`
}

// DocsConfig configures the documentation crawler
type DocsConfig struct {
	CacheDir  string        `mapstructure:"cache_dir"`
	Delay     time.Duration `mapstructure:"delay" validate:"gte=0"`
	UserAgent string        `mapstructure:"user_agent"`
	Sources   []docs.Source `mapstructure:"-"`
}

// ScheduleConfig lists the scheduled jobs
type ScheduleConfig struct {
	Jobs []schedule.Job `mapstructure:"-"`
}

// HooksConfig configures lifecycle hooks
type HooksConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// Setup points v at the environment and the config file locations
func Setup(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.agentkit")
	v.AddConfigPath(".")

	SetDefaults(v)
}

// SetDefaults registers the default of every key so that environment
// variables can override them
func SetDefaults(v *viper.Viper) {
	v.SetDefault("assistant_dir", ".claude")
	v.SetDefault("project_dir", "")
	v.SetDefault("data_dir", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "fmt")
	v.SetDefault("catalog.backup", true)
	v.SetDefault("templates.dir", "")
	v.SetDefault("docs.cache_dir", "")
	v.SetDefault("docs.delay", docs.DefaultDelay)
	v.SetDefault("docs.user_agent", "agentkit")
	v.SetDefault("docs.sources", []any{})
	v.SetDefault("schedule.jobs", []any{})
	v.SetDefault("hooks.timeout", 30*time.Second)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampler", "ratio")
	v.SetDefault("tracing.ratio", 1.0)
}

// ReadFile reads the config file found by Setup. A missing file is not an
// error.
func ReadFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load resolves the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	var err error
	if cfg.Docs.Sources, err = docs.DecodeSources(v.Get("docs.sources")); err != nil {
		return nil, err
	}
	if cfg.Schedule.Jobs, err = schedule.DecodeJobs(v.Get("schedule.jobs")); err != nil {
		return nil, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user home directory")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(home, ".agentkit")
	}
	if cfg.Docs.CacheDir == "" {
		cfg.Docs.CacheDir = filepath.Join(cfg.DataDir, "docs")
	}
	for _, dir := range []*string{&cfg.ProjectDir, &cfg.DataDir, &cfg.Docs.CacheDir, &cfg.Templates.Dir} {
		*dir = expandHome(*dir, home)
	}

	if err := validation.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Layout returns the artifact layout described by c
func (c *Config) Layout() (*artifact.Layout, error) {
	opts := []artifact.LayoutOption{artifact.WithAssistantDir(c.AssistantDir)}
	if c.ProjectDir != "" {
		opts = append(opts, artifact.WithProjectDir(c.ProjectDir))
	}
	return artifact.NewLayout(opts...)
}

// CatalogPath returns the catalog file of kind
func (c *Config) CatalogPath(kind artifact.Kind) string {
	return catalog.Path(c.DataDir, kind)
}

// DocsDBPath returns the crawl database
func (c *Config) DocsDBPath() string {
	return filepath.Join(c.DataDir, db.FileName)
}
