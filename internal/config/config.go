// Package config provides configuration types, defaults and loading for ripple.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/ripple/internal/engine"
)

// EnvPrefix prefixes environment overrides, e.g. RIPPLE_ENGINE_MAX_STEPS.
const EnvPrefix = "RIPPLE"

// LocalConfigPath is checked before the user config directory.
const LocalConfigPath = ".ripple/config.yaml"

// Config holds all configuration options for ripple.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     LogConfig     `mapstructure:"log"`
	Journal JournalConfig `mapstructure:"journal"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// EngineConfig holds the runaway limits and the default error policy.
type EngineConfig struct {
	// MaxSteps bounds unit runs per drain.
	// Default: 1000
	MaxSteps int `mapstructure:"max_steps"`

	// MaxRefires bounds how often one reactor may fire for the same
	// mutation in a drain. 0 disables the check.
	// Default: 256
	MaxRefires int `mapstructure:"max_refires"`

	// ErrorPolicy applies to units that do not choose their own.
	// Options: "log", "ignore", "fatal"
	// Default: "log"
	ErrorPolicy string `mapstructure:"error_policy"`
}

// LogConfig controls the CLI's slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info (default), warn, error
	Format string `mapstructure:"format"` // text (default) or json
}

// JournalConfig locates the SQLite run journal.
type JournalConfig struct {
	// Path is the database file. Empty disables journaling unless --db is given.
	Path string `mapstructure:"path"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	// Enabled controls whether spans are recorded.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the export backend.
	// Options: "none", "stdout", "otlp"
	// Default: "stdout"
	Exporter string `mapstructure:"exporter"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate is the fraction of drains traced, in [0, 1].
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`

	// Default: "ripple"
	ServiceName string `mapstructure:"service_name"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MaxSteps:    engine.DefaultMaxSteps,
			MaxRefires:  engine.DefaultMaxRefires,
			ErrorPolicy: "log",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "stdout",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "ripple",
		},
	}
}

// SetDefaults registers every default key on v.
func SetDefaults(v *viper.Viper) {
	defaults := Defaults()

	v.SetDefault("engine.max_steps", defaults.Engine.MaxSteps)
	v.SetDefault("engine.max_refires", defaults.Engine.MaxRefires)
	v.SetDefault("engine.error_policy", defaults.Engine.ErrorPolicy)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("journal.path", defaults.Journal.Path)

	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
}

// Load reads configuration into a fresh viper instance.
//
// Config lookup order:
//  1. path, when non-empty (a missing file is an error)
//  2. .ripple/config.yaml (current directory)
//  3. ~/.config/ripple/config.yaml (user config)
//
// Environment variables prefixed with RIPPLE_ override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(LocalConfigPath); err == nil {
		v.SetConfigFile(LocalConfigPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ripple"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.Engine.MaxSteps <= 0 {
		return fmt.Errorf("engine.max_steps must be positive, got %d", c.Engine.MaxSteps)
	}
	if c.Engine.MaxRefires < 0 {
		return fmt.Errorf("engine.max_refires must be non-negative, got %d", c.Engine.MaxRefires)
	}
	if _, err := engine.ParsePolicy(c.Engine.ErrorPolicy); err != nil {
		return fmt.Errorf("engine.error_policy: %w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	return c.Tracing.Validate()
}

// Validate checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func (t TracingConfig) Validate() error {
	if t.SampleRate < 0.0 || t.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", t.SampleRate)
	}

	switch t.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"none\", \"stdout\", or \"otlp\", got %q", t.Exporter)
	}

	if t.Enabled && t.Exporter == "otlp" && t.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}
	return nil
}

// EngineOptions converts the engine section into engine options.
// The config must already be valid.
func (c Config) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithMaxSteps(c.Engine.MaxSteps),
		engine.WithMaxRefires(c.Engine.MaxRefires),
	}
	if p, err := engine.ParsePolicy(c.Engine.ErrorPolicy); err == nil {
		opts = append(opts, engine.WithErrorPolicy(p))
	}
	return opts
}

// Logger builds a slog logger writing to w. verbose forces debug level.
func (c Config) Logger(w io.Writer, verbose bool) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
}
