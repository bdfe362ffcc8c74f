package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// isolate points the lookup at empty directories so a developer's own
// config files cannot leak into the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 1000, cfg.Engine.MaxSteps)
	assert.Equal(t, 256, cfg.Engine.MaxRefires)
	assert.Equal(t, "log", cfg.Engine.ErrorPolicy)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Journal.Path)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
engine:
  max_steps: 50
  error_policy: fatal
log:
  format: json
journal:
  path: runs.db
tracing:
  enabled: true
  exporter: otlp
  sample_rate: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Engine.MaxSteps)
	assert.Equal(t, 256, cfg.Engine.MaxRefires, "unset keys keep defaults")
	assert.Equal(t, "fatal", cfg.Engine.ErrorPolicy)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "runs.db", cfg.Journal.Path)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "localhost:4317", cfg.Tracing.OTLPEndpoint)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_LocalConfig(t *testing.T) {
	isolate(t)
	require.NoError(t, os.MkdirAll(".ripple", 0755))
	require.NoError(t, os.WriteFile(LocalConfigPath, []byte("engine:\n  max_refires: 0\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Engine.MaxRefires)
}

func TestLoad_UserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	dir := filepath.Join(home, ".config", "ripple")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: debug\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "engine:\n  max_steps: 50\n")
	t.Setenv("RIPPLE_ENGINE_MAX_STEPS", "7")
	t.Setenv("RIPPLE_JOURNAL_PATH", "/tmp/j.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MaxSteps)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.Path)
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "engine:\n  error_policy: panic\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.error_policy")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"zero steps", func(c *Config) { c.Engine.MaxSteps = 0 }, "engine.max_steps"},
		{"negative refires", func(c *Config) { c.Engine.MaxRefires = -1 }, "engine.max_refires"},
		{"bad policy", func(c *Config) { c.Engine.ErrorPolicy = "retry" }, "engine.error_policy"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"sample rate high", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sample_rate"},
		{"sample rate negative", func(c *Config) { c.Tracing.SampleRate = -0.1 }, "tracing.sample_rate"},
		{"bad exporter", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "tracing.exporter"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "tracing.otlp_endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := Defaults()
	assert.Len(t, cfg.EngineOptions(), 3)

	cfg.Engine.ErrorPolicy = "bogus"
	assert.Len(t, cfg.EngineOptions(), 2, "an invalid policy is left to the engine default")
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Defaults()

	cfg.Logger(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	cfg.Logger(&buf, true).Debug("shown", "unit", 3)
	assert.Contains(t, buf.String(), "msg=shown unit=3")

	buf.Reset()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	logger := cfg.Logger(&buf, false)
	logger.Info("hidden")
	logger.Warn("careful")
	assert.Contains(t, buf.String(), `"msg":"careful"`)
	assert.NotContains(t, buf.String(), "hidden")
}
