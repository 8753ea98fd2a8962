package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, ".", cfg.Project)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"explicit workers", func(c *Config) { c.Workers = 4 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEffectiveLogLevel_Quiet(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = LogLevelDebug
	cfg.Quiet = true

	assert.Equal(t, LogLevelError, cfg.EffectiveLogLevel())
}

func TestEffectiveWorkers(t *testing.T) {
	cfg := Default()
	assert.Positive(t, cfg.EffectiveWorkers())

	cfg.Workers = 3
	assert.Equal(t, 3, cfg.EffectiveWorkers())
}

func TestProjectLayout(t *testing.T) {
	cfg := Default()
	cfg.Project = "game"

	assert.Equal(t, filepath.Join("game", "schema"), cfg.SchemaDir())
	assert.Equal(t, filepath.Join("game", "schema_cache.json"), cfg.SchemaCachePath())
	assert.Equal(t, filepath.Join("game", "assets_id_based"), cfg.AssetsIDRoot())
	assert.Equal(t, filepath.Join("game", "assets_path_based"), cfg.AssetsPathRoot())
	assert.Equal(t, filepath.Join("game", "import_data"), cfg.ImportDataRoot())
	assert.Equal(t, filepath.Join("game", "job_data"), cfg.JobDataRoot())
	assert.Equal(t, filepath.Join("game", "build_data"), cfg.BuildDataRoot())
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().String("log-level", "info", "")
	cmd.PersistentFlags().String("log-format", "text", "")
	cmd.PersistentFlags().Bool("quiet", false, "")
	cmd.PersistentFlags().String("project", ".", "")
	cmd.PersistentFlags().Int("workers", 0, "")

	require.NoError(t, cmd.PersistentFlags().Set("log-level", "debug"))
	require.NoError(t, cmd.PersistentFlags().Set("project", "my-game"))

	cfg, err := Load(cmd, "")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
	assert.Equal(t, "my-game", cfg.Project)
}

func TestContextRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Project = "somewhere"

	ctx := NewContext(context.Background(), cfg)
	assert.Equal(t, cfg, FromContext(ctx))

	// Missing config falls back to defaults.
	assert.Equal(t, ".", FromContext(context.Background()).Project)
}
