package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	t.Setenv("MCVQE_DATA_DIR", dir)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.DirExists(t, dir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "nelder-mead", cfg.Runs.Optimizer)
	assert.Equal(t, 200, cfg.Runs.MaxIterations)
	assert.Empty(t, cfg.Runs.Gradient)
	assert.Zero(t, cfg.Runs.Shots)
	assert.Equal(t, runtime.NumCPU(), cfg.Runs.Workers)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, "0 30 3 * * *", cfg.Retention.Schedule)
	assert.Empty(t, cfg.Archive.Bucket)
	assert.Equal(t, "runs", cfg.Archive.Prefix)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MCVQE_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MCVQE_OPTIMIZER", "bfgs")
	t.Setenv("MCVQE_GRADIENT", "central")
	t.Setenv("MCVQE_SHOTS", "1024")
	t.Setenv("MCVQE_WORKERS", "3")
	t.Setenv("MCVQE_RETENTION_DAYS", "0")
	t.Setenv("MCVQE_ARCHIVE_BUCKET", "runs-bucket")
	t.Setenv("MCVQE_ARCHIVE_ENDPOINT", "http://localhost:9000")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "bfgs", cfg.Runs.Optimizer)
	assert.Equal(t, "central", cfg.Runs.Gradient)
	assert.Equal(t, 1024, cfg.Runs.Shots)
	assert.Equal(t, 3, cfg.Runs.Workers)
	assert.Zero(t, cfg.Retention.Days)
	assert.Equal(t, "runs-bucket", cfg.Archive.Bucket)
	assert.Equal(t, "http://localhost:9000", cfg.Archive.Endpoint)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MCVQE_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "not-a-port")
	t.Setenv("DEV_MODE", "maybe")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"port out of range", func(c *Config) { c.Port = 70000 }, true},
		{"negative shots", func(c *Config) { c.Runs.Shots = -1 }, true},
		{"negative workers", func(c *Config) { c.Runs.Workers = -2 }, true},
		{"half credentials", func(c *Config) {
			c.Archive.Bucket = "b"
			c.Archive.AccessKeyID = "key"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Port: 8001, Runs: RunDefaults{MaxIterations: 10}}
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, godotenv.Write(map[string]string{
		"MCVQE_OPTIMIZER": "lbfgs",
	}, envFile))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("MCVQE_DATA_DIR", filepath.Join(dir, "data"))
	// Registered so the value loaded from .env is cleared after the test
	t.Setenv("MCVQE_OPTIMIZER", "")
	require.NoError(t, os.Unsetenv("MCVQE_OPTIMIZER"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "lbfgs", cfg.Runs.Optimizer)
}
