// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the run store and logs (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool
	Runs      RunDefaults
	Retention RetentionConfig
	Archive   ArchiveConfig
}

// RunDefaults are the execution settings applied when a request omits them.
type RunDefaults struct {
	Optimizer     string
	MaxIterations int
	Gradient      string // empty = none unless the optimizer needs one
	Shots         int    // 0 = exact expectation values
	Seed          int64
	Workers       int // parallel state evaluations
}

// RetentionConfig controls pruning of finished runs.
type RetentionConfig struct {
	Days     int // <= 0 keeps runs forever
	Schedule string
}

// ArchiveConfig describes the S3-compatible bucket finished runs are copied to.
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Load reads configuration from environment variables, after loading a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the current environment only.
func FromEnv() (*Config, error) {
	absDataDir, err := filepath.Abs(getEnv("MCVQE_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		Port:      getEnvAsInt("GO_PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Runs: RunDefaults{
			Optimizer:     getEnv("MCVQE_OPTIMIZER", "nelder-mead"),
			MaxIterations: getEnvAsInt("MCVQE_MAX_ITERATIONS", 200),
			Gradient:      getEnv("MCVQE_GRADIENT", ""),
			Shots:         getEnvAsInt("MCVQE_SHOTS", 0),
			Seed:          int64(getEnvAsInt("MCVQE_SEED", 0)),
			Workers:       getEnvAsInt("MCVQE_WORKERS", runtime.NumCPU()),
		},
		Retention: RetentionConfig{
			Days:     getEnvAsInt("MCVQE_RETENTION_DAYS", 30),
			Schedule: getEnv("MCVQE_RETENTION_SCHEDULE", "0 30 3 * * *"),
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("MCVQE_ARCHIVE_BUCKET", ""),
			Endpoint:        getEnv("MCVQE_ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("MCVQE_ARCHIVE_REGION", "auto"),
			AccessKeyID:     getEnv("MCVQE_ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("MCVQE_ARCHIVE_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("MCVQE_ARCHIVE_PREFIX", "runs"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are in range
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be in 1..65535, got %d", c.Port)
	}
	if c.Runs.MaxIterations < 0 {
		return fmt.Errorf("MCVQE_MAX_ITERATIONS must be non-negative, got %d", c.Runs.MaxIterations)
	}
	if c.Runs.Shots < 0 {
		return fmt.Errorf("MCVQE_SHOTS must be non-negative, got %d", c.Runs.Shots)
	}
	if c.Runs.Workers < 0 {
		return fmt.Errorf("MCVQE_WORKERS must be non-negative, got %d", c.Runs.Workers)
	}
	if c.Archive.Bucket != "" && (c.Archive.AccessKeyID == "") != (c.Archive.SecretAccessKey == "") {
		return fmt.Errorf("MCVQE_ARCHIVE_ACCESS_KEY_ID and MCVQE_ARCHIVE_SECRET_ACCESS_KEY must be set together")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
