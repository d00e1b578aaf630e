// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // Base directory for the job and result databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Routing thresholds. Zero ServerMemoryBytes autodetects from system
	// memory at startup.
	ClientMaxQubits   int
	ClientMemoryBytes int64
	ServerMaxQubits   int
	ServerMemoryBytes int64

	// Worker pool sizing.
	Workers       int
	EngineWorkers int

	// AmplitudeLimitQubits caps full amplitude payloads in results; above
	// it only probabilities and counts are returned. Zero means no cap.
	AmplitudeLimitQubits int

	// JobRetentionHours is how long terminal jobs and their results are
	// kept before the janitor purges them. Zero disables retention.
	JobRetentionHours int

	Archive *ArchiveConfig
}

// ArchiveConfig holds optional S3-compatible result archival settings.
// Archival is enabled only when a bucket is configured.
type ArchiveConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Enabled reports whether archival is configured.
func (a *ArchiveConfig) Enabled() bool {
	return a != nil && a.Bucket != ""
}

// Load reads configuration from environment variables, consulting a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QFORGE_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("QFORGE_PORT", 8400),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		ClientMaxQubits:   getEnvAsInt("QFORGE_CLIENT_MAX_QUBITS", 20),
		ClientMemoryBytes: getEnvAsInt64("QFORGE_CLIENT_MEMORY_BYTES", 256<<20),
		ServerMaxQubits:   getEnvAsInt("QFORGE_SERVER_MAX_QUBITS", 30),
		ServerMemoryBytes: getEnvAsInt64("QFORGE_SERVER_MEMORY_BYTES", 0),

		Workers:       getEnvAsInt("QFORGE_WORKERS", 2),
		EngineWorkers: getEnvAsInt("QFORGE_ENGINE_WORKERS", 0),

		AmplitudeLimitQubits: getEnvAsInt("QFORGE_AMPLITUDE_LIMIT_QUBITS", 24),
		JobRetentionHours:    getEnvAsInt("QFORGE_JOB_RETENTION_HOURS", 72),

		Archive: &ArchiveConfig{
			Endpoint:        getEnv("QFORGE_S3_ENDPOINT", ""),
			Region:          getEnv("QFORGE_S3_REGION", ""),
			AccessKeyID:     getEnv("QFORGE_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("QFORGE_S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("QFORGE_S3_BUCKET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ClientMaxQubits <= 0 {
		return fmt.Errorf("QFORGE_CLIENT_MAX_QUBITS must be positive, got %d", c.ClientMaxQubits)
	}
	if c.ServerMaxQubits < c.ClientMaxQubits {
		return fmt.Errorf("QFORGE_SERVER_MAX_QUBITS (%d) must be at least QFORGE_CLIENT_MAX_QUBITS (%d)",
			c.ServerMaxQubits, c.ClientMaxQubits)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("QFORGE_WORKERS must be positive, got %d", c.Workers)
	}
	if c.Archive.Enabled() && c.Archive.AccessKeyID == "" {
		return fmt.Errorf("QFORGE_S3_BUCKET is set but QFORGE_S3_ACCESS_KEY_ID is empty")
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
