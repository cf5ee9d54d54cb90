// Package config provides configuration management for tensorcore.
// It loads settings from environment variables with the TENSORCORE_ prefix,
// optionally overridden by a YAML file, and provides sensible defaults for
// all options.
//
// The embedding dimension is a shared system constant: every response
// embedding and every tensor vector in the process must use it. It is
// validated exactly once here at load time; stores and engines receive it
// as a constructor argument and never re-derive it.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultEmbeddingDim is the default shared embedding dimension.
const DefaultEmbeddingDim = 768

// Config holds all configuration settings for the tensorcore process.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Tensor  TensorConfig  `yaml:"tensor"`
	Sweep   SweepConfig   `yaml:"sweep"`
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// Engine selects the storage backend: sqlite or postgres (default: sqlite).
	Engine string `yaml:"engine"`

	// DSN is the database connection string. For sqlite this is a file path
	// or file: URI (default: ./data/tensorcore.db).
	DSN string `yaml:"dsn"`

	// MigrationsDir is the directory holding NNN_name.up.sql files applied
	// once at process start (default: ./migrations).
	MigrationsDir string `yaml:"migrations_dir"`
}

// TensorConfig contains engine-wide scoring parameters.
type TensorConfig struct {
	// EmbeddingDim is the shared embedding dimension (default: 768).
	EmbeddingDim int `yaml:"embedding_dim"`

	// LookbackDays is the default response corpus window (default: 90).
	LookbackDays int `yaml:"lookback_days"`

	// DriftWindowDays is the recent window for drift detection (default: 30).
	DriftWindowDays int `yaml:"drift_window_days"`
}

// SweepConfig contains batch sweep settings.
type SweepConfig struct {
	// Concurrency bounds the number of domains processed in parallel
	// (default: 4).
	Concurrency int `yaml:"concurrency"`

	// StoreRatePerSec limits domain computations started per second to
	// protect the shared store (default: 20).
	StoreRatePerSec float64 `yaml:"store_rate_per_sec"`

	// DecayStaleHours is the minimum idle time before the decay sweep ages
	// a tensor (default: 24).
	DecayStaleHours int `yaml:"decay_stale_hours"`
}

// Load builds configuration from environment variables, then applies the
// YAML file named by TENSORCORE_CONFIG_FILE (if set) on top. The embedding
// dimension is validated before the config is returned.
func Load() (*Config, error) {
	cfg := buildBaseConfig()

	if path := os.Getenv("TENSORCORE_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile builds configuration from environment variables plus the given
// YAML file. Used by tests and by callers that manage the path themselves.
func LoadFile(path string) (*Config, error) {
	cfg := buildBaseConfig()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays YAML settings from path onto the config.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

// Validate checks cross-field invariants. It is called by Load; callers
// constructing a Config by hand should call it themselves.
func (c *Config) Validate() error {
	if c.Tensor.EmbeddingDim <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive, got %d", c.Tensor.EmbeddingDim)
	}
	if c.Storage.Engine != "sqlite" && c.Storage.Engine != "postgres" {
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Tensor.LookbackDays <= 0 {
		return fmt.Errorf("config: lookback days must be positive, got %d", c.Tensor.LookbackDays)
	}
	if c.Tensor.DriftWindowDays <= 0 {
		return fmt.Errorf("config: drift window days must be positive, got %d", c.Tensor.DriftWindowDays)
	}
	if c.Sweep.Concurrency < 1 {
		return fmt.Errorf("config: sweep concurrency must be at least 1, got %d", c.Sweep.Concurrency)
	}
	return nil
}

// buildBaseConfig constructs a Config from environment variables and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:        getEnv("TENSORCORE_STORAGE_ENGINE", "sqlite"),
			DSN:           getEnv("TENSORCORE_DSN", "./data/tensorcore.db"),
			MigrationsDir: getEnv("TENSORCORE_MIGRATIONS_DIR", "./migrations"),
		},
		Tensor: TensorConfig{
			EmbeddingDim:    getEnvInt("TENSORCORE_EMBEDDING_DIM", DefaultEmbeddingDim),
			LookbackDays:    getEnvInt("TENSORCORE_LOOKBACK_DAYS", 90),
			DriftWindowDays: getEnvInt("TENSORCORE_DRIFT_WINDOW_DAYS", 30),
		},
		Sweep: SweepConfig{
			Concurrency:     getEnvInt("TENSORCORE_SWEEP_CONCURRENCY", 4),
			StoreRatePerSec: getEnvFloat("TENSORCORE_STORE_RATE", 20),
			DecayStaleHours: getEnvInt("TENSORCORE_DECAY_STALE_HOURS", 24),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
