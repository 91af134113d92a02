// Package config loads ingestd's YAML configuration file, applies
// INGESTD_-prefixed environment variable overrides, and validates the
// result before the server is allowed to start — including refusing to
// boot if any configured batch chunk cap would exceed the bound-parameter
// ceiling for its variant.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/claude/ingestd/internal/batch"
	"github.com/claude/ingestd/internal/model"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Batch    BatchConfig    `yaml:"batch"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	PoolMin  int32  `yaml:"pool_min"`
	PoolMax  int32  `yaml:"pool_max"`
}

// IngestConfig holds the ingestion handler's request-level tunables.
type IngestConfig struct {
	MaxPayloadBytes                  int64   `yaml:"max_payload_bytes"`
	AsyncThresholdMetrics            int     `yaml:"async_threshold_metrics"`
	RequestTimeoutSeconds            int     `yaml:"request_timeout_seconds"`
	StoreTimeoutSeconds              int     `yaml:"store_timeout_seconds"`
	DuplicateWindowSeconds           int     `yaml:"duplicate_window_seconds"`
	LossPercentageThreshold          float64 `yaml:"loss_percentage_threshold"`
	SilentFailureParamLimitThreshold int     `yaml:"silent_failure_param_limit_threshold"`
}

// BatchConfig holds the batch processor's tunables: per-variant chunk cap
// overrides, the default fallback, and retry/concurrency settings.
type BatchConfig struct {
	DefaultChunkCap  int            `yaml:"default_chunk_cap"`
	ChunkCaps        map[string]int `yaml:"chunk_caps"`
	MaxConcurrency   int64          `yaml:"max_concurrency"`
	RetryMaxAttempts int            `yaml:"retry_max_attempts"`
	RetryInitialBackoffMs int       `yaml:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int       `yaml:"retry_max_backoff_ms"`
}

// defaultConfig holds every recognized option's default value.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			SSLMode: "disable",
			PoolMin: 10,
			PoolMax: 50,
		},
		Ingest: IngestConfig{
			MaxPayloadBytes:                  100 * 1024 * 1024,
			AsyncThresholdMetrics:             1000,
			RequestTimeoutSeconds:             90,
			StoreTimeoutSeconds:               30,
			DuplicateWindowSeconds:            3600,
			LossPercentageThreshold:           1.0,
			SilentFailureParamLimitThreshold:  50,
		},
		Batch: BatchConfig{
			DefaultChunkCap:       2000,
			MaxConcurrency:        10,
			RetryMaxAttempts:      3,
			RetryInitialBackoffMs: 50,
			RetryMaxBackoffMs:     2000,
		},
	}
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// RequestTimeout is the per-request hard timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Ingest.RequestTimeoutSeconds) * time.Second
}

// StoreTimeout is the per-store-operation timeout.
func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.Ingest.StoreTimeoutSeconds) * time.Second
}

// DuplicateWindow is how far back FindDuplicate looks for a matching
// (user, payload_hash) pair.
func (c Config) DuplicateWindow() time.Duration {
	return time.Duration(c.Ingest.DuplicateWindowSeconds) * time.Second
}

// ToBatchConfig translates the YAML-facing BatchConfig into the batch
// package's Config, filling in the per-variant parameter widths from
// batch.DefaultParamsPerRow so ChunkCapFor can derive the bound-parameter
// ceiling for every variant.
func (c Config) ToBatchConfig() batch.Config {
	caps := make(map[model.Variant]int, len(c.Batch.ChunkCaps))
	for k, v := range c.Batch.ChunkCaps {
		caps[model.Variant(k)] = v
	}
	return batch.Config{
		ChunkCaps:        caps,
		DefaultChunkCap:  c.Batch.DefaultChunkCap,
		ParamsPerRow:     batch.DefaultParamsPerRow(),
		DefaultParamsRow: 8,
		MaxConcurrency:   c.Batch.MaxConcurrency,
		MaxAttempts:      c.Batch.RetryMaxAttempts,
		InitialBackoff:   time.Duration(c.Batch.RetryInitialBackoffMs) * time.Millisecond,
		MaxBackoff:       time.Duration(c.Batch.RetryMaxBackoffMs) * time.Millisecond,
	}
}

// StatusbookDefaults returns the two configured detection thresholds a
// caller passes to statusbook.Decide.
func (c Config) StatusbookDefaults() (lossPct float64, silentParamLimit int) {
	return c.Ingest.LossPercentageThreshold, c.Ingest.SilentFailureParamLimitThreshold
}

// Load reads config from a YAML file, applies environment variable
// overrides, and validates the result — including aborting boot if a
// configured chunk cap would exceed the bound-parameter ceiling.
//
// Env vars use the prefix INGESTD_ and underscore-separated paths:
//
//	INGESTD_SERVER_HOST, INGESTD_SERVER_PORT,
//	INGESTD_DB_HOST, INGESTD_DB_PORT, INGESTD_DB_NAME,
//	INGESTD_DB_USER, INGESTD_DB_PASSWORD, INGESTD_DB_SSLMODE,
//	INGESTD_DB_POOL_MIN, INGESTD_DB_POOL_MAX,
//	INGESTD_MAX_PAYLOAD_BYTES, INGESTD_ASYNC_THRESHOLD_METRICS,
//	INGESTD_REQUEST_TIMEOUT_SECONDS, INGESTD_STORE_TIMEOUT_SECONDS,
//	INGESTD_DUPLICATE_WINDOW_SECONDS, INGESTD_LOSS_PERCENTAGE_THRESHOLD,
//	INGESTD_SILENT_FAILURE_PARAM_LIMIT_THRESHOLD,
//	INGESTD_BATCH_CHUNK_SIZE_<VARIANT> (e.g. INGESTD_BATCH_CHUNK_SIZE_ACTIVITY)
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INGESTD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("INGESTD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("INGESTD_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("INGESTD_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("INGESTD_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("INGESTD_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("INGESTD_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("INGESTD_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("INGESTD_DB_POOL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.PoolMin = int32(n)
		}
	}
	if v := os.Getenv("INGESTD_DB_POOL_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.PoolMax = int32(n)
		}
	}
	if v := os.Getenv("INGESTD_MAX_PAYLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Ingest.MaxPayloadBytes = n
		}
	}
	if v := os.Getenv("INGESTD_ASYNC_THRESHOLD_METRICS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.AsyncThresholdMetrics = n
		}
	}
	if v := os.Getenv("INGESTD_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.RequestTimeoutSeconds = n
		}
	}
	if v := os.Getenv("INGESTD_STORE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.StoreTimeoutSeconds = n
		}
	}
	if v := os.Getenv("INGESTD_DUPLICATE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.DuplicateWindowSeconds = n
		}
	}
	if v := os.Getenv("INGESTD_LOSS_PERCENTAGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ingest.LossPercentageThreshold = f
		}
	}
	if v := os.Getenv("INGESTD_SILENT_FAILURE_PARAM_LIMIT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.SilentFailureParamLimitThreshold = n
		}
	}
	for _, variant := range model.AllVariants() {
		key := "INGESTD_BATCH_CHUNK_SIZE_" + strings.ToUpper(string(variant))
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if cfg.Batch.ChunkCaps == nil {
					cfg.Batch.ChunkCaps = make(map[string]int)
				}
				cfg.Batch.ChunkCaps[string(variant)] = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.PoolMin > c.Database.PoolMax {
		return fmt.Errorf("database.pool_min (%d) cannot exceed database.pool_max (%d)", c.Database.PoolMin, c.Database.PoolMax)
	}
	if err := batch.ValidateChunkCaps(c.ToBatchConfig()); err != nil {
		return err
	}
	if c.Ingest.LossPercentageThreshold <= 0 {
		return fmt.Errorf("ingest.loss_percentage_threshold must be positive")
	}
	if c.Ingest.SilentFailureParamLimitThreshold <= 0 {
		return fmt.Errorf("ingest.silent_failure_param_limit_threshold must be positive")
	}
	return nil
}
