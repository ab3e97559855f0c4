// Package config loads the engine's YAML configuration: storage, cache,
// warm-up, and risk-policy settings, each validated with a fill-in-defaults
// idiom rather than hard-failing on a zero value.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig configures the historical month-slice store.
type StorageConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// Validate fills in defaults for any zero-valued field, matching the
// database library's Validate-in-place convention.
func (c *StorageConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("config: storage dsn is required")
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return nil
}

// CacheConfig configures the FX-rate cache.
type CacheConfig struct {
	Addr string        `yaml:"addr"`
	DB   int           `yaml:"db"`
	TTL  time.Duration `yaml:"ttl"`
}

func (c *CacheConfig) Validate() error {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.TTL <= 0 {
		c.TTL = 15 * time.Minute
	}
	return nil
}

// WarmupConfig controls how much history the engine loads before Run.
type WarmupConfig struct {
	Bars int `yaml:"bars"`
}

func (c *WarmupConfig) Validate() error {
	if c.Bars <= 0 {
		c.Bars = 20
	}
	return nil
}

// RiskConfig mirrors the portfolio-level guardrail thresholds.
type RiskConfig struct {
	MaxPositionSize  float64 `yaml:"max_position_size"`
	MaxPositions     int     `yaml:"max_positions"`
	MaxDrawdown      float64 `yaml:"max_drawdown"`
	MinAccountSize   float64 `yaml:"min_account_size"`
	MaxRiskPerTrade  float64 `yaml:"max_risk_per_trade"`
}

func (c *RiskConfig) Validate() error {
	if c.MaxPositionSize <= 0 {
		c.MaxPositionSize = 50_000
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = 10
	}
	if c.MaxDrawdown <= 0 {
		c.MaxDrawdown = 0.20
	}
	if c.MinAccountSize <= 0 {
		c.MinAccountSize = 10_000
	}
	if c.MaxRiskPerTrade <= 0 {
		c.MaxRiskPerTrade = 0.02
	}
	return nil
}

// Config is the engine's top-level configuration document.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Warmup  WarmupConfig  `yaml:"warmup"`
	Risk    RiskConfig    `yaml:"risk"`
}

// Load reads and validates a YAML config document from path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Cache.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Warmup.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Risk.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
