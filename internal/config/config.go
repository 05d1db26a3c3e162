// Package config loads engine configuration from an optional yaml file
// with environment variable overrides. Environment always wins, so a
// deployment can ship one file and tune per instance.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omarpiose00/NeuronVault-sub003/internal/analyzer"
	"github.com/omarpiose00/NeuronVault-sub003/internal/cache"
	"github.com/omarpiose00/NeuronVault-sub003/internal/coordinator"
	"github.com/omarpiose00/NeuronVault-sub003/internal/engine"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/ledger"
	"github.com/omarpiose00/NeuronVault-sub003/internal/meta"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/selector"
	"github.com/omarpiose00/NeuronVault-sub003/internal/synthesis"
)

// ModelConfig describes one upstream model endpoint.
type ModelConfig struct {
	ID           string                          `yaml:"id"`
	Endpoint     string                          `yaml:"endpoint"`
	APIKey       string                          `yaml:"api_key"`
	Capabilities map[models.TaskCategory]float64 `yaml:"capabilities"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "redis", "sqlite".
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisPrefix   string `yaml:"redis_prefix"`
	SQLitePath    string `yaml:"sqlite_path"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config is the full runtime configuration.
type Config struct {
	LogLevel     string        `yaml:"log_level"`
	ArbiterModel string        `yaml:"arbiter_model"`
	Server       ServerConfig  `yaml:"server"`
	Store        StoreConfig   `yaml:"store"`
	Models       []ModelConfig `yaml:"models"`

	Analyzer    analyzer.Config    `yaml:"analyzer"`
	Selector    selector.Config    `yaml:"selector"`
	Coordinator coordinator.Config `yaml:"coordinator"`
	Synthesis   synthesis.Config   `yaml:"synthesis"`
	Ledger      ledger.Config      `yaml:"ledger"`
	Cache       cache.Config       `yaml:"cache"`
	Events      events.Config      `yaml:"events"`
	Meta        meta.Config        `yaml:"meta"`
	Engine      engine.Config      `yaml:"engine"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8090",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "ensemble:",
			SQLitePath:  "ensemble.db",
		},
		Analyzer:    analyzer.DefaultConfig(),
		Selector:    selector.DefaultConfig(),
		Coordinator: coordinator.DefaultConfig(),
		Synthesis:   synthesis.DefaultConfig(),
		Ledger:      ledger.DefaultConfig(),
		Cache:       cache.DefaultConfig(),
		Events:      events.DefaultConfig(),
		Meta:        meta.DefaultConfig(),
		Engine:      engine.DefaultConfig(),
	}
}

// Load builds the configuration: defaults, then the yaml file at path if
// it exists, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file is fine; env and defaults carry it.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("ENSEMBLE_LOG_LEVEL", &c.LogLevel)
	envString("ENSEMBLE_ARBITER_MODEL", &c.ArbiterModel)
	envString("ENSEMBLE_HTTP_ADDR", &c.Server.Addr)
	envDuration("ENSEMBLE_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	envString("ENSEMBLE_STORE_BACKEND", &c.Store.Backend)
	envString("ENSEMBLE_REDIS_ADDR", &c.Store.RedisAddr)
	envString("ENSEMBLE_REDIS_PASSWORD", &c.Store.RedisPassword)
	envString("ENSEMBLE_REDIS_PREFIX", &c.Store.RedisPrefix)
	envString("ENSEMBLE_SQLITE_PATH", &c.Store.SQLitePath)

	envDuration("ENSEMBLE_TIMEOUT_BUDGET", &c.Selector.TimeoutBudget)
	envDuration("ENSEMBLE_PER_CALL_TIMEOUT", &c.Selector.PerCallTimeout)
	envFloat("ENSEMBLE_EARLY_COMPLETION", &c.Selector.EarlyCompletion)

	envDuration("ENSEMBLE_CACHE_TTL", &c.Cache.TTL)
	envInt("ENSEMBLE_CACHE_CAPACITY", &c.Cache.Capacity)
	envBool("ENSEMBLE_CACHE_ENABLED", &c.Engine.CacheEnabled)

	envFloat("ENSEMBLE_LEDGER_ALPHA", &c.Ledger.Alpha)
	envFloat("ENSEMBLE_AUTO_APPLY_THRESHOLD", &c.Meta.AutoApplyThreshold)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
