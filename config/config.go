package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"questline/adapters/redis"
	"questline/adapters/sqlx"
)

// Environment names a deployment environment; each has a matching profile.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config is the server configuration. Every field can be overridden by a
// QUESTLINE_* variable built from the envPrefix chain, e.g. QUESTLINE_GAME_INBOX_SIZE.
type Config struct {
	Environment Environment `json:"environment" env:"ENV"`
	Profile     string      `json:"profile" env:"PROFILE"`

	Server   ServerConfig   `json:"server" envPrefix:"SERVER_"`
	Storage  StorageConfig  `json:"storage" envPrefix:"STORAGE_"`
	Game     GameConfig     `json:"game" envPrefix:"GAME_"`
	Webhook  WebhookConfig  `json:"webhook" envPrefix:"WEBHOOK_"`
	Logging  LoggingConfig  `json:"logging" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `json:"metrics" envPrefix:"METRICS_"`
	Security SecurityConfig `json:"security" envPrefix:"SECURITY_"`
}

type ServerConfig struct {
	Address           string        `json:"address" env:"ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects the profile store: memory, redis, sql or file.
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty" envPrefix:"REDIS_"`
	SQL     sqlx.Config  `json:"sql,omitempty" envPrefix:"SQL_"`
	File    FileConfig   `json:"file,omitempty" envPrefix:"FILE_"`
}

type FileConfig struct {
	Path string `json:"path" env:"PATH"`
}

// GameConfig tunes progression and the per-session resources.
type GameConfig struct {
	// RulesPath points at a JSON or YAML rules file; empty uses the built-in rules.
	RulesPath    string `json:"rules_path" env:"RULES_PATH"`
	FeedCapacity int    `json:"feed_capacity" env:"FEED_CAPACITY"`
	InboxSize    int    `json:"inbox_size" env:"INBOX_SIZE"`
	SyncRetries  uint64 `json:"sync_retries" env:"SYNC_RETRIES"`

	// SyncMaxElapsed caps the time spent retrying one profile save.
	SyncMaxElapsed time.Duration `json:"sync_max_elapsed" env:"SYNC_MAX_ELAPSED"`
	DispatchMode   string        `json:"dispatch_mode" env:"DISPATCH_MODE"`
}

type WebhookConfig struct {
	Endpoints  []string      `json:"endpoints,omitempty" env:"ENDPOINTS"`
	EventTypes []string      `json:"event_types,omitempty" env:"EVENT_TYPES"`
	Retries    uint64        `json:"retries" env:"RETRIES"`
	Timeout    time.Duration `json:"timeout" env:"TIMEOUT"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"LEVEL"`
	Format string `json:"format" env:"FORMAT"`
	Output string `json:"output" env:"OUTPUT"`

	// Attributes are attached to every record; env form is "k=v,k2=v2".
	Attributes map[string]string `json:"attributes,omitempty" env:"ATTRIBUTES" envKeyValSeparator:"="`
}

// MetricsConfig controls the Prometheus endpoint. An empty Address, or one equal
// to the server address, serves metrics on the API listener.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled" env:"ENABLED"`
	Address       string `json:"address" env:"ADDR"`
	Path          string `json:"path" env:"PATH"`
	Namespace     string `json:"namespace" env:"NAMESPACE"`
	CollectSystem bool   `json:"collect_system" env:"COLLECT_SYSTEM"`
}

type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty" envPrefix:"RATE_LIMIT_"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"API_KEYS"`
}

type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"RPM"`
	BurstSize         int           `json:"burst_size" env:"BURST"`
	CleanupInterval   time.Duration `json:"cleanup_interval" env:"CLEANUP"`
}

// DefaultConfig is the development setup: in-memory profiles, async event
// delivery and no metrics listener.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(),
			File:    FileConfig{Path: "./data/questline.json"},
		},
		Game: GameConfig{
			FeedCapacity:   50,
			InboxSize:      64,
			SyncRetries:    3,
			SyncMaxElapsed: 30 * time.Second,
			DispatchMode:   "async",
		},
		Webhook: WebhookConfig{Retries: 2, Timeout: 5 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{
			Address:       ":9090",
			Path:          "/metrics",
			Namespace:     "questline",
			CollectSystem: true,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
			APIKeys: []string{},
		},
	}
}

// Load builds the config from the environment alone. QUESTLINE_PROFILE picks the
// base profile that env variables then override.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if name := os.Getenv(EnvPrefix + "PROFILE"); name != "" {
		p, err := LoadProfile(name)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	return finish(cfg)
}

// LoadFromFile reads a JSON config file over the defaults; env variables still win.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - path validated above
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validateConfigPath(path string) error {
	switch {
	case path == "":
		return errors.New("config file path cannot be empty")
	case strings.Contains(path, ".."):
		return errors.New("config file path cannot traverse parent directories")
	case !strings.EqualFold(filepath.Ext(path), ".json"):
		return errors.New("config file must have .json extension")
	}
	if _, err := os.Stat(filepath.Clean(path)); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// String renders the config as JSON with credentials replaced.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.redacted(), "", "  ")
	return string(data)
}

func (c *Config) redacted() Config {
	const mask = "[REDACTED]"
	cfg := *c
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = mask
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = mask
	}
	keys := make([]string, len(cfg.Security.APIKeys))
	for i := range keys {
		keys[i] = mask
	}
	cfg.Security.APIKeys = keys
	return cfg
}
