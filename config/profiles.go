package config

import (
	"fmt"
	"time"
)

// LoadProfile returns the base configuration for a named deployment profile.
// Callers layer env overrides and validation on top.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
		cfg.Game.DispatchMode = "sync"

	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Server.Address = ":0"
		cfg.Logging.Level = "warn"
		cfg.Game.SyncRetries = 1
		cfg.Game.DispatchMode = "sync"

	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Storage.Adapter = "redis"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true

	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Server.CORSOrigin = ""
		cfg.Server.ShutdownTimeout = 45 * time.Second
		cfg.Storage.Adapter = "redis"
		cfg.Logging.Level = "info"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
		cfg.Security.RateLimit.RequestsPerMinute = 120
		cfg.Security.RateLimit.BurstSize = 20
		cfg.Game.SyncRetries = 5

	default:
		return nil, fmt.Errorf("unknown config profile %q", name)
	}

	return cfg, nil
}
