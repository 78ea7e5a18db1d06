package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"questline/adapters/sqlx"
)

// problems collects validation messages; err joins them with "; ".
type problems []string

func (p *problems) add(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// oneOf records a problem when value is not among allowed.
func (p *problems) oneOf(field, value string, allowed ...string) {
	if !slices.Contains(allowed, value) {
		p.add("%s must be one of: %s", field, strings.Join(allowed, ", "))
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return errors.New(strings.Join(p, "; "))
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var p problems
	if c.Environment == "" {
		p.add("environment cannot be empty")
	}
	sections := []struct {
		name  string
		check func() error
	}{
		{"server", c.Server.Validate},
		{"storage", c.Storage.Validate},
		{"game", c.Game.Validate},
		{"webhook", c.Webhook.Validate},
		{"logging", c.Logging.Validate},
		{"metrics", c.Metrics.Validate},
		{"security", c.Security.Validate},
	}
	for _, s := range sections {
		if err := s.check(); err != nil {
			p.add("%s config: %v", s.name, err)
		}
	}
	return p.err()
}

func (s ServerConfig) Validate() error {
	var p problems
	if s.Address == "" {
		p.add("address cannot be empty")
	}
	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"read_timeout", s.ReadTimeout},
		{"write_timeout", s.WriteTimeout},
		{"idle_timeout", s.IdleTimeout},
		{"read_header_timeout", s.ReadHeaderTimeout},
		{"shutdown_timeout", s.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.d <= 0 {
			p.add("%s must be positive", t.name)
		}
	}
	return p.err()
}

func (s StorageConfig) Validate() error {
	var p problems
	p.oneOf("adapter", s.Adapter, "memory", "redis", "sql", "file")
	switch s.Adapter {
	case "file":
		if s.File.Path == "" {
			p.add("file config: path cannot be empty")
		}
	case "redis":
		if s.Redis.Addr == "" {
			p.add("redis config: addr cannot be empty")
		}
	case "sql":
		p.oneOf("sql config: driver", string(s.SQL.Driver), string(sqlx.DriverPostgres), string(sqlx.DriverMySQL))
		if s.SQL.DSN == "" {
			p.add("sql config: dsn cannot be empty")
		}
	}
	return p.err()
}

func (g GameConfig) Validate() error {
	var p problems
	if g.FeedCapacity <= 0 {
		p.add("feed_capacity must be positive")
	}
	if g.InboxSize <= 0 {
		p.add("inbox_size must be positive")
	}
	if g.SyncMaxElapsed < 0 {
		p.add("sync_max_elapsed cannot be negative")
	}
	p.oneOf("dispatch_mode", g.DispatchMode, "sync", "async")
	return p.err()
}

func (w WebhookConfig) Validate() error {
	var p problems
	for i, endpoint := range w.Endpoints {
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			p.add("endpoints[%d] must be an absolute http(s) URL", i)
		}
	}
	if len(w.Endpoints) > 0 && w.Timeout <= 0 {
		p.add("timeout must be positive when endpoints are set")
	}
	return p.err()
}

func (l LoggingConfig) Validate() error {
	var p problems
	p.oneOf("level", l.Level, "debug", "info", "warn", "error")
	p.oneOf("format", l.Format, "json", "text")
	p.oneOf("output", l.Output, "stdout", "stderr")
	return p.err()
}

func (m MetricsConfig) Validate() error {
	var p problems
	if m.Enabled && m.Path == "" {
		p.add("path cannot be empty when metrics are enabled")
	}
	return p.err()
}

func (s SecurityConfig) Validate() error {
	var p problems
	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			p.add("rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			p.add("rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			p.add("api_keys[%d] is empty", i)
		}
	}
	return p.err()
}
