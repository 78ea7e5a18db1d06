package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"questline/adapters/jsonfile"
	mem "questline/adapters/memory"
	redisAdapter "questline/adapters/redis"
	sqlxAdapter "questline/adapters/sqlx"
	"questline/analytics"
	"questline/api/httpapi"
	"questline/config"
	"questline/core"
	"questline/engine"
	"questline/gamify"
	"questline/integrations/webhook"
	"questline/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Hub           *realtime.Hub
	Metrics       *analytics.Metrics
	Engagement    *analytics.Engagement
	Store         engine.ProfileStore
	Manager       *engine.Manager
	Handler       http.Handler
	Server        *http.Server
	MetricsServer *MetricsServer
}

// MetricsServer serves /metrics on its own listener when configured.
type MetricsServer struct {
	*http.Server
}

// pinger is implemented by stores that can probe their backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// configFileEnv names an optional JSON config file layered under env overrides.
const configFileEnv = "QUESTLINE_CONFIG_FILE"

func provideConfig(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv(configFileEnv); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	config.LoadSecrets(ctx, config.NewEnvironmentSecretStore(), cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideRules(cfg *config.Config) (core.Rules, error) {
	return config.LoadRules(cfg.Game.RulesPath)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideMetrics(cfg *config.Config) *analytics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return analytics.NewMetrics(cfg.Metrics.Namespace, analytics.WithSystemCollectors(cfg.Metrics.CollectSystem))
}

func provideStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.ProfileStore, func(), error) {
	return setupStorage(ctx, cfg, logger)
}

func provideWebhook(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Webhook.Endpoints) == 0 {
		return nil
	}
	types := make([]core.EventType, 0, len(cfg.Webhook.EventTypes))
	for _, t := range cfg.Webhook.EventTypes {
		types = append(types, core.EventType(t))
	}
	return webhook.New(cfg.Webhook.Endpoints,
		webhook.WithClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
		webhook.WithRetries(cfg.Webhook.Retries),
		webhook.WithEventTypes(types...),
		webhook.WithLogger(logger.With("component", "webhook")),
	)
}

func provideEngagement() *analytics.Engagement {
	return analytics.NewEngagement()
}

func provideManager(
	cfg *config.Config,
	store engine.ProfileStore,
	rules core.Rules,
	hub *realtime.Hub,
	metrics *analytics.Metrics,
	engagement *analytics.Engagement,
	sink *webhook.Sink,
	logger *slog.Logger,
) (*engine.Manager, func()) {
	mode := engine.DispatchAsync
	if cfg.Game.DispatchMode == "sync" {
		mode = engine.DispatchSync
	}
	m := gamify.New(
		gamify.WithStore(store),
		gamify.WithRules(rules),
		gamify.WithDispatchMode(mode),
		gamify.WithRealtime(hub),
		gamify.WithMetrics(metrics),
		gamify.WithWebhook(sink),
		gamify.WithHooks(engagement),
		gamify.WithLogger(logger),
		gamify.WithFeedCapacity(cfg.Game.FeedCapacity),
		gamify.WithInboxSize(cfg.Game.InboxSize),
		gamify.WithSyncRetries(cfg.Game.SyncRetries),
		gamify.WithSyncMaxElapsed(cfg.Game.SyncMaxElapsed),
	)
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		m.Close(ctx)
		m.Bus().Close()
	}
	return m, cleanup
}

func provideHandler(
	cfg *config.Config,
	m *engine.Manager,
	hub *realtime.Hub,
	metrics *analytics.Metrics,
	engagement *analytics.Engagement,
	store engine.ProfileStore,
	logger *slog.Logger,
) http.Handler {
	opts := httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Engagement:       engagement,
		Logger:           logger,
	}
	if p, ok := store.(pinger); ok {
		opts.HealthCheck = p.Ping
	}
	if metrics != nil && metricsOnAPI(cfg) {
		opts.Metrics = metrics.Handler()
	}
	return httpapi.NewMux(m, hub, opts)
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config, metrics *analytics.Metrics) *MetricsServer {
	if metrics == nil || metricsOnAPI(cfg) {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	return &MetricsServer{Server: &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// metricsOnAPI reports whether /metrics shares the API listener.
func metricsOnAPI(cfg *config.Config) bool {
	return cfg.Metrics.Address == "" || cfg.Metrics.Address == cfg.Server.Address
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the profile store selected by configuration.
// The returned cleanup releases backend connections.
func setupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.ProfileStore, func(), error) {
	noop := func() {}
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), noop, nil
	case "redis":
		s, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing redis store", "error", err)
			}
		}, nil
	case "sql":
		s, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing sql store", "error", err)
			}
		}, nil
	case "file":
		s, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open profile file %s: %w", cfg.Storage.File.Path, err)
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
