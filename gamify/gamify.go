package gamify

import (
	"log/slog"
	"time"

	"questline/adapters/memory"
	"questline/analytics"
	"questline/core"
	"questline/engine"
	"questline/integrations/webhook"
	"questline/realtime"
)

// Option configures the session manager builder.
type Option func(*config)

type config struct {
	store   engine.ProfileStore
	mode    engine.DispatchMode
	rules   core.Rules
	hub     *realtime.Hub
	metrics *analytics.Metrics
	hooks   []analytics.Hook
	logger  *slog.Logger
	clock   func() time.Time
	manager engine.ManagerOptions
}

// WithStore sets the profile store.
func WithStore(s engine.ProfileStore) Option { return func(c *config) { c.store = s } }

// WithRules replaces the stock game rules.
func WithRules(r core.Rules) Option { return func(c *config) { c.rules = r } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithMetrics feeds engine events, router drops and profile sync results to m.
func WithMetrics(m *analytics.Metrics) Option { return func(c *config) { c.metrics = m } }

// WithHooks attaches extra analytics hooks to the bus.
func WithHooks(h ...analytics.Hook) Option { return func(c *config) { c.hooks = append(c.hooks, h...) } }

// WithWebhook posts engine events through sink.
func WithWebhook(sink *webhook.Sink) Option {
	return func(c *config) {
		if sink != nil {
			c.hooks = append(c.hooks, sink)
		}
	}
}

// WithLogger sets the logger shared by sessions and routers.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithClock overrides the time source of the progression rules.
func WithClock(now func() time.Time) Option { return func(c *config) { c.clock = now } }

// WithFeedCapacity overrides the per-session notification cap.
func WithFeedCapacity(n int) Option { return func(c *config) { c.manager.FeedCapacity = n } }

// WithInboxSize overrides the per-session push inbox bound.
func WithInboxSize(n int) Option { return func(c *config) { c.manager.InboxSize = n } }

// WithSyncRetries bounds profile store write retries.
func WithSyncRetries(n uint64) Option { return func(c *config) { c.manager.SyncRetries = n } }

// WithSyncMaxElapsed caps the time spent retrying one profile write.
func WithSyncMaxElapsed(d time.Duration) Option {
	return func(c *config) { c.manager.SyncMaxElapsed = d }
}

// New builds a configured session manager. If not provided, defaults are used:
//   - store: in-memory
//   - rules: core.DefaultRules
//   - dispatch: async
func New(opts ...Option) *engine.Manager {
	cfg := &config{mode: engine.DispatchAsync, rules: core.DefaultRules()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = memory.New()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	bus := engine.NewEventBus(cfg.mode)
	if cfg.hub != nil {
		cfg.hub.Attach(bus)
	}
	if cfg.metrics != nil {
		analytics.Attach(bus, cfg.metrics)
		cfg.manager.OnRouterDrop = cfg.metrics.RouterDropped
		cfg.manager.OnSyncResult = cfg.metrics.ProfileSynced
	}
	if len(cfg.hooks) > 0 {
		analytics.Attach(bus, analytics.NewBridge(cfg.hooks...))
	}
	progress := engine.NewProgression(cfg.rules).WithClock(cfg.clock)
	return engine.NewManager(cfg.store, progress, bus, cfg.logger, cfg.manager)
}
