package analytics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"questline/core"
)

// Metrics exports progression activity as Prometheus series on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	xpGranted      *prometheus.CounterVec
	coinsGranted   *prometheus.CounterVec
	levelUps       prometheus.Counter
	levelReached   prometheus.Histogram
	achievements   *prometheus.CounterVec
	missions       prometheus.Counter
	notifications  *prometheus.CounterVec
	activeSessions prometheus.Gauge
	routerDrops    *prometheus.CounterVec
	profileSyncs   *prometheus.CounterVec
}

// MetricsOption tunes NewMetrics.
type MetricsOption func(*metricsOptions)

type metricsOptions struct{ system bool }

// WithSystemCollectors toggles the Go runtime and process collectors; they are on by default.
func WithSystemCollectors(on bool) MetricsOption {
	return func(o *metricsOptions) { o.system = on }
}

// NewMetrics registers the progression collectors on a private registry.
func NewMetrics(namespace string, opts ...MetricsOption) *Metrics {
	o := metricsOptions{system: true}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		xpGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "xp_granted_total", Help: "Experience points granted, by source.",
		}, []string{"source"}),
		coinsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "coins_granted_total", Help: "Coins granted, by source.",
		}, []string{"source"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "level_ups_total", Help: "Level-up transitions.",
		}),
		levelReached: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "level_reached", Help: "Level reached on each level-up.",
			Buckets: prometheus.LinearBuckets(2, 1, 10),
		}),
		achievements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "achievements_unlocked_total", Help: "Achievement unlocks, by id.",
		}, []string{"achievement"}),
		missions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "missions_completed_total", Help: "Completed missions.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total", Help: "Feed notifications, by kind.",
		}, []string{"kind"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions", Help: "Sessions currently open.",
		}),
		routerDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "router_dropped_total", Help: "Push events dropped by the router, by reason.",
		}, []string{"reason"}),
		profileSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "profile_syncs_total", Help: "Profile store writes, by result.",
		}, []string{"result"}),
	}
	if o.system {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m.registry.MustRegister(
		m.xpGranted, m.coinsGranted, m.levelUps, m.levelReached, m.achievements,
		m.missions, m.notifications, m.activeSessions, m.routerDrops, m.profileSyncs,
	)
	return m
}

// OnEvent implements Hook.
func (m *Metrics) OnEvent(e core.Event) {
	switch e.Type {
	case core.EventXPGained:
		m.xpGranted.WithLabelValues(sourceLabel(e.Source)).Add(float64(e.Delta))
	case core.EventCoinsGranted:
		m.coinsGranted.WithLabelValues(sourceLabel(e.Source)).Add(float64(e.Delta))
	case core.EventLevelUp:
		m.levelUps.Inc()
		m.levelReached.Observe(float64(e.Level))
	case core.EventAchievementUnlocked:
		m.achievements.WithLabelValues(e.Achievement).Inc()
	case core.EventMissionCompleted:
		m.missions.Inc()
	case core.EventNotificationAdded:
		if e.Notification != nil {
			m.notifications.WithLabelValues(string(e.Notification.Kind)).Inc()
		}
	case core.EventSessionStarted:
		m.activeSessions.Inc()
	case core.EventSessionEnded:
		m.activeSessions.Dec()
	}
}

// RouterDropped counts a push event dropped for reason; pass it to router.WithDropHook.
func (m *Metrics) RouterDropped(reason string) {
	m.routerDrops.WithLabelValues(reason).Inc()
}

// ProfileSynced counts a settled profile write; pass it to engine.WithSyncResult.
func (m *Metrics) ProfileSynced(_ core.Profile, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.profileSyncs.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Subscriber is the part of the event bus analytics attaches to.
type Subscriber interface {
	SubscribeAll(fn func(context.Context, core.Event)) func()
}

// Attach feeds every bus event to hook and returns the detach func.
func Attach(bus Subscriber, hook Hook) func() {
	return bus.SubscribeAll(func(_ context.Context, e core.Event) { hook.OnEvent(e) })
}

func sourceLabel(s string) string {
	if s == "" {
		return core.SourceUnknown
	}
	return s
}
