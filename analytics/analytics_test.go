package analytics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questline/core"
	"questline/engine"
)

func TestMetricsCountsEvents(t *testing.T) {
	m := NewMetrics("questline")
	m.OnEvent(core.NewXPGained("u", "quiz", 40, 40))
	m.OnEvent(core.NewXPGained("u", "", 10, 50))
	m.OnEvent(core.NewCoinsGranted("u", core.SourceLevelUpBonus, 50, 50))
	m.OnEvent(core.NewLevelUp("u", 1, 2))
	m.OnEvent(core.NewAchievementUnlocked("u", "quiz_master"))
	m.OnEvent(core.NewMissionCompleted("u", "m1", 1))
	m.OnEvent(core.NewNotificationAdded("u", core.Notification{Kind: core.KindLevelUp}))
	m.OnEvent(core.NewSessionEvent(core.EventSessionStarted, "u"))
	m.OnEvent(core.NewSessionEvent(core.EventSessionStarted, "v"))
	m.OnEvent(core.NewSessionEvent(core.EventSessionEnded, "u"))

	assert.Equal(t, 40.0, testutil.ToFloat64(m.xpGranted.WithLabelValues("quiz")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.xpGranted.WithLabelValues(core.SourceUnknown)))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.coinsGranted.WithLabelValues(core.SourceLevelUpBonus)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.levelUps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.achievements.WithLabelValues("quiz_master")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.missions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues(string(core.KindLevelUp))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestMetricsHooks(t *testing.T) {
	m := NewMetrics("questline")
	m.RouterDropped("malformed")
	m.RouterDropped("malformed")
	m.ProfileSynced(core.Profile{}, nil)
	m.ProfileSynced(core.Profile{}, assert.AnError)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.routerDrops.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.profileSyncs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.profileSyncs.WithLabelValues("error")))
}

func TestMetricsHandlerExposesSeries(t *testing.T) {
	m := NewMetrics("questline")
	m.OnEvent(core.NewLevelUp("u", 1, 3))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "questline_level_ups_total 1"), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsWithoutSystemCollectors(t *testing.T) {
	m := NewMetrics("questline", WithSystemCollectors(false))
	m.OnEvent(core.NewLevelUp("u", 1, 2))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "questline_level_ups_total 1")
	assert.NotContains(t, rec.Body.String(), "go_goroutines")
}

func TestAttachFeedsBridge(t *testing.T) {
	bus := engine.NewEventBus(engine.DispatchSync)
	m := NewMetrics("questline")
	eng := NewEngagement()
	detach := Attach(bus, NewBridge(m, eng))

	bus.Publish(context.Background(), core.NewXPGained("alice", "quiz", 25, 25))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.xpGranted.WithLabelValues("quiz")))
	assert.Equal(t, 1, eng.DailyActive(DayKey(time.Now())))

	detach()
	bus.Publish(context.Background(), core.NewXPGained("alice", "quiz", 25, 50))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.xpGranted.WithLabelValues("quiz")))
}

func TestEngagement(t *testing.T) {
	g := NewEngagement()
	at := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	ev := func(typ core.EventType, user core.UserID, delta int64) core.Event {
		return core.Event{Type: typ, Time: at, UserID: user, Delta: delta}
	}

	g.OnEvent(ev(core.EventXPGained, "a", 10))
	g.OnEvent(ev(core.EventXPGained, "a", 15))
	g.OnEvent(ev(core.EventStreakChanged, "b", 0))
	g.OnEvent(ev(core.EventSessionStarted, "c", 0))

	require.Equal(t, 2, g.DailyActive("2024-01-03"))
	assert.Equal(t, 2, g.WeeklyActive("2024-W01"))
	assert.Equal(t, 2, g.MonthlyActive("2024-01"))
	assert.Equal(t, int64(25), g.XPByDay("2024-01-03"))
	assert.Zero(t, g.DailyActive("2024-01-04"))
}

func TestEngagementSummary(t *testing.T) {
	g := NewEngagement()
	day := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	at := func(e core.Event, ts time.Time) core.Event { e.Time = ts; return e }

	g.OnEvent(at(core.NewXPGained("a", "quiz", 30, 30), day))
	g.OnEvent(at(core.NewXPGained("b", "quiz", 20, 20), day))
	g.OnEvent(at(core.NewXPGained("a", "quiz", 5, 35), day.AddDate(0, 0, 1)))
	g.OnEvent(at(core.NewSessionEvent(core.EventSessionStarted, "c"), day))

	sum := g.Summary(day)
	assert.Equal(t, "2024-02-01", sum.Day)
	assert.Equal(t, "2024-W05", sum.Week)
	assert.Equal(t, "2024-02", sum.Month)
	assert.Equal(t, 2, sum.DailyActive)
	assert.Equal(t, 2, sum.WeeklyActive)
	assert.Equal(t, 2, sum.MonthlyActive)
	assert.Equal(t, int64(50), sum.XPGranted)

	next := g.Summary(day.AddDate(0, 0, 1))
	assert.Equal(t, 1, next.DailyActive)
	assert.Equal(t, int64(5), next.XPGranted)
}
