package analytics

import (
	"fmt"
	"sync"
	"time"

	"questline/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Engagement tracks active learners per day, ISO week and month, plus daily XP.
// Session lifecycle events do not count as activity.
type Engagement struct {
	mu      sync.RWMutex
	daily   map[string]map[core.UserID]struct{}
	weekly  map[string]map[core.UserID]struct{}
	monthly map[string]map[core.UserID]struct{}
	xpByDay map[string]int64
}

func NewEngagement() *Engagement {
	return &Engagement{
		daily:   make(map[string]map[core.UserID]struct{}),
		weekly:  make(map[string]map[core.UserID]struct{}),
		monthly: make(map[string]map[core.UserID]struct{}),
		xpByDay: make(map[string]int64),
	}
}

func (g *Engagement) OnEvent(e core.Event) {
	if e.Type == core.EventSessionStarted || e.Type == core.EventSessionEnded {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	day := DayKey(e.Time)
	mark(g.daily, day, e.UserID)
	mark(g.weekly, WeekKey(e.Time), e.UserID)
	mark(g.monthly, MonthKey(e.Time), e.UserID)
	if e.Type == core.EventXPGained && e.Delta > 0 {
		g.xpByDay[day] += e.Delta
	}
}

// DailyActive returns the number of distinct learners active on day (YYYY-MM-DD).
func (g *Engagement) DailyActive(day string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.daily[day])
}

// WeeklyActive returns the number of distinct learners active in week (YYYY-Www).
func (g *Engagement) WeeklyActive(week string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.weekly[week])
}

// MonthlyActive returns the number of distinct learners active in month (YYYY-MM).
func (g *Engagement) MonthlyActive(month string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.monthly[month])
}

// XPByDay returns the total XP granted on day.
func (g *Engagement) XPByDay(day string) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.xpByDay[day]
}

// EngagementSummary is the activity around one point in time.
type EngagementSummary struct {
	Day           string `json:"day"`
	Week          string `json:"week"`
	Month         string `json:"month"`
	DailyActive   int    `json:"daily_active"`
	WeeklyActive  int    `json:"weekly_active"`
	MonthlyActive int    `json:"monthly_active"`
	XPGranted     int64  `json:"xp_granted"`
}

// Summary reports the day, ISO week and month containing at.
func (g *Engagement) Summary(at time.Time) EngagementSummary {
	day, week, month := DayKey(at), WeekKey(at), MonthKey(at)
	g.mu.RLock()
	defer g.mu.RUnlock()
	return EngagementSummary{
		Day:           day,
		Week:          week,
		Month:         month,
		DailyActive:   len(g.daily[day]),
		WeeklyActive:  len(g.weekly[week]),
		MonthlyActive: len(g.monthly[month]),
		XPGranted:     g.xpByDay[day],
	}
}

func mark(m map[string]map[core.UserID]struct{}, key string, user core.UserID) {
	set := m[key]
	if set == nil {
		set = make(map[core.UserID]struct{})
		m[key] = set
	}
	set[user] = struct{}{}
}

func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }
