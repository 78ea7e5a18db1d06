package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"questline/core"
	"questline/feed"
)

// ErrSessionClosed is returned by operations on a session after End.
var ErrSessionClosed = errors.New("session closed")

// Session is the single owner of one learner's progression state and feed.
// All transitions run under one lock so concurrent callers never lose updates;
// domain events are published and the profile store is notified after the lock
// is released.
type Session struct {
	mu       sync.Mutex
	user     core.UserID
	progress Progression
	state    core.State
	feed     *feed.Feed
	bus      *EventBus
	sync     *ProfileSync
	log      *slog.Logger
	closed   bool
	// rev counts local transitions; Refresh uses it to detect actions that
	// raced with the store read.
	rev uint64
}

// Snapshot is the read model handed to the presentation layer.
type Snapshot struct {
	State               core.State          `json:"state"`
	XPToNextLevel       int64               `json:"xp_to_next_level"`
	ProgressToNextLevel float64             `json:"progress_to_next_level"`
	MaxLevel            int64               `json:"max_level"`
	Notifications       []core.Notification `json:"notifications"`
	UnreadCount         int                 `json:"unread_count"`
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithFeed replaces the default 50-entry feed.
func WithFeed(f *feed.Feed) SessionOption {
	return func(s *Session) {
		if f != nil {
			s.feed = f
		}
	}
}

// WithProfileSync sets the background profile writer.
func WithProfileSync(p *ProfileSync) SessionOption { return func(s *Session) { s.sync = p } }

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSession seeds a session from a profile snapshot.
func NewSession(progress Progression, profile core.Profile, bus *EventBus, opts ...SessionOption) *Session {
	if bus == nil {
		panic("NewSession requires a non-nil bus")
	}
	s := &Session{
		user:     profile.UserID,
		progress: progress,
		state:    progress.NewState(profile),
		bus:      bus,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.feed == nil {
		s.feed = feed.New()
	}
	if s.sync == nil {
		s.sync = NewProfileSync(nil)
	}
	s.log = s.log.With("user_id", string(s.user))
	return s
}

func (s *Session) UserID() core.UserID { return s.user }

// Apply runs one canonical action as an atomic transition.
func (s *Session) Apply(ctx context.Context, a core.Action) (core.Outcome, error) {
	if a == nil {
		return core.Outcome{State: s.State()}, ErrNilAction
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.Outcome{}, ErrSessionClosed
	}
	prev := s.state
	out, err := s.progress.Apply(prev, a)
	if err != nil {
		s.mu.Unlock()
		s.log.Debug("action rejected", "action", a.Kind(), "error", err)
		return out, err
	}
	s.state = out.State
	out.Notifications = s.appendLocked(out.Notifications)
	if changed(prev, out) {
		s.rev++
		s.sync.Push(s.state.Profile())
	}
	s.mu.Unlock()

	s.publish(ctx, a, prev, out)
	return out, nil
}

func (s *Session) GrantXP(ctx context.Context, amount int64, source string) (core.Outcome, error) {
	return s.Apply(ctx, core.XPGained{Amount: amount, Source: source})
}

func (s *Session) GrantCoins(ctx context.Context, amount int64, source string) (core.Outcome, error) {
	return s.Apply(ctx, core.CoinsGranted{Amount: amount, Source: source})
}

func (s *Session) AdvanceStreak(ctx context.Context, cont bool) (core.Outcome, error) {
	return s.Apply(ctx, core.StreakAdvanced{Continue: cont})
}

func (s *Session) UnlockAchievement(ctx context.Context, id string) (core.Outcome, error) {
	return s.Apply(ctx, core.AchievementUnlocked{ID: id})
}

func (s *Session) CompleteMission(ctx context.Context, m core.MissionCompleted) (core.Outcome, error) {
	return s.Apply(ctx, m)
}

// Reseed replaces counters from a refreshed profile; the feed is preserved.
func (s *Session) Reseed(profile core.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.state = s.progress.Reseed(s.state, profile)
}

// Refresh reseeds the session from load once local progress has reached the
// store. A failed save or read keeps local state. If an action lands while load
// runs, local state is newer than the read and is kept as well.
func (s *Session) Refresh(ctx context.Context, load func(context.Context) (core.Profile, error)) (bool, error) {
	s.mu.Lock()
	rev := s.rev
	s.mu.Unlock()

	if err := s.sync.Flush(ctx); err != nil {
		return false, fmt.Errorf("flush pending profile: %w", err)
	}
	profile, err := load(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != rev {
		s.log.Debug("refresh skipped, local state moved on", "xp", s.state.XP)
		return false, nil
	}
	s.rev++
	s.state = s.progress.Reseed(s.state, profile)
	return true, nil
}

// Reset clears XP, level and streak.
func (s *Session) Reset(ctx context.Context) (core.Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.Outcome{}, ErrSessionClosed
	}
	out := s.progress.Reset(s.state)
	s.state = out.State
	s.rev++
	s.sync.Push(s.state.Profile())
	s.mu.Unlock()
	s.bus.Publish(ctx, core.NewStreakChanged(s.user, 0))
	return out, nil
}

func (s *Session) MarkRead(id string) bool { return s.feed.MarkRead(id) }

func (s *Session) MarkAllRead() int { return s.feed.MarkAllRead() }

func (s *Session) State() core.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) Notifications() []core.Notification { return s.feed.List() }

func (s *Session) UnreadCount() int { return s.feed.UnreadCount() }

// Snapshot returns the full read model in one consistent view of the state.
func (s *Session) Snapshot() Snapshot {
	st := s.State()
	levels := s.progress.Rules().Levels
	return Snapshot{
		State:               st,
		XPToNextLevel:       levels.XPToNextLevel(st.XP, st.Level),
		ProgressToNextLevel: levels.ProgressToNextLevel(st.XP, st.Level),
		MaxLevel:            levels.MaxLevel(),
		Notifications:       s.feed.List(),
		UnreadCount:         s.feed.UnreadCount(),
	}
}

// Close ends the session and flushes the pending profile snapshot.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.sync.Close()
}

func (s *Session) appendLocked(drafts []core.Notification) []core.Notification {
	stored := make([]core.Notification, 0, len(drafts))
	for _, n := range drafts {
		saved, evicted := s.feed.Append(n)
		if evicted > 0 {
			s.log.Debug("feed evicted oldest entries", "count", evicted)
		}
		stored = append(stored, saved)
	}
	return stored
}

func (s *Session) publish(ctx context.Context, a core.Action, prev core.State, out core.Outcome) {
	st := out.State
	if out.XPGranted > 0 {
		s.bus.Publish(ctx, core.NewXPGained(s.user, sourceOf(a), out.XPGranted, st.XP))
	}
	if out.LeveledUp {
		s.bus.Publish(ctx, core.NewLevelUp(s.user, out.PreviousLevel, st.Level))
	}
	if out.CoinsGranted > 0 {
		s.bus.Publish(ctx, core.NewCoinsGranted(s.user, sourceOf(a), out.CoinsGranted, st.Coins))
	}
	if st.Streak != prev.Streak {
		s.bus.Publish(ctx, core.NewStreakChanged(s.user, st.Streak))
	}
	switch act := a.(type) {
	case core.AchievementUnlocked:
		if out.Found && !out.AlreadyUnlocked {
			s.bus.Publish(ctx, core.NewAchievementUnlocked(s.user, act.ID))
		}
	case core.MissionCompleted:
		s.bus.Publish(ctx, core.NewMissionCompleted(s.user, act.MissionID, st.Missions.Total))
	}
	for _, n := range out.Notifications {
		s.bus.Publish(ctx, core.NewNotificationAdded(s.user, n))
	}
}

func changed(prev core.State, out core.Outcome) bool {
	st := out.State
	return st.XP != prev.XP || st.Coins != prev.Coins || st.Streak != prev.Streak || st.Level != prev.Level
}

func sourceOf(a core.Action) string {
	switch act := a.(type) {
	case core.XPGained:
		return act.Source
	case core.CoinsGranted:
		return act.Source
	case core.StreakAdvanced:
		return core.SourceStreakBonus
	case core.AchievementUnlocked:
		return core.SourceAchievement
	case core.MissionCompleted:
		return core.SourceMission
	}
	return ""
}
