package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"questline/core"
	"questline/feed"
	"questline/router"
)

// ErrNoSession is returned when a user has no active session.
var ErrNoSession = errors.New("no active session")

// ManagerOptions tunes the sessions a Manager creates.
type ManagerOptions struct {
	FeedCapacity int
	InboxSize    int
	SyncRetries  uint64
	// SyncMaxElapsed caps the retry time of one profile save; zero keeps the default.
	SyncMaxElapsed time.Duration
	OnRouterDrop   func(reason string)
	OnSyncResult   func(core.Profile, error)
	DisableSync    bool
}

type entry struct {
	session *Session
	router  *router.Router
	done    chan struct{}
}

// Manager creates sessions at login and tears them down at logout.
// It replaces any process-wide singleton: callers hold the Manager explicitly.
type Manager struct {
	mu       sync.RWMutex
	sessions map[core.UserID]*entry
	store    ProfileStore
	progress Progression
	bus      *EventBus
	opts     ManagerOptions
	log      *slog.Logger
}

func NewManager(store ProfileStore, progress Progression, bus *EventBus, log *slog.Logger, opts ManagerOptions) *Manager {
	if store == nil || bus == nil {
		panic("NewManager requires non-nil store and bus")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions: make(map[core.UserID]*entry),
		store:    store,
		progress: progress,
		bus:      bus,
		opts:     opts,
		log:      log,
	}
}

// Bus exposes the event bus shared by all sessions.
func (m *Manager) Bus() *EventBus { return m.bus }

// Rules exposes the static game rules.
func (m *Manager) Rules() core.Rules { return m.progress.Rules() }

// Start fetches the profile and opens a session. An existing session is returned as is.
// Users unknown to the store start from an empty profile.
func (m *Manager) Start(ctx context.Context, user core.UserID) (*Session, error) {
	user, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	if s, ok := m.Get(user); ok {
		return s, nil
	}

	profile, err := m.store.GetProfile(ctx, user)
	switch {
	case errors.Is(err, core.ErrProfileNotFound):
		profile = core.Profile{UserID: user}
	case err != nil:
		return nil, fmt.Errorf("get profile for %s: %w", user, err)
	}
	profile.UserID = user

	m.mu.Lock()
	if e, ok := m.sessions[user]; ok {
		m.mu.Unlock()
		return e.session, nil
	}
	e := m.newEntry(profile)
	m.sessions[user] = e
	m.mu.Unlock()

	go func() {
		defer close(e.done)
		_ = e.router.Run(context.Background())
	}()

	st := e.session.State()
	m.log.Info("session started", "user_id", user, "xp", st.XP, "level", st.Level)
	m.bus.Publish(ctx, core.NewSessionEvent(core.EventSessionStarted, user))
	return e.session, nil
}

func (m *Manager) newEntry(profile core.Profile) *entry {
	logger := m.log.With("user_id", string(profile.UserID))
	syncer := NewProfileSync(nil)
	if !m.opts.DisableSync {
		syncOpts := []SyncOption{WithSyncLogger(logger), WithSyncResult(m.opts.OnSyncResult)}
		if m.opts.SyncRetries > 0 {
			syncOpts = append(syncOpts, WithSyncRetries(m.opts.SyncRetries))
		}
		if m.opts.SyncMaxElapsed > 0 {
			syncOpts = append(syncOpts, WithSyncMaxElapsed(m.opts.SyncMaxElapsed))
		}
		syncer = NewProfileSync(m.store, syncOpts...)
	}
	session := NewSession(m.progress, profile, m.bus,
		WithFeed(feed.New(feed.WithCapacity(m.opts.FeedCapacity))),
		WithProfileSync(syncer),
		WithLogger(m.log),
	)
	routerOpts := []router.Option{router.WithLogger(logger), router.WithDropHook(m.opts.OnRouterDrop)}
	if m.opts.InboxSize > 0 {
		routerOpts = append(routerOpts, router.WithInboxSize(m.opts.InboxSize))
	}
	return &entry{
		session: session,
		router:  router.New(session, routerOpts...),
		done:    make(chan struct{}),
	}
}

// Get returns the active session for user.
func (m *Manager) Get(user core.UserID) (*Session, bool) {
	user = key(user)
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[user]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Router returns the event router feeding the user's session.
func (m *Manager) Router(user core.UserID) (*router.Router, bool) {
	user = key(user)
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[user]
	if !ok {
		return nil, false
	}
	return e.router, true
}

// Refresh waits for the session's pending profile save, then re-reads the
// profile and reseeds the session counters. A failed save or read leaves local
// state untouched.
func (m *Manager) Refresh(ctx context.Context, user core.UserID) (*Session, error) {
	user = key(user)
	s, ok := m.Get(user)
	if !ok {
		return nil, ErrNoSession
	}
	_, err := s.Refresh(ctx, func(ctx context.Context) (core.Profile, error) {
		return m.store.GetProfile(ctx, user)
	})
	if err != nil {
		m.log.Warn("profile refresh failed, keeping local state", "user_id", user, "error", err)
		return s, fmt.Errorf("refresh profile for %s: %w", user, err)
	}
	return s, nil
}

// End tears down the user's session, stopping its router and flushing the profile.
func (m *Manager) End(ctx context.Context, user core.UserID) error {
	user = key(user)
	m.mu.Lock()
	e, ok := m.sessions[user]
	if ok {
		delete(m.sessions, user)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	e.router.Close()
	<-e.done
	e.session.Close()
	m.log.Info("session ended", "user_id", user)
	m.bus.Publish(ctx, core.NewSessionEvent(core.EventSessionEnded, user))
	return nil
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends every session.
func (m *Manager) Close(ctx context.Context) {
	m.mu.RLock()
	users := make([]core.UserID, 0, len(m.sessions))
	for u := range m.sessions {
		users = append(users, u)
	}
	m.mu.RUnlock()
	for _, u := range users {
		_ = m.End(ctx, u)
	}
}

func key(user core.UserID) core.UserID {
	if u, err := core.NormalizeUserID(user); err == nil {
		return u
	}
	return user
}
