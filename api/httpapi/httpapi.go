package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "questline/adapters/websocket"
	"questline/analytics"
	"questline/core"
	"questline/engine"
	"questline/realtime"
	"questline/router"
)

// maxPushBody bounds the payload accepted by the push webhook.
const maxPushBody = 64 << 10

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// HealthCheck probes the profile store; nil reports healthy.
	HealthCheck func(context.Context) error
	// Metrics, if set, is served at {prefix}/metrics.
	Metrics http.Handler
	// Engagement, if set, is summarized at {prefix}/stats.
	Engagement *analytics.Engagement
	Logger     *slog.Logger
}

// Sessions is the session lifecycle the API drives.
type Sessions interface {
	Start(ctx context.Context, user core.UserID) (*engine.Session, error)
	Refresh(ctx context.Context, user core.UserID) (*engine.Session, error)
	End(ctx context.Context, user core.UserID) error
	Get(user core.UserID) (*engine.Session, bool)
	Router(user core.UserID) (*router.Router, bool)
	Active() int
}

type api struct {
	sessions Sessions
	log      *slog.Logger
}

// NewMux builds an http.Handler exposing the progression read model, local actions,
// the push webhook and the WebSocket stream.
// Routes:
//   - POST   {prefix}/sessions/{user}
//   - DELETE {prefix}/sessions/{user}
//   - POST   {prefix}/sessions/{user}/refresh
//   - GET    {prefix}/users/{user}
//   - GET    {prefix}/users/{user}/notifications
//   - POST   {prefix}/users/{user}/notifications/read-all
//   - POST   {prefix}/users/{user}/notifications/{id}/read
//   - POST   {prefix}/users/{user}/xp?amount=50&source=quiz
//   - POST   {prefix}/users/{user}/coins?amount=10&source=shop
//   - POST   {prefix}/users/{user}/streak?continue=true
//   - POST   {prefix}/users/{user}/achievements/{id}
//   - POST   {prefix}/users/{user}/missions/{id}?xp=100&coins=20&title=Fractions
//   - POST   {prefix}/users/{user}/events/{name}
//   - GET    {prefix}/healthz
//   - GET    {prefix}/metrics
//   - GET    {prefix}/stats?day=2024-02-01
//   - WS     {prefix}/ws?user={user}
func NewMux(sessions Sessions, hub *realtime.Hub, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{sessions: sessions, log: logger}
	mux := http.NewServeMux()
	route := func(method, path string, h http.HandlerFunc) {
		mux.HandleFunc(method+" "+withPrefix(opts.PathPrefix, path), h)
	}

	// health
	route(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, sessions, opts.HealthCheck)
	})
	if opts.Metrics != nil {
		mux.Handle(http.MethodGet+" "+withPrefix(opts.PathPrefix, "/metrics"), opts.Metrics)
	}
	if opts.Engagement != nil {
		route(http.MethodGet, "/stats", engagementStats(opts.Engagement))
	}

	// WebSocket events
	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub, sessions, logger))
	}

	// Session lifecycle
	route(http.MethodPost, "/sessions/{user}", a.startSession)
	route(http.MethodDelete, "/sessions/{user}", a.endSession)
	route(http.MethodPost, "/sessions/{user}/refresh", a.refreshSession)

	// Read model
	route(http.MethodGet, "/users/{user}", a.snapshot)
	route(http.MethodGet, "/users/{user}/notifications", a.notifications)
	route(http.MethodPost, "/users/{user}/notifications/read-all", a.markAllRead)
	route(http.MethodPost, "/users/{user}/notifications/{id}/read", a.markRead)

	// Local actions
	route(http.MethodPost, "/users/{user}/xp", a.grantXP)
	route(http.MethodPost, "/users/{user}/coins", a.grantCoins)
	route(http.MethodPost, "/users/{user}/streak", a.advanceStreak)
	route(http.MethodPost, "/users/{user}/achievements/{id}", a.unlockAchievement)
	route(http.MethodPost, "/users/{user}/missions/{id}", a.completeMission)

	// Push webhook
	route(http.MethodPost, "/users/{user}/events/{name}", a.pushEvent)

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// engagementStats serves the activity summary for ?day=YYYY-MM-DD, default today (UTC).
func engagementStats(g *analytics.Engagement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		at := time.Now().UTC()
		if raw := r.URL.Query().Get("day"); raw != "" {
			day, err := time.Parse("2006-01-02", raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", "day must be YYYY-MM-DD", nil)
				return
			}
			at = day
		}
		writeJSON(w, g.Summary(at))
	}
}

func (a *api) userID(w http.ResponseWriter, r *http.Request) (core.UserID, bool) {
	user, err := core.NormalizeUserID(core.UserID(r.PathValue("user")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
		return "", false
	}
	return user, true
}

// session resolves the active session and its router, writing 404 when absent.
func (a *api) session(w http.ResponseWriter, r *http.Request) (*engine.Session, *router.Router, bool) {
	user, ok := a.userID(w, r)
	if !ok {
		return nil, nil, false
	}
	s, ok := a.sessions.Get(user)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found", "no active session for "+string(user), nil)
		return nil, nil, false
	}
	rt, ok := a.sessions.Router(user)
	if !ok {
		writeError(w, http.StatusNotFound, "session_not_found", "no active session for "+string(user), nil)
		return nil, nil, false
	}
	return s, rt, true
}

func (a *api) startSession(w http.ResponseWriter, r *http.Request) {
	user, ok := a.userID(w, r)
	if !ok {
		return
	}
	s, err := a.sessions.Start(r.Context(), user)
	if err != nil {
		a.log.Error("session start failed", "user_id", user, "error", err)
		writeError(w, http.StatusBadGateway, "profile_unavailable", err.Error(), nil)
		return
	}
	writeJSONStatus(w, http.StatusCreated, s.Snapshot())
}

func (a *api) endSession(w http.ResponseWriter, r *http.Request) {
	user, ok := a.userID(w, r)
	if !ok {
		return
	}
	if err := a.sessions.End(r.Context(), user); err != nil {
		writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) refreshSession(w http.ResponseWriter, r *http.Request) {
	user, ok := a.userID(w, r)
	if !ok {
		return
	}
	s, err := a.sessions.Refresh(r.Context(), user)
	if err != nil {
		if errors.Is(err, engine.ErrNoSession) {
			writeActionError(w, err)
			return
		}
		writeError(w, http.StatusBadGateway, "profile_unavailable", err.Error(), nil)
		return
	}
	writeJSON(w, s.Snapshot())
}

func (a *api) snapshot(w http.ResponseWriter, r *http.Request) {
	s, _, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.Snapshot())
}

func (a *api) notifications(w http.ResponseWriter, r *http.Request) {
	s, _, ok := a.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"notifications": s.Notifications(),
		"unread_count":  s.UnreadCount(),
	})
}

func (a *api) markRead(w http.ResponseWriter, r *http.Request) {
	s, _, ok := a.session(w, r)
	if !ok {
		return
	}
	// unknown ids are not an error
	found := s.MarkRead(r.PathValue("id"))
	writeJSON(w, map[string]any{"found": found, "unread_count": s.UnreadCount()})
}

func (a *api) markAllRead(w http.ResponseWriter, r *http.Request) {
	s, _, ok := a.session(w, r)
	if !ok {
		return
	}
	marked := s.MarkAllRead()
	writeJSON(w, map[string]any{"marked": marked, "unread_count": s.UnreadCount()})
}

func (a *api) grantXP(w http.ResponseWriter, r *http.Request) {
	_, rt, ok := a.session(w, r)
	if !ok {
		return
	}
	amount, ok := queryInt(w, r, "amount", true)
	if !ok {
		return
	}
	a.dispatch(w, r, rt, core.XPGained{Amount: amount, Source: r.URL.Query().Get("source")})
}

func (a *api) grantCoins(w http.ResponseWriter, r *http.Request) {
	_, rt, ok := a.session(w, r)
	if !ok {
		return
	}
	amount, ok := queryInt(w, r, "amount", true)
	if !ok {
		return
	}
	a.dispatch(w, r, rt, core.CoinsGranted{Amount: amount, Source: r.URL.Query().Get("source")})
}

func (a *api) advanceStreak(w http.ResponseWriter, r *http.Request) {
	_, rt, ok := a.session(w, r)
	if !ok {
		return
	}
	cont := true
	if raw := r.URL.Query().Get("continue"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "continue must be a boolean", nil)
			return
		}
		cont = v
	}
	a.dispatch(w, r, rt, core.StreakAdvanced{Continue: cont})
}

func (a *api) unlockAchievement(w http.ResponseWriter, r *http.Request) {
	_, rt, ok := a.session(w, r)
	if !ok {
		return
	}
	a.dispatch(w, r, rt, core.AchievementUnlocked{ID: r.PathValue("id")})
}

func (a *api) completeMission(w http.ResponseWriter, r *http.Request) {
	_, rt, ok := a.session(w, r)
	if !ok {
		return
	}
	xp, ok := queryInt(w, r, "xp", false)
	if !ok {
		return
	}
	coins, ok := queryInt(w, r, "coins", false)
	if !ok {
		return
	}
	a.dispatch(w, r, rt, core.MissionCompleted{
		MissionID:  r.PathValue("id"),
		Title:      r.URL.Query().Get("title"),
		XPReward:   xp,
		CoinReward: coins,
	})
}

func (a *api) pushEvent(w http.ResponseWriter, r *http.Request) {
	_, rt, ok := a.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_event", "unreadable body", nil)
		return
	}
	name := r.PathValue("name")
	switch err := rt.Deliver(name, body); {
	case err == nil:
		writeJSONStatus(w, http.StatusAccepted, map[string]any{"accepted": true})
	case errors.Is(err, router.ErrUnknownEvent):
		writeError(w, http.StatusBadRequest, "unknown_event", err.Error(), nil)
	case errors.Is(err, router.ErrMalformed):
		writeError(w, http.StatusBadRequest, "malformed_event", err.Error(), nil)
	case errors.Is(err, router.ErrInboxFull):
		writeError(w, http.StatusServiceUnavailable, "inbox_full", err.Error(), nil)
	default:
		writeActionError(w, err)
	}
}

func (a *api) dispatch(w http.ResponseWriter, r *http.Request, rt *router.Router, action core.Action) {
	out, err := rt.Dispatch(r.Context(), action)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, out)
}

func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrOverflow), errors.Is(err, router.ErrMalformed):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, engine.ErrNoSession), errors.Is(err, engine.ErrSessionClosed), errors.Is(err, router.ErrClosed):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, required bool) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" && !required {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", name+" must be an integer", nil)
		return 0, false
	}
	return v, true
}

// Helpers

// healthCheck verifies the profile store is reachable
func healthCheck(w http.ResponseWriter, r *http.Request, sessions Sessions, probe func(context.Context) error) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]any{
		"status":   "healthy",
		"sessions": sessions.Active(),
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	code := http.StatusOK
	if probe != nil {
		if err := probe(ctx); err != nil {
			code = http.StatusServiceUnavailable
			status["status"] = "unhealthy"
			status["checks"].(map[string]any)["storage"] = "failed"
		}
	}
	writeJSONStatus(w, code, status)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSONStatus(w, status, apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
