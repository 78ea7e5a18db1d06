package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"questline/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the questline HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// StartSession opens (or returns the existing) session for a user.
func (c *Client) StartSession(ctx context.Context, userID string) (Snapshot, error) {
	var snap Snapshot
	err := c.userCall(ctx, http.MethodPost, "/sessions/", userID, "", nil, &snap)
	return snap, err
}

// EndSession closes the user's session, flushing progress to storage.
func (c *Client) EndSession(ctx context.Context, userID string) error {
	return c.userCall(ctx, http.MethodDelete, "/sessions/", userID, "", nil, nil)
}

// RefreshSession re-reads the stored profile into the live session.
func (c *Client) RefreshSession(ctx context.Context, userID string) (Snapshot, error) {
	var snap Snapshot
	err := c.userCall(ctx, http.MethodPost, "/sessions/", userID, "/refresh", nil, &snap)
	return snap, err
}

// GetUser fetches the current progression snapshot for a user.
func (c *Client) GetUser(ctx context.Context, userID string) (Snapshot, error) {
	var snap Snapshot
	err := c.userCall(ctx, http.MethodGet, "/users/", userID, "", nil, &snap)
	return snap, err
}

// Notifications lists the user's feed, newest first.
func (c *Client) Notifications(ctx context.Context, userID string) (NotificationList, error) {
	var list NotificationList
	err := c.userCall(ctx, http.MethodGet, "/users/", userID, "/notifications", nil, &list)
	return list, err
}

// MarkRead marks one notification read. Unknown ids report found=false.
func (c *Client) MarkRead(ctx context.Context, userID, notificationID string) (bool, error) {
	var body struct {
		Found bool `json:"found"`
	}
	suffix := "/notifications/" + url.PathEscape(notificationID) + "/read"
	err := c.userCall(ctx, http.MethodPost, "/users/", userID, suffix, nil, &body)
	return body.Found, err
}

// MarkAllRead marks the whole feed read and returns how many entries changed.
func (c *Client) MarkAllRead(ctx context.Context, userID string) (int, error) {
	var body struct {
		Marked int `json:"marked"`
	}
	err := c.userCall(ctx, http.MethodPost, "/users/", userID, "/notifications/read-all", nil, &body)
	return body.Marked, err
}

// GrantXP awards experience; an empty source is recorded as "unknown".
func (c *Client) GrantXP(ctx context.Context, userID string, amount int64, source string) (core.Outcome, error) {
	q := url.Values{"amount": {strconv.FormatInt(amount, 10)}}
	if source != "" {
		q.Set("source", source)
	}
	return c.outcome(ctx, userID, "/xp", q)
}

// GrantCoins awards coins.
func (c *Client) GrantCoins(ctx context.Context, userID string, amount int64, source string) (core.Outcome, error) {
	q := url.Values{"amount": {strconv.FormatInt(amount, 10)}}
	if source != "" {
		q.Set("source", source)
	}
	return c.outcome(ctx, userID, "/coins", q)
}

// AdvanceStreak continues or breaks the user's daily streak.
func (c *Client) AdvanceStreak(ctx context.Context, userID string, cont bool) (core.Outcome, error) {
	return c.outcome(ctx, userID, "/streak", url.Values{"continue": {strconv.FormatBool(cont)}})
}

// UnlockAchievement unlocks a catalog achievement. Repeats are reported via AlreadyUnlocked.
func (c *Client) UnlockAchievement(ctx context.Context, userID, achievementID string) (core.Outcome, error) {
	return c.outcome(ctx, userID, "/achievements/"+url.PathEscape(achievementID), nil)
}

// CompleteMission records a finished mission and its rewards.
func (c *Client) CompleteMission(ctx context.Context, userID string, m core.MissionCompleted) (core.Outcome, error) {
	q := url.Values{
		"xp":    {strconv.FormatInt(m.XPReward, 10)},
		"coins": {strconv.FormatInt(m.CoinReward, 10)},
	}
	if m.Title != "" {
		q.Set("title", m.Title)
	}
	return c.outcome(ctx, userID, "/missions/"+url.PathEscape(m.MissionID), q)
}

// PushEvent delivers a named push event (e.g. "xp:gained") to the user's router.
// The server applies it asynchronously.
func (c *Client) PushEvent(ctx context.Context, userID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.userCall(ctx, http.MethodPost, "/users/", userID, "/events/"+url.PathEscape(event), body, nil)
}

// Health probes /healthz and returns status + storage check.
// An unhealthy server still yields a decoded status alongside the error.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil, &hs)
	return hs, err
}

func (c *Client) outcome(ctx context.Context, userID, suffix string, q url.Values) (core.Outcome, error) {
	if len(q) > 0 {
		suffix += "?" + q.Encode()
	}
	var out core.Outcome
	err := c.userCall(ctx, http.MethodPost, "/users/", userID, suffix, nil, &out)
	return out, err
}

func (c *Client) userCall(ctx context.Context, method, prefix, userID, suffix string, body []byte, target any) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUserID
	}
	return c.do(ctx, method, c.baseURL+prefix+url.PathEscape(userID)+suffix, body, target)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, target any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

// Stream is a live WebSocket connection bound to one user.
type Stream struct {
	conn    *websocket.Conn
	events  chan core.Event
	rejects chan Rejection
}

// Events yields domain events; it closes when the connection drops.
func (s *Stream) Events() <-chan core.Event { return s.events }

// Rejections yields inbound frames the server refused.
func (s *Stream) Rejections() <-chan Rejection { return s.rejects }

// Send pushes an event frame over the socket.
func (s *Stream) Send(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return s.conn.WriteJSON(Frame{Event: event, Payload: raw})
}

// Close shuts the connection down.
func (s *Stream) Close() error { return s.conn.Close() }

// Connect opens the WebSocket stream for userID; an empty userID receives every event.
// The stream closes when ctx is done or the connection drops.
func (c *Client) Connect(ctx context.Context, userID string) (*Stream, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if userID = strings.TrimSpace(userID); userID != "" {
		target += "?user=" + url.QueryEscape(userID)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	s := &Stream{
		conn:    conn,
		events:  make(chan core.Event, 32),
		rejects: make(chan Rejection, 8),
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(s.events)
		defer close(s.rejects)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var probe struct {
				Type  string `json:"type"`
				Error string `json:"error"`
			}
			if err := json.Unmarshal(data, &probe); err != nil {
				continue
			}
			if probe.Type == "error" {
				var rej Rejection
				_ = json.Unmarshal(data, &rej)
				select {
				case s.rejects <- rej:
				default:
				}
				continue
			}
			var evt core.Event
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}
			select {
			case s.events <- evt:
			default:
				// drop if consumer is slow
			}
		}
	}()
	return s, nil
}

// SubscribeEvents connects without a user and emits every core.Event.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan core.Event, error) {
	s, err := c.Connect(ctx, "")
	if err != nil {
		return nil, err
	}
	return s.Events(), nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
