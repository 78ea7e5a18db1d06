package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"questline/core"
)

// Snapshot mirrors the server's session read model.
type Snapshot struct {
	State               core.State          `json:"state"`
	XPToNextLevel       int64               `json:"xp_to_next_level"`
	ProgressToNextLevel float64             `json:"progress_to_next_level"`
	MaxLevel            int64               `json:"max_level"`
	Notifications       []core.Notification `json:"notifications"`
	UnreadCount         int                 `json:"unread_count"`
}

// NotificationList is the /notifications response.
type NotificationList struct {
	Notifications []core.Notification `json:"notifications"`
	UnreadCount   int                 `json:"unread_count"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status   string         `json:"status"`
	Sessions int            `json:"sessions"`
	Checks   map[string]any `json:"checks"`
}

// Frame is an outbound push event sent over the WebSocket.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Rejection reports a frame the server refused.
type Rejection struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsSessionNotFound reports whether err is a 404 for a missing session.
func IsSessionNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "session_not_found"
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if target != nil {
			// some endpoints (healthz) carry a useful body alongside a failure status
			_ = json.Unmarshal(body, target)
		}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
