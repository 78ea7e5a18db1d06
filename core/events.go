package core

import "time"

// EventType enumerates outbound domain events published after a transition.
type EventType string

const (
	EventXPGained            EventType = "xp_gained"
	EventLevelUp             EventType = "level_up"
	EventCoinsGranted        EventType = "coins_granted"
	EventStreakChanged       EventType = "streak_changed"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventMissionCompleted    EventType = "mission_completed"
	EventNotificationAdded   EventType = "notification_added"
	EventSessionStarted      EventType = "session_started"
	EventSessionEnded        EventType = "session_ended"
)

// AllEventTypes lists every outbound event type, for bridges that forward everything.
var AllEventTypes = []EventType{
	EventXPGained, EventLevelUp, EventCoinsGranted, EventStreakChanged,
	EventAchievementUnlocked, EventMissionCompleted, EventNotificationAdded,
	EventSessionStarted, EventSessionEnded,
}

// Event represents an immutable domain event.
type Event struct {
	Type         EventType      `json:"type"`
	Time         time.Time      `json:"time"`
	UserID       UserID         `json:"user_id"`
	Source       string         `json:"source,omitempty"`
	Delta        int64          `json:"delta,omitempty"`
	Total        int64          `json:"total,omitempty"`
	Level        int64          `json:"level,omitempty"`
	Achievement  string         `json:"achievement,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewXPGained(user UserID, source string, delta, total int64) Event {
	return Event{Type: EventXPGained, Time: time.Now().UTC(), UserID: user, Source: source, Delta: delta, Total: total}
}

func NewLevelUp(user UserID, from, to int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: to, Delta: to - from}
}

func NewCoinsGranted(user UserID, source string, delta, total int64) Event {
	return Event{Type: EventCoinsGranted, Time: time.Now().UTC(), UserID: user, Source: source, Delta: delta, Total: total}
}

func NewStreakChanged(user UserID, streak int64) Event {
	return Event{Type: EventStreakChanged, Time: time.Now().UTC(), UserID: user, Total: streak}
}

func NewAchievementUnlocked(user UserID, id string) Event {
	return Event{Type: EventAchievementUnlocked, Time: time.Now().UTC(), UserID: user, Achievement: id}
}

func NewMissionCompleted(user UserID, missionID string, total int64) Event {
	return Event{Type: EventMissionCompleted, Time: time.Now().UTC(), UserID: user, Total: total,
		Metadata: map[string]any{"mission_id": missionID}}
}

func NewNotificationAdded(user UserID, n Notification) Event {
	return Event{Type: EventNotificationAdded, Time: time.Now().UTC(), UserID: user, Notification: &n}
}

func NewSessionEvent(typ EventType, user UserID) Event {
	return Event{Type: typ, Time: time.Now().UTC(), UserID: user}
}
