package core

import "time"

// NotificationKind classifies feed entries.
type NotificationKind string

const (
	KindXPGained        NotificationKind = "xp_gained"
	KindLevelUp         NotificationKind = "level_up"
	KindAchievement     NotificationKind = "achievement"
	KindMissionComplete NotificationKind = "mission_complete"
	KindStreakBonus     NotificationKind = "streak_bonus"
)

// Notification is a user-facing feed entry.
// ID and Timestamp are assigned by the feed when left empty.
type Notification struct {
	ID          string           `json:"id"`
	Kind        NotificationKind `json:"kind"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Timestamp   time.Time        `json:"timestamp"`
	Read        bool             `json:"read"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}
