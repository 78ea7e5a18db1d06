package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a learner; one session exists per user at a time.
type UserID string

// Reward sources with special meaning to the progression rules.
const (
	SourceLevelUpBonus  = "level_up_bonus"
	SourceStreakBonus   = "streak_bonus"
	SourceAchievement   = "achievement"
	SourceMission       = "mission"
	SourceMissionReward = "mission_reward"
	SourceUnknown       = "unknown"
)

var (
	// ErrInvalidAmount is returned for non-positive XP or coin amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrOverflow is returned when an addition would overflow int64.
	ErrOverflow = errors.New("integer overflow")
	// ErrProfileNotFound is returned by profile stores for users they have never seen.
	ErrProfileNotFound = errors.New("profile not found")
)

// Profile is the snapshot exchanged with the external profile store.
type Profile struct {
	UserID  UserID    `json:"user_id"`
	XP      int64     `json:"xp"`
	Level   int64     `json:"level"`
	Coins   int64     `json:"coins"`
	Streak  int64     `json:"streak"`
	Updated time.Time `json:"updated"`
}

// MissionCounters tracks completed missions over rolling periods.
type MissionCounters struct {
	Daily  int64 `json:"daily"`
	Weekly int64 `json:"weekly"`
	Total  int64 `json:"total"`
}

// State is the progression state of one session.
// Level is derived from XP and is kept in sync by the engine.
type State struct {
	UserID       UserID                 `json:"user_id"`
	XP           int64                  `json:"xp"`
	Level        int64                  `json:"level"`
	Coins        int64                  `json:"coins"`
	Streak       int64                  `json:"streak"`
	Missions     MissionCounters        `json:"missions"`
	Achievements map[string]Achievement `json:"achievements"`
	Updated      time.Time              `json:"updated"`
}

// Clone returns a deep copy so transitions never alias the prior state.
func (s State) Clone() State {
	cp := s
	cp.Achievements = make(map[string]Achievement, len(s.Achievements))
	for k, v := range s.Achievements {
		if v.UnlockedAt != nil {
			t := *v.UnlockedAt
			v.UnlockedAt = &t
		}
		cp.Achievements[k] = v
	}
	return cp
}

// Profile projects the state onto the profile store snapshot.
func (s State) Profile() Profile {
	return Profile{UserID: s.UserID, XP: s.XP, Level: s.Level, Coins: s.Coins, Streak: s.Streak, Updated: s.Updated}
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}

// ValidateAchievementID ensures non-empty id with simple charset check.
func ValidateAchievementID(id string) error {
	s := strings.TrimSpace(id)
	if s == "" {
		return errors.New("empty achievement id")
	}
	// simple check: alnum, dash, underscore
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid achievement id")
	}
	return nil
}
