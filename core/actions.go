package core

// ActionKind names a canonical engine input.
type ActionKind string

const (
	ActionXPGained            ActionKind = "xp_gained"
	ActionAchievementUnlocked ActionKind = "achievement_unlocked"
	ActionCoinsGranted        ActionKind = "coins_granted"
	ActionStreakAdvanced      ActionKind = "streak_advanced"
	ActionMissionCompleted    ActionKind = "mission_completed"
)

// Action is the closed set of inputs accepted by the progression engine.
// Both local UI calls and pushed transport events are normalized into one of these.
type Action interface {
	Kind() ActionKind
}

// XPGained grants experience from a labelled source.
type XPGained struct {
	Amount int64  `json:"amount"`
	Source string `json:"source,omitempty"`
}

// AchievementUnlocked unlocks a catalog achievement by id.
type AchievementUnlocked struct {
	ID string `json:"id"`
}

// CoinsGranted adds spendable currency.
type CoinsGranted struct {
	Amount int64  `json:"amount"`
	Source string `json:"source,omitempty"`
}

// StreakAdvanced continues or breaks the daily streak.
type StreakAdvanced struct {
	Continue bool `json:"continue"`
}

// MissionCompleted records a finished mission and its rewards.
type MissionCompleted struct {
	MissionID  string `json:"mission_id"`
	Title      string `json:"title,omitempty"`
	XPReward   int64  `json:"xp_reward"`
	CoinReward int64  `json:"coin_reward"`
}

func (XPGained) Kind() ActionKind            { return ActionXPGained }
func (AchievementUnlocked) Kind() ActionKind { return ActionAchievementUnlocked }
func (CoinsGranted) Kind() ActionKind        { return ActionCoinsGranted }
func (StreakAdvanced) Kind() ActionKind      { return ActionStreakAdvanced }
func (MissionCompleted) Kind() ActionKind    { return ActionMissionCompleted }

// Outcome is the result of applying one action: the new state plus derived facts.
type Outcome struct {
	State         State `json:"state"`
	PreviousLevel int64 `json:"previous_level"`
	LeveledUp     bool  `json:"leveled_up"`
	LevelsGained  int64 `json:"levels_gained"`
	XPGranted     int64 `json:"xp_granted"`
	CoinsGranted  int64 `json:"coins_granted"`
	StreakBonusXP int64 `json:"streak_bonus_xp,omitempty"`
	// Found is false when an achievement id is not in the catalog.
	Found           bool           `json:"found"`
	AlreadyUnlocked bool           `json:"already_unlocked"`
	Notifications   []Notification `json:"notifications,omitempty"`
}
