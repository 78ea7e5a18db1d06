package core

import (
	"errors"
	"fmt"
	"strings"
)

// Messaging holds the copy used for level-up and achievement notifications.
type Messaging struct {
	LevelUp     string `json:"level_up" yaml:"level_up"`
	Achievement string `json:"achievement" yaml:"achievement"`
}

// Rules is the static configuration consumed by the progression engine.
// It is never mutated after construction.
type Rules struct {
	Levels LevelTable
	// StreakMultipliers maps a streak length to its XP multiplier; absent means 1.
	StreakMultipliers map[int64]float64
	BaseXPReward      int64
	LevelUpCoinBonus  int64
	Catalog           Catalog
	Messaging         Messaging
}

// DefaultRules mirrors the stock game configuration shipped with the client.
func DefaultRules() Rules {
	catalog, _ := NewCatalog([]Achievement{
		{ID: "first_steps", Title: "First Steps", Description: "Complete your first mission", Icon: "footprints", XPReward: 50, Rarity: RarityCommon},
		{ID: "quiz_master", Title: "Quiz Master", Description: "Score 100% on a quiz", Icon: "brain", XPReward: 150, Rarity: RarityRare},
		{ID: "streak_champion", Title: "Streak Champion", Description: "Maintain a 7-day streak", Icon: "flame", XPReward: 300, Rarity: RarityEpic},
		{ID: "level_legend", Title: "Level Legend", Description: "Reach the maximum level", Icon: "crown", XPReward: 1000, Rarity: RarityLegendary},
	})
	return Rules{
		Levels:            MustLevelTable(100, 250, 500, 1000, 1750, 2750, 4000, 5500, 7500),
		StreakMultipliers: map[int64]float64{3: 1.5, 7: 2, 14: 2.5, 30: 3},
		BaseXPReward:      100,
		LevelUpCoinBonus:  50,
		Catalog:           catalog,
		Messaging: Messaging{
			LevelUp:     "You're getting stronger! Keep going!",
			Achievement: "Awesome work! You earned a new achievement!",
		},
	}
}

// StreakMultiplier returns the multiplier for a streak length; lookup failure is 1.
func (r Rules) StreakMultiplier(streak int64) float64 {
	if m, ok := r.StreakMultipliers[streak]; ok {
		return m
	}
	return 1
}

// Validate checks the rule set for internal consistency.
func (r Rules) Validate() error {
	var errs []string
	if len(r.Levels.thresholds) == 0 {
		errs = append(errs, "level table is empty")
	}
	if r.BaseXPReward < 0 {
		errs = append(errs, "base_xp_reward cannot be negative")
	}
	if r.LevelUpCoinBonus < 0 {
		errs = append(errs, "level_up_coin_bonus cannot be negative")
	}
	for streak, m := range r.StreakMultipliers {
		if streak <= 0 {
			errs = append(errs, fmt.Sprintf("streak multiplier key %d must be positive", streak))
		}
		if m < 1 {
			errs = append(errs, fmt.Sprintf("streak multiplier for %d must be >= 1", streak))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
