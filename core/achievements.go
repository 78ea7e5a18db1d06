package core

import (
	"fmt"
	"time"
)

// Rarity grades an achievement.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Valid reports whether r is one of the known rarities.
func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

// Achievement is a catalog entry plus its per-session unlock state.
type Achievement struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	Icon        string     `json:"icon,omitempty" yaml:"icon"`
	XPReward    int64      `json:"xp_reward" yaml:"xp_reward"`
	Rarity      Rarity     `json:"rarity" yaml:"rarity"`
	Unlocked    bool       `json:"unlocked" yaml:"-"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty" yaml:"-"`
}

// Catalog is the static, read-only set of achievements keyed by id.
type Catalog map[string]Achievement

// NewCatalog indexes entries by id, rejecting duplicates and invalid entries.
func NewCatalog(entries []Achievement) (Catalog, error) {
	c := make(Catalog, len(entries))
	for _, a := range entries {
		if err := ValidateAchievementID(a.ID); err != nil {
			return nil, fmt.Errorf("achievement %q: %w", a.ID, err)
		}
		if _, dup := c[a.ID]; dup {
			return nil, fmt.Errorf("duplicate achievement id %q", a.ID)
		}
		if a.XPReward < 0 {
			return nil, fmt.Errorf("achievement %q: negative xp reward", a.ID)
		}
		if a.Rarity == "" {
			a.Rarity = RarityCommon
		}
		if !a.Rarity.Valid() {
			return nil, fmt.Errorf("achievement %q: unknown rarity %q", a.ID, a.Rarity)
		}
		a.Unlocked = false
		a.UnlockedAt = nil
		c[a.ID] = a
	}
	return c, nil
}

// Lookup returns the catalog entry for id.
func (c Catalog) Lookup(id string) (Achievement, bool) {
	a, ok := c[id]
	return a, ok
}
