package core

import (
	"errors"
	"fmt"
	"sort"
)

// LevelTable maps cumulative XP to levels.
// Thresholds[i] is the XP required to reach level i+2; level 1 needs no XP.
type LevelTable struct {
	thresholds []int64
}

// NewLevelTable validates that thresholds are positive and strictly ascending.
func NewLevelTable(thresholds []int64) (LevelTable, error) {
	if len(thresholds) == 0 {
		return LevelTable{}, errors.New("level table needs at least one threshold")
	}
	if thresholds[0] <= 0 {
		return LevelTable{}, fmt.Errorf("first threshold must be positive, got %d", thresholds[0])
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return LevelTable{}, fmt.Errorf("thresholds must be strictly ascending at index %d", i)
		}
	}
	cp := append([]int64(nil), thresholds...)
	return LevelTable{thresholds: cp}, nil
}

// MustLevelTable is NewLevelTable for static tables; it panics on invalid input.
func MustLevelTable(thresholds ...int64) LevelTable {
	t, err := NewLevelTable(thresholds)
	if err != nil {
		panic(err)
	}
	return t
}

// Thresholds returns a copy of the configured thresholds.
func (t LevelTable) Thresholds() []int64 { return append([]int64(nil), t.thresholds...) }

// MaxLevel is the level reached at or beyond the last threshold.
func (t LevelTable) MaxLevel() int64 { return int64(len(t.thresholds)) + 1 }

// LevelFor returns the level for the given cumulative XP.
func (t LevelTable) LevelFor(xp int64) int64 {
	// number of thresholds <= xp
	n := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i] > xp })
	return int64(n) + 1
}

// floor returns the XP at which level starts (0 for level 1).
func (t LevelTable) floor(level int64) int64 {
	if level <= 1 {
		return 0
	}
	return t.thresholds[level-2]
}

// XPToNextLevel returns the XP still missing for level+1, or 0 at max level.
func (t LevelTable) XPToNextLevel(xp, level int64) int64 {
	if level < 1 {
		level = 1
	}
	if level >= t.MaxLevel() {
		return 0
	}
	missing := t.thresholds[level-1] - xp
	if missing < 0 {
		return 0
	}
	return missing
}

// ProgressToNextLevel reports progress inside the current level as a percentage in [0,100].
func (t LevelTable) ProgressToNextLevel(xp, level int64) float64 {
	if level < 1 {
		level = 1
	}
	if level >= t.MaxLevel() {
		return 100
	}
	lo := t.floor(level)
	hi := t.thresholds[level-1]
	pct := float64(xp-lo) / float64(hi-lo) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
