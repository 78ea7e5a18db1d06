package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestAddSafe(t *testing.T) {
	if v, err := AddSafe(10, 5); err != nil || v != 15 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := AddSafe(math.MaxInt64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestNormalizeUserID(t *testing.T) {
	id, err := NormalizeUserID(" Alice ")
	if err != nil || id != "alice" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizeUserID("   "); err == nil {
		t.Fatalf("expected empty error")
	}
}

func TestValidateAchievementID(t *testing.T) {
	if err := ValidateAchievementID("first_steps-1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := ValidateAchievementID("bad id"); err == nil {
		t.Fatalf("expected invalid id err")
	}
}

func TestStateCloneIsDeep(t *testing.T) {
	now := time.Now()
	s := State{Achievements: map[string]Achievement{"a": {ID: "a", Unlocked: true, UnlockedAt: &now}}}
	cp := s.Clone()
	a := cp.Achievements["a"]
	*a.UnlockedAt = now.Add(time.Hour)
	cp.Achievements["b"] = Achievement{ID: "b"}
	if len(s.Achievements) != 1 {
		t.Fatal("clone shares achievements map")
	}
	if !s.Achievements["a"].UnlockedAt.Equal(now) {
		t.Fatal("clone shares unlock timestamp")
	}
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog([]Achievement{{ID: "x", XPReward: 10}})
	if err != nil {
		t.Fatal(err)
	}
	if a, ok := c.Lookup("x"); !ok || a.Rarity != RarityCommon {
		t.Fatalf("lookup: %+v %v", a, ok)
	}
	if _, err := NewCatalog([]Achievement{{ID: "x"}, {ID: "x"}}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := NewCatalog([]Achievement{{ID: "x", Rarity: "mythic"}}); err == nil {
		t.Fatal("expected rarity error")
	}
}

func TestStreakMultiplierDefaultsToOne(t *testing.T) {
	r := Rules{StreakMultipliers: map[int64]float64{3: 1.5}}
	if r.StreakMultiplier(3) != 1.5 {
		t.Fatal("expected configured multiplier")
	}
	if r.StreakMultiplier(4) != 1 {
		t.Fatal("missing multiplier must be 1")
	}
}

func TestDefaultRulesValid(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
	bad := DefaultRules()
	bad.StreakMultipliers = map[int64]float64{0: 0.5}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
