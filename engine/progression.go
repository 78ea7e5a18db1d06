package engine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"questline/core"
)

// ErrNilAction is returned when no action is supplied.
var ErrNilAction = errors.New("nil action")

// Progression holds the pure state-transition rules. Every method takes the prior
// state and returns a new one; the input state is never modified, and on error the
// returned outcome carries the unchanged prior state.
type Progression struct {
	rules core.Rules
	now   func() time.Time
}

func NewProgression(rules core.Rules) Progression {
	return Progression{rules: rules, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy using now as its time source.
func (p Progression) WithClock(now func() time.Time) Progression {
	if now != nil {
		p.now = now
	}
	return p
}

func (p Progression) Rules() core.Rules { return p.rules }

// NewState seeds a session state from a profile snapshot. Level is recomputed from XP
// and every catalog achievement starts locked.
func (p Progression) NewState(profile core.Profile) core.State {
	st := core.State{
		UserID:       profile.UserID,
		XP:           max(profile.XP, 0),
		Coins:        max(profile.Coins, 0),
		Streak:       max(profile.Streak, 0),
		Achievements: make(map[string]core.Achievement, len(p.rules.Catalog)),
		Updated:      p.now(),
	}
	st.Level = p.rules.Levels.LevelFor(st.XP)
	for id, a := range p.rules.Catalog {
		st.Achievements[id] = a
	}
	return st
}

// Reseed replaces the counters from a refreshed profile, keeping unlocked achievements
// and mission counters that the profile does not carry.
func (p Progression) Reseed(s core.State, profile core.Profile) core.State {
	next := s.Clone()
	next.XP = max(profile.XP, 0)
	next.Coins = max(profile.Coins, 0)
	next.Streak = max(profile.Streak, 0)
	next.Level = p.rules.Levels.LevelFor(next.XP)
	next.Updated = p.now()
	return next
}

// Apply dispatches a canonical action to its transition.
func (p Progression) Apply(s core.State, a core.Action) (core.Outcome, error) {
	switch act := a.(type) {
	case core.XPGained:
		return p.GrantXP(s, act.Amount, act.Source)
	case core.CoinsGranted:
		return p.GrantCoins(s, act.Amount, act.Source)
	case core.StreakAdvanced:
		return p.AdvanceStreak(s, act.Continue)
	case core.AchievementUnlocked:
		return p.UnlockAchievement(s, act.ID), nil
	case core.MissionCompleted:
		return p.CompleteMission(s, act)
	case nil:
		return core.Outcome{State: s}, ErrNilAction
	default:
		return core.Outcome{State: s}, fmt.Errorf("unsupported action %q", a.Kind())
	}
}

// GrantXP adds amount to XP and recomputes the level. Crossing several thresholds in
// one grant still yields a single level_up notification and a single coin bonus.
func (p Progression) GrantXP(s core.State, amount int64, source string) (core.Outcome, error) {
	if amount <= 0 {
		return core.Outcome{State: s}, core.ErrInvalidAmount
	}
	next := s.Clone()
	out := core.Outcome{PreviousLevel: s.Level}
	if err := p.grantXP(&next, &out, amount, source); err != nil {
		return core.Outcome{State: s}, err
	}
	return p.finish(next, out), nil
}

// GrantCoins adds spendable currency. Level-up bonus grants are folded into the
// level_up notification and do not produce their own entry.
func (p Progression) GrantCoins(s core.State, amount int64, source string) (core.Outcome, error) {
	if amount <= 0 {
		return core.Outcome{State: s}, core.ErrInvalidAmount
	}
	next := s.Clone()
	out := core.Outcome{PreviousLevel: s.Level}
	if err := p.grantCoins(&next, &out, amount, source); err != nil {
		return core.Outcome{State: s}, err
	}
	return p.finish(next, out), nil
}

// AdvanceStreak continues or breaks the streak. Reaching a configured milestone grants
// floor(BaseXPReward*(multiplier-1)) bonus XP through the XP path.
func (p Progression) AdvanceStreak(s core.State, cont bool) (core.Outcome, error) {
	next := s.Clone()
	out := core.Outcome{PreviousLevel: s.Level}
	if !cont {
		next.Streak = 0
		return p.finish(next, out), nil
	}
	streak, err := core.AddSafe(next.Streak, 1)
	if err != nil {
		return core.Outcome{State: s}, err
	}
	next.Streak = streak

	multiplier := p.rules.StreakMultiplier(streak)
	bonus := int64(math.Floor(float64(p.rules.BaseXPReward) * (multiplier - 1)))
	if bonus > 0 {
		if err := p.grantXP(&next, &out, bonus, core.SourceStreakBonus); err != nil {
			return core.Outcome{State: s}, err
		}
		out.StreakBonusXP = bonus
		out.Notifications = append(out.Notifications, core.Notification{
			Kind:        core.KindStreakBonus,
			Title:       fmt.Sprintf("%d Day Streak!", streak),
			Description: fmt.Sprintf("Bonus +%d XP for your streak!", bonus),
			Metadata:    map[string]any{"streak": streak, "bonus_xp": bonus, "multiplier": multiplier},
		})
	}
	return p.finish(next, out), nil
}

// UnlockAchievement unlocks a catalog entry once. Unknown ids report Found=false and
// replays report AlreadyUnlocked=true; neither changes state.
func (p Progression) UnlockAchievement(s core.State, id string) core.Outcome {
	entry, ok := p.rules.Catalog.Lookup(id)
	if !ok {
		return core.Outcome{State: s, PreviousLevel: s.Level}
	}
	if cur, ok := s.Achievements[id]; ok && cur.Unlocked {
		return core.Outcome{State: s, PreviousLevel: s.Level, Found: true, AlreadyUnlocked: true}
	}

	next := s.Clone()
	out := core.Outcome{PreviousLevel: s.Level, Found: true}
	if entry.XPReward > 0 {
		if err := p.grantXP(&next, &out, entry.XPReward, core.SourceAchievement); err != nil {
			// only reachable on overflow; treat as a no-op rather than a partial unlock
			return core.Outcome{State: s, PreviousLevel: s.Level, Found: true}
		}
	}
	at := p.now()
	entry.Unlocked = true
	entry.UnlockedAt = &at
	next.Achievements[id] = entry

	out.Notifications = append(out.Notifications, core.Notification{
		Kind:        core.KindAchievement,
		Title:       entry.Title,
		Description: p.rules.Messaging.Achievement,
		Metadata: map[string]any{
			"achievement_id": entry.ID,
			"rarity":         string(entry.Rarity),
			"xp_reward":      entry.XPReward,
		},
	})
	return p.finish(next, out)
}

// CompleteMission records a finished mission and grants its rewards.
func (p Progression) CompleteMission(s core.State, m core.MissionCompleted) (core.Outcome, error) {
	if m.MissionID == "" {
		return core.Outcome{State: s}, errors.New("mission id is required")
	}
	if m.XPReward < 0 || m.CoinReward < 0 {
		return core.Outcome{State: s}, core.ErrInvalidAmount
	}
	next := s.Clone()
	out := core.Outcome{PreviousLevel: s.Level}
	if m.XPReward > 0 {
		if err := p.grantXP(&next, &out, m.XPReward, core.SourceMission); err != nil {
			return core.Outcome{State: s}, err
		}
	}
	if m.CoinReward > 0 {
		if err := p.grantCoins(&next, &out, m.CoinReward, core.SourceMissionReward); err != nil {
			return core.Outcome{State: s}, err
		}
	}
	next.Missions.Daily++
	next.Missions.Weekly++
	next.Missions.Total++

	title := m.Title
	if title == "" {
		title = m.MissionID
	}
	out.Notifications = append(out.Notifications, core.Notification{
		Kind:        core.KindMissionComplete,
		Title:       "Mission Complete: " + title,
		Description: fmt.Sprintf("+%d XP, +%d coins", m.XPReward, m.CoinReward),
		Metadata:    map[string]any{"mission_id": m.MissionID, "xp_reward": m.XPReward, "coin_reward": m.CoinReward},
	})
	return p.finish(next, out), nil
}

// Reset clears XP, level and streak. It is the only transition that lowers XP.
func (p Progression) Reset(s core.State) core.Outcome {
	next := s.Clone()
	next.XP = 0
	next.Level = p.rules.Levels.LevelFor(0)
	next.Streak = 0
	return p.finish(next, core.Outcome{PreviousLevel: s.Level})
}

func (p Progression) grantXP(st *core.State, out *core.Outcome, amount int64, source string) error {
	if source == "" {
		source = core.SourceUnknown
	}
	total, err := core.AddSafe(st.XP, amount)
	if err != nil {
		return err
	}
	oldLevel := st.Level
	st.XP = total
	st.Level = p.rules.Levels.LevelFor(total)
	out.XPGranted += amount

	out.Notifications = append(out.Notifications, core.Notification{
		Kind:        core.KindXPGained,
		Title:       fmt.Sprintf("+%d XP", amount),
		Description: "Gained from " + source,
		Metadata:    map[string]any{"amount": amount, "source": source},
	})

	if st.Level <= oldLevel {
		return nil
	}
	out.LeveledUp = true
	out.LevelsGained += st.Level - oldLevel
	bonus := p.rules.LevelUpCoinBonus
	out.Notifications = append(out.Notifications, core.Notification{
		Kind:        core.KindLevelUp,
		Title:       fmt.Sprintf("Level %d Reached!", st.Level),
		Description: p.rules.Messaging.LevelUp,
		Metadata:    map[string]any{"old_level": oldLevel, "new_level": st.Level, "bonus_coins": bonus},
	})
	if bonus > 0 {
		// coin path only: bonus coins never re-enter grantXP
		return p.grantCoins(st, out, bonus, core.SourceLevelUpBonus)
	}
	return nil
}

func (p Progression) grantCoins(st *core.State, out *core.Outcome, amount int64, source string) error {
	if source == "" {
		source = core.SourceUnknown
	}
	total, err := core.AddSafe(st.Coins, amount)
	if err != nil {
		return err
	}
	st.Coins = total
	out.CoinsGranted += amount
	if source == core.SourceLevelUpBonus {
		return nil
	}
	out.Notifications = append(out.Notifications, core.Notification{
		Kind:        core.KindXPGained,
		Title:       fmt.Sprintf("+%d Coins", amount),
		Description: "Earned from " + source,
		Metadata:    map[string]any{"amount": amount, "source": source, "type": "coins"},
	})
	return nil
}

func (p Progression) finish(next core.State, out core.Outcome) core.Outcome {
	next.Updated = p.now()
	out.State = next
	return out
}
