package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"questline/core"
)

// rulesFile is the on-disk shape of a game rules file. Streak multiplier keys
// are strings so JSON files decode the same as YAML ones.
type rulesFile struct {
	Levels            []int64            `yaml:"levels"`
	StreakMultipliers map[string]float64 `yaml:"streak_multipliers"`
	BaseXPReward      *int64             `yaml:"base_xp_reward"`
	LevelUpCoinBonus  *int64             `yaml:"level_up_coin_bonus"`
	Achievements      []core.Achievement `yaml:"achievements"`
	Messaging         core.Messaging     `yaml:"messaging"`
}

// LoadRules reads a JSON or YAML rules file. Sections missing from the file
// keep the built-in defaults. An empty path returns core.DefaultRules.
func LoadRules(path string) (core.Rules, error) {
	if path == "" {
		return core.DefaultRules(), nil
	}
	if strings.Contains(path, "..") {
		return core.Rules{}, errors.New("rules file path cannot traverse parent directories")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return core.Rules{}, fmt.Errorf("rules file must be .json, .yaml or .yml: %s", path)
	}

	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - extension and traversal checked above
	if err != nil {
		return core.Rules{}, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return core.Rules{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes rules from YAML (or JSON, which YAML accepts).
func ParseRules(data []byte) (core.Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return core.Rules{}, fmt.Errorf("failed to parse rules: %w", err)
	}

	rules := core.DefaultRules()
	if len(f.Levels) > 0 {
		table, err := core.NewLevelTable(f.Levels)
		if err != nil {
			return core.Rules{}, fmt.Errorf("levels: %w", err)
		}
		rules.Levels = table
	}
	if f.StreakMultipliers != nil {
		multipliers := make(map[int64]float64, len(f.StreakMultipliers))
		for k, v := range f.StreakMultipliers {
			streak, err := strconv.ParseInt(strings.TrimSpace(k), 10, 64)
			if err != nil {
				return core.Rules{}, fmt.Errorf("streak_multipliers: key %q is not an integer", k)
			}
			multipliers[streak] = v
		}
		rules.StreakMultipliers = multipliers
	}
	if f.BaseXPReward != nil {
		rules.BaseXPReward = *f.BaseXPReward
	}
	if f.LevelUpCoinBonus != nil {
		rules.LevelUpCoinBonus = *f.LevelUpCoinBonus
	}
	if f.Achievements != nil {
		catalog, err := core.NewCatalog(f.Achievements)
		if err != nil {
			return core.Rules{}, fmt.Errorf("achievements: %w", err)
		}
		rules.Catalog = catalog
	}
	if f.Messaging.LevelUp != "" {
		rules.Messaging.LevelUp = f.Messaging.LevelUp
	}
	if f.Messaging.Achievement != "" {
		rules.Messaging.Achievement = f.Messaging.Achievement
	}

	if err := rules.Validate(); err != nil {
		return core.Rules{}, err
	}
	return rules, nil
}
