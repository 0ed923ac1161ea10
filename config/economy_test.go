package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEconomyIsValid(t *testing.T) {
	e, err := LoadEconomy("")
	require.NoError(t, err)

	assert.Equal(t, 3, e.Version)
	assert.Len(t, e.Levels, 10)
	assert.Equal(t, int64(0), e.Levels[0].MinExperience)
	assert.Equal(t, int64(100), e.Levels[1].MinExperience)
	assert.Equal(t, int64(15), e.Experience["LOG_WALK"])
	assert.Equal(t, 10, e.Spawns.AttemptMultiplier)
	assert.Equal(t, "Gold", e.TierName(3))

	golden, ok := e.SpawnType("golden_bone")
	require.True(t, ok)
	assert.Equal(t, int64(150), golden.Value)
	assert.Equal(t, "LEGENDARY", golden.Rarity)
}

func TestAchievementIDsDerivedFromTitles(t *testing.T) {
	e := DefaultEconomy()
	byTitle := map[string]AchievementDefinition{}
	for _, d := range e.Achievements.Definitions {
		byTitle[d.Title] = d
	}
	assert.Equal(t, "first-steps", byTitle["First Steps"].ID)
	assert.Equal(t, "marathon-mutt", byTitle["Marathon Mutt"].ID)
	assert.Equal(t, OperatorGTE, byTitle["First Steps"].Condition.Operator)
	assert.Equal(t, OperatorLTE, byTitle["Early Adopter"].Condition.Operator)
}

func TestParseEconomyRejectsGapInLevels(t *testing.T) {
	e := DefaultEconomy()
	e.Levels[2].MinExperience += 5

	err := e.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contiguous")
}

func TestValidateRejectsBadTables(t *testing.T) {
	cases := map[string]func(e *Economy){
		"first level above zero": func(e *Economy) { e.Levels[0].MinExperience = 1 },
		"unknown tier":           func(e *Economy) { e.Levels[0].Tier = 42 },
		"duplicate title":        func(e *Economy) { e.Achievements.Definitions[1].Title = e.Achievements.Definitions[0].Title },
		"bad chance":             func(e *Economy) { e.Spawns.Types[0].SpawnChance = 1.5 },
		"no regions":             func(e *Economy) { e.Spawns.Regions = nil },
		"zero xp":                func(e *Economy) { e.Experience["LOG_WALK"] = 0 },
		"bad timeframe":          func(e *Economy) { e.Achievements.Definitions[4].Condition.Timeframe = "yearly" },
		"lte on count":           func(e *Economy) { e.Achievements.Definitions[0].Condition.Operator = OperatorLTE },
		"no attempts":            func(e *Economy) { e.Referral.MaxGenerationAttempts = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := DefaultEconomy()
			mutate(e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestLoadEconomyFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, defaultEconomy, 0o600))

	e, err := LoadEconomy(path)
	require.NoError(t, err)
	assert.NotEmpty(t, e.Achievements.Definitions)

	_, err = LoadEconomy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("levels: ["), 0o600))
	_, err = LoadEconomy(bad)
	assert.Error(t, err)
}
