package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dogpark-economy/geo"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

//go:embed economy.yaml
var defaultEconomy []byte

// Condition kinds understood by the achievement evaluator.
const (
	ConditionCount       = "COUNT"
	ConditionValue       = "VALUE"
	ConditionStreak      = "STREAK"
	ConditionTime        = "TIME"
	ConditionCombination = "COMBINATION"
)

// Timeframes for TIME conditions.
const (
	TimeframeDaily   = "daily"
	TimeframeWeekly  = "weekly"
	TimeframeMonthly = "monthly"
)

const (
	OperatorGTE = "gte"
	OperatorLTE = "lte"
)

// Economy is the static, versioned configuration of the reward economy.
// It is loaded once at start and never mutated.
type Economy struct {
	Version      int                `yaml:"version"`
	Tiers        []Tier             `yaml:"tiers"`
	Levels       []LevelThreshold   `yaml:"levels"`
	Experience   map[string]int64   `yaml:"experience"`
	Spawns       SpawnConfig        `yaml:"spawns"`
	Referral     ReferralConfig     `yaml:"referral"`
	Achievements AchievementsConfig `yaml:"achievements"`
}

type Tier struct {
	Tier int    `yaml:"tier"`
	Name string `yaml:"name"`
}

// LevelThreshold: the last row's MaxExperience is a display ceiling, not a cap.
type LevelThreshold struct {
	Level         int      `yaml:"level" json:"level"`
	MinExperience int64    `yaml:"min_experience" json:"min_experience"`
	MaxExperience int64    `yaml:"max_experience" json:"max_experience"`
	Tier          int      `yaml:"tier" json:"tier"`
	Title         string   `yaml:"title" json:"title"`
	Benefits      []string `yaml:"benefits" json:"benefits,omitempty"`
}

type SpawnConfig struct {
	SampleRadiusMeters    float64     `yaml:"sample_radius_meters"`
	AttemptMultiplier     int         `yaml:"attempt_multiplier"`
	MaxNearbyRadiusMeters float64     `yaml:"max_nearby_radius_meters"`
	Types                 []SpawnType `yaml:"types"`
	Regions               []Region    `yaml:"regions"`
}

type SpawnType struct {
	Type                string  `yaml:"type"`
	Value               int64   `yaml:"value"`
	Rarity              string  `yaml:"rarity"`
	SpawnChance         float64 `yaml:"spawn_chance"`
	MaxActiveSpawns     int     `yaml:"max_active_spawns"`
	RespawnMinutes      int     `yaml:"respawn_minutes"`
	MinSeparationMeters float64 `yaml:"min_separation_meters"`
}

func (t SpawnType) RespawnTime() time.Duration {
	return time.Duration(t.RespawnMinutes) * time.Minute
}

// Region is a weighted sampling centre approximating population density.
type Region struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
	Lat    float64 `yaml:"lat"`
	Lng    float64 `yaml:"lng"`
}

func (r Region) Center() geo.Point { return geo.Point{Lat: r.Lat, Lng: r.Lng} }

type ReferralConfig struct {
	ReferrerReward        int64  `yaml:"referrer_reward"`
	ReferredReward        int64  `yaml:"referred_reward"`
	ReferrerAction        string `yaml:"referrer_action"`
	ReferredAction        string `yaml:"referred_action"`
	CodeLength            int    `yaml:"code_length"`
	Alphabet              string `yaml:"alphabet"`
	ValidityDays          int    `yaml:"validity_days"`
	MaxUses               int    `yaml:"max_uses"`
	MaxGenerationAttempts int    `yaml:"max_generation_attempts"`
}

func (r ReferralConfig) Validity() time.Duration {
	return time.Duration(r.ValidityDays) * 24 * time.Hour
}

type AchievementsConfig struct {
	StreakWindowDays int                     `yaml:"streak_window_days"`
	Definitions      []AchievementDefinition `yaml:"definitions"`
}

type AchievementDefinition struct {
	ID          string    `yaml:"id" json:"id"`
	Type        string    `yaml:"type" json:"type"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Rarity      string    `yaml:"rarity" json:"rarity"`
	Category    string    `yaml:"category" json:"category"`
	Hidden      bool      `yaml:"hidden" json:"hidden"`
	Condition   Condition `yaml:"condition" json:"condition"`
	Rewards     Rewards   `yaml:"rewards" json:"rewards"`
}

type Condition struct {
	Kind      string `yaml:"kind" json:"kind"`
	Metric    string `yaml:"metric" json:"metric"`
	Target    int64  `yaml:"target" json:"target"`
	Timeframe string `yaml:"timeframe,omitempty" json:"timeframe,omitempty"`
	Operator  string `yaml:"operator,omitempty" json:"operator,omitempty"`
}

type Rewards struct {
	Experience int64  `yaml:"experience" json:"experience"`
	Currency   int64  `yaml:"currency" json:"currency"`
	Badge      string `yaml:"badge,omitempty" json:"badge,omitempty"`
}

// LoadEconomy parses the economy tables from path, or the embedded defaults
// when path is empty.
func LoadEconomy(path string) (*Economy, error) {
	data := defaultEconomy
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read economy config: %w", err)
		}
		data = b
	}
	return ParseEconomy(data)
}

// ParseEconomy decodes and validates economy YAML.
func ParseEconomy(data []byte) (*Economy, error) {
	var e Economy
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse economy config: %w", err)
	}
	e.applyDefaults()
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid economy config: %w", err)
	}
	return &e, nil
}

// DefaultEconomy returns the embedded tables. It panics if they are invalid,
// which a test guards against.
func DefaultEconomy() *Economy {
	e, err := ParseEconomy(defaultEconomy)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Economy) applyDefaults() {
	if e.Spawns.AttemptMultiplier == 0 {
		e.Spawns.AttemptMultiplier = 10
	}
	if e.Spawns.SampleRadiusMeters == 0 {
		e.Spawns.SampleRadiusMeters = 500
	}
	for i := range e.Achievements.Definitions {
		d := &e.Achievements.Definitions[i]
		if d.ID == "" {
			d.ID = slug.Make(d.Title)
		}
		if d.Condition.Operator == "" {
			d.Condition.Operator = OperatorGTE
		}
	}
}

// Validate checks the structural invariants of every table.
func (e *Economy) Validate() error {
	var errs []error

	tiers := make(map[int]bool, len(e.Tiers))
	for _, t := range e.Tiers {
		if tiers[t.Tier] {
			errs = append(errs, fmt.Errorf("tier %d defined twice", t.Tier))
		}
		tiers[t.Tier] = true
	}

	if len(e.Levels) == 0 {
		errs = append(errs, errors.New("at least one level is required"))
	} else if e.Levels[0].MinExperience != 0 {
		errs = append(errs, errors.New("first level must start at 0 experience"))
	}
	for i, l := range e.Levels {
		if l.MaxExperience < l.MinExperience {
			errs = append(errs, fmt.Errorf("level %d: max below min", l.Level))
		}
		if !tiers[l.Tier] {
			errs = append(errs, fmt.Errorf("level %d: unknown tier %d", l.Level, l.Tier))
		}
		if i == 0 {
			continue
		}
		prev := e.Levels[i-1]
		if l.Level <= prev.Level {
			errs = append(errs, fmt.Errorf("level %d: levels must be strictly increasing", l.Level))
		}
		if l.MinExperience != prev.MaxExperience+1 {
			errs = append(errs, fmt.Errorf("level %d: thresholds must be contiguous", l.Level))
		}
	}

	for action, xp := range e.Experience {
		if xp <= 0 {
			errs = append(errs, fmt.Errorf("experience for %s must be positive", action))
		}
	}

	if e.Spawns.SampleRadiusMeters <= 0 || e.Spawns.AttemptMultiplier <= 0 {
		errs = append(errs, errors.New("spawn sample radius and attempt multiplier must be positive"))
	}
	if e.Spawns.MaxNearbyRadiusMeters <= 0 {
		errs = append(errs, errors.New("max nearby radius must be positive"))
	}
	types := make(map[string]bool, len(e.Spawns.Types))
	for _, t := range e.Spawns.Types {
		switch {
		case t.Type == "":
			errs = append(errs, errors.New("spawn type name is required"))
		case types[t.Type]:
			errs = append(errs, fmt.Errorf("spawn type %s defined twice", t.Type))
		case t.Value <= 0:
			errs = append(errs, fmt.Errorf("spawn type %s: value must be positive", t.Type))
		case t.SpawnChance < 0 || t.SpawnChance > 1:
			errs = append(errs, fmt.Errorf("spawn type %s: spawn chance must be within [0,1]", t.Type))
		case t.MaxActiveSpawns < 0 || t.RespawnMinutes <= 0 || t.MinSeparationMeters < 0:
			errs = append(errs, fmt.Errorf("spawn type %s: invalid capacity, respawn or radius", t.Type))
		}
		types[t.Type] = true
	}
	if len(e.Spawns.Regions) == 0 {
		errs = append(errs, errors.New("at least one spawn region is required"))
	}
	for _, r := range e.Spawns.Regions {
		if r.Weight <= 0 || !r.Center().Valid() {
			errs = append(errs, fmt.Errorf("region %s: invalid weight or coordinates", r.Name))
		}
	}

	ref := e.Referral
	if ref.CodeLength <= 0 || len(ref.Alphabet) < 2 || ref.ValidityDays <= 0 || ref.MaxUses <= 0 || ref.MaxGenerationAttempts <= 0 {
		errs = append(errs, errors.New("referral code settings must be positive"))
	}
	if ref.ReferrerReward <= 0 || ref.ReferredReward <= 0 {
		errs = append(errs, errors.New("referral rewards must be positive"))
	}
	for _, action := range []string{ref.ReferrerAction, ref.ReferredAction} {
		if _, ok := e.Experience[action]; !ok {
			errs = append(errs, fmt.Errorf("referral action %q has no experience reward", action))
		}
	}

	if e.Achievements.StreakWindowDays <= 0 {
		errs = append(errs, errors.New("streak window must be positive"))
	}
	titles := map[string]bool{}
	ids := map[string]bool{}
	for _, d := range e.Achievements.Definitions {
		if d.Title == "" {
			errs = append(errs, errors.New("achievement title is required"))
			continue
		}
		if titles[d.Title] || ids[d.ID] {
			errs = append(errs, fmt.Errorf("achievement %q defined twice", d.Title))
		}
		titles[d.Title] = true
		ids[d.ID] = true
		if err := d.Condition.validate(); err != nil {
			errs = append(errs, fmt.Errorf("achievement %q: %w", d.Title, err))
		}
		if d.Rewards.Experience < 0 || d.Rewards.Currency < 0 {
			errs = append(errs, fmt.Errorf("achievement %q: rewards cannot be negative", d.Title))
		}
	}

	return errors.Join(errs...)
}

func (c Condition) validate() error {
	switch c.Kind {
	case ConditionCount, ConditionValue, ConditionStreak:
	case ConditionTime:
		switch c.Timeframe {
		case TimeframeDaily, TimeframeWeekly, TimeframeMonthly:
		default:
			return fmt.Errorf("unknown timeframe %q", c.Timeframe)
		}
	case ConditionCombination:
		return nil
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	if c.Metric == "" || c.Target <= 0 {
		return errors.New("metric and a positive target are required")
	}
	if c.Operator != OperatorGTE && c.Operator != OperatorLTE {
		return fmt.Errorf("unknown operator %q", c.Operator)
	}
	if c.Operator == OperatorLTE && c.Kind != ConditionValue {
		return errors.New("lte is only valid for VALUE conditions")
	}
	return nil
}

// SpawnType returns the config of the named spawn type.
func (e *Economy) SpawnType(name string) (SpawnType, bool) {
	for _, t := range e.Spawns.Types {
		if strings.EqualFold(t.Type, name) {
			return t, true
		}
	}
	return SpawnType{}, false
}

// TierName returns the display name of a tier ordinal.
func (e *Economy) TierName(tier int) string {
	for _, t := range e.Tiers {
		if t.Tier == tier {
			return t.Name
		}
	}
	return ""
}
