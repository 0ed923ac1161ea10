package services

import (
	"context"
	"testing"
	"time"

	"dogpark-economy/config"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEvaluate(t *testing.T) {
	stats := UserStats{
		"walks":             3,
		"walks_this_week":   2,
		"activity_streak":   4,
		"registration_rank": 42,
	}
	cases := []struct {
		name string
		cond config.Condition
		want bool
	}{
		{"count met", config.Condition{Kind: config.ConditionCount, Metric: "walks", Target: 3, Operator: config.OperatorGTE}, true},
		{"count short", config.Condition{Kind: config.ConditionCount, Metric: "walks", Target: 4, Operator: config.OperatorGTE}, false},
		{"unknown metric", config.Condition{Kind: config.ConditionCount, Metric: "swims", Target: 1, Operator: config.OperatorGTE}, false},
		{"lte met", config.Condition{Kind: config.ConditionValue, Metric: "registration_rank", Target: 100, Operator: config.OperatorLTE}, true},
		{"lte exceeded", config.Condition{Kind: config.ConditionValue, Metric: "registration_rank", Target: 10, Operator: config.OperatorLTE}, false},
		{"lte unknown value", config.Condition{Kind: config.ConditionValue, Metric: "missing", Target: 10, Operator: config.OperatorLTE}, false},
		{"streak", config.Condition{Kind: config.ConditionStreak, Metric: "activity", Target: 4}, true},
		{"streak short", config.Condition{Kind: config.ConditionStreak, Metric: "activity", Target: 5}, false},
		{"weekly", config.Condition{Kind: config.ConditionTime, Metric: "walks", Target: 2, Timeframe: config.TimeframeWeekly}, true},
		{"daily", config.Condition{Kind: config.ConditionTime, Metric: "walks", Target: 1, Timeframe: config.TimeframeDaily}, false},
		{"combination", config.Condition{Kind: config.ConditionCombination}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, evaluate(tc.cond, stats))
		})
	}
}

func TestStreak(t *testing.T) {
	day := func(n int) time.Time { return testStart.AddDate(0, 0, -n) }

	assert.Equal(t, int64(3), streak([]time.Time{day(0), day(1), day(1), day(2), day(4)}, testStart, 30))
	assert.Equal(t, int64(0), streak([]time.Time{day(1), day(2)}, testStart, 30), "streak starts today")
	assert.Equal(t, int64(2), streak([]time.Time{day(0), day(1), day(2)}, testStart, 2))
	assert.Zero(t, streak(nil, testStart, 30))
}

func TestWeekBoundaries(t *testing.T) {
	assert.Equal(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC), startOfWeek(testStart))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), startOfMonth(testStart))
	sunday := time.Date(2026, time.March, 15, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC), startOfWeek(sunday))
}

func TestCheckAchievementsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.store.AddWalk("user-1", testStart.Add(-time.Hour))

	granted := f.achievements.CheckAchievements(f.ctx, "user-1", "LOG_WALK")
	require.Equal(t, []string{"First Steps"}, titles(granted))
	assert.Equal(t, "first-steps", granted[0].ID)

	again := f.achievements.CheckAchievements(f.ctx, "user-1", "LOG_WALK")
	assert.Empty(t, again)

	b := f.balance(t, "user-1")
	assert.Equal(t, int64(5), b.Available)
	assert.Equal(t, int64(10), b.Experience)

	records, err := f.store.ListAchievements(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Contains(t, f.notificationKinds(t, "user-1"), models.NotificationAchievement)
}

func TestCheckAchievementsWeeklyWindow(t *testing.T) {
	f := newFixture(t)
	monday := startOfWeek(testStart)
	for i := 0; i < 9; i++ {
		f.store.AddWalk("user-1", monday.Add(time.Duration(i)*time.Hour))
	}
	for i := 0; i < 5; i++ {
		f.store.AddWalk("user-1", monday.Add(-time.Duration(i+1)*time.Hour))
	}

	granted := titles(f.achievements.CheckAchievements(f.ctx, "user-1", "LOG_WALK"))
	assert.Contains(t, granted, "First Steps")
	assert.NotContains(t, granted, "Busy Week", "last week's walks do not count")

	f.store.AddWalk("user-1", testStart)
	granted = titles(f.achievements.CheckAchievements(f.ctx, "user-1", "LOG_WALK"))
	assert.Equal(t, []string{"Busy Week"}, granted)
}

func TestCheckAchievementsStreak(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 6; i++ {
		f.store.AddWalk("user-1", testStart.AddDate(0, 0, -i))
	}
	assert.NotContains(t, titles(f.achievements.CheckAchievements(f.ctx, "user-1", "LOG_WALK")), "Week Warrior")

	f.store.AddTraining("user-1", testStart.AddDate(0, 0, -6))
	granted := f.achievements.CheckAchievements(f.ctx, "user-1", "COMPLETE_TRAINING")
	require.Equal(t, []string{"Week Warrior"}, titles(granted))
	assert.Equal(t, "week_warrior", granted[0].Badge)

	badges, err := f.achievements.ListBadges(f.ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, "week_warrior", badges[0].Code)
}

func TestCheckAchievementsRegistrationRank(t *testing.T) {
	f := newFixture(t)
	f.store.AddUser("user-1", "biscuit", testStart.AddDate(-1, 0, 0))

	granted := f.achievements.CheckAchievements(f.ctx, "user-1", "DAILY_LOGIN")
	require.Equal(t, []string{"Early Adopter"}, titles(granted))
	assert.Equal(t, int64(100), f.balance(t, "user-1").Available)

	assert.Empty(t, f.achievements.CheckAchievements(f.ctx, "stranger", "DAILY_LOGIN"), "unknown rank never satisfies lte")
}

func TestCheckAchievementsCountsCollections(t *testing.T) {
	f := newFixture(t)
	sp := f.placeSpawn(t, "GOLDEN_BONE", 40.7128, -74.0060, time.Hour)

	res, err := f.claims.Claim(f.ctx, ClaimRequest{UserID: "user-1", SpawnID: sp.ID})
	require.NoError(t, err)
	require.True(t, res.Success)

	for _, title := range []string{"Finders Keepers", "Golden Snout"} {
		has, err := f.store.HasAchievement(f.ctx, "user-1", title)
		require.NoError(t, err)
		assert.True(t, has, title)
	}
	// 150 claim, 5 + 100 achievements
	assert.Equal(t, int64(255), f.balance(t, "user-1").Available)
}

func TestListAchievementsMasksHidden(t *testing.T) {
	f := newFixture(t)
	f.store.AddWalk("user-1", testStart)
	f.achievements.CheckAchievements(f.ctx, "user-1", "LOG_WALK")

	views, err := f.achievements.ListAchievements(f.ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, views, len(f.economy.Achievements.Definitions))

	byID := map[string]AchievementView{}
	for _, v := range views {
		byID[v.ID] = v
	}
	assert.True(t, byID["first-steps"].Earned)
	require.NotNil(t, byID["first-steps"].EarnedAt)
	assert.False(t, byID["trail-regular"].Earned)
	assert.Equal(t, "Trail Regular", byID["trail-regular"].Title)

	hidden := byID["golden-snout"]
	assert.True(t, hidden.Hidden)
	assert.Equal(t, "???", hidden.Title)
	assert.Zero(t, hidden.Rewards.Currency)
}

// lostInsertStore loses every achievement insert, as when a concurrent check
// committed the same record between the lookup and the insert.
type lostInsertStore struct{ store.Store }

func (l lostInsertStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return l.Store.Transaction(ctx, func(tx store.Store) error { return fn(lostInsertStore{tx}) })
}

func (lostInsertStore) InsertAchievementIfAbsent(context.Context, *models.AchievementRecord) (bool, error) {
	return false, nil
}

func TestCheckAchievementsLosingInsertIsNoop(t *testing.T) {
	f := newFixture(t)
	f.store.AddWalk("user-1", testStart.Add(-time.Hour))
	achievements := NewAchievementService(lostInsertStore{f.store}, f.ledger, f.progression, f.notifier, f.economy, f.clock, zaptest.NewLogger(t))

	granted := achievements.CheckAchievements(f.ctx, "user-1", "LOG_WALK")
	assert.Empty(t, granted)

	b := f.balance(t, "user-1")
	assert.Zero(t, b.Earned)
	assert.Zero(t, b.Experience)
	badges, err := f.store.ListBadges(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, badges)
	assert.Empty(t, f.notificationKinds(t, "user-1"))
}
