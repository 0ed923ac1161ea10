package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dogpark-economy/config"
	"dogpark-economy/store"
)

// UserStats is a snapshot of a user's behaviour keyed by metric name, e.g.
// "walks", "walks_this_week", "activity_streak", "collectibles_golden_bone".
type UserStats map[string]int64

// Metric returns the named value, or 0 for unknown metrics.
func (s UserStats) Metric(name string) int64 { return s[name] }

const (
	suffixToday     = "_today"
	suffixThisWeek  = "_this_week"
	suffixThisMonth = "_this_month"
	suffixStreak    = "_streak"
)

func timeframeSuffix(timeframe string) string {
	switch timeframe {
	case config.TimeframeDaily:
		return suffixToday
	case config.TimeframeWeekly:
		return suffixThisWeek
	case config.TimeframeMonthly:
		return suffixThisMonth
	}
	return ""
}

var rarityRank = map[string]int{
	"COMMON":    0,
	"UNCOMMON":  1,
	"RARE":      2,
	"EPIC":      3,
	"LEGENDARY": 4,
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// startOfWeek is Monday 00:00 UTC of t's ISO week.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func putCounts(stats UserStats, c store.ActivityCounts, suffix string) {
	stats["walks"+suffix] = c.Walks
	stats["trainings"+suffix] = c.Trainings
	stats["posts"+suffix] = c.Posts
	stats["likes_received"+suffix] = c.LikesReceived
	stats["collectibles"+suffix] = c.Collectibles
	stats["events_organized"+suffix] = c.EventsOrganized
	stats["referrals"+suffix] = c.Referrals
}

// computeStats builds a fresh snapshot; nothing is cached between calls.
func (s *AchievementService) computeStats(ctx context.Context, userID string) (UserStats, error) {
	now := s.clock.Now()
	stats := UserStats{}

	windows := []struct {
		suffix string
		since  time.Time
	}{
		{"", time.Time{}},
		{suffixToday, startOfDay(now)},
		{suffixThisWeek, startOfWeek(now)},
		{suffixThisMonth, startOfMonth(now)},
	}
	for _, w := range windows {
		counts, err := s.store.ActivityCounts(ctx, userID, w.since)
		if err != nil {
			return nil, fmt.Errorf("activity counts%s: %w", w.suffix, err)
		}
		putCounts(stats, counts, w.suffix)
	}

	byType, err := s.store.CollectionsByType(ctx, userID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("collections by type: %w", err)
	}
	for spawnType, n := range byType {
		stats["collectibles_"+strings.ToLower(spawnType)] = n
		if t, ok := s.economy.SpawnType(spawnType); ok && rarityRank[t.Rarity] >= rarityRank["RARE"] {
			stats["rare_collectibles"] += n
		}
	}

	prog, err := s.store.GetProgression(ctx, userID, false)
	switch {
	case errors.Is(err, store.ErrNotFound):
		stats["level"] = 1
	case err != nil:
		return nil, fmt.Errorf("progression: %w", err)
	default:
		stats["level"] = int64(prog.Level)
	}

	rank, err := s.store.RegistrationRank(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("registration rank: %w", err)
	}
	stats["registration_rank"] = rank

	window := s.economy.Achievements.StreakWindowDays
	times, err := s.store.ActivityTimes(ctx, userID, startOfDay(now).AddDate(0, 0, -(window-1)))
	if err != nil {
		return nil, fmt.Errorf("activity times: %w", err)
	}
	stats["activity"+suffixStreak] = streak(times, now, window)

	return stats, nil
}

// streak counts consecutive UTC days with activity, walking back from today
// over at most window days and stopping at the first empty day.
func streak(times []time.Time, now time.Time, window int) int64 {
	days := make(map[time.Time]bool, len(times))
	for _, t := range times {
		days[startOfDay(t)] = true
	}
	var n int64
	day := startOfDay(now)
	for i := 0; i < window; i++ {
		if !days[day] {
			break
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}
