package services

import (
	"context"
	"testing"
	"time"

	"dogpark-economy/config"
	"dogpark-economy/models"
	"dogpark-economy/store/memstore"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testStart is a Wednesday afternoon.
var testStart = time.Date(2026, time.March, 11, 15, 0, 0, 0, time.UTC)

type fixture struct {
	ctx          context.Context
	store        *memstore.Store
	clock        *clockwork.FakeClock
	economy      *config.Economy
	ledger       *LedgerService
	notifier     *NotificationService
	progression  *ProgressionService
	achievements *AchievementService
	spawns       *SpawnService
	claims       *ClaimService
	referrals    *ReferralService
}

func newFixture(t *testing.T, tweaks ...func(*config.Economy)) *fixture {
	t.Helper()
	economy := config.DefaultEconomy()
	for _, tweak := range tweaks {
		tweak(economy)
	}
	require.NoError(t, economy.Validate())

	st := memstore.New()
	clock := clockwork.NewFakeClockAt(testStart)
	log := zaptest.NewLogger(t)
	rnd := NewSeededRandom(42)

	f := &fixture{ctx: context.Background(), store: st, clock: clock, economy: economy}
	f.ledger = NewLedgerService(st, clock, log)
	f.notifier = NewNotificationService(st, clock, log)
	f.progression = NewProgressionService(st, f.ledger, f.notifier, economy, clock, log)
	f.achievements = NewAchievementService(st, f.ledger, f.progression, f.notifier, economy, clock, log)
	f.spawns = NewSpawnService(st, economy, rnd, clock, log)
	f.claims = NewClaimService(st, f.ledger, f.achievements, clock, log)
	f.referrals = NewReferralService(st, f.ledger, f.progression, f.achievements, f.notifier, rnd, economy, clock, log)
	return f
}

// placeSpawn inserts an active spawn expiring ttl after the fake now.
func (f *fixture) placeSpawn(t *testing.T, spawnType string, lat, lng float64, ttl time.Duration) *models.CollectibleSpawn {
	t.Helper()
	cfg, ok := f.economy.SpawnType(spawnType)
	require.True(t, ok, spawnType)
	now := f.clock.Now()
	expires := now.Add(ttl)
	sp := &models.CollectibleSpawn{
		Type:      cfg.Type,
		Rarity:    cfg.Rarity,
		Latitude:  lat,
		Longitude: lng,
		Value:     cfg.Value,
		IsActive:  true,
		ExpiresAt: &expires,
		CreatedAt: now,
	}
	require.NoError(t, f.store.InsertSpawn(f.ctx, sp))
	return sp
}

func (f *fixture) balance(t *testing.T, userID string) *Balance {
	t.Helper()
	b, err := f.ledger.Balance(f.ctx, userID)
	require.NoError(t, err)
	return b
}

func (f *fixture) notificationKinds(t *testing.T, userID string) []models.NotificationKind {
	t.Helper()
	list, err := f.notifier.List(f.ctx, userID, 100)
	require.NoError(t, err)
	kinds := make([]models.NotificationKind, 0, len(list))
	for _, n := range list {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func titles(granted []GrantedAchievement) []string {
	out := make([]string, 0, len(granted))
	for _, g := range granted {
		out = append(out, g.Title)
	}
	return out
}
