package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClaimUnknownSpawn(t *testing.T) {
	f := newFixture(t)

	res, err := f.claims.Claim(f.ctx, ClaimRequest{UserID: "user-1", SpawnID: "missing"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeNotFound, res.Code)
}

func TestClaimSuccessThenAlreadyCollected(t *testing.T) {
	f := newFixture(t)
	sp := f.placeSpawn(t, "BONE", 40.7128, -74.0060, time.Hour)
	dog := "rex"

	res, err := f.claims.Claim(f.ctx, ClaimRequest{UserID: "user-1", DogID: &dog, SpawnID: sp.ID})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, CodeOK, res.Code)
	assert.Equal(t, int64(5), res.BonesEarned)
	assert.Equal(t, "BONE", res.SpawnType)

	got, err := f.store.GetSpawn(f.ctx, sp.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	col, err := f.store.GetCollectionBySpawn(f.ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", col.UserID)
	require.NotNil(t, col.DogID)
	assert.Equal(t, "rex", *col.DogID)

	// the first collection also unlocks Finders Keepers (+5 bones)
	has, err := f.store.HasAchievement(f.ctx, "user-1", "Finders Keepers")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, int64(10), f.balance(t, "user-1").Available)

	again, err := f.claims.Claim(f.ctx, ClaimRequest{UserID: "user-2", SpawnID: sp.ID})
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, CodeAlreadyCollected, again.Code)
	assert.Zero(t, f.balance(t, "user-2").Earned)
}

func TestClaimExpiredSpawn(t *testing.T) {
	f := newFixture(t)
	sp := f.placeSpawn(t, "TREAT", 40.7128, -74.0060, time.Minute)
	f.clock.Advance(time.Minute + time.Second)

	res, err := f.claims.Claim(f.ctx, ClaimRequest{UserID: "user-1", SpawnID: sp.ID})
	require.NoError(t, err)
	assert.Equal(t, CodeExpired, res.Code)

	_, total, err := f.store.ListLedgerEntries(f.ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	got, err := f.store.GetSpawn(f.ctx, sp.ID, false)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "claim must not deactivate an expired spawn")
}

func TestClaimIsAtMostOnceUnderContention(t *testing.T) {
	f := newFixture(t)
	sp := f.placeSpawn(t, "TOY", 41.8781, -87.6298, time.Hour)

	const claimers = 20
	results := make([]*ClaimResult, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.claims.Claim(f.ctx, ClaimRequest{UserID: fmt.Sprintf("user-%d", i), SpawnID: sp.ID})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, res := range results {
		require.NotNil(t, res)
		if res.Success {
			winners++
			// toy value plus the Finders Keepers bonus
			assert.Equal(t, int64(45), f.balance(t, fmt.Sprintf("user-%d", i)).Earned)
			continue
		}
		assert.Equal(t, CodeAlreadyCollected, res.Code)
	}
	assert.Equal(t, 1, winners)
}

// collisionStore reports every collection insert as a unique violation, the
// way Postgres does when a concurrent claim commits first.
type collisionStore struct{ store.Store }

func (c collisionStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return c.Store.Transaction(ctx, func(tx store.Store) error { return fn(collisionStore{tx}) })
}

func (collisionStore) InsertCollection(context.Context, *models.CollectionRecord) error {
	return fmt.Errorf("insert collection: %w", store.ErrDuplicate)
}

func TestClaimLosingInsertRace(t *testing.T) {
	f := newFixture(t)
	sp := f.placeSpawn(t, "BONE", 40.7128, -74.0060, time.Hour)
	claims := NewClaimService(collisionStore{f.store}, f.ledger, nil, f.clock, zaptest.NewLogger(t))

	res, err := claims.Claim(f.ctx, ClaimRequest{UserID: "user-1", SpawnID: sp.ID})
	require.NoError(t, err)
	assert.Equal(t, CodeAlreadyCollected, res.Code)
	assert.Zero(t, f.balance(t, "user-1").Earned)
}
