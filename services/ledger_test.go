package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dogpark-economy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRecordValidatesEntries(t *testing.T) {
	f := newFixture(t)

	err := f.ledger.Record(f.ctx, nil, &models.LedgerEntry{UserID: "u", Direction: models.DirectionEarn, Currency: models.CurrencyBones})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = f.ledger.Record(f.ctx, nil, &models.LedgerEntry{UserID: "u", Direction: "GIFT", Currency: models.CurrencyBones, Amount: 1})
	assert.Error(t, err)

	err = f.ledger.Record(f.ctx, nil, &models.LedgerEntry{UserID: "u", Direction: models.DirectionEarn, Currency: "GEMS", Amount: 1})
	assert.Error(t, err)
}

func TestSpendChecksDerivedBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Earn(f.ctx, nil, "user-1", models.CurrencyBones, 30, "gift", models.LedgerMetadata{})
	require.NoError(t, err)

	entry, err := f.ledger.Spend(f.ctx, "user-1", 20, "shop:leash", models.LedgerMetadata{Extra: map[string]string{"sku": "leash"}})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionSpend, entry.Direction)

	_, err = f.ledger.Spend(f.ctx, "user-1", 20, "shop:collar", models.LedgerMetadata{})
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	b := f.balance(t, "user-1")
	assert.Equal(t, int64(30), b.Earned)
	assert.Equal(t, int64(20), b.Spent)
	assert.Equal(t, int64(10), b.Available)
}

func TestHistoryPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 5; i++ {
		_, err := f.ledger.Earn(f.ctx, nil, "user-1", models.CurrencyBones, int64(i), "gift", models.LedgerMetadata{})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	page, err := f.ledger.History(f.ctx, "user-1", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, int64(5), page.Entries[0].Amount)
	assert.Equal(t, int64(4), page.Entries[1].Amount)

	last, err := f.ledger.History(f.ctx, "user-1", 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Entries, 1)
	assert.Equal(t, int64(1), last.Entries[0].Amount)

	empty, err := f.ledger.History(f.ctx, "nobody", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty.Entries)
	assert.Equal(t, 20, empty.Size)
}

type putCall struct {
	key         string
	body        []byte
	contentType string
}

type fakeBucket struct {
	calls []putCall
	err   error
}

func (b *fakeBucket) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	if b.err != nil {
		return b.err
	}
	b.calls = append(b.calls, putCall{key: key, body: body, contentType: contentType})
	return nil
}

func TestArchiveDay(t *testing.T) {
	f := newFixture(t)
	bucket := &fakeBucket{}
	archiver := NewLedgerArchiver(f.store, bucket, zaptest.NewLogger(t))

	for _, user := range []string{"user-1", "user-2"} {
		_, err := f.ledger.Earn(f.ctx, nil, user, models.CurrencyBones, 7, "gift", models.LedgerMetadata{})
		require.NoError(t, err)
	}
	f.clock.Advance(24 * time.Hour)
	_, err := f.ledger.Earn(f.ctx, nil, "user-1", models.CurrencyBones, 1, "next day", models.LedgerMetadata{})
	require.NoError(t, err)

	n, err := archiver.ArchiveDay(f.ctx, testStart)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, bucket.calls, 1)
	assert.Equal(t, "ledger/2026/03/11.jsonl", bucket.calls[0].key)
	assert.Equal(t, "application/x-ndjson", bucket.calls[0].contentType)

	var lines int
	sc := bufio.NewScanner(bytes.NewReader(bucket.calls[0].body))
	for sc.Scan() {
		var e models.LedgerEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		assert.Equal(t, "gift", e.Reason)
		lines++
	}
	assert.Equal(t, 2, lines)

	n, err = archiver.ArchiveDay(f.ctx, testStart.AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, bucket.calls, 1, "empty days are not uploaded")
}

func TestArchiveDayUploadFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("r2 down")
	archiver := NewLedgerArchiver(f.store, &fakeBucket{err: boom}, zaptest.NewLogger(t))
	_, err := f.ledger.Earn(f.ctx, nil, "user-1", models.CurrencyBones, 7, "gift", models.LedgerMetadata{})
	require.NoError(t, err)

	_, err = archiver.ArchiveDay(f.ctx, testStart)
	assert.ErrorIs(t, err, boom)
}
