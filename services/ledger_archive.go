package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dogpark-economy/store"

	"go.uber.org/zap"
)

// ObjectPutter uploads one object; utils.R2Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// LedgerArchiver exports each UTC day of ledger entries as JSON lines.
type LedgerArchiver struct {
	store  store.LedgerStore
	bucket ObjectPutter
	log    *zap.Logger
}

func NewLedgerArchiver(st store.LedgerStore, bucket ObjectPutter, log *zap.Logger) *LedgerArchiver {
	return &LedgerArchiver{store: st, bucket: bucket, log: orNop(log)}
}

// ArchiveKey is the object key for day, e.g. ledger/2026/03/14.jsonl.
func ArchiveKey(day time.Time) string {
	return startOfDay(day).Format("ledger/2006/01/02.jsonl")
}

// ArchiveDay uploads every entry created on day's UTC date and returns the
// number written. Days without entries are skipped.
func (a *LedgerArchiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	from := startOfDay(day)
	entries, err := a.store.ListLedgerEntriesBetween(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("list ledger entries: %w", err)
	}
	if len(entries) == 0 {
		a.log.Debug("ledger archive skipped, no entries", zap.Time("day", from))
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return 0, fmt.Errorf("encode ledger entry %s: %w", entries[i].ID, err)
		}
	}

	key := ArchiveKey(from)
	if err := a.bucket.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	a.log.Info("📦 ledger archived", zap.String("key", key), zap.Int("entries", len(entries)))
	return len(entries), nil
}
