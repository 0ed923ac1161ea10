package services

import (
	"context"
	"fmt"

	"dogpark-economy/metrics"
	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// LedgerService is the single write path for currency and experience
// movements. Every grant in the engine goes through Record.
type LedgerService struct {
	store store.Store
	clock clockwork.Clock
	log   *zap.Logger
}

func NewLedgerService(st store.Store, clock clockwork.Clock, log *zap.Logger) *LedgerService {
	return &LedgerService{store: st, clock: clock, log: orNop(log)}
}

// Record validates and appends e using tx, or the service store when tx is nil.
func (l *LedgerService) Record(ctx context.Context, tx store.Store, e *models.LedgerEntry) error {
	if tx == nil {
		tx = l.store
	}
	if e.Amount <= 0 {
		return fmt.Errorf("ledger entry for %s: %w", e.UserID, ErrInvalidAmount)
	}
	switch e.Direction {
	case models.DirectionEarn, models.DirectionSpend:
	default:
		return fmt.Errorf("ledger entry for %s: unknown direction %q", e.UserID, e.Direction)
	}
	switch e.Currency {
	case models.CurrencyBones, models.CurrencyExperience:
	default:
		return fmt.Errorf("ledger entry for %s: unknown currency %q", e.UserID, e.Currency)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.clock.Now()
	}
	if err := tx.InsertLedgerEntry(ctx, e); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	metrics.RecordLedgerEntry(string(e.Direction), string(e.Currency))
	return nil
}

// Earn records an EARN entry and returns it.
func (l *LedgerService) Earn(ctx context.Context, tx store.Store, userID string, currency models.Currency, amount int64, reason string, meta models.LedgerMetadata) (*models.LedgerEntry, error) {
	e := &models.LedgerEntry{
		UserID:    userID,
		Direction: models.DirectionEarn,
		Currency:  currency,
		Amount:    amount,
		Reason:    reason,
		Metadata:  datatypes.NewJSONType(meta),
	}
	if err := l.Record(ctx, tx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Balance is the ledger-derived state of a user's wallet.
type Balance struct {
	UserID     string `json:"user_id"`
	Earned     int64  `json:"bones_earned"`
	Spent      int64  `json:"bones_spent"`
	Available  int64  `json:"bones_available"`
	Experience int64  `json:"experience"`
}

func (l *LedgerService) Balance(ctx context.Context, userID string) (*Balance, error) {
	bones, err := l.store.SumLedger(ctx, userID, models.CurrencyBones)
	if err != nil {
		return nil, fmt.Errorf("sum bones: %w", err)
	}
	xp, err := l.store.SumLedger(ctx, userID, models.CurrencyExperience)
	if err != nil {
		return nil, fmt.Errorf("sum experience: %w", err)
	}
	return &Balance{
		UserID:     userID,
		Earned:     bones.Earned,
		Spent:      bones.Spent,
		Available:  bones.Net(),
		Experience: xp.Net(),
	}, nil
}

// LedgerPage is one page of a user's ledger history, newest first.
type LedgerPage struct {
	Entries    []models.LedgerEntry `json:"entries"`
	Page       int                  `json:"page"`
	Size       int                  `json:"size"`
	TotalItems int64                `json:"total_items"`
	TotalPages int                  `json:"total_pages"`
}

func (l *LedgerService) History(ctx context.Context, userID string, page, size int) (*LedgerPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	entries, total, err := l.store.ListLedgerEntries(ctx, userID, size, (page-1)*size)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	return &LedgerPage{
		Entries:    entries,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}, nil
}

// Spend debits bones when the derived balance covers amount. The user's
// progression row is locked for the check so concurrent spends serialise.
func (l *LedgerService) Spend(ctx context.Context, userID string, amount int64, reason string, meta models.LedgerMetadata) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var entry *models.LedgerEntry
	err := l.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.EnsureProgression(ctx, defaultProgression(userID)); err != nil {
			return err
		}
		if _, err := tx.GetProgression(ctx, userID, true); err != nil {
			return err
		}
		totals, err := tx.SumLedger(ctx, userID, models.CurrencyBones)
		if err != nil {
			return err
		}
		if totals.Net() < amount {
			return ErrInsufficientFunds
		}
		entry = &models.LedgerEntry{
			UserID:    userID,
			Direction: models.DirectionSpend,
			Currency:  models.CurrencyBones,
			Amount:    amount,
			Reason:    reason,
			Metadata:  datatypes.NewJSONType(meta),
		}
		return l.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("💸 bones spent", zap.String("user_id", userID), zap.Int64("amount", amount), zap.String("reason", reason))
	return entry, nil
}
