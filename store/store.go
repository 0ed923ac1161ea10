// Package store defines the persistence boundary of the economy engine.
//
// Every component talks to a Store handed to its constructor. The Postgres
// implementation lives in this package; store/memstore provides an in-memory
// implementation with the same unique constraints for tests and local runs.
package store

import (
	"context"
	"errors"
	"time"

	"dogpark-economy/geo"
	"dogpark-economy/models"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("store: duplicate")
)

// Store is the transactional handle every service is built on.
type Store interface {
	// Transaction runs fn as one unit of work. Any error from fn rolls back
	// every write made through tx. Nested calls join the outer unit.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	LedgerStore
	ProgressionStore
	SpawnStore
	CollectionStore
	AchievementStore
	ReferralStore
	NotificationStore
	UserStore
	ActivityStore
}

// LedgerTotals are the summed amounts for one user and currency.
type LedgerTotals struct {
	Earned int64
	Spent  int64
}

// Net is the derived balance.
func (t LedgerTotals) Net() int64 { return t.Earned - t.Spent }

type LedgerStore interface {
	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
	// ListLedgerEntries returns a page ordered newest first plus the total row count.
	ListLedgerEntries(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, int64, error)
	// ListLedgerEntriesBetween returns entries with from <= created_at < to, oldest first.
	ListLedgerEntriesBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error)
	SumLedger(ctx context.Context, userID string, currency models.Currency) (LedgerTotals, error)
}

type ProgressionStore interface {
	// EnsureProgression inserts p unless a row for p.UserID exists.
	EnsureProgression(ctx context.Context, p *models.ProgressionState) error
	GetProgression(ctx context.Context, userID string, forUpdate bool) (*models.ProgressionState, error)
	SaveProgression(ctx context.Context, p *models.ProgressionState) error
}

type SpawnStore interface {
	InsertSpawn(ctx context.Context, s *models.CollectibleSpawn) error
	GetSpawn(ctx context.Context, id string, forUpdate bool) (*models.CollectibleSpawn, error)
	// ListActiveSpawns returns active spawns that have not expired at now.
	ListActiveSpawns(ctx context.Context, now time.Time) ([]models.CollectibleSpawn, error)
	ListActiveSpawnsIn(ctx context.Context, box geo.BoundingBox, now time.Time) ([]models.CollectibleSpawn, error)
	// DeactivateSpawn flips is_active only if it is still set and reports whether it did.
	DeactivateSpawn(ctx context.Context, id string) (bool, error)
	// DeactivateExpiredSpawns deactivates active spawns with expires_at < now.
	DeactivateExpiredSpawns(ctx context.Context, now time.Time) (int64, error)
}

type CollectionStore interface {
	GetCollectionBySpawn(ctx context.Context, spawnID string) (*models.CollectionRecord, error)
	InsertCollection(ctx context.Context, c *models.CollectionRecord) error
}

type AchievementStore interface {
	HasAchievement(ctx context.Context, userID, title string) (bool, error)
	// InsertAchievementIfAbsent reports false when (user, title) already exists.
	InsertAchievementIfAbsent(ctx context.Context, a *models.AchievementRecord) (bool, error)
	ListAchievements(ctx context.Context, userID string) ([]models.AchievementRecord, error)
	InsertBadgeIfAbsent(ctx context.Context, b *models.Badge) (bool, error)
	ListBadges(ctx context.Context, userID string) ([]models.Badge, error)
}

type ReferralStore interface {
	GetReferralCodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error)
	GetReferralCodeByCode(ctx context.Context, code string, forUpdate bool) (*models.ReferralCode, error)
	InsertReferralCode(ctx context.Context, c *models.ReferralCode) error
	// UpdateReferralCode overwrites the row only while it still holds
	// expectedCode and reports whether it did.
	UpdateReferralCode(ctx context.Context, c *models.ReferralCode, expectedCode string) (bool, error)
	IncrementReferralCodeUse(ctx context.Context, id string) error
	ReferralExists(ctx context.Context, referrerID, referredID string) (bool, error)
	InsertReferral(ctx context.Context, r *models.ReferralRecord) error
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	// ListNotifications returns the newest notifications first.
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	// ListNotificationsAfter returns notifications ordered after the cursor,
	// oldest first by (created_at, id).
	ListNotificationsAfter(ctx context.Context, userID string, after NotificationCursor) ([]models.Notification, error)
	MarkNotificationsViewed(ctx context.Context, userID string) (int64, error)
}

// NotificationCursor marks the last notification a reader has seen. Rows
// sharing a timestamp are ordered by id.
type NotificationCursor struct {
	CreatedAt time.Time
	ID        string
}

// After reports whether n sorts after the cursor.
func (c NotificationCursor) After(n models.Notification) bool {
	if n.CreatedAt.Equal(c.CreatedAt) {
		return n.ID > c.ID
	}
	return n.CreatedAt.After(c.CreatedAt)
}

type UserStore interface {
	GetUser(ctx context.Context, externalUserID string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	// LatestUserUpdate is the zero time when no users are mirrored yet.
	LatestUserUpdate(ctx context.Context) (time.Time, error)
	// RegistrationRank is the 1-based position of the user by registration
	// time, or 0 when the user is unknown.
	RegistrationRank(ctx context.Context, externalUserID string) (int64, error)
}

// ActivityCounts are per-user activity totals since a point in time.
type ActivityCounts struct {
	Walks           int64
	Trainings       int64
	Posts           int64
	LikesReceived   int64
	Collectibles    int64
	EventsOrganized int64
	Referrals       int64
}

type ActivityStore interface {
	// ActivityCounts counts activity at or after since; the zero time counts everything.
	ActivityCounts(ctx context.Context, userID string, since time.Time) (ActivityCounts, error)
	CollectionsByType(ctx context.Context, userID string, since time.Time) (map[string]int64, error)
	// ActivityTimes returns the timestamps of walks and trainings at or after since.
	ActivityTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error)
}
