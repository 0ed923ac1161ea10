package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dogpark-economy/geo"
	"dogpark-economy/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const pgUniqueViolation = "23505"

// OpenPostgres connects gorm to Postgres with driver errors translated, so
// unique violations surface as gorm.ErrDuplicatedKey.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates the engine tables, plus the host activity tables when
// withActivity is set.
func Migrate(db *gorm.DB, withActivity bool) error {
	tables := models.EconomyModels()
	if withActivity {
		tables = append(tables, models.ActivityModels()...)
	}
	if err := db.AutoMigrate(tables...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// GormStore implements Store on a gorm connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func lockIf(db *gorm.DB, forUpdate bool) *gorm.DB {
	if forUpdate {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func since(db *gorm.DB, column string, t time.Time) *gorm.DB {
	if t.IsZero() {
		return db
	}
	return db.Where(column+" >= ?", t)
}

// Ledger

func (s *GormStore) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	return translateError(s.conn(ctx).Create(e).Error)
}

func (s *GormStore) ListLedgerEntries(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, int64, error) {
	var total int64
	if err := s.conn(ctx).Model(&models.LedgerEntry{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}
	var entries []models.LedgerEntry
	err := s.conn(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&entries).Error
	return entries, total, translateError(err)
}

func (s *GormStore) ListLedgerEntriesBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.conn(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, translateError(err)
}

func (s *GormStore) SumLedger(ctx context.Context, userID string, currency models.Currency) (LedgerTotals, error) {
	var totals LedgerTotals
	err := s.conn(ctx).Model(&models.LedgerEntry{}).
		Select(
			"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS earned, "+
				"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS spent",
			models.DirectionEarn, models.DirectionSpend,
		).
		Where("user_id = ? AND currency = ?", userID, currency).
		Scan(&totals).Error
	return totals, translateError(err)
}

// Progression

func (s *GormStore) EnsureProgression(ctx context.Context, p *models.ProgressionState) error {
	return translateError(s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(p).Error)
}

func (s *GormStore) GetProgression(ctx context.Context, userID string, forUpdate bool) (*models.ProgressionState, error) {
	var p models.ProgressionState
	if err := lockIf(s.conn(ctx), forUpdate).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, translateError(err)
	}
	return &p, nil
}

func (s *GormStore) SaveProgression(ctx context.Context, p *models.ProgressionState) error {
	return translateError(s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"level", "tier", "cumulative_experience", "last_level_up_at", "updated_at",
		}),
	}).Create(p).Error)
}

// Spawns

func (s *GormStore) InsertSpawn(ctx context.Context, sp *models.CollectibleSpawn) error {
	return translateError(s.conn(ctx).Create(sp).Error)
}

func (s *GormStore) GetSpawn(ctx context.Context, id string, forUpdate bool) (*models.CollectibleSpawn, error) {
	var sp models.CollectibleSpawn
	if err := lockIf(s.conn(ctx), forUpdate).Where("id = ?", id).First(&sp).Error; err != nil {
		return nil, translateError(err)
	}
	return &sp, nil
}

func activeAt(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("is_active = ? AND (expires_at IS NULL OR expires_at > ?)", true, now)
}

func (s *GormStore) ListActiveSpawns(ctx context.Context, now time.Time) ([]models.CollectibleSpawn, error) {
	var spawns []models.CollectibleSpawn
	err := activeAt(s.conn(ctx), now).Order("created_at ASC").Find(&spawns).Error
	return spawns, translateError(err)
}

func (s *GormStore) ListActiveSpawnsIn(ctx context.Context, box geo.BoundingBox, now time.Time) ([]models.CollectibleSpawn, error) {
	var spawns []models.CollectibleSpawn
	err := activeAt(s.conn(ctx), now).
		Where("latitude BETWEEN ? AND ?", box.MinLat, box.MaxLat).
		Where("longitude BETWEEN ? AND ?", box.MinLng, box.MaxLng).
		Find(&spawns).Error
	return spawns, translateError(err)
}

func (s *GormStore) DeactivateSpawn(ctx context.Context, id string) (bool, error) {
	res := s.conn(ctx).Model(&models.CollectibleSpawn{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) DeactivateExpiredSpawns(ctx context.Context, now time.Time) (int64, error) {
	res := s.conn(ctx).Model(&models.CollectibleSpawn{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Update("is_active", false)
	return res.RowsAffected, translateError(res.Error)
}

// Collections

func (s *GormStore) GetCollectionBySpawn(ctx context.Context, spawnID string) (*models.CollectionRecord, error) {
	var c models.CollectionRecord
	if err := s.conn(ctx).Where("spawn_id = ?", spawnID).First(&c).Error; err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (s *GormStore) InsertCollection(ctx context.Context, c *models.CollectionRecord) error {
	return translateError(s.conn(ctx).Create(c).Error)
}

// Achievements

func (s *GormStore) HasAchievement(ctx context.Context, userID, title string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.AchievementRecord{}).
		Where("user_id = ? AND title = ?", userID, title).
		Count(&count).Error
	return count > 0, translateError(err)
}

func (s *GormStore) InsertAchievementIfAbsent(ctx context.Context, a *models.AchievementRecord) (bool, error) {
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(a)
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListAchievements(ctx context.Context, userID string) ([]models.AchievementRecord, error) {
	var records []models.AchievementRecord
	err := s.conn(ctx).Where("user_id = ?", userID).Order("earned_at ASC").Find(&records).Error
	return records, translateError(err)
}

func (s *GormStore) InsertBadgeIfAbsent(ctx context.Context, b *models.Badge) (bool, error) {
	res := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(b)
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ListBadges(ctx context.Context, userID string) ([]models.Badge, error) {
	var badges []models.Badge
	err := s.conn(ctx).Where("user_id = ?", userID).Order("awarded_at ASC").Find(&badges).Error
	return badges, translateError(err)
}

// Referrals

func (s *GormStore) GetReferralCodeByUser(ctx context.Context, userID string) (*models.ReferralCode, error) {
	var c models.ReferralCode
	if err := s.conn(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (s *GormStore) GetReferralCodeByCode(ctx context.Context, code string, forUpdate bool) (*models.ReferralCode, error) {
	var c models.ReferralCode
	if err := lockIf(s.conn(ctx), forUpdate).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, translateError(err)
	}
	return &c, nil
}

func (s *GormStore) InsertReferralCode(ctx context.Context, c *models.ReferralCode) error {
	return translateError(s.conn(ctx).Create(c).Error)
}

func (s *GormStore) UpdateReferralCode(ctx context.Context, c *models.ReferralCode, expectedCode string) (bool, error) {
	res := s.conn(ctx).Model(&models.ReferralCode{}).Where("id = ? AND code = ?", c.ID, expectedCode).Updates(map[string]any{
		"code":       c.Code,
		"is_active":  c.IsActive,
		"expires_at": c.ExpiresAt,
		"used_count": c.UsedCount,
		"max_uses":   c.MaxUses,
	})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) IncrementReferralCodeUse(ctx context.Context, id string) error {
	res := s.conn(ctx).Model(&models.ReferralCode{}).Where("id = ?", id).
		Update("used_count", gorm.Expr("used_count + ?", 1))
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ReferralExists(ctx context.Context, referrerID, referredID string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&models.ReferralRecord{}).
		Where("referrer_id = ? AND referred_id = ?", referrerID, referredID).
		Count(&count).Error
	return count > 0, translateError(err)
}

func (s *GormStore) InsertReferral(ctx context.Context, r *models.ReferralRecord) error {
	return translateError(s.conn(ctx).Create(r).Error)
}

// Notifications

func (s *GormStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	return translateError(s.conn(ctx).Create(n).Error)
}

func (s *GormStore) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := s.conn(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Limit(limit).
		Find(&list).Error
	return list, translateError(err)
}

func (s *GormStore) ListNotificationsAfter(ctx context.Context, userID string, after NotificationCursor) ([]models.Notification, error) {
	var list []models.Notification
	err := s.conn(ctx).
		Where("user_id = ? AND (created_at > ? OR (created_at = ? AND id > ?))", userID, after.CreatedAt, after.CreatedAt, after.ID).
		Order("created_at ASC, id ASC").
		Find(&list).Error
	return list, translateError(err)
}

func (s *GormStore) MarkNotificationsViewed(ctx context.Context, userID string) (int64, error) {
	res := s.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND viewed = ?", userID, false).
		Update("viewed", true)
	return res.RowsAffected, translateError(res.Error)
}

// Users

func (s *GormStore) GetUser(ctx context.Context, externalUserID string) (*models.User, error) {
	var u models.User
	if err := s.conn(ctx).Where("external_user_id = ?", externalUserID).First(&u).Error; err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

func (s *GormStore) UpsertUser(ctx context.Context, u *models.User) error {
	return translateError(s.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "display_name", "profile_picture_url", "registered_at", "updated_at",
		}),
	}).Create(u).Error)
}

func (s *GormStore) LatestUserUpdate(ctx context.Context) (time.Time, error) {
	var last sql.NullTime
	if err := s.conn(ctx).Raw("SELECT MAX(updated_at) FROM users").Scan(&last).Error; err != nil {
		return time.Time{}, translateError(err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (s *GormStore) RegistrationRank(ctx context.Context, externalUserID string) (int64, error) {
	u, err := s.GetUser(ctx, externalUserID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var earlier int64
	err = s.conn(ctx).Model(&models.User{}).
		Where("registered_at < ? OR (registered_at = ? AND external_user_id < ?)",
			u.RegisteredAt, u.RegisteredAt, u.ExternalUserID).
		Count(&earlier).Error
	if err != nil {
		return 0, translateError(err)
	}
	return earlier + 1, nil
}

// Activity

func (s *GormStore) ActivityCounts(ctx context.Context, userID string, t time.Time) (ActivityCounts, error) {
	var c ActivityCounts
	queries := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&c.Walks, since(s.conn(ctx).Model(&models.Walk{}).Where("user_id = ?", userID), "started_at", t)},
		{&c.Trainings, since(s.conn(ctx).Model(&models.TrainingSession{}).Where("user_id = ?", userID), "completed_at", t)},
		{&c.Posts, since(s.conn(ctx).Model(&models.Post{}).Where("user_id = ?", userID), "created_at", t)},
		{&c.LikesReceived, since(s.conn(ctx).Model(&models.PostLike{}).
			Joins("JOIN posts ON posts.id = post_likes.post_id").
			Where("posts.user_id = ?", userID), "post_likes.created_at", t)},
		{&c.Collectibles, since(s.conn(ctx).Model(&models.CollectionRecord{}).Where("user_id = ?", userID), "collected_at", t)},
		{&c.EventsOrganized, since(s.conn(ctx).Model(&models.CommunityEvent{}).Where("organizer_id = ?", userID), "created_at", t)},
		{&c.Referrals, since(s.conn(ctx).Model(&models.ReferralRecord{}).
			Where("referrer_id = ? AND status = ?", userID, models.ReferralStatusCompleted), "created_at", t)},
	}
	for _, q := range queries {
		if err := q.query.Count(q.dest).Error; err != nil {
			return ActivityCounts{}, translateError(err)
		}
	}
	return c, nil
}

func (s *GormStore) CollectionsByType(ctx context.Context, userID string, t time.Time) (map[string]int64, error) {
	var rows []struct {
		SpawnType string
		Count     int64
	}
	err := since(s.conn(ctx).Model(&models.CollectionRecord{}).Where("user_id = ?", userID), "collected_at", t).
		Select("spawn_type, COUNT(*) AS count").
		Group("spawn_type").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.SpawnType] = r.Count
	}
	return out, nil
}

func (s *GormStore) ActivityTimes(ctx context.Context, userID string, t time.Time) ([]time.Time, error) {
	var walks, trainings []time.Time
	if err := since(s.conn(ctx).Model(&models.Walk{}).Where("user_id = ?", userID), "started_at", t).
		Pluck("started_at", &walks).Error; err != nil {
		return nil, translateError(err)
	}
	if err := since(s.conn(ctx).Model(&models.TrainingSession{}).Where("user_id = ?", userID), "completed_at", t).
		Pluck("completed_at", &trainings).Error; err != nil {
		return nil, translateError(err)
	}
	return append(walks, trainings...), nil
}

var _ Store = (*GormStore)(nil)
