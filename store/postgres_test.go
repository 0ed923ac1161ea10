package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"dogpark-economy/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))
	assert.ErrorIs(t, translateError(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, translateError(gorm.ErrDuplicatedKey), ErrDuplicate)
	assert.ErrorIs(t, translateError(&pgconn.PgError{Code: "23505"}), ErrDuplicate)

	other := errors.New("connection reset")
	assert.Equal(t, other, translateError(other))
	assert.NotErrorIs(t, translateError(&pgconn.PgError{Code: "23503"}), ErrDuplicate)
}

func TestGetSpawnNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "collectible_spawns" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetSpawn(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSpawnForUpdateLocksRow(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "collectible_spawns" WHERE id = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "value", "is_active"}).
			AddRow("sp-1", "BONE", 5, true))

	sp, err := s.GetSpawn(context.Background(), "sp-1", true)
	require.NoError(t, err)
	assert.Equal(t, "BONE", sp.Type)
	assert.True(t, sp.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateSpawnReportsLostRace(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "collectible_spawns" SET "is_active"=\$1 WHERE id = \$2 AND is_active = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.DeactivateSpawn(context.Background(), "sp-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateReferralCodeIsConditional(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "referral_codes" SET .* WHERE id = \$\d+ AND code = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.UpdateReferralCode(context.Background(), &models.ReferralCode{
		ID: "rc-1", Code: "NEWCODE2", IsActive: true, ExpiresAt: time.Now(), MaxUses: 25,
	}, "OLDCODE2")
	require.NoError(t, err)
	assert.False(t, ok, "a row rotated by someone else is left alone")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotificationsAfterUsesCompositeCursor(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "notifications" WHERE user_id = \$1 AND \(created_at > \$2 OR \(created_at = \$3 AND id > \$4\)\) ORDER BY created_at ASC, id ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id"}).AddRow("n-2", "u-1"))

	list, err := s.ListNotificationsAfter(context.Background(), "u-1", NotificationCursor{CreatedAt: time.Now(), ID: "n-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "n-2", list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBadgeIfAbsentUsesOnConflict(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO "badges" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.InsertBadgeIfAbsent(context.Background(), &models.Badge{
		ID: "b-1", UserID: "u-1", Code: "golden_snout", AwardedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumLedger(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(CASE WHEN direction = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"earned", "spent"}).AddRow(120, 20))

	totals, err := s.SumLedger(context.Background(), "u-1", models.CurrencyBones)
	require.NoError(t, err)
	assert.Equal(t, int64(120), totals.Earned)
	assert.Equal(t, int64(100), totals.Net())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRankUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE external_user_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rank, err := s.RegistrationRank(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Zero(t, rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}
