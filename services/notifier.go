package services

import (
	"context"

	"dogpark-economy/models"
	"dogpark-economy/store"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Notifier is the fire-and-forget notification sink. Implementations must not
// block or fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
}

// NotificationService persists notifications for the in-app feed and the SSE stream.
type NotificationService struct {
	store store.NotificationStore
	clock clockwork.Clock
	log   *zap.Logger
}

func NewNotificationService(st store.NotificationStore, clock clockwork.Clock, log *zap.Logger) *NotificationService {
	return &NotificationService{store: st, clock: clock, log: orNop(log)}
}

func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		s.log.Warn("⚠️ failed to store notification",
			zap.String("user_id", n.UserID), zap.String("kind", string(n.Kind)), zap.Error(err))
		return
	}
	s.log.Debug("🔔 notification stored", zap.String("user_id", n.UserID), zap.String("title", n.Title))
}

func (s *NotificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return s.store.ListNotifications(ctx, userID, limit)
}

// After lists the notifications that follow the cursor. Pass the returned
// rows' last element back as the next cursor.
func (s *NotificationService) After(ctx context.Context, userID string, cursor store.NotificationCursor) ([]models.Notification, error) {
	return s.store.ListNotificationsAfter(ctx, userID, cursor)
}

func (s *NotificationService) MarkAllViewed(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkNotificationsViewed(ctx, userID)
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
