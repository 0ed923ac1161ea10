package models

import (
	"time"
)

// NotificationKind groups notifications for the client feed.
type NotificationKind string

const (
	NotificationLevelUp     NotificationKind = "LEVEL_UP"
	NotificationAchievement NotificationKind = "ACHIEVEMENT"
	NotificationReferral    NotificationKind = "REFERRAL"
)

// Notification is an in-app message produced by a grant path.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string           `gorm:"index:idx_notification_user_created,priority:1;not null" json:"user_id"`
	Kind      NotificationKind `gorm:"type:varchar(16);not null" json:"kind"`
	Title     string           `gorm:"not null" json:"title"`
	Body      string           `gorm:"type:text" json:"body"`
	Emoji     string           `gorm:"size:10" json:"emoji"`
	Viewed    bool             `gorm:"default:false;index" json:"viewed"`
	CreatedAt time.Time        `gorm:"index:idx_notification_user_created,priority:2;not null" json:"created_at"`
}
