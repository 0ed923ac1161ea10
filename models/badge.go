package models

import (
	"time"
)

// AchievementTypeLevel marks the records written by the progression engine on
// level-up.
const AchievementTypeLevel = "LEVEL"

// AchievementRecord: earned instance, at most one per user and title.
type AchievementRecord struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"not null;index:idx_achievement_user_title,unique,priority:1" json:"user_id"`
	Title         string    `gorm:"not null;index:idx_achievement_user_title,unique,priority:2" json:"title"`
	AchievementID string    `gorm:"type:varchar(64)" json:"achievement_id,omitempty"`
	Type          string    `gorm:"type:varchar(32);not null" json:"type"`
	Rarity        string    `gorm:"type:varchar(16)" json:"rarity"` // COMMON, UNCOMMON, RARE, EPIC, LEGENDARY
	EarnedAt      time.Time `gorm:"not null" json:"earned_at"`
}

// Badge: cosmetic award attached to some achievements.
type Badge struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"not null;index:idx_badge_user_code,unique,priority:1" json:"user_id"`
	Code          string    `gorm:"not null;index:idx_badge_user_code,unique,priority:2" json:"code"` // e.g. "marathon_mutt"
	AchievementID string    `gorm:"type:varchar(64)" json:"achievement_id"`
	AwardedAt     time.Time `gorm:"not null" json:"awarded_at"`
}
