package models

import "time"

const ReferralStatusCompleted = "COMPLETED"

// ReferralCode is the shareable token a user hands out. One row per user; the
// code is rotated in place when a new one is requested after the old one
// stopped being usable.
type ReferralCode struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"uniqueIndex;not null" json:"user_id"`
	Code      string    `gorm:"uniqueIndex;type:varchar(16);not null" json:"code"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	UsedCount int       `gorm:"not null" json:"used_count"`
	MaxUses   int       `gorm:"not null" json:"max_uses"`

	Timestamps
}

// Usable reports whether the code can still be redeemed at now.
func (c ReferralCode) Usable(now time.Time) bool {
	return c.IsActive && c.ExpiresAt.After(now) && c.UsedCount < c.MaxUses
}

// ReferralRecord tracks one completed referral; at most one per pair.
type ReferralRecord struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID     string    `gorm:"not null;index:idx_referral_pair,unique,priority:1" json:"referrer_id"`
	ReferredID     string    `gorm:"not null;index:idx_referral_pair,unique,priority:2;index" json:"referred_id"`
	CodeID         string    `gorm:"type:uuid;not null" json:"code_id"`
	Status         string    `gorm:"type:varchar(16);not null" json:"status"`
	ReferrerReward int64     `json:"referrer_reward"`
	ReferredReward int64     `json:"referred_reward"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}
