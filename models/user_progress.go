package models

import (
	"time"
)

// ProgressionState tracks experience and level per user. Level and tier are
// always recomputed from CumulativeExperience, so they cannot drift.
type ProgressionState struct {
	ID                   string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID               string `gorm:"uniqueIndex;not null" json:"user_id"`
	Level                int    `json:"level" gorm:"not null"`
	Tier                 int    `json:"tier" gorm:"not null"` // ordinal band, e.g. Bronze(1) → Diamond(5)
	CumulativeExperience int64  `json:"cumulative_experience" gorm:"not null"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times. Economy rows are never soft-deleted.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
