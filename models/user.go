package models

import (
	"time"
)

// User is a local snapshot of the profile service's user row.
// Populated via the profile sync worker; the engine only reads it.
type User struct {
	ID                string    `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID    string    `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	Username          string    `gorm:"index;not null" json:"username"`
	DisplayName       *string   `json:"display_name,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	RegisteredAt      time.Time `gorm:"index;not null" json:"registered_at"` // account creation on the profile service
	UpdatedAt         time.Time `json:"updated_at"`
}

// Name returns the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Username
}
