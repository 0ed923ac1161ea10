package models

import "time"

// The tables below belong to the host application. The engine reads them to
// build achievement statistics and never writes them in production.

type Walk struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string    `gorm:"index:idx_walk_user_started,priority:1;not null" json:"user_id"`
	DogID          *string   `json:"dog_id,omitempty"`
	DistanceMeters float64   `json:"distance_meters"`
	StartedAt      time.Time `gorm:"index:idx_walk_user_started,priority:2;not null" json:"started_at"`
}

type TrainingSession struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"index:idx_training_user_completed,priority:1;not null" json:"user_id"`
	DogID       *string   `json:"dog_id,omitempty"`
	Skill       string    `json:"skill"`
	CompletedAt time.Time `gorm:"index:idx_training_user_completed,priority:2;not null" json:"completed_at"`
}

type Post struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// PostLike: UserID is the liker. Likes received are counted through the post.
type PostLike struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	PostID    string    `gorm:"index;not null" json:"post_id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

type CommunityEvent struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	OrganizerID string    `gorm:"index;not null" json:"organizer_id"`
	Title       string    `json:"title"`
	StartsAt    time.Time `json:"starts_at"`
	CreatedAt   time.Time `gorm:"index;not null" json:"created_at"`
}

// ActivityModels lists the host-owned tables, for local migrations only.
func ActivityModels() []any {
	return []any{&User{}, &Walk{}, &TrainingSession{}, &Post{}, &PostLike{}, &CommunityEvent{}}
}

// EconomyModels lists the tables the engine owns.
func EconomyModels() []any {
	return []any{
		&LedgerEntry{},
		&ProgressionState{},
		&CollectibleSpawn{},
		&CollectionRecord{},
		&AchievementRecord{},
		&Badge{},
		&ReferralCode{},
		&ReferralRecord{},
		&Notification{},
	}
}
