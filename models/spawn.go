package models

import "time"

// CollectibleSpawn is a time-limited reward placed on the map.
type CollectibleSpawn struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Type      string     `gorm:"type:varchar(32);index:idx_spawn_active_type,priority:2;not null" json:"type"`
	Rarity    string     `gorm:"type:varchar(16);not null" json:"rarity"`
	Latitude  float64    `gorm:"index:idx_spawn_lat_lng,priority:1;not null" json:"latitude"`
	Longitude float64    `gorm:"index:idx_spawn_lat_lng,priority:2;not null" json:"longitude"`
	Value     int64      `gorm:"not null" json:"value"`
	IsActive  bool       `gorm:"index:idx_spawn_active_type,priority:1;not null" json:"is_active"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

// ExpiredAt reports whether the spawn has an expiry at or before now.
func (s CollectibleSpawn) ExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// CollectionRecord is the proof that a spawn was claimed. SpawnID is unique,
// which is the authoritative guard against double claims.
type CollectionRecord struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	DogID       *string   `gorm:"type:varchar(64)" json:"dog_id,omitempty"`
	SpawnID     string    `gorm:"uniqueIndex;not null" json:"spawn_id"`
	SpawnType   string    `gorm:"type:varchar(32);not null" json:"spawn_type"` // denormalised for stats
	Value       int64     `gorm:"not null" json:"value"`
	CollectedAt time.Time `gorm:"index;not null" json:"collected_at"`
}
