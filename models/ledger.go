package models

import (
	"time"

	"gorm.io/datatypes"
)

// Direction says whether an entry adds to or subtracts from a balance.
type Direction string

const (
	DirectionEarn  Direction = "EARN"
	DirectionSpend Direction = "SPEND"
)

// Currency is the unit a ledger entry is denominated in.
type Currency string

const (
	CurrencyBones      Currency = "CURRENCY"
	CurrencyExperience Currency = "EXPERIENCE"
)

// LedgerEntry is an immutable record of a currency or experience movement.
// Balances are always derived from these rows, never stored.
type LedgerEntry struct {
	ID        string                             `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string                             `gorm:"index:idx_ledger_user_created,priority:1;not null" json:"user_id"`
	Direction Direction                          `gorm:"type:varchar(8);not null" json:"direction"`
	Currency  Currency                           `gorm:"type:varchar(16);not null" json:"currency"`
	Amount    int64                              `gorm:"not null;check:amount > 0" json:"amount"`
	Reason    string                             `gorm:"type:varchar(255);not null" json:"reason"`
	Metadata  datatypes.JSONType[LedgerMetadata] `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time                          `gorm:"index:idx_ledger_user_created,priority:2;index;not null" json:"created_at"`
}

// Signed returns the amount with the sign its direction applies to a balance.
func (e LedgerEntry) Signed() int64 {
	if e.Direction == DirectionSpend {
		return -e.Amount
	}
	return e.Amount
}

// LedgerMetadata holds the known metadata shapes per grant path. Exactly one
// of the typed fields is normally set; Extra carries anything else.
type LedgerMetadata struct {
	Claim       *ClaimMetadata       `json:"claim,omitempty"`
	Progression *ProgressionMetadata `json:"progression,omitempty"`
	Achievement *AchievementMetadata `json:"achievement,omitempty"`
	Referral    *ReferralMetadata    `json:"referral,omitempty"`
	Extra       map[string]string    `json:"extra,omitempty"`
}

type ClaimMetadata struct {
	SpawnID   string  `json:"spawn_id"`
	SpawnType string  `json:"spawn_type"`
	DogID     *string `json:"dog_id,omitempty"`
}

type ProgressionMetadata struct {
	PreviousLevel int  `json:"previous_level"`
	NewLevel      int  `json:"new_level"`
	LeveledUp     bool `json:"leveled_up"`
}

type AchievementMetadata struct {
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
}

// ReferralMetadata.Role is "referrer" or "referred".
type ReferralMetadata struct {
	ReferralID string `json:"referral_id"`
	ReferrerID string `json:"referrer_id"`
	ReferredID string `json:"referred_id"`
	Role       string `json:"role"`
}
