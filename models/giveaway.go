package models

import "time"

// GiveawaySpin is one attempt at the wheel. Rows are append-only: never
// updated, never deleted. The composite unique index is what makes two
// concurrent writers of the same attempt number collide instead of both
// landing.
type GiveawaySpin struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:uniq_spin_user_round_attempt,priority:1" json:"user_id"`
	RoundID       int       `gorm:"not null;uniqueIndex:uniq_spin_user_round_attempt,priority:2" json:"round_id"`
	AttemptNumber int       `gorm:"not null;uniqueIndex:uniq_spin_user_round_attempt,priority:3" json:"attempt_number"`
	UserSign      string    `gorm:"size:20;not null" json:"user_sign"`
	ResultSign    string    `gorm:"size:20;not null" json:"result_sign"`
	IsWinner      bool      `gorm:"not null" json:"is_winner"`
	AcceptedTerms bool      `gorm:"not null" json:"accepted_terms"`
	IPAddress     *string   `gorm:"size:45" json:"ip_address,omitempty"`
	SessionID     *string   `gorm:"size:64" json:"session_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (GiveawaySpin) TableName() string {
	return "giveaway_spins"
}

// GiveawayWinner holds the at-most-one win per (user, round) and the issued
// redemption code. Redeemed is flipped by the fulfillment flow, everything
// else is immutable.
type GiveawayWinner struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex:uniq_winner_user_round,priority:1" json:"user_id"`
	RoundID       int       `gorm:"not null;uniqueIndex:uniq_winner_user_round,priority:2" json:"round_id"`
	WinCode       string    `gorm:"size:40;uniqueIndex;not null" json:"win_code"`
	WinningSign   string    `gorm:"size:20;not null" json:"winning_sign"`
	AttemptNumber int       `gorm:"not null" json:"attempt_number"`
	SourceSpinID  uint      `gorm:"not null" json:"source_spin_id"`
	Redeemed      bool      `gorm:"not null;default:false" json:"redeemed"`
	CreatedAt     time.Time `json:"created_at"`
}

func (GiveawayWinner) TableName() string {
	return "giveaway_winners"
}

// RevokedToken is the DB fallback for JWT jti revocation when Redis is not
// configured.
type RevokedToken struct {
	ID        string    `gorm:"primaryKey;size:96"`
	RevokedAt time.Time `gorm:"not null"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}
