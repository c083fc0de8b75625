package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a reader account on the site. Only the fields the giveaway and
// login need are modeled here; the astrology questionnaire lives elsewhere.
type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Email          string         `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash   string         `gorm:"size:255;not null" json:"-"`
	Nome           string         `gorm:"size:100;not null" json:"nome"`
	Cognome        string         `gorm:"size:100;not null" json:"cognome"`
	DataNascita    string         `gorm:"size:10;not null" json:"data_nascita"`
	LuogoNascita   string         `gorm:"size:100;not null" json:"luogo_nascita"`
	SegnoZodiacale *string        `gorm:"size:30" json:"segno_zodiacale,omitempty"`
	EmailVerified  bool           `gorm:"not null;default:false" json:"email_verified"`
	CreatedAt      time.Time      `json:"-"`
	UpdatedAt      time.Time      `json:"-"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}
