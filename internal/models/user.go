package models

import (
	"strings"
	"time"
)

type PremiumStatus string

const (
	PremiumFree    PremiumStatus = "free"
	PremiumPremium PremiumStatus = "premium"
)

// User is keyed by the Telegram user id.
type User struct {
	TelegramID       int64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FirstName        string        `gorm:"size:255" json:"firstName"`
	LastName         string        `gorm:"size:255" json:"lastName,omitempty"`
	Username         string        `gorm:"size:255;index" json:"username,omitempty"`
	PhotoURL         string        `gorm:"size:1024" json:"photoUrl,omitempty"`
	LanguageCode     string        `gorm:"size:16" json:"languageCode,omitempty"`
	Birthday         *time.Time    `json:"birthday,omitempty"`
	ReferralCode     string        `gorm:"size:32;uniqueIndex;not null" json:"referralCode"`
	ReferralCount    int           `gorm:"not null;default:0" json:"referrals"`
	BonusPoints      int           `gorm:"not null;default:0" json:"bonusPoints"`
	PremiumStatus    PremiumStatus `gorm:"size:16;not null;default:'free'" json:"premiumStatus"`
	PremiumExpiresAt *time.Time    `json:"premiumExpiresAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		return "@" + u.Username
	}
	if name == "" {
		return "Someone"
	}
	return name
}

func (u User) IsPremium(now time.Time) bool {
	if u.PremiumStatus != PremiumPremium {
		return false
	}
	return u.PremiumExpiresAt == nil || u.PremiumExpiresAt.After(now)
}

// PublicUser is the subset of a profile visible to other users.
type PublicUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photoUrl,omitempty"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.TelegramID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		PhotoURL:  u.PhotoURL,
	}
}
