package models

import (
	"time"
)

type SecretSanta struct {
	ID           string                   `gorm:"primaryKey;size:36" json:"id"`
	OrganizerID  int64                    `gorm:"not null;index" json:"organizerId"`
	Name         string                   `gorm:"size:255;not null" json:"name"`
	Description  string                   `gorm:"size:2000" json:"description,omitempty"`
	Budget       *float64                 `json:"budget,omitempty"`
	ExchangeDate *time.Time               `json:"exchangeDate,omitempty"`
	IsActive     bool                     `gorm:"not null;default:true" json:"isActive"`
	IsDrawn      bool                     `gorm:"not null;default:false" json:"isDrawn"`
	Participants []SecretSantaParticipant `gorm:"foreignKey:SantaID;constraint:OnDelete:CASCADE" json:"participants"`
	CreatedAt    time.Time                `json:"createdAt"`
}

type SecretSantaParticipant struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	SantaID    string    `gorm:"size:36;not null;uniqueIndex:idx_santa_member" json:"santaId"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_santa_member;index" json:"userId"`
	ReceiverID *int64    `json:"-"`
	JoinedAt   time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}
