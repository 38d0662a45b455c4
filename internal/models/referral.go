package models

import (
	"time"
)

// ReferralRedemption is written once per redeemer and never changed.
type ReferralRedemption struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	IssuerID      int64     `gorm:"not null;index" json:"issuerId"`
	RedeemerID    int64     `gorm:"not null;uniqueIndex" json:"redeemerId"`
	IssuerBonus   int       `gorm:"not null" json:"issuerBonus"`
	RedeemerBonus int       `gorm:"not null" json:"redeemerBonus"`
	CreatedAt     time.Time `json:"createdAt"`
}
