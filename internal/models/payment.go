package models

import (
	"time"
)

const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"

	PaymentTypePremium = "premium"
)

type Payment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     int64     `gorm:"not null;index" json:"userId"`
	Amount     float64   `gorm:"not null" json:"amount"`
	Currency   string    `gorm:"size:8;not null" json:"currency"`
	Status     string    `gorm:"size:32;default:'pending'" json:"status"`
	Type       string    `gorm:"size:32;not null" json:"type"`
	Days       int       `gorm:"not null;default:0" json:"days"`
	ProviderID string    `gorm:"size:255;uniqueIndex" json:"providerId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
