package models

import (
	"time"
)

type MarketPurchase struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      int64     `gorm:"not null;index:idx_market_user_item" json:"userId"`
	ItemID      string    `gorm:"size:64;not null;index:idx_market_user_item;index" json:"itemId"`
	PointsSpent int       `gorm:"not null" json:"pointsSpent"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MarketStock counts units sold of a limited catalog item.
type MarketStock struct {
	ItemID string `gorm:"primaryKey;size:64"`
	Sold   int    `gorm:"not null;default:0"`
}
