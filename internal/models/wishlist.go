package models

import (
	"time"
)

type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemReserved  ItemStatus = "reserved"
	ItemPurchased ItemStatus = "purchased"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Wishlist struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	UserID      int64          `gorm:"not null;index" json:"userId"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Description string         `gorm:"size:2000" json:"description,omitempty"`
	ImageURL    string         `gorm:"size:1024" json:"imageUrl,omitempty"`
	EventDate   *time.Time     `json:"eventDate,omitempty"`
	IsPublic    bool           `gorm:"not null" json:"isPublic"`
	IsDefault   bool           `gorm:"not null;default:false" json:"isDefault"`
	Items       []WishlistItem `gorm:"foreignKey:WishlistID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type WishlistItem struct {
	ID           string        `gorm:"primaryKey;size:36" json:"id"`
	WishlistID   string        `gorm:"size:36;not null;index" json:"wishlistId"`
	Name         string        `gorm:"size:500;not null" json:"name"`
	Description  string        `gorm:"size:2000" json:"description,omitempty"`
	URL          string        `gorm:"size:2048" json:"url,omitempty"`
	OriginalURL  string        `gorm:"size:2048" json:"originalUrl,omitempty"`
	AffiliateURL string        `gorm:"size:2048" json:"affiliateUrl,omitempty"`
	ImageURL     string        `gorm:"size:2048" json:"imageUrl,omitempty"`
	Price        *float64      `json:"price,omitempty"`
	Currency     string        `gorm:"size:8;not null;default:'USD'" json:"currency"`
	Priority     Priority      `gorm:"size:16;not null;default:'medium'" json:"priority"`
	Status       ItemStatus    `gorm:"size:16;not null;default:'available';index" json:"status"`
	ReservedBy   *int64        `json:"reservedBy,omitempty"`
	ReservedAt   *time.Time    `json:"reservedAt,omitempty"`
	PurchasedBy  *int64        `json:"purchasedBy,omitempty"`
	PurchasedAt  *time.Time    `json:"purchasedAt,omitempty"`
	Crowdfunding *Crowdfunding `gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE" json:"crowdfunding,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type Crowdfunding struct {
	ID            string                     `gorm:"primaryKey;size:36" json:"id"`
	ItemID        string                     `gorm:"size:36;not null;uniqueIndex" json:"itemId"`
	TargetAmount  float64                    `gorm:"not null" json:"targetAmount"`
	CurrentAmount float64                    `gorm:"not null;default:0" json:"currentAmount"`
	IsActive      bool                       `gorm:"not null;default:true" json:"isActive"`
	Contributors  []CrowdfundingContribution `gorm:"foreignKey:CrowdfundingID;constraint:OnDelete:CASCADE" json:"contributors"`
	CreatedAt     time.Time                  `json:"createdAt"`
}

type CrowdfundingContribution struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	CrowdfundingID string    `gorm:"size:36;not null;index" json:"-"`
	UserID         int64     `gorm:"not null;index" json:"userId"`
	Amount         float64   `gorm:"not null" json:"amount"`
	ContributedAt  time.Time `gorm:"autoCreateTime" json:"contributedAt"`
}
