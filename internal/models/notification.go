package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotifyNewFollower      NotificationType = "new_follower"
	NotifyItemReserved     NotificationType = "item_reserved"
	NotifyItemPurchased    NotificationType = "item_purchased"
	NotifyWishlistShared   NotificationType = "wishlist_shared"
	NotifyFriendAddedItem  NotificationType = "friend_added_item"
	NotifyBirthdayReminder NotificationType = "birthday_reminder"
	NotifyReferralSignup   NotificationType = "referral_signup"
	NotifyCrowdfunding     NotificationType = "crowdfunding_contribution"
	NotifySecretSanta      NotificationType = "secret_santa_drawn"
	NotifyPremium          NotificationType = "premium"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySending DeliveryStatus = "sending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Notification is both the inbox entry and the outbox row for Telegram delivery.
type Notification struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	UserID         int64            `gorm:"not null;index" json:"userId"`
	Type           NotificationType `gorm:"size:64;not null" json:"type"`
	Title          string           `gorm:"size:255;not null" json:"title"`
	Message        string           `gorm:"size:2000;not null" json:"message"`
	Data           datatypes.JSON   `json:"data,omitempty"`
	Read           bool             `gorm:"not null;default:false;index" json:"read"`
	ReadAt         *time.Time       `json:"readAt,omitempty"`
	DeliveryStatus DeliveryStatus   `gorm:"size:16;not null;default:'pending';index" json:"-"`
	Attempts       int              `gorm:"not null;default:0" json:"-"`
	LastError      string           `gorm:"size:1000" json:"-"`
	ClaimedAt      *time.Time       `json:"-"`
	ClaimToken     string           `gorm:"size:36;index" json:"-"`
	SentAt         *time.Time       `json:"-"`
	CreatedAt      time.Time        `gorm:"index" json:"createdAt"`
}
