package models

import (
	"time"
)

type HintStatus string

const (
	HintActive    HintStatus = "active"
	HintPurchased HintStatus = "purchased"
	HintArchived  HintStatus = "archived"
)

type GiftHint struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserID            int64      `gorm:"not null;index" json:"userId"`
	AboutUserID       *int64     `json:"aboutUserId,omitempty"`
	AboutName         string     `gorm:"size:255;not null" json:"aboutName"`
	AboutUsername     string     `gorm:"size:255" json:"aboutUsername,omitempty"`
	HintText          string     `gorm:"size:4096" json:"hintText,omitempty"`
	MessageType       string     `gorm:"size:16;not null;default:'text'" json:"messageType"`
	MediaFileID       string     `gorm:"size:255" json:"mediaFileId,omitempty"`
	TelegramMessageID int        `json:"telegramMessageId,omitempty"`
	TelegramChatID    int64      `json:"telegramChatId,omitempty"`
	ForwardDate       *time.Time `json:"forwardDate,omitempty"`
	Status            HintStatus `gorm:"size:16;not null;default:'active';index" json:"status"`
	Notes             string     `gorm:"size:2000" json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
