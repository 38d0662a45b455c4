package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newID fills an empty string primary key before insert.
func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (w *Wishlist) BeforeCreate(*gorm.DB) error {
	newID(&w.ID)
	return nil
}

func (i *WishlistItem) BeforeCreate(*gorm.DB) error {
	newID(&i.ID)
	return nil
}

func (c *Crowdfunding) BeforeCreate(*gorm.DB) error {
	newID(&c.ID)
	return nil
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	newID(&n.ID)
	return nil
}

func (s *SecretSanta) BeforeCreate(*gorm.DB) error {
	newID(&s.ID)
	return nil
}

func (h *GiftHint) BeforeCreate(*gorm.DB) error {
	newID(&h.ID)
	return nil
}

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&User{},
		&ReferralRedemption{},
		&Friend{},
		&Wishlist{},
		&WishlistItem{},
		&Crowdfunding{},
		&CrowdfundingContribution{},
		&Notification{},
		&MarketPurchase{},
		&MarketStock{},
		&SecretSanta{},
		&SecretSantaParticipant{},
		&GiftHint{},
		&Payment{},
	}
}
