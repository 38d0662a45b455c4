package wishlist

import (
	"context"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

// StartCrowdfunding opens a collection for an item owned by userID.
func (s *Service) StartCrowdfunding(ctx context.Context, userID int64, itemID string, target float64) (*models.Crowdfunding, error) {
	if target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, fmt.Errorf("%w: target amount must be positive", ErrInvalidInput)
	}
	cf := models.Crowdfunding{ItemID: itemID, TargetAmount: target, IsActive: true}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		it, wl, err := loadItem(tx, itemID)
		if err != nil {
			return err
		}
		if wl.UserID != userID {
			return ErrForbidden
		}
		if it.Status == models.ItemPurchased {
			return ErrInvalidTransition
		}
		if err := tx.Create(&cf).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrCrowdfundingTaken
			}
			return database.Wrap("create crowdfunding", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cf.Contributors = []models.CrowdfundingContribution{}
	return &cf, nil
}

// Contribute adds amount from userID to the item's active crowdfunding. The
// collection closes once the target is reached.
func (s *Service) Contribute(ctx context.Context, userID int64, itemID string, amount float64) (*models.Crowdfunding, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	var cf models.Crowdfunding
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		it, wl, err := loadVisibleItem(tx, userID, itemID)
		if err != nil {
			return err
		}
		if err := tx.First(&cf, "item_id = ?", itemID).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrNotFound
			}
			return database.Wrap("load crowdfunding", err)
		}

		res := tx.Model(&models.Crowdfunding{}).
			Where("id = ? AND is_active = ?", cf.ID, true).
			UpdateColumn("current_amount", gorm.Expr("current_amount + ?", amount))
		if res.Error != nil {
			return database.Wrap("add contribution", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrCrowdfundingShut
		}
		contribution := models.CrowdfundingContribution{CrowdfundingID: cf.ID, UserID: userID, Amount: amount}
		if err := tx.Create(&contribution).Error; err != nil {
			return database.Wrap("record contribution", err)
		}
		err = tx.Model(&models.Crowdfunding{}).
			Where("id = ? AND current_amount >= target_amount", cf.ID).
			UpdateColumn("is_active", false).Error
		if err != nil {
			return database.Wrap("close crowdfunding", err)
		}

		if err := tx.Preload("Contributors").First(&cf, "id = ?", cf.ID).Error; err != nil {
			return database.Wrap("reload crowdfunding", err)
		}
		if wl.UserID == userID {
			return nil
		}
		_, err = notify.Enqueue(tx, notify.Message{
			UserID:  wl.UserID,
			Type:    models.NotifyCrowdfunding,
			Title:   "💰 New Contribution!",
			Message: fmt.Sprintf("Someone chipped in for %q: %.2f of %.2f collected", it.Name, cf.CurrentAmount, cf.TargetAmount),
			Data:    map[string]any{"wishlistId": wl.ID, "itemId": it.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.wake()
	log.WithFields(log.Fields{"user_id": userID, "item_id": itemID, "amount": amount}).Info("Crowdfunding contribution")
	return &cf, nil
}
