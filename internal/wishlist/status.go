package wishlist

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

// Reservations and purchases stay anonymous towards the owner so the gift
// remains a surprise.

// Reserve moves an available item to reserved by userID.
func (s *Service) Reserve(ctx context.Context, userID int64, itemID string) (*models.WishlistItem, error) {
	item, err := s.transition(ctx, userID, itemID, func(tx *gorm.DB, it *models.WishlistItem, wl *models.Wishlist) (notify.Message, error) {
		now := s.now()
		res := tx.Model(&models.WishlistItem{}).
			Where("id = ? AND status = ?", it.ID, models.ItemAvailable).
			Updates(map[string]any{
				"status":      models.ItemReserved,
				"reserved_by": userID,
				"reserved_at": now,
			})
		if res.Error != nil {
			return notify.Message{}, database.Wrap("reserve item", res.Error)
		}
		if res.RowsAffected != 1 {
			return notify.Message{}, ErrInvalidTransition
		}
		return notify.Message{
			UserID:  wl.UserID,
			Type:    models.NotifyItemReserved,
			Title:   "🎁 Item Reserved",
			Message: fmt.Sprintf("Someone reserved %q from your wishlist %q", it.Name, wl.Name),
			Data:    map[string]any{"wishlistId": wl.ID, "itemId": it.ID},
		}, nil
	})
	if err == nil {
		log.WithFields(log.Fields{"user_id": userID, "item_id": itemID}).Info("Item reserved")
	}
	return item, err
}

// Unreserve releases a reservation. Only the reserver may do so.
func (s *Service) Unreserve(ctx context.Context, userID int64, itemID string) (*models.WishlistItem, error) {
	return s.transition(ctx, userID, itemID, func(tx *gorm.DB, it *models.WishlistItem, _ *models.Wishlist) (notify.Message, error) {
		if it.Status == models.ItemReserved && (it.ReservedBy == nil || *it.ReservedBy != userID) {
			return notify.Message{}, ErrForbidden
		}
		res := tx.Model(&models.WishlistItem{}).
			Where("id = ? AND status = ? AND reserved_by = ?", it.ID, models.ItemReserved, userID).
			Updates(map[string]any{
				"status":      models.ItemAvailable,
				"reserved_by": nil,
				"reserved_at": nil,
			})
		if res.Error != nil {
			return notify.Message{}, database.Wrap("unreserve item", res.Error)
		}
		if res.RowsAffected != 1 {
			return notify.Message{}, ErrInvalidTransition
		}
		return notify.Message{}, nil
	})
}

// Purchase marks an item bought. An item reserved by somebody else cannot be
// purchased.
func (s *Service) Purchase(ctx context.Context, userID int64, itemID string) (*models.WishlistItem, error) {
	item, err := s.transition(ctx, userID, itemID, func(tx *gorm.DB, it *models.WishlistItem, wl *models.Wishlist) (notify.Message, error) {
		now := s.now()
		res := tx.Model(&models.WishlistItem{}).
			Where("id = ? AND (status = ? OR (status = ? AND reserved_by = ?))",
				it.ID, models.ItemAvailable, models.ItemReserved, userID).
			Updates(map[string]any{
				"status":       models.ItemPurchased,
				"purchased_by": userID,
				"purchased_at": now,
			})
		if res.Error != nil {
			return notify.Message{}, database.Wrap("purchase item", res.Error)
		}
		if res.RowsAffected != 1 {
			return notify.Message{}, ErrInvalidTransition
		}
		return notify.Message{
			UserID:  wl.UserID,
			Type:    models.NotifyItemPurchased,
			Title:   "✅ Item Purchased",
			Message: fmt.Sprintf("Someone bought %q from your wishlist %q", it.Name, wl.Name),
			Data:    map[string]any{"wishlistId": wl.ID, "itemId": it.ID},
		}, nil
	})
	if err == nil {
		log.WithFields(log.Fields{"user_id": userID, "item_id": itemID}).Info("Item purchased")
	}
	return item, err
}

type transitionFunc func(tx *gorm.DB, it *models.WishlistItem, wl *models.Wishlist) (notify.Message, error)

// transition runs fn for a visible item not owned by userID and stores the
// returned message, if any, in the same transaction.
func (s *Service) transition(ctx context.Context, userID int64, itemID string, fn transitionFunc) (*models.WishlistItem, error) {
	var item models.WishlistItem
	queued := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		it, wl, err := loadVisibleItem(tx, userID, itemID)
		if err != nil {
			return err
		}
		if wl.UserID == userID {
			return ErrOwnItem
		}
		msg, err := fn(tx, it, wl)
		if err != nil {
			return err
		}
		if msg.Type != "" {
			if _, err := notify.Enqueue(tx, msg); err != nil {
				return err
			}
			queued = true
		}
		return database.Wrap("reload item", tx.First(&item, "id = ?", itemID).Error)
	})
	if err != nil {
		return nil, err
	}
	if queued {
		s.wake()
	}
	return &item, nil
}
