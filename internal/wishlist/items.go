package wishlist

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

const defaultCurrency = "USD"

type ItemInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	URL         string          `json:"url"`
	ImageURL    string          `json:"imageUrl"`
	Price       *float64        `json:"price"`
	Currency    string          `json:"currency"`
	Priority    models.Priority `json:"priority"`
}

type ItemUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	URL         *string          `json:"url"`
	ImageURL    *string          `json:"imageUrl"`
	Price       *float64         `json:"price"`
	Currency    *string          `json:"currency"`
	Priority    *models.Priority `json:"priority"`
}

func validPriority(p models.Priority) bool {
	switch p {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
		return true
	}
	return false
}

// links fills url, original_url and affiliate_url from a user supplied link.
func (s *Service) links(raw string) (link, original, tagged string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || s.rewriter == nil {
		return raw, raw, ""
	}
	res := s.rewriter.Process(raw)
	if res.HasAffiliate {
		return res.URL, raw, res.URL
	}
	return raw, raw, ""
}

// AddItem appends an item to a wishlist owned by userID. Links to known
// shops get the affiliate parameter; followers hear about items on public
// wishlists.
func (s *Service) AddItem(ctx context.Context, userID int64, wishlistID string, in ItemInput) (*models.WishlistItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Price != nil && *in.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !validPriority(priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	item := models.WishlistItem{
		WishlistID:  wishlistID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Price:       in.Price,
		Currency:    currency,
		Priority:    priority,
		Status:      models.ItemAvailable,
	}
	item.URL, item.OriginalURL, item.AffiliateURL = s.links(in.URL)

	notified := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wl, err := loadOwned(tx, userID, wishlistID)
		if err != nil {
			return err
		}
		if err := tx.Create(&item).Error; err != nil {
			return database.Wrap("create item", err)
		}
		if !wl.IsPublic {
			return nil
		}
		var owner models.User
		if err := tx.First(&owner, "telegram_id = ?", userID).Error; err != nil {
			return database.Wrap("load owner", err)
		}
		n, err := notify.EnqueueFollowers(tx, userID, notify.Message{
			Type:    models.NotifyFriendAddedItem,
			Title:   "✨ New Item Added!",
			Message: fmt.Sprintf("%s added %q to their wishlist %q", owner.DisplayName(), item.Name, wl.Name),
			Data:    map[string]any{"wishlistId": wl.ID, "itemId": item.ID, "userId": userID},
		})
		notified = n
		return err
	})
	if err != nil {
		return nil, err
	}
	if notified > 0 {
		s.wake()
	}
	log.WithFields(log.Fields{
		"user_id":   userID,
		"item_id":   item.ID,
		"affiliate": item.AffiliateURL != "",
	}).Info("Wishlist item added")
	return &item, nil
}

// loadItem returns the item and the wishlist that holds it.
func loadItem(tx *gorm.DB, itemID string) (*models.WishlistItem, *models.Wishlist, error) {
	var item models.WishlistItem
	err := tx.First(&item, "id = ?", itemID).Error
	if database.IsNotFound(err) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, database.Wrap("load item", err)
	}
	var wl models.Wishlist
	if err := tx.First(&wl, "id = ?", item.WishlistID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, database.Wrap("load wishlist", err)
	}
	return &item, &wl, nil
}

// loadVisibleItem hides items on other users' private wishlists.
func loadVisibleItem(tx *gorm.DB, viewerID int64, itemID string) (*models.WishlistItem, *models.Wishlist, error) {
	item, wl, err := loadItem(tx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if wl.UserID != viewerID && !wl.IsPublic {
		return nil, nil, ErrNotFound
	}
	return item, wl, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID int64, itemID string, in ItemUpdate) (*models.WishlistItem, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.URL != nil {
		link, original, tagged := s.links(*in.URL)
		updates["url"] = link
		updates["original_url"] = original
		updates["affiliate_url"] = tagged
	}
	if in.ImageURL != nil {
		updates["image_url"] = strings.TrimSpace(*in.ImageURL)
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
		}
		updates["price"] = *in.Price
	}
	if in.Currency != nil {
		if c := strings.ToUpper(strings.TrimSpace(*in.Currency)); c != "" {
			updates["currency"] = c
		}
	}
	if in.Priority != nil {
		if !validPriority(*in.Priority) {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *in.Priority)
		}
		updates["priority"] = *in.Priority
	}

	var item *models.WishlistItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		it, wl, err := loadItem(tx, itemID)
		if err != nil {
			return err
		}
		if wl.UserID != userID {
			return ErrForbidden
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.WishlistItem{}).Where("id = ?", itemID).Updates(updates).Error; err != nil {
				return database.Wrap("update item", err)
			}
			if err := tx.First(it, "id = ?", itemID).Error; err != nil {
				return database.Wrap("reload item", err)
			}
		}
		item = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, userID int64, itemID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, wl, err := loadItem(tx, itemID)
		if err != nil {
			return err
		}
		if wl.UserID != userID {
			return ErrForbidden
		}
		funds := tx.Model(&models.Crowdfunding{}).Select("id").Where("item_id = ?", itemID)
		if err := tx.Where("crowdfunding_id IN (?)", funds).Delete(&models.CrowdfundingContribution{}).Error; err != nil {
			return database.Wrap("delete contributions", err)
		}
		if err := tx.Where("item_id = ?", itemID).Delete(&models.Crowdfunding{}).Error; err != nil {
			return database.Wrap("delete crowdfunding", err)
		}
		return database.Wrap("delete item", tx.Delete(&models.WishlistItem{}, "id = ?", itemID).Error)
	})
}
