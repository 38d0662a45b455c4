// Package wishlist manages wishlists, their items, reservations and
// crowdfunding.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/affiliate"
	"wishbucket/internal/database"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("not the owner")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("item status does not allow this")
	ErrOwnItem           = errors.New("cannot reserve or buy your own item")
	ErrCrowdfundingTaken = errors.New("crowdfunding already exists for this item")
	ErrCrowdfundingShut  = errors.New("crowdfunding is not active")
)

type Service struct {
	db          *gorm.DB
	rewriter    *affiliate.Rewriter
	waker       notify.Waker
	botUsername string
	now         func() time.Time
}

func NewService(db *gorm.DB, rewriter *affiliate.Rewriter, waker notify.Waker, botUsername string) *Service {
	return &Service{
		db:          db,
		rewriter:    rewriter,
		waker:       waker,
		botUsername: botUsername,
		now:         time.Now,
	}
}

type CreateInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ImageURL    string     `json:"imageUrl"`
	EventDate   *time.Time `json:"eventDate"`
	IsPublic    *bool      `json:"isPublic"`
	IsDefault   bool       `json:"isDefault"`
}

// UpdateInput carries only the fields to change.
type UpdateInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	ImageURL    *string    `json:"imageUrl"`
	EventDate   *time.Time `json:"eventDate"`
	IsPublic    *bool      `json:"isPublic"`
	IsDefault   *bool      `json:"isDefault"`
}

func (s *Service) wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}

func withItems(q *gorm.DB) *gorm.DB {
	return q.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Preload("Items.Crowdfunding").Preload("Items.Crowdfunding.Contributors")
}

// List returns the wishlists owned by userID, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]models.Wishlist, error) {
	var out []models.Wishlist
	err := withItems(s.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, database.Wrap("list wishlists", err)
	}
	return out, nil
}

// PublicWishlists returns what other users may see of ownerID's wishlists.
func (s *Service) PublicWishlists(ctx context.Context, ownerID int64) ([]models.Wishlist, error) {
	var out []models.Wishlist
	err := withItems(s.db.WithContext(ctx)).
		Where("user_id = ? AND is_public = ?", ownerID, true).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, database.Wrap("list public wishlists", err)
	}
	return out, nil
}

// Get returns a wishlist the viewer may see. Private wishlists of other
// users are reported as missing.
func (s *Service) Get(ctx context.Context, viewerID int64, id string) (*models.Wishlist, error) {
	var wl models.Wishlist
	err := withItems(s.db.WithContext(ctx)).First(&wl, "id = ?", id).Error
	if database.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap("get wishlist", err)
	}
	if wl.UserID != viewerID && !wl.IsPublic {
		return nil, ErrNotFound
	}
	return &wl, nil
}

func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*models.Wishlist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	wl := models.Wishlist{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		EventDate:   in.EventDate,
		IsPublic:    true,
		IsDefault:   in.IsDefault,
	}
	if in.IsPublic != nil {
		wl.IsPublic = *in.IsPublic
	}

	notified := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if err := tx.First(&owner, "telegram_id = ?", userID).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrNotFound
			}
			return database.Wrap("load owner", err)
		}
		if wl.IsDefault {
			if err := clearDefault(tx, userID, ""); err != nil {
				return err
			}
		}
		if err := tx.Create(&wl).Error; err != nil {
			return database.Wrap("create wishlist", err)
		}
		if !wl.IsPublic {
			return nil
		}
		n, err := notify.EnqueueFollowers(tx, userID, notify.Message{
			Type:    models.NotifyWishlistShared,
			Title:   "📝 New Wishlist!",
			Message: fmt.Sprintf("%s created a new wishlist: %q", owner.DisplayName(), wl.Name),
			Data:    map[string]any{"wishlistId": wl.ID, "userId": userID},
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
	log.WithFields(log.Fields{"user_id": userID, "wishlist_id": wl.ID}).Info("Wishlist created")
	wl.Items = []models.WishlistItem{}
	return &wl, nil
}

func clearDefault(tx *gorm.DB, userID int64, keepID string) error {
	q := tx.Model(&models.Wishlist{}).Where("user_id = ? AND is_default = ?", userID, true)
	if keepID != "" {
		q = q.Where("id <> ?", keepID)
	}
	return database.Wrap("clear default wishlist", q.Update("is_default", false).Error)
}

// loadOwned returns the wishlist when userID owns it.
func loadOwned(tx *gorm.DB, userID int64, id string) (*models.Wishlist, error) {
	var wl models.Wishlist
	err := tx.First(&wl, "id = ?", id).Error
	if database.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap("load wishlist", err)
	}
	if wl.UserID != userID {
		return nil, ErrForbidden
	}
	return &wl, nil
}

func (s *Service) Update(ctx context.Context, userID int64, id string, in UpdateInput) (*models.Wishlist, error) {
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
	if in.ImageURL != nil {
		updates["image_url"] = strings.TrimSpace(*in.ImageURL)
	}
	if in.EventDate != nil {
		updates["event_date"] = *in.EventDate
	}
	if in.IsPublic != nil {
		updates["is_public"] = *in.IsPublic
	}
	if in.IsDefault != nil {
		updates["is_default"] = *in.IsDefault
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwned(tx, userID, id); err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if in.IsDefault != nil && *in.IsDefault {
			if err := clearDefault(tx, userID, id); err != nil {
				return err
			}
		}
		return database.Wrap("update wishlist",
			tx.Model(&models.Wishlist{}).Where("id = ?", id).Updates(updates).Error)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Delete removes the wishlist with its items and their crowdfunding.
func (s *Service) Delete(ctx context.Context, userID int64, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOwned(tx, userID, id); err != nil {
			return err
		}
		items := tx.Model(&models.WishlistItem{}).Select("id").Where("wishlist_id = ?", id)
		funds := tx.Model(&models.Crowdfunding{}).Select("id").Where("item_id IN (?)", items)
		if err := tx.Where("crowdfunding_id IN (?)", funds).Delete(&models.CrowdfundingContribution{}).Error; err != nil {
			return database.Wrap("delete contributions", err)
		}
		if err := tx.Where("item_id IN (?)", items).Delete(&models.Crowdfunding{}).Error; err != nil {
			return database.Wrap("delete crowdfunding", err)
		}
		if err := tx.Where("wishlist_id = ?", id).Delete(&models.WishlistItem{}).Error; err != nil {
			return database.Wrap("delete items", err)
		}
		return database.Wrap("delete wishlist", tx.Delete(&models.Wishlist{}, "id = ?", id).Error)
	})
}

// ShareLink returns the bot deep link that opens the wishlist.
func (s *Service) ShareLink(ctx context.Context, viewerID int64, id string) (string, error) {
	if _, err := s.Get(ctx, viewerID, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://t.me/%s?start=wishlist_%s", s.botUsername, id), nil
}
