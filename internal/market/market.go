package market

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wishbucket/internal/database"
	"wishbucket/internal/metrics"
	"wishbucket/internal/models"
)

var (
	ErrUnknownItem        = errors.New("unknown market item")
	ErrUnknownUser        = errors.New("user not found")
	ErrLocked             = errors.New("item is locked")
	ErrAlreadyOwned       = errors.New("item already owned")
	ErrOutOfStock         = errors.New("item is out of stock")
	ErrInsufficientPoints = errors.New("not enough points")
)

// Offer is a catalog item as seen by one user.
type Offer struct {
	Item
	Remaining   *int   `json:"remaining,omitempty"`
	Owned       bool   `json:"owned"`
	Locked      bool   `json:"locked"`
	CanPurchase bool   `json:"canPurchase"`
	Reason      string `json:"reason,omitempty"`
}

type Storefront struct {
	Points     int        `json:"points"`
	Categories []Category `json:"categories"`
	Offers     []Offer    `json:"items"`
}

type Receipt struct {
	Purchase models.MarketPurchase `json:"purchase"`
	Item     Item                  `json:"item"`
	Balance  int                   `json:"balance"`
}

type Service struct {
	db      *gorm.DB
	catalog *Catalog
}

func NewService(db *gorm.DB, catalog *Catalog) *Service {
	return &Service{db: db, catalog: catalog}
}

// Storefront lists active items with the user's lock, ownership and stock state.
func (s *Service) Storefront(ctx context.Context, userID int64) (*Storefront, error) {
	db := s.db.WithContext(ctx)
	var u models.User
	if err := db.First(&u, "telegram_id = ?", userID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUnknownUser
		}
		return nil, database.Wrap("load user", err)
	}

	var sold []struct {
		ItemID string
		Total  int
		Mine   int
	}
	err := db.Model(&models.MarketPurchase{}).
		Select("item_id, COUNT(*) AS total, SUM(CASE WHEN user_id = ? THEN 1 ELSE 0 END) AS mine", userID).
		Group("item_id").
		Scan(&sold).Error
	if err != nil {
		return nil, database.Wrap("count purchases", err)
	}
	total := make(map[string]int, len(sold))
	mine := make(map[string]int, len(sold))
	for _, row := range sold {
		total[row.ItemID] = row.Total
		mine[row.ItemID] = row.Mine
	}

	items := s.catalog.Items()
	front := &Storefront{Points: u.BonusPoints, Categories: s.catalog.Categories(), Offers: make([]Offer, 0, len(items))}
	for _, it := range items {
		o := Offer{Item: it, Owned: mine[it.ID] > 0}
		if it.Stock != nil {
			left := max(*it.Stock-total[it.ID], 0)
			o.Remaining = &left
		}
		switch {
		case u.BonusPoints < it.UnlockThreshold:
			o.Locked = true
			o.Reason = fmt.Sprintf("Requires %d points to unlock", it.UnlockThreshold)
		case o.Owned && !it.Repeatable:
			o.Reason = "Already owned"
		case o.Remaining != nil && *o.Remaining == 0:
			o.Reason = "Out of stock"
		case u.BonusPoints < it.PointsCost:
			o.Reason = fmt.Sprintf("Not enough points (need %d)", it.PointsCost)
		default:
			o.CanPurchase = true
		}
		front.Offers = append(front.Offers, o)
	}
	return front, nil
}

// Purchase spends the item's cost from userID's balance. The balance never
// goes below zero.
func (s *Service) Purchase(ctx context.Context, userID int64, itemID string) (*Receipt, error) {
	item, ok := s.catalog.Lookup(itemID)
	if !ok {
		return nil, ErrUnknownItem
	}

	var receipt Receipt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The row lock serialises purchases by the same user.
		var u models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "telegram_id = ?", userID).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrUnknownUser
			}
			return database.Wrap("load user", err)
		}
		if u.BonusPoints < item.UnlockThreshold {
			return ErrLocked
		}
		if !item.Repeatable {
			var owned int64
			if err := tx.Model(&models.MarketPurchase{}).Where("user_id = ? AND item_id = ?", userID, item.ID).Count(&owned).Error; err != nil {
				return database.Wrap("check ownership", err)
			}
			if owned > 0 {
				return ErrAlreadyOwned
			}
		}
		if item.Stock != nil {
			if err := claimStock(tx, item.ID, *item.Stock); err != nil {
				return err
			}
		}

		res := tx.Model(&models.User{}).
			Where("telegram_id = ? AND bonus_points >= ?", userID, item.PointsCost).
			UpdateColumn("bonus_points", gorm.Expr("bonus_points - ?", item.PointsCost))
		if res.Error != nil {
			return database.Wrap("debit points", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrInsufficientPoints
		}

		receipt.Purchase = models.MarketPurchase{UserID: userID, ItemID: item.ID, PointsSpent: item.PointsCost}
		if err := tx.Create(&receipt.Purchase).Error; err != nil {
			return database.Wrap("record purchase", err)
		}
		return database.Wrap("read balance",
			tx.Model(&models.User{}).Select("bonus_points").Where("telegram_id = ?", userID).Scan(&receipt.Balance).Error)
	})
	if err != nil {
		return nil, err
	}
	receipt.Item = item
	metrics.MarketPurchases.WithLabelValues(item.ID).Inc()
	log.WithFields(log.Fields{"user_id": userID, "item": item.ID, "cost": item.PointsCost}).Info("Market purchase")
	return &receipt, nil
}

// claimStock takes one unit of itemID with a conditional increment, so
// concurrent buyers cannot oversell it.
func claimStock(tx *gorm.DB, itemID string, stock int) error {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.MarketStock{ItemID: itemID}).Error; err != nil {
		return database.Wrap("init stock", err)
	}
	res := tx.Model(&models.MarketStock{}).
		Where("item_id = ? AND sold < ?", itemID, stock).
		UpdateColumn("sold", gorm.Expr("sold + 1"))
	if res.Error != nil {
		return database.Wrap("claim stock", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrOutOfStock
	}
	return nil
}

// History lists userID's purchases, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]models.MarketPurchase, error) {
	var out []models.MarketPurchase
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error
	return out, database.Wrap("list purchases", err)
}
