// Package payment sells premium through YooKassa and applies confirmed
// payments.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/config"
	"wishbucket/internal/database"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

var (
	ErrNotConfigured = errors.New("payments are not configured")
	ErrBadMetadata   = errors.New("payment metadata is incomplete")
	ErrUnknownUser   = errors.New("user not found")
)

type Checkout struct {
	PaymentID       string `json:"paymentId"`
	ConfirmationURL string `json:"confirmationUrl"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Days            int    `json:"days"`
}

type Service struct {
	db        *gorm.DB
	client    *Client
	waker     notify.Waker
	price     string
	currency  string
	days      int
	returnURL string
	now       func() time.Time
}

func NewService(db *gorm.DB, client *Client, cfg *config.Config, waker notify.Waker) *Service {
	return &Service{
		db:        db,
		client:    client,
		waker:     waker,
		price:     cfg.PremiumPrice,
		currency:  cfg.PremiumCurrency,
		days:      cfg.PremiumDays,
		returnURL: cfg.WebAppURL,
		now:       time.Now,
	}
}

// Checkout creates a YooKassa payment for premium and records it as pending.
func (s *Service) Checkout(ctx context.Context, userID int64) (*Checkout, error) {
	if !s.client.Configured() {
		return nil, ErrNotConfigured
	}
	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("telegram_id = ?", userID).Count(&exists).Error; err != nil {
		return nil, database.Wrap("check user", err)
	}
	if exists == 0 {
		return nil, ErrUnknownUser
	}

	resp, err := s.client.CreatePayment(ctx, CreatePaymentRequest{
		Amount:  Amount{Value: s.price, Currency: s.currency},
		Capture: true,
		Confirmation: Confirmation{
			Type:      "redirect",
			ReturnURL: s.returnURL,
		},
		Description: fmt.Sprintf("WishBucket Premium, %d days", s.days),
		Metadata: map[string]string{
			metaTelegramID: strconv.FormatInt(userID, 10),
			metaType:       models.PaymentTypePremium,
			metaDays:       strconv.Itoa(s.days),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create yookassa payment: %w", err)
	}

	amount, _ := strconv.ParseFloat(s.price, 64)
	p := models.Payment{
		UserID:     userID,
		Amount:     amount,
		Currency:   s.currency,
		Status:     models.PaymentPending,
		Type:       models.PaymentTypePremium,
		Days:       s.days,
		ProviderID: resp.ID,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, database.Wrap("record payment", err)
	}
	log.WithFields(log.Fields{"user_id": userID, "payment_id": resp.ID}).Info("Premium checkout created")

	return &Checkout{
		PaymentID:       resp.ID,
		ConfirmationURL: resp.Confirmation.ConfirmationURL,
		Amount:          s.price,
		Currency:        s.currency,
		Days:            s.days,
	}, nil
}

// ApplySucceeded grants premium for a confirmed payment. Repeated
// notifications for the same payment change nothing.
func (s *Service) ApplySucceeded(ctx context.Context, obj WebhookObject) error {
	userID, err := strconv.ParseInt(obj.Metadata[metaTelegramID], 10, 64)
	if err != nil || userID == 0 {
		return fmt.Errorf("%w: telegram_id", ErrBadMetadata)
	}
	days, err := strconv.Atoi(obj.Metadata[metaDays])
	if err != nil || days <= 0 {
		days = s.days
	}
	amount, _ := strconv.ParseFloat(obj.Amount.Value, 64)

	applied := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		err := tx.Where("provider_id = ?", obj.ID).First(&p).Error
		if database.IsNotFound(err) {
			p = models.Payment{
				UserID:     userID,
				Amount:     amount,
				Currency:   obj.Amount.Currency,
				Status:     models.PaymentPending,
				Type:       models.PaymentTypePremium,
				Days:       days,
				ProviderID: obj.ID,
			}
			if err := tx.Create(&p).Error; err != nil {
				return database.Wrap("record payment", err)
			}
		} else if err != nil {
			return database.Wrap("load payment", err)
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", p.ID, models.PaymentPending).
			Update("status", models.PaymentSucceeded)
		if res.Error != nil {
			return database.Wrap("mark payment", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var u models.User
		if err := tx.First(&u, "telegram_id = ?", p.UserID).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrUnknownUser
			}
			return database.Wrap("load user", err)
		}
		now := s.now()
		from := now
		if u.IsPremium(now) && u.PremiumExpiresAt != nil {
			from = *u.PremiumExpiresAt
		}
		expires := from.AddDate(0, 0, p.Days)
		err = tx.Model(&models.User{}).Where("telegram_id = ?", u.TelegramID).Updates(map[string]any{
			"premium_status":     models.PremiumPremium,
			"premium_expires_at": expires,
		}).Error
		if err != nil {
			return database.Wrap("grant premium", err)
		}
		_, err = notify.Enqueue(tx, notify.Message{
			UserID:  u.TelegramID,
			Type:    models.NotifyPremium,
			Title:   "⭐ Premium Activated!",
			Message: fmt.Sprintf("Thank you! Premium is active until %s.", expires.Format("2 Jan 2006")),
			Data:    map[string]any{"expiresAt": expires.Format(time.RFC3339)},
		})
		applied = err == nil
		return err
	})
	if err != nil {
		return err
	}
	if applied {
		if s.waker != nil {
			s.waker.Wake()
		}
		log.WithFields(log.Fields{"user_id": userID, "payment_id": obj.ID}).Info("Premium granted")
	}
	return nil
}

// ApplyCanceled marks a pending payment canceled.
func (s *Service) ApplyCanceled(ctx context.Context, obj WebhookObject) error {
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("provider_id = ? AND status = ?", obj.ID, models.PaymentPending).
		Update("status", models.PaymentCanceled).Error
	return database.Wrap("cancel payment", err)
}
