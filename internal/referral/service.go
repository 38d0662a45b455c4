// Package referral implements the referral ledger: code registry,
// redemption guard and the atomic bonus credit.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"wishbucket/internal/config"
	"wishbucket/internal/database"
	"wishbucket/internal/metrics"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

type Result struct {
	Success       bool `json:"success"`
	BonusCredited int  `json:"bonus"`
}

type Stats struct {
	ReferralCode     string `json:"referralCode"`
	TotalReferrals   int    `json:"totalReferrals"`
	ActiveReferrals  int64  `json:"activeReferrals"`
	TotalBonusEarned int64  `json:"totalBonusEarned"`
	ReferralLink     string `json:"referralLink"`
}

// Referral is one redemption as seen by its issuer.
type Referral struct {
	ID          uint              `json:"id"`
	RedeemerID  int64             `json:"referredUserId"`
	Redeemer    models.PublicUser `json:"referredUser"`
	BonusEarned int               `json:"bonusEarned"`
	RedeemedAt  time.Time         `json:"createdAt"`
}

type Service struct {
	db            *gorm.DB
	registry      *Registry
	waker         notify.Waker
	issuerBonus   int
	redeemerBonus int
	link          func(code string) string
}

func NewService(db *gorm.DB, cfg *config.Config, waker notify.Waker) *Service {
	return &Service{
		db:            db,
		registry:      NewRegistry(db),
		waker:         waker,
		issuerBonus:   cfg.ReferralIssuerBonus,
		redeemerBonus: cfg.ReferralRedeemerBonus,
		link:          cfg.ReferralLink,
	}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Apply redeems code for redeemerID. The guard checks, both credits, the
// redemption row and the issuer notification commit together or not at all.
func (s *Service) Apply(ctx context.Context, redeemerID int64, code string) (Result, error) {
	logger := log.WithFields(log.Fields{"redeemer_id": redeemerID, "code": NormalizeCode(code)})

	var issuerID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		issuerID, err = lookupIssuer(tx, code)
		if err != nil {
			return err
		}
		if issuerID == redeemerID {
			return ErrSelfReferral
		}

		var redeemed int64
		if err := tx.Model(&models.ReferralRedemption{}).Where("redeemer_id = ?", redeemerID).Count(&redeemed).Error; err != nil {
			return database.Wrap("check redemption", err)
		}
		if redeemed > 0 {
			return ErrAlreadyRedeemed
		}

		var redeemer models.User
		if err := tx.Where("telegram_id = ?", redeemerID).First(&redeemer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownUser
			}
			return database.Wrap("load redeemer", err)
		}

		redemption := models.ReferralRedemption{
			IssuerID:      issuerID,
			RedeemerID:    redeemerID,
			IssuerBonus:   s.issuerBonus,
			RedeemerBonus: s.redeemerBonus,
		}
		if err := tx.Create(&redemption).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadyRedeemed
			}
			return database.Wrap("insert redemption", err)
		}

		if err := credit(tx, issuerID, map[string]any{
			"referral_count": gorm.Expr("referral_count + ?", 1),
			"bonus_points":   gorm.Expr("bonus_points + ?", s.issuerBonus),
		}); err != nil {
			return err
		}
		if err := credit(tx, redeemerID, map[string]any{
			"bonus_points": gorm.Expr("bonus_points + ?", s.redeemerBonus),
		}); err != nil {
			return err
		}

		_, err = notify.Enqueue(tx, notify.Message{
			UserID:  issuerID,
			Type:    models.NotifyReferralSignup,
			Title:   "🎉 New Referral!",
			Message: fmt.Sprintf("%s joined using your referral code! You earned %d bonus points.", redeemer.DisplayName(), s.issuerBonus),
			Data:    map[string]any{"redeemerId": redeemerID, "bonus": s.issuerBonus},
		})
		return err
	})
	if err != nil {
		metrics.ReferralRedemptions.WithLabelValues(resultLabel(err)).Inc()
		logger.Warnf("Referral redemption rejected: %v", err)
		return Result{}, err
	}

	metrics.ReferralRedemptions.WithLabelValues("success").Inc()
	logger.WithField("issuer_id", issuerID).Info("Referral redeemed")
	if s.waker != nil {
		s.waker.Wake()
	}
	return Result{Success: true, BonusCredited: s.redeemerBonus}, nil
}

func credit(tx *gorm.DB, userID int64, updates map[string]any) error {
	res := tx.Model(&models.User{}).Where("telegram_id = ?", userID).UpdateColumns(updates)
	if res.Error != nil {
		return database.Wrap("credit bonus", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrUnknownUser
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrSelfReferral):
		return "self_referral"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "already_redeemed"
	default:
		return "error"
	}
}

func (s *Service) Stats(ctx context.Context, userID int64) (*Stats, error) {
	db := s.db.WithContext(ctx)
	var u models.User
	if err := db.Where("telegram_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, database.Wrap("load referral stats", err)
	}

	var agg struct {
		Count int64
		Bonus int64
	}
	err := db.Model(&models.ReferralRedemption{}).
		Select("COUNT(*) AS count, COALESCE(SUM(issuer_bonus), 0) AS bonus").
		Where("issuer_id = ?", userID).
		Scan(&agg).Error
	if err != nil {
		return nil, database.Wrap("aggregate referrals", err)
	}

	return &Stats{
		ReferralCode:     u.ReferralCode,
		TotalReferrals:   u.ReferralCount,
		ActiveReferrals:  agg.Count,
		TotalBonusEarned: agg.Bonus,
		ReferralLink:     s.link(u.ReferralCode),
	}, nil
}

// List returns the redemptions of userID's code, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]Referral, error) {
	db := s.db.WithContext(ctx)
	var rows []models.ReferralRedemption
	if err := db.Where("issuer_id = ?", userID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, database.Wrap("list referrals", err)
	}
	if len(rows) == 0 {
		return []Referral{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.RedeemerID)
	}
	var users []models.User
	if err := db.Where("telegram_id IN ?", ids).Find(&users).Error; err != nil {
		return nil, database.Wrap("load referred users", err)
	}
	byID := make(map[int64]models.User, len(users))
	for _, u := range users {
		byID[u.TelegramID] = u
	}

	out := make([]Referral, 0, len(rows))
	for _, r := range rows {
		out = append(out, Referral{
			ID:          r.ID,
			RedeemerID:  r.RedeemerID,
			Redeemer:    byID[r.RedeemerID].Public(),
			BonusEarned: r.IssuerBonus,
			RedeemedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

// QRCode renders the user's referral link as a PNG of size pixels.
func (s *Service) QRCode(ctx context.Context, userID int64, size int) ([]byte, error) {
	code, err := s.registry.EnsureCode(ctx, userID)
	if err != nil {
		return nil, err
	}
	if size < 128 || size > 1024 {
		size = 256
	}
	png, err := qrcode.Encode(s.link(code), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
