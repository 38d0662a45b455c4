package referral

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
)

const maxCodeAttempts = 5

// Registry issues referral codes and resolves them back to their owners.
type Registry struct {
	db       *gorm.DB
	generate func() (string, error)
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db, generate: GenerateCode}
}

// Register inserts u with a fresh referral code. When the user row already
// exists, typically because of a concurrent first request, the stored row is
// returned with created=false.
func (r *Registry) Register(ctx context.Context, u models.User) (*models.User, bool, error) {
	db := r.db.WithContext(ctx)
	if u.PremiumStatus == "" {
		u.PremiumStatus = models.PremiumFree
	}

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := r.generate()
		if err != nil {
			return nil, false, fmt.Errorf("generate referral code: %w", err)
		}
		candidate := u
		candidate.ReferralCode = code

		err = db.Create(&candidate).Error
		if err == nil {
			log.WithField("user_id", u.TelegramID).Info("Registered new user")
			return &candidate, true, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, false, database.Wrap("register user", err)
		}

		var existing models.User
		lookupErr := db.Where("telegram_id = ?", u.TelegramID).First(&existing).Error
		if lookupErr == nil {
			return &existing, false, nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, false, database.Wrap("register user", lookupErr)
		}
		log.WithField("attempt", attempt).Warn("Referral code collision, retrying")
	}
	return nil, false, ErrCodeExhausted
}

// LookupIssuer returns the id of the user owning code.
func (r *Registry) LookupIssuer(ctx context.Context, code string) (int64, error) {
	return lookupIssuer(r.db.WithContext(ctx), code)
}

func lookupIssuer(tx *gorm.DB, code string) (int64, error) {
	code = NormalizeCode(code)
	if code == "" {
		return 0, ErrInvalidCode
	}
	var issuer models.User
	err := tx.Select("telegram_id").Where("referral_code = ?", code).First(&issuer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrInvalidCode
	}
	if err != nil {
		return 0, database.Wrap("lookup referral code", err)
	}
	return issuer.TelegramID, nil
}

// EnsureCode assigns a code to a user row that has none and returns the
// user's code.
func (r *Registry) EnsureCode(ctx context.Context, userID int64) (string, error) {
	db := r.db.WithContext(ctx)
	var u models.User
	if err := db.Select("telegram_id", "referral_code").Where("telegram_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownUser
		}
		return "", database.Wrap("load referral code", err)
	}
	if u.ReferralCode != "" {
		return u.ReferralCode, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.generate()
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		res := db.Model(&models.User{}).
			Where("telegram_id = ? AND referral_code = ?", userID, "").
			Update("referral_code", code)
		if res.Error != nil {
			if database.IsUniqueViolation(res.Error) {
				continue
			}
			return "", database.Wrap("assign referral code", res.Error)
		}
		if res.RowsAffected == 0 {
			return r.EnsureCode(ctx, userID)
		}
		return code, nil
	}
	return "", ErrCodeExhausted
}
