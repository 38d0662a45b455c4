// Package profile manages the user's own profile, created on first read.
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/identity"
	"wishbucket/internal/models"
	"wishbucket/internal/referral"
)

const birthdayLayout = "2006-01-02"

var (
	ErrNotFound        = errors.New("profile not found")
	ErrInvalidBirthday = errors.New("birthday must be a past date in YYYY-MM-DD format")
)

type Profile struct {
	models.User
	Friends []int64 `json:"friends"`
}

type UpdateInput struct {
	// Birthday is "YYYY-MM-DD"; an empty string clears it. nil leaves it untouched.
	Birthday *string `json:"birthday"`
}

type Service struct {
	db       *gorm.DB
	registry *referral.Registry
}

func NewService(db *gorm.DB, registry *referral.Registry) *Service {
	return &Service{db: db, registry: registry}
}

// GetOrCreate returns the profile for tu, registering the user on first
// sight and refreshing the display fields Telegram reports.
func (s *Service) GetOrCreate(ctx context.Context, tu identity.TelegramUser) (*Profile, bool, error) {
	db := s.db.WithContext(ctx)

	var u models.User
	err := db.Where("telegram_id = ?", tu.ID).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		created, isNew, err := s.registry.Register(ctx, fromTelegram(tu))
		if err != nil {
			return nil, false, err
		}
		if !isNew {
			p, err := s.withFriends(ctx, *created)
			return p, false, err
		}
		return &Profile{User: *created, Friends: []int64{}}, true, nil
	case err != nil:
		return nil, false, database.Wrap("load profile", err)
	}

	if changes := displayChanges(u, tu); len(changes) > 0 {
		if err := db.Model(&models.User{}).Where("telegram_id = ?", u.TelegramID).Updates(changes).Error; err != nil {
			return nil, false, database.Wrap("refresh profile", err)
		}
		if err := db.Where("telegram_id = ?", tu.ID).First(&u).Error; err != nil {
			return nil, false, database.Wrap("load profile", err)
		}
	}
	if u.ReferralCode == "" {
		code, err := s.registry.EnsureCode(ctx, u.TelegramID)
		if err != nil {
			return nil, false, err
		}
		u.ReferralCode = code
	}
	p, err := s.withFriends(ctx, u)
	return p, false, err
}

func (s *Service) Get(ctx context.Context, userID int64) (*Profile, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("telegram_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap("load profile", err)
	}
	return s.withFriends(ctx, u)
}

func (s *Service) Update(ctx context.Context, userID int64, in UpdateInput) (*Profile, error) {
	if in.Birthday != nil {
		var birthday any
		if v := strings.TrimSpace(*in.Birthday); v != "" {
			t, err := time.Parse(birthdayLayout, v)
			if err != nil || t.After(time.Now()) {
				return nil, ErrInvalidBirthday
			}
			birthday = t
		}
		res := s.db.WithContext(ctx).Model(&models.User{}).
			Where("telegram_id = ?", userID).
			Update("birthday", birthday)
		if res.Error != nil {
			return nil, database.Wrap("update profile", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.Get(ctx, userID)
}

func (s *Service) withFriends(ctx context.Context, u models.User) (*Profile, error) {
	friends := []int64{}
	err := s.db.WithContext(ctx).Model(&models.Friend{}).
		Where("user_id = ?", u.TelegramID).
		Order("created_at").
		Pluck("friend_id", &friends).Error
	if err != nil {
		return nil, database.Wrap("load friends", err)
	}
	return &Profile{User: u, Friends: friends}, nil
}

func fromTelegram(tu identity.TelegramUser) models.User {
	return models.User{
		TelegramID:    tu.ID,
		FirstName:     tu.FirstName,
		LastName:      tu.LastName,
		Username:      tu.Username,
		PhotoURL:      tu.PhotoURL,
		LanguageCode:  tu.LanguageCode,
		PremiumStatus: models.PremiumFree,
	}
}

func displayChanges(u models.User, tu identity.TelegramUser) map[string]any {
	changes := map[string]any{}
	set := func(column, stored, reported string) {
		if reported != "" && reported != stored {
			changes[column] = reported
		}
	}
	set("first_name", u.FirstName, tu.FirstName)
	set("last_name", u.LastName, tu.LastName)
	set("username", u.Username, tu.Username)
	set("photo_url", u.PhotoURL, tu.PhotoURL)
	set("language_code", u.LanguageCode, tu.LanguageCode)
	return changes
}
