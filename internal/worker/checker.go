package worker

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/models"
	"wishbucket/internal/notify"
	"wishbucket/internal/social"
)

// Checker runs the periodic birthday and premium sweeps.
type Checker struct {
	DB       *gorm.DB
	Marker   Marker
	Social   *social.Service
	Waker    notify.Waker
	Interval time.Duration
	Window   int

	now func() time.Time
}

func NewChecker(db *gorm.DB, marker Marker, socialSvc *social.Service, waker notify.Waker, interval time.Duration, window int) *Checker {
	if interval <= 0 {
		interval = time.Hour
	}
	if window <= 0 {
		window = 7
	}
	return &Checker{
		DB:       db,
		Marker:   marker,
		Social:   socialSvc,
		Waker:    waker,
		Interval: interval,
		Window:   window,
		now:      time.Now,
	}
}

// Start runs a cycle immediately and then every Interval until ctx ends.
func (c *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	log.WithField("interval", c.Interval).Info("Background checker started")

	c.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("Background checker stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs one full cycle and returns how many notifications it queued.
func (c *Checker) RunOnce(ctx context.Context) int {
	now := c.now()
	log.Debug("Running checker cycle...")

	queued := c.birthdays(ctx, now)
	queued += c.premiumExpiring(ctx, now)
	queued += c.premiumExpired(ctx, now)

	if queued > 0 && c.Waker != nil {
		c.Waker.Wake()
	}
	return queued
}

// birthdays reminds followers once when a birthday enters the window and
// once more on the day itself.
func (c *Checker) birthdays(ctx context.Context, now time.Time) int {
	due, err := c.Social.DueReminders(ctx, c.Window, now)
	if err != nil {
		log.WithError(err).Error("Error querying birthdays")
		return 0
	}

	queued := 0
	for _, d := range due {
		stage := "soon"
		title := "🎂 Birthday Coming Up!"
		msg := fmt.Sprintf("%s's birthday is in %d days. Check their wishlist!", d.FriendName, d.DaysUntil)
		switch d.DaysUntil {
		case 0:
			stage = "today"
			title = "🎉 Birthday Today!"
			msg = fmt.Sprintf("Today is %s's birthday!", d.FriendName)
		case 1:
			msg = fmt.Sprintf("%s's birthday is tomorrow. Check their wishlist!", d.FriendName)
		}

		key := fmt.Sprintf("birthday:%d:%d:%s:%s", d.FollowerID, d.FriendID, d.NextDate.Format("2006-01-02"), stage)
		if !c.mark(ctx, key, time.Duration(c.Window+2)*24*time.Hour) {
			continue
		}
		_, err := notify.Enqueue(c.DB.WithContext(ctx), notify.Message{
			UserID:  d.FollowerID,
			Type:    models.NotifyBirthdayReminder,
			Title:   title,
			Message: msg,
			Data:    map[string]any{"friendId": d.FriendID, "daysUntil": d.DaysUntil},
		})
		if err != nil {
			log.WithError(err).WithField("user_id", d.FollowerID).Error("Failed to queue birthday reminder")
			continue
		}
		queued++
	}
	return queued
}

// premiumExpiring warns users whose premium ends in roughly a day.
func (c *Checker) premiumExpiring(ctx context.Context, now time.Time) int {
	start := now.Add(23 * time.Hour)
	end := now.Add(25 * time.Hour)

	var users []models.User
	err := c.DB.WithContext(ctx).
		Where("premium_status = ? AND premium_expires_at BETWEEN ? AND ?", models.PremiumPremium, start, end).
		Find(&users).Error
	if err != nil {
		log.WithError(err).Error("Error querying expiring premium")
		return 0
	}

	queued := 0
	for _, u := range users {
		key := fmt.Sprintf("premium_24h:%d:%d", u.TelegramID, u.PremiumExpiresAt.Unix())
		if !c.mark(ctx, key, 48*time.Hour) {
			continue
		}
		_, err := notify.Enqueue(c.DB.WithContext(ctx), notify.Message{
			UserID:  u.TelegramID,
			Type:    models.NotifyPremium,
			Title:   "⚠️ Premium Ends Tomorrow",
			Message: "Your premium expires in 24 hours. Renew it to keep your perks.",
		})
		if err != nil {
			log.WithError(err).WithField("user_id", u.TelegramID).Error("Failed to queue premium warning")
			continue
		}
		queued++
	}
	return queued
}

// premiumExpired downgrades lapsed premium users.
func (c *Checker) premiumExpired(ctx context.Context, now time.Time) int {
	var users []models.User
	err := c.DB.WithContext(ctx).
		Where("premium_status = ? AND premium_expires_at < ?", models.PremiumPremium, now).
		Find(&users).Error
	if err != nil {
		log.WithError(err).Error("Error querying expired premium")
		return 0
	}

	queued := 0
	for _, u := range users {
		err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.User{}).
				Where("telegram_id = ? AND premium_status = ? AND premium_expires_at < ?", u.TelegramID, models.PremiumPremium, now).
				Update("premium_status", models.PremiumFree)
			if res.Error != nil || res.RowsAffected == 0 {
				return res.Error
			}
			_, err := notify.Enqueue(tx, notify.Message{
				UserID:  u.TelegramID,
				Type:    models.NotifyPremium,
				Title:   "❌ Premium Expired",
				Message: "Your premium has ended. You can renew it any time from your profile.",
			})
			if err == nil {
				queued++
			}
			return err
		})
		if err != nil {
			log.WithError(err).WithField("user_id", u.TelegramID).Error("Failed to downgrade premium")
			continue
		}
		log.WithField("user_id", u.TelegramID).Info("Premium expired")
	}
	return queued
}

func (c *Checker) mark(ctx context.Context, key string, ttl time.Duration) bool {
	first, err := c.Marker.Mark(ctx, key, ttl)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("Marker unavailable, skipping")
		return false
	}
	return first
}
