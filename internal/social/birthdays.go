package social

import (
	"context"
	"sort"
	"time"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
)

type BirthdayReminder struct {
	FriendID   int64     `json:"friendId"`
	FriendName string    `json:"friendName"`
	Birthday   time.Time `json:"birthday"`
	NextDate   time.Time `json:"nextDate"`
	DaysUntil  int       `json:"daysUntil"`
}

// NextBirthday returns the next calendar occurrence of birthday on or after
// the day of now, and how many days away it is. A Feb 29 birthday falls on
// Mar 1 in common years.
func NextBirthday(birthday, now time.Time) (time.Time, int) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	next := time.Date(today.Year(), birthday.Month(), birthday.Day(), 0, 0, 0, 0, loc)
	if next.Before(today) {
		next = time.Date(today.Year()+1, birthday.Month(), birthday.Day(), 0, 0, 0, 0, loc)
	}
	days := int(next.Sub(today).Hours()/24 + 0.5)
	return next, days
}

// BirthdayReminders lists followed users whose birthday is within window
// days of now, soonest first.
func (s *Service) BirthdayReminders(ctx context.Context, userID int64, window int, now time.Time) ([]BirthdayReminder, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Joins("JOIN friends ON friends.friend_id = users.telegram_id").
		Where("friends.user_id = ? AND users.birthday IS NOT NULL", userID).
		Find(&users).Error
	if err != nil {
		return nil, database.Wrap("load birthdays", err)
	}
	return upcoming(users, window, now), nil
}

func upcoming(users []models.User, window int, now time.Time) []BirthdayReminder {
	out := []BirthdayReminder{}
	for _, u := range users {
		if u.Birthday == nil {
			continue
		}
		next, days := NextBirthday(*u.Birthday, now)
		if days > window {
			continue
		}
		out = append(out, BirthdayReminder{
			FriendID:   u.TelegramID,
			FriendName: u.DisplayName(),
			Birthday:   *u.Birthday,
			NextDate:   next,
			DaysUntil:  days,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysUntil < out[j].DaysUntil })
	return out
}

// DueReminder is a birthday reminder addressed to one follower.
type DueReminder struct {
	FollowerID int64
	BirthdayReminder
}

// DueReminders lists, for every follow edge, the followed user's birthday
// when it is within window days of now.
func (s *Service) DueReminders(ctx context.Context, window int, now time.Time) ([]DueReminder, error) {
	var rows []struct {
		FollowerID  int64
		models.User `gorm:"embedded"`
	}
	err := s.db.WithContext(ctx).
		Table("users").
		Select("users.*, friends.user_id AS follower_id").
		Joins("JOIN friends ON friends.friend_id = users.telegram_id").
		Where("users.birthday IS NOT NULL").
		Scan(&rows).Error
	if err != nil {
		return nil, database.Wrap("load due birthdays", err)
	}

	var out []DueReminder
	for _, row := range rows {
		for _, r := range upcoming([]models.User{row.User}, window, now) {
			out = append(out, DueReminder{FollowerID: row.FollowerID, BirthdayReminder: r})
		}
	}
	return out, nil
}
