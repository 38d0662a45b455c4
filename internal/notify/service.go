package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wishbucket/internal/models"
)

// Service is the user-facing inbox.
type Service struct {
	db    *gorm.DB
	waker Waker
}

func NewService(db *gorm.DB, waker Waker) *Service {
	return &Service{db: db, waker: waker}
}

func (s *Service) wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}

// Create stores a notification and nudges the dispatcher.
func (s *Service) Create(ctx context.Context, msg Message) (*models.Notification, error) {
	n, err := Enqueue(s.db.WithContext(ctx), msg)
	if err != nil {
		return nil, err
	}
	s.wake()
	return n, nil
}

// NotifyFollowers sends msg to everybody following actorID. msg.UserID is
// overwritten per recipient.
func (s *Service) NotifyFollowers(ctx context.Context, actorID int64, msg Message) (int, error) {
	n, err := EnqueueFollowers(s.db.WithContext(ctx), actorID, msg)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.wake()
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	var out []models.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification of userID as read. Marking an already read
// notification is not an error.
func (s *Service) MarkRead(ctx context.Context, userID int64, id string) error {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND read = ?", id, false).
		Updates(map[string]any{"read": true, "read_at": now}).Error
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Updates(map[string]any{"read": true, "read_at": now})
	return res.RowsAffected, res.Error
}
