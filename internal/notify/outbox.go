// Package notify stores user notifications and delivers them to Telegram
// asynchronously through a transactional outbox.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wishbucket/internal/models"
)

var (
	ErrNotFound     = errors.New("notification not found")
	ErrInvalidInput = errors.New("invalid notification")
)

// Message is a notification intent before it is persisted.
type Message struct {
	UserID  int64
	Type    models.NotificationType
	Title   string
	Message string
	Data    map[string]any
}

// Waker is told that new outbox rows are ready.
type Waker interface {
	Wake()
}

func (m Message) row() (*models.Notification, error) {
	if m.UserID == 0 || m.Type == "" || strings.TrimSpace(m.Title) == "" {
		return nil, ErrInvalidInput
	}
	n := &models.Notification{
		UserID:         m.UserID,
		Type:           m.Type,
		Title:          m.Title,
		Message:        m.Message,
		DeliveryStatus: models.DeliveryPending,
	}
	if len(m.Data) > 0 {
		raw, err := json.Marshal(m.Data)
		if err != nil {
			return nil, fmt.Errorf("encode notification data: %w", err)
		}
		n.Data = datatypes.JSON(raw)
	}
	return n, nil
}

// Enqueue writes a pending notification using tx, so the row commits or
// rolls back together with the caller's other writes.
func Enqueue(tx *gorm.DB, msg Message) (*models.Notification, error) {
	n, err := msg.row()
	if err != nil {
		return nil, err
	}
	if err := tx.Create(n).Error; err != nil {
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}
	return n, nil
}

// EnqueueMany writes one pending row per message in a single insert.
func EnqueueMany(tx *gorm.DB, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]*models.Notification, 0, len(msgs))
	for _, m := range msgs {
		n, err := m.row()
		if err != nil {
			return err
		}
		rows = append(rows, n)
	}
	if err := tx.CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("enqueue notifications: %w", err)
	}
	return nil
}

// EnqueueFollowers writes msg for every follower of actorID using tx.
// msg.UserID is overwritten per recipient.
func EnqueueFollowers(tx *gorm.DB, actorID int64, msg Message) (int, error) {
	var followers []int64
	err := tx.Model(&models.Friend{}).
		Where("friend_id = ?", actorID).
		Pluck("user_id", &followers).Error
	if err != nil {
		return 0, fmt.Errorf("load followers: %w", err)
	}
	msgs := make([]Message, 0, len(followers))
	for _, id := range followers {
		m := msg
		m.UserID = id
		msgs = append(msgs, m)
	}
	if err := EnqueueMany(tx, msgs); err != nil {
		return 0, err
	}
	return len(msgs), nil
}
