// Package hints keeps gift ideas captured from forwarded Telegram messages.
package hints

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
)

var (
	ErrNotFound     = errors.New("hint not found")
	ErrInvalidInput = errors.New("invalid hint")
	ErrNoResender   = errors.New("hint delivery is not available")
)

const unknownSender = "Unknown"

var messageTypes = map[string]bool{
	"text":       true,
	"voice":      true,
	"video":      true,
	"photo":      true,
	"video_note": true,
	"document":   true,
}

// Forwarded is a message the user forwarded to the bot.
type Forwarded struct {
	OwnerID      int64
	MessageID    int
	ChatID       int64
	Text         string
	MessageType  string
	MediaFileID  string
	FromName     string
	FromUsername string
	FromUserID   *int64
	ForwardDate  *time.Time
}

type PersonCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Resender sends a stored hint back to its owner's chat.
type Resender interface {
	ResendHint(ctx context.Context, hint models.GiftHint) error
}

type Service struct {
	db       *gorm.DB
	resender Resender
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) SetResender(r Resender) {
	s.resender = r
}

// SaveForwarded stores a hint. The author is linked to a known user by id
// or, failing that, by username.
func (s *Service) SaveForwarded(ctx context.Context, f Forwarded) (*models.GiftHint, error) {
	if f.OwnerID == 0 {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	msgType := f.MessageType
	if msgType == "" {
		msgType = "text"
	}
	if !messageTypes[msgType] {
		return nil, fmt.Errorf("%w: message type %q", ErrInvalidInput, msgType)
	}
	name := strings.TrimSpace(f.FromName)
	if name == "" {
		name = unknownSender
	}
	username := strings.TrimPrefix(strings.TrimSpace(f.FromUsername), "@")

	db := s.db.WithContext(ctx)
	about := f.FromUserID
	if about == nil && username != "" {
		var ids []int64
		err := db.Model(&models.User{}).
			Where("LOWER(username) = ?", strings.ToLower(username)).
			Limit(1).
			Pluck("telegram_id", &ids).Error
		if err != nil {
			return nil, database.Wrap("find hint author", err)
		}
		if len(ids) == 1 {
			about = &ids[0]
		}
	}

	h := models.GiftHint{
		UserID:            f.OwnerID,
		AboutUserID:       about,
		AboutName:         name,
		AboutUsername:     username,
		HintText:          f.Text,
		MessageType:       msgType,
		MediaFileID:       f.MediaFileID,
		TelegramMessageID: f.MessageID,
		TelegramChatID:    f.ChatID,
		ForwardDate:       f.ForwardDate,
		Status:            models.HintActive,
	}
	if err := db.Create(&h).Error; err != nil {
		return nil, database.Wrap("save hint", err)
	}
	log.WithFields(log.Fields{"user_id": f.OwnerID, "hint_id": h.ID, "type": msgType}).Info("Gift hint saved")
	return &h, nil
}

// List returns userID's hints, newest first. An empty status lists all.
func (s *Service) List(ctx context.Context, userID int64, status models.HintStatus) ([]models.GiftHint, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.GiftHint
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, database.Wrap("list hints", err)
	}
	return out, nil
}

// Recent returns up to limit active hints, newest first.
func (s *Service) Recent(ctx context.Context, userID int64, limit int) ([]models.GiftHint, error) {
	var out []models.GiftHint
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.HintActive).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, database.Wrap("recent hints", err)
	}
	return out, nil
}

func (s *Service) update(ctx context.Context, userID int64, id string, updates map[string]any) (*models.GiftHint, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.GiftHint{}).Where("id = ? AND user_id = ?", id, userID).Updates(updates)
	if res.Error != nil {
		return nil, database.Wrap("update hint", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	var h models.GiftHint
	if err := db.First(&h, "id = ?", id).Error; err != nil {
		return nil, database.Wrap("reload hint", err)
	}
	return &h, nil
}

func (s *Service) UpdateStatus(ctx context.Context, userID int64, id string, status models.HintStatus) (*models.GiftHint, error) {
	switch status {
	case models.HintActive, models.HintPurchased, models.HintArchived:
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}
	return s.update(ctx, userID, id, map[string]any{"status": status})
}

func (s *Service) UpdateNotes(ctx context.Context, userID int64, id, notes string) (*models.GiftHint, error) {
	return s.update(ctx, userID, id, map[string]any{"notes": strings.TrimSpace(notes)})
}

func (s *Service) Delete(ctx context.Context, userID int64, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.GiftHint{})
	if res.Error != nil {
		return database.Wrap("delete hint", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByPerson counts active hints per author, case-insensitively, most
// hinted first.
func (s *Service) CountByPerson(ctx context.Context, userID int64) ([]PersonCount, error) {
	active, err := s.List(ctx, userID, models.HintActive)
	if err != nil {
		return nil, err
	}
	index := map[string]int{}
	var out []PersonCount
	for _, h := range active {
		key := strings.ToLower(h.AboutName)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, PersonCount{Name: h.AboutName})
		}
		out[i].Count++
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Count > out[b].Count })
	return out, nil
}

// Resend delivers the hint to its owner's Telegram chat again.
func (s *Service) Resend(ctx context.Context, userID int64, id string) error {
	var h models.GiftHint
	err := s.db.WithContext(ctx).First(&h, "id = ? AND user_id = ?", id, userID).Error
	if database.IsNotFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return database.Wrap("load hint", err)
	}
	if s.resender == nil {
		return ErrNoResender
	}
	return s.resender.ResendHint(ctx, h)
}
