// Package santa runs Secret Santa gift exchanges.
package santa

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

var (
	ErrNotFound              = errors.New("secret santa not found")
	ErrForbidden             = errors.New("only the organizer can do this")
	ErrInvalidInput          = errors.New("invalid input")
	ErrAlreadyJoined         = errors.New("already a participant")
	ErrAlreadyDrawn          = errors.New("names have already been drawn")
	ErrNotDrawn              = errors.New("names have not been drawn yet")
	ErrNotEnoughParticipants = errors.New("at least two participants are needed")
	ErrInactive              = errors.New("secret santa is closed")
)

type CreateInput struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Budget       *float64   `json:"budget"`
	ExchangeDate *time.Time `json:"exchangeDate"`
}

// Assignment tells a participant whom they are gifting.
type Assignment struct {
	SantaID  string            `json:"santaId"`
	Name     string            `json:"name"`
	Receiver models.PublicUser `json:"receiver"`
}

type Service struct {
	db      *gorm.DB
	waker   notify.Waker
	shuffle func(n int, swap func(i, j int))
}

func NewService(db *gorm.DB, waker notify.Waker) *Service {
	return &Service{db: db, waker: waker, shuffle: rand.Shuffle}
}

func withParticipants(q *gorm.DB) *gorm.DB {
	return q.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at ASC, id ASC")
	})
}

// Create opens an exchange with the organizer as its first participant.
func (s *Service) Create(ctx context.Context, organizerID int64, in CreateInput) (*models.SecretSanta, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Budget != nil && *in.Budget < 0 {
		return nil, fmt.Errorf("%w: budget must not be negative", ErrInvalidInput)
	}
	ss := models.SecretSanta{
		OrganizerID:  organizerID,
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		Budget:       in.Budget,
		ExchangeDate: in.ExchangeDate,
		IsActive:     true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ss).Error; err != nil {
			return database.Wrap("create secret santa", err)
		}
		return database.Wrap("add organizer",
			tx.Create(&models.SecretSantaParticipant{SantaID: ss.ID, UserID: organizerID}).Error)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"santa_id": ss.ID, "organizer_id": organizerID}).Info("Secret Santa created")
	return s.Get(ctx, organizerID, ss.ID)
}

// List returns the exchanges userID organizes or takes part in.
func (s *Service) List(ctx context.Context, userID int64) ([]models.SecretSanta, error) {
	joined := s.db.Model(&models.SecretSantaParticipant{}).Select("santa_id").Where("user_id = ?", userID)
	var out []models.SecretSanta
	err := withParticipants(s.db.WithContext(ctx)).
		Where("organizer_id = ? OR id IN (?)", userID, joined).
		Order("created_at DESC").
		Find(&out).Error
	return out, database.Wrap("list secret santas", err)
}

// Get returns an exchange visible to userID.
func (s *Service) Get(ctx context.Context, userID int64, id string) (*models.SecretSanta, error) {
	var ss models.SecretSanta
	err := withParticipants(s.db.WithContext(ctx)).First(&ss, "id = ?", id).Error
	if database.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, database.Wrap("get secret santa", err)
	}
	if ss.OrganizerID != userID && !hasParticipant(ss.Participants, userID) {
		return nil, ErrNotFound
	}
	return &ss, nil
}

func hasParticipant(ps []models.SecretSantaParticipant, userID int64) bool {
	for _, p := range ps {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Join adds userID to an exchange that has not been drawn yet.
func (s *Service) Join(ctx context.Context, userID int64, id string) (*models.SecretSanta, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ss models.SecretSanta
		if err := tx.First(&ss, "id = ?", id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrNotFound
			}
			return database.Wrap("load secret santa", err)
		}
		if ss.IsDrawn {
			return ErrAlreadyDrawn
		}
		if !ss.IsActive {
			return ErrInactive
		}
		if err := tx.Create(&models.SecretSantaParticipant{SantaID: id, UserID: userID}).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadyJoined
			}
			return database.Wrap("join secret santa", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, userID, id)
}

// Draw assigns every participant one receiver. The participants are shuffled
// and each gives to the next one, so nobody draws themselves and everybody
// receives exactly once.
func (s *Service) Draw(ctx context.Context, userID int64, id string) (*models.SecretSanta, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ss models.SecretSanta
		if err := withParticipants(tx).First(&ss, "id = ?", id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrNotFound
			}
			return database.Wrap("load secret santa", err)
		}
		if ss.OrganizerID != userID {
			if hasParticipant(ss.Participants, userID) {
				return ErrForbidden
			}
			return ErrNotFound
		}
		if ss.IsDrawn {
			return ErrAlreadyDrawn
		}
		if len(ss.Participants) < 2 {
			return ErrNotEnoughParticipants
		}

		res := tx.Model(&models.SecretSanta{}).
			Where("id = ? AND is_drawn = ?", id, false).
			Update("is_drawn", true)
		if res.Error != nil {
			return database.Wrap("mark drawn", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrAlreadyDrawn
		}

		ps := ss.Participants
		s.shuffle(len(ps), func(i, j int) { ps[i], ps[j] = ps[j], ps[i] })
		msgs := make([]notify.Message, 0, len(ps))
		for i, p := range ps {
			receiver := ps[(i+1)%len(ps)].UserID
			if err := tx.Model(&models.SecretSantaParticipant{}).Where("id = ?", p.ID).
				Update("receiver_id", receiver).Error; err != nil {
				return database.Wrap("assign receiver", err)
			}
			msgs = append(msgs, notify.Message{
				UserID:  p.UserID,
				Type:    models.NotifySecretSanta,
				Title:   "🎅 Secret Santa Draw!",
				Message: fmt.Sprintf("Names for %q have been drawn. Open the app to see who you are gifting!", ss.Name),
				Data:    map[string]any{"santaId": ss.ID},
			})
		}
		return notify.EnqueueMany(tx, msgs)
	})
	if err != nil {
		return nil, err
	}
	if s.waker != nil {
		s.waker.Wake()
	}
	log.WithField("santa_id", id).Info("Secret Santa drawn")
	return s.Get(ctx, userID, id)
}

// Assignment reveals userID's receiver after the draw.
func (s *Service) Assignment(ctx context.Context, userID int64, id string) (*Assignment, error) {
	ss, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !ss.IsDrawn {
		return nil, ErrNotDrawn
	}
	var receiverID *int64
	for _, p := range ss.Participants {
		if p.UserID == userID {
			receiverID = p.ReceiverID
		}
	}
	if receiverID == nil {
		return nil, ErrNotFound
	}
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "telegram_id = ?", *receiverID).Error; err != nil {
		if database.IsNotFound(err) {
			return &Assignment{SantaID: ss.ID, Name: ss.Name, Receiver: models.PublicUser{ID: *receiverID}}, nil
		}
		return nil, database.Wrap("load receiver", err)
	}
	return &Assignment{SantaID: ss.ID, Name: ss.Name, Receiver: u.Public()}, nil
}
