// Package social holds the follow graph between users.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

var (
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following this user")
	ErrUserNotFound     = errors.New("user not found")
)

const searchLimit = 20

// Friend is another user together with the viewer's relation to them.
type Friend struct {
	models.PublicUser
	IsFollowing  bool       `json:"isFollowing"`
	IsFollowedBy bool       `json:"isFollowedBy"`
	AddedAt      *time.Time `json:"addedAt,omitempty"`
}

type Service struct {
	db    *gorm.DB
	waker notify.Waker
}

func NewService(db *gorm.DB, waker notify.Waker) *Service {
	return &Service{db: db, waker: waker}
}

// Follow makes userID follow friendID and tells friendID about it.
func (s *Service) Follow(ctx context.Context, userID, friendID int64) error {
	if userID == friendID {
		return ErrSelfFollow
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []models.User
		if err := tx.Where("telegram_id IN ?", []int64{userID, friendID}).Find(&users).Error; err != nil {
			return database.Wrap("load users", err)
		}
		var follower *models.User
		found := false
		for i := range users {
			if users[i].TelegramID == userID {
				follower = &users[i]
			}
			if users[i].TelegramID == friendID {
				found = true
			}
		}
		if !found || follower == nil {
			return ErrUserNotFound
		}

		var back int64
		if err := tx.Model(&models.Friend{}).Where("user_id = ? AND friend_id = ?", friendID, userID).Count(&back).Error; err != nil {
			return database.Wrap("check follow back", err)
		}

		if err := tx.Create(&models.Friend{UserID: userID, FriendID: friendID}).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadyFollowing
			}
			return database.Wrap("follow", err)
		}

		msg := notify.Message{
			UserID:  friendID,
			Type:    models.NotifyNewFollower,
			Title:   "👤 New Follower!",
			Message: fmt.Sprintf("%s started following you", follower.DisplayName()),
			Data:    map[string]any{"followerId": userID, "isFollowBack": back > 0},
		}
		if back > 0 {
			msg.Title = "🎉 New Follower!"
			msg.Message = fmt.Sprintf("%s followed you back!", follower.DisplayName())
		}
		_, err := notify.Enqueue(tx, msg)
		return err
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{"user_id": userID, "friend_id": friendID}).Debug("Followed user")
	if s.waker != nil {
		s.waker.Wake()
	}
	return nil
}

// Unfollow removes the edge; removing a missing edge is not an error.
func (s *Service) Unfollow(ctx context.Context, userID, friendID int64) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ?", userID, friendID).
		Delete(&models.Friend{}).Error
	return database.Wrap("unfollow", err)
}

// Following lists the users userID follows.
func (s *Service) Following(ctx context.Context, userID int64) ([]Friend, error) {
	return s.edges(ctx, userID, "user_id", "friend_id")
}

// Followers lists the users following userID.
func (s *Service) Followers(ctx context.Context, userID int64) ([]Friend, error) {
	return s.edges(ctx, userID, "friend_id", "user_id")
}

// edges loads the edges where column = userID and resolves the users on the
// other end. The viewer's opposite direction is loaded concurrently to fill
// the relation flags.
func (s *Service) edges(ctx context.Context, userID int64, column, other string) ([]Friend, error) {
	var (
		rows    []models.Friend
		reverse []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Where(column+" = ?", userID).Order("created_at DESC").Find(&rows).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Friend{}).Where(other+" = ?", userID).Pluck(column, &reverse).Error
	})
	if err := g.Wait(); err != nil {
		return nil, database.Wrap("load friends", err)
	}

	ids := make([]int64, 0, len(rows))
	added := make(map[int64]time.Time, len(rows))
	for _, r := range rows {
		id := r.FriendID
		if column == "friend_id" {
			id = r.UserID
		}
		ids = append(ids, id)
		added[id] = r.CreatedAt
	}
	users, err := s.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	reverseSet := toSet(reverse)

	out := make([]Friend, 0, len(ids))
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			continue
		}
		at := added[id]
		f := Friend{PublicUser: u.Public(), AddedAt: &at}
		if column == "user_id" {
			f.IsFollowing, f.IsFollowedBy = true, reverseSet[id]
		} else {
			f.IsFollowing, f.IsFollowedBy = reverseSet[id], true
		}
		out = append(out, f)
	}
	return out, nil
}

// Search matches name or username, case-insensitively, excluding the viewer.
// Queries shorter than two characters return nothing.
func (s *Service) Search(ctx context.Context, viewerID int64, query string) ([]Friend, error) {
	q := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "@")))
	if len([]rune(q)) < 2 {
		return []Friend{}, nil
	}
	pattern := "%" + escapeLike(q) + "%"

	var users []models.User
	err := s.db.WithContext(ctx).
		Where("telegram_id <> ?", viewerID).
		Where("(LOWER(first_name || ' ' || last_name) LIKE ? ESCAPE '\\' OR LOWER(username) LIKE ? ESCAPE '\\')", pattern, pattern).
		Order("first_name").
		Limit(searchLimit).
		Find(&users).Error
	if err != nil {
		return nil, database.Wrap("search users", err)
	}
	return s.withRelations(ctx, viewerID, users)
}

// Lookup returns targetID as seen by viewerID.
func (s *Service) Lookup(ctx context.Context, viewerID, targetID int64) (*Friend, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("telegram_id = ?", targetID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, database.Wrap("lookup user", err)
	}
	out, err := s.withRelations(ctx, viewerID, []models.User{u})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// LookupUsername resolves a Telegram username, with or without "@".
func (s *Service) LookupUsername(ctx context.Context, viewerID int64, username string) (*Friend, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if name == "" {
		return nil, ErrUserNotFound
	}
	var u models.User
	err := s.db.WithContext(ctx).Where("LOWER(username) = ?", name).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, database.Wrap("lookup username", err)
	}
	return s.Lookup(ctx, viewerID, u.TelegramID)
}

// FindByIDs returns the registered users among ids, e.g. from a shared
// contact list.
func (s *Service) FindByIDs(ctx context.Context, viewerID int64, ids []int64) ([]Friend, error) {
	if len(ids) == 0 {
		return []Friend{}, nil
	}
	var users []models.User
	err := s.db.WithContext(ctx).Where("telegram_id IN ? AND telegram_id <> ?", ids, viewerID).Find(&users).Error
	if err != nil {
		return nil, database.Wrap("find users", err)
	}
	return s.withRelations(ctx, viewerID, users)
}

func (s *Service) withRelations(ctx context.Context, viewerID int64, users []models.User) ([]Friend, error) {
	out := make([]Friend, 0, len(users))
	if len(users) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.TelegramID)
	}

	var following, followers []int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Friend{}).
			Where("user_id = ? AND friend_id IN ?", viewerID, ids).
			Pluck("friend_id", &following).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Friend{}).
			Where("friend_id = ? AND user_id IN ?", viewerID, ids).
			Pluck("user_id", &followers).Error
	})
	if err := g.Wait(); err != nil {
		return nil, database.Wrap("load relations", err)
	}

	followingSet, followerSet := toSet(following), toSet(followers)
	for _, u := range users {
		out = append(out, Friend{
			PublicUser:   u.Public(),
			IsFollowing:  followingSet[u.TelegramID],
			IsFollowedBy: followerSet[u.TelegramID],
		})
	}
	return out, nil
}

func (s *Service) usersByID(ctx context.Context, ids []int64) (map[int64]models.User, error) {
	out := make(map[int64]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("telegram_id IN ?", ids).Find(&users).Error; err != nil {
		return nil, database.Wrap("load users", err)
	}
	for _, u := range users {
		out[u.TelegramID] = u
	}
	return out, nil
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
