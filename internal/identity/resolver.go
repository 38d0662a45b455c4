// Package identity turns request credentials into a Telegram user id.
package identity

import (
	"context"
	"strings"
	"time"
)

type contextKey string

const (
	userIDKey       contextKey = "userID"
	telegramUserKey contextKey = "telegramUser"
)

// Identity is an authenticated caller. User is set only when the caller
// presented init data, which carries the display profile.
type Identity struct {
	UserID int64
	User   *TelegramUser
}

type Resolver struct {
	BotToken      string
	SessionSecret string
	MaxAge        time.Duration
	Now           func() time.Time
}

func NewResolver(botToken, sessionSecret string, maxAge time.Duration) *Resolver {
	return &Resolver{
		BotToken:      botToken,
		SessionSecret: sessionSecret,
		MaxAge:        maxAge,
		Now:           time.Now,
	}
}

// Resolve accepts "tma <initData>" or "Bearer <jwt>".
func (r *Resolver) Resolve(authHeader string) (Identity, error) {
	scheme, credential, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	credential = strings.TrimSpace(credential)
	if !ok || credential == "" {
		return Identity{}, ErrNotAuthenticated
	}

	switch strings.ToLower(scheme) {
	case "tma":
		data, err := ValidateInitData(credential, r.BotToken, r.MaxAge, r.Now())
		if err != nil {
			return Identity{}, err
		}
		return Identity{UserID: data.User.ID, User: &data.User}, nil
	case "bearer":
		claims, err := ParseToken(r.SessionSecret, credential)
		if err != nil {
			return Identity{}, err
		}
		return Identity{UserID: claims.UserID}, nil
	default:
		return Identity{}, ErrNotAuthenticated
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, userIDKey, id.UserID)
	if id.User != nil {
		ctx = context.WithValue(ctx, telegramUserKey, id.User)
	}
	return ctx
}

// UserID extracts the authenticated user id from ctx.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok && id != 0
}

func TelegramUserFrom(ctx context.Context) (*TelegramUser, bool) {
	u, ok := ctx.Value(telegramUserKey).(*TelegramUser)
	return u, ok
}
