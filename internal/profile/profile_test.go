package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishbucket/internal/identity"
	"wishbucket/internal/models"
	"wishbucket/internal/referral"
	"wishbucket/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestGetOrCreate(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, referral.NewRegistry(db))
	ctx := context.Background()

	tu := identity.TelegramUser{ID: 42, FirstName: "Ann", Username: "ann"}
	p, created, err := svc.GetOrCreate(ctx, tu)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, p.ReferralCode)
	assert.Equal(t, models.PremiumFree, p.PremiumStatus)
	assert.Empty(t, p.Friends)
	code := p.ReferralCode

	require.NoError(t, db.Create(&models.Friend{UserID: 42, FriendID: 7}).Error)
	tu.FirstName = "Anna"
	p, created, err = svc.GetOrCreate(ctx, tu)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, code, p.ReferralCode, "code is never regenerated")
	assert.Equal(t, "Anna", p.FirstName)
	assert.Equal(t, []int64{7}, p.Friends)
}

func TestUpdateBirthday(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db, referral.NewRegistry(db))
	testutil.CreateUser(t, db, 1, "ABC12345")
	ctx := context.Background()

	p, err := svc.Update(ctx, 1, UpdateInput{Birthday: strPtr("1990-05-17")})
	require.NoError(t, err)
	require.NotNil(t, p.Birthday)
	assert.Equal(t, time.May, p.Birthday.Month())
	assert.Equal(t, 17, p.Birthday.Day())

	p, err = svc.Update(ctx, 1, UpdateInput{})
	require.NoError(t, err)
	assert.NotNil(t, p.Birthday, "nil input leaves the birthday alone")

	p, err = svc.Update(ctx, 1, UpdateInput{Birthday: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, p.Birthday)

	_, err = svc.Update(ctx, 1, UpdateInput{Birthday: strPtr("17/05/1990")})
	assert.ErrorIs(t, err, ErrInvalidBirthday)
	_, err = svc.Update(ctx, 1, UpdateInput{Birthday: strPtr(time.Now().AddDate(1, 0, 0).Format("2006-01-02"))})
	assert.ErrorIs(t, err, ErrInvalidBirthday)

	_, err = svc.Update(ctx, 404, UpdateInput{Birthday: strPtr("1990-05-17")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUnknown(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewService(db, referral.NewRegistry(db)).Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
