package social

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wishbucket/internal/models"
	"wishbucket/internal/testutil"
)

func setup(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, 1, "AAAAAAA1")
	testutil.CreateUser(t, db, 2, "AAAAAAA2")
	testutil.CreateUser(t, db, 3, "AAAAAAA3")
	return NewService(db, nil), db
}

func notificationsFor(t *testing.T, db *gorm.DB, userID int64) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, db.Where("user_id = ?", userID).Order("created_at").Find(&out).Error)
	return out
}

func TestFollow(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Follow(ctx, 1, 2))
	assert.ErrorIs(t, svc.Follow(ctx, 1, 2), ErrAlreadyFollowing)
	assert.ErrorIs(t, svc.Follow(ctx, 1, 1), ErrSelfFollow)
	assert.ErrorIs(t, svc.Follow(ctx, 1, 99), ErrUserNotFound)

	first := notificationsFor(t, db, 2)
	require.Len(t, first, 1)
	assert.Equal(t, models.NotifyNewFollower, first[0].Type)
	assert.Equal(t, "User1 started following you", first[0].Message)

	require.NoError(t, svc.Follow(ctx, 2, 1))
	back := notificationsFor(t, db, 1)
	require.Len(t, back, 1)
	assert.Equal(t, "User2 followed you back!", back[0].Message)
}

func TestFollowingAndFollowers(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Follow(ctx, 1, 2))
	require.NoError(t, svc.Follow(ctx, 1, 3))
	require.NoError(t, svc.Follow(ctx, 2, 1))

	following, err := svc.Following(ctx, 1)
	require.NoError(t, err)
	require.Len(t, following, 2)
	flags := map[int64]bool{}
	for _, f := range following {
		assert.True(t, f.IsFollowing)
		flags[f.ID] = f.IsFollowedBy
		assert.NotNil(t, f.AddedAt)
	}
	assert.Equal(t, map[int64]bool{2: true, 3: false}, flags)

	followers, err := svc.Followers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, followers, 1)
	assert.EqualValues(t, 2, followers[0].ID)
	assert.True(t, followers[0].IsFollowedBy)
	assert.True(t, followers[0].IsFollowing)

	require.NoError(t, svc.Unfollow(ctx, 1, 3))
	require.NoError(t, svc.Unfollow(ctx, 1, 3))
	following, err = svc.Following(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, following, 1)
}

func TestSearch(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	require.NoError(t, db.Model(&models.User{}).Where("telegram_id = ?", 3).
		Updates(map[string]any{"first_name": "Maria", "last_name": "Lopez", "username": "maria_l"}).Error)
	require.NoError(t, svc.Follow(ctx, 1, 3))

	found, err := svc.Search(ctx, 1, "lopez")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.EqualValues(t, 3, found[0].ID)
	assert.True(t, found[0].IsFollowing)

	found, err = svc.Search(ctx, 1, "@MARIA_")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = svc.Search(ctx, 1, "user")
	require.NoError(t, err)
	assert.Len(t, found, 1, "viewer is excluded")

	found, err = svc.Search(ctx, 1, "m")
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = svc.Search(ctx, 1, "%%")
	require.NoError(t, err)
	assert.Empty(t, found, "wildcards are literal")
}

func TestLookup(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, svc.Follow(ctx, 2, 1))

	f, err := svc.Lookup(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, f.IsFollowing)
	assert.True(t, f.IsFollowedBy)

	f, err = svc.LookupUsername(ctx, 1, "@User2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.ID)

	_, err = svc.Lookup(ctx, 1, 404)
	assert.ErrorIs(t, err, ErrUserNotFound)

	found, err := svc.FindByIDs(ctx, 1, []int64{1, 2, 3, 404})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestNextBirthday(t *testing.T) {
	now := time.Date(2026, time.December, 30, 15, 0, 0, 0, time.UTC)

	next, days := NextBirthday(time.Date(1990, time.December, 30, 0, 0, 0, 0, time.UTC), now)
	assert.Equal(t, 0, days)
	assert.Equal(t, 2026, next.Year())

	next, days = NextBirthday(time.Date(1990, time.January, 2, 0, 0, 0, 0, time.UTC), now)
	assert.Equal(t, 3, days)
	assert.Equal(t, 2027, next.Year())

	_, days = NextBirthday(time.Date(1992, time.February, 29, 0, 0, 0, 0, time.UTC), time.Date(2027, time.February, 27, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, days, "Feb 29 is celebrated on Mar 1")
}

func TestBirthdayReminders(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	now := time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)

	soon := time.Date(1995, time.June, 14, 0, 0, 0, 0, time.UTC)
	later := time.Date(1995, time.August, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&models.User{}).Where("telegram_id = ?", 2).Update("birthday", soon).Error)
	require.NoError(t, db.Model(&models.User{}).Where("telegram_id = ?", 3).Update("birthday", later).Error)
	require.NoError(t, svc.Follow(ctx, 1, 2))
	require.NoError(t, svc.Follow(ctx, 1, 3))

	reminders, err := svc.BirthdayReminders(ctx, 1, 7, now)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.EqualValues(t, 2, reminders[0].FriendID)
	assert.Equal(t, 4, reminders[0].DaysUntil)
	assert.Equal(t, "User2", reminders[0].FriendName)

	reminders, err = svc.BirthdayReminders(ctx, 2, 7, now)
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestDueReminders(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()
	now := time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Model(&models.User{}).Where("telegram_id = ?", 2).
		Update("birthday", time.Date(1995, time.June, 10, 0, 0, 0, 0, time.UTC)).Error)
	require.NoError(t, svc.Follow(ctx, 1, 2))
	require.NoError(t, svc.Follow(ctx, 3, 2))
	require.NoError(t, svc.Follow(ctx, 2, 1))

	due, err := svc.DueReminders(ctx, 7, now)
	require.NoError(t, err)
	require.Len(t, due, 2)

	followers := []int64{due[0].FollowerID, due[1].FollowerID}
	assert.ElementsMatch(t, []int64{1, 3}, followers)
	assert.Equal(t, 0, due[0].DaysUntil)
	assert.EqualValues(t, 2, due[0].FriendID)
}
