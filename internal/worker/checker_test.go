package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"wishbucket/internal/models"
	"wishbucket/internal/social"
	"wishbucket/internal/testutil"
)

var now = time.Date(2026, time.June, 10, 9, 0, 0, 0, time.UTC)

type wakeCounter struct{ n int }

func (w *wakeCounter) Wake() { w.n++ }

func TestCheckerCycle(t *testing.T) {
	db := testutil.NewDB(t)
	for i := int64(1); i <= 4; i++ {
		testutil.CreateUser(t, db, i, "AAAAAAA"+string(rune('0'+i)))
	}
	require.NoError(t, db.Model(&models.User{}).Where("telegram_id = ?", 2).
		Update("birthday", time.Date(1990, time.June, 10, 0, 0, 0, 0, time.UTC)).Error)
	require.NoError(t, db.Create(&models.Friend{UserID: 1, FriendID: 2}).Error)

	soon := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)
	require.NoError(t, db.Model(&models.User{}).Where("telegram_id = ?", 3).
		Updates(map[string]any{"premium_status": models.PremiumPremium, "premium_expires_at": soon}).Error)
	require.NoError(t, db.Model(&models.User{}).Where("telegram_id = ?", 4).
		Updates(map[string]any{"premium_status": models.PremiumPremium, "premium_expires_at": past}).Error)

	waker := &wakeCounter{}
	c := NewChecker(db, NewMemoryMarker(), social.NewService(db, nil), waker, time.Hour, 7)
	c.now = func() time.Time { return now }

	assert.Equal(t, 3, c.RunOnce(context.Background()))
	assert.Equal(t, 1, waker.n)

	var reminder models.Notification
	require.NoError(t, db.Where("user_id = ? AND type = ?", 1, models.NotifyBirthdayReminder).First(&reminder).Error)
	assert.Equal(t, "Today is User2's birthday!", reminder.Message)

	assert.Equal(t, models.PremiumFree, testutil.ReloadUser(t, db, 4).PremiumStatus)
	assert.Equal(t, models.PremiumPremium, testutil.ReloadUser(t, db, 3).PremiumStatus)

	assert.Zero(t, c.RunOnce(context.Background()), "markers suppress repeats")
	assert.Equal(t, 1, waker.n)
}

func TestCheckerStopsWithContext(t *testing.T) {
	db := testutil.NewDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewChecker(db, NewMemoryMarker(), social.NewService(db, nil), nil, time.Hour, 7)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("checker did not stop")
	}
}

func TestMemoryMarker(t *testing.T) {
	m := NewMemoryMarker()
	clock := now
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	first, err := m.Mark(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	again, _ := m.Mark(ctx, "k", time.Hour)
	assert.False(t, again)

	clock = clock.Add(2 * time.Hour)
	expired, _ := m.Mark(ctx, "k", time.Hour)
	assert.True(t, expired)
}
