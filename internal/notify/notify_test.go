package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"

	"wishbucket/internal/models"
	"wishbucket/internal/testutil"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fails int
}

func (f *fakeSender) Send(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails != 0 {
		if f.fails > 0 {
			f.fails--
		}
		return errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, n.ID)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type wakeCounter struct{ n int }

func (w *wakeCounter) Wake() { w.n++ }

func reload(t *testing.T, db *gorm.DB, id string) models.Notification {
	t.Helper()
	var n models.Notification
	require.NoError(t, db.First(&n, "id = ?", id).Error)
	return n
}

func TestEnqueueRejectsIncompleteMessage(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := Enqueue(db, Message{UserID: 1, Type: models.NotifyPremium})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEnqueueRollsBackWithTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	boom := errors.New("boom")

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Enqueue(tx, Message{UserID: 1, Type: models.NotifyPremium, Title: "hi"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDispatcherDeliversPending(t *testing.T) {
	db := testutil.NewDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sender := &fakeSender{}
	d := NewDispatcher(db, sender, Options{Workers: 2, PollInterval: 20 * time.Millisecond})
	svc := NewService(db, d)

	n, err := svc.Create(context.Background(), Message{UserID: 7, Type: models.NotifyNewFollower, Title: "New follower"})
	require.NoError(t, err)

	d.Start()
	assert.Eventually(t, func() bool {
		return reload(t, db, n.ID).DeliveryStatus == models.DeliverySent
	}, 2*time.Second, 10*time.Millisecond)
	d.Stop()

	got := reload(t, db, n.ID)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.SentAt)
	assert.Equal(t, 1, sender.count())
}

func TestDispatcherRetriesThenFails(t *testing.T) {
	db := testutil.NewDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sender := &fakeSender{fails: -1}
	d := NewDispatcher(db, sender, Options{Workers: 1, PollInterval: 10 * time.Millisecond, MaxAttempts: 3})
	n, err := Enqueue(db, Message{UserID: 7, Type: models.NotifyPremium, Title: "Premium"})
	require.NoError(t, err)

	d.Start()
	assert.Eventually(t, func() bool {
		return reload(t, db, n.ID).DeliveryStatus == models.DeliveryFailed
	}, 2*time.Second, 10*time.Millisecond)
	d.Stop()

	got := reload(t, db, n.ID)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, "telegram unavailable", got.LastError)
	assert.Zero(t, sender.count())
}

func TestDispatcherRecoversAfterTransientFailure(t *testing.T) {
	db := testutil.NewDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sender := &fakeSender{fails: 1}
	d := NewDispatcher(db, sender, Options{Workers: 1, PollInterval: 10 * time.Millisecond})
	n, err := Enqueue(db, Message{UserID: 7, Type: models.NotifyPremium, Title: "Premium"})
	require.NoError(t, err)

	d.Start()
	assert.Eventually(t, func() bool {
		return reload(t, db, n.ID).DeliveryStatus == models.DeliverySent
	}, 2*time.Second, 10*time.Millisecond)
	d.Stop()

	assert.Equal(t, 2, reload(t, db, n.ID).Attempts)
}

func TestProcessPendingClaimsOnce(t *testing.T) {
	db := testutil.NewDB(t)
	for i := 0; i < 3; i++ {
		_, err := Enqueue(db, Message{UserID: 1, Type: models.NotifyPremium, Title: "x"})
		require.NoError(t, err)
	}

	first := NewDispatcher(db, nil, Options{})
	second := NewDispatcher(db, nil, Options{})

	assert.Equal(t, 3, first.ProcessPending(context.Background()))
	assert.Equal(t, 0, second.ProcessPending(context.Background()))
}

func TestProcessPendingReleasesStaleClaims(t *testing.T) {
	db := testutil.NewDB(t)
	n, err := Enqueue(db, Message{UserID: 1, Type: models.NotifyPremium, Title: "x"})
	require.NoError(t, err)

	stale := time.Now().Add(-2 * time.Minute)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", n.ID).
		Updates(map[string]any{"delivery_status": models.DeliverySending, "claimed_at": stale}).Error)

	d := NewDispatcher(db, nil, Options{Lease: time.Minute})
	assert.Equal(t, 1, d.ProcessPending(context.Background()))

	got := reload(t, db, n.ID)
	assert.Equal(t, models.DeliverySending, got.DeliveryStatus)
	require.NotNil(t, got.ClaimedAt)
	assert.True(t, got.ClaimedAt.After(stale))
}

func expireClaim(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", id).
		Update("claimed_at", time.Now().Add(-2*time.Minute)).Error)
}

func TestSupersededClaimIsNotDelivered(t *testing.T) {
	db := testutil.NewDB(t)
	n, err := Enqueue(db, Message{UserID: 1, Type: models.NotifyPremium, Title: "x"})
	require.NoError(t, err)

	slowSender := &fakeSender{}
	slow := NewDispatcher(db, slowSender, Options{Lease: time.Minute})
	require.Equal(t, 1, slow.ProcessPending(context.Background()))
	stuck := <-slow.jobQueue

	expireClaim(t, db, n.ID)
	freshSender := &fakeSender{}
	fresh := NewDispatcher(db, freshSender, Options{Lease: time.Minute})
	require.Equal(t, 1, fresh.ProcessPending(context.Background()))
	reclaimed := <-fresh.jobQueue

	slow.deliver(stuck)
	assert.Equal(t, 0, slowSender.count())
	assert.Equal(t, models.DeliverySending, reload(t, db, n.ID).DeliveryStatus)

	fresh.deliver(reclaimed)
	assert.Equal(t, 1, freshSender.count())
	got := reload(t, db, n.ID)
	assert.Equal(t, models.DeliverySent, got.DeliveryStatus)
	assert.Equal(t, 1, got.Attempts)
}

func TestLateFinishKeepsReleasedClaim(t *testing.T) {
	db := testutil.NewDB(t)
	n, err := Enqueue(db, Message{UserID: 1, Type: models.NotifyPremium, Title: "x"})
	require.NoError(t, err)

	sender := &fakeSender{}
	d := NewDispatcher(db, sender, Options{Lease: time.Minute})
	require.Equal(t, 1, d.ProcessPending(context.Background()))
	job := <-d.jobQueue

	expireClaim(t, db, n.ID)
	d.releaseExpiredClaims(context.Background())
	require.Equal(t, models.DeliveryPending, reload(t, db, n.ID).DeliveryStatus)

	d.deliver(job)
	assert.Equal(t, 1, sender.count())
	assert.Equal(t, models.DeliverySent, reload(t, db, n.ID).DeliveryStatus)

	other := NewDispatcher(db, sender, Options{})
	assert.Equal(t, 0, other.ProcessPending(context.Background()))
}

func TestPerformCleanupDropsOldReadNotifications(t *testing.T) {
	db := testutil.NewDB(t)
	old, err := Enqueue(db, Message{UserID: 1, Type: models.NotifyPremium, Title: "old"})
	require.NoError(t, err)
	recent, err := Enqueue(db, Message{UserID: 1, Type: models.NotifyPremium, Title: "recent"})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", old.ID).
		Updates(map[string]any{"read": true, "read_at": time.Now().AddDate(0, 0, -100)}).Error)
	require.NoError(t, db.Model(&models.Notification{}).Where("id = ?", recent.ID).
		Updates(map[string]any{"read": true, "read_at": time.Now()}).Error)

	d := NewDispatcher(db, nil, Options{})
	assert.EqualValues(t, 1, d.PerformCleanup(context.Background()))
}

func TestInbox(t *testing.T) {
	db := testutil.NewDB(t)
	waker := &wakeCounter{}
	svc := NewService(db, waker)
	ctx := context.Background()

	a, err := svc.Create(ctx, Message{UserID: 1, Type: models.NotifyPremium, Title: "a"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Message{UserID: 1, Type: models.NotifyPremium, Title: "b"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Message{UserID: 2, Type: models.NotifyPremium, Title: "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, waker.n)

	count, err := svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	assert.ErrorIs(t, svc.MarkRead(ctx, 2, a.ID), ErrNotFound, "other users cannot mark it")
	require.NoError(t, svc.MarkRead(ctx, 1, a.ID))
	require.NoError(t, svc.MarkRead(ctx, 1, a.ID))

	unread, err := svc.List(ctx, 1, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "b", unread[0].Title)

	updated, err := svc.MarkAllRead(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated)

	count, err = svc.UnreadCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNotifyFollowers(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&[]models.Friend{
		{UserID: 2, FriendID: 1},
		{UserID: 3, FriendID: 1},
		{UserID: 1, FriendID: 4},
	}).Error)

	svc := NewService(db, nil)
	sent, err := svc.NotifyFollowers(context.Background(), 1, Message{
		Type:  models.NotifyFriendAddedItem,
		Title: "New wish",
		Data:  map[string]any{"wishlistId": "w1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	var users []int64
	require.NoError(t, db.Model(&models.Notification{}).Order("user_id").Pluck("user_id", &users).Error)
	assert.Equal(t, []int64{2, 3}, users)
}

func TestRender(t *testing.T) {
	links := Links{BotUsername: "wishbucket_bot", WebAppURL: "https://t.me/wishbucket_bot/app"}

	r := Render(&models.Notification{
		Type:    models.NotifyItemReserved,
		Title:   "Gift <reserved>",
		Message: "Someone reserved Lego",
		Data:    []byte(`{"wishlistId":"abc"}`),
	}, links)
	assert.True(t, strings.HasPrefix(r.Text, "<b>Gift &lt;reserved&gt;</b>\n\n"))
	require.Len(t, r.Buttons, 1)
	assert.Equal(t, "view_wishlist_abc", r.Buttons[0].CallbackData)

	r = Render(&models.Notification{
		Type:  models.NotifyWishlistShared,
		Title: "Shared",
		Data:  []byte(`{"wishlistId":"abc"}`),
	}, links)
	require.Len(t, r.Buttons, 1)
	assert.Equal(t, "https://t.me/wishbucket_bot?start=wishlist_abc", r.Buttons[0].URL)

	r = Render(&models.Notification{Type: models.NotifyReferralSignup, Title: "Bonus"}, Links{})
	require.Len(t, r.Buttons, 1)
	assert.Equal(t, "invite_friends", r.Buttons[0].CallbackData)

	r = Render(&models.Notification{Type: models.NotifyPremium, Title: "Hi"}, links)
	require.Len(t, r.Buttons, 1)
	assert.Equal(t, links.WebAppURL, r.Buttons[0].URL)

	r = Render(&models.Notification{Type: models.NotifyPremium, Title: "Hi"}, Links{})
	assert.Empty(t, r.Buttons)
}
