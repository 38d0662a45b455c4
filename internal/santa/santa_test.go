package santa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wishbucket/internal/models"
	"wishbucket/internal/testutil"
)

func setup(t *testing.T, users int) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	for i := 1; i <= users; i++ {
		testutil.CreateUser(t, db, int64(i), "AAAAAAA"+string(rune('0'+i)))
	}
	return NewService(db, nil), db
}

func TestCreateAndJoin(t *testing.T) {
	svc, _ := setup(t, 3)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, CreateInput{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	ss, err := svc.Create(ctx, 1, CreateInput{Name: "Office party"})
	require.NoError(t, err)
	require.Len(t, ss.Participants, 1)
	assert.Equal(t, int64(1), ss.Participants[0].UserID)

	_, err = svc.Get(ctx, 2, ss.ID)
	assert.ErrorIs(t, err, ErrNotFound, "outsiders do not see the exchange")

	joined, err := svc.Join(ctx, 2, ss.ID)
	require.NoError(t, err)
	assert.Len(t, joined.Participants, 2)

	_, err = svc.Join(ctx, 2, ss.ID)
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	_, err = svc.Join(ctx, 2, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := svc.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ss.ID, mine[0].ID)

	none, err := svc.List(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDrawRules(t *testing.T) {
	svc, _ := setup(t, 3)
	ctx := context.Background()

	ss, err := svc.Create(ctx, 1, CreateInput{Name: "Family"})
	require.NoError(t, err)

	_, err = svc.Draw(ctx, 1, ss.ID)
	assert.ErrorIs(t, err, ErrNotEnoughParticipants)

	_, err = svc.Join(ctx, 2, ss.ID)
	require.NoError(t, err)
	_, err = svc.Draw(ctx, 2, ss.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Assignment(ctx, 2, ss.ID)
	assert.ErrorIs(t, err, ErrNotDrawn)

	drawn, err := svc.Draw(ctx, 1, ss.ID)
	require.NoError(t, err)
	assert.True(t, drawn.IsDrawn)

	_, err = svc.Draw(ctx, 1, ss.ID)
	assert.ErrorIs(t, err, ErrAlreadyDrawn)
	_, err = svc.Join(ctx, 3, ss.ID)
	assert.ErrorIs(t, err, ErrAlreadyDrawn)

	a1, err := svc.Assignment(ctx, 1, ss.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), a1.Receiver.ID)
	a2, err := svc.Assignment(ctx, 2, ss.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a2.Receiver.ID)
	assert.Equal(t, "User1", a2.Receiver.FirstName)
}

func TestDrawIsADerangement(t *testing.T) {
	svc, db := setup(t, 7)
	ctx := context.Background()

	ss, err := svc.Create(ctx, 1, CreateInput{Name: "Big group"})
	require.NoError(t, err)
	for i := int64(2); i <= 7; i++ {
		_, err := svc.Join(ctx, i, ss.ID)
		require.NoError(t, err)
	}
	_, err = svc.Draw(ctx, 1, ss.ID)
	require.NoError(t, err)

	var ps []models.SecretSantaParticipant
	require.NoError(t, db.Where("santa_id = ?", ss.ID).Find(&ps).Error)
	require.Len(t, ps, 7)

	received := map[int64]int{}
	for _, p := range ps {
		require.NotNil(t, p.ReceiverID)
		assert.NotEqual(t, p.UserID, *p.ReceiverID, "nobody gifts themselves")
		received[*p.ReceiverID]++
	}
	assert.Len(t, received, 7)
	for id, n := range received {
		assert.Equal(t, 1, n, "user %d receives once", id)
	}

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("type = ?", models.NotifySecretSanta).Count(&count).Error)
	assert.Equal(t, int64(7), count)
}

func TestDrawUsesShuffledOrder(t *testing.T) {
	svc, _ := setup(t, 3)
	ctx := context.Background()
	svc.shuffle = func(n int, swap func(i, j int)) { swap(0, n-1) }

	ss, err := svc.Create(ctx, 1, CreateInput{Name: "Trio"})
	require.NoError(t, err)
	for _, id := range []int64{2, 3} {
		_, err := svc.Join(ctx, id, ss.ID)
		require.NoError(t, err)
	}
	_, err = svc.Draw(ctx, 1, ss.ID)
	require.NoError(t, err)

	// order after the swap is 3, 2, 1: 3 gives to 2, 2 to 1, 1 to 3.
	a, err := svc.Assignment(ctx, 1, ss.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.Receiver.ID)
}
