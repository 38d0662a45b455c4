package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wishbucket/internal/config"
	"wishbucket/internal/models"
	"wishbucket/internal/testutil"
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func fakeYooKassa(t *testing.T, seen *CreatePaymentRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "shop", user)
		assert.Equal(t, "secret", pass)
		assert.NotEmpty(t, r.Header.Get("Idempotence-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))

		_ = json.NewEncoder(w).Encode(PaymentResponse{
			ID:           "pay-1",
			Status:       "pending",
			Amount:       seen.Amount,
			Confirmation: Confirmation{Type: "redirect", ConfirmationURL: "https://yoomoney.ru/checkout/pay-1"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, apiURL string) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, 1, "AAAAAAA1")

	client := NewClient("shop", "secret")
	if apiURL != "" {
		client.APIURL = apiURL
	}
	cfg := &config.Config{PremiumPrice: "299.00", PremiumCurrency: "RUB", PremiumDays: 30, WebAppURL: "https://t.me/bot/app"}
	svc := NewService(db, client, cfg, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, db
}

func TestCheckout(t *testing.T) {
	var seen CreatePaymentRequest
	srv := fakeYooKassa(t, &seen)
	svc, db := setup(t, srv.URL)

	co, err := svc.Checkout(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", co.PaymentID)
	assert.Equal(t, "https://yoomoney.ru/checkout/pay-1", co.ConfirmationURL)

	assert.Equal(t, Amount{Value: "299.00", Currency: "RUB"}, seen.Amount)
	assert.Equal(t, "1", seen.Metadata["telegram_id"])
	assert.Equal(t, "30", seen.Metadata["days"])
	assert.Equal(t, "https://t.me/bot/app", seen.Confirmation.ReturnURL)

	var p models.Payment
	require.NoError(t, db.First(&p, "provider_id = ?", "pay-1").Error)
	assert.Equal(t, models.PaymentPending, p.Status)
	assert.Equal(t, 299.0, p.Amount)

	_, err = svc.Checkout(context.Background(), 99)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestCheckoutRequiresCredentials(t *testing.T) {
	svc, _ := setup(t, "")
	svc.client = NewClient("", "")
	_, err := svc.Checkout(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func succeeded(id string) WebhookObject {
	return WebhookObject{
		ID:       id,
		Status:   "succeeded",
		Paid:     true,
		Amount:   Amount{Value: "299.00", Currency: "RUB"},
		Metadata: map[string]string{"telegram_id": "1", "type": "premium", "days": "30"},
	}
}

func TestApplySucceededIsIdempotent(t *testing.T) {
	svc, db := setup(t, "")
	ctx := context.Background()

	require.NoError(t, svc.ApplySucceeded(ctx, succeeded("pay-9")))
	require.NoError(t, svc.ApplySucceeded(ctx, succeeded("pay-9")))

	u := testutil.ReloadUser(t, db, 1)
	assert.Equal(t, models.PremiumPremium, u.PremiumStatus)
	require.NotNil(t, u.PremiumExpiresAt)
	assert.True(t, fixedNow.AddDate(0, 0, 30).Equal(*u.PremiumExpiresAt))

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("type = ?", models.NotifyPremium).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, svc.ApplySucceeded(ctx, succeeded("pay-10")))
	u = testutil.ReloadUser(t, db, 1)
	assert.True(t, fixedNow.AddDate(0, 0, 60).Equal(*u.PremiumExpiresAt), "renewal extends the running period")
}

func TestApplySucceededRejectsBadMetadata(t *testing.T) {
	svc, _ := setup(t, "")
	obj := succeeded("pay-x")
	obj.Metadata = nil
	assert.ErrorIs(t, svc.ApplySucceeded(context.Background(), obj), ErrBadMetadata)
}

func TestHandleWebhook(t *testing.T) {
	svc, db := setup(t, "")
	h := NewHandler(svc, []string{"185.71.76.0/27"}, false)

	body := func(event, id string) *strings.Reader {
		raw, _ := json.Marshal(WebhookNotification{Type: "notification", Event: event, Object: succeeded(id)})
		return strings.NewReader(string(raw))
	}

	r := httptest.NewRequest(http.MethodPost, "/webhooks/yookassa", body(EventSucceeded, "pay-1"))
	r.RemoteAddr = "8.8.8.8:1234"
	w := httptest.NewRecorder()
	h.HandleWebhook(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	r = httptest.NewRequest(http.MethodPost, "/webhooks/yookassa", body(EventSucceeded, "pay-1"))
	r.RemoteAddr = "185.71.76.5:1234"
	w = httptest.NewRecorder()
	h.HandleWebhook(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PremiumPremium, testutil.ReloadUser(t, db, 1).PremiumStatus)

	require.NoError(t, db.Create(&models.Payment{
		UserID: 1, Currency: "RUB", Status: models.PaymentPending, Type: models.PaymentTypePremium, ProviderID: "pay-2",
	}).Error)
	r = httptest.NewRequest(http.MethodPost, "/webhooks/yookassa", body(EventCanceled, "pay-2"))
	r.RemoteAddr = "185.71.76.5:1234"
	w = httptest.NewRecorder()
	h.HandleWebhook(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	var p models.Payment
	require.NoError(t, db.First(&p, "provider_id = ?", "pay-2").Error)
	assert.Equal(t, models.PaymentCanceled, p.Status)

	r = httptest.NewRequest(http.MethodPost, "/webhooks/yookassa", strings.NewReader("{"))
	r.RemoteAddr = "185.71.76.5:1234"
	w = httptest.NewRecorder()
	h.HandleWebhook(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
