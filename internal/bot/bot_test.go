package bot

import (
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishbucket/internal/models"
	"wishbucket/internal/notify"
)

func TestStartPayload(t *testing.T) {
	cases := []struct {
		text, kind, value string
	}{
		{"/start", "", ""},
		{"/start ref_ABC12345", payloadReferral, "ABC12345"},
		{"/start wishlist_42", payloadWishlist, "42"},
		{"/start ref_", "", ""},
		{"/start hello", "", ""},
	}
	for _, tc := range cases {
		kind, value := startPayload(tc.text)
		assert.Equal(t, tc.kind, kind, tc.text)
		assert.Equal(t, tc.value, value, tc.text)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "при...", truncate("привет", 3))
}

func TestForwardedHintFromUser(t *testing.T) {
	m := &telego.Message{
		MessageID: 7,
		From:      &telego.User{ID: 100, FirstName: "Me"},
		Chat:      telego.Chat{ID: 100},
		Text:      "I'd love a new <kettle>",
		ForwardOrigin: &telego.MessageOriginUser{
			Type:       "user",
			Date:       1700000000,
			SenderUser: telego.User{ID: 200, FirstName: "Anna", LastName: "K", Username: "anna"},
		},
	}

	f, ok := forwardedHint(m)
	require.True(t, ok)
	assert.Equal(t, int64(100), f.OwnerID)
	assert.Equal(t, 7, f.MessageID)
	assert.Equal(t, "Anna K", f.FromName)
	assert.Equal(t, "anna", f.FromUsername)
	require.NotNil(t, f.FromUserID)
	assert.Equal(t, int64(200), *f.FromUserID)
	assert.Equal(t, "text", f.MessageType)
	require.NotNil(t, f.ForwardDate)
	assert.Equal(t, int64(1700000000), f.ForwardDate.Unix())
}

func TestForwardedHintOrigins(t *testing.T) {
	hidden := &telego.Message{
		From:          &telego.User{ID: 1},
		Caption:       "look at this",
		Voice:         &telego.Voice{FileID: "voice-1"},
		ForwardOrigin: &telego.MessageOriginHiddenUser{Type: "hidden_user", SenderUserName: "Secret Friend"},
	}
	f, ok := forwardedHint(hidden)
	require.True(t, ok)
	assert.Equal(t, "Secret Friend", f.FromName)
	assert.Nil(t, f.FromUserID)
	assert.Equal(t, "look at this", f.Text)
	assert.Equal(t, "voice", f.MessageType)
	assert.Equal(t, "voice-1", f.MediaFileID)

	channel := &telego.Message{
		From: &telego.User{ID: 1},
		ForwardOrigin: &telego.MessageOriginChannel{
			Type: "channel",
			Chat: telego.Chat{ID: -100, Type: "channel", Title: "Gift Ideas", Username: "gifts"},
		},
	}
	f, ok = forwardedHint(channel)
	require.True(t, ok)
	assert.Equal(t, "Gift Ideas", f.FromName)
	assert.Equal(t, "gifts", f.FromUsername)
	assert.Nil(t, f.ForwardDate)

	_, ok = forwardedHint(&telego.Message{From: &telego.User{ID: 1}, Text: "hi"})
	assert.False(t, ok)
}

func TestMediaPicksLargestPhoto(t *testing.T) {
	m := &telego.Message{Photo: []telego.PhotoSize{
		{FileID: "small", Width: 90},
		{FileID: "large", Width: 1280},
		{FileID: "medium", Width: 320},
	}}
	kind, id := media(m)
	assert.Equal(t, "photo", kind)
	assert.Equal(t, "large", id)

	kind, id = media(&telego.Message{Document: &telego.Document{FileID: "doc"}})
	assert.Equal(t, "document", kind)
	assert.Equal(t, "doc", id)

	kind, id = media(&telego.Message{Text: "plain"})
	assert.Equal(t, "text", kind)
	assert.Empty(t, id)
}

func TestHintsText(t *testing.T) {
	assert.Equal(t, noHintsText, hintsText(nil))

	text := hintsText([]models.GiftHint{
		{AboutName: "Anna & Co", HintText: strings.Repeat("a", 60)},
		{MessageType: "photo"},
	})
	assert.Contains(t, text, "<b>Anna &amp; Co</b>")
	assert.Contains(t, text, strings.Repeat("a", 50)+"...")
	assert.Contains(t, text, "<b>Someone</b>: [Media]")
}

func TestWishlistText(t *testing.T) {
	price := 19.5
	wl := &models.Wishlist{
		Name: "Birthday",
		Items: []models.WishlistItem{
			{Name: "Book", Price: &price, Currency: "USD", Status: models.ItemAvailable},
			{Name: "Lamp", Status: models.ItemReserved},
			{Name: "Mug", Status: models.ItemPurchased},
		},
	}
	text := wishlistText(wl)
	assert.Contains(t, text, "🎁 <b>Birthday</b>")
	assert.Contains(t, text, "• Book · 19.50 USD")
	assert.Contains(t, text, "• Lamp 🔒")
	assert.Contains(t, text, "• Mug ✅")

	assert.Contains(t, wishlistText(&models.Wishlist{Name: "Empty"}), "No items yet.")
}

func TestKeyboard(t *testing.T) {
	assert.Nil(t, keyboard(nil))

	kb := keyboard([]notify.Button{
		{Text: "Open", URL: "https://t.me/wishbucket_bot/app"},
		{Text: "Friends", CallbackData: callbackFriends},
	})
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "https://t.me/wishbucket_bot/app", kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, callbackFriends, kb.InlineKeyboard[1][0].CallbackData)
}

func TestWishlistAppLink(t *testing.T) {
	assert.Equal(t, "https://t.me/b/app?startapp=wishlist_7", wishlistAppLink("https://t.me/b/app", "7"))
	assert.Equal(t, "https://x.test/?a=1&startapp=wishlist_7", wishlistAppLink("https://x.test/?a=1", "7"))
}
