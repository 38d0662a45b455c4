package notify

import (
	"fmt"
	"html"

	"github.com/tidwall/gjson"

	"wishbucket/internal/models"
)

// Button is a transport-neutral inline button. Exactly one of CallbackData
// and URL is set.
type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// Rendered is a notification ready for a chat: HTML text plus one button per row.
type Rendered struct {
	Text    string
	Buttons []Button
}

// Links holds what Render needs to build deep links.
type Links struct {
	BotUsername string
	WebAppURL   string
}

func Render(n *models.Notification, links Links) Rendered {
	text := fmt.Sprintf("<b>%s</b>", html.EscapeString(n.Title))
	if n.Message != "" {
		text += "\n\n" + html.EscapeString(n.Message)
	}

	data := gjson.ParseBytes(n.Data)
	var button Button

	switch n.Type {
	case models.NotifyNewFollower:
		button = Button{Text: "👥 View Friends", CallbackData: "view_friends"}
	case models.NotifyItemReserved, models.NotifyItemPurchased, models.NotifyFriendAddedItem, models.NotifyCrowdfunding:
		if id := data.Get("wishlistId").String(); id != "" {
			button = Button{Text: "🎁 View Wishlist", CallbackData: "view_wishlist_" + id}
		}
	case models.NotifyWishlistShared:
		if id := data.Get("wishlistId").String(); id != "" && links.BotUsername != "" {
			button = Button{Text: "🎁 Open Wishlist", URL: fmt.Sprintf("https://t.me/%s?start=wishlist_%s", links.BotUsername, id)}
		}
	case models.NotifyBirthdayReminder:
		if id := data.Get("wishlistId").String(); id != "" {
			button = Button{Text: "🎂 View Friend's Wishlist", CallbackData: "view_wishlist_" + id}
		} else {
			button = Button{Text: "👥 View Friends", CallbackData: "view_friends"}
		}
	case models.NotifyReferralSignup:
		button = Button{Text: "🚀 Invite More Friends", CallbackData: "invite_friends"}
	}

	if button.Text == "" && links.WebAppURL != "" {
		button = Button{Text: "📱 Open WishBucket", URL: links.WebAppURL}
	}

	r := Rendered{Text: text}
	if button.Text != "" {
		r.Buttons = []Button{button}
	}
	return r
}
