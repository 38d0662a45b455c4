package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"wishbucket/internal/hints"
	"wishbucket/internal/identity"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
	"wishbucket/internal/referral"
	"wishbucket/internal/social"
)

const (
	payloadReferral = "ref_"
	payloadWishlist = "wishlist_"

	callbackInvite       = "invite_friends"
	callbackFriends      = "view_friends"
	callbackWishlistPref = "view_wishlist_"
)

const welcomeText = "👋 <b>Welcome to WishBucket!</b>\n\n" +
	"I help you remember gift ideas from your chats.\n\n" +
	"<b>How to use:</b>\n" +
	"1️⃣ When someone mentions they want something, <b>forward that message to me</b>\n" +
	"2️⃣ I'll save it as a gift hint for that person\n" +
	"3️⃣ Open the app to see all your saved hints\n\n" +
	"💡 <b>Supported:</b> Text, photos, voice messages, videos\n\n" +
	"Forward a message now to get started!"

const tipText = "💡 <b>Tip:</b> To save a gift hint, <b>forward a message</b> from your chat!\n\n" +
	"When someone says they want something, just forward that message to me and I'll remember it for you."

const noHintsText = "📭 You don't have any saved hints yet.\n\n" +
	"Forward a message from a chat to save a gift idea!"

// startPayload splits "/start <payload>" into its kind and value.
func startPayload(text string) (kind, value string) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return "", ""
	}
	payload := fields[1]
	for _, prefix := range []string{payloadReferral, payloadWishlist} {
		if v, ok := strings.CutPrefix(payload, prefix); ok && v != "" {
			return prefix, v
		}
	}
	return "", ""
}

func telegramUser(u *telego.User) identity.TelegramUser {
	return identity.TelegramUser{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
		IsPremium:    u.IsPremium,
	}
}

// truncate shortens s to n runes, adding an ellipsis when it cut something.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func hintsText(list []models.GiftHint) string {
	if len(list) == 0 {
		return noHintsText
	}
	var b strings.Builder
	b.WriteString("🎁 <b>Your Recent Gift Hints:</b>\n\n")
	for _, h := range list {
		name := h.AboutName
		if name == "" {
			name = "Someone"
		}
		preview := "[Media]"
		if h.HintText != "" {
			preview = truncate(h.HintText, 50)
		}
		fmt.Fprintf(&b, "• <b>%s</b>: %s\n", html.EscapeString(name), html.EscapeString(preview))
	}
	b.WriteString("\n📱 Open the app to see all hints and manage them.")
	return b.String()
}

func hintSavedText(h *models.GiftHint) string {
	preview := "[Media message]"
	if h.HintText != "" {
		preview = truncate(h.HintText, 100)
	}
	label := ""
	if h.MessageType != "text" {
		label = " (" + h.MessageType + ")"
	}
	return fmt.Sprintf("✅ <b>Gift hint saved!</b>\n\n👤 <b>From:</b> %s\n💬 <b>Hint:</b> %s%s\n\nYou can view all hints in the app.",
		html.EscapeString(h.AboutName), html.EscapeString(preview), label)
}

func resendCaption(h models.GiftHint) string {
	text := fmt.Sprintf("🎁 <b>Gift hint from %s</b>", html.EscapeString(h.AboutName))
	if h.HintText != "" {
		text += "\n\n" + html.EscapeString(h.HintText)
	}
	if h.Notes != "" {
		text += "\n\n📝 " + html.EscapeString(h.Notes)
	}
	return text
}

func wishlistText(wl *models.Wishlist) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎁 <b>%s</b>\n", html.EscapeString(wl.Name))
	if wl.Description != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(wl.Description))
	}
	b.WriteString("\n")
	if len(wl.Items) == 0 {
		b.WriteString("No items yet.")
		return b.String()
	}
	for _, it := range wl.Items {
		line := "• " + html.EscapeString(it.Name)
		if it.Price != nil {
			line += fmt.Sprintf(" · %.2f %s", *it.Price, it.Currency)
		}
		switch it.Status {
		case models.ItemReserved:
			line += " 🔒"
		case models.ItemPurchased:
			line += " ✅"
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func friendsText(friends []social.Friend) string {
	if len(friends) == 0 {
		return "👥 You are not following anyone yet.\n\nOpen the app to find your friends!"
	}
	var b strings.Builder
	b.WriteString("👥 <b>Your Friends:</b>\n\n")
	for _, f := range friends {
		name := strings.TrimSpace(f.FirstName + " " + f.LastName)
		if f.Username != "" {
			name += " (@" + f.Username + ")"
		}
		fmt.Fprintf(&b, "• %s\n", html.EscapeString(name))
	}
	return strings.TrimRight(b.String(), "\n")
}

func inviteText(stats *referral.Stats) string {
	return fmt.Sprintf("🚀 <b>Invite Friends</b>\n\n"+
		"Share your link and both of you get bonus points!\n\n"+
		"👥 Invited: %d\n"+
		"⭐ Earned: %d points\n\n"+
		"🔗 <b>Your link:</b>\n<code>%s</code>",
		stats.TotalReferrals, stats.TotalBonusEarned, html.EscapeString(stats.ReferralLink))
}

// forwardedHint describes a forwarded message as a hint, or reports false
// when m was not forwarded.
func forwardedHint(m *telego.Message) (hints.Forwarded, bool) {
	if m == nil || m.ForwardOrigin == nil || m.From == nil {
		return hints.Forwarded{}, false
	}
	f := hints.Forwarded{
		OwnerID:   m.From.ID,
		MessageID: m.MessageID,
		ChatID:    m.Chat.ID,
		Text:      m.Text,
	}
	if f.Text == "" {
		f.Text = m.Caption
	}
	f.MessageType, f.MediaFileID = media(m)

	var date int64
	switch o := m.ForwardOrigin.(type) {
	case *telego.MessageOriginUser:
		f.FromName = strings.TrimSpace(o.SenderUser.FirstName + " " + o.SenderUser.LastName)
		f.FromUsername = o.SenderUser.Username
		id := o.SenderUser.ID
		f.FromUserID = &id
		date = o.Date
	case *telego.MessageOriginHiddenUser:
		f.FromName = o.SenderUserName
		date = o.Date
	case *telego.MessageOriginChat:
		f.FromName = chatName(o.SenderChat)
		f.FromUsername = o.SenderChat.Username
		date = o.Date
	case *telego.MessageOriginChannel:
		f.FromName = chatName(o.Chat)
		f.FromUsername = o.Chat.Username
		date = o.Date
	}
	if date > 0 {
		t := time.Unix(date, 0).UTC()
		f.ForwardDate = &t
	}
	return f, true
}

func chatName(c telego.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return "Channel"
}

// media returns the hint type of m and the file id of its attachment.
func media(m *telego.Message) (string, string) {
	switch {
	case m.Voice != nil:
		return "voice", m.Voice.FileID
	case m.Video != nil:
		return "video", m.Video.FileID
	case m.VideoNote != nil:
		return "video_note", m.VideoNote.FileID
	case len(m.Photo) > 0:
		largest := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width > largest.Width {
				largest = p
			}
		}
		return "photo", largest.FileID
	case m.Document != nil:
		return "document", m.Document.FileID
	default:
		return "text", ""
	}
}

// keyboard turns rendered buttons into one inline row each.
func keyboard(buttons []notify.Button) *telego.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		b := tu.InlineKeyboardButton(btn.Text)
		if btn.URL != "" {
			b = b.WithURL(btn.URL)
		} else {
			b = b.WithCallbackData(btn.CallbackData)
		}
		rows = append(rows, tu.InlineKeyboardRow(b))
	}
	return tu.InlineKeyboard(rows...)
}
