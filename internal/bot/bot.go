// Package bot is the Telegram side of WishBucket: onboarding, gift hint
// capture and notification delivery.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"wishbucket/internal/hints"
	"wishbucket/internal/models"
	"wishbucket/internal/notify"
	"wishbucket/internal/profile"
	"wishbucket/internal/referral"
	"wishbucket/internal/social"
	"wishbucket/internal/wishlist"
)

const recentHints = 5

type Bot struct {
	Instance  *telego.Bot
	Profiles  *profile.Service
	Referrals *referral.Service
	Social    *social.Service
	Wishlists *wishlist.Service
	Hints     *hints.Service
	Links     notify.Links
}

func NewBot(token string, links notify.Links) (*Bot, error) {
	tgBot, err := telego.NewBot(token, telego.WithLogger(log.StandardLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Bot{Instance: tgBot, Links: links}, nil
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("create bot handler: %w", err)
	}

	handler.Handle(b.handleStart, th.CommandEqual("start"))
	handler.Handle(b.handleHints, th.CommandEqual("hints"))
	handler.Handle(b.handleInvite, th.CallbackDataEqual(callbackInvite))
	handler.Handle(b.handleFriends, th.CallbackDataEqual(callbackFriends))
	handler.Handle(b.handleWishlistCallback, th.CallbackDataPrefix(callbackWishlistPref))
	handler.Handle(b.handleMessage, th.AnyMessage())

	go func() {
		<-ctx.Done()
		if err := handler.Stop(); err != nil {
			log.WithError(err).Warn("Bot handler stop failed")
		}
	}()
	log.Info("Telegram bot started")
	return handler.Start()
}

func (b *Bot) openAppKeyboard(text string) *telego.InlineKeyboardMarkup {
	if b.Links.WebAppURL == "" {
		return nil
	}
	return tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton(text).WithURL(b.Links.WebAppURL),
	))
}

func (b *Bot) reply(ctx *th.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup) {
	params := tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML)
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	if _, err := ctx.Bot().SendMessage(ctx.Context(), params); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("Failed to send bot reply")
	}
}

func (b *Bot) handleStart(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil {
		return nil
	}
	userID := message.From.ID
	logger := log.WithField("user_id", userID)

	if _, _, err := b.Profiles.GetOrCreate(ctx.Context(), telegramUser(message.From)); err != nil {
		logger.WithError(err).Error("Failed to get/create user")
	}

	b.reply(ctx, message.Chat.ID, welcomeText, b.openAppKeyboard("📱 Open WishBucket"))

	kind, value := startPayload(message.Text)
	switch kind {
	case payloadReferral:
		result, err := b.Referrals.Apply(ctx.Context(), userID, value)
		switch {
		case err == nil:
			b.reply(ctx, message.Chat.ID, fmt.Sprintf("🎉 Referral applied! You received %d bonus points.", result.BonusCredited), nil)
		case errors.Is(err, referral.ErrInvalidCode),
			errors.Is(err, referral.ErrSelfReferral),
			errors.Is(err, referral.ErrAlreadyRedeemed):
			b.reply(ctx, message.Chat.ID, "⚠️ "+err.Error(), nil)
		default:
			logger.WithError(err).Error("Failed to apply referral from /start")
		}
	case payloadWishlist:
		b.showWishlist(ctx, userID, message.Chat.ID, value)
	}
	return nil
}

func (b *Bot) handleHints(ctx *th.Context, update telego.Update) error {
	message := update.Message
	if message.From == nil {
		return nil
	}
	list, err := b.Hints.Recent(ctx.Context(), message.From.ID, recentHints)
	if err != nil {
		log.WithError(err).WithField("user_id", message.From.ID).Error("Failed to load hints")
		b.reply(ctx, message.Chat.ID, "❌ Sorry, couldn't load your hints. Please try again.", nil)
		return nil
	}
	var markup *telego.InlineKeyboardMarkup
	if len(list) > 0 {
		markup = b.openAppKeyboard("📱 Open WishBucket")
	}
	b.reply(ctx, message.Chat.ID, hintsText(list), markup)
	return nil
}

// handleMessage saves forwarded messages as hints and answers anything else
// with a tip.
func (b *Bot) handleMessage(ctx *th.Context, update telego.Update) error {
	message := update.Message
	f, ok := forwardedHint(message)
	if !ok {
		b.reply(ctx, message.Chat.ID, tipText, b.openAppKeyboard("📱 Open WishBucket"))
		return nil
	}

	if _, _, err := b.Profiles.GetOrCreate(ctx.Context(), telegramUser(message.From)); err != nil {
		log.WithError(err).WithField("user_id", message.From.ID).Error("Failed to get/create user")
	}
	h, err := b.Hints.SaveForwarded(ctx.Context(), f)
	if err != nil {
		log.WithError(err).WithField("user_id", f.OwnerID).Error("Error saving hint")
		b.reply(ctx, message.Chat.ID, "❌ Sorry, couldn't save this hint. Please try again.", nil)
		return nil
	}
	b.reply(ctx, message.Chat.ID, hintSavedText(h), b.openAppKeyboard("📱 View Hints"))
	return nil
}

func (b *Bot) answer(ctx *th.Context, callback *telego.CallbackQuery) {
	if err := ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID)); err != nil {
		log.WithError(err).Debug("Failed to answer callback")
	}
}

func (b *Bot) handleInvite(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	defer b.answer(ctx, callback)

	stats, err := b.Referrals.Stats(ctx.Context(), callback.From.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", callback.From.ID).Error("Failed to load referral stats")
		b.reply(ctx, callback.From.ID, "❌ Open the app first to get your invite link.", b.openAppKeyboard("📱 Open WishBucket"))
		return nil
	}
	b.reply(ctx, callback.From.ID, inviteText(stats), nil)
	return nil
}

func (b *Bot) handleFriends(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	defer b.answer(ctx, callback)

	friends, err := b.Social.Following(ctx.Context(), callback.From.ID)
	if err != nil {
		log.WithError(err).WithField("user_id", callback.From.ID).Error("Failed to load friends")
		return nil
	}
	b.reply(ctx, callback.From.ID, friendsText(friends), b.openAppKeyboard("📱 Open WishBucket"))
	return nil
}

func (b *Bot) handleWishlistCallback(ctx *th.Context, update telego.Update) error {
	callback := update.CallbackQuery
	defer b.answer(ctx, callback)

	id := strings.TrimPrefix(callback.Data, callbackWishlistPref)
	b.showWishlist(ctx, callback.From.ID, callback.From.ID, id)
	return nil
}

func (b *Bot) showWishlist(ctx *th.Context, viewerID, chatID int64, id string) {
	wl, err := b.Wishlists.Get(ctx.Context(), viewerID, id)
	if errors.Is(err, wishlist.ErrNotFound) {
		b.reply(ctx, chatID, "🔍 This wishlist is private or no longer exists.", nil)
		return
	}
	if err != nil {
		log.WithError(err).WithField("wishlist_id", id).Error("Failed to load wishlist")
		return
	}

	var markup *telego.InlineKeyboardMarkup
	if b.Links.WebAppURL != "" {
		markup = tu.InlineKeyboard(tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🎁 Open Wishlist").WithURL(wishlistAppLink(b.Links.WebAppURL, wl.ID)),
		))
	}
	b.reply(ctx, chatID, wishlistText(wl), markup)
}

func wishlistAppLink(webAppURL, id string) string {
	sep := "?"
	if strings.Contains(webAppURL, "?") {
		sep = "&"
	}
	return webAppURL + sep + "startapp=" + payloadWishlist + id
}

// Send delivers an outbox notification to the recipient's chat.
func (b *Bot) Send(ctx context.Context, n *models.Notification) error {
	r := notify.Render(n, b.Links)
	params := tu.Message(tu.ID(n.UserID), r.Text).WithParseMode(telego.ModeHTML)
	if markup := keyboard(r.Buttons); markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	if _, err := b.Instance.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// ResendHint sends a stored hint, media included, back to its owner.
func (b *Bot) ResendHint(ctx context.Context, h models.GiftHint) error {
	chat := tu.ID(h.UserID)
	caption := resendCaption(h)

	var err error
	switch {
	case h.MediaFileID != "" && h.MessageType == "photo":
		_, err = b.Instance.SendPhoto(ctx, tu.Photo(chat, tu.FileFromID(h.MediaFileID)).
			WithCaption(caption).WithParseMode(telego.ModeHTML))
	case h.MediaFileID != "" && h.MessageType == "video":
		_, err = b.Instance.SendVideo(ctx, tu.Video(chat, tu.FileFromID(h.MediaFileID)).
			WithCaption(caption).WithParseMode(telego.ModeHTML))
	case h.MediaFileID != "" && h.MessageType == "voice":
		_, err = b.Instance.SendVoice(ctx, tu.Voice(chat, tu.FileFromID(h.MediaFileID)).
			WithCaption(caption).WithParseMode(telego.ModeHTML))
	case h.MediaFileID != "" && h.MessageType == "document":
		_, err = b.Instance.SendDocument(ctx, tu.Document(chat, tu.FileFromID(h.MediaFileID)).
			WithCaption(caption).WithParseMode(telego.ModeHTML))
	default:
		_, err = b.Instance.SendMessage(ctx, tu.Message(chat, caption).WithParseMode(telego.ModeHTML))
	}
	if err != nil {
		return fmt.Errorf("resend hint: %w", err)
	}
	return nil
}
