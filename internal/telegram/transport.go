// Package telegram is the user-facing surface of the service. It receives
// bot updates, drives the matching engine from them, and relays chat
// traffic between paired users.
package telegram

import (
	"errors"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ghostchat/backend/internal/localization"
	"ghostchat/backend/internal/storage"
)

// Transport sends engine notifications over the Telegram Bot API. The
// (delivered, err) contract: (false, nil) means the recipient can no
// longer be reached at all, while a non-nil error is transient and the
// caller should leave session state alone.
type Transport struct {
	Bot       *tgbotapi.BotAPI
	Storage   storage.Storage
	Localizer *localization.Localizer
}

func NewTransport(bot *tgbotapi.BotAPI, s storage.Storage, l *localization.Localizer) *Transport {
	return &Transport{Bot: bot, Storage: s, Localizer: l}
}

// SendMatchFound delivers the match notice together with the in-chat menu.
func (t *Transport) SendMatchFound(userID int64) (bool, error) {
	lang := t.lang(userID)
	msg := tgbotapi.NewMessage(userID, t.Localizer.GetString(lang, "match_found"))
	msg.ReplyMarkup = mainMenuKeyboard(t.Localizer, lang, true)
	return t.Deliver(msg)
}

// SendChatEnded delivers the end-of-chat notice and, when requested, a
// rating prompt right after it.
func (t *Transport) SendChatEnded(userID int64, reasonKey string, offerRating bool) (bool, error) {
	lang := t.lang(userID)
	msg := tgbotapi.NewMessage(userID, t.Localizer.GetString(lang, reasonKey))
	msg.ReplyMarkup = mainMenuKeyboard(t.Localizer, lang, false)
	delivered, err := t.Deliver(msg)
	if !delivered || err != nil {
		return delivered, err
	}

	if offerRating {
		prompt := tgbotapi.NewMessage(userID, t.Localizer.GetString(lang, "rate_prompt"))
		prompt.ReplyMarkup = ratingKeyboard()
		if _, err := t.Deliver(prompt); err != nil {
			log.Printf("WARNING: Failed to deliver rating prompt to %d: %v", userID, err)
		}
	}
	return true, nil
}

// Deliver sends any chattable and classifies the outcome.
func (t *Transport) Deliver(c tgbotapi.Chattable) (bool, error) {
	if _, err := t.Bot.Send(c); err != nil {
		if isUnreachable(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *Transport) lang(userID int64) string {
	user, err := t.Storage.GetOrCreateUser(userID)
	if err != nil {
		log.Printf("WARNING: Failed to load user %d for localization: %v", userID, err)
		return "ru"
	}
	return user.Lang
}

// isUnreachable reports whether the API error means the recipient is gone
// for good: the bot was blocked, the account was deleted, or the chat
// never existed. Everything else is treated as transient.
func isUnreachable(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == 403 {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "blocked") ||
		strings.Contains(msg, "deactivated") ||
		strings.Contains(msg, "chat not found")
}
