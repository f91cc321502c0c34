package telegram

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ghostchat/backend/internal/config"
	"ghostchat/backend/internal/interests"
	"ghostchat/backend/internal/localization"
	"ghostchat/backend/internal/matching"
	"ghostchat/backend/internal/models"
	"ghostchat/backend/internal/moderation"
	"ghostchat/backend/internal/premium"
	"ghostchat/backend/internal/storage"
)

var supportedLangs = []string{"ru", "en", "uk"}

// BotService receives Telegram updates and routes them to the matching
// engine, the moderation service and the premium service.
type BotService struct {
	BotAPI     *tgbotapi.BotAPI
	Transport  *Transport
	Storage    storage.Storage
	Engine     *matching.Engine
	Moderation *moderation.Service
	Premium    *premium.Service
	Localizer  *localization.Localizer
	Cfg        *config.Config

	// reporting tracks users who were asked to pick a report reason.
	// The update loop is single-goroutine, so no locking here.
	reporting map[int64]bool
}

// NewBotService creates a new BotService instance.
func NewBotService(
	bot *tgbotapi.BotAPI,
	tr *Transport,
	s storage.Storage,
	engine *matching.Engine,
	mod *moderation.Service,
	prem *premium.Service,
	localizer *localization.Localizer,
	cfg *config.Config,
) *BotService {
	return &BotService{
		BotAPI:     bot,
		Transport:  tr,
		Storage:    s,
		Engine:     engine,
		Moderation: mod,
		Premium:    prem,
		Localizer:  localizer,
		Cfg:        cfg,
		reporting:  make(map[int64]bool),
	}
}

// Run is the main loop for receiving Telegram updates.
func (s *BotService) Run() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.PreCheckoutQuery != nil:
			s.handlePreCheckout(update.PreCheckoutQuery)
		case update.Message != nil:
			s.handleMessage(update.Message)
		case update.CallbackQuery != nil:
			s.handleCallbackQuery(update.CallbackQuery)
		}
	}
}

func (s *BotService) handleMessage(msg *tgbotapi.Message) {
	if !msg.Chat.IsPrivate() {
		return
	}
	chatID := msg.Chat.ID

	user, err := s.Storage.GetOrCreateUser(chatID)
	if err != nil {
		log.Printf("ERROR: Failed to get/create user %d: %v", chatID, err)
		return
	}
	lang := user.Lang

	if user.Banned(time.Now()) {
		s.reply(chatID, s.Localizer.GetString(lang, "account_banned"), nil)
		return
	}

	if msg.SuccessfulPayment != nil {
		s.handleSuccessfulPayment(user, msg.SuccessfulPayment)
		return
	}

	if msg.IsCommand() {
		s.handleCommand(user, msg)
		return
	}

	if s.reporting[chatID] && msg.Text != "" {
		s.handleReportReason(user, msg.Text)
		return
	}

	switch {
	case s.buttonIs(msg.Text, "btn_find"):
		s.handleFind(user)
	case s.buttonIs(msg.Text, "btn_cancel_search"):
		s.handleCancelSearch(user)
	case s.buttonIs(msg.Text, "btn_end"):
		s.handleEndDialog(user)
	case s.buttonIs(msg.Text, "btn_skip"):
		s.handleSkip(user)
	case s.buttonIs(msg.Text, "btn_interests"):
		s.sendInterestsMenu(user)
	case s.buttonIs(msg.Text, "btn_profile"):
		s.sendProfile(user)
	case s.buttonIs(msg.Text, "btn_settings"):
		s.sendSettingsMenu(user)
	case s.buttonIs(msg.Text, "btn_premium"):
		s.sendPremiumMenu(user)
	case s.buttonIs(msg.Text, "btn_rules"):
		s.reply(chatID, s.Localizer.GetString(lang, "rules_text"), nil)
	case s.buttonIs(msg.Text, "btn_report"):
		s.handleReportStart(user)
	default:
		s.relayMessage(user, msg)
	}
}

func (s *BotService) handleCommand(user *models.User, msg *tgbotapi.Message) {
	lang := user.Lang
	switch msg.Command() {
	case "start":
		state, _ := s.Storage.GetState(user.ID)
		kb := mainMenuKeyboard(s.Localizer, lang, state == models.StateChatting)
		s.reply(user.ID, s.Localizer.GetString(lang, "welcome"), kb)
	case "find":
		s.handleFind(user)
	case "stop":
		s.handleEndDialog(user)
	case "next":
		s.handleSkip(user)
	case "rules":
		s.reply(user.ID, s.Localizer.GetString(lang, "rules_text"), nil)
	case "trial":
		s.grantTrial(user)
	case "promo":
		s.redeemPromo(user, msg.CommandArguments())
	case "ban":
		s.adminBan(user, msg.CommandArguments(), true)
	case "unban":
		s.adminBan(user, msg.CommandArguments(), false)
	case "stats":
		s.adminStats(user)
	}
}

// --- search and chat lifecycle ---

func (s *BotService) handleFind(user *models.User) {
	lang := user.Lang
	state, err := s.Storage.GetState(user.ID)
	if err != nil {
		log.Printf("ERROR: Failed to read state for %d: %v", user.ID, err)
		return
	}
	switch state {
	case models.StateChatting:
		s.reply(user.ID, s.Localizer.GetString(lang, "already_chatting"),
			mainMenuKeyboard(s.Localizer, lang, true))
		return
	case models.StateSearching:
		text := s.Localizer.GetString(lang, "already_searching")
		pos, posErr := s.Storage.QueuePosition(user.ID)
		size, sizeErr := s.Storage.QueueSize()
		if posErr == nil && sizeErr == nil && pos > 0 {
			text += "\n" + fmt.Sprintf(s.Localizer.GetString(lang, "queue_position"), pos, size)
		}
		s.reply(user.ID, text, searchingKeyboard(s.Localizer, lang))
		return
	}

	if err := s.Engine.StartSearch(user.ID); err != nil {
		log.Printf("ERROR: Failed to start search for %d: %v", user.ID, err)
		return
	}
	s.reply(user.ID, s.Localizer.GetString(lang, "searching"), searchingKeyboard(s.Localizer, lang))
	s.attemptMatch(user.ID)
}

func (s *BotService) attemptMatch(userID int64) {
	// Match and end-of-chat notices are delivered by the transport from
	// inside the engine, nothing to send here.
	if _, err := s.Engine.AttemptMatch(userID); err != nil {
		log.Printf("ERROR: Match attempt for %d failed: %v", userID, err)
	}
}

func (s *BotService) handleCancelSearch(user *models.User) {
	lang := user.Lang
	cancelled, err := s.Engine.CancelSearch(user.ID)
	if err != nil {
		log.Printf("ERROR: Failed to cancel search for %d: %v", user.ID, err)
		return
	}
	key := "not_searching"
	if cancelled {
		key = "search_cancelled"
	}
	s.reply(user.ID, s.Localizer.GetString(lang, key), mainMenuKeyboard(s.Localizer, lang, false))
}

func (s *BotService) handleEndDialog(user *models.User) {
	lang := user.Lang
	state, _ := s.Storage.GetState(user.ID)
	if state != models.StateChatting {
		s.reply(user.ID, s.Localizer.GetString(lang, "no_active_chat"),
			mainMenuKeyboard(s.Localizer, lang, false))
		return
	}

	partnerID, err := s.Engine.EndChat(user.ID, matching.EndOptions{
		NotifyUser:      true,
		NotifyPartner:   true,
		CollectFeedback: true,
		ReasonKey:       "chat_ended",
	})
	if err != nil {
		log.Printf("ERROR: Failed to end chat for %d: %v", user.ID, err)
		return
	}
	s.maybeAutoSearch(partnerID)
}

func (s *BotService) handleSkip(user *models.User) {
	lang := user.Lang
	partnerID, skipped, cooldown, err := s.Engine.Skip(user.ID)
	if err != nil {
		log.Printf("ERROR: Skip failed for %d: %v", user.ID, err)
		return
	}
	if cooldown > 0 {
		seconds := int(cooldown.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		s.reply(user.ID, fmt.Sprintf(s.Localizer.GetString(lang, "skip_cooldown"), seconds), nil)
		return
	}
	if !skipped {
		s.reply(user.ID, s.Localizer.GetString(lang, "no_active_chat"),
			mainMenuKeyboard(s.Localizer, lang, false))
		return
	}

	s.reply(user.ID, s.Localizer.GetString(lang, "searching"), searchingKeyboard(s.Localizer, lang))
	s.maybeAutoSearch(partnerID)
	s.attemptMatch(user.ID)
}

// maybeAutoSearch re-enters the queue for a user whose chat just ended,
// if they opted into auto search.
func (s *BotService) maybeAutoSearch(userID int64) {
	if userID == 0 {
		return
	}
	user, err := s.Storage.GetOrCreateUser(userID)
	if err != nil {
		log.Printf("ERROR: Failed to load user %d for auto search: %v", userID, err)
		return
	}
	if !user.AutoSearch || user.Banned(time.Now()) {
		return
	}
	state, err := s.Storage.GetState(userID)
	if err != nil || state != models.StateIdle {
		return
	}
	if err := s.Engine.StartSearch(userID); err != nil {
		log.Printf("ERROR: Auto search failed for %d: %v", userID, err)
		return
	}
	s.reply(userID, s.Localizer.GetString(user.Lang, "searching"), searchingKeyboard(s.Localizer, user.Lang))
	s.attemptMatch(userID)
}

// --- message relay ---

func (s *BotService) relayMessage(user *models.User, msg *tgbotapi.Message) {
	lang := user.Lang
	now := time.Now()

	state, err := s.Storage.GetState(user.ID)
	if err != nil {
		log.Printf("ERROR: Failed to read state for %d: %v", user.ID, err)
		return
	}
	if state != models.StateChatting {
		s.reply(user.ID, s.Localizer.GetString(lang, "not_in_chat"),
			mainMenuKeyboard(s.Localizer, lang, false))
		return
	}

	if user.Muted(now) {
		until := user.MutedUntil.Format("2006-01-02 15:04")
		s.reply(user.ID, fmt.Sprintf(s.Localizer.GetString(lang, "muted_notice"), until), nil)
		return
	}

	pair, err := s.Storage.ActivePair(user.ID)
	if err != nil {
		log.Printf("ERROR: Failed to load active pair for %d: %v", user.ID, err)
		return
	}
	if pair == nil {
		// Stale chatting state without a pair, repair it.
		if err := s.Storage.SetState(user.ID, models.StateIdle); err != nil {
			log.Printf("ERROR: Failed to reset state for %d: %v", user.ID, err)
		}
		s.reply(user.ID, s.Localizer.GetString(lang, "no_active_chat"),
			mainMenuKeyboard(s.Localizer, lang, false))
		return
	}
	partnerID := pair.PartnerOf(user.ID)

	content := msg.Text
	if content == "" {
		content = msg.Caption
	}
	partner, err := s.Storage.GetOrCreateUser(partnerID)
	if err != nil {
		log.Printf("ERROR: Failed to load partner %d: %v", partnerID, err)
		return
	}
	if partner.ContentFilter && ContainsBlockedContent(content) {
		s.reply(user.ID, s.Localizer.GetString(lang, "message_blocked"), nil)
		return
	}

	out, ok := relayChattable(partnerID, msg)
	if !ok {
		s.reply(user.ID, s.Localizer.GetString(lang, "unsupported_message_type"), nil)
		return
	}

	delivered, err := s.Transport.Deliver(out)
	if err != nil {
		log.Printf("WARNING: Transient relay failure %d -> %d: %v", user.ID, partnerID, err)
		return
	}
	if !delivered {
		if _, err := s.Engine.EndChat(user.ID, matching.EndOptions{
			NotifyUser:      true,
			NotifyPartner:   false,
			CollectFeedback: true,
			ReasonKey:       "partner_unavailable",
		}); err != nil {
			log.Printf("ERROR: Failed to end chat after unreachable partner %d: %v", partnerID, err)
		}
	}
}

// relayChattable builds the outgoing copy of an incoming chat message.
// File IDs are forwarded as-is, Telegram resolves them per bot.
func relayChattable(chatID int64, msg *tgbotapi.Message) (tgbotapi.Chattable, bool) {
	switch {
	case msg.Text != "":
		return tgbotapi.NewMessage(chatID, msg.Text), true
	case msg.Photo != nil:
		largest := msg.Photo[len(msg.Photo)-1]
		out := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(largest.FileID))
		out.Caption = msg.Caption
		return out, true
	case msg.Video != nil:
		out := tgbotapi.NewVideo(chatID, tgbotapi.FileID(msg.Video.FileID))
		out.Caption = msg.Caption
		return out, true
	case msg.Voice != nil:
		return tgbotapi.NewVoice(chatID, tgbotapi.FileID(msg.Voice.FileID)), true
	case msg.VideoNote != nil:
		return tgbotapi.NewVideoNote(chatID, 0, tgbotapi.FileID(msg.VideoNote.FileID)), true
	case msg.Sticker != nil:
		return tgbotapi.NewSticker(chatID, tgbotapi.FileID(msg.Sticker.FileID)), true
	case msg.Animation != nil:
		out := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(msg.Animation.FileID))
		out.Caption = msg.Caption
		return out, true
	case msg.Document != nil:
		out := tgbotapi.NewDocument(chatID, tgbotapi.FileID(msg.Document.FileID))
		out.Caption = msg.Caption
		return out, true
	}
	return nil, false
}

// --- interests ---

func (s *BotService) sendInterestsMenu(user *models.User) {
	lang := user.Lang
	isPremium := user.Premium(time.Now())

	hint := s.Localizer.GetString(lang, "interests_free_hint")
	if isPremium {
		hint = s.Localizer.GetString(lang, "interests_premium_hint")
	}
	text := s.Localizer.GetString(lang, "interests_title") + "\n" +
		fmt.Sprintf(s.Localizer.GetString(lang, "interests_selected"), s.interestLabels(lang, user.Interests)) + "\n" +
		hint

	msg := tgbotapi.NewMessage(user.ID, text)
	msg.ReplyMarkup = interestsKeyboard(s.Localizer, lang, user, isPremium)
	s.send(msg)
}

func (s *BotService) interestLabels(lang string, codes []string) string {
	if len(codes) == 0 {
		return s.Localizer.GetString(lang, "interests_none")
	}
	labels := make([]string, 0, len(codes))
	for _, code := range codes {
		labels = append(labels, s.Localizer.GetString(lang, "interest_"+code))
	}
	return strings.Join(labels, ", ")
}

func (s *BotService) handleInterestCallback(user *models.User, cb *tgbotapi.CallbackQuery) {
	lang := user.Lang
	isPremium := user.Premium(time.Now())
	data := cb.Data

	switch {
	case strings.HasPrefix(data, "interest:toggle:"):
		code := strings.TrimPrefix(data, "interest:toggle:")
		if !interests.Valid(code) {
			s.answerCallback(cb.ID, "")
			return
		}
		var next []string
		notice := ""
		if isPremium {
			next = interests.Toggle(user.Interests, code)
		} else {
			// Free accounts hold at most one interest, a new pick
			// replaces the old one.
			if len(user.Interests) == 1 && user.Interests[0] == code {
				next = nil
			} else {
				if len(user.Interests) > 0 {
					notice = s.Localizer.GetString(lang, "interests_premium_required")
				}
				next = []string{code}
			}
		}
		if err := s.Storage.SetInterests(user.ID, next); err != nil {
			log.Printf("ERROR: Failed to save interests for %d: %v", user.ID, err)
			return
		}
		user.Interests = next
		s.answerCallback(cb.ID, notice)
		s.editInterestsKeyboard(user, cb)

	case data == "interest:only_toggle":
		if !isPremium {
			s.answerCallbackAlert(cb.ID, s.Localizer.GetString(lang, "interests_only_premium_required"))
			return
		}
		if err := s.Storage.SetOnlyInterest(user.ID, !user.OnlyInterest); err != nil {
			log.Printf("ERROR: Failed to toggle strict match for %d: %v", user.ID, err)
			return
		}
		user.OnlyInterest = !user.OnlyInterest
		s.answerCallback(cb.ID, "")
		s.editInterestsKeyboard(user, cb)

	case data == "interest:clear":
		if err := s.Storage.SetInterests(user.ID, nil); err != nil {
			log.Printf("ERROR: Failed to clear interests for %d: %v", user.ID, err)
			return
		}
		user.Interests = nil
		s.answerCallback(cb.ID, "")
		s.editInterestsKeyboard(user, cb)

	case data == "interest:done":
		s.answerCallback(cb.ID, "")
		text := s.Localizer.GetString(lang, "interests_cleared")
		if len(user.Interests) > 0 {
			text = fmt.Sprintf(s.Localizer.GetString(lang, "interests_saved"), s.interestLabels(lang, user.Interests))
		}
		state, _ := s.Storage.GetState(user.ID)
		s.reply(user.ID, text, mainMenuKeyboard(s.Localizer, lang, state == models.StateChatting))
	}
}

func (s *BotService) editInterestsKeyboard(user *models.User, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(
		cb.Message.Chat.ID,
		cb.Message.MessageID,
		interestsKeyboard(s.Localizer, user.Lang, user, user.Premium(time.Now())),
	)
	if _, err := s.BotAPI.Request(edit); err != nil {
		log.Printf("WARNING: Failed to refresh interests keyboard for %d: %v", user.ID, err)
	}
}

// --- settings ---

func (s *BotService) sendSettingsMenu(user *models.User) {
	lang := user.Lang
	msg := tgbotapi.NewMessage(user.ID, s.settingsText(user))
	msg.ReplyMarkup = settingsKeyboard(s.Localizer, lang, user.AutoSearch, user.ContentFilter)
	s.send(msg)
}

func (s *BotService) settingsText(user *models.User) string {
	lang := user.Lang
	onOff := func(v bool) string {
		if v {
			return s.Localizer.GetString(lang, "yes")
		}
		return s.Localizer.GetString(lang, "no")
	}
	return fmt.Sprintf(s.Localizer.GetString(lang, "settings_title"),
		onOff(user.AutoSearch), onOff(user.ContentFilter), lang)
}

func (s *BotService) handleSettingsCallback(user *models.User, cb *tgbotapi.CallbackQuery) {
	lang := user.Lang
	data := cb.Data

	switch {
	case data == "settings:auto_search":
		if err := s.Storage.SetAutoSearch(user.ID, !user.AutoSearch); err != nil {
			log.Printf("ERROR: Failed to toggle auto search for %d: %v", user.ID, err)
			return
		}
		user.AutoSearch = !user.AutoSearch

	case data == "settings:content_filter":
		if err := s.Storage.SetContentFilter(user.ID, !user.ContentFilter); err != nil {
			log.Printf("ERROR: Failed to toggle content filter for %d: %v", user.ID, err)
			return
		}
		user.ContentFilter = !user.ContentFilter

	case strings.HasPrefix(data, "settings:lang:"):
		code := strings.TrimPrefix(data, "settings:lang:")
		valid := false
		for _, l := range supportedLangs {
			if l == code {
				valid = true
				break
			}
		}
		if !valid {
			s.answerCallback(cb.ID, "")
			return
		}
		if err := s.Storage.SetLang(user.ID, code); err != nil {
			log.Printf("ERROR: Failed to set language for %d: %v", user.ID, err)
			return
		}
		user.Lang = code
		lang = code

	case data == "settings:close":
		s.answerCallback(cb.ID, "")
		state, _ := s.Storage.GetState(user.ID)
		s.reply(user.ID, s.Localizer.GetString(lang, "settings_saved"),
			mainMenuKeyboard(s.Localizer, lang, state == models.StateChatting))
		return

	default:
		s.answerCallback(cb.ID, "")
		return
	}

	s.answerCallback(cb.ID, "")
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageTextAndMarkup(
			cb.Message.Chat.ID,
			cb.Message.MessageID,
			s.settingsText(user),
			settingsKeyboard(s.Localizer, lang, user.AutoSearch, user.ContentFilter),
		)
		if _, err := s.BotAPI.Request(edit); err != nil {
			log.Printf("WARNING: Failed to refresh settings for %d: %v", user.ID, err)
		}
	}
}

// --- profile ---

func (s *BotService) sendProfile(user *models.User) {
	lang := user.Lang
	now := time.Now()

	status := s.Localizer.GetString(lang, "status_standard")
	if user.Premium(now) {
		status = s.Localizer.GetString(lang, "status_premium")
	}
	onOff := func(v bool) string {
		if v {
			return s.Localizer.GetString(lang, "yes")
		}
		return s.Localizer.GetString(lang, "no")
	}

	text := fmt.Sprintf(s.Localizer.GetString(lang, "profile_view"),
		user.ID,
		user.CreatedAt.Format("2006-01-02"),
		user.ChatsCount,
		user.Rating,
		s.interestLabels(lang, user.Interests),
		status,
		formatUntil(user.PremiumUntil, now),
		formatUntil(user.BannedUntil, now),
		formatUntil(user.MutedUntil, now),
		onOff(user.AutoSearch),
		onOff(user.ContentFilter),
	)
	s.reply(user.ID, text, nil)
}

func formatUntil(until time.Time, now time.Time) string {
	if until.IsZero() || !until.After(now) {
		return "—"
	}
	return until.Format("2006-01-02 15:04")
}

// --- premium ---

func (s *BotService) sendPremiumMenu(user *models.User) {
	lang := user.Lang
	msg := tgbotapi.NewMessage(user.ID, s.Localizer.GetString(lang, "premium_info"))
	msg.ReplyMarkup = premiumKeyboard(s.Localizer, lang)
	s.send(msg)
}

func (s *BotService) handlePremiumCallback(user *models.User, cb *tgbotapi.CallbackQuery) {
	lang := user.Lang
	data := cb.Data

	switch {
	case strings.HasPrefix(data, "premium:buy:"):
		days, err := strconv.Atoi(strings.TrimPrefix(data, "premium:buy:"))
		if err != nil {
			s.answerCallback(cb.ID, "")
			return
		}
		price, ok := config.PremiumPlans[days]
		if !ok {
			s.answerCallback(cb.ID, "")
			return
		}
		title := fmt.Sprintf(s.Localizer.GetString(lang, "premium_plan_title"), days)
		invoice := premiumInvoice(user.ID, days, price, title)
		if _, err := s.BotAPI.Send(invoice); err != nil {
			log.Printf("ERROR: Failed to send invoice to %d: %v", user.ID, err)
		}
		s.answerCallback(cb.ID, "")

	case data == "premium:trial":
		s.answerCallback(cb.ID, "")
		s.grantTrial(user)

	case data == "premium:promo":
		s.answerCallback(cb.ID, "")
		s.reply(user.ID, s.Localizer.GetString(lang, "promo_usage"), nil)
	}
}

// premiumInvoice builds a Telegram Stars invoice for a premium plan. Stars
// payments carry no provider token and no tip amounts.
func premiumInvoice(chatID int64, days, price int, title string) tgbotapi.InvoiceConfig {
	return tgbotapi.NewInvoice(
		chatID,
		title,
		title,
		fmt.Sprintf("premium_%d", days),
		"",
		"premium",
		"XTR",
		[]tgbotapi.LabeledPrice{{Label: title, Amount: price}},
		nil,
	)
}

func (s *BotService) handlePreCheckout(q *tgbotapi.PreCheckoutQuery) {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: q.ID,
		OK:                 true,
	}
	if _, err := s.BotAPI.Request(answer); err != nil {
		log.Printf("ERROR: Failed to answer pre-checkout query %s: %v", q.ID, err)
	}
}

func (s *BotService) handleSuccessfulPayment(user *models.User, payment *tgbotapi.SuccessfulPayment) {
	lang := user.Lang
	payload := payment.InvoicePayload
	if !strings.HasPrefix(payload, "premium_") {
		return
	}
	days, err := strconv.Atoi(strings.TrimPrefix(payload, "premium_"))
	if err != nil {
		log.Printf("ERROR: Malformed payment payload %q from %d", payload, user.ID)
		return
	}

	until, err := s.Premium.GrantPurchase(user.ID, days, payload)
	if err != nil {
		log.Printf("ERROR: Failed to grant purchased premium to %d: %v", user.ID, err)
		return
	}
	s.reply(user.ID, fmt.Sprintf(s.Localizer.GetString(lang, "premium_granted"),
		days, until.Format("2006-01-02 15:04")), nil)
}

func (s *BotService) grantTrial(user *models.User) {
	lang := user.Lang
	until, err := s.Premium.GrantTrial(user.ID)
	if err != nil {
		if err == premium.ErrTrialUsed {
			s.reply(user.ID, s.Localizer.GetString(lang, "trial_used"), nil)
			return
		}
		log.Printf("ERROR: Failed to grant trial to %d: %v", user.ID, err)
		return
	}
	s.reply(user.ID, fmt.Sprintf(s.Localizer.GetString(lang, "trial_granted"),
		s.Premium.TrialDays, until.Format("2006-01-02 15:04")), nil)
}

func (s *BotService) redeemPromo(user *models.User, args string) {
	lang := user.Lang
	code := strings.TrimSpace(args)
	if code == "" {
		s.reply(user.ID, s.Localizer.GetString(lang, "promo_usage"), nil)
		return
	}

	days, until, err := s.Premium.RedeemPromo(user.ID, code)
	switch err {
	case nil:
		s.reply(user.ID, fmt.Sprintf(s.Localizer.GetString(lang, "promo_granted"),
			days, until.Format("2006-01-02 15:04")), nil)
	case premium.ErrPromoUnknown:
		s.reply(user.ID, s.Localizer.GetString(lang, "promo_invalid"), nil)
	case premium.ErrPromoUsed:
		s.reply(user.ID, s.Localizer.GetString(lang, "promo_used"), nil)
	default:
		log.Printf("ERROR: Failed to redeem promo for %d: %v", user.ID, err)
	}
}

// --- reports ---

func (s *BotService) handleReportStart(user *models.User) {
	lang := user.Lang
	state, _ := s.Storage.GetState(user.ID)
	if state != models.StateChatting {
		s.reply(user.ID, s.Localizer.GetString(lang, "report_only_in_chat"),
			mainMenuKeyboard(s.Localizer, lang, false))
		return
	}
	s.reporting[user.ID] = true
	s.reply(user.ID, s.Localizer.GetString(lang, "report_prompt"), reportKeyboard(s.Localizer, lang))
}

func (s *BotService) handleReportReason(user *models.User, text string) {
	lang := user.Lang
	reason, ok := s.reasonFromLabel(text)
	if !ok {
		s.reply(user.ID, s.Localizer.GetString(lang, "report_reason_invalid"), nil)
		return
	}
	delete(s.reporting, user.ID)

	pair, err := s.Storage.ActivePair(user.ID)
	if err != nil {
		log.Printf("ERROR: Failed to load pair for report by %d: %v", user.ID, err)
		return
	}
	if pair == nil {
		s.reply(user.ID, s.Localizer.GetString(lang, "no_active_chat"),
			mainMenuKeyboard(s.Localizer, lang, false))
		return
	}
	partnerID := pair.PartnerOf(user.ID)

	if err := s.Moderation.SubmitReport(user.ID, partnerID, reason); err != nil {
		log.Printf("ERROR: Failed to file report from %d: %v", user.ID, err)
		return
	}
	s.notifyAdmins(fmt.Sprintf("🚨 New report\nFrom: %d\nAgainst: %d\nReason: %s\nAt: %s",
		user.ID, partnerID, reason, time.Now().UTC().Format(time.RFC3339)))

	s.reply(user.ID, s.Localizer.GetString(lang, "report_submitted"),
		mainMenuKeyboard(s.Localizer, lang, false))

	if _, err := s.Engine.EndChat(user.ID, matching.EndOptions{
		NotifyUser:      false,
		NotifyPartner:   true,
		CollectFeedback: true,
		ReasonKey:       "chat_ended",
	}); err != nil {
		log.Printf("ERROR: Failed to end reported chat for %d: %v", user.ID, err)
	}
}

// reasonFromLabel maps a localized reason button back to its stable code.
func (s *BotService) reasonFromLabel(text string) (string, bool) {
	for _, reason := range config.ReportReasons {
		for _, lang := range supportedLangs {
			if s.Localizer.GetString(lang, "reason_"+reason) == text {
				return reason, true
			}
		}
	}
	return "", false
}

func (s *BotService) notifyAdmins(text string) {
	for _, adminID := range s.Cfg.AdminIDs {
		if _, err := s.Transport.Deliver(tgbotapi.NewMessage(adminID, text)); err != nil {
			log.Printf("WARNING: Failed to notify admin %d: %v", adminID, err)
		}
	}
}

// --- ratings ---

func (s *BotService) handleRatingCallback(user *models.User, cb *tgbotapi.CallbackQuery) {
	lang := user.Lang
	value := 1
	if cb.Data == "rate:down" {
		value = -1
	}

	_, ok, err := s.Engine.SubmitRating(user.ID, value)
	if err != nil {
		log.Printf("ERROR: Failed to submit rating from %d: %v", user.ID, err)
		s.answerCallback(cb.ID, "")
		return
	}
	if !ok {
		s.answerCallbackAlert(cb.ID, s.Localizer.GetString(lang, "rate_unavailable"))
	} else {
		s.answerCallback(cb.ID, s.Localizer.GetString(lang, "rate_thanks"))
	}
	// Retire the prompt either way, the rating is single-use.
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
			tgbotapi.NewInlineKeyboardMarkup())
		if _, err := s.BotAPI.Request(edit); err != nil {
			log.Printf("WARNING: Failed to retire rating prompt for %d: %v", user.ID, err)
		}
	}
}

// --- admin commands ---

func (s *BotService) adminBan(actor *models.User, args string, ban bool) {
	if !s.Cfg.IsAdmin(actor.ID) {
		return
	}
	targetID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		s.reply(actor.ID, "Usage: /ban <user_id> or /unban <user_id>", nil)
		return
	}

	if ban {
		err = s.Moderation.Ban(targetID, actor.ID)
	} else {
		err = s.Moderation.Unban(targetID, actor.ID)
	}
	if err != nil {
		log.Printf("ERROR: Admin %d failed to change ban on %d: %v", actor.ID, targetID, err)
		return
	}
	if ban {
		s.Transport.Deliver(tgbotapi.NewMessage(targetID,
			s.Localizer.GetString(s.Transport.lang(targetID), "account_banned")))
		s.reply(actor.ID, fmt.Sprintf("User %d banned.", targetID), nil)
	} else {
		s.reply(actor.ID, fmt.Sprintf("User %d unbanned.", targetID), nil)
	}
}

func (s *BotService) adminStats(actor *models.User) {
	if !s.Cfg.IsAdmin(actor.ID) {
		return
	}
	stats, err := s.Storage.Stats(time.Now())
	if err != nil {
		log.Printf("ERROR: Failed to compute stats: %v", err)
		return
	}
	s.reply(actor.ID, fmt.Sprintf(
		"📊 Stats\nUsers: %d\nActive chats: %d\nIn queue: %d\nOpen reports: %d\nBanned: %d\nTemp banned: %d",
		stats.Users, stats.ActiveChats, stats.Queue, stats.Reports, stats.Banned, stats.TempBanned), nil)
}

// --- callbacks ---

func (s *BotService) handleCallbackQuery(cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	user, err := s.Storage.GetOrCreateUser(cb.From.ID)
	if err != nil {
		log.Printf("ERROR: Failed to get/create user %d: %v", cb.From.ID, err)
		return
	}
	if user.Banned(time.Now()) {
		s.answerCallbackAlert(cb.ID, s.Localizer.GetString(user.Lang, "account_banned"))
		return
	}

	switch {
	case strings.HasPrefix(cb.Data, "rate:"):
		s.handleRatingCallback(user, cb)
	case strings.HasPrefix(cb.Data, "interest:"):
		s.handleInterestCallback(user, cb)
	case strings.HasPrefix(cb.Data, "settings:"):
		s.handleSettingsCallback(user, cb)
	case strings.HasPrefix(cb.Data, "premium:"):
		s.handlePremiumCallback(user, cb)
	default:
		s.answerCallback(cb.ID, "")
	}
}

func (s *BotService) answerCallback(id, text string) {
	if _, err := s.BotAPI.Request(tgbotapi.NewCallback(id, text)); err != nil {
		log.Printf("WARNING: Failed to answer callback %s: %v", id, err)
	}
}

func (s *BotService) answerCallbackAlert(id, text string) {
	if _, err := s.BotAPI.Request(tgbotapi.NewCallbackWithAlert(id, text)); err != nil {
		log.Printf("WARNING: Failed to answer callback %s: %v", id, err)
	}
}

// --- helpers ---

// buttonIs matches a message against a menu button label in any supported
// language, so a language switch never strands old keyboards.
func (s *BotService) buttonIs(text, key string) bool {
	if text == "" {
		return false
	}
	for _, lang := range supportedLangs {
		if s.Localizer.GetString(lang, key) == text {
			return true
		}
	}
	return false
}

func (s *BotService) reply(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	s.send(msg)
}

func (s *BotService) send(c tgbotapi.Chattable) {
	if _, err := s.Transport.Deliver(c); err != nil {
		log.Printf("WARNING: Failed to send message: %v", err)
	}
}
