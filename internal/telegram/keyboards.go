package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ghostchat/backend/internal/config"
	"ghostchat/backend/internal/interests"
	"ghostchat/backend/internal/localization"
	"ghostchat/backend/internal/models"
)

// mainMenuKeyboard is the resting reply keyboard. The end-dialog row only
// appears while a chat is active.
func mainMenuKeyboard(l *localization.Localizer, lang string, showEnd bool) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_find"))},
		{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_interests"))},
		{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_profile"))},
		{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_premium"))},
		{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_rules"))},
		{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_settings"))},
	}
	if showEnd {
		rows = append(rows,
			[]tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_end"))},
			[]tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_skip"))},
			[]tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_report"))},
		)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

func searchingKeyboard(l *localization.Localizer, lang string) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(l.GetString(lang, "btn_cancel_search"))),
	)
	kb.ResizeKeyboard = true
	return kb
}

func ratingKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("👍", "rate:up"),
			tgbotapi.NewInlineKeyboardButtonData("👎", "rate:down"),
		),
	)
}

func reportKeyboard(l *localization.Localizer, lang string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(config.ReportReasons))
	for _, reason := range config.ReportReasons {
		label := l.GetString(lang, "reason_"+reason)
		rows = append(rows, []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton(label)})
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// interestsKeyboard renders the toggle menu. The strict-match toggle row is
// shown to premium users only.
func interestsKeyboard(l *localization.Localizer, lang string, user *models.User, premium bool) tgbotapi.InlineKeyboardMarkup {
	selected := make(map[string]bool, len(user.Interests))
	for _, code := range user.Interests {
		selected[code] = true
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(interests.Options)+2)
	for _, code := range interests.Options {
		label := l.GetString(lang, "interest_"+code)
		if selected[code] {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "interest:toggle:"+code),
		))
	}
	if premium {
		toggleKey := "interests_only_off"
		if user.OnlyInterest {
			toggleKey = "interests_only_on"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.GetString(lang, toggleKey), "interest:only_toggle"),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(l.GetString(lang, "btn_done"), "interest:done"),
		tgbotapi.NewInlineKeyboardButtonData(l.GetString(lang, "btn_clear"), "interest:clear"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func settingsKeyboard(l *localization.Localizer, lang string, autoSearch, contentFilter bool) tgbotapi.InlineKeyboardMarkup {
	onOff := func(v bool) string {
		if v {
			return l.GetString(lang, "yes")
		}
		return l.GetString(lang, "no")
	}
	langButton := func(label, code string) tgbotapi.InlineKeyboardButton {
		if lang == code {
			label += " ✅"
		}
		return tgbotapi.NewInlineKeyboardButtonData(label, "settings:lang:"+code)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s: %s", l.GetString(lang, "settings_auto_search"), onOff(autoSearch)),
				"settings:auto_search"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s: %s", l.GetString(lang, "settings_content_filter"), onOff(contentFilter)),
				"settings:content_filter"),
		),
		tgbotapi.NewInlineKeyboardRow(
			langButton("🇷🇺 Русский", "ru"),
			langButton("🇬🇧 English", "en"),
			langButton("🇺🇦 Українська", "uk"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.GetString(lang, "btn_done"), "settings:close"),
		),
	)
}

func premiumKeyboard(l *localization.Localizer, lang string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(config.PremiumPlans)+2)
	for _, days := range []int{7, 30, 90} {
		title := fmt.Sprintf(l.GetString(lang, "premium_plan_title"), days)
		label := fmt.Sprintf("%s · %d ⭐", title, config.PremiumPlans[days])
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("premium:buy:%d", days)),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.GetString(lang, "btn_trial"), "premium:trial"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.GetString(lang, "btn_promo"), "premium:promo"),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
