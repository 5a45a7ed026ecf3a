package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.countError()
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// isAdmin accepts a configured user id or chat id.
func (b *Bot) isAdmin(userID, chatID int64) bool {
	return b.admins[userID] || b.admins[chatID]
}

func senderOf(update tgbotapi.Update) (userID, chatID int64) {
	switch {
	case update.Message != nil:
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
		if update.Message.Chat != nil {
			chatID = update.Message.Chat.ID
		}
	case update.CallbackQuery != nil:
		if update.CallbackQuery.From != nil {
			userID = update.CallbackQuery.From.ID
		}
		if update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
	}
	return userID, chatID
}

func (b *Bot) countError() {
	if b.metrics != nil {
		b.metrics.ErrorsTotal.Inc()
	}
}

func (b *Bot) countCommand(name string) {
	if b.metrics != nil {
		b.metrics.CommandsProcessed.WithLabelValues(name).Inc()
	}
}
