// Package telegram delivers fire-and-forget run notifications to a
// Telegram chat. Delivery failures are logged and never propagated; a
// broken notification channel must not fail a publish run.
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Notifier sends messages to a fixed chat.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New creates a Notifier. The underlying client verifies the token with
// the Bot API on construction.
func New(token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	log.Debug().Str("username", bot.Self.UserName).Msg("Telegram bot authorized")
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// Notify sends a message to the configured chat. Errors are logged, not
// returned.
func (n *Notifier) Notify(text string) {
	if n == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram notification")
		return
	}
	log.Info().Msg("Telegram notification sent")
}
