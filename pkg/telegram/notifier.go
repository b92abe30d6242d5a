/**
 * @description
 * This package provides the venue-owner notification sender backed by the
 * Telegram Bot API. The payment-service only pushes messages; all bot command
 * handling lives in a separate service.
 *
 * @dependencies
 * - github.com/go-telegram-bot-api/telegram-bot-api/v5: Telegram Bot API client.
 */
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends order notifications to venue owners over Telegram.
type Notifier struct {
	bot *tgbotapi.BotAPI
}

// NewNotifier authorizes the bot with the given token.
func NewNotifier(token string) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot authorization failed: %w", err)
	}
	return &Notifier{bot: bot}, nil
}

// SendOrderNotification pushes the formatted order text to the owner's chat.
func (n *Notifier) SendOrderNotification(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
