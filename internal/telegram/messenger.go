package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Messenger sends and edits chat messages through the Telegram Bot API. It
// is the single transport-specific implementation of core.Messenger.
type Messenger struct {
	api    *tgbotapi.BotAPI
	logger zerolog.Logger
}

func NewMessenger(token string, logger zerolog.Logger) (*Messenger, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	m := &Messenger{
		api:    api,
		logger: logger.With().Str("component", "telegram").Logger(),
	}

	m.logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authenticated")

	return m, nil
}

func (m *Messenger) SendMessage(chatID int64, text string) (int, error) {
	sent, err := m.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return sent.MessageID, nil
}

func (m *Messenger) EditMessage(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := m.api.Send(edit); err != nil {
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return nil
}
