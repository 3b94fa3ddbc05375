package notify

import (
	"context"
	"fmt"
	"strings"

	"villaops/internal/domain"
	"villaops/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier delivers staff notifications through a Telegram bot.
type TelegramNotifier struct {
	bot    domain.TelegramSender
	logger *zerolog.Logger
}

// NewBot connects to the Bot API with token.
func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func NewTelegramNotifier(bot domain.TelegramSender, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{bot: bot, logger: logger}
}

// SendMessage sends text with Markdown formatting. When Telegram refuses to
// parse the markup the message is sent again as plain text.
func (n *TelegramNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	_, err := n.bot.Send(msg)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "can't parse entities") {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}

	n.logger.Debug().Int64("chat_id", chatID).Msg("markdown rejected, sending plain text")
	plain := tgbotapi.NewMessage(chatID, text)
	if _, err := n.bot.Send(plain); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}
