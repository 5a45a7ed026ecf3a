package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cubenotary/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// botAPI is the slice of tgbotapi.BotAPI used for operator alerts.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender posts operator alerts to a chat.
type TelegramSender struct {
	bot    botAPI
	logger *zerolog.Logger
}

func NewTelegramSender(token string, debug bool, logger *zerolog.Logger) (*TelegramSender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = debug
	return newTelegramSender(bot, logger), nil
}

func newTelegramSender(bot botAPI, logger *zerolog.Logger) *TelegramSender {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "telegram").Logger()
	return &TelegramSender{bot: bot, logger: &l}
}

func (s *TelegramSender) Channel() models.Channel { return models.ChannelTelegram }

// Send treats the recipient as a numeric chat id.
func (s *TelegramSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	if msg.Recipient == "" {
		return errors.New("telegram: chat id is empty")
	}
	chatID, err := strconv.ParseInt(msg.Recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", msg.Recipient, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := msg.Text
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + text
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	s.logger.Debug().Str("booking_id", msg.BookingID).Str("kind", string(msg.Kind)).Msg("telegram alert sent")
	return nil
}
