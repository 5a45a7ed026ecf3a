package bot

import (
	"context"
	"time"

	"cubenotary/internal/models"
	"cubenotary/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingOps is what operators can do to bookings from the chat.
type BookingOps interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	Availability(ctx context.Context, date string) (*models.Availability, error)
	SetStatus(ctx context.Context, bookingID string, status models.BookingStatus, changedBy string) (*service.TransitionResult, error)
}

// Bot is the operator console: admins query and move bookings with commands.
// Messages from anyone else are refused.
type Bot struct {
	tgService TelegramService
	bookings  BookingOps
	admins    map[int64]bool
	metrics   *Metrics
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewBot(tgService TelegramService, bookings BookingOps, admins []int64, metrics *Metrics, logger *zerolog.Logger) *Bot {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	allowed := make(map[int64]bool, len(admins))
	for _, id := range admins {
		if id != 0 {
			allowed[id] = true
		}
	}
	return &Bot{
		tgService: tgService,
		bookings:  bookings,
		admins:    allowed,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.tgService.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.New().String()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		userID, chatID := senderOf(update)
		if userID == 0 && chatID == 0 {
			return
		}

		if !b.isAdmin(userID, chatID) {
			l.Warn().Int64("user_id", userID).Int64("chat_id", chatID).Msg("update from non-admin ignored")
			if update.Message != nil {
				b.sendMessage(chatID, "This bot is for Cube Notary operators only.")
			}
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		if update.Message == nil || !update.Message.IsCommand() {
			return
		}
		b.handleCommand(updateCtx, update.Message)
	})
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.tgService.Send(msg); err != nil {
		b.countError()
		b.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("Failed to send message")
	}
}
