package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	cmdStart    = "start"
	cmdHelp     = "help"
	cmdToday    = "today"
	cmdDay      = "day"
	cmdPending  = "pending"
	cmdBooking  = "booking"
	cmdSlots    = "slots"
	cmdCancel   = "cancel"
	cmdComplete = "complete"

	callbackCancel   = "cancel:"
	callbackComplete = "complete:"

	listLimit = 30
)

const helpText = `Operator commands:
/today - bookings for today
/day YYYY-MM-DD - bookings for a date
/pending - unpaid bookings
/booking ID - booking details
/slots YYYY-MM-DD - free slots
/cancel ID - cancel a booking
/complete ID - mark a booking completed`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	b.countCommand(cmd)

	switch cmd {
	case cmdStart, cmdHelp:
		b.sendMessage(chatID, helpText)
	case cmdToday:
		b.listDay(ctx, chatID, b.now().Format(models.DateLayout))
	case cmdDay:
		if !models.IsValidDate(args) {
			b.sendMessage(chatID, "Usage: /day YYYY-MM-DD")
			return
		}
		b.listDay(ctx, chatID, args)
	case cmdPending:
		b.listPending(ctx, chatID)
	case cmdBooking:
		if args == "" {
			b.sendMessage(chatID, "Usage: /booking ID")
			return
		}
		b.showBooking(ctx, chatID, args)
	case cmdSlots:
		b.showSlots(ctx, chatID, args)
	case cmdCancel, cmdComplete:
		if args == "" {
			b.sendMessage(chatID, fmt.Sprintf("Usage: /%s ID", cmd))
			return
		}
		status := models.StatusCancelled
		if cmd == cmdComplete {
			status = models.StatusCompleted
		}
		b.sendMessage(chatID, b.setStatus(ctx, args, status, operatorName(msg.From)))
	default:
		b.sendMessage(chatID, "Unknown command. Send /help for the list.")
	}
}

func (b *Bot) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	var (
		status    models.BookingStatus
		bookingID string
	)
	switch {
	case strings.HasPrefix(q.Data, callbackCancel):
		status, bookingID = models.StatusCancelled, strings.TrimPrefix(q.Data, callbackCancel)
	case strings.HasPrefix(q.Data, callbackComplete):
		status, bookingID = models.StatusCompleted, strings.TrimPrefix(q.Data, callbackComplete)
	default:
		b.answerCallback(q.ID, "Unknown action")
		return
	}
	b.countCommand("callback_" + string(status))

	reply := b.setStatus(ctx, bookingID, status, operatorName(q.From))
	b.answerCallback(q.ID, reply)
	if q.Message != nil && q.Message.Chat != nil {
		b.sendMessage(q.Message.Chat.ID, reply)
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.tgService.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback")
	}
}

func (b *Bot) listDay(ctx context.Context, chatID int64, date string) {
	bookings, total, err := b.bookings.ListBookings(ctx, models.BookingFilter{Date: date, Limit: listLimit})
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}
	if len(bookings) == 0 {
		b.sendMessage(chatID, fmt.Sprintf("No bookings on %s.", date))
		return
	}
	b.sendMessage(chatID, formatList(fmt.Sprintf("Bookings on %s", date), bookings, total))
}

func (b *Bot) listPending(ctx context.Context, chatID int64) {
	bookings, total, err := b.bookings.ListBookings(ctx, models.BookingFilter{Status: models.StatusPending, Limit: listLimit})
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}
	if len(bookings) == 0 {
		b.sendMessage(chatID, "No pending bookings.")
		return
	}
	b.sendMessage(chatID, formatList("Pending bookings", bookings, total))
}

func (b *Bot) showBooking(ctx context.Context, chatID int64, bookingID string) {
	bk, err := b.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}

	msg := tgbotapi.NewMessage(chatID, formatBooking(bk))
	var buttons []tgbotapi.InlineKeyboardButton
	if bk.Status.OccupiesSlot() {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("Cancel", callbackCancel+bk.BookingID))
	}
	if bk.Status == models.StatusConfirmed {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("Complete", callbackComplete+bk.BookingID))
	}
	if len(buttons) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	b.send(msg)
}

func (b *Bot) showSlots(ctx context.Context, chatID int64, date string) {
	if date == "" {
		date = b.now().Format(models.DateLayout)
	}
	avail, err := b.bookings.Availability(ctx, date)
	if err != nil {
		b.reportError(ctx, chatID, err)
		return
	}
	text := fmt.Sprintf("%s: %d free, %d booked", avail.Date, len(avail.AvailableTimes), len(avail.BookedTimes))
	if len(avail.BookedTimes) > 0 {
		text += "\nBooked: " + strings.Join(avail.BookedTimes, ", ")
	}
	b.sendMessage(chatID, text)
}

// setStatus runs an admin transition and returns the operator-facing reply.
func (b *Bot) setStatus(ctx context.Context, bookingID string, status models.BookingStatus, operator string) string {
	res, err := b.bookings.SetStatus(ctx, bookingID, status, operator)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("booking_id", bookingID).Str("status", string(status)).Msg("operator transition refused")
		return errorText(err)
	}
	if !res.Changed {
		return fmt.Sprintf("%s is already %s.", bookingID, res.Booking.Status)
	}
	return fmt.Sprintf("%s is now %s.", bookingID, res.Booking.Status)
}

func (b *Bot) reportError(ctx context.Context, chatID int64, err error) {
	if !isUserError(err) {
		b.countError()
		zerolog.Ctx(ctx).Error().Err(err).Msg("operator command failed")
	}
	b.sendMessage(chatID, errorText(err))
}

func isUserError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInvalidTransition)
}

func errorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "Booking not found."
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		return "Not allowed: " + err.Error()
	}
	return "Something went wrong, check the service logs."
}

func operatorName(u *tgbotapi.User) string {
	if u == nil {
		return "telegram"
	}
	if u.UserName != "" {
		return "telegram:" + u.UserName
	}
	return fmt.Sprintf("telegram:%d", u.ID)
}

func formatList(title string, bookings []*models.Booking, total int) string {
	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString(":\n")
	for _, bk := range bookings {
		fmt.Fprintf(&sb, "%s %s %s - %s (%s)\n", bk.AppointmentTime, bk.AppointmentDate, bk.BookingID, bk.CustomerName, bk.Status)
	}
	if total > len(bookings) {
		fmt.Fprintf(&sb, "...and %d more", total-len(bookings))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatBooking(bk *models.Booking) string {
	lines := []string{
		"Booking " + bk.BookingID,
		fmt.Sprintf("When: %s %s", bk.AppointmentDate, bk.AppointmentTime),
		"Service: " + string(bk.ServiceType),
		fmt.Sprintf("Customer: %s <%s>", bk.CustomerName, bk.CustomerEmail),
	}
	if bk.CustomerPhone != "" {
		lines = append(lines, "Phone: "+bk.CustomerPhone)
	}
	lines = append(lines,
		"Address: "+bk.MeetingAddress,
		fmt.Sprintf("Fee: $%s (%s)", bk.AmountDue.StringFixed(2), bk.PaymentStatus),
		"Status: "+string(bk.Status),
	)
	if bk.Notes != "" {
		lines = append(lines, "Notes: "+bk.Notes)
	}
	return strings.Join(lines, "\n")
}
