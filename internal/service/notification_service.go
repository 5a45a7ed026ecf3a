package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/events"
	"cubenotary/internal/metrics"
	"cubenotary/internal/models"

	"github.com/rs/zerolog"
)

const (
	sendTimeout = 30 * time.Second
	// maxInFlight bounds concurrent event-driven dispatches.
	maxInFlight = 8
)

type audience int

const (
	toCustomer audience = iota
	toAdmin
)

type route struct {
	channel  models.Channel
	audience audience
}

var notificationRoutes = map[models.NotificationKind][]route{
	models.KindBookingCreated: {
		{models.ChannelEmail, toCustomer},
		{models.ChannelSMS, toAdmin},
		{models.ChannelTelegram, toAdmin},
	},
	models.KindPaymentConfirmed: {{models.ChannelEmail, toCustomer}},
	models.KindPaymentFailed:    {{models.ChannelEmail, toCustomer}},
	models.KindBookingCancelled: {{models.ChannelEmail, toCustomer}},
	models.KindBookingCompleted: {{models.ChannelEmail, toCustomer}},
	models.KindBookingReminder: {
		{models.ChannelEmail, toCustomer},
		{models.ChannelSMS, toCustomer},
	},
	models.KindPaymentAnomaly: {
		{models.ChannelTelegram, toAdmin},
		{models.ChannelSMS, toAdmin},
	},
}

var eventKinds = map[string]models.NotificationKind{
	events.EventBookingCreated:       models.KindBookingCreated,
	events.EventBookingConfirmed:     models.KindPaymentConfirmed,
	events.EventBookingPaymentFailed: models.KindPaymentFailed,
	events.EventBookingCancelled:     models.KindBookingCancelled,
	events.EventBookingCompleted:     models.KindBookingCompleted,
	events.EventPaymentAnomaly:       models.KindPaymentAnomaly,
}

// AdminContacts are the operator destinations for alerts.
type AdminContacts struct {
	Phone          string
	TelegramChatID string
}

// NotificationService is the best-effort dispatcher. It runs after state
// changes commit and records every attempt in the notification log.
type NotificationService struct {
	repo    domain.Repository
	senders map[models.Channel]domain.Sender
	admin   AdminContacts
	brand   string
	logger  *zerolog.Logger

	inFlight chan struct{}
	wg       sync.WaitGroup
}

var _ domain.Notifier = (*NotificationService)(nil)

func NewNotificationService(repo domain.Repository, senders []domain.Sender, admin AdminContacts, brand string, logger *zerolog.Logger) *NotificationService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if brand == "" {
		brand = "Cube Notary"
	}
	byChannel := make(map[models.Channel]domain.Sender, len(senders))
	for _, snd := range senders {
		if snd != nil {
			byChannel[snd.Channel()] = snd
		}
	}
	return &NotificationService{
		repo:     repo,
		senders:  byChannel,
		admin:    admin,
		brand:    brand,
		logger:   logger,
		inFlight: make(chan struct{}, maxInFlight),
	}
}

// Subscribe wires the dispatcher to booking lifecycle events.
func (s *NotificationService) Subscribe(bus *events.EventBus) {
	types := make([]string, 0, len(eventKinds))
	for t := range eventKinds {
		types = append(types, t)
	}
	bus.SubscribeAll(types, s.HandleEvent)
}

// HandleEvent dispatches the notification matching a bus event in the
// background, so the publisher never waits on SMTP or SMS providers.
func (s *NotificationService) HandleEvent(e *events.Event) error {
	kind, ok := eventKinds[e.Type]
	if !ok {
		return nil
	}
	p, err := e.Decode()
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.inFlight <- struct{}{}
		defer func() { <-s.inFlight }()

		ctx, cancel := context.WithTimeout(context.Background(), 2*sendTimeout)
		defer cancel()
		s.dispatch(ctx, p.BookingID, kind, p.Reason, p.Reference)
	}()
	return nil
}

// Wait blocks until every background dispatch has finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// Notify sends kind for bookingID on every configured route. It never fails.
func (s *NotificationService) Notify(ctx context.Context, bookingID string, kind models.NotificationKind) {
	s.dispatch(ctx, bookingID, kind, "", "")
}

// Resend re-dispatches kind for an existing booking on operator request.
func (s *NotificationService) Resend(ctx context.Context, bookingID string, kind models.NotificationKind) ([]*models.NotificationLogEntry, error) {
	if _, ok := notificationRoutes[kind]; !ok {
		return nil, domain.Invalid("kind", fmt.Sprintf("unknown notification kind %q", kind))
	}
	if _, err := s.repo.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.dispatch(ctx, bookingID, kind, "", ""), nil
}

func (s *NotificationService) Logs(ctx context.Context, filter models.NotificationFilter) ([]*models.NotificationLogEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = models.DefaultPageSize
	}
	if filter.Limit > models.MaxPageSize {
		filter.Limit = models.MaxPageSize
	}
	return s.repo.ListNotifications(ctx, filter)
}

// Channels reports which delivery channels are configured.
func (s *NotificationService) Channels() map[models.Channel]bool {
	return map[models.Channel]bool{
		models.ChannelEmail:    s.senders[models.ChannelEmail] != nil,
		models.ChannelSMS:      s.senders[models.ChannelSMS] != nil,
		models.ChannelTelegram: s.senders[models.ChannelTelegram] != nil,
	}
}

func (s *NotificationService) dispatch(ctx context.Context, bookingID string, kind models.NotificationKind, reason, reference string) []*models.NotificationLogEntry {
	log := s.logger.With().Str("booking_id", bookingID).Str("kind", string(kind)).Logger()

	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		log.Error().Err(err).Msg("notification skipped: booking not loaded")
		return nil
	}

	msg, err := render(kind, messageData{
		Brand:     s.brand,
		Booking:   b,
		Amount:    b.AmountDue.StringFixed(2),
		Reason:    reason,
		Reference: reference,
	})
	if err != nil {
		log.Error().Err(err).Msg("notification skipped: render failed")
		return nil
	}

	var entries []*models.NotificationLogEntry
	for _, r := range notificationRoutes[kind] {
		sender, ok := s.senders[r.channel]
		if !ok {
			continue
		}
		recipient := s.recipient(b, r)
		if recipient == "" {
			continue
		}

		out := models.OutboundMessage{
			BookingID: b.BookingID,
			Kind:      kind,
			Recipient: recipient,
			Subject:   msg.Subject,
			Text:      msg.Text,
			HTML:      msg.HTML,
		}
		if r.channel != models.ChannelEmail {
			out.Subject = ""
			out.Text = msg.Short
			out.HTML = ""
		}

		entry := &models.NotificationLogEntry{
			BookingID: b.BookingID,
			Channel:   r.channel,
			Kind:      kind,
			Recipient: recipient,
			Subject:   out.Subject,
			Body:      out.Text,
			Status:    models.NotificationSent,
		}
		if err := s.send(ctx, sender, out); err != nil {
			entry.Status = models.NotificationFailed
			entry.ErrorMessage = err.Error()
			log.Warn().Err(err).Str("channel", string(r.channel)).Str("recipient", recipient).Msg("notification failed")
		} else {
			log.Info().Str("channel", string(r.channel)).Str("recipient", recipient).Msg("notification sent")
		}
		metrics.IncNotification(string(r.channel), entry.Status)

		if err := s.repo.AppendNotification(ctx, entry); err != nil {
			log.Error().Err(err).Str("channel", string(r.channel)).Msg("notification log append failed")
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *NotificationService) recipient(b *models.Booking, r route) string {
	if r.audience == toAdmin {
		switch r.channel {
		case models.ChannelSMS:
			return s.admin.Phone
		case models.ChannelTelegram:
			return s.admin.TelegramChatID
		}
		return ""
	}
	switch r.channel {
	case models.ChannelEmail:
		return b.CustomerEmail
	case models.ChannelSMS:
		return b.CustomerPhone
	}
	return ""
}

func (s *NotificationService) send(ctx context.Context, sender domain.Sender, msg models.OutboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return sender.Send(ctx, msg)
}
