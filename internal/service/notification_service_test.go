package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/events"
	"cubenotary/internal/models"
	"cubenotary/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBooking(t *testing.T, store *repository.MemoryStore, id, date, slot string) *models.Booking {
	t.Helper()
	b := &models.Booking{
		BookingID:       id,
		CustomerName:    "Jane Doe",
		CustomerEmail:   "jane@example.com",
		CustomerPhone:   "+13125550100",
		ServiceType:     models.ServiceMobileNotary,
		AppointmentDate: date,
		AppointmentTime: slot,
		MeetingAddress:  "1 Main St",
		AmountDue:       decimal.RequireFromString("40.00"),
	}
	require.NoError(t, store.ClaimSlot(context.Background(), b))
	return b
}

func TestNotify_FailuresAreLoggedNotRaised(t *testing.T) {
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()
	email := &recordingSender{channel: models.ChannelEmail, err: errors.New("smtp: 421 try later")}
	sms := &recordingSender{channel: models.ChannelSMS, panics: true}
	n := NewNotificationService(store, []domain.Sender{email, sms}, AdminContacts{Phone: "+1999"}, "", &logger)

	b := seedBooking(t, store, "CN-N1", "2025-06-01", "09:00")
	n.Notify(context.Background(), b.BookingID, models.KindBookingCreated)

	entries, err := store.ListNotifications(context.Background(), models.NotificationFilter{BookingID: b.BookingID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, models.NotificationFailed, e.Status)
		assert.NotEmpty(t, e.ErrorMessage)
	}
}

func TestNotify_RendersPerChannel(t *testing.T) {
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()
	email := &recordingSender{channel: models.ChannelEmail}
	sms := &recordingSender{channel: models.ChannelSMS}
	n := NewNotificationService(store, []domain.Sender{email, sms}, AdminContacts{}, "Cube Notary", &logger)

	b := seedBooking(t, store, "CN-N2", "2025-06-01", "09:00")
	n.Notify(context.Background(), b.BookingID, models.KindBookingReminder)

	mails := email.messages()
	require.Len(t, mails, 1)
	assert.Equal(t, "jane@example.com", mails[0].Recipient)
	assert.Contains(t, mails[0].Subject, "09:00")
	assert.Contains(t, mails[0].HTML, "CN-N2")
	assert.Contains(t, mails[0].HTML, "$40.00")

	texts := sms.messages()
	require.Len(t, texts, 1)
	assert.Equal(t, "+13125550100", texts[0].Recipient)
	assert.Empty(t, texts[0].HTML)
	assert.True(t, strings.HasPrefix(texts[0].Text, "Cube Notary: reminder"))
}

func TestNotify_AdminRoutesSkippedWithoutContacts(t *testing.T) {
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()
	email := &recordingSender{channel: models.ChannelEmail}
	sms := &recordingSender{channel: models.ChannelSMS}
	n := NewNotificationService(store, []domain.Sender{email, sms}, AdminContacts{}, "", &logger)

	b := seedBooking(t, store, "CN-N3", "2025-06-01", "09:00")
	n.Notify(context.Background(), b.BookingID, models.KindBookingCreated)

	assert.Len(t, email.messages(), 1)
	assert.Empty(t, sms.messages())
}

func TestNotify_UnknownBooking(t *testing.T) {
	store := repository.NewMemoryStore()
	n := NewNotificationService(store, []domain.Sender{&recordingSender{channel: models.ChannelEmail}}, AdminContacts{}, "", nil)

	n.Notify(context.Background(), "CN-GONE", models.KindPaymentConfirmed)
	entries, err := store.ListNotifications(context.Background(), models.NotificationFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleEvent_AnomalyCarriesReason(t *testing.T) {
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()
	bus := events.NewEventBus(&logger)
	tg := &recordingSender{channel: models.ChannelTelegram}
	n := NewNotificationService(store, []domain.Sender{tg}, AdminContacts{TelegramChatID: "42"}, "", &logger)
	n.Subscribe(bus)

	b := seedBooking(t, store, "CN-N4", "2025-06-01", "09:00")
	require.NoError(t, bus.PublishJSON(events.EventPaymentAnomaly, events.BookingEventPayload{
		BookingID: b.BookingID,
		Reference: "pi_9",
		Reason:    "Expected amount: $40.00, received: $1.00",
	}))

	n.Wait()
	msgs := tg.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].Recipient)
	assert.Contains(t, msgs[0].Text, "pi_9")
	assert.Contains(t, msgs[0].Text, "received: $1.00")
}

type blockingSender struct {
	recordingSender
	started chan struct{}
	release chan struct{}
}

func (s *blockingSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.recordingSender.Send(ctx, msg)
}

func TestHandleEvent_DoesNotBlockPublisher(t *testing.T) {
	store := repository.NewMemoryStore()
	logger := zerolog.Nop()
	bus := events.NewEventBus(&logger)
	tg := &blockingSender{
		recordingSender: recordingSender{channel: models.ChannelTelegram},
		started:         make(chan struct{}, 1),
		release:         make(chan struct{}),
	}
	n := NewNotificationService(store, []domain.Sender{tg}, AdminContacts{TelegramChatID: "42"}, "", &logger)
	n.Subscribe(bus)
	b := seedBooking(t, store, "CN-N6", "2025-06-01", "11:00")

	published := make(chan error, 1)
	go func() {
		published <- bus.PublishJSON(events.EventPaymentAnomaly, events.BookingEventPayload{
			BookingID: b.BookingID,
			Reference: "pi_slow",
		})
	}()

	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish waited on a stalled sender")
	}

	select {
	case <-tg.started:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch never reached the sender")
	}
	assert.Empty(t, tg.messages())

	close(tg.release)
	n.Wait()
	require.Len(t, tg.messages(), 1)
	entries, err := store.ListNotifications(context.Background(), models.NotificationFilter{BookingID: b.BookingID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.NotificationSent, entries[0].Status)
}

func TestResend(t *testing.T) {
	store := repository.NewMemoryStore()
	email := &recordingSender{channel: models.ChannelEmail}
	n := NewNotificationService(store, []domain.Sender{email}, AdminContacts{}, "", nil)
	b := seedBooking(t, store, "CN-N5", "2025-06-01", "09:00")
	ctx := context.Background()

	entries, err := n.Resend(ctx, b.BookingID, models.KindPaymentConfirmed)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.NotificationSent, entries[0].Status)

	_, err = n.Resend(ctx, b.BookingID, models.NotificationKind("newsletter"))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = n.Resend(ctx, "CN-GONE", models.KindPaymentConfirmed)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	logs, err := n.Logs(ctx, models.NotificationFilter{BookingID: b.BookingID})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	assert.Equal(t, map[models.Channel]bool{
		models.ChannelEmail:    true,
		models.ChannelSMS:      false,
		models.ChannelTelegram: false,
	}, n.Channels())
}

func TestReminderService(t *testing.T) {
	store := repository.NewMemoryStore()
	email := &recordingSender{channel: models.ChannelEmail}
	n := NewNotificationService(store, []domain.Sender{email}, AdminContacts{}, "", nil)
	ctx := context.Background()

	confirmed := seedBooking(t, store, "CN-R1", "2025-06-02", "09:00")
	_, err := store.TransitionBooking(ctx, models.Transition{BookingID: confirmed.BookingID, FromVersion: 1, To: models.StatusConfirmed})
	require.NoError(t, err)
	seedBooking(t, store, "CN-R2", "2025-06-02", "10:00")
	other := seedBooking(t, store, "CN-R3", "2025-06-03", "09:00")
	_, err = store.TransitionBooking(ctx, models.Transition{BookingID: other.BookingID, FromVersion: 1, To: models.StatusConfirmed})
	require.NoError(t, err)

	r := NewReminderService(store, n, "", nil)
	r.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }

	sent, err := r.SendReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = r.SendReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "reminder goes out once per booking")

	msgs := email.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.KindBookingReminder, msgs[0].Kind)
	assert.Equal(t, "CN-R1", msgs[0].BookingID)
}

func TestReminderService_Register(t *testing.T) {
	store := repository.NewMemoryStore()
	n := NewNotificationService(store, nil, AdminContacts{}, "", nil)

	c := cron.New()
	require.NoError(t, NewReminderService(store, n, "", nil).Register(c))
	assert.Len(t, c.Entries(), 1)

	assert.Error(t, NewReminderService(store, n, "every day", nil).Register(c))
}
