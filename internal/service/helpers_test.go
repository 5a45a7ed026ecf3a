package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cubenotary/internal/domain"
	"cubenotary/internal/events"
	"cubenotary/internal/models"
	"cubenotary/internal/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const validSignature = "t=1,v1=ok"

type fakeProvider struct {
	mu        sync.Mutex
	seq       int
	intents   map[string]*domain.Intent
	refundErr error
	refunds   int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: make(map[string]*domain.Intent)}
}

func (p *fakeProvider) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	ref := fmt.Sprintf("pi_%d", p.seq)
	intent := &domain.Intent{
		Reference:    ref,
		ClientSecret: ref + "_secret",
		Status:       "requires_payment_method",
		Amount:       req.Amount,
		Currency:     req.Currency,
	}
	p.intents[ref] = intent
	return intent, nil
}

func (p *fakeProvider) RetrieveIntent(ctx context.Context, reference string) (*domain.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[reference]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	cp := *intent
	return &cp, nil
}

func (p *fakeProvider) created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

func (p *fakeProvider) setStatus(reference, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[reference].Status = status
}

func (p *fakeProvider) Refund(ctx context.Context, reference, reason string) (*domain.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	p.refunds++
	return &domain.Refund{ID: fmt.Sprintf("re_%d", p.refunds), Status: "succeeded", Amount: p.intents[reference].Amount}, nil
}

// ParseWebhook accepts a JSON-encoded domain.ProviderEvent signed with validSignature.
func (p *fakeProvider) ParseWebhook(payload []byte, signature string) (*domain.ProviderEvent, error) {
	if signature != validSignature {
		return nil, errors.New("signature mismatch")
	}
	var evt domain.ProviderEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableEvent, err)
	}
	return &evt, nil
}

type recordingSender struct {
	mu      sync.Mutex
	channel models.Channel
	sent    []models.OutboundMessage
	err     error
	panics  bool
}

func (s *recordingSender) Channel() models.Channel { return s.channel }

func (s *recordingSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	if s.panics {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []models.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutboundMessage(nil), s.sent...)
}

type fixture struct {
	store    *repository.MemoryStore
	bus      *events.EventBus
	provider *fakeProvider
	email    *recordingSender
	sms      *recordingSender
	bookings *BookingService
	payments *PaymentService
	notifier *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		bus:      events.NewEventBus(&logger),
		provider: newFakeProvider(),
		email:    &recordingSender{channel: models.ChannelEmail},
		sms:      &recordingSender{channel: models.ChannelSMS},
	}
	f.notifier = NewNotificationService(f.store, []domain.Sender{f.email, f.sms}, AdminContacts{Phone: "+13125550199"}, "", &logger)
	f.notifier.Subscribe(f.bus)
	f.bookings = NewBookingService(f.store, f.bus, nil, models.DefaultFees(), &logger)
	f.payments = NewPaymentService(f.store, f.provider, repository.NewMemoryDeduper(), f.bus, nil, PaymentOptions{}, &logger)
	return f
}

func bookingRequest(service models.ServiceType, date, slot string) CreateBookingRequest {
	return CreateBookingRequest{
		CustomerName:    "Jane Doe",
		CustomerEmail:   "jane@example.com",
		CustomerPhone:   "+13125550100",
		ServiceType:     service,
		AppointmentDate: date,
		AppointmentTime: slot,
		MeetingAddress:  "100 N State St, Chicago",
	}
}

// book creates a booking and opens a payment intent for it.
func (f *fixture) book(t *testing.T, service models.ServiceType, date, slot string) (*models.Booking, string) {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), bookingRequest(service, date, slot))
	require.NoError(t, err)
	intent, err := f.payments.CreateIntent(context.Background(), b.BookingID, nil)
	require.NoError(t, err)
	return b, intent.Reference
}

func (f *fixture) logs(t *testing.T, bookingID string, kind models.NotificationKind, channel models.Channel) []*models.NotificationLogEntry {
	t.Helper()
	f.notifier.Wait()
	entries, err := f.store.ListNotifications(context.Background(), models.NotificationFilter{BookingID: bookingID, Kind: kind, Channel: channel})
	require.NoError(t, err)
	return entries
}

func webhookPayload(t *testing.T, id, ref string, outcome models.PaymentOutcome, amount string) []byte {
	t.Helper()
	raw, err := json.Marshal(domain.ProviderEvent{
		ID:        id,
		Type:      "payment_intent." + string(outcome),
		Reference: ref,
		Outcome:   outcome,
		Amount:    decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return raw
}
