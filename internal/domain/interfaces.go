package domain

import (
	"context"
	"time"

	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
)

// Repository is the storage capability the booking core runs against.
type Repository interface {
	BookingStore
	NotificationLog
}

type BookingStore interface {
	ClaimSlot(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	BookedTimes(ctx context.Context, date string) ([]string, error)
	TransitionBooking(ctx context.Context, tr models.Transition) (*models.Booking, error)
	UpsertPaymentRecord(ctx context.Context, record *models.PaymentRecord) error
	GetPaymentRecord(ctx context.Context, reference string) (*models.PaymentRecord, error)
	ListPaymentRecords(ctx context.Context, bookingID string) ([]*models.PaymentRecord, error)
	UpsertCustomer(ctx context.Context, customer *models.Customer) error
}

type NotificationLog interface {
	AppendNotification(ctx context.Context, entry *models.NotificationLogEntry) error
	ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]*models.NotificationLogEntry, error)
	HasNotification(ctx context.Context, bookingID string, kind models.NotificationKind, channel models.Channel) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier is the best-effort dispatcher called after a transition commits.
type Notifier interface {
	Notify(ctx context.Context, bookingID string, kind models.NotificationKind)
}

// Sender delivers a rendered message over a single channel.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// DeliveryDeduper remembers provider event ids that were already handled.
type DeliveryDeduper interface {
	MarkDelivered(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// PaymentProvider is the external card processor.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, reference string) (*Intent, error)
	Refund(ctx context.Context, reference, reason string) (*Refund, error)
	ParseWebhook(payload []byte, signature string) (*ProviderEvent, error)
}

type IntentRequest struct {
	BookingID     string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	CustomerName  string
	Description   string
}

type Intent struct {
	Reference    string
	ClientSecret string
	Status       string
	Amount       decimal.Decimal
	Currency     string
}

type Refund struct {
	ID     string
	Status string
	Amount decimal.Decimal
}

// ProviderEvent is a verified webhook delivery reduced to what reconciliation needs.
// Outcome is empty for event types the service does not act on.
type ProviderEvent struct {
	ID        string
	Type      string
	Reference string
	Outcome   models.PaymentOutcome
	Amount    decimal.Decimal
	Currency  string
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}
