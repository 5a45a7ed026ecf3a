package models

import "time"

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelTelegram Channel = "telegram"
)

type NotificationKind string

const (
	KindBookingCreated   NotificationKind = "booking_created"
	KindPaymentConfirmed NotificationKind = "payment_confirmation"
	KindPaymentFailed    NotificationKind = "payment_failed"
	KindBookingCancelled NotificationKind = "booking_cancelled"
	KindBookingCompleted NotificationKind = "booking_completed"
	KindBookingReminder  NotificationKind = "booking_reminder"
	KindPaymentAnomaly   NotificationKind = "payment_anomaly"
)

const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// NotificationLogEntry is an append-only record of one delivery attempt.
type NotificationLogEntry struct {
	ID           int64            `json:"id"`
	BookingID    string           `json:"booking_id"`
	Channel      Channel          `json:"channel"`
	Kind         NotificationKind `json:"kind"`
	Recipient    string           `json:"recipient"`
	Subject      string           `json:"subject,omitempty"`
	Body         string           `json:"body"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

type NotificationFilter struct {
	BookingID string
	Channel   Channel
	Kind      NotificationKind
	Status    string
	Limit     int
	Offset    int
}

// OutboundMessage is a rendered message handed to a channel sender.
type OutboundMessage struct {
	BookingID string
	Kind      NotificationKind
	Recipient string
	Subject   string
	Text      string
	HTML      string
}

type Customer struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
