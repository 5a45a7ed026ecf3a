package models

type BookingStatus string

const (
	StatusPending       BookingStatus = "pending"
	StatusConfirmed     BookingStatus = "confirmed"
	StatusCompleted     BookingStatus = "completed"
	StatusCancelled     BookingStatus = "cancelled"
	StatusPaymentFailed BookingStatus = "payment_failed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusPaymentFailed:
		return true
	}
	return false
}

// OccupiesSlot reports whether a booking in this status holds its slot.
func (s BookingStatus) OccupiesSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

// PaymentStatus is the booking-level view of money received.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	// SlotMinutes is the width of one bookable bucket.
	SlotMinutes = 30
	SlotsPerDay = 24 * 60 / SlotMinutes

	BookingIDPrefix    = "CN"
	BookingIDSuffixLen = 5
	DefaultCurrency    = "usd"

	// DefaultPageSize applies when a listing request omits limit.
	DefaultPageSize = 50
	MaxPageSize     = 500

	// DefaultWebhookDedupeTTL keeps provider event ids for replay detection.
	DefaultWebhookDedupeTTL = 72 * 60 * 60 // seconds

	// ReminderCron fires day-before reminders.
	ReminderCron = "0 9 * * *"

	// MaxTransitionAttempts bounds optimistic retries of a booking transition.
	MaxTransitionAttempts = 3

	// SheetsCacheTTL bounds how long the sheet row index is trusted, in seconds.
	SheetsCacheTTL = 60 * 60
)
