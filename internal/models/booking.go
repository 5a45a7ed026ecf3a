package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	BookingID        string          `json:"booking_id"`
	CustomerName     string          `json:"customer_name"`
	CustomerEmail    string          `json:"customer_email"`
	CustomerPhone    string          `json:"customer_phone,omitempty"`
	ServiceType      ServiceType     `json:"service_type"`
	AppointmentDate  string          `json:"appointment_date"`
	AppointmentTime  string          `json:"appointment_time"`
	MeetingAddress   string          `json:"meeting_address"`
	Notes            string          `json:"notes,omitempty"`
	Status           BookingStatus   `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	AmountDue        decimal.Decimal `json:"service_fee"`
	PaymentReference *string         `json:"payment_intent_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int64           `json:"version"`
}

// SlotKey is the (date, time) pair the booking occupies while active.
func (b *Booking) SlotKey() string {
	return b.AppointmentDate + " " + b.AppointmentTime
}

// Clone returns a copy that shares no pointers with b.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.PaymentReference != nil {
		ref := *b.PaymentReference
		c.PaymentReference = &ref
	}
	return &c
}

// BookingFilter narrows booking listings. Zero values mean "any".
type BookingFilter struct {
	Date     string
	DateFrom string
	DateTo   string
	Status   BookingStatus
	Limit    int
	Offset   int
}

// Transition is a guarded write of a booking state change, optionally moving
// one payment record in the same atomic unit.
type Transition struct {
	BookingID     string
	FromVersion   int64
	To            BookingStatus
	PaymentStatus PaymentStatus
	Payment       *PaymentChange
}

// PaymentChange moves a payment record from one status to another.
type PaymentChange struct {
	Reference string
	From      PaymentRecordStatus
	To        PaymentRecordStatus
	RefundID  string
}

// Availability is the derived slot view of one date.
type Availability struct {
	Date           string   `json:"date"`
	AvailableTimes []string `json:"available_times"`
	BookedTimes    []string `json:"booked_times"`
}
