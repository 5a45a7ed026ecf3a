package service

import (
	"strings"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
)

// BookingEvent is an input to the booking state machine.
type BookingEvent string

const (
	EventPaymentSucceeded BookingEvent = "payment_succeeded"
	EventPaymentFailed    BookingEvent = "payment_failed"
	EventRefund           BookingEvent = "refund"
	EventCancel           BookingEvent = "cancel"
	EventComplete         BookingEvent = "complete"
)

// Decision is the state machine's answer for one (booking, event) pair.
// Idempotent means the booking already reflects the event.
type Decision struct {
	To            models.BookingStatus
	PaymentStatus models.PaymentStatus
	Idempotent    bool
}

// Next computes the transition for event without side effects.
func Next(b *models.Booking, event BookingEvent) (Decision, error) {
	reject := func() (Decision, error) {
		return Decision{}, &domain.TransitionError{From: string(b.Status), Event: string(event)}
	}

	switch event {
	case EventPaymentSucceeded:
		switch b.Status {
		case models.StatusPending:
			return Decision{To: models.StatusConfirmed, PaymentStatus: models.PaymentPaid}, nil
		case models.StatusConfirmed:
			return Decision{To: models.StatusConfirmed, Idempotent: true}, nil
		}
	case EventPaymentFailed:
		switch b.Status {
		case models.StatusPending:
			return Decision{To: models.StatusPaymentFailed}, nil
		case models.StatusPaymentFailed:
			return Decision{To: models.StatusPaymentFailed, Idempotent: true}, nil
		}
	case EventRefund:
		switch {
		case b.Status == models.StatusConfirmed:
			return Decision{To: models.StatusCancelled, PaymentStatus: models.PaymentRefunded}, nil
		case b.Status == models.StatusCancelled && b.PaymentStatus == models.PaymentPaid:
			// cancelled by an admin first, money returned afterwards
			return Decision{To: models.StatusCancelled, PaymentStatus: models.PaymentRefunded}, nil
		case b.Status == models.StatusCancelled && b.PaymentStatus == models.PaymentRefunded:
			return Decision{To: models.StatusCancelled, Idempotent: true}, nil
		}
	case EventCancel:
		switch b.Status {
		case models.StatusPending, models.StatusConfirmed:
			return Decision{To: models.StatusCancelled}, nil
		case models.StatusCancelled:
			return Decision{To: models.StatusCancelled, Idempotent: true}, nil
		}
	case EventComplete:
		switch b.Status {
		case models.StatusConfirmed:
			return Decision{To: models.StatusCompleted}, nil
		case models.StatusCompleted:
			return Decision{To: models.StatusCompleted, Idempotent: true}, nil
		}
	}
	return reject()
}

// EventForOutcome maps a provider outcome onto the state machine input.
func EventForOutcome(o models.PaymentOutcome) (BookingEvent, bool) {
	switch o {
	case models.OutcomeSucceeded:
		return EventPaymentSucceeded, true
	case models.OutcomeFailed:
		return EventPaymentFailed, true
	case models.OutcomeRefunded:
		return EventRefund, true
	}
	return "", false
}

// CheckAmount fails with *domain.AmountMismatchError when received is
// further than tolerance from expected.
func CheckAmount(expected, received, tolerance decimal.Decimal) error {
	if expected.Sub(received).Abs().GreaterThan(tolerance) {
		return &domain.AmountMismatchError{Expected: expected, Received: received}
	}
	return nil
}

// CheckCurrency fails with *domain.CurrencyMismatchError when the provider
// reports a different currency. An empty received currency is not checked.
func CheckCurrency(expected, received string) error {
	if received == "" || strings.EqualFold(expected, received) {
		return nil
	}
	return &domain.CurrencyMismatchError{Expected: expected, Received: received}
}
