package service

import (
	"errors"
	"testing"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name       string
		status     models.BookingStatus
		payment    models.PaymentStatus
		event      BookingEvent
		want       models.BookingStatus
		wantPay    models.PaymentStatus
		idempotent bool
		wantErr    bool
	}{
		{"pay pending", models.StatusPending, models.PaymentUnpaid, EventPaymentSucceeded, models.StatusConfirmed, models.PaymentPaid, false, false},
		{"pay confirmed again", models.StatusConfirmed, models.PaymentPaid, EventPaymentSucceeded, models.StatusConfirmed, "", true, false},
		{"pay cancelled", models.StatusCancelled, models.PaymentUnpaid, EventPaymentSucceeded, "", "", false, true},
		{"pay failed booking", models.StatusPaymentFailed, models.PaymentUnpaid, EventPaymentSucceeded, "", "", false, true},
		{"fail pending", models.StatusPending, models.PaymentUnpaid, EventPaymentFailed, models.StatusPaymentFailed, "", false, false},
		{"fail again", models.StatusPaymentFailed, models.PaymentUnpaid, EventPaymentFailed, models.StatusPaymentFailed, "", true, false},
		{"fail confirmed", models.StatusConfirmed, models.PaymentPaid, EventPaymentFailed, "", "", false, true},
		{"refund confirmed", models.StatusConfirmed, models.PaymentPaid, EventRefund, models.StatusCancelled, models.PaymentRefunded, false, false},
		{"refund after admin cancel", models.StatusCancelled, models.PaymentPaid, EventRefund, models.StatusCancelled, models.PaymentRefunded, false, false},
		{"refund again", models.StatusCancelled, models.PaymentRefunded, EventRefund, models.StatusCancelled, "", true, false},
		{"refund never confirmed", models.StatusPending, models.PaymentUnpaid, EventRefund, "", "", false, true},
		{"refund unpaid cancelled", models.StatusCancelled, models.PaymentUnpaid, EventRefund, "", "", false, true},
		{"cancel pending", models.StatusPending, models.PaymentUnpaid, EventCancel, models.StatusCancelled, "", false, false},
		{"cancel confirmed", models.StatusConfirmed, models.PaymentPaid, EventCancel, models.StatusCancelled, "", false, false},
		{"cancel cancelled", models.StatusCancelled, models.PaymentUnpaid, EventCancel, models.StatusCancelled, "", true, false},
		{"cancel completed", models.StatusCompleted, models.PaymentPaid, EventCancel, "", "", false, true},
		{"complete confirmed", models.StatusConfirmed, models.PaymentPaid, EventComplete, models.StatusCompleted, "", false, false},
		{"complete pending", models.StatusPending, models.PaymentUnpaid, EventComplete, "", "", false, true},
		{"complete completed", models.StatusCompleted, models.PaymentPaid, EventComplete, models.StatusCompleted, "", true, false},
		{"unknown event", models.StatusPending, models.PaymentUnpaid, BookingEvent("reopen"), "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Next(&models.Booking{Status: tt.status, PaymentStatus: tt.payment}, tt.event)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "got %v", err)
				var te *domain.TransitionError
				assert.True(t, errors.As(err, &te))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, d.To)
			assert.Equal(t, tt.wantPay, d.PaymentStatus)
			assert.Equal(t, tt.idempotent, d.Idempotent)
		})
	}
}

func TestCheckAmount(t *testing.T) {
	tol := decimal.RequireFromString("0.01")

	assert.NoError(t, CheckAmount(decimal.RequireFromString("35.00"), decimal.RequireFromString("35"), tol))
	assert.NoError(t, CheckAmount(decimal.RequireFromString("25.00"), decimal.RequireFromString("25.01"), tol))
	assert.NoError(t, CheckAmount(decimal.RequireFromString("25.00"), decimal.RequireFromString("24.99"), tol))

	err := CheckAmount(decimal.RequireFromString("35.00"), decimal.RequireFromString("34.00"), tol)
	assert.True(t, errors.Is(err, domain.ErrAmountMismatch))
	assert.Equal(t, "Expected amount: $35.00, received: $34.00", err.Error())

	assert.Error(t, CheckAmount(decimal.RequireFromString("25.00"), decimal.RequireFromString("25.02"), tol))
}

func TestEventForOutcome(t *testing.T) {
	e, ok := EventForOutcome(models.OutcomeRefunded)
	assert.True(t, ok)
	assert.Equal(t, EventRefund, e)

	_, ok = EventForOutcome(models.PaymentOutcome("disputed"))
	assert.False(t, ok)
}
