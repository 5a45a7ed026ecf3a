package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordSucceeded PaymentRecordStatus = "succeeded"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
	PaymentRecordRefunded  PaymentRecordStatus = "refunded"
)

func (s PaymentRecordStatus) Terminal() bool {
	return s == PaymentRecordSucceeded || s == PaymentRecordFailed || s == PaymentRecordRefunded
}

// PaymentRecord mirrors one provider payment attempt.
type PaymentRecord struct {
	Reference     string              `json:"payment_intent_id"`
	BookingID     string              `json:"booking_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Status        PaymentRecordStatus `json:"status"`
	CustomerEmail string              `json:"customer_email"`
	RefundID      string              `json:"refund_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// PaymentOutcome is what the provider reports for a reference.
type PaymentOutcome string

const (
	OutcomeSucceeded PaymentOutcome = "succeeded"
	OutcomeFailed    PaymentOutcome = "failed"
	OutcomeRefunded  PaymentOutcome = "refunded"
)

// RecordStatus is the payment record status an outcome settles into.
func (o PaymentOutcome) RecordStatus() PaymentRecordStatus {
	switch o {
	case OutcomeSucceeded:
		return PaymentRecordSucceeded
	case OutcomeFailed:
		return PaymentRecordFailed
	case OutcomeRefunded:
		return PaymentRecordRefunded
	}
	return ""
}

// ReconcileResult classifies the effect of one reconciliation call.
type ReconcileResult string

const (
	ReconcileApplied  ReconcileResult = "applied"
	ReconcileIgnored  ReconcileResult = "ignored"
	ReconcileRejected ReconcileResult = "rejected"
)
