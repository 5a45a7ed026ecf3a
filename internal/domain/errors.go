package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrSlotTaken              = errors.New("time slot is no longer available")
	ErrDuplicateID            = errors.New("booking id already exists")
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrAmountMismatch         = errors.New("amount mismatch")
	ErrConflictingOutcome     = errors.New("conflicting payment outcome")
	ErrUnknownReference       = errors.New("unknown payment reference")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrProvider               = errors.New("payment provider error")
	// ErrUnreadableEvent marks a webhook whose signature verified but whose
	// body cannot be reduced to a payment outcome.
	ErrUnreadableEvent = errors.New("unreadable webhook event")
)

// AmountMismatchError carries both sides of a failed amount comparison.
type AmountMismatchError struct {
	Expected decimal.Decimal
	Received decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("Expected amount: $%s, received: $%s", e.Expected.StringFixed(2), e.Received.StringFixed(2))
}

func (e *AmountMismatchError) Unwrap() error { return ErrAmountMismatch }

// CurrencyMismatchError is an amount mismatch where the units differ.
type CurrencyMismatchError struct {
	Expected string
	Received string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("Expected currency: %s, received: %s", strings.ToUpper(e.Expected), strings.ToUpper(e.Received))
}

func (e *CurrencyMismatchError) Unwrap() error { return ErrAmountMismatch }

// TransitionError explains why the state machine refused an event.
type TransitionError struct {
	From  string
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to booking in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationErrors maps field names to messages.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v[f])
	}
	return strings.Join(parts, "; ")
}

func (v ValidationErrors) Unwrap() error { return ErrValidation }

// Invalid builds a single-field validation error.
func Invalid(field, msg string) error {
	return ValidationErrors{field: msg}
}
