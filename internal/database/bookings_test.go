package database

import (
	"context"
	"errors"
	"testing"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimSlot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b1 := newBooking("CN-B1", "2025-06-01", "09:00")
	require.NoError(t, db.ClaimSlot(ctx, b1))
	assert.Equal(t, models.StatusPending, b1.Status)
	assert.Equal(t, models.PaymentUnpaid, b1.PaymentStatus)
	assert.Equal(t, int64(1), b1.Version)

	err := db.ClaimSlot(ctx, newBooking("CN-B2", "2025-06-01", "09:00"))
	assert.True(t, errors.Is(err, domain.ErrSlotTaken), "got %v", err)

	// same time on another date is a different slot
	require.NoError(t, db.ClaimSlot(ctx, newBooking("CN-B3", "2025-06-02", "09:00")))

	got, err := db.GetBooking(ctx, "CN-B1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.CustomerName)
	assert.True(t, decimal.RequireFromString("25").Equal(got.AmountDue))
	assert.Nil(t, got.PaymentReference)
}

func TestClaimSlot_DuplicateIDIsNotSlotTaken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ClaimSlot(ctx, newBooking("CN-DUP", "2025-06-01", "09:00")))
	err := db.ClaimSlot(ctx, newBooking("CN-DUP", "2025-06-01", "10:00"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrSlotTaken))
	assert.True(t, errors.Is(err, domain.ErrDuplicateID), "got %v", err)
}

func TestGetBooking_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetBooking(context.Background(), "CN-NOPE")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTransitionBooking_FreesSlot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("CN-T1", "2025-06-01", "14:00")
	require.NoError(t, db.ClaimSlot(ctx, b))

	booked, err := db.BookedTimes(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00"}, booked)

	updated, err := db.TransitionBooking(ctx, models.Transition{
		BookingID:   b.BookingID,
		FromVersion: b.Version,
		To:          models.StatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
	assert.Equal(t, models.PaymentUnpaid, updated.PaymentStatus)
	assert.Equal(t, int64(2), updated.Version)
	assert.False(t, updated.UpdatedAt.Before(b.UpdatedAt))

	booked, err = db.BookedTimes(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, booked)

	// the cancelled row stays, and the slot can be claimed again
	require.NoError(t, db.ClaimSlot(ctx, newBooking("CN-T2", "2025-06-01", "14:00")))
	_, err = db.GetBooking(ctx, "CN-T1")
	assert.NoError(t, err)
}

func TestTransitionBooking_StaleVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("CN-V1", "2025-06-01", "10:00")
	require.NoError(t, db.ClaimSlot(ctx, b))

	_, err := db.TransitionBooking(ctx, models.Transition{BookingID: b.BookingID, FromVersion: 1, To: models.StatusPaymentFailed})
	require.NoError(t, err)

	_, err = db.TransitionBooking(ctx, models.Transition{BookingID: b.BookingID, FromVersion: 1, To: models.StatusCancelled})
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

	_, err = db.TransitionBooking(ctx, models.Transition{BookingID: "CN-MISSING", FromVersion: 1, To: models.StatusCancelled})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestTransitionBooking_WithPaymentIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("CN-P1", "2025-06-01", "11:00")
	require.NoError(t, db.ClaimSlot(ctx, b))
	require.NoError(t, db.UpsertPaymentRecord(ctx, &models.PaymentRecord{
		Reference: "pi_1", BookingID: b.BookingID, Amount: b.AmountDue, Currency: "usd",
	}))

	// payment guard misses: booking must not change either
	_, err := db.TransitionBooking(ctx, models.Transition{
		BookingID:     b.BookingID,
		FromVersion:   1,
		To:            models.StatusConfirmed,
		PaymentStatus: models.PaymentPaid,
		Payment:       &models.PaymentChange{Reference: "pi_1", From: models.PaymentRecordFailed, To: models.PaymentRecordSucceeded},
	})
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

	got, err := db.GetBooking(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)

	got, err = db.TransitionBooking(ctx, models.Transition{
		BookingID:     b.BookingID,
		FromVersion:   1,
		To:            models.StatusConfirmed,
		PaymentStatus: models.PaymentPaid,
		Payment:       &models.PaymentChange{Reference: "pi_1", From: models.PaymentRecordPending, To: models.PaymentRecordSucceeded},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	rec, err := db.GetPaymentRecord(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRecordSucceeded, rec.Status)
}

func TestListBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i, slot := range []string{"09:00", "09:30", "10:00"} {
		b := newBooking("CN-L"+slot, "2025-06-01", slot)
		require.NoError(t, db.ClaimSlot(ctx, b))
		if i == 0 {
			_, err := db.TransitionBooking(ctx, models.Transition{BookingID: b.BookingID, FromVersion: 1, To: models.StatusCancelled})
			require.NoError(t, err)
		}
	}
	require.NoError(t, db.ClaimSlot(ctx, newBooking("CN-OTHER", "2025-06-05", "09:00")))

	all, total, err := db.ListBookings(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)

	pending, total, err := db.ListBookings(ctx, models.BookingFilter{Date: "2025-06-01", Status: models.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, pending, 2)

	page, total, err := db.ListBookings(ctx, models.BookingFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, page, 1)

	ranged, _, err := db.ListBookings(ctx, models.BookingFilter{DateFrom: "2025-06-02", DateTo: "2025-06-30"})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "CN-OTHER", ranged[0].BookingID)
}
