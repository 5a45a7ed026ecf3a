package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, bookingRequest(models.ServiceGeneralNotary, "2025-06-01", "09:00"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(b.BookingID, "CN-"))
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, models.PaymentUnpaid, b.PaymentStatus)
	assert.True(t, decimal.RequireFromString("25.00").Equal(b.AmountDue))

	_, err = f.bookings.CreateBooking(ctx, bookingRequest(models.ServiceApostille, "2025-06-01", "09:00"))
	assert.True(t, errors.Is(err, domain.ErrSlotTaken))

	// customer email plus admin SMS alert
	assert.Len(t, f.logs(t, b.BookingID, models.KindBookingCreated, models.ChannelEmail), 1)
	sms := f.logs(t, b.BookingID, models.KindBookingCreated, models.ChannelSMS)
	require.Len(t, sms, 1)
	assert.Equal(t, "+13125550199", sms[0].Recipient)
}

func TestCreateBooking_RetriesOnIDCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := []string{"CN-SAME-AAAAA", "CN-SAME-AAAAA", "CN-SAME-BBBBB"}
	f.bookings.newID = func(time.Time) string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := f.bookings.CreateBooking(ctx, bookingRequest(models.ServiceGeneralNotary, "2025-06-01", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, "CN-SAME-AAAAA", first.BookingID)

	second, err := f.bookings.CreateBooking(ctx, bookingRequest(models.ServiceApostille, "2025-06-01", "10:00"))
	require.NoError(t, err)
	assert.Equal(t, "CN-SAME-BBBBB", second.BookingID)
	assert.Empty(t, ids)

	got, err := f.bookings.GetBooking(ctx, "CN-SAME-AAAAA")
	require.NoError(t, err)
	assert.Equal(t, models.ServiceGeneralNotary, got.ServiceType)
}

func TestCreateBooking_Validation(t *testing.T) {
	f := newFixture(t)

	req := bookingRequest("Wedding", "2025-13-01", "09:15")
	req.CustomerEmail = "not-an-email"
	req.CustomerName = "   "

	_, err := f.bookings.CreateBooking(context.Background(), req)
	require.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)

	var verrs domain.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	for _, field := range []string{"customer_name", "customer_email", "service_type", "appointment_date", "appointment_time"} {
		assert.Contains(t, verrs, field)
	}

	all, total, err := f.bookings.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, all)
}

func TestCreateBooking_FeeIsSnapshotted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, bookingRequest(models.ServicePowerOfAttorney, "2025-06-01", "10:00"))
	require.NoError(t, err)

	f.bookings.Fees()[models.ServicePowerOfAttorney] = decimal.RequireFromString("99.00")

	stored, err := f.bookings.GetBooking(ctx, b.BookingID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35.00").Equal(stored.AmountDue))
}

func TestCreateBooking_ConcurrentClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := bookingRequest(models.ServiceRON, "2025-06-01", "11:30")
			req.CustomerEmail = fmt.Sprintf("c%d@example.com", i)
			_, err := f.bookings.CreateBooking(ctx, req)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	ok, taken := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrSlotTaken):
			taken++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, taken)

	_, total, err := f.bookings.ListBookings(ctx, models.BookingFilter{Date: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	avail, err := f.bookings.Availability(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Len(t, avail.AvailableTimes, models.SlotsPerDay)
	assert.Empty(t, avail.BookedTimes)

	_, err = f.bookings.Availability(ctx, "June 1st")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCancelConfirmedBookingFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, ref := f.book(t, models.ServiceGeneralNotary, "2025-06-01", "14:00")
	_, err := f.payments.Reconcile(ctx, ref, models.OutcomeSucceeded, decimal.RequireFromString("25.00"))
	require.NoError(t, err)

	avail, err := f.bookings.Availability(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Contains(t, avail.BookedTimes, "14:00")
	assert.NotContains(t, avail.AvailableTimes, "14:00")

	res, err := f.bookings.SetStatus(ctx, b.BookingID, models.StatusCancelled, "admin")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusCancelled, res.Booking.Status)

	avail, err = f.bookings.Availability(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Contains(t, avail.AvailableTimes, "14:00")
	assert.NotContains(t, avail.BookedTimes, "14:00")

	assert.Len(t, f.logs(t, b.BookingID, models.KindBookingCancelled, models.ChannelEmail), 1)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bookings.CreateBooking(ctx, bookingRequest(models.ServiceMobileNotary, "2025-06-02", "08:00"))
	require.NoError(t, err)

	t.Run("ConfirmIsPaymentDriven", func(t *testing.T) {
		_, err := f.bookings.SetStatus(ctx, b.BookingID, models.StatusConfirmed, "admin")
		assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		_, err := f.bookings.SetStatus(ctx, b.BookingID, models.BookingStatus("archived"), "admin")
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("CompletePending", func(t *testing.T) {
		_, err := f.bookings.SetStatus(ctx, b.BookingID, models.StatusCompleted, "admin")
		assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := f.bookings.SetStatus(ctx, "CN-MISSING", models.StatusCancelled, "admin")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		_, err = f.bookings.SetStatus(ctx, "CN-MISSING", models.StatusConfirmed, "admin")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("CancelTwice", func(t *testing.T) {
		res, err := f.bookings.SetStatus(ctx, b.BookingID, models.StatusCancelled, "admin")
		require.NoError(t, err)
		assert.True(t, res.Changed)

		res, err = f.bookings.SetStatus(ctx, b.BookingID, models.StatusCancelled, "admin")
		require.NoError(t, err)
		assert.False(t, res.Changed)

		assert.Len(t, f.logs(t, b.BookingID, models.KindBookingCancelled, models.ChannelEmail), 1)
	})

	t.Run("CancelledIsNeverReopened", func(t *testing.T) {
		_, err := f.bookings.SetStatus(ctx, b.BookingID, models.StatusCompleted, "admin")
		assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	})
}

func TestListBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, slot := range []string{"09:00", "09:30", "10:00"} {
		_, err := f.bookings.CreateBooking(ctx, bookingRequest(models.ServiceGeneralNotary, "2025-06-03", slot))
		require.NoError(t, err)
	}

	page, total, err := f.bookings.ListBookings(ctx, models.BookingFilter{Date: "2025-06-03", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	_, _, err = f.bookings.ListBookings(ctx, models.BookingFilter{Status: "archived"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, _, err = f.bookings.ListBookings(ctx, models.BookingFilter{Offset: -1})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
