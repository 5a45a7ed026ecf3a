package export

import (
	"bytes"
	"testing"
	"time"

	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func booking(id string, status models.BookingStatus, paid models.PaymentStatus, fee string) *models.Booking {
	ref := "pi_" + id
	return &models.Booking{
		BookingID:        id,
		CustomerName:     "Jane Doe",
		CustomerEmail:    "jane@example.com",
		ServiceType:      models.ServiceApostille,
		AppointmentDate:  "2026-11-02",
		AppointmentTime:  "09:30",
		MeetingAddress:   "1 Main St",
		Status:           status,
		PaymentStatus:    paid,
		AmountDue:        decimal.RequireFromString(fee),
		PaymentReference: &ref,
		CreatedAt:        time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBookingsWorkbook(t *testing.T) {
	bookings := []*models.Booking{
		booking("CN-1", models.StatusConfirmed, models.PaymentPaid, "50"),
		booking("CN-2", models.StatusPending, models.PaymentUnpaid, "25"),
		booking("CN-3", models.StatusCompleted, models.PaymentPaid, "35.50"),
	}

	var buf bytes.Buffer
	require.NoError(t, BookingsWorkbook(&buf, bookings, Period{From: "2026-11-01", To: "2026-11-30"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Bookings: 2026-11-01 - 2026-11-30", rows[0][0])
	assert.Equal(t, "Booking ID", rows[1][0])
	assert.Equal(t, "CN-1", rows[2][0])
	assert.Equal(t, "confirmed", rows[2][8])
	assert.Equal(t, "pi_CN-3", rows[4][11])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"confirmed", "1"}, summary[2])
	assert.Equal(t, []string{"total", "3"}, summary[6])
	assert.Equal(t, []string{"collected", "85.5"}, summary[7])
}

func TestBookingsWorkbookEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, BookingsWorkbook(&buf, nil, Period{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(bookingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Bookings: all dates", rows[0][0])
}

func TestPeriodString(t *testing.T) {
	assert.Equal(t, "from 2026-01-01", Period{From: "2026-01-01"}.String())
	assert.Equal(t, "until 2026-01-31", Period{To: "2026-01-31"}.String())
}
