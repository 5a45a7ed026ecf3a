package export

import (
	"fmt"
	"io"

	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var headers = []interface{}{
	"Booking ID", "Date", "Time", "Service", "Customer", "Email", "Phone",
	"Address", "Status", "Payment", "Fee", "Payment Intent", "Created At",
}

// Period is the inclusive date range printed in the workbook title.
type Period struct {
	From string
	To   string
}

func (p Period) String() string {
	switch {
	case p.From == "" && p.To == "":
		return "all dates"
	case p.To == "":
		return "from " + p.From
	case p.From == "":
		return "until " + p.To
	}
	return p.From + " - " + p.To
}

// BookingsWorkbook writes an .xlsx with one row per booking and a per-status summary.
func BookingsWorkbook(w io.Writer, bookings []*models.Booking, period Period) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return err
	}

	_ = f.SetCellValue(bookingsSheet, "A1", "Bookings: "+period.String())
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", titleStyle)

	if err := f.SetSheetRow(bookingsSheet, "A2", &headers); err != nil {
		return err
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(bookingsSheet, "A2", lastCol+"2", headerStyle)
	_ = f.SetColWidth(bookingsSheet, "A", lastCol, 18)

	for i, b := range bookings {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		row := bookingRow(b)
		if err := f.SetSheetRow(bookingsSheet, cell, &row); err != nil {
			return fmt.Errorf("write booking %s: %w", b.BookingID, err)
		}
	}

	if err := writeSummary(f, bookings); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}

func bookingRow(b *models.Booking) []interface{} {
	ref := ""
	if b.PaymentReference != nil {
		ref = *b.PaymentReference
	}
	fee, _ := b.AmountDue.Round(2).Float64()
	return []interface{}{
		b.BookingID,
		b.AppointmentDate,
		b.AppointmentTime,
		string(b.ServiceType),
		b.CustomerName,
		b.CustomerEmail,
		b.CustomerPhone,
		b.MeetingAddress,
		string(b.Status),
		string(b.PaymentStatus),
		fee,
		ref,
		b.CreatedAt.UTC().Format("2006-01-02 15:04"),
	}
}

// writeSummary counts bookings per status and totals fees collected.
func writeSummary(f *excelize.File, bookings []*models.Booking) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	counts := make(map[models.BookingStatus]int)
	collected := decimal.Zero
	for _, b := range bookings {
		counts[b.Status]++
		if b.PaymentStatus == models.PaymentPaid {
			collected = collected.Add(b.AmountDue)
		}
	}

	rows := [][]interface{}{{"Status", "Bookings"}}
	for _, st := range []models.BookingStatus{
		models.StatusPending, models.StatusConfirmed, models.StatusCompleted,
		models.StatusCancelled, models.StatusPaymentFailed,
	} {
		rows = append(rows, []interface{}{string(st), counts[st]})
	}
	rows = append(rows, []interface{}{"total", len(bookings)})
	total, _ := collected.Round(2).Float64()
	rows = append(rows, []interface{}{"collected", total})

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}
