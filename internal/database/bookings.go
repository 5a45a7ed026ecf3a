package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"
)

const bookingColumns = `booking_id, customer_name, customer_email, customer_phone, service_type,
	appointment_date, appointment_time, meeting_address, notes, status, payment_status,
	service_fee, payment_intent_id, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.BookingID, &b.CustomerName, &b.CustomerEmail, &b.CustomerPhone, &b.ServiceType,
		&b.AppointmentDate, &b.AppointmentTime, &b.MeetingAddress, &b.Notes, &b.Status, &b.PaymentStatus,
		&b.AmountDue, &b.PaymentReference, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ClaimSlot inserts a pending booking. The partial unique index
// idx_bookings_active_slot rejects a second active booking for the same
// (date, time) inside the same statement, so no read precedes the write.
func (db *DB) ClaimSlot(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	booking.Status = models.StatusPending
	booking.PaymentStatus = models.PaymentUnpaid
	booking.PaymentReference = nil
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now

	query := `INSERT INTO bookings (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		booking.BookingID,
		booking.CustomerName,
		booking.CustomerEmail,
		booking.CustomerPhone,
		booking.ServiceType,
		booking.AppointmentDate,
		booking.AppointmentTime,
		booking.MeetingAddress,
		booking.Notes,
		booking.Status,
		booking.PaymentStatus,
		booking.AmountDue,
		booking.PaymentReference,
		booking.CreatedAt,
		booking.UpdatedAt,
		booking.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("claim %s %s: %w", booking.AppointmentDate, booking.AppointmentTime, domain.ErrSlotTaken)
		}
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("booking id %s: %w", booking.BookingID, domain.ErrDuplicateID)
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func bookingWhere(filter models.BookingFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Date != "" {
		conds = append(conds, "appointment_date = ?")
		args = append(args, filter.Date)
	}
	if filter.DateFrom != "" {
		conds = append(conds, "appointment_date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conds = append(conds, "appointment_date <= ?")
		args = append(args, filter.DateTo)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListBookings returns one page of matching bookings, newest first, and the total match count.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	where, args := bookingWhere(filter)

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings` + where +
		` ORDER BY created_at DESC, booking_id LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, total, rows.Err()
}

// BookedTimes lists the occupied slots of a date.
func (db *DB) BookedTimes(ctx context.Context, date string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT appointment_time FROM bookings
         WHERE appointment_date = ? AND status IN (?, ?)
         ORDER BY appointment_time`,
		date, models.StatusPending, models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked times: %w", err)
	}
	defer rows.Close()

	times := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan booked time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// TransitionBooking applies a version-guarded status change and, when
// requested, a status-guarded payment record change in one transaction.
func (db *DB) TransitionBooking(ctx context.Context, tr models.Transition) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings
         SET status = ?, payment_status = COALESCE(NULLIF(?, ''), payment_status),
             version = version + 1, updated_at = ?
         WHERE booking_id = ? AND version = ?`,
		tr.To, tr.PaymentStatus, now, tr.BookingID, tr.FromVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("booking %s: %w", tr.BookingID, domain.ErrSlotTaken)
		}
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE booking_id = ?`, tr.BookingID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking %s: %w", tr.BookingID, domain.ErrNotFound)
		}
		return nil, domain.ErrConcurrentModification
	}

	if p := tr.Payment; p != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE payments
             SET status = ?, refund_id = COALESCE(NULLIF(?, ''), refund_id), updated_at = ?
             WHERE payment_intent_id = ? AND status = ?`,
			p.To, p.RefundID, now, p.Reference, p.From)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("booking %s already has a succeeded payment: %w", tr.BookingID, domain.ErrInvalidTransition)
			}
			return nil, fmt.Errorf("failed to update payment status: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return nil, domain.ErrConcurrentModification
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	return db.GetBooking(ctx, tr.BookingID)
}
