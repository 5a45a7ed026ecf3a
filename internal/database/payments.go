package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"
)

const paymentColumns = `payment_intent_id, booking_id, amount, currency, status, customer_email, refund_id, created_at, updated_at`

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	if err := row.Scan(&p.Reference, &p.BookingID, &p.Amount, &p.Currency, &p.Status,
		&p.CustomerEmail, &p.RefundID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPaymentRecord stores a pending payment attempt and makes it the
// booking's current payment reference. Settled records are left untouched.
func (db *DB) UpsertPaymentRecord(ctx context.Context, record *models.PaymentRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE booking_id = ?`, record.BookingID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("booking %s: %w", record.BookingID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check booking: %w", err)
	}

	now := time.Now().UTC()
	if record.Status == "" {
		record.Status = models.PaymentRecordPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(payment_intent_id) DO UPDATE SET
             amount = excluded.amount,
             currency = excluded.currency,
             customer_email = excluded.customer_email,
             updated_at = excluded.updated_at
         WHERE payments.status = 'pending' AND payments.booking_id = excluded.booking_id`,
		record.Reference, record.BookingID, record.Amount, record.Currency, record.Status,
		record.CustomerEmail, record.RefundID, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bookings SET payment_intent_id = ?, updated_at = ? WHERE booking_id = ?`,
		record.Reference, now, record.BookingID)
	if err != nil {
		return fmt.Errorf("failed to link payment to booking: %w", err)
	}

	return tx.Commit()
}

func (db *DB) GetPaymentRecord(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	p, err := scanPayment(db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_intent_id = ?`, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", reference, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (db *DB) ListPaymentRecords(ctx context.Context, bookingID string) ([]*models.PaymentRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ? ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	records := make([]*models.PaymentRecord, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		records = append(records, p)
	}
	return records, rows.Err()
}
