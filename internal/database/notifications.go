package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cubenotary/internal/models"
)

func (db *DB) AppendNotification(ctx context.Context, entry *models.NotificationLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO notification_logs (booking_id, channel, kind, recipient, subject, body, status, error_message, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.BookingID, entry.Channel, entry.Kind, entry.Recipient, entry.Subject, entry.Body,
		entry.Status, entry.ErrorMessage, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append notification log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

func (db *DB) ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]*models.NotificationLogEntry, error) {
	var conds []string
	var args []any
	if filter.BookingID != "" {
		conds = append(conds, "booking_id = ?")
		args = append(args, filter.BookingID)
	}
	if filter.Channel != "" {
		conds = append(conds, "channel = ?")
		args = append(args, filter.Channel)
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT id, booking_id, channel, kind, recipient, subject, body, status, error_message, created_at
              FROM notification_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.NotificationLogEntry, 0)
	for rows.Next() {
		var e models.NotificationLogEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Channel, &e.Kind, &e.Recipient, &e.Subject,
			&e.Body, &e.Status, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// HasNotification reports whether a message of kind was successfully sent over channel.
func (db *DB) HasNotification(ctx context.Context, bookingID string, kind models.NotificationKind, channel models.Channel) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM notification_logs WHERE booking_id = ? AND kind = ? AND channel = ? AND status = ?)`,
		bookingID, kind, channel, models.NotificationSent).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check notification log: %w", err)
	}
	return exists, nil
}
