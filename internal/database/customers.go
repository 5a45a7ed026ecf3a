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

// UpsertCustomer stores the customer keyed by email; the latest write wins.
func (db *DB) UpsertCustomer(ctx context.Context, customer *models.Customer) error {
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	if customer.Email == "" {
		return domain.Invalid("email", "is required")
	}

	now := time.Now().UTC()
	customer.UpdatedAt = now
	_, err := db.ExecContext(ctx,
		`INSERT INTO customers (email, name, phone, address, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(email) DO UPDATE SET
             name = excluded.name,
             phone = excluded.phone,
             address = excluded.address,
             updated_at = excluded.updated_at`,
		customer.Email, customer.Name, customer.Phone, customer.Address, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (db *DB) GetCustomer(ctx context.Context, email string) (*models.Customer, error) {
	var c models.Customer
	err := db.QueryRowContext(ctx,
		`SELECT email, name, phone, address, created_at, updated_at FROM customers WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))).
		Scan(&c.Email, &c.Name, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %s: %w", email, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}
