// Package addresses keeps a user's saved shipping addresses.
package addresses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Address is a saved shipping address. A user has at most one default.
type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone"`
	Line1      string    `json:"line1" validate:"required,min=8"`
	Line2      string    `json:"line2"`
	City       string    `json:"city"`
	State      string    `json:"state" validate:"required"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store reads and writes the addresses table.
type Store struct {
	db DB
}

// NewStore returns a Store backed by db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const columns = "id::text, user_id, full_name, phone, line1, line2, city, state, postal_code, country, is_default, created_at"

// UpsertDefault saves a as the user's only default address. An existing row with the same
// line1, city, state and postal code is reused.
func (s *Store) UpsertDefault(ctx context.Context, a Address) (*Address, error) {
	if a.UserID == "" {
		return nil, errors.New("address requires a user id")
	}
	a.Line1 = strings.TrimSpace(a.Line1)
	if a.Country == "" {
		a.Country = "Nigeria"
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin address tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE addresses SET is_default = FALSE WHERE user_id = $1 AND is_default`, a.UserID); err != nil {
		return nil, fmt.Errorf("clear default address: %w", err)
	}

	var existingID string
	err = tx.QueryRow(ctx, `SELECT id::text FROM addresses
		WHERE user_id = $1 AND line1 = $2 AND city = $3 AND state = $4 AND postal_code = $5
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`,
		a.UserID, a.Line1, a.City, a.State, a.PostalCode).Scan(&existingID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find existing address: %w", err)
	}

	var row pgx.Row
	if existingID != "" {
		row = tx.QueryRow(ctx, `UPDATE addresses
			SET full_name = $2, phone = $3, line2 = $4, country = $5, is_default = TRUE
			WHERE id = $1::uuid RETURNING `+columns,
			existingID, a.FullName, a.Phone, a.Line2, a.Country)
	} else {
		row = tx.QueryRow(ctx, `INSERT INTO addresses
			(user_id, full_name, phone, line1, line2, city, state, postal_code, country, is_default)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE) RETURNING `+columns,
			a.UserID, a.FullName, a.Phone, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country)
	}
	saved, err := scanAddress(row)
	if err != nil {
		return nil, fmt.Errorf("save default address: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit address tx: %w", err)
	}
	return saved, nil
}

// ListForUser returns the user's addresses, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Address, error) {
	rows, err := s.db.Query(ctx, `SELECT `+columns+` FROM addresses WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	list := []*Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func scanAddress(row pgx.Row) (*Address, error) {
	var a Address
	if err := row.Scan(&a.ID, &a.UserID, &a.FullName, &a.Phone, &a.Line1, &a.Line2, &a.City, &a.State,
		&a.PostalCode, &a.Country, &a.IsDefault, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
