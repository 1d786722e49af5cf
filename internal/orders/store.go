// Package orders persists checkout outcomes in Postgres, adapting to the columns the
// orders table actually has.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrStatusMismatch is returned by UpdateStatus when the row is not in the expected status.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

const (
	codeUniqueViolation = "23505"
	codeUndefinedColumn = "42703"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Capabilities records which optional column groups the orders table has.
type Capabilities struct {
	Reference bool
	UpdatedAt bool
	Shipping  bool
}

// FullCapabilities is what the bundled migrations create.
var FullCapabilities = Capabilities{Reference: true, UpdatedAt: true, Shipping: true}

var shippingColumns = []string{
	"shipping", "shipping_address", "shipping_city", "shipping_state", "shipping_postal_code", "shipping_fee",
}

// Store reads and writes orders. The capability probe runs once per process unless Degrade
// overrides it.
type Store struct {
	db DB

	mu   sync.Mutex
	caps *Capabilities
}

// NewStore creates a new orders Store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Capabilities probes information_schema on first use and caches the answer.
func (s *Store) Capabilities(ctx context.Context) (Capabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps != nil {
		return *s.caps, nil
	}

	rows, err := s.db.Query(ctx, `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'orders'`)
	if err != nil {
		return FullCapabilities, fmt.Errorf("probe orders columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return FullCapabilities, fmt.Errorf("probe orders columns: %w", err)
	}
	if len(cols) == 0 {
		return FullCapabilities, errors.New("probe orders columns: table not found")
	}

	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	caps := Capabilities{Reference: have["reference"], UpdatedAt: have["updated_at"], Shipping: true}
	for _, c := range shippingColumns {
		if !have[c] {
			caps.Shipping = false
			break
		}
	}
	s.caps = &caps
	return caps, nil
}

// Degrade marks the shipping columns as unavailable for the rest of the process.
func (s *Store) Degrade() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	caps := FullCapabilities
	if s.caps != nil {
		caps = *s.caps
	}
	caps.Shipping = false
	s.caps = &caps
	return caps
}

func (s *Store) current() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.caps == nil {
		return FullCapabilities
	}
	return *s.caps
}

// Insert writes rec. When the reference already has a row, that row is returned with
// created=false.
func (s *Store) Insert(ctx context.Context, rec Record) (*Order, bool, error) {
	caps := s.current()
	d := rec.draft()
	products, err := rec.products()
	if err != nil {
		return nil, false, err
	}

	cols := []string{"user_id", "status", "total_amount", "products"}
	vals := []string{"$1", "$2", "$3::text::numeric", "$4"}
	args := []any{d.UserID, string(d.Status), d.TotalAmount.String(), products}
	add := func(col, cast string, v any) {
		args = append(args, v)
		cols = append(cols, col)
		vals = append(vals, fmt.Sprintf("$%d%s", len(args), cast))
	}

	if caps.Reference && d.Reference != "" {
		add("reference", "", d.Reference)
	}
	rich := false
	if _, ok := rec.(RichRecord); ok {
		rich = true
		caps.Shipping = true
		shipping, err := json.Marshal(d.Shipping)
		if err != nil {
			return nil, false, fmt.Errorf("marshal shipping: %w", err)
		}
		add("shipping", "::text::jsonb", string(shipping))
		add("shipping_address", "::text", nullable(d.Shipping.Address))
		add("shipping_city", "::text", nullable(d.Shipping.City))
		add("shipping_state", "::text", nullable(d.Shipping.State))
		add("shipping_postal_code", "::text", nullable(d.Shipping.PostalCode))
		var fee *string
		if !d.Shipping.ShippingFee.IsZero() {
			f := d.Shipping.ShippingFee.String()
			fee = &f
		}
		add("shipping_fee", "::text::numeric", fee)
	} else {
		caps.Shipping = false
	}

	query := fmt.Sprintf("INSERT INTO orders (%s) VALUES (%s) RETURNING %s",
		strings.Join(cols, ", "), strings.Join(vals, ", "), selectColumns(caps))

	o, err := scanOrder(s.db.QueryRow(ctx, query, args...), caps)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && d.Reference != "" {
			existing, findErr := s.FindByReference(ctx, d.Reference)
			if findErr != nil {
				return nil, false, fmt.Errorf("load existing order for reference: %w", findErr)
			}
			return existing, false, nil
		}
		kind := "degraded"
		if rich {
			kind = "rich"
		}
		return nil, false, fmt.Errorf("insert %s order: %w", kind, err)
	}
	return o, true, nil
}

// IsUndefinedColumn reports whether err is Postgres rejecting an unknown column.
func IsUndefinedColumn(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedColumn
}

// FindByID returns the order with the given id.
func (s *Store) FindByID(ctx context.Context, id string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	caps := s.current()
	query := fmt.Sprintf("SELECT %s FROM orders WHERE id = $1::uuid", selectColumns(caps))
	return s.findOne(ctx, caps, query, id)
}

// FindByReference returns the order created for a payment reference.
func (s *Store) FindByReference(ctx context.Context, reference string) (*Order, error) {
	caps := s.current()
	if !caps.Reference {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf("SELECT %s FROM orders WHERE reference = $1", selectColumns(caps))
	return s.findOne(ctx, caps, query, reference)
}

func (s *Store) findOne(ctx context.Context, caps Capabilities, query string, arg any) (*Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, query, arg), caps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

// ListForUser returns the user's most recent orders first.
func (s *Store) ListForUser(ctx context.Context, userID string, limit int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	caps := s.current()
	query := fmt.Sprintf("SELECT %s FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2", selectColumns(caps))
	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders by user: %w", err)
	}
	defer rows.Close()

	list := []*Order{}
	for rows.Next() {
		o, err := scanOrder(rows, caps)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return list, nil
}

// UpdateStatus conditionally updates the order status from expected -> next.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, id string, expected, next Status) error {
	set := "status = $1"
	if s.current().UpdatedAt {
		set += ", updated_at = NOW()"
	}
	tag, err := s.db.Exec(ctx, "UPDATE orders SET "+set+" WHERE id = $2::uuid AND status = $3",
		string(next), id, string(expected))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusMismatch
	}
	return nil
}

func selectColumns(caps Capabilities) string {
	cols := []string{"id::text", "user_id", "status", "total_amount::text", "COALESCE(products, '')", "created_at"}
	if caps.Reference {
		cols = append(cols, "COALESCE(reference, '')")
	}
	if caps.UpdatedAt {
		cols = append(cols, "updated_at")
	}
	if caps.Shipping {
		cols = append(cols, "shipping::text", "shipping_address", "shipping_city", "shipping_state",
			"shipping_postal_code", "shipping_fee::text")
	}
	return strings.Join(cols, ", ")
}

func scanOrder(row pgx.Row, caps Capabilities) (*Order, error) {
	var (
		o        Order
		status   string
		total    string
		shipping *string
		fee      *string
	)
	dest := []any{&o.ID, &o.UserID, &status, &total, &o.Products, &o.CreatedAt}
	if caps.Reference {
		dest = append(dest, &o.Reference)
	}
	if caps.UpdatedAt {
		dest = append(dest, &o.UpdatedAt)
	}
	if caps.Shipping {
		dest = append(dest, &shipping, &o.ShippingAddress, &o.ShippingCity, &o.ShippingState,
			&o.ShippingPostalCode, &fee)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	o.Status = Status(status)
	o.TotalAmount = parseDecimal(total)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	if !caps.UpdatedAt {
		o.UpdatedAt = o.CreatedAt
	}
	if shipping != nil {
		o.Shipping = json.RawMessage(*shipping)
	}
	if fee != nil {
		f := parseDecimal(*fee)
		o.ShippingFee = &f
	}
	return &o, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
