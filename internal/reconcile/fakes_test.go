package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/imrishuroy/go-storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
)

type fakeGateway struct {
	status string
	amount int64
	err    error
	calls  atomic.Int32
	check  func(ctx context.Context)
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*paystack.Verification, error) {
	g.calls.Add(1)
	if g.check != nil {
		g.check(ctx)
	}
	if g.err != nil {
		return nil, g.err
	}
	tx := paystack.Transaction{Status: g.status, Reference: reference, Amount: g.amount, Currency: "NGN"}
	raw, _ := json.Marshal(tx)
	return &paystack.Verification{Status: true, Message: "Verification successful", Transaction: tx, Raw: raw}, nil
}

type fakeGuard struct {
	mu          sync.Mutex
	records     map[string]*idempotency.Record
	claims      int
	// expireOnGet drops the record on the next Get, as a TTL sweep landing between calls would
	expireOnGet bool
}

func newFakeGuard() *fakeGuard { return &fakeGuard{records: map[string]*idempotency.Record{}} }

func (g *fakeGuard) Claim(ctx context.Context, reference, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.claims++
	if _, ok := g.records[reference]; ok {
		return false, nil
	}
	g.records[reference] = &idempotency.Record{Reference: reference, UserID: userID, Status: idempotency.StatusInProgress}
	return true, nil
}

func (g *fakeGuard) Reclaim(ctx context.Context, reference string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[reference]
	if !ok || rec.Status != idempotency.StatusFailed {
		return false, nil
	}
	rec.Status = idempotency.StatusInProgress
	return true, nil
}

func (g *fakeGuard) Get(ctx context.Context, reference string) (*idempotency.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expireOnGet {
		g.expireOnGet = false
		delete(g.records, reference)
	}
	rec, ok := g.records[reference]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (g *fakeGuard) MarkDone(ctx context.Context, reference, orderID, body string, status int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec := g.records[reference]
	rec.Status, rec.OrderID, rec.ResponseBody, rec.ResponseStatus = idempotency.StatusDone, orderID, body, status
	return nil
}

func (g *fakeGuard) MarkFailed(ctx context.Context, reference, note string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec := g.records[reference]
	rec.Status, rec.Note = idempotency.StatusFailed, note
	return nil
}

func (g *fakeGuard) status(reference string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rec, ok := g.records[reference]; ok {
		return rec.Status
	}
	return ""
}

// fakeOrders mimics the Postgres store: a unique reference constraint and an optional
// schema without shipping columns.
type fakeOrders struct {
	mu            sync.Mutex
	caps          orders.Capabilities
	noShipping    bool
	failAll       error
	rows          []*orders.Order
	degradeCalls  int
	richAttempts  int
	degradedCount int
}

func newFakeOrders() *fakeOrders { return &fakeOrders{caps: orders.FullCapabilities} }

func (f *fakeOrders) Capabilities(ctx context.Context) (orders.Capabilities, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps, nil
}

func (f *fakeOrders) Degrade() orders.Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degradeCalls++
	f.caps.Shipping = false
	return f.caps
}

func (f *fakeOrders) Insert(ctx context.Context, rec orders.Record) (*orders.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, false, f.failAll
	}

	var d orders.Draft
	var products []byte
	switch r := rec.(type) {
	case orders.RichRecord:
		f.richAttempts++
		if f.noShipping {
			return nil, false, fmt.Errorf("insert rich order: %w", &pgconn.PgError{Code: "42703", Message: `column "shipping" does not exist`})
		}
		d = r.Draft
		products, _ = json.Marshal(d.Items)
	case orders.DegradedRecord:
		f.degradedCount++
		d = r.Draft
		products, _ = json.Marshal(map[string]any{"items": d.Items, "shipping": d.Shipping})
	default:
		return nil, false, errors.New("unknown record")
	}

	for _, o := range f.rows {
		if o.Reference == d.Reference {
			return o, false, nil
		}
	}
	o := &orders.Order{
		ID:          fmt.Sprintf("order-%d", len(f.rows)+1),
		UserID:      d.UserID,
		Reference:   d.Reference,
		Status:      d.Status,
		TotalAmount: d.TotalAmount,
		Products:    string(products),
	}
	f.rows = append(f.rows, o)
	return o, true, nil
}

func (f *fakeOrders) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []any
}

func (p *fakePublisher) Publish(ctx context.Context, payload any, attributes map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, payload)
	return nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (m *fakeMetrics) Count(ctx context.Context, name string, value float64, dims map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]float64{}
	}
	key := name
	if s, ok := dims["Status"]; ok {
		key += ":" + s
	}
	m.counts[key] += value
	return nil
}

func (m *fakeMetrics) get(key string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}
