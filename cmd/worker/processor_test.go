package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-storefront-checkout/internal/logging"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
	"github.com/imrishuroy/go-storefront-checkout/internal/reconcile"
)

// --- mock implementations ---

type mockGateway struct {
	status string
	err    error
	calls  int
}

func (m *mockGateway) Verify(_ context.Context, ref string) (*paystack.Verification, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &paystack.Verification{
		Status:      true,
		Transaction: paystack.Transaction{Reference: ref, Status: m.status},
		Raw:         json.RawMessage(`{"status":"` + m.status + `"}`),
	}, nil
}

type mockOrders struct {
	orders map[string]*orders.Order
	// raceTo simulates another delivery moving the order just before our update.
	raceTo orders.Status
}

func (m *mockOrders) Capabilities(context.Context) (orders.Capabilities, error) {
	return orders.FullCapabilities, nil
}

func (m *mockOrders) FindByID(_ context.Context, id string) (*orders.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrders) UpdateStatus(_ context.Context, id string, expected, next orders.Status) error {
	o := m.orders[id]
	if m.raceTo != "" {
		o.Status = m.raceTo
	}
	if o.Status != expected {
		return orders.ErrStatusMismatch
	}
	o.Status = next
	return nil
}

type mockGuard struct {
	bodies map[string]string
}

func (m *mockGuard) MarkDone(_ context.Context, ref, _, body string, _ int) error {
	m.bodies[ref] = body
	return nil
}

type mockMetrics struct{ names []string }

func (m *mockMetrics) Count(_ context.Context, name string, _ float64, _ map[string]string) error {
	m.names = append(m.names, name)
	return nil
}

func setup(status orders.Status, gatewayStatus string) (*Processor, *mockOrders, *mockGateway, *mockGuard, *mockMetrics) {
	store := &mockOrders{orders: map[string]*orders.Order{
		"o1": {ID: "o1", UserID: "u1", Reference: "KC-1", Status: status},
	}}
	gw := &mockGateway{status: gatewayStatus}
	guard := &mockGuard{bodies: map[string]string{}}
	metrics := &mockMetrics{}
	return NewProcessor(gw, store, guard, metrics, logging.Discard()), store, gw, guard, metrics
}

func event(t *testing.T, msg reconcile.FollowUp) events.SQSEvent {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.SQSEvent{Records: []events.SQSMessage{{MessageId: "m1", Body: string(b)}}}
}

var followUp = reconcile.FollowUp{OrderID: "o1", Reference: "KC-1", UserID: "u1"}

// --- test cases ---

func TestWorkerProcess_SettlesPaid(t *testing.T) {
	p, store, _, guard, metrics := setup(orders.StatusPending, paystack.TransactionSuccess)

	if err := p.Handle(context.Background(), event(t, followUp)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := store.orders["o1"].Status; got != orders.StatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}

	var replay reconcile.Result
	if err := json.Unmarshal([]byte(guard.bodies["KC-1"]), &replay); err != nil {
		t.Fatalf("replay body: %v", err)
	}
	if replay.Status != orders.StatusPaid || replay.Order.ID != "o1" {
		t.Fatalf("unexpected replay body: %+v", replay)
	}
	if len(metrics.names) != 1 {
		t.Fatalf("expected one metric, got %v", metrics.names)
	}
}

func TestWorkerProcess_SettlesFailed(t *testing.T) {
	p, store, _, _, _ := setup(orders.StatusPending, paystack.TransactionFailed)

	if err := p.Handle(context.Background(), event(t, followUp)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := store.orders["o1"].Status; got != orders.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}

func TestWorkerProcess_StillPendingRetries(t *testing.T) {
	p, store, _, guard, _ := setup(orders.StatusPending, paystack.TransactionAbandoned)

	err := p.Handle(context.Background(), event(t, followUp))
	if !errors.Is(err, ErrStillPending) {
		t.Fatalf("expected ErrStillPending, got %v", err)
	}
	if store.orders["o1"].Status != orders.StatusPending {
		t.Fatalf("order must stay pending")
	}
	if len(guard.bodies) != 0 {
		t.Fatalf("replay must not change while pending")
	}
}

func TestWorkerProcess_AlreadySettledSkipsGateway(t *testing.T) {
	p, _, gw, _, _ := setup(orders.StatusPaid, paystack.TransactionSuccess)

	if err := p.Handle(context.Background(), event(t, followUp)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway must not be called for settled orders")
	}
}

func TestWorkerProcess_ConcurrentDeliveryIsDone(t *testing.T) {
	p, store, _, guard, _ := setup(orders.StatusPending, paystack.TransactionSuccess)
	store.raceTo = orders.StatusPaid

	if err := p.Handle(context.Background(), event(t, followUp)); err != nil {
		t.Fatalf("status mismatch should be treated as done, got %v", err)
	}
	if len(guard.bodies) != 0 {
		t.Fatalf("losing delivery must not rewrite the replay")
	}
}

func TestWorkerProcess_Errors(t *testing.T) {
	p, _, gw, _, _ := setup(orders.StatusPending, paystack.TransactionSuccess)

	bad := events.SQSEvent{Records: []events.SQSMessage{{Body: "not json"}}}
	if err := p.Handle(context.Background(), bad); err == nil {
		t.Fatalf("expected error for invalid body")
	}

	missing := reconcile.FollowUp{OrderID: "nope", Reference: "KC-9"}
	if err := p.Handle(context.Background(), event(t, missing)); !errors.Is(err, orders.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	gw.err = errors.New("gateway down")
	if err := p.Handle(context.Background(), event(t, followUp)); err == nil {
		t.Fatalf("expected gateway error")
	}
}
