package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
	"github.com/imrishuroy/go-storefront-checkout/internal/background"
	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
	"github.com/imrishuroy/go-storefront-checkout/internal/config"
	"github.com/imrishuroy/go-storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
)

type harness struct {
	svc       *Service
	gateway   *fakeGateway
	guard     *fakeGuard
	orders    *fakeOrders
	publisher *fakePublisher
	metrics   *fakeMetrics
	bg        *background.Runner
	hook      *logtest.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	bg := background.New(log, 32, time.Second)
	t.Cleanup(bg.Close)

	h := &harness{
		gateway:   &fakeGateway{status: paystack.TransactionSuccess, amount: 420000},
		guard:     newFakeGuard(),
		orders:    newFakeOrders(),
		publisher: &fakePublisher{},
		metrics:   &fakeMetrics{},
		bg:        bg,
		hook:      hook,
	}
	h.svc = NewService(Deps{
		Config:     &config.Config{PaystackSecretKey: "sk_test", DatabaseURL: "postgres://x"},
		Gateway:    h.gateway,
		Guard:      h.guard,
		Orders:     h.orders,
		Publisher:  h.publisher,
		Metrics:    h.metrics,
		Background: bg,
		Log:        log,
	})
	return h
}

func validRequest() Request {
	return Request{
		Reference: "KC-1700000000000-a1b2c3",
		UserID:    "user-1",
		Items: []cart.LineItem{
			{ProductID: "p1", Name: "Ankara tote", UnitPrice: decimal.NewFromInt(1500), Quantity: 2},
		},
		Subtotal:              decimal.NewFromInt(3000),
		ShippingFee:           decimal.NewFromInt(1200),
		Total:                 decimal.NewFromInt(4200),
		Address:               "12 Admiralty Way",
		City:                  "Lekki",
		StateRegion:           "Lagos",
		Destination:           "Lagos",
		NormalizedDestination: "lagos",
		PostalCode:            "101001",
	}
}

func TestVerifyRequiresReferenceAndUser(t *testing.T) {
	h := newHarness(t)

	req := validRequest()
	req.Reference = " "
	_, err := h.svc.Verify(context.Background(), req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "Missing reference", apperr.Message(err))

	req = validRequest()
	req.UserID = ""
	_, err = h.svc.Verify(context.Background(), req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "Missing user_id", apperr.Message(err))

	assert.Zero(t, h.gateway.calls.Load())
}

func TestVerifyConfigurationErrors(t *testing.T) {
	h := newHarness(t)

	h.svc.Config = &config.Config{DatabaseURL: "postgres://x"}
	_, err := h.svc.Verify(context.Background(), validRequest())
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Equal(t, "Server not configured with PAYSTACK_SECRET_KEY", apperr.Message(err))

	h.svc.Config = &config.Config{PaystackSecretKey: "sk"}
	_, err = h.svc.Verify(context.Background(), validRequest())
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))

	assert.Zero(t, h.gateway.calls.Load())
	assert.Zero(t, h.orders.count())
}

func TestVerifyRejectsInconsistentTotals(t *testing.T) {
	h := newHarness(t)
	req := validRequest()
	req.Total = decimal.NewFromInt(4000)

	_, err := h.svc.Verify(context.Background(), req)
	require.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "total")
}

func TestVerifyPaidCreatesRichOrder(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	h.bg.Wait()

	assert.Equal(t, orders.StatusPaid, res.Status)
	require.NotNil(t, res.Order)
	assert.True(t, res.Order.TotalAmount.Equal(decimal.NewFromInt(4200)))
	assert.NotEmpty(t, res.GatewayRaw)
	assert.Equal(t, 1, h.orders.richAttempts)
	assert.Zero(t, h.orders.degradedCount)
	assert.Equal(t, idempotency.StatusDone, h.guard.status(res.Order.Reference))
	assert.Equal(t, float64(1), h.metrics.get("OrdersReconciled:paid"))
	assert.Empty(t, h.publisher.messages, "paid orders need no follow-up")
}

func TestVerifyFallsBackToDegradedRecord(t *testing.T) {
	h := newHarness(t)
	h.orders.noShipping = true

	res, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, res.Status)
	assert.Equal(t, 1, h.orders.degradeCalls)
	assert.Equal(t, 1, h.orders.degradedCount)

	details, err := res.Order.Details()
	require.NoError(t, err)
	require.Len(t, details.Items, 1)
	require.NotNil(t, details.Shipping)
	assert.Equal(t, "12 Admiralty Way", details.Shipping.Address)
	assert.Equal(t, "Lekki", details.Shipping.City)
	assert.Equal(t, "Lagos", details.Shipping.State)
	assert.Equal(t, "101001", details.Shipping.PostalCode)
	assert.Equal(t, "lagos", details.Shipping.NormalizedDestination)
	assert.True(t, details.Shipping.ShippingFee.Equal(decimal.NewFromInt(1200)))
	assert.True(t, details.Shipping.Subtotal.Equal(decimal.NewFromInt(3000)))
	assert.True(t, details.Shipping.Total.Equal(decimal.NewFromInt(4200)))

	// the flipped probe means the next order goes straight to the degraded shape
	req := validRequest()
	req.Reference = "KC-1700000000001-zzzzzz"
	_, err = h.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, h.orders.richAttempts)
	assert.Equal(t, 2, h.orders.degradedCount)
}

func TestVerifyShippingOverrides(t *testing.T) {
	h := newHarness(t)
	h.orders.caps = orders.Capabilities{}
	req := validRequest()
	req.ShippingCity = "Ikeja"
	req.ShippingState = "Lagos State"

	res, err := h.svc.Verify(context.Background(), req)
	require.NoError(t, err)
	details, err := res.Order.Details()
	require.NoError(t, err)
	assert.Equal(t, "Ikeja", details.Shipping.City)
	assert.Equal(t, "Lagos State", details.Shipping.State)
}

func TestVerifyGatewayFailureCreatesNoOrder(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = &paystack.StatusError{Op: "verify", Code: 503, Body: "upstream"}

	_, err := h.svc.Verify(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindGateway))
	assert.Equal(t, 502, apperr.HTTPStatus(err))
	assert.Equal(t, "Paystack verify failed: 503 upstream", apperr.Message(err))
	assert.Zero(t, h.orders.count())
	assert.Equal(t, idempotency.StatusFailed, h.guard.status(validRequest().Reference))

	// the failed reference can be retried once the gateway recovers
	h.gateway.err = nil
	res, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, res.Status)
	assert.Equal(t, 1, h.orders.count())
}

func TestVerifyTransportFailureKeepsGenericMessage(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = errors.New("dial tcp: i/o timeout")

	_, err := h.svc.Verify(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindGateway))
	assert.Equal(t, "Verification failed", apperr.Message(err))
}

func TestVerifyReclaimsExpiredGuardEntry(t *testing.T) {
	h := newHarness(t)
	ref := validRequest().Reference
	h.guard.records[ref] = &idempotency.Record{Reference: ref, UserID: "user-1", Status: idempotency.StatusInProgress}
	h.guard.expireOnGet = true

	res, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, res.Status)
	assert.Equal(t, 2, h.guard.claims)
	assert.Equal(t, idempotency.StatusDone, h.guard.status(ref))
}

func TestVerifyPersistenceFailure(t *testing.T) {
	h := newHarness(t)
	h.orders.failAll = errors.New("connection refused")

	_, err := h.svc.Verify(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPersistence))
	assert.Equal(t, idempotency.StatusFailed, h.guard.status(validRequest().Reference))

	var logged bool
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			logged = true
			assert.Equal(t, "KC-1700000000000-a1b2c3", e.Data["reference"])
			assert.Equal(t, "user-1", e.Data["user_id"])
			assert.Equal(t, "4200", e.Data["total"])
		}
	}
	assert.True(t, logged, "persistence failure is logged at error level")
}

func TestVerifyReplaysCompletedReference(t *testing.T) {
	h := newHarness(t)

	first, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	second, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, int32(1), h.gateway.calls.Load())
	assert.Equal(t, 1, h.orders.count())
}

func TestVerifyConcurrentSameReference(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.Verify(context.Background(), validRequest())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.orders.count())
	for _, err := range errs {
		if err != nil {
			assert.True(t, apperr.Is(err, apperr.KindConflict), "unexpected error: %v", err)
		}
	}
}

func TestVerifyWithoutGuardStillSingleRow(t *testing.T) {
	h := newHarness(t)
	h.svc.Guard = nil

	_, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	res, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, h.orders.count())
	assert.Equal(t, "order-1", res.Order.ID)
}

func TestVerifyPendingQueuesFollowUp(t *testing.T) {
	h := newHarness(t)
	h.gateway.status = paystack.TransactionAbandoned

	res, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)
	h.bg.Wait()

	assert.Equal(t, orders.StatusPending, res.Status)
	require.Len(t, h.publisher.messages, 1)
	msg := h.publisher.messages[0].(FollowUp)
	assert.Equal(t, res.Order.ID, msg.OrderID)
	assert.Equal(t, "KC-1700000000000-a1b2c3", msg.Reference)
}

func TestVerifyDetachesFromCallerContext(t *testing.T) {
	h := newHarness(t)
	h.gateway.check = func(ctx context.Context) {
		assert.NoError(t, ctx.Err())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Verify(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, h.orders.count())
}

func TestVerifyWarnsOnAmountMismatch(t *testing.T) {
	h := newHarness(t)
	h.gateway.amount = 100

	_, err := h.svc.Verify(context.Background(), validRequest())
	require.NoError(t, err)

	var warned bool
	for _, e := range h.hook.AllEntries() {
		if e.Message == "gateway amount differs from checkout total" {
			warned = true
			assert.Equal(t, int64(420000), e.Data["expected_minor"])
		}
	}
	assert.True(t, warned)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]orders.Status{
		"success":   orders.StatusPaid,
		"failed":    orders.StatusFailed,
		"abandoned": orders.StatusPending,
		"ongoing":   orders.StatusPending,
		"":          orders.StatusPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), in)
	}
}
