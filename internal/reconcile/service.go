// Package reconcile verifies a payment with the gateway and records the outcome as an order
// exactly once per payment reference.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
	"github.com/imrishuroy/go-storefront-checkout/internal/background"
	"github.com/imrishuroy/go-storefront-checkout/internal/config"
	"github.com/imrishuroy/go-storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
	"github.com/imrishuroy/go-storefront-checkout/internal/validation"
)

// Gateway verifies a transaction by reference.
type Gateway interface {
	Verify(ctx context.Context, reference string) (*paystack.Verification, error)
}

// Guard records which references have been claimed and what they produced.
type Guard interface {
	Claim(ctx context.Context, reference, userID string) (bool, error)
	Reclaim(ctx context.Context, reference string) (bool, error)
	Get(ctx context.Context, reference string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, reference, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, reference, note string) error
}

// OrderStore persists orders.
type OrderStore interface {
	Capabilities(ctx context.Context) (orders.Capabilities, error)
	Degrade() orders.Capabilities
	Insert(ctx context.Context, rec orders.Record) (*orders.Order, bool, error)
}

// Publisher sends follow-up messages for pending orders.
type Publisher interface {
	Publish(ctx context.Context, payload any, attributes map[string]string) error
}

// Metrics counts reconciliation outcomes.
type Metrics interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}

// Request is the verification payload sent by the storefront after the payment widget succeeds.
type Request = validation.VerifyRequest

// Result is returned to the storefront and replayed for repeated references.
type Result struct {
	Status     orders.Status   `json:"status"`
	Order      *orders.Order   `json:"order"`
	GatewayRaw json.RawMessage `json:"gatewayRaw"`
	// Replayed is set when the result came from an earlier call with the same reference.
	Replayed bool `json:"-"`
}

// FollowUp is queued for orders that were still pending at verification time.
type FollowUp struct {
	OrderID   string `json:"order_id"`
	Reference string `json:"reference"`
	UserID    string `json:"user_id"`
}

// Deps bundles the Service collaborators. Guard, Publisher, Metrics and Background are optional.
type Deps struct {
	Config     *config.Config
	Gateway    Gateway
	Guard      Guard
	Orders     OrderStore
	Publisher  Publisher
	Metrics    Metrics
	Background *background.Runner
	Validator  *validatorv10.Validate
	Log        logrus.FieldLogger
}

// Service runs payment verification and order reconciliation.
type Service struct {
	Deps
}

// NewService returns a Service; a nil Validator gets the package default.
func NewService(d Deps) *Service {
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	return &Service{Deps: d}
}

// MapStatus turns a gateway transaction status into an order status.
func MapStatus(gatewayStatus string) orders.Status {
	switch gatewayStatus {
	case paystack.TransactionSuccess:
		return orders.StatusPaid
	case paystack.TransactionFailed:
		return orders.StatusFailed
	default:
		// abandoned and anything unrecognised stay pending
		return orders.StatusPending
	}
}

// Verify checks the request, verifies the reference with the gateway and records the order.
// A reference that already completed returns the stored result without touching the store.
func (s *Service) Verify(ctx context.Context, req Request) (*Result, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Reference == "" {
		return nil, apperr.Validation("Missing reference", map[string]string{"reference": "Missing reference"})
	}
	if req.UserID == "" {
		return nil, apperr.Validation("Missing user_id", map[string]string{"user_id": "Missing user_id"})
	}
	if err := s.Config.ValidateGateway(); err != nil {
		return nil, err
	}
	if err := s.Config.ValidateDataStore(); err != nil {
		return nil, err
	}
	if err := s.Validator.Struct(req); err != nil {
		fields := validation.FieldMessages(err)
		return nil, apperr.Validation(validation.Summary(fields), fields)
	}

	// from here on the work must finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	log := s.Log.WithFields(logrus.Fields{"reference": req.Reference, "user_id": req.UserID})

	guarded, replay, err := s.claim(ctx, req, log)
	if err != nil || replay != nil {
		return replay, err
	}

	verification, err := s.Gateway.Verify(ctx, req.Reference)
	if err != nil {
		log.WithError(err).Warn("gateway verification failed")
		s.release(ctx, guarded, req.Reference, "gateway: "+err.Error(), log)
		s.count("GatewayErrors", nil)
		return nil, apperr.Gateway(gatewayMessage(err), err)
	}

	status := MapStatus(verification.Transaction.Status)
	s.checkAmount(req, verification, status, log)

	order, created, err := s.persist(ctx, req, status, log)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"total":          req.Total.String(),
			"gateway_status": verification.Transaction.Status,
		}).Error("order could not be saved; reconcile manually")
		s.release(ctx, guarded, req.Reference, "persistence: "+err.Error(), log)
		s.count("PersistenceErrors", nil)
		return nil, apperr.Persistence("Failed to save order", err)
	}
	if !created {
		log.WithField("order_id", order.ID).Info("reference already recorded, returning existing order")
	}

	result := &Result{Status: status, Order: order, GatewayRaw: verification.Raw}
	if guarded {
		s.complete(ctx, req.Reference, result, log)
	}
	if created && status == orders.StatusPending {
		s.queueFollowUp(req, order)
	}
	s.count("OrdersReconciled", map[string]string{"Status": string(status)})
	return result, nil
}

// gatewayMessage passes the gateway's own status and body through to the caller. Transport
// failures and an open breaker keep a generic message.
func gatewayMessage(err error) string {
	var se *paystack.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("Paystack %s failed: %d %s", se.Op, se.Code, strings.TrimSpace(se.Body))
	}
	return "Verification failed"
}

// claim takes the reference guard. It returns a replayed result for completed references and
// a conflict while another call holds the reference.
func (s *Service) claim(ctx context.Context, req Request, log logrus.FieldLogger) (bool, *Result, error) {
	if s.Guard == nil {
		return false, nil, nil
	}
	claimed, err := s.Guard.Claim(ctx, req.Reference, req.UserID)
	if err != nil {
		// the unique index on orders.reference still prevents duplicates
		log.WithError(err).Warn("reference guard unavailable, continuing without it")
		return false, nil, nil
	}
	if claimed {
		return true, nil, nil
	}

	rec, err := s.Guard.Get(ctx, req.Reference)
	if err != nil {
		log.WithError(err).Warn("reference guard read failed, continuing without it")
		return false, nil, nil
	}
	if rec != nil && rec.Status == idempotency.StatusDone {
		var stored Result
		if err := json.Unmarshal([]byte(rec.ResponseBody), &stored); err == nil {
			stored.Replayed = true
			log.Info("replaying stored verification result")
			return false, &stored, nil
		}
		log.Warn("stored verification result unreadable, verifying again")
		return false, nil, nil
	}
	if rec == nil {
		// the entry expired between Claim and Get, so a fresh claim can succeed
		claimed, err = s.Guard.Claim(ctx, req.Reference, req.UserID)
		if err != nil {
			log.WithError(err).Warn("reference guard unavailable, continuing without it")
			return false, nil, nil
		}
		if !claimed {
			return false, nil, apperr.Conflict("Payment verification already in progress for this reference")
		}
		return true, nil, nil
	}

	ok, err := s.Guard.Reclaim(ctx, req.Reference)
	if err != nil {
		log.WithError(err).Warn("reference reclaim failed, continuing without guard")
		return false, nil, nil
	}
	if !ok {
		return false, nil, apperr.Conflict("Payment verification already in progress for this reference")
	}
	return true, nil, nil
}

func (s *Service) release(ctx context.Context, guarded bool, reference, note string, log logrus.FieldLogger) {
	if !guarded {
		return
	}
	if err := s.Guard.MarkFailed(ctx, reference, note); err != nil {
		log.WithError(err).Warn("failed to release reference guard")
	}
}

func (s *Service) complete(ctx context.Context, reference string, result *Result, log logrus.FieldLogger) {
	body, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Warn("failed to encode result for reference guard")
		return
	}
	if err := s.Guard.MarkDone(ctx, reference, result.Order.ID, string(body), http.StatusOK); err != nil {
		log.WithError(err).Warn("failed to mark reference done")
	}
}

// persist inserts the order in the richest shape the schema accepts.
func (s *Service) persist(ctx context.Context, req Request, status orders.Status, log logrus.FieldLogger) (*orders.Order, bool, error) {
	draft := draftFrom(req, status)

	caps, err := s.Orders.Capabilities(ctx)
	if err != nil {
		log.WithError(err).Warn("orders schema probe failed, assuming full schema")
	}

	rec := orders.NewRecord(caps, draft)
	order, created, err := s.Orders.Insert(ctx, rec)
	if err == nil {
		return order, created, nil
	}
	if _, rich := rec.(orders.RichRecord); !rich {
		return nil, false, err
	}

	if orders.IsUndefinedColumn(err) {
		s.Orders.Degrade()
		log.WithError(err).Warn("orders table lacks shipping columns, switching to degraded records")
	} else {
		log.WithError(err).Warn("rich order insert failed, retrying with shipping folded into products")
	}
	order, created, err2 := s.Orders.Insert(ctx, orders.DegradedRecord{Draft: draft})
	if err2 != nil {
		return nil, false, errors.Join(err, err2)
	}
	return order, created, nil
}

func draftFrom(req Request, status orders.Status) orders.Draft {
	city := firstNonEmpty(req.ShippingCity, req.City)
	state := firstNonEmpty(req.ShippingState, req.StateRegion, req.Destination)
	return orders.Draft{
		UserID:      req.UserID,
		Reference:   req.Reference,
		Status:      status,
		TotalAmount: req.Total,
		Items:       req.Items,
		Shipping: orders.Shipping{
			Address:               req.Address,
			City:                  city,
			State:                 state,
			PostalCode:            req.PostalCode,
			NormalizedDestination: req.NormalizedDestination,
			ShippingFee:           req.ShippingFee,
			Subtotal:              req.Subtotal,
			Total:                 req.Total,
		},
	}
}

func (s *Service) checkAmount(req Request, v *paystack.Verification, status orders.Status, log logrus.FieldLogger) {
	if status != orders.StatusPaid {
		return
	}
	expected := req.Total.Shift(2).Round(0).IntPart()
	if v.Transaction.Amount != expected {
		log.WithFields(logrus.Fields{
			"expected_minor": expected,
			"gateway_minor":  v.Transaction.Amount,
			"currency":       v.Transaction.Currency,
		}).Warn("gateway amount differs from checkout total")
	}
}

func (s *Service) queueFollowUp(req Request, order *orders.Order) {
	if s.Publisher == nil {
		return
	}
	msg := FollowUp{OrderID: order.ID, Reference: req.Reference, UserID: req.UserID}
	s.Background.Go("followup.publish", logrus.Fields{"order_id": order.ID, "reference": req.Reference}, func(ctx context.Context) error {
		return s.Publisher.Publish(ctx, msg, map[string]string{"event": "order.pending", "reference": req.Reference})
	})
}

func (s *Service) count(name string, dims map[string]string) {
	if s.Metrics == nil {
		return
	}
	s.Background.Go("metrics."+name, nil, func(ctx context.Context) error {
		return s.Metrics.Count(ctx, name, 1, dims)
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
