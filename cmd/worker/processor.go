package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
	"github.com/imrishuroy/go-storefront-checkout/internal/reconcile"
)

// Gateway re-verifies a payment reference.
type Gateway interface {
	Verify(ctx context.Context, reference string) (*paystack.Verification, error)
}

// OrderStore reads and transitions orders.
type OrderStore interface {
	Capabilities(ctx context.Context) (orders.Capabilities, error)
	FindByID(ctx context.Context, id string) (*orders.Order, error)
	UpdateStatus(ctx context.Context, id string, expected, next orders.Status) error
}

// Guard stores the response replayed for a reference.
type Guard interface {
	MarkDone(ctx context.Context, reference, orderID, responseBody string, responseStatus int) error
}

// ErrStillPending makes SQS redeliver the message until the gateway settles or it dead-letters.
var ErrStillPending = errors.New("payment still pending")

// Processor handles follow-up messages for orders recorded as pending.
type Processor struct {
	gateway Gateway
	orders  OrderStore
	guard   Guard
	metrics reconcile.Metrics
	log     logrus.FieldLogger
}

// NewProcessor creates a worker processor. guard and metrics may be nil.
func NewProcessor(gateway Gateway, store OrderStore, guard Guard, metrics reconcile.Metrics, log logrus.FieldLogger) *Processor {
	return &Processor{gateway: gateway, orders: store, guard: guard, metrics: metrics, log: log}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	if _, err := p.orders.Capabilities(ctx); err != nil {
		p.log.WithError(err).Warn("orders schema probe failed, assuming full schema")
	}
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Lambda retries the batch; repeated failures land in the DLQ.
			p.log.WithError(err).WithField("message_id", rec.MessageId).Error("follow-up failed")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg reconcile.FollowUp
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.OrderID == "" || msg.Reference == "" {
		return errors.New("invalid message body: order_id and reference are required")
	}
	log := p.log.WithFields(logrus.Fields{"order_id": msg.OrderID, "reference": msg.Reference})

	order, err := p.orders.FindByID(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order %s: %w", msg.OrderID, err)
	}
	if order.Status != orders.StatusPending {
		log.WithField("status", order.Status).Info("order already settled")
		return nil
	}

	v, err := p.gateway.Verify(ctx, msg.Reference)
	if err != nil {
		return fmt.Errorf("verify %s: %w", msg.Reference, err)
	}
	next := reconcile.MapStatus(v.Transaction.Status)
	if next == orders.StatusPending {
		return fmt.Errorf("order %s: %w", msg.OrderID, ErrStillPending)
	}

	err = p.orders.UpdateStatus(ctx, msg.OrderID, orders.StatusPending, next)
	if errors.Is(err, orders.ErrStatusMismatch) {
		// another delivery got there first
		log.Info("order moved by a concurrent delivery")
		return nil
	}
	if err != nil {
		return fmt.Errorf("update order %s to %s: %w", msg.OrderID, next, err)
	}
	order.Status = next
	log.WithField("status", next).Info("pending order settled")

	p.refreshReplay(ctx, log, msg.Reference, order, v)
	if p.metrics != nil {
		if err := p.metrics.Count(ctx, "FollowUpsSettled", 1, map[string]string{"Status": string(next)}); err != nil {
			log.WithError(err).Warn("publish follow-up metric")
		}
	}
	return nil
}

// refreshReplay rewrites the stored verify response so repeated verify calls see the new status.
func (p *Processor) refreshReplay(ctx context.Context, log logrus.FieldLogger, reference string, order *orders.Order, v *paystack.Verification) {
	if p.guard == nil {
		return
	}
	body, err := json.Marshal(reconcile.Result{Status: order.Status, Order: order, GatewayRaw: v.Raw})
	if err != nil {
		log.WithError(err).Warn("encode replay response")
		return
	}
	if err := p.guard.MarkDone(ctx, reference, order.ID, string(body), http.StatusOK); err != nil {
		log.WithError(err).Warn("refresh replay response")
	}
}
