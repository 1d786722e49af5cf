// Package checkout drives one checkout attempt from address entry to a resolved order status.
package checkout

import (
	"context"
	"errors"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront-checkout/internal/addresses"
	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
	"github.com/imrishuroy/go-storefront-checkout/internal/background"
	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/go-storefront-checkout/internal/shipping"
	"github.com/imrishuroy/go-storefront-checkout/internal/validation"
)

// LoginRedirect is where an anonymous shopper is sent when they try to check out.
const LoginRedirect = "/login?redirect=/cart"

// ErrAnonymous is set on the Result of an attempt made without a signed-in session.
var ErrAnonymous = errors.New("checkout requires a signed-in session")

type State string

const (
	StateIdle                    State = "idle"
	StateValidating              State = "validating"
	StateAwaitingPaymentWidget   State = "awaiting_payment_widget"
	StateAwaitingGatewayCallback State = "awaiting_gateway_callback"
	StateVerifying               State = "verifying"
	StateResolved                State = "resolved"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailed  Outcome = "failed"
)

// Severity frames the message shown to the shopper.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Address is the delivery address typed before paying.
type Address = validation.CheckoutAddress

// Session identifies the signed-in shopper. A zero Session is anonymous.
type Session struct {
	UserID string
	Email  string
}

// CartSource reads and clears the shopper's cart.
type CartSource interface {
	LoadCart(ctx context.Context) (*cart.Cart, error)
	ClearCart(ctx context.Context) error
}

// Verifier asks the server to verify a payment and record the order.
type Verifier interface {
	Verify(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// AddressSaver stores the shopper's default address.
type AddressSaver interface {
	SaveDefaultAddress(ctx context.Context, a addresses.Address) error
}

// WidgetRequest configures the payment widget.
type WidgetRequest struct {
	PublicKey string
	Email     string
	// Amount is in minor units (kobo for NGN).
	Amount    int64
	Currency  string
	Reference string
}

// Widget is the gateway's payment UI. Open returns once the widget is shown; the outcome
// arrives later through exactly one of the callbacks.
type Widget interface {
	Ready() bool
	Open(ctx context.Context, req WidgetRequest, cb Callbacks) error
}

// Result describes how an attempt ended.
type Result struct {
	State    State
	Outcome  Outcome
	Severity Severity
	Title    string
	Message  string
	// Redirect is set when the shopper must sign in first.
	Redirect    string
	FieldErrors map[string]string
	Reference   string
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
	Order       *orders.Order
	Err         error
	// Trail lists the states the attempt passed through.
	Trail []State
}

type Config struct {
	PublicKey string
	Currency  string
}

type Deps struct {
	Config     Config
	Cart       CartSource
	Verifier   Verifier
	Addresses  AddressSaver
	Widget     Widget
	Background *background.Runner
	Validator  *validatorv10.Validate
	Log        logrus.FieldLogger
	// Now and Reference are replaceable in tests.
	Now       func() time.Time
	Reference func(time.Time) string
}

// Orchestrator runs checkout attempts. Attempts are independent; the orchestrator holds no
// per-attempt state between calls.
type Orchestrator struct {
	Deps
}

func New(d Deps) *Orchestrator {
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Reference == nil {
		d.Reference = NewReference
	}
	if d.Config.Currency == "" {
		d.Config.Currency = "NGN"
	}
	return &Orchestrator{Deps: d}
}

type attempt struct {
	res *Result
}

func (a *attempt) enter(s State) {
	a.res.State = s
	a.res.Trail = append(a.res.Trail, s)
}

// abort returns to Idle with a user-facing message.
func (a *attempt) abort(title, msg string, err error) *Result {
	a.enter(StateIdle)
	a.res.Outcome = OutcomeFailed
	a.res.Severity = SeverityError
	a.res.Title = title
	a.res.Message = msg
	a.res.Err = err
	return a.res
}

func (a *attempt) resolve(o Outcome, sev Severity, title, msg string) *Result {
	a.enter(StateResolved)
	a.res.Outcome = o
	a.res.Severity = sev
	a.res.Title = title
	a.res.Message = msg
	return a.res
}

// Checkout runs one attempt. It blocks while the payment widget is open.
func (o *Orchestrator) Checkout(ctx context.Context, sess Session, addr Address) *Result {
	if sess.UserID == "" {
		return &Result{State: StateIdle, Redirect: LoginRedirect, Err: ErrAnonymous}
	}
	a := &attempt{res: &Result{Trail: []State{StateIdle}}}
	log := o.Log.WithField("user_id", sess.UserID)

	a.enter(StateValidating)
	if err := o.Validator.Struct(addr); err != nil {
		fields := validation.FieldMessages(err)
		r := a.abort("Invalid Address", validation.Summary(fields), apperr.Validation(validation.Summary(fields), fields))
		r.FieldErrors = fields
		return r
	}
	dest := shipping.Normalize(addr.StateRegion, addr.City)
	if !dest.Known() {
		fields := map[string]string{"stateRegion": "Select a delivery destination"}
		r := a.abort("Invalid Address", fields["stateRegion"], apperr.Validation(fields["stateRegion"], fields))
		r.FieldErrors = fields
		return r
	}

	c, err := o.Cart.LoadCart(ctx)
	if err != nil {
		return a.abort("Cart Error", "Could not load your cart. Please try again.", err)
	}
	a.res.Subtotal = c.Total()
	a.res.ShippingFee = shipping.ComputeFee(dest, addr.PostalCode)
	a.res.Total = a.res.Subtotal.Add(a.res.ShippingFee)
	if !a.res.Subtotal.IsPositive() || !a.res.Total.IsPositive() {
		return a.abort("Cart Empty", "Cart total must be greater than 0", apperr.Validation("Cart total must be greater than 0", nil))
	}

	a.enter(StateAwaitingPaymentWidget)
	if o.Widget == nil || !o.Widget.Ready() {
		return a.abort("Payment Error", "Payment library not loaded. Please try again.",
			apperr.Configuration("Payment library not loaded"))
	}
	if o.Config.PublicKey == "" {
		return a.abort("Config Error", "Missing payment gateway public key. Set PAYSTACK_PUBLIC_KEY.",
			apperr.Configuration("Missing payment gateway public key"))
	}

	a.res.Reference = o.Reference(o.Now())
	log = log.WithField("reference", a.res.Reference)
	future := NewPaymentFuture()
	req := WidgetRequest{
		PublicKey: o.Config.PublicKey,
		Email:     sess.Email,
		Amount:    a.res.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Currency:  o.Config.Currency,
		Reference: a.res.Reference,
	}
	if err := o.Widget.Open(ctx, req, future.Callbacks()); err != nil {
		return a.abort("Payment Error", "Could not open the payment window. Please try again.",
			apperr.Gateway("Payment widget failed", err))
	}

	a.enter(StateAwaitingGatewayCallback)
	paid, err := future.Wait(ctx)
	if err != nil || paid.Kind == PaymentCancelled {
		log.Info("payment widget closed without confirmation")
		return a.resolve(OutcomePending, SeverityWarning, "Payment Cancelled",
			"You closed the payment window. If money was deducted, it will be verified shortly.")
	}
	if paid.Reference != "" {
		a.res.Reference = paid.Reference
	}

	a.enter(StateVerifying)
	// a started verification always runs to completion
	vctx := context.WithoutCancel(ctx)
	result, err := o.Verifier.Verify(vctx, reconcile.Request{
		Reference:             a.res.Reference,
		UserID:                sess.UserID,
		Total:                 a.res.Total,
		Subtotal:              a.res.Subtotal,
		ShippingFee:           a.res.ShippingFee,
		Items:                 c.Items,
		Address:               addr.Line1,
		Destination:           string(dest),
		NormalizedDestination: string(dest),
		PostalCode:            addr.PostalCode,
		City:                  addr.City,
		StateRegion:           addr.StateRegion,
	})
	if err != nil {
		log.WithError(err).Warn("payment verification failed")
		msg := apperr.Message(err)
		if msg == "" {
			msg = "Failed to verify payment."
		}
		a.resolve(OutcomeFailed, SeverityError, "Verification Error", msg)
		a.res.Err = err
		return a.res
	}
	a.res.Order = result.Order

	switch result.Status {
	case orders.StatusPaid:
		if err := o.Cart.ClearCart(vctx); err != nil {
			log.WithError(err).Warn("clear cart after payment")
		}
		o.saveAddress(sess, addr)
		return a.resolve(OutcomeSuccess, SeveritySuccess, "Payment Successful", "Your order has been placed successfully.")
	case orders.StatusPending:
		return a.resolve(OutcomePending, SeverityWarning, "Payment Pending",
			"We couldn't confirm payment yet. Please check your orders later.")
	default:
		return a.resolve(OutcomeFailed, SeverityError, "Payment Failed", "Your payment was not successful.")
	}
}

func (o *Orchestrator) saveAddress(sess Session, addr Address) {
	if o.Addresses == nil {
		return
	}
	a := addresses.Address{
		UserID:     sess.UserID,
		Line1:      addr.Line1,
		City:       addr.City,
		State:      addr.StateRegion,
		PostalCode: addr.PostalCode,
	}
	o.Background.Go("save_default_address", logrus.Fields{"user_id": sess.UserID}, func(ctx context.Context) error {
		return o.Addresses.SaveDefaultAddress(ctx, a)
	})
}
