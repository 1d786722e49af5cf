package checkout

import (
	"context"
	"sync"
)

// PaymentKind is how the payment widget finished.
type PaymentKind string

const (
	PaymentSucceeded PaymentKind = "success"
	PaymentCancelled PaymentKind = "cancelled"
)

// PaymentOutcome is the first callback fired by the widget.
type PaymentOutcome struct {
	Kind PaymentKind
	// Reference is the gateway-confirmed reference; empty when the widget did not supply one.
	Reference string
}

// Callbacks are handed to the widget. Each may be called from any goroutine.
type Callbacks struct {
	OnSuccess func(reference string)
	OnClose   func()
}

// PaymentFuture turns the widget's two single-shot callbacks into one awaitable outcome.
// Only the first callback counts; later calls are ignored.
type PaymentFuture struct {
	once sync.Once
	done chan struct{}
	out  PaymentOutcome
}

func NewPaymentFuture() *PaymentFuture {
	return &PaymentFuture{done: make(chan struct{})}
}

func (f *PaymentFuture) resolve(o PaymentOutcome) {
	f.once.Do(func() {
		f.out = o
		close(f.done)
	})
}

// Callbacks returns the success and close callbacks bound to f.
func (f *PaymentFuture) Callbacks() Callbacks {
	return Callbacks{
		OnSuccess: func(ref string) { f.resolve(PaymentOutcome{Kind: PaymentSucceeded, Reference: ref}) },
		OnClose:   func() { f.resolve(PaymentOutcome{Kind: PaymentCancelled}) },
	}
}

// Wait blocks until a callback fires or ctx is done.
func (f *PaymentFuture) Wait(ctx context.Context) (PaymentOutcome, error) {
	select {
	case <-f.done:
		return f.out, nil
	case <-ctx.Done():
		return PaymentOutcome{}, ctx.Err()
	}
}
