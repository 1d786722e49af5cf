package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/imrishuroy/go-storefront-checkout/internal/checkout"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
)

// Initializer starts a hosted payment page.
type Initializer interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.Authorization, error)
}

// terminalWidget opens a hosted payment page and asks the operator whether the payment went through.
type terminalWidget struct {
	gateway Initializer
	in      *bufio.Reader
	out     io.Writer
}

func newTerminalWidget(gateway Initializer, in io.Reader, out io.Writer) *terminalWidget {
	return &terminalWidget{gateway: gateway, in: bufio.NewReader(in), out: out}
}

func (w *terminalWidget) Ready() bool { return w.gateway != nil }

func (w *terminalWidget) Open(ctx context.Context, req checkout.WidgetRequest, cb checkout.Callbacks) error {
	auth, err := w.gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:     req.Email,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.Reference,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w.out, "Pay %s %d.%02d at:\n  %s\n", req.Currency, req.Amount/100, req.Amount%100, auth.AuthorizationURL)
	fmt.Fprint(w.out, "Type 'paid' once the payment page confirms, anything else to close: ")

	go func() {
		line, err := w.in.ReadString('\n')
		if err != nil && line == "" {
			cb.OnClose()
			return
		}
		if strings.EqualFold(strings.TrimSpace(line), "paid") {
			cb.OnSuccess(auth.Reference)
			return
		}
		cb.OnClose()
	}()
	return nil
}
