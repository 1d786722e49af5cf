// Command checkout runs a storefront checkout from the terminal against the checkout API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront-checkout/internal/background"
	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
	"github.com/imrishuroy/go-storefront-checkout/internal/checkout"
	"github.com/imrishuroy/go-storefront-checkout/internal/client"
	"github.com/imrishuroy/go-storefront-checkout/internal/config"
	"github.com/imrishuroy/go-storefront-checkout/internal/logging"
	"github.com/imrishuroy/go-storefront-checkout/internal/paystack"
)

// parseItem reads "id:name:price".
func parseItem(s string) (cart.LineItem, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return cart.LineItem{}, fmt.Errorf("item %q: want id:name:price", s)
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return cart.LineItem{}, fmt.Errorf("item %q: %w", s, err)
	}
	return cart.LineItem{ProductID: parts[0], Name: parts[1], UnitPrice: price, Quantity: 1}, nil
}

// sessionFromToken reads the shopper from the platform token. The API verifies the signature.
func sessionFromToken(raw string) (checkout.Session, error) {
	if raw == "" {
		return checkout.Session{}, nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return checkout.Session{}, fmt.Errorf("read token: %w", err)
	}
	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	return checkout.Session{UserID: sub, Email: email}, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	var (
		apiURL  = flag.String("api", cfg.APIBaseURL, "checkout API base URL")
		token   = flag.String("token", os.Getenv("STOREFRONT_TOKEN"), "platform session token")
		session = flag.String("session", "", "anonymous cart session id")
		line1   = flag.String("line1", "", "address line 1")
		city    = flag.String("city", "", "city")
		state   = flag.String("state", "", "state or region")
		postal  = flag.String("postal", "", "postal code")
		items   []cart.LineItem
	)
	flag.Func("add", "add an item to the cart before checkout, as id:name:price (repeatable)", func(s string) error {
		it, err := parseItem(s)
		if err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	flag.Parse()

	logger := logging.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess, err := sessionFromToken(*token)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}

	var opts []client.Option
	if *session != "" {
		opts = append(opts, client.WithSession(*session))
	}
	api := client.New(*apiURL, *token, opts...)
	for _, it := range items {
		if _, err := api.AddItem(ctx, it); err != nil {
			log.Printf("add %s: %v", it.ProductID, err)
			return 1
		}
	}

	bg := background.New(logger, 16, 0)
	var widget checkout.Widget
	if cfg.PaystackSecretKey != "" {
		widget = newTerminalWidget(paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, logger), os.Stdin, os.Stdout)
	}
	orch := checkout.New(checkout.Deps{
		Config:     checkout.Config{PublicKey: cfg.PaystackPublicKey, Currency: cfg.Currency},
		Cart:       api,
		Verifier:   api,
		Addresses:  api,
		Widget:     widget,
		Background: bg,
		Log:        logger,
	})

	res := orch.Checkout(ctx, sess, checkout.Address{Line1: *line1, City: *city, StateRegion: *state, PostalCode: *postal})
	bg.Close()

	if res.Redirect != "" {
		fmt.Printf("Sign in first: %s\n", res.Redirect)
		return 2
	}
	fmt.Printf("[%s] %s: %s\n", res.Severity, res.Title, res.Message)
	for f, msg := range res.FieldErrors {
		fmt.Printf("  %s: %s\n", f, msg)
	}
	if res.Reference != "" {
		fmt.Printf("reference: %s\n", res.Reference)
	}
	if res.Order != nil {
		fmt.Printf("order: %s (%s)\n", res.Order.ID, res.Order.Status)
	}
	if res.Outcome == checkout.OutcomeFailed {
		if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
			logger.WithError(res.Err).Debug("checkout failed")
		}
		return 1
	}
	return 0
}
