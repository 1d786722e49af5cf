// Package client is a typed client for the checkout API, used by storefront front ends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imrishuroy/go-storefront-checkout/internal/addresses"
	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
	"github.com/imrishuroy/go-storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/go-storefront-checkout/internal/shipping"
)

const sessionHeader = "X-Session-ID"

// Client calls the checkout API on behalf of one storefront session.
type Client struct {
	baseURL   string
	token     string
	sessionID string
	http      *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSession sets the anonymous cart session id.
func WithSession(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

// New returns a Client; token is the platform session token and may be empty for anonymous use.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SessionID returns the cart session id, which the server assigns on first contact.
func (c *Client) SessionID() string { return c.sessionID }

type cartResponse struct {
	Items []cart.LineItem `json:"items"`
}

// LoadCart returns the caller's cart.
func (c *Client) LoadCart(ctx context.Context) (*cart.Cart, error) {
	var out cartResponse
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &out); err != nil {
		return nil, err
	}
	return cart.New(out.Items), nil
}

// AddItem adds one unit of item to the cart.
func (c *Client) AddItem(ctx context.Context, item cart.LineItem) (*cart.Cart, error) {
	body := map[string]any{
		"id":            item.ProductID,
		"name":          item.Name,
		"price":         item.UnitPrice,
		"image_url":     item.ImageRef,
		"categories_id": item.CategoryID,
	}
	var out cartResponse
	if err := c.do(ctx, http.MethodPost, "/cart/items", body, &out); err != nil {
		return nil, err
	}
	return cart.New(out.Items), nil
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/cart", nil, nil)
}

// Verify submits a payment reference for verification and order recording.
func (c *Client) Verify(ctx context.Context, req reconcile.Request) (*reconcile.Result, error) {
	var out reconcile.Result
	if err := c.do(ctx, http.MethodPost, "/checkout/verify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveDefaultAddress stores a as the user's default address.
func (c *Client) SaveDefaultAddress(ctx context.Context, a addresses.Address) error {
	return c.do(ctx, http.MethodPut, "/addresses/default", a, nil)
}

type quoteResponse struct {
	shipping.Quote
	Deliverable bool `json:"deliverable"`
}

// Quote asks the server for a shipping quote.
func (c *Client) Quote(ctx context.Context, state, city, postalCode string) (*shipping.Quote, error) {
	q := url.Values{}
	q.Set("state", state)
	q.Set("city", city)
	q.Set("postal_code", postalCode)
	var out quoteResponse
	if err := c.do(ctx, http.MethodGet, "/shipping/quote?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out.Quote, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.sessionID != "" {
		req.Header.Set(sessionHeader, c.sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(sessionHeader); sid != "" && c.sessionID == "" {
		c.sessionID = sid
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// statusError rebuilds the server's error classification from the status code and {error} body.
func statusError(code int, raw []byte) error {
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	_ = json.Unmarshal(raw, &body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(code)
	}
	cause := fmt.Errorf("status %d", code)

	switch {
	case code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.Validation(msg, body.Fields)
	case code == http.StatusConflict:
		return apperr.Conflict(msg)
	case code == http.StatusBadGateway:
		return apperr.Gateway(msg, cause)
	case strings.HasPrefix(msg, "Server not configured"):
		return apperr.Configuration(msg)
	default:
		return apperr.Persistence(msg, cause)
	}
}
