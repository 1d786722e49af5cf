package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses
const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Item is a cart line as it was at checkout time.
type Item = cart.LineItem

// Shipping is the destination and money breakdown captured with an order.
type Shipping struct {
	Address               string          `json:"address"`
	City                  string          `json:"city"`
	State                 string          `json:"state"`
	PostalCode            string          `json:"postal_code"`
	NormalizedDestination string          `json:"normalized_destination"`
	ShippingFee           decimal.Decimal `json:"shipping_fee"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	Total                 decimal.Decimal `json:"total"`
}

// Order is a row of the orders table. Shipping columns are only populated when the schema has them.
type Order struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Reference   string          `json:"reference,omitempty"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	// Products is the serialized snapshot: an item array, or {items, shipping} for degraded rows.
	Products           string           `json:"products"`
	Shipping           json.RawMessage  `json:"shipping,omitempty"`
	ShippingAddress    *string          `json:"shipping_address,omitempty"`
	ShippingCity       *string          `json:"shipping_city,omitempty"`
	ShippingState      *string          `json:"shipping_state,omitempty"`
	ShippingPostalCode *string          `json:"shipping_postal_code,omitempty"`
	ShippingFee        *decimal.Decimal `json:"shipping_fee,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Details is an order with its snapshot decoded, whichever layout it was stored in.
type Details struct {
	Order    *Order    `json:"order"`
	Items    []Item    `json:"items"`
	Shipping *Shipping `json:"shipping,omitempty"`
}
