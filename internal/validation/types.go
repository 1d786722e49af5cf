package validation

import (
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
)

// VerifyRequest is the payload for POST /checkout/verify.
type VerifyRequest struct {
	Reference             string          `json:"reference"`
	UserID                string          `json:"user_id"`
	Total                 decimal.Decimal `json:"total" validate:"gte=0"`
	Subtotal              decimal.Decimal `json:"subtotal" validate:"gte=0"`
	ShippingFee           decimal.Decimal `json:"shipping_fee" validate:"gte=0"`
	Items                 []cart.LineItem `json:"items" validate:"dive"`
	Address               string          `json:"address"`
	Destination           string          `json:"destination"`
	NormalizedDestination string          `json:"normalized_destination"`
	PostalCode            string          `json:"postal_code"`
	City                  string          `json:"city"`
	StateRegion           string          `json:"stateRegion"`
	// ShippingCity and ShippingState override City and StateRegion when set.
	ShippingCity  string `json:"shippingCity,omitempty"`
	ShippingState string `json:"shippingState,omitempty"`
}

// CheckoutAddress is what the buyer types before paying.
type CheckoutAddress struct {
	Line1       string `json:"line1" validate:"required,min=8"`
	City        string `json:"city"`
	StateRegion string `json:"stateRegion" validate:"required"`
	PostalCode  string `json:"postal_code"`
}

// AddItemRequest is the payload for POST /cart/items.
type AddItemRequest struct {
	ID         string          `json:"id" validate:"required"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price" validate:"gte=0"`
	ImageURL   string          `json:"image_url"`
	CategoryID string          `json:"categories_id"`
}

// UpdateQuantityRequest is the payload for PATCH /cart/items/:product_id. Negative values clamp to 0.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}
