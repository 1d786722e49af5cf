// Package cart implements the per-owner line-item collection and its persistence.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"
)

// LineItem is one product in a cart. Quantity is always >= 1 once stored.
type LineItem struct {
	ProductID  string          `json:"id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"price"`
	ImageRef   string          `json:"image_url,omitempty"`
	CategoryID string          `json:"categories_id,omitempty"`
	Quantity   int             `json:"quantity"`
}

// Cart is an ordered collection with at most one line per product.
type Cart struct {
	Items []LineItem `json:"items"`
}

// New returns a cart holding a copy of items.
func New(items []LineItem) *Cart {
	c := &Cart{Items: make([]LineItem, 0, len(items))}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		if i := c.index(it.ProductID); i >= 0 {
			c.Items[i].Quantity += it.Quantity
			continue
		}
		c.Items = append(c.Items, it)
	}
	return c
}

func (c *Cart) index(productID string) int {
	return slices.IndexFunc(c.Items, func(it LineItem) bool { return it.ProductID == productID })
}

// Line returns the line for productID.
func (c *Cart) Line(productID string) (LineItem, bool) {
	if i := c.index(productID); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}

// AddItem increments an existing line by one, ignoring the other payload fields, or appends
// the item with quantity 1.
func (c *Cart) AddItem(item LineItem) {
	if i := c.index(item.ProductID); i >= 0 {
		c.Items[i].Quantity++
		return
	}
	item.Quantity = 1
	c.Items = append(c.Items, item)
}

// RemoveItem deletes the line; absent ids are a no-op.
func (c *Cart) RemoveItem(productID string) {
	c.Items = slices.DeleteFunc(c.Items, func(it LineItem) bool { return it.ProductID == productID })
}

// UpdateQuantity sets the quantity, clamped at 0. A resulting 0 drops the line.
func (c *Cart) UpdateQuantity(productID string, quantity int) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	if quantity <= 0 {
		c.RemoveItem(productID)
		return
	}
	c.Items[i].Quantity = quantity
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []LineItem{}
}

// Total is the sum of unit price times quantity. Negative prices count as 0.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		if it.UnitPrice.IsNegative() {
			continue
		}
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ItemCount is the sum of quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	return &Cart{Items: slices.Clone(c.Items)}
}
