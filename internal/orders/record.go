package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Draft is the data for an order about to be inserted.
type Draft struct {
	UserID      string
	Reference   string
	Status      Status
	TotalAmount decimal.Decimal
	Items       []Item
	Shipping    Shipping
}

// Record is the insert shape chosen for the current schema: RichRecord or DegradedRecord.
type Record interface {
	draft() *Draft
	products() (string, error)
}

// RichRecord writes shipping into dedicated columns.
type RichRecord struct{ Draft }

// DegradedRecord folds shipping into the products blob for schemas without shipping columns.
type DegradedRecord struct{ Draft }

func (r RichRecord) draft() *Draft     { return &r.Draft }
func (r DegradedRecord) draft() *Draft { return &r.Draft }

func (r RichRecord) products() (string, error) {
	items := r.Items
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal products: %w", err)
	}
	return string(b), nil
}

type degradedBlob struct {
	Items    []Item   `json:"items"`
	Shipping Shipping `json:"shipping"`
}

func (r DegradedRecord) products() (string, error) {
	items := r.Items
	if items == nil {
		items = []Item{}
	}
	b, err := json.Marshal(degradedBlob{Items: items, Shipping: r.Shipping})
	if err != nil {
		return "", fmt.Errorf("marshal products: %w", err)
	}
	return string(b), nil
}

// NewRecord picks the record variant the capabilities allow.
func NewRecord(caps Capabilities, d Draft) Record {
	if caps.Shipping {
		return RichRecord{Draft: d}
	}
	return DegradedRecord{Draft: d}
}

// ParseProducts decodes a products blob in either layout. An empty blob yields no items.
func ParseProducts(blob string) ([]Item, *Shipping, error) {
	trimmed := bytes.TrimSpace([]byte(blob))
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []Item{}, nil, nil
	}
	switch trimmed[0] {
	case '[':
		var items []Item
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, nil, fmt.Errorf("decode item list: %w", err)
		}
		return items, nil, nil
	case '{':
		var wrapped struct {
			Items    []Item    `json:"items"`
			Shipping *Shipping `json:"shipping"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, nil, fmt.Errorf("decode wrapped products: %w", err)
		}
		if wrapped.Items == nil {
			wrapped.Items = []Item{}
		}
		return wrapped.Items, wrapped.Shipping, nil
	default:
		return nil, nil, errors.New("unrecognised products layout")
	}
}

// Details decodes the snapshot. Structured shipping columns win over the blob's copy.
func (o *Order) Details() (*Details, error) {
	items, shipping, err := ParseProducts(o.Products)
	if err != nil {
		return nil, err
	}
	if len(o.Shipping) > 0 && string(o.Shipping) != "null" {
		var s Shipping
		if err := json.Unmarshal(o.Shipping, &s); err == nil {
			shipping = &s
		}
	}
	if shipping == nil && o.ShippingAddress != nil {
		shipping = &Shipping{
			Address:    deref(o.ShippingAddress),
			City:       deref(o.ShippingCity),
			State:      deref(o.ShippingState),
			PostalCode: deref(o.ShippingPostalCode),
			Total:      o.TotalAmount,
		}
		if o.ShippingFee != nil {
			shipping.ShippingFee = *o.ShippingFee
			shipping.Subtotal = o.TotalAmount.Sub(*o.ShippingFee)
		}
	}
	return &Details{Order: o, Items: items, Shipping: shipping}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
