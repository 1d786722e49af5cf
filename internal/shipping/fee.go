package shipping

import (
	"strings"

	"github.com/shopspring/decimal"
)

var baseFees = map[Destination]decimal.Decimal{
	DestinationLagos:         decimal.NewFromInt(1500),
	DestinationAbuja:         decimal.NewFromInt(2000),
	DestinationNationwide:    decimal.NewFromInt(2500),
	DestinationInternational: decimal.NewFromInt(15000),
}

// zoneDiscount lowers the fee for postal codes starting with prefix inside a destination.
type zoneDiscount struct {
	destination Destination
	prefix      string
	fee         decimal.Decimal
}

var zoneDiscounts = []zoneDiscount{
	{DestinationLagos, "10", decimal.NewFromInt(1200)},
	{DestinationAbuja, "90", decimal.NewFromInt(1800)},
}

// ComputeFee prices a destination. Unknown destinations cost 0.
func ComputeFee(destination Destination, postalCode string) decimal.Decimal {
	base, ok := baseFees[destination]
	if !ok {
		return decimal.Zero
	}
	postalCode = strings.TrimSpace(postalCode)
	for _, z := range zoneDiscounts {
		if z.destination == destination && postalCode != "" && strings.HasPrefix(postalCode, z.prefix) {
			return z.fee
		}
	}
	return base
}

// Quote is a derived, never-persisted price for an address.
type Quote struct {
	Destination Destination     `json:"destination"`
	PostalCode  string          `json:"postal_code,omitempty"`
	Fee         decimal.Decimal `json:"fee"`
}

// QuoteFor normalizes the address fields and prices the result.
func QuoteFor(stateRegion, city, postalCode string) Quote {
	d := Normalize(stateRegion, city)
	return Quote{
		Destination: d,
		PostalCode:  strings.TrimSpace(postalCode),
		Fee:         ComputeFee(d, postalCode),
	}
}
