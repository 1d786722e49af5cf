// Package shipping classifies free-text addresses into fee zones and prices them.
package shipping

import "strings"

// Destination is a shipping-fee zone.
type Destination string

const (
	DestinationUnknown       Destination = ""
	DestinationLagos         Destination = "lagos"
	DestinationAbuja         Destination = "abuja"
	DestinationNationwide    Destination = "nationwide"
	DestinationInternational Destination = "international"
)

// matchOrder is the substring priority; the first hit wins, not the most specific one.
var matchOrder = []Destination{
	DestinationInternational,
	DestinationLagos,
	DestinationAbuja,
	DestinationNationwide,
}

// Normalize maps a state/region (preferred) or city to a destination. Any other non-empty
// input is nationwide; empty input yields DestinationUnknown and must block checkout.
func Normalize(stateRegion, city string) Destination {
	raw := stateRegion
	if strings.TrimSpace(raw) == "" {
		raw = city
	}
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return DestinationUnknown
	}
	for _, d := range matchOrder {
		if strings.Contains(v, string(d)) {
			return d
		}
	}
	return DestinationNationwide
}

// Known reports whether d is one of the priced zones.
func (d Destination) Known() bool {
	_, ok := baseFees[d]
	return ok
}
