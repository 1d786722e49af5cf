package shipping

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		state, city string
		want        Destination
	}{
		{"Lagos State", "", DestinationLagos},
		{"", "Unknown Town", DestinationNationwide},
		{"", "", DestinationUnknown},
		{"   ", "\t", DestinationUnknown},
		{"International Shipping", "Lagos", DestinationInternational},
		{"Lagos Nationwide Office", "", DestinationLagos},
		{"  ABUJA FCT ", "", DestinationAbuja},
		{"", "Abuja", DestinationAbuja},
		{"Nationwide", "", DestinationNationwide},
		{"Rivers", "Lagos", DestinationNationwide},
	}
	for _, tc := range cases {
		if got := Normalize(tc.state, tc.city); got != tc.want {
			t.Errorf("Normalize(%q, %q) = %q, want %q", tc.state, tc.city, got, tc.want)
		}
	}
}

func TestComputeFee(t *testing.T) {
	cases := []struct {
		dest   Destination
		postal string
		want   int64
	}{
		{DestinationLagos, "100211", 1200},
		{DestinationLagos, "234000", 1500},
		{DestinationLagos, "", 1500},
		{DestinationAbuja, "900123", 1800},
		{DestinationAbuja, "100001", 2000},
		{DestinationNationwide, "100211", 2500},
		{DestinationNationwide, "", 2500},
		{DestinationInternational, "SW1A", 15000},
		{Destination("unknown-bucket"), "100211", 0},
		{DestinationUnknown, "", 0},
	}
	for _, tc := range cases {
		got := ComputeFee(tc.dest, tc.postal)
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Errorf("ComputeFee(%q, %q) = %s, want %d", tc.dest, tc.postal, got, tc.want)
		}
	}
}

func TestComputeFee_IsPure(t *testing.T) {
	first := ComputeFee(DestinationLagos, "100211")
	for i := 0; i < 5; i++ {
		if !ComputeFee(DestinationLagos, "100211").Equal(first) {
			t.Fatal("fee changed between identical calls")
		}
	}
}

func TestQuoteFor(t *testing.T) {
	q := QuoteFor("Lagos", "Ikeja", " 100211 ")
	if q.Destination != DestinationLagos || q.PostalCode != "100211" || !q.Fee.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected quote %+v", q)
	}
	if Destination("mars").Known() {
		t.Fatal("mars must not be a known destination")
	}
	if !DestinationAbuja.Known() {
		t.Fatal("abuja must be known")
	}
}
