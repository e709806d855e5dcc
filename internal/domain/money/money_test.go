package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	cases := map[string]Money{
		"0":        0,
		"5000":     500000,
		"1234.56":  123456,
		"0.5":      50,
		"-12.30":   -1230,
		" 168600 ": 16860000,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %d, got %d", raw, want, got)
		}
	}
}

func TestParseRejectsFractionalCents(t *testing.T) {
	if _, err := Parse("1.005"); err == nil {
		t.Fatal("expected error for fractional cents")
	}
	if _, err := Parse("abc"); err == nil {
		t.Fatal("expected error for malformed amount")
	}
}

func TestRoundingPolicies(t *testing.T) {
	half := decimal.RequireFromString("2.345")
	if got := HalfUp.Round(half); got != 235 {
		t.Fatalf("expected half-up 235, got %d", got)
	}
	if got := HalfEven.Round(half); got != 234 {
		t.Fatalf("expected half-even 234, got %d", got)
	}
	if got := Down.Round(decimal.RequireFromString("2.349")); got != 234 {
		t.Fatalf("expected truncation 234, got %d", got)
	}
	if got := HalfUp.Round(decimal.RequireFromString("-2.345")); got != -235 {
		t.Fatalf("expected half-up away from zero -235, got %d", got)
	}
}

func TestMulRate(t *testing.T) {
	gross := Dollars(5000)
	if got := gross.MulRate(Rate("0.062"), HalfUp); got != MustParse("310.00") {
		t.Fatalf("expected 310.00, got %s", got)
	}
	if got := gross.MulRate(Rate("0.0145"), HalfUp); got != MustParse("72.50") {
		t.Fatalf("expected 72.50, got %s", got)
	}
}

func TestDiv(t *testing.T) {
	annual := Dollars(52000)
	if got := annual.Div(26, HalfUp); got != Dollars(2000) {
		t.Fatalf("expected 2000.00, got %s", got)
	}
	if got := Dollars(100).Div(3, HalfUp); got != MustParse("33.33") {
		t.Fatalf("expected 33.33, got %s", got)
	}
	if got := Dollars(100).Div(0, HalfUp); got != 0 {
		t.Fatalf("expected zero for division by zero, got %s", got)
	}
}

func TestJSONRoundTripKeepsCents(t *testing.T) {
	payload, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: MustParse("1234.05")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != `{"amount":"1234.05"}` {
		t.Fatalf("unexpected payload %s", payload)
	}

	var decoded struct {
		Amount Money `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount": 99.1}`), &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Amount != 9910 {
		t.Fatalf("expected 9910 cents, got %d", decoded.Amount)
	}
}

func TestParseRoundingPolicy(t *testing.T) {
	if p, err := ParseRoundingPolicy("half_even"); err != nil || p != HalfEven {
		t.Fatalf("expected half_even, got %v %v", p, err)
	}
	if p, err := ParseRoundingPolicy(""); err != nil || p != HalfUp {
		t.Fatalf("expected default half_up, got %v %v", p, err)
	}
	if _, err := ParseRoundingPolicy("ceiling"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
