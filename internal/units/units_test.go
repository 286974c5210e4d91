package units

import (
	"errors"
	"testing"

	"github.com/atmx/dividend-exchange/internal/num"
)

func TestToBase(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint
		want     string
	}{
		{"0.0000001", 18, "100000000000"},
		{"0.00000001", 18, "10000000000"},
		{"1", 0, "1"},
		{"1.5", 1, "15"},
		{"42", 6, "42000000"},
		{"0", 18, "0"},
	}
	for _, tt := range tests {
		got, err := ToBase(tt.in, tt.decimals)
		if err != nil {
			t.Fatalf("ToBase(%q, %d): %v", tt.in, tt.decimals, err)
		}
		if got.String() != tt.want {
			t.Errorf("ToBase(%q, %d) = %s, want %s", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestToBase_Rejects(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint
		want     error
	}{
		{"-1", 0, ErrNegative},
		{"0.123", 2, ErrPrecision},
		{"1e80", 0, ErrRange},
	}
	for _, tt := range tests {
		_, err := ToBase(tt.in, tt.decimals)
		if !errors.Is(err, tt.want) {
			t.Errorf("ToBase(%q, %d) error = %v, want %v", tt.in, tt.decimals, err, tt.want)
		}
	}
	if _, err := ToBase("ten", 0); err == nil {
		t.Error("expected parse error")
	}
}

func TestFormat(t *testing.T) {
	if got := Format(num.MustUint("100000000000"), 18); got != "0.0000001" {
		t.Errorf("Format = %s", got)
	}
	if got := Format(num.MustUint("1500"), 3); got != "1.5" {
		t.Errorf("Format = %s", got)
	}
	if got := Format(num.NewUint(7), 0); got != "7" {
		t.Errorf("Format = %s", got)
	}
}

func TestRoundTrip(t *testing.T) {
	u := num.MustUint("123456789012345678901234567890")
	back, err := FromDecimal(ToDisplay(u, 18), 18)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Eq(u) {
		t.Errorf("round trip = %s, want %s", back, u)
	}
}
