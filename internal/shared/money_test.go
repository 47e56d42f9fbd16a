package shared

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("12500")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(decimal.NewFromInt(12500)) {
		t.Fatalf("got %s", d)
	}

	if _, err := ParseAmount("-1"); err == nil {
		t.Fatal("negative amount accepted")
	}
	if _, err := ParseAmount(""); err == nil {
		t.Fatal("empty amount accepted")
	}
	if _, err := ParseAmount("12.50"); !errors.Is(err, ErrAmountNotInteger) {
		t.Fatalf("fractional amount: got %v", err)
	}
	if _, err := ParseAmount("abc"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestParseSignedAmount(t *testing.T) {
	d, err := ParseSignedAmount("-300")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(decimal.NewFromInt(-300)) {
		t.Fatalf("got %s", d)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.NewFromInt(-200)); got != "-200" {
		t.Fatalf("got %q", got)
	}
	if got := FormatAmount(decimal.Zero); got != "0" {
		t.Fatalf("got %q", got)
	}
}
