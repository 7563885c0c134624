package ledger

import (
	"errors"
	"testing"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
)

func TestAmountFromDecimal_Bounds(t *testing.T) {
	a, err := AmountFromDecimal(decimal.MustParse("1000000000000"))
	if err != nil {
		t.Fatalf("max amount rejected: %v", err)
	}
	if MustMinor(a) != 100_000_000_000_000 {
		t.Fatalf("expected max in cents, got %d", MustMinor(a))
	}
	_, err = AmountFromDecimal(decimal.MustParse("1000000000000.01"))
	if !errors.Is(err, ErrAmountRange) || !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid range error, got %v", err)
	}
	if _, err := AmountFromDecimal(decimal.MustParse("100000000000000000")); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid for 1e17, got %v", err)
	}
}

func TestMinor_Overflow(t *testing.T) {
	huge, err := money.NewAmountFromDecimal(money.USD, decimal.MustParse("99999999999999999.99"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := Minor(huge); !errors.Is(err, ErrAmountRange) {
		t.Fatalf("expected ErrAmountRange, got %v", err)
	}
	units, err := Minor(AmountFromMinor(-1250))
	if err != nil || units != -1250 {
		t.Fatalf("expected -1250, got %d (%v)", units, err)
	}
}

func TestWithin(t *testing.T) {
	if !Within(AmountFromMinor(-100), AmountFromMinor(100)) {
		t.Fatalf("expected |-1.00| within 1.00")
	}
	if Within(AmountFromMinor(101), AmountFromMinor(100)) {
		t.Fatalf("expected 1.01 outside 1.00")
	}
}
