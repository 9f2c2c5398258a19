package market

import (
	"errors"
	"math"
	"testing"
)

func TestMulDivWideIntermediate(t *testing.T) {
	// The intermediate product overflows uint64 but the quotient fits.
	got, err := mulDiv(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	if got != math.MaxUint64 {
		t.Fatalf("got %d, want MaxUint64", got)
	}

	got, err = mulDiv(1_000_000_000_000, 1_000_000_000_000, 2_000_000_000_000)
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	if got != 500_000_000_000 {
		t.Fatalf("got %d, want 500000000000", got)
	}
}

func TestMulDivErrors(t *testing.T) {
	if _, err := mulDiv(1, 1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("zero divisor: got %v, want ErrDivisionByZero", err)
	}
	if _, err := mulDiv(math.MaxUint64, math.MaxUint64, 1); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("oversized quotient: got %v, want ErrAmountOverflow", err)
	}
}

func TestMulDivRoundsDown(t *testing.T) {
	got, err := mulDiv(7, 3, 2)
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	if got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
}

func TestAddChecked(t *testing.T) {
	if got, err := addChecked(1, 2); err != nil || got != 3 {
		t.Fatalf("addChecked(1,2) = (%d, %v)", got, err)
	}
	if _, err := addChecked(math.MaxUint64, 1); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("wrap: got %v, want ErrAmountOverflow", err)
	}
}

func TestSubVariants(t *testing.T) {
	if got := subSat(5, 7); got != 0 {
		t.Fatalf("subSat(5,7) = %d, want 0", got)
	}
	if got := subSat(7, 5); got != 2 {
		t.Fatalf("subSat(7,5) = %d, want 2", got)
	}
	if _, err := subChecked(5, 7); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("subChecked underflow: got %v, want ErrAmountOverflow", err)
	}
	if got, err := subChecked(7, 5); err != nil || got != 2 {
		t.Fatalf("subChecked(7,5) = (%d, %v)", got, err)
	}
}

func TestPow10Bounds(t *testing.T) {
	if got, err := pow10(0); err != nil || got != 1 {
		t.Fatalf("pow10(0) = (%d, %v)", got, err)
	}
	if got, err := pow10(18); err != nil || got != 1_000_000_000_000_000_000 {
		t.Fatalf("pow10(18) = (%d, %v)", got, err)
	}
	if _, err := pow10(19); !errors.Is(err, ErrInvalidDecimals) {
		t.Fatalf("pow10(19): got %v, want ErrInvalidDecimals", err)
	}
}

func TestLiveDebtDerivation(t *testing.T) {
	loan := &LoanRecord{Principal: 100_000, UserIndex: Scale}
	if got, err := liveDebt(loan, Scale); err != nil || got != 100_000 {
		t.Fatalf("unchanged index: (%d, %v)", got, err)
	}
	if got, err := liveDebt(loan, Scale+Scale/2); err != nil || got != 150_000 {
		t.Fatalf("grown index: (%d, %v)", got, err)
	}
	// Rounds down.
	loan = &LoanRecord{Principal: 3, UserIndex: Scale}
	if got, err := liveDebt(loan, Scale+Scale/2); err != nil || got != 4 {
		t.Fatalf("rounding: (%d, %v)", got, err)
	}
	if got, err := liveDebt(nil, Scale); err != nil || got != 0 {
		t.Fatalf("nil loan: (%d, %v)", got, err)
	}
}
