package market

import (
	"math"

	"github.com/holiman/uint256"
)

const (
	// Scale is the fixed-point base used by the borrow index.
	Scale uint64 = 1_000_000_000_000 // 1e12

	basisPoints    uint64 = 10_000
	secondsPerYear uint64 = 31_536_000

	// maxDecimals bounds the asset decimal configuration accepted by the
	// conversion helpers. 10^18 still fits in a uint64.
	maxDecimals uint32 = 18
)

// mulDiv computes a*b/c with the product carried in 256-bit arithmetic so the
// intermediate value never truncates. The narrowed result must fit back into
// a uint64.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	product.Div(product, uint256.NewInt(c))
	if !product.IsUint64() {
		return 0, ErrAmountOverflow
	}
	return product.Uint64(), nil
}

// addChecked returns a+b or ErrAmountOverflow when the sum wraps.
func addChecked(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// subSat returns a-b, saturating at zero. Aggregate counters tolerate
// cross-loan rounding drift this way instead of underflowing.
func subSat(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// subChecked returns a-b and fails closed on underflow. Used where an
// underflow would indicate ledger corruption rather than rounding drift.
func subChecked(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrAmountOverflow
	}
	return a - b, nil
}

func pow10(decimals uint32) (uint64, error) {
	if decimals > maxDecimals {
		return 0, ErrInvalidDecimals
	}
	out := uint64(1)
	for i := uint32(0); i < decimals; i++ {
		out *= 10
	}
	return out, nil
}

func minUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
