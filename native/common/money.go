package common

import (
	"errors"
	"math/big"
)

// ErrOverflow is returned by the checked arithmetic helpers when an amount
// would exceed MaxAmount, or when a negative operand is supplied to an
// operation defined only over non-negative amounts.
var ErrOverflow = errors.New("amount exceeds representable range")

// ErrNonPositiveAmount is returned when an amount that must be strictly
// positive is zero or negative.
var ErrNonPositiveAmount = errors.New("amount must be positive")

// BasisPointsDenominator is the scale for basis-point rates: 10 000 bps = 100%.
var BasisPointsDenominator = big.NewInt(10_000)

// MaxAmount bounds every fixed-point monetary value handled by the Vault and
// Property engines. big.Int itself cannot silently wrap on overflow the way
// a fixed-width machine word can, so "Overflow" is defined here as "exceeds
// this ceiling" rather than as wraparound — any accumulation that would
// cross it is rejected before it is applied.
var MaxAmount = func() *big.Int {
	v, ok := new(big.Int).SetString("1000000000000000000000000000000", 10) // 1e30
	if !ok {
		panic("common: invalid MaxAmount constant")
	}
	return v
}()

func checkBounds(v *big.Int) error {
	if v == nil {
		return ErrOverflow
	}
	if v.Sign() < 0 {
		return ErrOverflow
	}
	if v.Cmp(MaxAmount) > 0 {
		return ErrOverflow
	}
	return nil
}

// RequirePositive validates that amount is a non-nil, strictly positive,
// in-bounds fixed-point value.
func RequirePositive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}
	if amount.Cmp(MaxAmount) > 0 {
		return ErrOverflow
	}
	return nil
}

// CheckedAdd returns a+b, rejecting the result if it would exceed MaxAmount.
func CheckedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if err := checkBounds(sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// CheckedSub returns a-b, rejecting the result if it would go negative.
func CheckedSub(a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(a, b)
	if err := checkBounds(diff); err != nil {
		return nil, err
	}
	return diff, nil
}

// MulDivFloor computes floor(a*b/d), used for every basis-point and
// fixed-point scaling computation in this codebase. Division truncates
// toward zero, matching the spec's "integer, truncating toward zero"
// requirement for non-negative operands.
func MulDivFloor(a, b, d *big.Int) (*big.Int, error) {
	if d == nil || d.Sign() == 0 {
		return nil, errors.New("common: division by zero")
	}
	product := new(big.Int).Mul(a, b)
	if err := checkBounds(product); err != nil {
		return nil, err
	}
	result := new(big.Int).Quo(product, d)
	return result, nil
}

// BpsOf computes floor(amount * bps / 10_000).
func BpsOf(amount *big.Int, bps uint64) (*big.Int, error) {
	return MulDivFloor(amount, new(big.Int).SetUint64(bps), BasisPointsDenominator)
}
