package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// RatioDenominator is the denominator of ratios expressed in basis points.
const RatioDenominator = 10000

var ErrInvalidAmount = errors.New("invalid amount")

// Ether returns n * 10^18 (wei).
func Ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

// ParseAmount parses decimal (or 0x prefixed hex) string into amount.
func ParseAmount(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return v, nil
}

// MulRatio returns x * ratio / denom rounded down. The intermediate product
// is computed in 512 bits so it never overflows.
func MulRatio(x *uint256.Int, ratio, denom uint64) *uint256.Int {
	if x == nil || ratio == 0 {
		return uint256.NewInt(0)
	}
	z, _ := new(uint256.Int).MulDivOverflow(x, uint256.NewInt(ratio), uint256.NewInt(denom))
	return z
}

// SubSat returns max(a - b, 0).
func SubSat(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(a, b)
}

// Min returns copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return a.Clone()
	}
	return b.Clone()
}

// AmountOrZero returns a copy of v or zero when v is nil.
func AmountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return v.Clone()
}
