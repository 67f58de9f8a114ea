package domain

import (
	"fmt"
	"math"
	"strconv"

	dErrors "braza/pkg/domain-errors"
)

// Amount is a token quantity in bra, the smallest indivisible unit.
// Amounts are always non-negative in stored state; the signed representation
// exists so checked arithmetic can detect underflow instead of wrapping.
type Amount int64

const (
	// BraPerToken is the number of bra in one whole token (decimals = 7).
	BraPerToken Amount = 10_000_000

	// Decimals is the token's display precision.
	Decimals uint32 = 7

	// MaxSupply is the immutable supply cap: 21,000,000 whole tokens.
	MaxSupply Amount = 21_000_000 * BraPerToken

	// InitialSupply is minted to the admin at initialization.
	InitialSupply Amount = 10_000_000 * BraPerToken
)

// ParseAmount parses a base-10 bra amount, rejecting negatives.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount: %w", err)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative")
	}
	return Amount(v), nil
}

// CheckedAdd returns a + b, failing with ArithmeticOverflow on signed
// overflow.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, dErrors.New(dErrors.CodeArithmeticOverflow, "amount addition overflows")
	}
	return sum, nil
}

// CheckedSub returns a - b, failing if the result would be negative. Ledger
// quantities are never negative, so crossing zero is underflow here even
// though int64 could represent it.
func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if b > a {
		return 0, dErrors.New(dErrors.CodeArithmeticUnderflow, "amount subtraction underflows")
	}
	return a - b, nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a > 0
}

// Int64 returns the raw bra value.
func (a Amount) Int64() int64 {
	return int64(a)
}

// String formats the amount in bra.
func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// MaxAmount is the largest representable amount, used as the "unlimited"
// daily cap.
const MaxAmount Amount = math.MaxInt64
