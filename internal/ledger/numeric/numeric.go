// Package numeric provides overflow-proof integer arithmetic for amounts.
// Products of an amount and a sequence delta (vesting interpolation) or a
// basis-point rate (fees) can exceed 64 bits near the supply cap, so the
// intermediate runs through a 256-bit integer and only the final quotient is
// narrowed back.
package numeric

import (
	"github.com/holiman/uint256"

	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
)

// MulDiv computes floor(a * num / den) without intermediate overflow.
// Returns CodeArithmeticOverflow if the quotient does not fit an Amount and
// CodeInvalidArgument for a zero divisor.
func MulDiv(a domain.Amount, num, den uint64) (domain.Amount, error) {
	if den == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, "division by zero")
	}
	if a < 0 {
		return 0, dErrors.New(dErrors.CodeArithmeticUnderflow, "negative amount")
	}

	product := new(uint256.Int).Mul(
		uint256.NewInt(uint64(a)),
		uint256.NewInt(num),
	)
	quotient := product.Div(product, uint256.NewInt(den))

	if !quotient.IsUint64() || quotient.Uint64() > uint64(domain.MaxAmount) {
		return 0, dErrors.New(dErrors.CodeArithmeticOverflow, "quotient exceeds amount range")
	}
	return domain.Amount(quotient.Uint64()), nil
}
