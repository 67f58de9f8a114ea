// Package fee computes transfer fees. The rate is an integer basis-point
// value chosen from the sender's share of circulating supply, unless the
// transfer context names a flat override. All arithmetic is integral with
// floor rounding so every node computes the same fee.
package fee

import (
	"braza/internal/ledger/models"
	"braza/internal/ledger/numeric"
	"braza/pkg/domain"
)

// BasisPoints is a fee rate in 1/10,000ths.
type BasisPoints uint64

const bpDenominator = 10_000

// Holding-tier rates, keyed by the sender's share of circulating supply
// before the transfer.
const (
	RateSmallHolder  BasisPoints = 5  // < 0.1% of circulating supply
	RateMediumHolder BasisPoints = 15 // 0.1% – 1%
	RateLargeHolder  BasisPoints = 30 // > 1%
)

// Context overrides. AdminDistribution bypasses the fee entirely.
const (
	RateExchangeToExchange BasisPoints = 10
	RateLocalCommerce      BasisPoints = 5
	RateAdminDistribution  BasisPoints = 0
)

// Tier thresholds as basis points of circulating supply.
const (
	smallHolderShareBp  = 10  // 0.1%
	mediumHolderShareBp = 100 // 1%
)

// Rate returns the basis-point rate for a transfer. The context wins over
// the holding tier when it names a flat rate.
func Rate(senderBalance, circulating domain.Amount, context models.TransferContext) BasisPoints {
	switch context {
	case models.ContextAdminDistribution:
		return RateAdminDistribution
	case models.ContextExchangeToExchange:
		return RateExchangeToExchange
	case models.ContextLocalCommerce:
		return RateLocalCommerce
	}
	return holdingTier(senderBalance, circulating)
}

// holdingTier brackets the sender's pre-transfer share of circulating
// supply. A zero circulating supply (all supply locked) reads as the lowest
// tier.
func holdingTier(senderBalance, circulating domain.Amount) BasisPoints {
	if circulating <= 0 || senderBalance <= 0 {
		return RateSmallHolder
	}
	shareBp, err := numeric.MulDiv(senderBalance, bpDenominator, uint64(circulating))
	if err != nil {
		// Share above any representable bracket: large holder.
		return RateLargeHolder
	}
	switch {
	case shareBp < smallHolderShareBp:
		return RateSmallHolder
	case shareBp <= mediumHolderShareBp:
		return RateMediumHolder
	default:
		return RateLargeHolder
	}
}

// Calculate splits an amount into fee and net using the rate for the given
// sender and context. fee = floor(amount * rate / 10,000).
func Calculate(senderBalance, circulating, amount domain.Amount, context models.TransferContext) (fee, net domain.Amount, err error) {
	rate := Rate(senderBalance, circulating, context)
	if rate == 0 {
		return 0, amount, nil
	}
	fee, err = numeric.MulDiv(amount, uint64(rate), bpDenominator)
	if err != nil {
		return 0, 0, err
	}
	return fee, amount - fee, nil
}
