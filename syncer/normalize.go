// Package syncer implements the trade-mirroring pipeline: transaction
// sources, amount policy, confirmation gating and the coordinator that
// wires them to the executor.
package syncer

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// Normalize converts a raw integer token amount into a decimal quantity
// by dividing through the token's precision.
func Normalize(raw *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// Clamp squeezes a normalized amount into the configured bounds. The
// policy is deliberately asymmetric: amounts at or above the ceiling are
// capped to it, amounts at or below the floor are dropped to zero (dust
// filter), and everything strictly between passes through unchanged.
func Clamp(amount decimal.Decimal, bounds models.Bounds) decimal.Decimal {
	if amount.GreaterThanOrEqual(bounds.MaxAmount) {
		return bounds.MaxAmount
	}
	if amount.LessThanOrEqual(bounds.MinAmount) {
		return decimal.Zero
	}
	return amount
}
