package syncer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// Reject reasons reported when no order is created. They are signals,
// not errors: the coordinator logs them and moves on.
const (
	RejectDust        = "amount too small"
	RejectWrongLeg    = "neither leg touches the base asset"
	RejectStopBuying  = "the bot is restricted from buying"
	RejectStopSelling = "the bot is restricted from selling"
)

// Policy decides whether and how a decoded intent becomes a mirror
// order.
type Policy struct {
	bounds models.Bounds
}

// NewPolicy creates a policy over the configured bounds.
func NewPolicy(bounds models.Bounds) *Policy {
	return &Policy{bounds: bounds}
}

// Decide derives the mirror order for an intent and its clamped amount.
// A nil order is accompanied by the reject reason.
func (p *Policy) Decide(intent *models.SwapIntent, clamped decimal.Decimal) (*models.MirrorOrder, string) {
	if clamped.IsZero() {
		return nil, RejectDust
	}

	var direction models.Direction
	switch {
	case intent.TokenIn == p.bounds.BaseAsset:
		direction = models.DirectionBuy
	case intent.TokenOut == p.bounds.BaseAsset:
		direction = models.DirectionSell
	default:
		return nil, RejectWrongLeg
	}

	if direction == models.DirectionBuy && p.bounds.StopBuying {
		return nil, RejectStopBuying
	}
	if direction == models.DirectionSell && p.bounds.StopSelling {
		return nil, RejectStopSelling
	}

	// The mirrored order takes the opposite economic role from the
	// source call and is re-quoted independently: buys spend a fixed
	// base amount, sells target a fixed base amount out.
	mode := models.ExactInputEquivalent
	if direction == models.DirectionSell {
		mode = models.ExactOutputEquivalent
	}

	return &models.MirrorOrder{
		SourceTxHash: intent.SourceTxHash,
		TokenIn:      intent.TokenIn,
		TokenOut:     intent.TokenOut,
		Amount:       clamped,
		Direction:    direction,
		Mode:         mode,
		Status:       models.OrderPending,
		CreatedAt:    time.Now(),
	}, ""
}

// AmountToken returns the address of the token that denominates the
// intent's raw amount: the input leg for exact-input calls and for
// maximum-in amounts, the output leg for minimum-out amounts.
func AmountToken(intent *models.SwapIntent, baseAsset string) string {
	if intent.IsExactInput {
		return intent.TokenIn
	}
	if intent.TokenIn == baseAsset {
		return intent.TokenIn
	}
	return intent.TokenOut
}
