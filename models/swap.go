package models

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// SwapKind identifies one of the recognized Uniswap V2 router methods.
type SwapKind int

const (
	SwapUnknown SwapKind = iota
	SwapExactETHForTokens
	SwapExactTokensForETH
	SwapExactTokensForTokens
	SwapTokensForExactTokens
	SwapTokensForExactETH
	SwapETHForExactTokens
)

// String returns the router method name for the kind.
func (k SwapKind) String() string {
	switch k {
	case SwapExactETHForTokens:
		return "swapExactETHForTokens"
	case SwapExactTokensForETH:
		return "swapExactTokensForETH"
	case SwapExactTokensForTokens:
		return "swapExactTokensForTokens"
	case SwapTokensForExactTokens:
		return "swapTokensForExactTokens"
	case SwapTokensForExactETH:
		return "swapTokensForExactETH"
	case SwapETHForExactTokens:
		return "swapETHForExactTokens"
	default:
		return "unknown"
	}
}

// Direction is the mirrored trade direction relative to the base asset.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderMode selects which executor entry point handles the order.
type OrderMode int

const (
	// ExactInputEquivalent spends a fixed input amount and accepts a
	// re-quoted minimum output.
	ExactInputEquivalent OrderMode = iota
	// ExactOutputEquivalent targets a fixed output amount and accepts a
	// re-quoted maximum input.
	ExactOutputEquivalent
)

// OrderStatus tracks a mirror order through its lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderConfirmed OrderStatus = "confirmed"
	OrderFailed    OrderStatus = "failed"
)

// CandidateTx is a raw transaction acquired from a transaction source,
// before any decoding. Addresses are lowercase hex with 0x prefix.
type CandidateTx struct {
	Hash  string
	From  string
	To    string
	Input []byte
	Value *big.Int
}

// SwapIntent is the canonical decoded form of one source swap call.
// It is created once by the decoder and never mutated afterwards.
type SwapIntent struct {
	SourceTxHash string
	Kind         SwapKind
	TokenIn      string
	TokenOut     string
	// RawAmount meaning depends on Kind: input amount for exact-input
	// calls, minimum-out or maximum-in for exact-output calls.
	RawAmount    *big.Int
	IsExactInput bool
}

// MirrorOrder is the operator-side action derived from a SwapIntent.
type MirrorOrder struct {
	SourceTxHash string          `json:"source_tx_hash"`
	TokenIn      string          `json:"token_in"`
	TokenOut     string          `json:"token_out"`
	Amount       decimal.Decimal `json:"amount"`
	Direction    Direction       `json:"direction"`
	Mode         OrderMode       `json:"-"`
	Status       OrderStatus     `json:"status"`
	MirrorTxHash string          `json:"mirror_tx_hash,omitempty"`
	FailReason   string          `json:"fail_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Bounds is the static risk configuration applied to every mirrored trade.
type Bounds struct {
	MinAmount             decimal.Decimal
	MaxAmount             decimal.Decimal
	StopBuying            bool
	StopSelling           bool
	BaseAsset             string // lowercase wrapped-native token address
	ConfirmationsRequired int    // 0 disables the confirmation gate
}
