package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// swapKindByMethod maps router method names to the closed SwapKind set.
// A method missing here is a decode miss, never a silent misdispatch.
var swapKindByMethod = map[string]models.SwapKind{
	"swapExactETHForTokens":    models.SwapExactETHForTokens,
	"swapExactTokensForETH":    models.SwapExactTokensForETH,
	"swapExactTokensForTokens": models.SwapExactTokensForTokens,
	"swapTokensForExactTokens": models.SwapTokensForExactTokens,
	"swapTokensForExactETH":    models.SwapTokensForExactETH,
	"swapETHForExactTokens":    models.SwapETHForExactTokens,
}

// Decoder maps raw router call data to canonical swap intents.
type Decoder struct {
	baseAsset string // lowercase wrapped-native token address
}

// NewDecoder creates a decoder that substitutes baseAsset for implicit
// ETH legs.
func NewDecoder(baseAsset string) *Decoder {
	return &Decoder{baseAsset: strings.ToLower(baseAsset)}
}

// Decode extracts a SwapIntent from a candidate transaction. A nil intent
// with nil error means the call data is not one of the recognized swap
// shapes; that is a no-op signal, not a failure.
func (d *Decoder) Decode(tx models.CandidateTx) (*models.SwapIntent, error) {
	if len(tx.Input) < 4 {
		return nil, nil
	}

	method, err := routerABI.MethodById(tx.Input[:4])
	if err != nil {
		return nil, nil
	}
	kind, ok := swapKindByMethod[method.Name]
	if !ok {
		return nil, nil
	}

	args, err := method.Inputs.Unpack(tx.Input[4:])
	if err != nil {
		return nil, fmt.Errorf("decode %s in tx %s: %w", method.Name, tx.Hash, err)
	}

	path, err := pathArg(method, args)
	if err != nil {
		return nil, fmt.Errorf("decode %s in tx %s: %w", method.Name, tx.Hash, err)
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("decode %s in tx %s: path has %d hops", method.Name, tx.Hash, len(path))
	}

	intent := &models.SwapIntent{
		SourceTxHash: tx.Hash,
		Kind:         kind,
		TokenIn:      strings.ToLower(path[0].Hex()),
		TokenOut:     strings.ToLower(path[len(path)-1].Hex()),
	}

	switch kind {
	case models.SwapExactETHForTokens:
		// ETH leg is implicit; the spent amount is the tx value.
		intent.TokenIn = d.baseAsset
		intent.RawAmount = tx.Value
		intent.IsExactInput = true

	case models.SwapExactTokensForETH:
		intent.TokenOut = d.baseAsset
		intent.RawAmount = uintArg(args, 1) // amountOutMin
		intent.IsExactInput = false

	case models.SwapExactTokensForTokens:
		if intent.TokenIn == d.baseAsset {
			intent.RawAmount = uintArg(args, 0) // amountIn
			intent.IsExactInput = true
		} else {
			intent.RawAmount = uintArg(args, 1) // amountOutMin
			intent.IsExactInput = false
		}

	case models.SwapTokensForExactTokens:
		if intent.TokenIn == d.baseAsset {
			intent.RawAmount = uintArg(args, 1) // amountInMax, mirroring a buy
		} else {
			intent.RawAmount = uintArg(args, 0) // amountOut, mirroring a sell
		}
		intent.IsExactInput = false

	case models.SwapTokensForExactETH:
		intent.TokenOut = d.baseAsset
		intent.RawAmount = uintArg(args, 0) // amountOut
		intent.IsExactInput = false

	case models.SwapETHForExactTokens:
		// Maximum ETH spend rides along as the tx value.
		intent.TokenIn = d.baseAsset
		intent.RawAmount = tx.Value
		intent.IsExactInput = false
	}

	if intent.RawAmount == nil {
		return nil, fmt.Errorf("decode %s in tx %s: missing amount", method.Name, tx.Hash)
	}
	if intent.TokenIn == intent.TokenOut {
		return nil, fmt.Errorf("decode %s in tx %s: tokenIn equals tokenOut %s", method.Name, tx.Hash, intent.TokenIn)
	}

	return intent, nil
}

func pathArg(method *abi.Method, args []interface{}) ([]common.Address, error) {
	for i, input := range method.Inputs {
		if input.Name != "path" {
			continue
		}
		path, ok := args[i].([]common.Address)
		if !ok {
			return nil, fmt.Errorf("path parameter has unexpected type %T", args[i])
		}
		return path, nil
	}
	return nil, fmt.Errorf("no path parameter")
}

func uintArg(args []interface{}, i int) *big.Int {
	if i >= len(args) {
		return nil
	}
	v, ok := args[i].(*big.Int)
	if !ok {
		return nil
	}
	return v
}
