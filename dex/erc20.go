package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// TokenReader answers ERC20 metadata queries (decimals, balances,
// allowances). Decimals never change for a deployed token, so they are
// cached for the process lifetime.
type TokenReader struct {
	client NodeClient

	decimalsCache map[string]uint8
	cacheMu       sync.RWMutex
}

// NewTokenReader creates a reader backed by the given node client.
func NewTokenReader(client NodeClient) *TokenReader {
	return &TokenReader{
		client:        client,
		decimalsCache: make(map[string]uint8),
	}
}

// Decimals returns the token's decimal precision.
func (r *TokenReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	key := strings.ToLower(token.Hex())

	r.cacheMu.RLock()
	if d, ok := r.decimalsCache[key]; ok {
		r.cacheMu.RUnlock()
		return d, nil
	}
	r.cacheMu.RUnlock()

	data, err := callContract(ctx, r.client, token, erc20ABI, "decimals")
	if err != nil {
		return 0, fmt.Errorf("call decimals() on %s: %w", key, err)
	}
	var decimals uint8
	if err := erc20ABI.UnpackIntoInterface(&decimals, "decimals", data); err != nil {
		return 0, fmt.Errorf("unpack decimals() from %s: %w", key, err)
	}

	r.cacheMu.Lock()
	r.decimalsCache[key] = decimals
	r.cacheMu.Unlock()

	return decimals, nil
}

// BalanceOf returns the owner's token balance in raw units.
func (r *TokenReader) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := callContract(ctx, r.client, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf() on %s: %w", token.Hex(), err)
	}
	balance := new(big.Int)
	if err := erc20ABI.UnpackIntoInterface(&balance, "balanceOf", data); err != nil {
		return nil, fmt.Errorf("unpack balanceOf() from %s: %w", token.Hex(), err)
	}
	return balance, nil
}

// Allowance returns how much of the owner's token the spender may move.
func (r *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := callContract(ctx, r.client, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("call allowance() on %s: %w", token.Hex(), err)
	}
	allowance := new(big.Int)
	if err := erc20ABI.UnpackIntoInterface(&allowance, "allowance", data); err != nil {
		return nil, fmt.Errorf("unpack allowance() from %s: %w", token.Hex(), err)
	}
	return allowance, nil
}

// maxAllowance is the uint256 ceiling used for approvals, matching the
// usual one-time max-approve pattern.
var maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ApproveCallData encodes an approve(spender, 2^256-1) call.
func ApproveCallData(spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, maxAllowance)
}
