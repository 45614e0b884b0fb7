package dex

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// ErrInsufficientFunds marks orders aborted before submission because the
// operator's balance or allowance could not cover them.
var ErrInsufficientFunds = errors.New("insufficient funds")

// swapDeadline is how far in the future submitted swaps stay valid.
const swapDeadline = 20 * time.Minute

// baseAssetDecimals is fixed by convention for the wrapped-native token.
const baseAssetDecimals = 18

// Executor builds, quotes, signs and submits the operator's mirrored
// swaps. Nonce acquisition and submission form a single critical section
// per wallet, so concurrent mirror attempts cannot collide on a nonce.
type Executor struct {
	client NodeClient
	tokens *TokenReader
	quoter *Quoter

	router    common.Address
	baseAsset common.Address
	operator  common.Address
	key       *ecdsa.PrivateKey
	chainID   *big.Int

	nonceMu sync.Mutex
}

// NewExecutor creates an executor for the operator wallet. privateKey is
// hex without the 0x prefix.
func NewExecutor(client NodeClient, router, baseAsset common.Address, privateKey string, chainID *big.Int) (*Executor, error) {
	key, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	return &Executor{
		client:    client,
		tokens:    NewTokenReader(client),
		quoter:    NewQuoter(client, router),
		router:    router,
		baseAsset: baseAsset,
		operator:  crypto.PubkeyToAddress(key.PublicKey),
		key:       key,
		chainID:   chainID,
	}, nil
}

// Operator returns the operator wallet address.
func (e *Executor) Operator() common.Address { return e.operator }

// NativeBalance returns the operator's native coin balance in wei.
func (e *Executor) NativeBalance(ctx context.Context) (*big.Int, error) {
	return e.client.BalanceAt(ctx, e.operator, nil)
}

// Tokens exposes the token metadata reader.
func (e *Executor) Tokens() *TokenReader { return e.tokens }

// Quoter exposes the reserve-based quoter.
func (e *Executor) Quoter() *Quoter { return e.quoter }

// Execute submits the mirrored swap for an order and returns the
// submitted transaction hash. The submission is fire-and-forget: the
// executor does not wait for inclusion.
func (e *Executor) Execute(ctx context.Context, order *models.MirrorOrder) (string, error) {
	switch order.Mode {
	case models.ExactInputEquivalent:
		return e.executeExactInput(ctx, order)
	case models.ExactOutputEquivalent:
		return e.executeExactOutput(ctx, order)
	default:
		return "", fmt.Errorf("unknown order mode %d", order.Mode)
	}
}

// executeExactInput spends order.Amount of tokenIn and accepts any output
// above the freshly quoted minimum.
func (e *Executor) executeExactInput(ctx context.Context, order *models.MirrorOrder) (string, error) {
	tokenIn := common.HexToAddress(order.TokenIn)
	tokenOut := common.HexToAddress(order.TokenOut)

	inDecimals, err := e.decimalsOf(ctx, tokenIn)
	if err != nil {
		return "", err
	}
	amountIn := rawAmount(order.Amount, inDecimals)
	if amountIn.Sign() <= 0 {
		return "", fmt.Errorf("non-positive input amount %s", order.Amount)
	}

	reserveIn, reserveOut, err := e.quoter.Reserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return "", fmt.Errorf("fetch reserves: %w", err)
	}
	minOut := WithSlippageDown(AmountOut(amountIn, reserveIn, reserveOut))
	if minOut.Sign() <= 0 {
		return "", fmt.Errorf("quote produced zero output for %s -> %s", order.TokenIn, order.TokenOut)
	}

	if err := e.checkBalance(ctx, tokenIn, amountIn); err != nil {
		return "", err
	}

	path := []common.Address{tokenIn, tokenOut}
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())

	var callData []byte
	value := new(big.Int)
	switch {
	case tokenIn == e.baseAsset:
		callData, err = routerABI.Pack("swapExactETHForTokens", minOut, path, e.operator, deadline)
		value = amountIn
	case tokenOut == e.baseAsset:
		callData, err = routerABI.Pack("swapExactTokensForETH", amountIn, minOut, path, e.operator, deadline)
	default:
		callData, err = routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, e.operator, deadline)
	}
	if err != nil {
		return "", fmt.Errorf("pack swap call: %w", err)
	}

	e.nonceMu.Lock()
	defer e.nonceMu.Unlock()

	log.Printf("[Executor] %s swap: %s %s -> min %s out", order.Direction, amountIn, order.TokenIn, minOut)
	return e.signAndSend(ctx, e.router, value, callData)
}

// executeExactOutput targets order.Amount of tokenOut and accepts any
// input below the freshly quoted maximum, raising the router allowance
// first when the input leg is a non-base token.
func (e *Executor) executeExactOutput(ctx context.Context, order *models.MirrorOrder) (string, error) {
	tokenIn := common.HexToAddress(order.TokenIn)
	tokenOut := common.HexToAddress(order.TokenOut)

	outDecimals, err := e.decimalsOf(ctx, tokenOut)
	if err != nil {
		return "", err
	}
	amountOut := rawAmount(order.Amount, outDecimals)
	if amountOut.Sign() <= 0 {
		return "", fmt.Errorf("non-positive output amount %s", order.Amount)
	}

	reserveIn, reserveOut, err := e.quoter.Reserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return "", fmt.Errorf("fetch reserves: %w", err)
	}
	quotedIn, err := AmountIn(amountOut, reserveIn, reserveOut)
	if err != nil {
		return "", fmt.Errorf("quote input: %w", err)
	}
	maxIn := WithSlippageUp(quotedIn)

	if err := e.checkBalance(ctx, tokenIn, maxIn); err != nil {
		return "", err
	}

	path := []common.Address{tokenIn, tokenOut}
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())

	var callData []byte
	if tokenOut == e.baseAsset {
		callData, err = routerABI.Pack("swapTokensForExactETH", amountOut, maxIn, path, e.operator, deadline)
	} else {
		callData, err = routerABI.Pack("swapTokensForExactTokens", amountOut, maxIn, path, e.operator, deadline)
	}
	if err != nil {
		return "", fmt.Errorf("pack swap call: %w", err)
	}

	// The approval and the swap must share one nonce sequence.
	e.nonceMu.Lock()
	defer e.nonceMu.Unlock()

	if tokenIn != e.baseAsset {
		if err := e.ensureAllowance(ctx, tokenIn, maxIn); err != nil {
			return "", err
		}
	}

	log.Printf("[Executor] %s swap: max %s %s -> exactly %s out", order.Direction, maxIn, order.TokenIn, amountOut)
	return e.signAndSend(ctx, e.router, new(big.Int), callData)
}

// ensureAllowance submits a max-allowance approval when the router's
// current allowance cannot cover the required amount. Caller must hold
// the nonce mutex.
func (e *Executor) ensureAllowance(ctx context.Context, token common.Address, required *big.Int) error {
	allowance, err := e.tokens.Allowance(ctx, token, e.operator, e.router)
	if err != nil {
		return fmt.Errorf("fetch allowance: %w", err)
	}
	if allowance.Cmp(required) >= 0 {
		return nil
	}

	callData, err := ApproveCallData(e.router)
	if err != nil {
		return fmt.Errorf("pack approve call: %w", err)
	}

	hash, err := e.signAndSend(ctx, token, new(big.Int), callData)
	if err != nil {
		return fmt.Errorf("submit approval: %w", err)
	}
	log.Printf("[Executor] Approval submitted for %s: %s", strings.ToLower(token.Hex()), hash)
	return nil
}

// checkBalance verifies the operator can cover the input amount. The
// native balance backs the base-asset leg, a token balance any other.
func (e *Executor) checkBalance(ctx context.Context, tokenIn common.Address, amount *big.Int) error {
	var balance *big.Int
	var err error
	if tokenIn == e.baseAsset {
		balance, err = e.client.BalanceAt(ctx, e.operator, nil)
	} else {
		balance, err = e.tokens.BalanceOf(ctx, tokenIn, e.operator)
	}
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s of %s", ErrInsufficientFunds, balance, amount, strings.ToLower(tokenIn.Hex()))
	}
	return nil
}

// signAndSend fetches a fresh pending nonce, signs a legacy transaction
// and submits it. Caller must hold the nonce mutex.
func (e *Executor) signAndSend(ctx context.Context, to common.Address, value *big.Int, callData []byte) (string, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.operator)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}
	gasLimit, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  e.operator,
		To:    &to,
		Value: value,
		Data:  callData,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     callData,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(e.chainID), e.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (e *Executor) decimalsOf(ctx context.Context, token common.Address) (uint8, error) {
	if token == e.baseAsset {
		return baseAssetDecimals, nil
	}
	return e.tokens.Decimals(ctx, token)
}

// rawAmount converts a normalized decimal quantity back into the token's
// raw integer units, truncating any sub-unit remainder.
func rawAmount(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}
