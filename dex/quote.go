package dex

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Slippage tolerance applied to every re-quote, as parts per ten
// thousand. 500 = 5%.
const slippageBps = 500

var (
	bpsDenominator = big.NewInt(10000)
	feeNumerator   = big.NewInt(997) // 0.3% pool fee
	feeDenominator = big.NewInt(1000)
)

// Quoter derives prices and slippage bounds from current pair reserves.
// It never reuses the source transaction's encoded bounds; pool state may
// have moved since the source was observed.
type Quoter struct {
	client NodeClient
	router common.Address

	factory   common.Address
	factoryMu sync.Mutex
}

// NewQuoter creates a quoter for the given router contract.
func NewQuoter(client NodeClient, router common.Address) *Quoter {
	return &Quoter{client: client, router: router}
}

// Reserves returns the current pair reserves ordered as (reserveIn,
// reserveOut) for the tokenIn -> tokenOut direction.
func (q *Quoter) Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	pair, err := q.pairAddress(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	if pair == (common.Address{}) {
		return nil, nil, fmt.Errorf("no pair for %s/%s", tokenIn.Hex(), tokenOut.Hex())
	}

	data, err := callContract(ctx, q.client, pair, pairABI, "getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("call getReserves() on %s: %w", pair.Hex(), err)
	}
	var reserves struct {
		Reserve0           *big.Int
		Reserve1           *big.Int
		BlockTimestampLast uint32
	}
	if err := pairABI.UnpackIntoInterface(&reserves, "getReserves", data); err != nil {
		return nil, nil, fmt.Errorf("unpack getReserves() from %s: %w", pair.Hex(), err)
	}

	token0, err := q.pairToken0(ctx, pair)
	if err != nil {
		return nil, nil, err
	}
	if token0 == tokenIn {
		return reserves.Reserve0, reserves.Reserve1, nil
	}
	return reserves.Reserve1, reserves.Reserve0, nil
}

// AmountOut applies the constant-product formula with the 0.3% pool fee.
func AmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	inWithFee := new(big.Int).Mul(amountIn, feeNumerator)
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, feeDenominator), inWithFee)
	return numerator.Div(numerator, denominator)
}

// AmountIn inverts AmountOut: the input needed to receive amountOut.
func AmountIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountOut.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("non-positive quote input")
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("amount out %s exceeds pool reserve %s", amountOut, reserveOut)
	}
	numerator := new(big.Int).Mul(new(big.Int).Mul(reserveIn, amountOut), feeDenominator)
	denominator := new(big.Int).Mul(new(big.Int).Sub(reserveOut, amountOut), feeNumerator)
	amountIn := numerator.Div(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// WithSlippageDown lowers a quoted output by the slippage tolerance.
func WithSlippageDown(amount *big.Int) *big.Int {
	scaled := new(big.Int).Mul(amount, big.NewInt(int64(10000-slippageBps)))
	return scaled.Div(scaled, bpsDenominator)
}

// WithSlippageUp raises a quoted input by the slippage tolerance.
func WithSlippageUp(amount *big.Int) *big.Int {
	scaled := new(big.Int).Mul(amount, big.NewInt(int64(10000+slippageBps)))
	return scaled.Div(scaled, bpsDenominator)
}

// MidPrice returns the current reserve ratio price of one tokenIn unit in
// tokenOut raw units, as a float for display only.
func (q *Quoter) MidPrice(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Float, error) {
	reserveIn, reserveOut, err := q.Reserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() == 0 {
		return nil, fmt.Errorf("empty reserves for %s/%s", tokenIn.Hex(), tokenOut.Hex())
	}
	return new(big.Float).Quo(new(big.Float).SetInt(reserveOut), new(big.Float).SetInt(reserveIn)), nil
}

func (q *Quoter) pairAddress(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	factory, err := q.factoryAddress(ctx)
	if err != nil {
		return common.Address{}, err
	}

	data, err := callContract(ctx, q.client, factory, factoryABI, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPair(): %w", err)
	}
	var pair common.Address
	if err := factoryABI.UnpackIntoInterface(&pair, "getPair", data); err != nil {
		return common.Address{}, fmt.Errorf("unpack getPair(): %w", err)
	}
	return pair, nil
}

func (q *Quoter) factoryAddress(ctx context.Context) (common.Address, error) {
	q.factoryMu.Lock()
	defer q.factoryMu.Unlock()

	if q.factory != (common.Address{}) {
		return q.factory, nil
	}

	data, err := callContract(ctx, q.client, q.router, routerABI, "factory")
	if err != nil {
		return common.Address{}, fmt.Errorf("call factory(): %w", err)
	}
	var factory common.Address
	if err := routerABI.UnpackIntoInterface(&factory, "factory", data); err != nil {
		return common.Address{}, fmt.Errorf("unpack factory(): %w", err)
	}
	q.factory = factory
	return factory, nil
}

func (q *Quoter) pairToken0(ctx context.Context, pair common.Address) (common.Address, error) {
	data, err := callContract(ctx, q.client, pair, pairABI, "token0")
	if err != nil {
		return common.Address{}, fmt.Errorf("call token0() on %s: %w", pair.Hex(), err)
	}
	var token0 common.Address
	if err := pairABI.UnpackIntoInterface(&token0, "token0", data); err != nil {
		return common.Address{}, fmt.Errorf("unpack token0() from %s: %w", pair.Hex(), err)
	}
	return token0, nil
}
