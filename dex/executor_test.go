package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

const testOperatorKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	testRouter  = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	testFactory = common.HexToAddress("0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f")
	testPair    = common.HexToAddress("0x0000000000000000000000000000000000009a17")
)

// fakeChain is a scripted NodeClient covering the contract reads and the
// submission surface the executor touches.
type fakeChain struct {
	mu sync.Mutex

	token0        common.Address
	reserve0      *big.Int
	reserve1      *big.Int
	nativeBalance *big.Int
	tokenBalance  *big.Int
	allowance     *big.Int

	nonce uint64
	sent  []*types.Transaction
}

func newFakeChain(token0 common.Address) *fakeChain {
	eth := func(n int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
	}
	return &fakeChain{
		token0:        token0,
		reserve0:      eth(1000),
		reserve1:      eth(1000),
		nativeBalance: eth(100),
		tokenBalance:  eth(100),
		allowance:     new(big.Int),
	}
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	to := *msg.To
	sel := msg.Data[:4]
	switch {
	case to == testRouter && bytes.Equal(sel, routerABI.Methods["factory"].ID):
		return routerABI.Methods["factory"].Outputs.Pack(testFactory)
	case to == testFactory && bytes.Equal(sel, factoryABI.Methods["getPair"].ID):
		return factoryABI.Methods["getPair"].Outputs.Pack(testPair)
	case to == testPair && bytes.Equal(sel, pairABI.Methods["getReserves"].ID):
		return pairABI.Methods["getReserves"].Outputs.Pack(f.reserve0, f.reserve1, uint32(0))
	case to == testPair && bytes.Equal(sel, pairABI.Methods["token0"].ID):
		return pairABI.Methods["token0"].Outputs.Pack(f.token0)
	case bytes.Equal(sel, erc20ABI.Methods["decimals"].ID):
		return erc20ABI.Methods["decimals"].Outputs.Pack(uint8(18))
	case bytes.Equal(sel, erc20ABI.Methods["balanceOf"].ID):
		return erc20ABI.Methods["balanceOf"].Outputs.Pack(f.tokenBalance)
	case bytes.Equal(sel, erc20ABI.Methods["allowance"].ID):
		return erc20ABI.Methods["allowance"].Outputs.Pack(f.allowance)
	}
	return nil, fmt.Errorf("unexpected call to %s", to.Hex())
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nativeBalance, nil
}

func (f *fakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e9), nil
}

func (f *fakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 150000, nil
}

// SendTransaction rejects any nonce that is not the next pending one, so
// concurrent submissions that escaped the critical section fail loudly.
func (f *fakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.Nonce() != f.nonce {
		return fmt.Errorf("nonce %d is not the pending nonce %d", tx.Nonce(), f.nonce)
	}
	f.nonce++
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return 0, fmt.Errorf("not implemented")
}

func (f *fakeChain) sentTxs() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Transaction, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestExecutor(t *testing.T, chain *fakeChain) *Executor {
	t.Helper()
	executor, err := NewExecutor(chain, testRouter, testWETH, testOperatorKey, big.NewInt(97))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return executor
}

func buyOrder(amount string) *models.MirrorOrder {
	return &models.MirrorOrder{
		SourceTxHash: "0xsource",
		TokenIn:      "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		TokenOut:     "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984",
		Amount:       decimal.RequireFromString(amount),
		Direction:    models.DirectionBuy,
		Mode:         models.ExactInputEquivalent,
		Status:       models.OrderPending,
	}
}

func sellOrder(amount string) *models.MirrorOrder {
	return &models.MirrorOrder{
		SourceTxHash: "0xsource",
		TokenIn:      "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984",
		TokenOut:     "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		Amount:       decimal.RequireFromString(amount),
		Direction:    models.DirectionSell,
		Mode:         models.ExactOutputEquivalent,
		Status:       models.OrderPending,
	}
}

func TestExecutorExactInput(t *testing.T) {
	ctx := context.Background()

	t.Run("buy spends the base amount as transaction value", func(t *testing.T) {
		chain := newFakeChain(testWETH)
		executor := newTestExecutor(t, chain)

		hash, err := executor.Execute(ctx, buyOrder("2"))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if hash == "" {
			t.Fatal("no mirror hash returned")
		}

		sent := chain.sentTxs()
		if len(sent) != 1 {
			t.Fatalf("sent %d transactions, want 1", len(sent))
		}
		tx := sent[0]
		if *tx.To() != testRouter {
			t.Errorf("To = %s, want router", tx.To().Hex())
		}
		want, _ := new(big.Int).SetString("2000000000000000000", 10)
		if tx.Value().Cmp(want) != 0 {
			t.Errorf("Value = %s, want %s", tx.Value(), want)
		}
		if !bytes.Equal(tx.Data()[:4], routerABI.Methods["swapExactETHForTokens"].ID) {
			t.Errorf("selector = %x, want swapExactETHForTokens", tx.Data()[:4])
		}
	})

	t.Run("insufficient native balance aborts before submission", func(t *testing.T) {
		chain := newFakeChain(testWETH)
		chain.nativeBalance = big.NewInt(1e15) // far below 2 units
		executor := newTestExecutor(t, chain)

		_, err := executor.Execute(ctx, buyOrder("2"))
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}
		if len(chain.sentTxs()) != 0 {
			t.Errorf("sent %d transactions, want 0", len(chain.sentTxs()))
		}
	})
}

func TestExecutorExactOutput(t *testing.T) {
	ctx := context.Background()

	t.Run("sell raises the allowance before swapping", func(t *testing.T) {
		chain := newFakeChain(testToken)
		executor := newTestExecutor(t, chain)

		if _, err := executor.Execute(ctx, sellOrder("1")); err != nil {
			t.Fatalf("Execute: %v", err)
		}

		sent := chain.sentTxs()
		if len(sent) != 2 {
			t.Fatalf("sent %d transactions, want approval + swap", len(sent))
		}
		approval, swap := sent[0], sent[1]
		if *approval.To() != testToken {
			t.Errorf("approval To = %s, want token", approval.To().Hex())
		}
		if !bytes.Equal(approval.Data()[:4], erc20ABI.Methods["approve"].ID) {
			t.Errorf("first selector = %x, want approve", approval.Data()[:4])
		}
		if *swap.To() != testRouter {
			t.Errorf("swap To = %s, want router", swap.To().Hex())
		}
		if !bytes.Equal(swap.Data()[:4], routerABI.Methods["swapTokensForExactETH"].ID) {
			t.Errorf("second selector = %x, want swapTokensForExactETH", swap.Data()[:4])
		}
		if approval.Nonce() != 0 || swap.Nonce() != 1 {
			t.Errorf("nonces = %d, %d, want 0, 1", approval.Nonce(), swap.Nonce())
		}
	})

	t.Run("sufficient allowance skips the approval", func(t *testing.T) {
		chain := newFakeChain(testToken)
		chain.allowance = new(big.Int).Lsh(big.NewInt(1), 200)
		executor := newTestExecutor(t, chain)

		if _, err := executor.Execute(ctx, sellOrder("1")); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		sent := chain.sentTxs()
		if len(sent) != 1 {
			t.Fatalf("sent %d transactions, want 1", len(sent))
		}
		if !bytes.Equal(sent[0].Data()[:4], routerABI.Methods["swapTokensForExactETH"].ID) {
			t.Errorf("selector = %x, want swapTokensForExactETH", sent[0].Data()[:4])
		}
	})

	t.Run("insufficient token balance aborts before submission", func(t *testing.T) {
		chain := newFakeChain(testToken)
		chain.tokenBalance = big.NewInt(1) // cannot cover the quoted maximum
		executor := newTestExecutor(t, chain)

		_, err := executor.Execute(ctx, sellOrder("1"))
		if !errors.Is(err, ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}
		if len(chain.sentTxs()) != 0 {
			t.Errorf("sent %d transactions, want 0", len(chain.sentTxs()))
		}
	})
}

func TestExecutorNonceSerialization(t *testing.T) {
	// The fake node rejects any submission whose nonce is not the next
	// pending one, so two executions racing past the critical section
	// would fail here.
	chain := newFakeChain(testWETH)
	executor := newTestExecutor(t, chain)

	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := executor.Execute(context.Background(), buyOrder("1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Execute: %v", err)
		}
	}
	if len(chain.sentTxs()) != workers {
		t.Errorf("sent %d transactions, want %d", len(chain.sentTxs()), workers)
	}
}
