package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

var (
	testWETH  = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	testToken = common.HexToAddress("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984")
	testMid   = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	testDest  = common.HexToAddress("0x000000000000000000000000000000000000dead")
)

func packCall(t *testing.T, method string, args ...interface{}) []byte {
	t.Helper()
	data, err := routerABI.Pack(method, args...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return data
}

func candidate(input []byte, value *big.Int) models.CandidateTx {
	if value == nil {
		value = new(big.Int)
	}
	return models.CandidateTx{
		Hash:  "0xabc",
		From:  "0xf00",
		To:    "0xr0u",
		Input: input,
		Value: value,
	}
}

func TestDecodeSwapShapes(t *testing.T) {
	decoder := NewDecoder(testWETH.Hex())
	deadline := big.NewInt(1700000000)

	weth := "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	token := "0x1f9840a85d5af5bf1d1762f925bdaddc4201f984"

	tests := []struct {
		name          string
		tx            models.CandidateTx
		wantKind      models.SwapKind
		wantTokenIn   string
		wantTokenOut  string
		wantRawAmount *big.Int
		wantExactIn   bool
	}{
		{
			name: "swapExactETHForTokens uses tx value as exact input",
			tx: candidate(
				packCall(t, "swapExactETHForTokens", big.NewInt(900), []common.Address{testWETH, testToken}, testDest, deadline),
				big.NewInt(1000)),
			wantKind:      models.SwapExactETHForTokens,
			wantTokenIn:   weth,
			wantTokenOut:  token,
			wantRawAmount: big.NewInt(1000),
			wantExactIn:   true,
		},
		{
			name: "swapExactTokensForETH uses amountOutMin on the ETH leg",
			tx: candidate(
				packCall(t, "swapExactTokensForETH", big.NewInt(5000), big.NewInt(42), []common.Address{testToken, testWETH}, testDest, deadline),
				nil),
			wantKind:      models.SwapExactTokensForETH,
			wantTokenIn:   token,
			wantTokenOut:  weth,
			wantRawAmount: big.NewInt(42),
			wantExactIn:   false,
		},
		{
			name: "swapExactTokensForTokens spending base uses amountIn",
			tx: candidate(
				packCall(t, "swapExactTokensForTokens", big.NewInt(777), big.NewInt(1), []common.Address{testWETH, testToken}, testDest, deadline),
				nil),
			wantKind:      models.SwapExactTokensForTokens,
			wantTokenIn:   weth,
			wantTokenOut:  token,
			wantRawAmount: big.NewInt(777),
			wantExactIn:   true,
		},
		{
			name: "swapExactTokensForTokens receiving base uses amountOutMin",
			tx: candidate(
				packCall(t, "swapExactTokensForTokens", big.NewInt(777), big.NewInt(31), []common.Address{testToken, testWETH}, testDest, deadline),
				nil),
			wantKind:      models.SwapExactTokensForTokens,
			wantTokenIn:   token,
			wantTokenOut:  weth,
			wantRawAmount: big.NewInt(31),
			wantExactIn:   false,
		},
		{
			name: "swapTokensForExactTokens spending base uses amountInMax",
			tx: candidate(
				packCall(t, "swapTokensForExactTokens", big.NewInt(100), big.NewInt(250), []common.Address{testWETH, testToken}, testDest, deadline),
				nil),
			wantKind:      models.SwapTokensForExactTokens,
			wantTokenIn:   weth,
			wantTokenOut:  token,
			wantRawAmount: big.NewInt(250),
			wantExactIn:   false,
		},
		{
			name: "swapTokensForExactTokens receiving base uses amountOut",
			tx: candidate(
				packCall(t, "swapTokensForExactTokens", big.NewInt(100), big.NewInt(250), []common.Address{testToken, testWETH}, testDest, deadline),
				nil),
			wantKind:      models.SwapTokensForExactTokens,
			wantTokenIn:   token,
			wantTokenOut:  weth,
			wantRawAmount: big.NewInt(100),
			wantExactIn:   false,
		},
		{
			name: "swapTokensForExactETH uses amountOut on the ETH leg",
			tx: candidate(
				packCall(t, "swapTokensForExactETH", big.NewInt(64), big.NewInt(9999), []common.Address{testToken, testWETH}, testDest, deadline),
				nil),
			wantKind:      models.SwapTokensForExactETH,
			wantTokenIn:   token,
			wantTokenOut:  weth,
			wantRawAmount: big.NewInt(64),
			wantExactIn:   false,
		},
		{
			name: "swapETHForExactTokens uses tx value as the spend ceiling",
			tx: candidate(
				packCall(t, "swapETHForExactTokens", big.NewInt(123), []common.Address{testWETH, testToken}, testDest, deadline),
				big.NewInt(2000)),
			wantKind:      models.SwapETHForExactTokens,
			wantTokenIn:   weth,
			wantTokenOut:  token,
			wantRawAmount: big.NewInt(2000),
			wantExactIn:   false,
		},
		{
			name: "multi-hop path keeps first and last tokens",
			tx: candidate(
				packCall(t, "swapExactTokensForTokens", big.NewInt(10), big.NewInt(1), []common.Address{testWETH, testMid, testToken}, testDest, deadline),
				nil),
			wantKind:      models.SwapExactTokensForTokens,
			wantTokenIn:   weth,
			wantTokenOut:  token,
			wantRawAmount: big.NewInt(10),
			wantExactIn:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := decoder.Decode(tt.tx)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if intent == nil {
				t.Fatal("Decode returned nil intent")
			}
			if intent.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", intent.Kind, tt.wantKind)
			}
			if intent.TokenIn != tt.wantTokenIn {
				t.Errorf("TokenIn = %s, want %s", intent.TokenIn, tt.wantTokenIn)
			}
			if intent.TokenOut != tt.wantTokenOut {
				t.Errorf("TokenOut = %s, want %s", intent.TokenOut, tt.wantTokenOut)
			}
			if intent.RawAmount.Cmp(tt.wantRawAmount) != 0 {
				t.Errorf("RawAmount = %s, want %s", intent.RawAmount, tt.wantRawAmount)
			}
			if intent.IsExactInput != tt.wantExactIn {
				t.Errorf("IsExactInput = %v, want %v", intent.IsExactInput, tt.wantExactIn)
			}
			if intent.SourceTxHash != tt.tx.Hash {
				t.Errorf("SourceTxHash = %s, want %s", intent.SourceTxHash, tt.tx.Hash)
			}
		})
	}
}

func TestDecodeMisses(t *testing.T) {
	decoder := NewDecoder(testWETH.Hex())

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty input", nil},
		{"short input", []byte{0x7f, 0xf3}},
		{"unknown selector", []byte{0xde, 0xad, 0xbe, 0xef, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, err := decoder.Decode(candidate(tt.input, nil))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if intent != nil {
				t.Errorf("Decode = %+v, want nil intent", intent)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	decoder := NewDecoder(testWETH.Hex())
	deadline := big.NewInt(1700000000)

	t.Run("truncated arguments", func(t *testing.T) {
		data := packCall(t, "swapExactETHForTokens", big.NewInt(1), []common.Address{testWETH, testToken}, testDest, deadline)
		_, err := decoder.Decode(candidate(data[:8], nil))
		if err == nil {
			t.Error("want error for truncated call data")
		}
	})

	t.Run("tokenIn equals tokenOut after ETH substitution", func(t *testing.T) {
		// Path ends at the wrapped native token while the ETH leg is
		// already the input.
		data := packCall(t, "swapExactETHForTokens", big.NewInt(1), []common.Address{testToken, testWETH}, testDest, deadline)
		_, err := decoder.Decode(candidate(data, big.NewInt(5)))
		if err == nil {
			t.Error("want error when both legs resolve to the base asset")
		}
	})
}
