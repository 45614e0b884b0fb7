// Package config loads the bot configuration from environment variables.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// WatchMode selects how candidate transactions are acquired.
type WatchMode string

const (
	// WatchPoll drives the pipeline from a periodic scanner lookup.
	WatchPoll WatchMode = "poll"
	// WatchStream drives the pipeline from a pending-transaction feed.
	WatchStream WatchMode = "stream"
)

// Config aggregates every knob the bot reads from the environment.
type Config struct {
	ChainName string
	ChainID   *big.Int

	NodeAPIURL    string
	NodeAPIWSURL  string
	ScannerAPIURL string
	ScannerAPIKey string

	TargetWallet     string
	OperatorWallet   string
	OperatorKey      string
	RouterAddress    string
	BaseAssetAddress string

	Mode         WatchMode
	PollInterval time.Duration

	Bounds models.Bounds

	StatusPort int    // 0 disables the status server
	RedisURL   string // empty disables metrics snapshots
}

var chainIDs = map[string]int64{
	"mainnet":     1,
	"rinkeby":     4,
	"bsc-mainnet": 56,
	"bsc-testnet": 97,
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		ChainName:        os.Getenv("BLOCKCHAIN_NAME"),
		NodeAPIURL:       os.Getenv("NODE_API_URL"),
		NodeAPIWSURL:     os.Getenv("NODE_API_WS_URL"),
		ScannerAPIURL:    os.Getenv("CHAIN_SCANNER_API_URL"),
		ScannerAPIKey:    os.Getenv("CHAIN_SCANNER_API_KEY"),
		TargetWallet:     strings.ToLower(os.Getenv("TARGET_WALLET")),
		OperatorWallet:   strings.ToLower(os.Getenv("WALLET_FROM")),
		OperatorKey:      strings.TrimPrefix(os.Getenv("WALLET_FROM_PRIVATE_KEY"), "0x"),
		RouterAddress:    strings.ToLower(os.Getenv("ROUTER_ADDRESS")),
		BaseAssetAddress: strings.ToLower(os.Getenv("WETH_CONTRACT_ADDRESS")),
		RedisURL:         os.Getenv("REDIS_URL"),
	}

	id, ok := chainIDs[cfg.ChainName]
	if !ok {
		return nil, fmt.Errorf("config: unknown network %q", cfg.ChainName)
	}
	cfg.ChainID = big.NewInt(id)

	required := map[string]string{
		"NODE_API_URL":            cfg.NodeAPIURL,
		"CHAIN_SCANNER_API_URL":   cfg.ScannerAPIURL,
		"TARGET_WALLET":           cfg.TargetWallet,
		"WALLET_FROM":             cfg.OperatorWallet,
		"WALLET_FROM_PRIVATE_KEY": cfg.OperatorKey,
		"ROUTER_ADDRESS":          cfg.RouterAddress,
		"WETH_CONTRACT_ADDRESS":   cfg.BaseAssetAddress,
	}
	for key, val := range required {
		if val == "" {
			return nil, fmt.Errorf("config: %s is required", key)
		}
	}

	mode := WatchMode(strings.ToLower(os.Getenv("WATCH_MODE")))
	switch mode {
	case "":
		mode = WatchPoll
	case WatchPoll, WatchStream:
	default:
		return nil, fmt.Errorf("config: WATCH_MODE must be %q or %q, got %q", WatchPoll, WatchStream, mode)
	}
	if mode == WatchStream && cfg.NodeAPIWSURL == "" {
		return nil, fmt.Errorf("config: NODE_API_WS_URL is required in stream mode")
	}
	cfg.Mode = mode

	cfg.PollInterval = 2 * time.Second
	if v := os.Getenv("POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("config: invalid POLL_INTERVAL_MS %q", v)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	minAmount, err := parseDecimal("MIN_AMOUNT")
	if err != nil {
		return nil, err
	}
	maxAmount, err := parseDecimal("MAX_AMOUNT")
	if err != nil {
		return nil, err
	}
	if maxAmount.LessThanOrEqual(minAmount) {
		return nil, fmt.Errorf("config: MAX_AMOUNT must be greater than MIN_AMOUNT")
	}

	confirmations := 0
	if os.Getenv("ONLY_SUCCESSFUL") == "true" {
		confirmations = 1
	}
	if v := os.Getenv("CONFIRMATIONS"); v != "" {
		confirmations, err = strconv.Atoi(v)
		if err != nil || confirmations < 0 {
			return nil, fmt.Errorf("config: invalid CONFIRMATIONS %q", v)
		}
	}

	cfg.Bounds = models.Bounds{
		MinAmount:             minAmount,
		MaxAmount:             maxAmount,
		StopBuying:            os.Getenv("STOP_BUYING") == "true",
		StopSelling:           os.Getenv("STOP_SELLING") == "true",
		BaseAsset:             cfg.BaseAssetAddress,
		ConfirmationsRequired: confirmations,
	}

	if v := os.Getenv("STATUS_PORT"); v != "" {
		cfg.StatusPort, err = strconv.Atoi(v)
		if err != nil || cfg.StatusPort <= 0 {
			return nil, fmt.Errorf("config: invalid STATUS_PORT %q", v)
		}
	}

	return cfg, nil
}

func parseDecimal(key string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return decimal.Zero, fmt.Errorf("config: %s is required", key)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: invalid %s %q: %w", key, v, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: %s must not be negative", key)
	}
	return d, nil
}
