package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/config"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/dex"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/syncer"
)

// copytx replays a single mined transaction through the full mirror
// pipeline. Development tool only; refuses to run outside a dev
// environment.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file found")
	}

	if os.Getenv("APP_ENV") != "dev" {
		log.Println("copytx is a development tool, set APP_ENV=dev to run it")
		os.Exit(1)
	}
	if len(os.Args) < 2 {
		log.Println("usage: copytx <txhash>")
		os.Exit(2)
	}
	txHash := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	client, err := ethclient.Dial(cfg.NodeAPIURL)
	if err != nil {
		log.Fatalf("failed to connect to node: %v", err)
	}
	defer client.Close()

	executor, err := dex.NewExecutor(client,
		common.HexToAddress(cfg.RouterAddress),
		common.HexToAddress(cfg.BaseAssetAddress),
		cfg.OperatorKey, cfg.ChainID)
	if err != nil {
		log.Fatalf("failed to init executor: %v", err)
	}

	// The replayed hash is mined already, so the confirmation gate is
	// left out of the pipeline here.
	coordinator := syncer.NewCoordinator(
		dex.NewDecoder(cfg.BaseAssetAddress),
		syncer.NewPolicy(cfg.Bounds),
		executor, nil,
		executor.Tokens().Decimals,
		cfg.Bounds, cfg.TargetWallet,
		syncer.NewMetrics())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tx, _, err := client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		log.Fatalf("failed to fetch transaction %s: %v", txHash, err)
	}
	if tx.To() == nil {
		log.Fatalf("transaction %s is a contract creation, nothing to mirror", txHash)
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		log.Fatalf("failed to recover sender of %s: %v", txHash, err)
	}

	value := tx.Value()
	if value == nil {
		value = new(big.Int)
	}
	candidate := models.CandidateTx{
		Hash:  strings.ToLower(tx.Hash().Hex()),
		From:  strings.ToLower(from.Hex()),
		To:    strings.ToLower(tx.To().Hex()),
		Input: tx.Data(),
		Value: value,
	}

	log.Printf("Replaying %s (from=%s to=%s)", candidate.Hash, candidate.From, candidate.To)
	coordinator.Process(ctx, candidate)

	for _, order := range coordinator.RecentOrders() {
		log.Printf("Order: source=%s direction=%s amount=%s status=%s mirror=%s reason=%q",
			order.SourceTxHash, order.Direction, order.Amount, order.Status, order.MirrorTxHash, order.FailReason)
	}
}
