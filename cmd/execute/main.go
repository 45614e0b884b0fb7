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

// execute decodes the transaction named by the TX environment variable
// and submits the mirror swap directly, bypassing the watcher loop.
// Useful for poking at the executor against a testnet.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file found")
	}

	txHash := os.Getenv("TX")
	if txHash == "" {
		log.Fatal("TX not set")
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tx, _, err := client.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		log.Fatalf("failed to fetch transaction %s: %v", txHash, err)
	}
	if tx.To() == nil {
		log.Fatal("transaction is a contract creation")
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		log.Fatalf("failed to recover sender: %v", err)
	}

	value := tx.Value()
	if value == nil {
		value = new(big.Int)
	}
	intent, err := dex.NewDecoder(cfg.BaseAssetAddress).Decode(models.CandidateTx{
		Hash:  strings.ToLower(tx.Hash().Hex()),
		From:  strings.ToLower(from.Hex()),
		To:    strings.ToLower(tx.To().Hex()),
		Input: tx.Data(),
		Value: value,
	})
	if err != nil {
		log.Fatalf("decode failed: %v", err)
	}
	if intent == nil {
		log.Fatalf("%s is not a supported swap", txHash)
	}

	amountToken := syncer.AmountToken(intent, cfg.Bounds.BaseAsset)
	decimals := uint8(18)
	if amountToken != cfg.Bounds.BaseAsset {
		decimals, err = executor.Tokens().Decimals(ctx, common.HexToAddress(amountToken))
		if err != nil {
			log.Fatalf("decimals lookup failed: %v", err)
		}
	}

	order, reject := syncer.NewPolicy(cfg.Bounds).Decide(intent,
		syncer.Clamp(syncer.Normalize(intent.RawAmount, decimals), cfg.Bounds))
	if order == nil {
		log.Fatalf("not mirrorable: %s", reject)
	}

	log.Printf("Executing %s %s of %s/%s", order.Direction, order.Amount, order.TokenIn, order.TokenOut)
	mirrorHash, err := executor.Execute(ctx, order)
	if err != nil {
		log.Fatalf("execution failed: %v", err)
	}
	log.Printf("Submitted mirror transaction %s", mirrorHash)
}
