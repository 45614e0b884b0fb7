package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/api"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/config"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/dex"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/handlers"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/syncer"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
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

	decoder := dex.NewDecoder(cfg.BaseAssetAddress)
	policy := syncer.NewPolicy(cfg.Bounds)
	metrics := syncer.NewMetrics()

	var gate *syncer.ConfirmationGate
	if cfg.Bounds.ConfirmationsRequired > 0 {
		gate = syncer.NewConfirmationGate(client, cfg.Bounds.ConfirmationsRequired)
		log.Printf("[main] Confirmation gate enabled (%d confirmation(s))", cfg.Bounds.ConfirmationsRequired)
	}

	coordinator := syncer.NewCoordinator(decoder, policy, executor, gate,
		executor.Tokens().Decimals, cfg.Bounds, cfg.TargetWallet, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		store := syncer.NewMetricsStore(redis.NewClient(opts))
		go snapshotLoop(ctx, store, metrics)
		log.Println("[main] Metrics snapshots to Redis enabled")
	}

	if cfg.StatusPort > 0 {
		r := gin.Default()
		h := handlers.NewHandler(cfg, metrics, coordinator, executor)
		h.Register(r)
		go func() {
			if err := r.Run(fmt.Sprintf(":%d", cfg.StatusPort)); err != nil {
				log.Printf("[main] Status server stopped: %v", err)
			}
		}()
		log.Printf("[main] Status server on port %d", cfg.StatusPort)
	}

	log.Printf("Service started (network=%s target=%s mode=%s)", cfg.ChainName, cfg.TargetWallet, cfg.Mode)

	switch cfg.Mode {
	case config.WatchStream:
		streamer := syncer.NewStreamer(client, cfg.NodeAPIWSURL, coordinator, cfg.TargetWallet)
		if err := streamer.Run(ctx); err != nil {
			log.Fatalf("streamer failed: %v", err)
		}
	default:
		scanner := api.NewScannerClient(cfg.ScannerAPIURL, cfg.ScannerAPIKey)
		poller := syncer.NewPoller(scanner, coordinator, cfg.TargetWallet, cfg.PollInterval)
		poller.Run(ctx)
	}
}

// snapshotLoop persists the metrics snapshot every 30 seconds until shutdown.
func snapshotLoop(ctx context.Context, store *syncer.MetricsStore, metrics *syncer.Metrics) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Save(ctx, metrics.Snapshot()); err != nil {
				log.Printf("[main] Metrics snapshot failed: %v", err)
			}
		}
	}
}
