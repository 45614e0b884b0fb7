package syncer

import (
	"context"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/api"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/dex"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// Streamer acquires candidate transactions from the node's pending
// transaction feed. Every announced hash is resolved to a full
// transaction with a bounded retry, filtered by sender and handed to the
// pipeline on its own goroutine. There is deliberately no concurrency
// limit here; the executor's nonce critical section is the only
// serialization point.
type Streamer struct {
	client      dex.NodeClient
	pending     *api.PendingTxClient
	coordinator *Coordinator
	target      string

	fetchAttempts int
	fetchDelay    time.Duration

	runCtx context.Context
	wg     sync.WaitGroup
}

// NewStreamer creates a streaming source over the given WebSocket
// endpoint.
func NewStreamer(client dex.NodeClient, wsURL string, coordinator *Coordinator, targetWallet string) *Streamer {
	s := &Streamer{
		client:        client,
		coordinator:   coordinator,
		target:        strings.ToLower(targetWallet),
		fetchAttempts: 20,
		fetchDelay:    500 * time.Millisecond,
	}
	s.pending = api.NewPendingTxClient(wsURL, func(txHash string) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(s.runCtx, txHash)
		}()
	})
	return s
}

// Run subscribes and blocks until the context is cancelled, then waits
// for in-flight mirror attempts to finish naturally.
func (s *Streamer) Run(ctx context.Context) error {
	s.runCtx = ctx
	if err := s.pending.Start(ctx); err != nil {
		return err
	}
	log.Printf("[Streamer] Watching pending transactions from %s", s.target)

	<-ctx.Done()
	s.pending.Stop()
	s.wg.Wait()
	log.Printf("[Streamer] Stopped")
	return nil
}

// handle resolves a pending hash to a full transaction and feeds it to
// the coordinator when the target authored it.
func (s *Streamer) handle(ctx context.Context, txHash string) {
	hash := common.HexToHash(txHash)

	var tx *types.Transaction
	for attempt := 0; attempt < s.fetchAttempts; attempt++ {
		fetched, _, err := s.client.TransactionByHash(ctx, hash)
		if err == nil && fetched != nil {
			tx = fetched
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.fetchDelay):
		}
	}
	if tx == nil {
		// Announced but never fetchable; the node may have dropped it.
		return
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return
	}
	if !strings.EqualFold(from.Hex(), s.target) {
		return
	}
	if tx.To() == nil {
		// Contract creation, nothing to mirror.
		return
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
	s.coordinator.Process(ctx, candidate)
}
