package syncer

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/dex"
	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/models"
)

// maxDispatchedHashes bounds the duplicate-suppression set in streaming
// mode; oldest entries are evicted first.
const maxDispatchedHashes = 4096

// recentOrderLimit bounds the in-memory order history served by the
// status API.
const recentOrderLimit = 100

// OrderExecutor submits a mirror order and returns the mirror
// transaction hash.
type OrderExecutor interface {
	Execute(ctx context.Context, order *models.MirrorOrder) (string, error)
}

// DecimalsFunc resolves a token's decimal precision.
type DecimalsFunc func(ctx context.Context, token common.Address) (uint8, error)

// Coordinator runs each candidate transaction through decode, policy,
// the optional confirmation gate and the executor, enforcing
// at-most-once dispatch per source hash.
type Coordinator struct {
	decoder  *dex.Decoder
	policy   *Policy
	executor OrderExecutor
	gate     *ConfirmationGate
	decimals DecimalsFunc
	bounds   models.Bounds
	target   string
	metrics  *Metrics

	dispatched     map[string]bool
	dispatchedFifo []string
	recentOrders   []models.MirrorOrder
	mu             sync.Mutex
}

// NewCoordinator wires the pipeline for one target wallet. gate may be
// nil when confirmation gating is disabled.
func NewCoordinator(decoder *dex.Decoder, policy *Policy, executor OrderExecutor, gate *ConfirmationGate, decimals DecimalsFunc, bounds models.Bounds, targetWallet string, metrics *Metrics) *Coordinator {
	return &Coordinator{
		decoder:    decoder,
		policy:     policy,
		executor:   executor,
		gate:       gate,
		decimals:   decimals,
		bounds:     bounds,
		target:     strings.ToLower(targetWallet),
		metrics:    metrics,
		dispatched: make(map[string]bool),
	}
}

// Process runs one candidate transaction through the full pipeline. It
// never returns an error: every failure category is logged and absorbed
// so the sources keep running.
func (c *Coordinator) Process(ctx context.Context, tx models.CandidateTx) {
	if !strings.EqualFold(tx.From, c.target) {
		return
	}
	if !c.claim(tx.Hash) {
		c.metrics.Update(func(m *MirrorMetrics) { m.DuplicatesDropped++ })
		log.Printf("[Watcher] Duplicate delivery of %s, skipping", tx.Hash)
		return
	}

	c.metrics.Update(func(m *MirrorMetrics) {
		m.CandidatesSeen++
		m.LastCandidateTime = time.Now()
	})
	log.Printf("[Watcher] New transaction found: %s", tx.Hash)

	intent, err := c.decoder.Decode(tx)
	if err != nil {
		log.Printf("[Watcher] Decode failed for %s: %v", tx.Hash, err)
		return
	}
	if intent == nil {
		c.metrics.Update(func(m *MirrorMetrics) { m.DecodeMisses++ })
		log.Printf("[Watcher] Method not implemented in %s, skipping", tx.Hash)
		return
	}

	amountToken := AmountToken(intent, c.bounds.BaseAsset)
	decimals := uint8(18)
	if amountToken != c.bounds.BaseAsset {
		decimals, err = c.decimals(ctx, common.HexToAddress(amountToken))
		if err != nil {
			log.Printf("[Watcher] Decimals lookup for %s failed: %v", amountToken, err)
			return
		}
	}

	clamped := Clamp(Normalize(intent.RawAmount, decimals), c.bounds)
	order, reject := c.policy.Decide(intent, clamped)
	if order == nil {
		c.metrics.Update(func(m *MirrorMetrics) { m.PolicyRejects++ })
		log.Printf("[Watcher] Not mirroring %s: %s", tx.Hash, reject)
		return
	}

	if c.gate != nil && c.bounds.ConfirmationsRequired > 0 {
		state, err := c.gate.Await(ctx, tx.Hash)
		if state != GateConfirmed {
			c.metrics.Update(func(m *MirrorMetrics) { m.GateDrops++ })
			log.Printf("[Watcher] Dropping %s at confirmation gate: %v", tx.Hash, err)
			return
		}
	}

	c.dispatch(ctx, order)
}

// dispatch hands the order to the executor and records the outcome.
func (c *Coordinator) dispatch(ctx context.Context, order *models.MirrorOrder) {
	log.Printf("[Watcher] Bot %ss %s of base-denominated size, source %s",
		strings.ToLower(string(order.Direction)), order.Amount, order.SourceTxHash)

	hash, err := c.executor.Execute(ctx, order)
	if err != nil {
		order.Status = models.OrderFailed
		order.FailReason = err.Error()
		if errors.Is(err, dex.ErrInsufficientFunds) {
			c.metrics.Update(func(m *MirrorMetrics) { m.InsufficientFunds++ })
			log.Printf("[Watcher] Order for %s aborted: %v", order.SourceTxHash, err)
		} else {
			c.metrics.Update(func(m *MirrorMetrics) { m.OrdersFailed++ })
			log.Printf("[Watcher] Order for %s failed: %v", order.SourceTxHash, err)
		}
		c.remember(*order)
		return
	}

	order.Status = models.OrderSubmitted
	order.MirrorTxHash = hash
	c.metrics.Update(func(m *MirrorMetrics) {
		m.OrdersSubmitted++
		m.LastSubmissionTime = time.Now()
	})
	log.Printf("[Watcher] Mirror order submitted: %s (source %s)", hash, order.SourceTxHash)
	c.remember(*order)
}

// claim marks a source hash as handled, returning false when it was
// already claimed. The set is bounded; old hashes are evicted FIFO.
func (c *Coordinator) claim(hash string) bool {
	key := strings.ToLower(hash)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dispatched[key] {
		return false
	}
	c.dispatched[key] = true
	c.dispatchedFifo = append(c.dispatchedFifo, key)
	if len(c.dispatchedFifo) > maxDispatchedHashes {
		oldest := c.dispatchedFifo[0]
		c.dispatchedFifo = c.dispatchedFifo[1:]
		delete(c.dispatched, oldest)
	}
	return true
}

func (c *Coordinator) remember(order models.MirrorOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentOrders = append(c.recentOrders, order)
	if len(c.recentOrders) > recentOrderLimit {
		c.recentOrders = c.recentOrders[1:]
	}
}

// RecentOrders returns a copy of the most recent mirror orders, newest
// last.
func (c *Coordinator) RecentOrders() []models.MirrorOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.MirrorOrder, len(c.recentOrders))
	copy(out, c.recentOrders)
	return out
}
