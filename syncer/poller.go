package syncer

import (
	"context"
	"log"
	"time"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/api"
)

// Poller acquires candidate transactions by periodically asking the
// scanner for the target's most recent transaction. Only a change of the
// latest hash triggers the pipeline; the first observation seeds the
// cursor and is never mirrored.
type Poller struct {
	scanner  *api.ScannerClient
	target   string
	interval time.Duration

	coordinator *Coordinator
	lastTxHash  string // cursor: monotonically replaced, never rolled back
}

// NewPoller creates a polling source feeding the coordinator.
func NewPoller(scanner *api.ScannerClient, coordinator *Coordinator, targetWallet string, interval time.Duration) *Poller {
	return &Poller{
		scanner:     scanner,
		coordinator: coordinator,
		target:      targetWallet,
		interval:    interval,
	}
}

// Run polls until the context is cancelled. Each tick drives the whole
// pipeline sequentially, so no two mirror attempts are ever in flight at
// once in this mode.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[Poller] Watching %s every %s", p.target, p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Poller] Stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	latest, err := p.scanner.LatestTransaction(ctx, p.target)
	if err != nil {
		log.Printf("[Poller] Scanner lookup failed: %v", err)
		return
	}
	if latest == nil || latest.Hash == "" {
		return
	}

	if p.lastTxHash == "" {
		// Seed only; replaying the target's existing history would
		// mirror stale trades.
		p.lastTxHash = latest.Hash
		log.Printf("[Poller] Cursor seeded at %s", latest.Hash)
		return
	}
	if latest.Hash == p.lastTxHash {
		return
	}
	p.lastTxHash = latest.Hash

	candidate, err := latest.Candidate()
	if err != nil {
		log.Printf("[Poller] Skipping malformed scanner entry: %v", err)
		return
	}
	log.Printf("[Poller] Got new tx: %s", candidate.Hash)
	p.coordinator.Process(ctx, candidate)
}
