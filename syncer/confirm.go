package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/platinum-engineering/qdefirating-autofollow-trading-bot/dex"
)

// GateState names the confirmation gate's phases.
type GateState int

const (
	GateDetected GateState = iota
	GateWaitingConfirmation
	GateConfirmed
	GateDropped
)

// ErrSourceNotVisible is returned when the source transaction never
// became fetchable within the retry budget.
var ErrSourceNotVisible = fmt.Errorf("source transaction not visible")

// ConfirmationGate holds a detected source transaction until it has
// accumulated the required number of confirmations. It replaces the
// original self-rescheduling callback with a bounded loop whose retry
// ceiling and cadence are plain fields, so they can be exercised in
// tests.
type ConfirmationGate struct {
	client   dex.NodeClient
	required int

	FetchAttempts int
	FetchDelay    time.Duration
	PollInterval  time.Duration
}

// NewConfirmationGate creates a gate requiring the given confirmation
// count. A required count of zero means the gate is a pass-through.
func NewConfirmationGate(client dex.NodeClient, required int) *ConfirmationGate {
	return &ConfirmationGate{
		client:        client,
		required:      required,
		FetchAttempts: 20,
		FetchDelay:    500 * time.Millisecond,
		PollInterval:  30 * time.Second,
	}
}

// Await blocks until the source transaction reaches the required
// confirmations, returning the terminal state. GateDropped comes with a
// non-nil error describing why the transaction cannot be mirrored.
func (g *ConfirmationGate) Await(ctx context.Context, txHash string) (GateState, error) {
	if g.required == 0 {
		return GateConfirmed, nil
	}

	hash := common.HexToHash(txHash)

	// The source may have been observed before the node indexed it; give
	// it a bounded window to show up.
	visible := false
	for attempt := 0; attempt < g.FetchAttempts; attempt++ {
		_, _, err := g.client.TransactionByHash(ctx, hash)
		if err == nil {
			visible = true
			break
		}
		select {
		case <-ctx.Done():
			return GateDropped, ctx.Err()
		case <-time.After(g.FetchDelay):
		}
	}
	if !visible {
		return GateDropped, fmt.Errorf("%w after %d attempts: %s", ErrSourceNotVisible, g.FetchAttempts, txHash)
	}

	log.Printf("[Gate] Waiting for %d confirmation(s) of %s", g.required, txHash)
	for {
		confirmations, err := g.confirmations(ctx, hash)
		if err != nil {
			log.Printf("[Gate] Confirmation check for %s failed: %v", txHash, err)
		} else if confirmations >= uint64(g.required) {
			log.Printf("[Gate] Transaction %s confirmed", txHash)
			return GateConfirmed, nil
		}

		select {
		case <-ctx.Done():
			return GateDropped, ctx.Err()
		case <-time.After(g.PollInterval):
		}
	}
}

// confirmations counts blocks mined after the transaction's inclusion
// block. An unmined transaction has zero confirmations.
func (g *ConfirmationGate) confirmations(ctx context.Context, hash common.Hash) (uint64, error) {
	receipt, err := g.client.TransactionReceipt(ctx, hash)
	if err != nil || receipt == nil || receipt.BlockNumber == nil {
		return 0, nil
	}
	current, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	inclusion := receipt.BlockNumber.Uint64()
	if current < inclusion {
		return 0, nil
	}
	return current - inclusion, nil
}
