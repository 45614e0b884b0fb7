package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const metricsKey = "mirrorbot:metrics"

// MirrorMetrics counts pipeline outcomes since process start.
type MirrorMetrics struct {
	CandidatesSeen     int64     `json:"candidates_seen"`
	DecodeMisses       int64     `json:"decode_misses"`
	PolicyRejects      int64     `json:"policy_rejects"`
	GateDrops          int64     `json:"gate_drops"`
	OrdersSubmitted    int64     `json:"orders_submitted"`
	OrdersFailed       int64     `json:"orders_failed"`
	InsufficientFunds  int64     `json:"insufficient_funds"`
	DuplicatesDropped  int64     `json:"duplicates_dropped"`
	LastCandidateTime  time.Time `json:"last_candidate_time"`
	LastSubmissionTime time.Time `json:"last_submission_time"`
}

// Metrics is a concurrency-safe holder for MirrorMetrics.
type Metrics struct {
	mu   sync.RWMutex
	data MirrorMetrics
}

// NewMetrics creates an empty metrics holder.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update applies fn under the write lock.
func (m *Metrics) Update(fn func(*MirrorMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.data)
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() MirrorMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// MetricsStore persists metrics snapshots to Redis so dashboards can read
// them without talking to the bot. Snapshots expire after a day; this is
// observability data, not mirroring state.
type MetricsStore struct {
	redis *redis.Client
}

// NewMetricsStore creates a store over an existing Redis client.
func NewMetricsStore(redisClient *redis.Client) *MetricsStore {
	return &MetricsStore{redis: redisClient}
}

// Save writes the snapshot under the metrics key with a 24h TTL.
func (s *MetricsStore) Save(ctx context.Context, snapshot MirrorMetrics) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, metricsKey, data, 24*time.Hour).Err()
}
