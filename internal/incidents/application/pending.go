package application

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	incident "homehub-cloud/internal/incidents/domain"
	"homehub-cloud/internal/observability/metrics"

	"go.uber.org/zap"
)

// PendingCancels holds cancel requests awaiting a monitoring-station
// response, keyed by correlation id. Responses arrive on a different
// goroutine than the one that registered the entry, so the map is sharded
// and locked. Entries that outlive their deadline are failed with a
// timeout by the sweeper; a response arriving after that is a no-op.
type PendingCancels struct {
	shards []*cancelShard
	ttl    time.Duration
	clock  Clock
	log    *zap.Logger
}

type cancelShard struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

type pendingEntry struct {
	deadline time.Time
	resolve  func(error)
}

// NewPendingCancels constructs a cache with the given shard count and TTL.
func NewPendingCancels(shards int, ttl time.Duration, clock Clock, log *zap.Logger) *PendingCancels {
	if shards <= 0 {
		shards = 16
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if clock == nil {
		clock = systemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &PendingCancels{
		shards: make([]*cancelShard, shards),
		ttl:    ttl,
		clock:  clock,
		log:    log,
	}
	for i := range p.shards {
		p.shards[i] = &cancelShard{entries: make(map[string]*pendingEntry)}
	}
	return p
}

// Add registers a pending cancel under a correlation id. The resolve
// callback runs exactly once, with nil on success, the station's error on
// rejection, or ErrCancelTimeout on expiry.
func (p *PendingCancels) Add(correlationID string, resolve func(error)) {
	if p == nil || correlationID == "" || resolve == nil {
		return
	}
	shard := p.shardFor(correlationID)
	shard.mu.Lock()
	shard.entries[correlationID] = &pendingEntry{
		deadline: p.clock.Now().Add(p.ttl),
		resolve:  resolve,
	}
	shard.mu.Unlock()
	metrics.SetCancelWaiting(p.Len())
}

// Resolve removes the entry and invokes its callback. Unknown or already
// evicted correlation ids return false and do nothing.
func (p *PendingCancels) Resolve(correlationID string, err error) bool {
	if p == nil || correlationID == "" {
		return false
	}
	shard := p.shardFor(correlationID)
	shard.mu.Lock()
	entry, ok := shard.entries[correlationID]
	if ok {
		delete(shard.entries, correlationID)
	}
	shard.mu.Unlock()
	if !ok {
		return false
	}
	metrics.SetCancelWaiting(p.Len())
	entry.resolve(err)
	return true
}

// Sweep fails every entry whose deadline has passed and returns how many
// were expired. Callbacks run outside the shard locks.
func (p *PendingCancels) Sweep(now time.Time) int {
	if p == nil {
		return 0
	}
	var expired []*pendingEntry
	for _, shard := range p.shards {
		shard.mu.Lock()
		for id, entry := range shard.entries {
			if now.After(entry.deadline) {
				delete(shard.entries, id)
				expired = append(expired, entry)
			}
		}
		shard.mu.Unlock()
	}
	if len(expired) > 0 {
		metrics.SetCancelWaiting(p.Len())
	}
	for _, entry := range expired {
		entry.resolve(incident.ErrCancelTimeout)
	}
	return len(expired)
}

// Run sweeps the cache on the given interval until the context ends.
func (p *PendingCancels) Run(ctx context.Context, interval time.Duration) {
	if p == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Sweep(p.clock.Now()); n > 0 {
				p.log.Warn("expired pending cancels", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of entries across all shards.
func (p *PendingCancels) Len() int {
	if p == nil {
		return 0
	}
	total := 0
	for _, shard := range p.shards {
		shard.mu.Lock()
		total += len(shard.entries)
		shard.mu.Unlock()
	}
	return total
}

func (p *PendingCancels) shardFor(correlationID string) *cancelShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(correlationID))
	return p.shards[int(h.Sum32())%len(p.shards)]
}
