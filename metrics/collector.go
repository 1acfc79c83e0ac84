// Package metrics provides resolution counters for the depot engine.
//
// The Collector accumulates counters across resolutions. It is a leaf
// package with no internal dependencies. The reporter derives hit rates,
// per-tier latency and bandwidth estimates from immutable snapshots.
package metrics

import (
	"sync"
	"time"
)

// TierStats aggregates outcomes for one installer tier.
type TierStats struct {
	Successes    int64
	Failures     int64
	Skipped      int64
	TotalLatency time.Duration
	BytesFetched int64
}

// AvgLatency returns the mean latency of successful attempts.
func (t TierStats) AvgLatency() time.Duration {
	if t.Successes == 0 {
		return 0
	}
	return t.TotalLatency / time.Duration(t.Successes)
}

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Cache outcomes
	Hits   int64
	Misses int64

	// Resolution outcomes
	ResolutionsSucceeded int64
	ResolutionsFailed    int64
	VerificationFailures int64
	CorruptionEvictions  int64

	// Per-tier outcomes, keyed by tier name
	Tiers map[string]TierStats

	// Cache bytes served locally (estimates bandwidth saved)
	BytesServedFromCache int64

	// Dimensions (informational, set at construction)
	CacheRoot string
}

// HitRate returns hits / (hits + misses), or 0 when there is no traffic.
func (s Snapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Collector accumulates resolution metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	hits   int64
	misses int64

	resolutionsSucceeded int64
	resolutionsFailed    int64
	verificationFailures int64
	corruptionEvictions  int64

	tiers map[string]*TierStats

	bytesServedFromCache int64

	cacheRoot string
}

// NewCollector creates a Collector labeled with the cache root.
func NewCollector(cacheRoot string) *Collector {
	return &Collector{
		tiers:     make(map[string]*TierStats),
		cacheRoot: cacheRoot,
	}
}

// IncHit records a cache hit and the bytes it served locally.
func (c *Collector) IncHit(sizeBytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.hits++
	c.bytesServedFromCache += sizeBytes
	c.mu.Unlock()
}

// IncMiss records a cache miss.
func (c *Collector) IncMiss() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// IncResolutionSucceeded records a completed resolution.
func (c *Collector) IncResolutionSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resolutionsSucceeded++
	c.mu.Unlock()
}

// IncResolutionFailed records a resolution where every tier exhausted.
func (c *Collector) IncResolutionFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resolutionsFailed++
	c.mu.Unlock()
}

// IncVerificationFailed records a digest verification failure.
func (c *Collector) IncVerificationFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.verificationFailures++
	c.mu.Unlock()
}

// IncCorruptionEvicted records a self-heal eviction of a corrupted entry.
func (c *Collector) IncCorruptionEvicted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.corruptionEvictions++
	c.mu.Unlock()
}

// tierStats returns the mutable stats bucket for a tier. Caller holds mu.
func (c *Collector) tierStats(tier string) *TierStats {
	t, ok := c.tiers[tier]
	if !ok {
		t = &TierStats{}
		c.tiers[tier] = t
	}
	return t
}

// IncTierSuccess records a successful tier fetch with its latency and size.
func (c *Collector) IncTierSuccess(tier string, latency time.Duration, sizeBytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	t := c.tierStats(tier)
	t.Successes++
	t.TotalLatency += latency
	t.BytesFetched += sizeBytes
	c.mu.Unlock()
}

// IncTierFailure records a failed tier attempt.
func (c *Collector) IncTierFailure(tier string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.tierStats(tier).Failures++
	c.mu.Unlock()
}

// IncTierSkipped records a tier skipped for missing prerequisites.
func (c *Collector) IncTierSkipped(tier string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.tierStats(tier).Skipped++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all counters.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tiers := make(map[string]TierStats, len(c.tiers))
	for name, t := range c.tiers {
		tiers[name] = *t
	}

	return Snapshot{
		Hits:                 c.hits,
		Misses:               c.misses,
		ResolutionsSucceeded: c.resolutionsSucceeded,
		ResolutionsFailed:    c.resolutionsFailed,
		VerificationFailures: c.verificationFailures,
		CorruptionEvictions:  c.corruptionEvictions,
		Tiers:                tiers,
		BytesServedFromCache: c.bytesServedFromCache,
		CacheRoot:            c.cacheRoot,
	}
}
