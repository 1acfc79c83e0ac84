package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("/var/cache/depot")

	c.IncHit(1000)
	c.IncHit(500)
	c.IncMiss()
	c.IncResolutionSucceeded()
	c.IncResolutionFailed()
	c.IncVerificationFailed()
	c.IncCorruptionEvicted()
	c.IncTierSuccess("http", 200*time.Millisecond, 4096)
	c.IncTierSuccess("http", 400*time.Millisecond, 4096)
	c.IncTierFailure("registry")
	c.IncTierSkipped("native")

	s := c.Snapshot()

	if s.Hits != 2 {
		t.Errorf("Hits = %d, want 2", s.Hits)
	}
	if s.Misses != 1 {
		t.Errorf("Misses = %d, want 1", s.Misses)
	}
	if s.BytesServedFromCache != 1500 {
		t.Errorf("BytesServedFromCache = %d, want 1500", s.BytesServedFromCache)
	}
	if s.ResolutionsSucceeded != 1 {
		t.Errorf("ResolutionsSucceeded = %d, want 1", s.ResolutionsSucceeded)
	}
	if s.ResolutionsFailed != 1 {
		t.Errorf("ResolutionsFailed = %d, want 1", s.ResolutionsFailed)
	}
	if s.VerificationFailures != 1 {
		t.Errorf("VerificationFailures = %d, want 1", s.VerificationFailures)
	}
	if s.CorruptionEvictions != 1 {
		t.Errorf("CorruptionEvictions = %d, want 1", s.CorruptionEvictions)
	}

	http := s.Tiers["http"]
	if http.Successes != 2 {
		t.Errorf("http Successes = %d, want 2", http.Successes)
	}
	if http.BytesFetched != 8192 {
		t.Errorf("http BytesFetched = %d, want 8192", http.BytesFetched)
	}
	if http.AvgLatency() != 300*time.Millisecond {
		t.Errorf("http AvgLatency = %v, want 300ms", http.AvgLatency())
	}
	if s.Tiers["registry"].Failures != 1 {
		t.Errorf("registry Failures = %d, want 1", s.Tiers["registry"].Failures)
	}
	if s.Tiers["native"].Skipped != 1 {
		t.Errorf("native Skipped = %d, want 1", s.Tiers["native"].Skipped)
	}
}

func TestCollector_HitRate(t *testing.T) {
	c := NewCollector("/tmp/cache")

	if rate := c.Snapshot().HitRate(); rate != 0 {
		t.Errorf("empty HitRate = %v, want 0", rate)
	}

	for range 3 {
		c.IncHit(0)
	}
	c.IncMiss()

	if rate := c.Snapshot().HitRate(); rate != 0.75 {
		t.Errorf("HitRate = %v, want 0.75", rate)
	}
}

func TestCollector_NilReceiverSafe(t *testing.T) {
	var c *Collector

	// None of these may panic.
	c.IncHit(1)
	c.IncMiss()
	c.IncResolutionSucceeded()
	c.IncResolutionFailed()
	c.IncVerificationFailed()
	c.IncCorruptionEvicted()
	c.IncTierSuccess("http", time.Second, 1)
	c.IncTierFailure("http")
	c.IncTierSkipped("http")

	s := c.Snapshot()
	if s.Hits != 0 {
		t.Errorf("nil collector Snapshot.Hits = %d, want 0", s.Hits)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("/tmp/cache")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.IncHit(1)
				c.IncTierSuccess("http", time.Millisecond, 1)
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.Hits != 1000 {
		t.Errorf("Hits = %d, want 1000", s.Hits)
	}
	if s.Tiers["http"].Successes != 1000 {
		t.Errorf("http Successes = %d, want 1000", s.Tiers["http"].Successes)
	}
}

func TestSnapshot_Immutable(t *testing.T) {
	c := NewCollector("/tmp/cache")
	c.IncTierSuccess("http", time.Millisecond, 1)

	s1 := c.Snapshot()
	c.IncTierSuccess("http", time.Millisecond, 1)
	s2 := c.Snapshot()

	if s1.Tiers["http"].Successes != 1 {
		t.Error("earlier snapshot mutated by later increments")
	}
	if s2.Tiers["http"].Successes != 2 {
		t.Error("later snapshot missing increment")
	}
}
