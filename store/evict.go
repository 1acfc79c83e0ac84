package store

import (
	"sort"
	"time"

	"github.com/opencontainers/go-digest"
)

// EvictPolicy selects which limit drives an eviction pass. Exactly one of
// the fields should be set; when both are set, both limits are enforced.
type EvictPolicy struct {
	// MaxTotalBytes evicts least-recently-used blobs until total blob
	// size is at or below this limit. Zero disables the size limit.
	MaxTotalBytes int64
	// MaxAge evicts blobs whose most recent access is older than this.
	// Zero disables the age limit.
	MaxAge time.Duration
}

// EvictResult summarizes an eviction pass.
type EvictResult struct {
	BlobsRemoved   int   `json:"blobs_removed"`
	EntriesRemoved int   `json:"entries_removed"`
	BytesFreed     int64 `json:"bytes_freed"`
}

// lruCandidate groups index entries by digest for eviction ordering.
type lruCandidate struct {
	digest       digest.Digest
	size         int64
	refCount     int
	lastAccessed time.Time
}

// Evict removes blobs in pure LRU order (ascending last-accessed) until
// the policy limits are satisfied. The eviction unit is the blob: when a
// digest is evicted, every reference entry pointing at it goes with it.
// A blob shared by several references ages by its most recent access.
// Blobs with open readers are skipped and retried on the next pass.
func (s *Store) Evict(policy EvictPolicy, now time.Time) (EvictResult, error) {
	var result EvictResult

	entries, err := s.index.entries()
	if err != nil {
		return result, err
	}

	byDigest := make(map[digest.Digest]*lruCandidate)
	var total int64
	for _, e := range entries {
		c, ok := byDigest[e.Digest]
		if !ok {
			c = &lruCandidate{digest: e.Digest, size: e.SizeBytes}
			byDigest[e.Digest] = c
			total += e.SizeBytes
		}
		c.refCount++
		if e.LastAccessedAt.After(c.lastAccessed) {
			c.lastAccessed = e.LastAccessedAt
		}
	}

	candidates := make([]*lruCandidate, 0, len(byDigest))
	for _, c := range byDigest {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	for _, c := range candidates {
		expired := policy.MaxAge > 0 && now.Sub(c.lastAccessed) > policy.MaxAge
		oversized := policy.MaxTotalBytes > 0 && total > policy.MaxTotalBytes
		if !expired && !oversized {
			// Candidates are ordered oldest first: if this one is
			// neither expired nor needed for the size limit, none of
			// the newer ones are either.
			break
		}

		if s.pinned(c.digest) {
			continue
		}

		if err := s.RemoveBlob(c.digest); err != nil {
			return result, err
		}
		result.BlobsRemoved++
		result.EntriesRemoved += c.refCount
		result.BytesFreed += c.size
		total -= c.size
	}

	return result, nil
}

// Clear removes entries older than the cutoff, or every entry when
// olderThan is zero. Returns the number of reference entries removed.
func (s *Store) Clear(olderThan time.Duration, now time.Time) (int, error) {
	if olderThan == 0 {
		entries, err := s.index.entries()
		if err != nil {
			return 0, err
		}

		refCount := make(map[digest.Digest]int)
		for _, e := range entries {
			refCount[e.Digest]++
		}

		removed := 0
		for d, refs := range refCount {
			if s.pinned(d) {
				continue
			}
			if err := s.RemoveBlob(d); err != nil {
				return removed, err
			}
			removed += refs
		}
		return removed, nil
	}

	result, err := s.Evict(EvictPolicy{MaxAge: olderThan}, now)
	return result.EntriesRemoved, err
}
