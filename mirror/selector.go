// Package mirror implements mirror pool selection for the download tier.
//
// A pool is a named set of interchangeable base URLs serving the same
// artifacts. The selector picks one endpoint per download attempt so
// load spreads across mirrors and a sticky assignment can keep one
// ecosystem on one mirror.
package mirror

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Strategy selects how endpoints are chosen from a pool.
type Strategy string

// Selection strategies.
const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
	StrategySticky     Strategy = "sticky"
)

// StickyScope selects what a sticky assignment is keyed by.
type StickyScope string

// Sticky scopes.
const (
	// StickyEcosystem keeps one ecosystem's downloads on one mirror.
	StickyEcosystem StickyScope = "ecosystem"
	// StickyReference keeps one artifact's downloads on one mirror.
	StickyReference StickyScope = "reference"
)

// Endpoint is one mirror base URL.
type Endpoint struct {
	// BaseURL is the mirror root, e.g. "https://mirror-eu.example/artifacts".
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// Sticky configures sticky selection for a pool.
type Sticky struct {
	Scope StickyScope `json:"scope" yaml:"scope"`
	// TTL bounds how long a sticky assignment lives. Zero means no expiry.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// Pool is a named set of mirror endpoints with a selection strategy.
type Pool struct {
	Name      string     `json:"name" yaml:"name"`
	Strategy  Strategy   `json:"strategy" yaml:"strategy"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
	Sticky    *Sticky    `json:"sticky,omitempty" yaml:"sticky,omitempty"`
}

// Validate checks structural pool requirements.
func (p *Pool) Validate() error {
	if p.Name == "" {
		return errors.New("mirror pool requires a name")
	}
	if len(p.Endpoints) == 0 {
		return fmt.Errorf("mirror pool %q has no endpoints", p.Name)
	}
	switch p.Strategy {
	case StrategyRoundRobin, StrategyRandom, StrategySticky:
	case "":
		p.Strategy = StrategyRoundRobin
	default:
		return fmt.Errorf("mirror pool %q has unknown strategy %q", p.Name, p.Strategy)
	}
	for _, ep := range p.Endpoints {
		if ep.BaseURL == "" {
			return fmt.Errorf("mirror pool %q has an endpoint without a base URL", p.Name)
		}
	}
	return nil
}

// Selector manages endpoint selection from pools.
// Thread-safe for concurrent access.
type Selector struct {
	mu    sync.Mutex
	pools map[string]*poolState
}

// poolState holds runtime state for a single pool.
type poolState struct {
	pool      *Pool
	rrIndex   int64                   // round-robin counter
	stickyMap map[string]*stickyEntry // sticky key -> entry
}

// stickyEntry holds a sticky assignment with optional TTL.
type stickyEntry struct {
	endpointIdx int
	expiresAt   *time.Time
}

// NewSelector creates a new mirror selector.
func NewSelector() *Selector {
	return &Selector{pools: make(map[string]*poolState)}
}

// RegisterPool registers a mirror pool.
// Returns error if pool validation fails.
func (s *Selector) RegisterPool(pool *Pool) error {
	if err := pool.Validate(); err != nil {
		return fmt.Errorf("pool validation failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[pool.Name] = &poolState{
		pool:      pool,
		stickyMap: make(map[string]*stickyEntry),
	}
	return nil
}

// SelectRequest contains parameters for endpoint selection.
type SelectRequest struct {
	// Pool is the pool name to select from.
	Pool string
	// StrategyOverride optionally overrides the pool's strategy.
	StrategyOverride *Strategy
	// Ecosystem derives the sticky key when scope is "ecosystem".
	Ecosystem string
	// Reference derives the sticky key when scope is "reference".
	Reference string
	// Commit determines whether to advance rotation counters.
	// When false, returns what would be selected without mutating state.
	Commit bool
}

// Select selects a mirror endpoint from the specified pool.
// Returns error if the pool is not found or selection fails.
func (s *Selector) Select(req SelectRequest) (*Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[req.Pool]
	if !ok {
		return nil, fmt.Errorf("mirror pool %q not found", req.Pool)
	}

	strategy := state.pool.Strategy
	if req.StrategyOverride != nil {
		strategy = *req.StrategyOverride
	}

	var idx int
	var err error

	switch strategy {
	case StrategyRoundRobin:
		idx = s.selectRoundRobin(state, req.Commit)
	case StrategyRandom:
		idx, err = s.selectRandom(state)
		if err != nil {
			return nil, err
		}
	case StrategySticky:
		idx, err = s.selectSticky(state, req, req.Commit)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}

	ep := state.pool.Endpoints[idx]
	return &ep, nil
}

// selectRoundRobin selects using round-robin.
// Increments the counter only when commit is true.
func (s *Selector) selectRoundRobin(state *poolState, commit bool) int {
	idx := int(state.rrIndex % int64(len(state.pool.Endpoints)))
	if commit {
		state.rrIndex++
	}
	return idx
}

// selectRandom selects uniformly at random.
func (s *Selector) selectRandom(state *poolState) (int, error) {
	n := len(state.pool.Endpoints)
	if n == 1 {
		return 0, nil
	}

	bigIdx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random selection failed: %w", err)
	}
	return int(bigIdx.Int64()), nil
}

// selectSticky selects using sticky assignment.
// Stores a new assignment only when commit is true.
func (s *Selector) selectSticky(state *poolState, req SelectRequest, commit bool) (int, error) {
	stickyKey := s.deriveStickyKey(state, req)
	if stickyKey == "" {
		return 0, errors.New("sticky selection requires an ecosystem or reference key")
	}

	now := time.Now()

	if entry, ok := state.stickyMap[stickyKey]; ok {
		if entry.expiresAt == nil || entry.expiresAt.After(now) {
			return entry.endpointIdx, nil
		}
		delete(state.stickyMap, stickyKey)
	}

	// New assignments start from a random endpoint.
	idx, err := s.selectRandom(state)
	if err != nil {
		return 0, err
	}

	if commit {
		entry := &stickyEntry{endpointIdx: idx}
		if state.pool.Sticky != nil && state.pool.Sticky.TTL > 0 {
			expiresAt := now.Add(state.pool.Sticky.TTL)
			entry.expiresAt = &expiresAt
		}
		state.stickyMap[stickyKey] = entry
	}

	return idx, nil
}

// deriveStickyKey derives the sticky key from the pool's configured scope.
// Defaults to the ecosystem when no sticky config is present.
func (s *Selector) deriveStickyKey(state *poolState, req SelectRequest) string {
	if state.pool.Sticky == nil {
		return req.Ecosystem
	}
	switch state.pool.Sticky.Scope {
	case StickyReference:
		return req.Reference
	default:
		return req.Ecosystem
	}
}

// PoolStats returns statistics for a pool.
type PoolStats struct {
	RoundRobinIndex int64
	StickyEntries   int
}

// Stats returns statistics for a pool.
func (s *Selector) Stats(poolName string) (*PoolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.pools[poolName]
	if !ok {
		return nil, fmt.Errorf("mirror pool %q not found", poolName)
	}

	return &PoolStats{
		RoundRobinIndex: state.rrIndex,
		StickyEntries:   len(state.stickyMap),
	}, nil
}

// CleanExpiredSticky removes expired sticky entries from all pools.
// Call periodically to prevent unbounded growth.
func (s *Selector) CleanExpiredSticky() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, state := range s.pools {
		for key, entry := range state.stickyMap {
			if entry.expiresAt != nil && entry.expiresAt.Before(now) {
				delete(state.stickyMap, key)
			}
		}
	}
}
