package mirror

import (
	"testing"
	"time"
)

func testPool(name string, strategy Strategy, urls ...string) *Pool {
	eps := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		eps = append(eps, Endpoint{BaseURL: u})
	}
	return &Pool{Name: name, Strategy: strategy, Endpoints: eps}
}

func TestRegisterPool_Validation(t *testing.T) {
	s := NewSelector()

	if err := s.RegisterPool(&Pool{Name: "", Endpoints: []Endpoint{{BaseURL: "https://a"}}}); err == nil {
		t.Error("expected error for pool without name")
	}
	if err := s.RegisterPool(&Pool{Name: "empty"}); err == nil {
		t.Error("expected error for pool without endpoints")
	}
	if err := s.RegisterPool(testPool("bad", Strategy("weighted"), "https://a")); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if err := s.RegisterPool(testPool("ok", "", "https://a")); err != nil {
		t.Errorf("empty strategy should default to round_robin: %v", err)
	}
}

func TestSelect_RoundRobin(t *testing.T) {
	s := NewSelector()
	if err := s.RegisterPool(testPool("p", StrategyRoundRobin, "https://a", "https://b", "https://c")); err != nil {
		t.Fatalf("register: %v", err)
	}

	want := []string{"https://a", "https://b", "https://c", "https://a"}
	for i, w := range want {
		ep, err := s.Select(SelectRequest{Pool: "p", Commit: true})
		if err != nil {
			t.Fatalf("select %d: %v", i, err)
		}
		if ep.BaseURL != w {
			t.Errorf("select %d: got %s, want %s", i, ep.BaseURL, w)
		}
	}
}

func TestSelect_RoundRobinNoCommit(t *testing.T) {
	s := NewSelector()
	if err := s.RegisterPool(testPool("p", StrategyRoundRobin, "https://a", "https://b")); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Without commit the counter must not advance.
	for i := 0; i < 3; i++ {
		ep, err := s.Select(SelectRequest{Pool: "p"})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if ep.BaseURL != "https://a" {
			t.Errorf("uncommitted select %d moved rotation: got %s", i, ep.BaseURL)
		}
	}

	stats, err := s.Stats("p")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.RoundRobinIndex != 0 {
		t.Errorf("round-robin index advanced without commit: %d", stats.RoundRobinIndex)
	}
}

func TestSelect_Random(t *testing.T) {
	s := NewSelector()
	if err := s.RegisterPool(testPool("p", StrategyRandom, "https://a", "https://b")); err != nil {
		t.Fatalf("register: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ep, err := s.Select(SelectRequest{Pool: "p", Commit: true})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		seen[ep.BaseURL] = true
	}
	if len(seen) != 2 {
		t.Errorf("random selection over 100 draws hit %d endpoints, want 2", len(seen))
	}
}

func TestSelect_StickyByEcosystem(t *testing.T) {
	s := NewSelector()
	pool := testPool("p", StrategySticky, "https://a", "https://b", "https://c")
	pool.Sticky = &Sticky{Scope: StickyEcosystem}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := s.Select(SelectRequest{Pool: "p", Ecosystem: "npm", Commit: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for i := 0; i < 10; i++ {
		ep, err := s.Select(SelectRequest{Pool: "p", Ecosystem: "npm", Commit: true})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if ep.BaseURL != first.BaseURL {
			t.Errorf("sticky assignment moved: got %s, want %s", ep.BaseURL, first.BaseURL)
		}
	}
}

func TestSelect_StickyByReference(t *testing.T) {
	s := NewSelector()
	pool := testPool("p", StrategySticky, "https://a", "https://b", "https://c")
	pool.Sticky = &Sticky{Scope: StickyReference}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := s.Select(SelectRequest{Pool: "p", Reference: "npm/lodash:4.17.21", Commit: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	ep, err := s.Select(SelectRequest{Pool: "p", Reference: "npm/lodash:4.17.21", Commit: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if ep.BaseURL != first.BaseURL {
		t.Errorf("sticky by reference moved: got %s, want %s", ep.BaseURL, first.BaseURL)
	}
}

func TestSelect_StickyMissingKey(t *testing.T) {
	s := NewSelector()
	pool := testPool("p", StrategySticky, "https://a")
	pool.Sticky = &Sticky{Scope: StickyEcosystem}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := s.Select(SelectRequest{Pool: "p", Commit: true}); err == nil {
		t.Error("expected error for sticky selection without key")
	}
}

func TestSelect_StickyTTLExpiry(t *testing.T) {
	s := NewSelector()
	pool := testPool("p", StrategySticky, "https://a", "https://b")
	pool.Sticky = &Sticky{Scope: StickyEcosystem, TTL: time.Millisecond}
	if err := s.RegisterPool(pool); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := s.Select(SelectRequest{Pool: "p", Ecosystem: "pip", Commit: true}); err != nil {
		t.Fatalf("select: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	s.CleanExpiredSticky()

	stats, err := s.Stats("p")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.StickyEntries != 0 {
		t.Errorf("expired sticky entries remain: %d", stats.StickyEntries)
	}
}

func TestSelect_StrategyOverride(t *testing.T) {
	s := NewSelector()
	if err := s.RegisterPool(testPool("p", StrategyRandom, "https://a", "https://b")); err != nil {
		t.Fatalf("register: %v", err)
	}

	rr := StrategyRoundRobin
	ep, err := s.Select(SelectRequest{Pool: "p", StrategyOverride: &rr, Commit: true})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if ep.BaseURL != "https://a" {
		t.Errorf("override to round_robin should start at first endpoint, got %s", ep.BaseURL)
	}
}

func TestSelect_PoolNotFound(t *testing.T) {
	s := NewSelector()
	if _, err := s.Select(SelectRequest{Pool: "nope"}); err == nil {
		t.Error("expected error for unknown pool")
	}
}
