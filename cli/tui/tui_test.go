package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/depot/metrics"
	"github.com/justapithecus/depot/mirror"
	"github.com/justapithecus/depot/store"
	"github.com/justapithecus/depot/types"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		// Supported: inspect views
		{"inspect_entry", true},
		{"inspect_pool", true},

		// Supported: stats views
		{"stats_cache", true},
		{"stats_tiers", true},

		// Not supported: mutating or list commands
		{"pull", false},
		{"list_entries", false},
		{"clear", false},
		{"recommend", false},
		{"version", false},

		// Not supported: unknown
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()

	if len(views) != 4 {
		t.Errorf("SupportedTUIViews() returned %d views, expected 4", len(views))
	}

	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	err := Run("list_entries", nil)
	if err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func TestStatsModel_RenderCacheView(t *testing.T) {
	data := &CacheStatsView{
		Store: store.Stats{Entries: 12, Blobs: 10, TotalBytes: 4096},
		Metrics: metrics.Snapshot{
			Hits:      90,
			Misses:    10,
			CacheRoot: "/tmp/depot",
		},
	}

	got := NewStatsModel("stats_cache", data).View()
	for _, want := range []string{"Cache Statistics", "12", "90", "90.0%", "4.0 KiB"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats_cache view missing %q:\n%s", want, got)
		}
	}
}

func TestStatsModel_RenderTierView(t *testing.T) {
	data := &metrics.Snapshot{
		Tiers: map[string]metrics.TierStats{
			"http": {
				Successes:    3,
				Failures:     1,
				TotalLatency: 600 * time.Millisecond,
				BytesFetched: 2048,
			},
		},
	}

	got := NewStatsModel("stats_tiers", data).View()
	for _, want := range []string{"Tier: http", "200ms", "2.0 KiB"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats_tiers view missing %q:\n%s", want, got)
		}
	}
}

func TestStatsModel_WrongPayloadType(t *testing.T) {
	got := NewStatsModel("stats_cache", "nope").View()
	if !strings.Contains(got, "Invalid data type") {
		t.Errorf("expected invalid data message, got:\n%s", got)
	}
}

func TestInspectModel_RenderEntry(t *testing.T) {
	entry := &types.CacheEntry{
		Reference: types.ArtifactReference{
			Ecosystem: "npm",
			Name:      "left-pad",
			Version:   "1.3.0",
		},
		Digest:         "sha256:abc123",
		SizeBytes:      2048,
		SourceTier:     types.TierRegistry,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastAccessedAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}

	got := NewInspectModel("inspect_entry", entry).View()
	for _, want := range []string{"Cache Entry", "left-pad", "sha256:abc123", "registry", "2026-03-02 09:30:00"} {
		if !strings.Contains(got, want) {
			t.Errorf("inspect_entry view missing %q:\n%s", want, got)
		}
	}
}

func TestInspectModel_RenderPool(t *testing.T) {
	view := &PoolView{
		Pool: &mirror.Pool{
			Name:     "downloads",
			Strategy: mirror.StrategySticky,
			Endpoints: []mirror.Endpoint{
				{BaseURL: "https://mirror-eu.example"},
				{BaseURL: "https://mirror-us.example"},
			},
			Sticky: &mirror.Sticky{Scope: mirror.StickyEcosystem, TTL: time.Hour},
		},
		Stats: &mirror.PoolStats{RoundRobinIndex: 3, StickyEntries: 2},
	}

	got := NewInspectModel("inspect_pool", view).View()
	for _, want := range []string{"Mirror Pool", "downloads", "sticky", "ecosystem", "1h0m0s", "2 entries"} {
		if !strings.Contains(got, want) {
			t.Errorf("inspect_pool view missing %q:\n%s", want, got)
		}
	}
}
