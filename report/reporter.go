// Package report derives performance metrics and ranked optimization
// recommendations from resolution counters and usage analysis.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/justapithecus/depot/metrics"
	"github.com/justapithecus/depot/team"
	"github.com/justapithecus/depot/types"
)

// Metrics is the reporter's aggregate output.
type Metrics struct {
	Team                 string                   `json:"team,omitempty"`
	Window               time.Duration            `json:"window"`
	HitRate              float64                  `json:"hit_rate"`
	AvgLatencyByTier     map[string]time.Duration `json:"avg_latency_by_tier"`
	BandwidthSavedBytes  int64                    `json:"bandwidth_saved_bytes"`
	ResolutionsSucceeded int64                    `json:"resolutions_succeeded"`
	ResolutionsFailed    int64                    `json:"resolutions_failed"`
	VerificationFailures int64                    `json:"verification_failures"`
	CorruptionEvictions  int64                    `json:"corruption_evictions"`
}

// hit-rate bands for recommendation priorities.
const (
	hitRateLow  = 0.5
	hitRateGood = 0.8
)

// Reporter reads counters and usage analysis on demand.
type Reporter struct {
	collector *metrics.Collector
}

// NewReporter creates a reporter over a collector.
func NewReporter(collector *metrics.Collector) *Reporter {
	return &Reporter{collector: collector}
}

// Metrics aggregates the collector's counters. team is informational;
// counters are engine-wide, so a team scope labels rather than filters.
func (r *Reporter) Metrics(teamName string, window time.Duration) Metrics {
	snap := r.collector.Snapshot()

	byTier := make(map[string]time.Duration, len(snap.Tiers))
	for name, stats := range snap.Tiers {
		byTier[name] = stats.AvgLatency()
	}

	return Metrics{
		Team:                 teamName,
		Window:               window,
		HitRate:              snap.HitRate(),
		AvgLatencyByTier:     byTier,
		BandwidthSavedBytes:  snap.BytesServedFromCache,
		ResolutionsSucceeded: snap.ResolutionsSucceeded,
		ResolutionsFailed:    snap.ResolutionsFailed,
		VerificationFailures: snap.VerificationFailures,
		CorruptionEvictions:  snap.CorruptionEvictions,
	}
}

// Recommendations derives ranked optimization recommendations for a
// team. Priorities follow the magnitude of the projected improvement
// against the current hit rate and the pair scores.
func (r *Reporter) Recommendations(coord *team.Coordinator, window time.Duration) ([]types.OptimizationRecommendation, error) {
	snap := r.collector.Snapshot()
	hitRate := snap.HitRate()

	var recs []types.OptimizationRecommendation

	// A low hit rate with real traffic points at an undersized cache.
	if snap.Hits+snap.Misses > 0 && hitRate < hitRateGood {
		priority := types.PriorityMedium
		if hitRate < hitRateLow {
			priority = types.PriorityHigh
		}
		recs = append(recs, types.OptimizationRecommendation{
			Kind:     types.RecommendRaiseCacheSize,
			Priority: priority,
			Rationale: fmt.Sprintf("hit rate %.0f%% over the last %s leaves most resolutions on network tiers",
				hitRate*100, window),
			ExpectedImpact: fmt.Sprintf("raising the cache size limit moves repeat fetches local (current hit rate %.0f%%)", hitRate*100),
		})
	}

	pairs, err := coord.CoOccurrence(window)
	if err != nil {
		return nil, err
	}
	thresholds := coord.Thresholds()
	for _, pair := range pairs {
		if pair.Score < thresholds.BundleScoreMin || pair.UsageCount < thresholds.BundleUsageMin {
			continue
		}
		priority := types.PriorityMedium
		if pair.Score >= 0.9 {
			priority = types.PriorityHigh
		}
		recs = append(recs, types.OptimizationRecommendation{
			Kind:     types.RecommendCreateBundle,
			Priority: priority,
			Rationale: fmt.Sprintf("%s and %s co-occur with score %.2f across %d joint uses",
				pair.ReferenceA.Key(), pair.ReferenceB.Key(), pair.Score, pair.UsageCount),
			ExpectedImpact: "bundling turns two fetches into one and pre-positions both artifacts",
		})
	}

	slots, err := coord.WarmSchedule(window)
	if err != nil {
		return nil, err
	}
	if len(slots) > 0 && hitRate < hitRateGood {
		recs = append(recs, types.OptimizationRecommendation{
			Kind:     types.RecommendPrewarm,
			Priority: types.PriorityLow,
			Rationale: fmt.Sprintf("usage concentrates in %d peak hours; prefetching ahead of them avoids cold starts",
				len(slots)),
			ExpectedImpact: "warm slots convert first-of-day misses into hits",
		})
	}

	// All traffic landing on the download tier suggests the registry
	// tier is not configured.
	if tierOnlyDownload(snap) {
		recs = append(recs, types.OptimizationRecommendation{
			Kind:           types.RecommendEnableRegistry,
			Priority:       types.PriorityMedium,
			Rationale:      "every network resolution used the http tier; no registry pulls were recorded",
			ExpectedImpact: "a registry tier serves digest-verified artifacts without checksum sidecars",
		})
	}

	sort.SliceStable(recs, func(a, b int) bool {
		return priorityRank(recs[a].Priority) < priorityRank(recs[b].Priority)
	})
	return recs, nil
}

func tierOnlyDownload(snap metrics.Snapshot) bool {
	download, ok := snap.Tiers[string(types.TierDownload)]
	if !ok || download.Successes == 0 {
		return false
	}
	registry := snap.Tiers[string(types.TierRegistry)]
	return registry.Successes == 0
}

func priorityRank(p types.Priority) int {
	switch p {
	case types.PriorityHigh:
		return 0
	case types.PriorityMedium:
		return 1
	default:
		return 2
	}
}
