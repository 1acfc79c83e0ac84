package types

import (
	"fmt"
	"time"
)

// CacheStrategy selects default thresholds for eviction, preloading and
// bundle analysis. Teams choose one of three presets.
type CacheStrategy string

// Cache strategy presets.
const (
	StrategyAggressive   CacheStrategy = "aggressive"
	StrategyBalanced     CacheStrategy = "balanced"
	StrategyConservative CacheStrategy = "conservative"
)

// ParseCacheStrategy validates a strategy string. Empty defaults to balanced.
func ParseCacheStrategy(s string) (CacheStrategy, error) {
	switch CacheStrategy(s) {
	case StrategyAggressive, StrategyBalanced, StrategyConservative:
		return CacheStrategy(s), nil
	case "":
		return StrategyBalanced, nil
	default:
		return "", fmt.Errorf("unknown cache strategy %q (must be aggressive, balanced, or conservative)", s)
	}
}

// TeamConfig is consumed, not owned, by the engine. It scopes usage
// analysis and selects threshold presets.
type TeamConfig struct {
	TeamName           string        `json:"team_name" yaml:"team_name"`
	Members            []string      `json:"members" yaml:"members"`
	CacheStrategy      CacheStrategy `json:"cache_strategy" yaml:"cache_strategy"`
	BundleDependencies []string      `json:"bundle_dependencies" yaml:"bundle_dependencies"`
}

// Thresholds are the tunables derived from a cache strategy.
type Thresholds struct {
	// MaxCacheBytes is the eviction size limit for the team's cache.
	MaxCacheBytes int64
	// BundleScoreMin is the minimum co-occurrence score for a bundle proposal.
	BundleScoreMin float64
	// BundleUsageMin is the minimum joint usage count for a bundle proposal.
	BundleUsageMin int
	// PreloadCount is how many references a warm slot may carry.
	PreloadCount int
	// WarmSlots is how many top hours the warm schedule covers.
	WarmSlots int
	// CoOccurrenceWindow is the pairing window for co-occurrence analysis.
	CoOccurrenceWindow time.Duration
	// Retention is how long usage events are kept before pruning.
	Retention time.Duration
}

// ThresholdsFor returns the preset tunables for a strategy. Unknown
// strategies fall back to the balanced preset.
func ThresholdsFor(s CacheStrategy) Thresholds {
	switch s {
	case StrategyAggressive:
		return Thresholds{
			MaxCacheBytes:      50 << 30, // 50 GiB
			BundleScoreMin:     0.5,
			BundleUsageMin:     10,
			PreloadCount:       20,
			WarmSlots:          4,
			CoOccurrenceWindow: time.Hour,
			Retention:          90 * 24 * time.Hour,
		}
	case StrategyConservative:
		return Thresholds{
			MaxCacheBytes:      5 << 30, // 5 GiB
			BundleScoreMin:     0.85,
			BundleUsageMin:     50,
			PreloadCount:       5,
			WarmSlots:          1,
			CoOccurrenceWindow: time.Hour,
			Retention:          30 * 24 * time.Hour,
		}
	default:
		return Thresholds{
			MaxCacheBytes:      20 << 30, // 20 GiB
			BundleScoreMin:     0.7,
			BundleUsageMin:     25,
			PreloadCount:       10,
			WarmSlots:          2,
			CoOccurrenceWindow: time.Hour,
			Retention:          60 * 24 * time.Hour,
		}
	}
}
