package types

// RecommendationKind classifies an optimization recommendation.
type RecommendationKind string

// Recommendation kinds emitted by the reporter.
const (
	RecommendRaiseCacheSize RecommendationKind = "raise_cache_size"
	RecommendCreateBundle   RecommendationKind = "create_bundle"
	RecommendPrewarm        RecommendationKind = "prewarm_cache"
	RecommendEnableRegistry RecommendationKind = "enable_registry_tier"
)

// Priority ranks a recommendation by projected improvement.
type Priority string

// Priority levels.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// OptimizationRecommendation is a derived, read-only reporter output.
// Never persisted as source of truth; always recomputable from usage
// events and counters.
type OptimizationRecommendation struct {
	Kind           RecommendationKind `json:"kind"`
	Priority       Priority           `json:"priority"`
	Rationale      string             `json:"rationale"`
	ExpectedImpact string             `json:"expected_impact"`
}
