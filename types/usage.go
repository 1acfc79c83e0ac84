package types

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// UsageEvent records one successful artifact resolution for a team.
// Events are append-only; the only mutation is retention pruning.
type UsageEvent struct {
	// EventID uniquely identifies the event.
	EventID string `json:"event_id" msgpack:"event_id"`
	// Team is the team identifier the resolution was performed for.
	Team string `json:"team" msgpack:"team"`
	// Reference is the artifact that was resolved.
	Reference ArtifactReference `json:"reference" msgpack:"reference"`
	// Actor is the user or machine that triggered the resolution.
	Actor string `json:"actor" msgpack:"actor"`
	// Tier is the tier that satisfied the resolution.
	Tier Tier `json:"tier" msgpack:"tier"`
	// Timestamp is the event time in UTC.
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// CoOccurrencePair is a derived statistic: how often two artifacts were
// used together by the same actor within a window. Never stored durably;
// always recomputed from usage events.
//
// Score is joint occurrences divided by the larger of either reference's
// total occurrence count, bounded to [0,1] and symmetric by construction.
type CoOccurrencePair struct {
	ReferenceA ArtifactReference `json:"reference_a"`
	ReferenceB ArtifactReference `json:"reference_b"`
	Score      float64           `json:"score"`
	UsageCount int               `json:"usage_count"`
}

// Bundle is a named artifact composed of member artifacts. A bundle is
// stored in the digest store like any other artifact; its membership list
// is immutable once published. Publishing a different member set creates
// a new bundle.
type Bundle struct {
	Name        string              `json:"name"`
	Members     []ArtifactReference `json:"member_references"`
	Digest      digest.Digest       `json:"digest"`
	Description string              `json:"description"`
	CreatedAt   time.Time           `json:"created_at"`
}

// WarmSlot is one entry of a cache pre-warm schedule: the hour of day to
// prefetch at and the references to prefetch.
type WarmSlot struct {
	Hour       int                 `json:"hour"`
	References []ArtifactReference `json:"references"`
}
