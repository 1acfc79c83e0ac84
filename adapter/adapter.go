// Package adapter defines the event-sink boundary for external systems.
//
// Adapters publish resolution and bundle notifications to downstream
// reporting systems. The engine owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/justapithecus/depot/types"
)

// Event type discriminants.
const (
	EventTypeResolution     = "resolution_completed"
	EventTypeBundleProposed = "bundle_proposed"
)

// Event is the payload published to downstream systems.
type Event struct {
	EventType string `json:"event_type"`
	Team      string `json:"team,omitempty"`
	Timestamp string `json:"timestamp"` // ISO 8601

	// Resolution fields (event_type=resolution_completed)
	Reference  string `json:"reference,omitempty"`
	TierUsed   string `json:"tier_used,omitempty"`
	Digest     string `json:"digest,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	// Bundle fields (event_type=bundle_proposed)
	BundleName string   `json:"bundle_name,omitempty"`
	Members    []string `json:"members,omitempty"`
}

// NewResolutionEvent builds the payload for a completed resolution.
func NewResolutionEvent(team string, result types.InstallResult) *Event {
	return &Event{
		EventType:  EventTypeResolution,
		Team:       team,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Reference:  result.Reference.String(),
		TierUsed:   string(result.TierUsed),
		Digest:     result.Digest.String(),
		SizeBytes:  result.SizeBytes,
		DurationMs: result.Duration.Milliseconds(),
	}
}

// NewBundleProposedEvent builds the payload for a bundle proposal.
func NewBundleProposedEvent(team string, bundle types.Bundle) *Event {
	members := make([]string, 0, len(bundle.Members))
	for _, ref := range bundle.Members {
		members = append(members, ref.Key())
	}
	return &Event{
		EventType:  EventTypeBundleProposed,
		Team:       team,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		BundleName: bundle.Name,
		Members:    members,
	}
}

// Adapter publishes engine events to a downstream system.
type Adapter interface {
	// Publish sends an event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *Event) error

	// Close releases adapter resources.
	Close() error
}
