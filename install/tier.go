package install

import (
	"context"

	"github.com/justapithecus/depot/types"
)

// Tier is one installation strategy in the fallback chain. The
// installer tries tiers strictly in the order they are registered.
type Tier interface {
	// Name identifies the tier in results, logs, and metrics.
	Name() types.Tier

	// Available reports whether the tier's prerequisite tool or
	// endpoint is present on this host. An unavailable tier is
	// skipped without counting as a failure.
	Available(ctx context.Context) bool

	// Fetch obtains the artifact bytes for a reference. A failure
	// causes fallthrough to the next tier.
	Fetch(ctx context.Context, ref types.ArtifactReference) ([]byte, error)
}
