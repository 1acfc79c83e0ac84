// Package flight coalesces concurrent resolutions of one reference
// into a single underlying installer run.
package flight

import (
	"context"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
)

// InstallFunc runs one tier-chain resolution.
type InstallFunc func(ctx context.Context, ref types.ArtifactReference, expectedDigest digest.Digest) (types.InstallResult, error)

// Coordinator deduplicates in-flight resolutions per reference key.
// All waiters for one key receive the winning attempt's result.
type Coordinator struct {
	group   singleflight.Group
	install InstallFunc
	logger  *log.Logger
}

// NewCoordinator creates a coordinator over an install function.
func NewCoordinator(install InstallFunc, logger *log.Logger) *Coordinator {
	return &Coordinator{install: install, logger: logger}
}

// Acquire resolves a reference, joining an in-flight attempt for the
// same key when one exists. The underlying attempt runs on a context
// detached from the caller's, so one waiter cancelling does not abort
// the shared fetch. A cancelled waiter returns its context error; the
// attempt still completes and is cached for the other waiters.
func (c *Coordinator) Acquire(ctx context.Context, ref types.ArtifactReference, expectedDigest digest.Digest) (types.InstallResult, error) {
	if err := ref.Validate(); err != nil {
		return types.InstallResult{}, err
	}
	key := ref.Key()

	ch := c.group.DoChan(key, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		return c.install(detached, ref, expectedDigest)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("resolution shared with in-flight attempt", map[string]any{
				"reference": key,
			})
		}
		if res.Err != nil {
			return types.InstallResult{}, res.Err
		}
		return res.Val.(types.InstallResult), nil
	case <-ctx.Done():
		return types.InstallResult{}, ctx.Err()
	}
}
