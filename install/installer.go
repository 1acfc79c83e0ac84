package install

import (
	"context"
	"errors"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/metrics"
	"github.com/justapithecus/depot/store"
	"github.com/justapithecus/depot/types"
)

// Installer runs the tier fallback chain and commits the winning
// tier's bytes to the digest store.
type Installer struct {
	tiers     []Tier
	store     *store.Store
	collector *metrics.Collector
	logger    *log.Logger
}

// NewInstaller creates an installer over the given tiers, tried in
// order on every install.
func NewInstaller(s *store.Store, collector *metrics.Collector, logger *log.Logger, tiers ...Tier) *Installer {
	return &Installer{tiers: tiers, store: s, collector: collector, logger: logger}
}

// Install resolves a reference through the tier chain. An unavailable
// tier is skipped, a failed tier falls through to the next, and a
// digest mismatch against expectedDigest aborts the whole attempt
// without trying further tiers. On success the bytes are committed to
// the store and indexed under the reference.
func (i *Installer) Install(ctx context.Context, ref types.ArtifactReference, expectedDigest digest.Digest) (types.InstallResult, error) {
	if err := ref.Validate(); err != nil {
		return types.InstallResult{}, err
	}

	var attempted []*TierError

	for _, tier := range i.tiers {
		name := tier.Name()

		if !tier.Available(ctx) {
			i.collector.IncTierSkipped(string(name))
			i.logger.Debug("tier skipped", map[string]any{
				"reference": ref.String(),
				"tier":      string(name),
			})
			continue
		}

		start := time.Now()
		data, err := tier.Fetch(ctx, ref)
		elapsed := time.Since(start)

		if err != nil {
			if errors.Is(err, ErrTierUnavailable) {
				i.collector.IncTierSkipped(string(name))
				continue
			}
			if errors.Is(err, ErrVerificationFailed) {
				i.collector.IncVerificationFailed()
				i.collector.IncResolutionFailed()
				return types.InstallResult{}, &TierError{Tier: name, Err: err}
			}
			i.collector.IncTierFailure(string(name))
			i.logger.Warn("tier failed", map[string]any{
				"reference": ref.String(),
				"tier":      string(name),
				"error":     err.Error(),
			})
			attempted = append(attempted, &TierError{Tier: name, Err: err})
			continue
		}

		if expectedDigest != "" {
			if got := digest.FromBytes(data); got != expectedDigest {
				i.collector.IncVerificationFailed()
				i.collector.IncResolutionFailed()
				return types.InstallResult{}, &VerificationError{
					Reference: ref,
					Tier:      name,
					Expected:  expectedDigest.String(),
					Actual:    got.String(),
				}
			}
		}

		result, err := i.commit(ref, name, data, elapsed)
		if err != nil {
			i.collector.IncResolutionFailed()
			return types.InstallResult{}, err
		}

		i.collector.IncTierSuccess(string(name), elapsed, result.SizeBytes)
		i.collector.IncResolutionSucceeded()
		i.logger.Info("artifact installed", map[string]any{
			"reference": ref.String(),
			"tier":      string(name),
			"digest":    result.Digest.String(),
			"duration":  elapsed.String(),
		})
		return result, nil
	}

	i.collector.IncResolutionFailed()
	return types.InstallResult{}, &AggregateError{Reference: ref, Tiers: attempted}
}

// commit writes the artifact into the store and records its index
// entry. The entry is created only after the blob rename lands, so a
// failed install never leaves a partial cache entry.
func (i *Installer) commit(ref types.ArtifactReference, tier types.Tier, data []byte, elapsed time.Duration) (types.InstallResult, error) {
	d, err := i.store.PutBytes(data)
	if err != nil {
		return types.InstallResult{}, err
	}

	now := time.Now().UTC()
	entry := types.CacheEntry{
		Reference:      ref,
		Digest:         d,
		SizeBytes:      int64(len(data)),
		CreatedAt:      now,
		LastAccessedAt: now,
		SourceTier:     tier,
	}
	if err := i.store.RecordEntry(entry); err != nil {
		return types.InstallResult{}, err
	}

	return types.InstallResult{
		Reference:  ref,
		Digest:     d,
		BinaryPath: i.store.BlobPath(d),
		SizeBytes:  entry.SizeBytes,
		TierUsed:   tier,
		Duration:   elapsed,
	}, nil
}
