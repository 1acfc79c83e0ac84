// Package resolve maps artifact references to digests using only the
// local cache index. Resolution is strictly separated from fetching: a
// miss returns ErrCacheMiss and takes no further action, so this layer
// never initiates network I/O.
package resolve

import (
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/justapithecus/depot/store"
	"github.com/justapithecus/depot/types"
)

// ErrCacheMiss indicates the reference has no verified local entry.
// The caller decides whether to escalate to the tiered installer.
var ErrCacheMiss = errors.New("cache miss")

// Resolver answers reference lookups from the cache index.
type Resolver struct {
	store *store.Store
}

// New creates a resolver over the given store.
func New(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the digest for a reference, updating its last-accessed
// time on a hit. Hits must complete without network access; the only I/O
// is the index read and access-time write.
func (r *Resolver) Resolve(ref types.ArtifactReference) (digest.Digest, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}

	entry, err := r.store.EntryByReference(ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrCacheMiss, ref)
		}
		return "", err
	}

	// An index entry whose blob is gone is a miss, not an error; the
	// stale entry is left for the installer to overwrite.
	if !r.store.HasBlob(entry.Digest) {
		return "", fmt.Errorf("%w: %s (blob missing)", ErrCacheMiss, ref)
	}

	if _, err := r.store.Touch(ref, time.Now()); err != nil {
		return "", err
	}

	return entry.Digest, nil
}

// Entry returns the full cache entry for a reference without touching
// access time. Used by read-only surfaces (info, doctor).
func (r *Resolver) Entry(ref types.ArtifactReference) (types.CacheEntry, error) {
	entry, err := r.store.EntryByReference(ref)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return entry, fmt.Errorf("%w: %s", ErrCacheMiss, ref)
		}
		return entry, err
	}
	return entry, nil
}
