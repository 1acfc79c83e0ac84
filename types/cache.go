package types

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Tier identifies one installation strategy in the fallback chain.
type Tier string

// Tier constants, in priority order. TierCache is recorded for index hits
// that never reach the installer.
const (
	TierCache    Tier = "cache"
	TierNative   Tier = "native"
	TierRegistry Tier = "registry"
	TierDownload Tier = "http"
)

// CacheEntry describes one verified artifact held by the digest store.
// Entries are owned exclusively by the store; other components read them
// through the index and never mutate cache files directly.
type CacheEntry struct {
	Reference      ArtifactReference `json:"reference"`
	Digest         digest.Digest     `json:"digest"`
	SizeBytes      int64             `json:"size_bytes"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
	SourceTier     Tier              `json:"source_tier"`
}

// InstallResult is the outcome of one resolution attempt. A cache hit is
// reported as a zero-duration result with TierUsed == TierCache.
type InstallResult struct {
	Reference  ArtifactReference `json:"reference"`
	Digest     digest.Digest     `json:"digest"`
	BinaryPath string            `json:"binary_path"`
	SizeBytes  int64             `json:"size_bytes"`
	TierUsed   Tier              `json:"tier_used"`
	Duration   time.Duration     `json:"duration"`
}
