// Package bundle materializes proposed bundles as tar.gz artifacts in
// the digest store.
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/store"
	"github.com/justapithecus/depot/types"
)

// manifestName is the member listing file inside every bundle archive.
const manifestName = "bundle.json"

// BundleEcosystem is the ecosystem bundles are indexed under. Bundles
// live in the digest store like any other artifact.
const BundleEcosystem = "bundle"

// Builder packages bundle members from the store into tar.gz archives.
type Builder struct {
	store  *store.Store
	logger *log.Logger
}

// NewBuilder creates a bundle builder over the store.
func NewBuilder(s *store.Store, logger *log.Logger) *Builder {
	return &Builder{store: s, logger: logger}
}

// manifest is the bundle.json payload.
type manifest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
	CreatedAt   string   `json:"created_at"`
}

// Reference is the index key a built bundle is recorded under.
func Reference(b types.Bundle) types.ArtifactReference {
	return types.ArtifactReference{
		Ecosystem: BundleEcosystem,
		Name:      b.Name,
		Version:   b.CreatedAt.UTC().Format("20060102T150405Z"),
	}
}

// Build packages a proposal's members into a tar.gz archive, writes it
// to the store, and records an index entry. Every member must already
// be cached; a missing member fails the build without writing anything.
// The returned bundle carries the archive's digest.
func (b *Builder) Build(proposal types.Bundle) (types.Bundle, error) {
	if len(proposal.Members) == 0 {
		return types.Bundle{}, fmt.Errorf("bundle %q has no members", proposal.Name)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	memberKeys := make([]string, 0, len(proposal.Members))
	for _, ref := range proposal.Members {
		entry, err := b.store.EntryByReference(ref)
		if err != nil {
			return types.Bundle{}, fmt.Errorf("bundle member %s not cached: %w", ref.String(), err)
		}
		data, err := b.store.ReadBlob(entry.Digest)
		if err != nil {
			return types.Bundle{}, fmt.Errorf("bundle member %s: %w", ref.String(), err)
		}

		if err := writeTarFile(tw, memberPath(ref), data, entry.CreatedAt); err != nil {
			return types.Bundle{}, err
		}
		memberKeys = append(memberKeys, ref.Key())
	}

	manifestBytes, err := json.MarshalIndent(manifest{
		Name:        proposal.Name,
		Description: proposal.Description,
		Members:     memberKeys,
		CreatedAt:   proposal.CreatedAt.UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return types.Bundle{}, fmt.Errorf("bundle manifest: %w", err)
	}
	if err := writeTarFile(tw, manifestName, manifestBytes, proposal.CreatedAt); err != nil {
		return types.Bundle{}, err
	}

	if err := tw.Close(); err != nil {
		return types.Bundle{}, fmt.Errorf("finalize bundle tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return types.Bundle{}, fmt.Errorf("finalize bundle gzip: %w", err)
	}

	d, size, err := b.store.Put(&buf)
	if err != nil {
		return types.Bundle{}, fmt.Errorf("store bundle: %w", err)
	}

	built := proposal
	built.Digest = d

	now := time.Now().UTC()
	entry := types.CacheEntry{
		Reference:      Reference(built),
		Digest:         d,
		SizeBytes:      size,
		CreatedAt:      now,
		LastAccessedAt: now,
		SourceTier:     types.TierCache,
	}
	if err := b.store.RecordEntry(entry); err != nil {
		return types.Bundle{}, fmt.Errorf("index bundle: %w", err)
	}

	b.logger.Info("bundle built", map[string]any{
		"bundle":  built.Name,
		"members": len(built.Members),
		"digest":  d.String(),
	})
	return built, nil
}

// memberPath is a member's path inside the archive.
func memberPath(ref types.ArtifactReference) string {
	file := ref.Name + "-" + ref.Version
	if ref.Platform != "" {
		file += "-" + ref.Platform
	}
	if ref.Namespace != "" {
		return path.Join(ref.Ecosystem, ref.Namespace, file)
	}
	return path.Join(ref.Ecosystem, file)
}

func writeTarFile(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: modTime.UTC(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("bundle tar header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("bundle tar entry %s: %w", name, err)
	}
	return nil
}
