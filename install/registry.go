package install

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
)

// repository abstracts the registry operations the tier needs.
// Satisfied by *remote.Repository and by test fakes.
type repository interface {
	Resolve(ctx context.Context, reference string) (ocispec.Descriptor, error)
	content.Fetcher
}

// repositoryFactory builds a repository client for a repo path like
// "registry.example/npm/lodash".
type repositoryFactory func(repoPath string) (repository, error)

// RegistryTier pulls artifacts from a content-addressable artifact
// registry. Artifact bytes are carried as the first layer of an image
// manifest, or as the raw blob when the tag resolves to a non-manifest
// descriptor.
type RegistryTier struct {
	host    string
	newRepo repositoryFactory
	timeout time.Duration
	logger  *log.Logger
}

// NewRegistryTier creates a registry tier for the given registry host.
// An empty host disables the tier.
func NewRegistryTier(host string, timeout time.Duration, logger *log.Logger) *RegistryTier {
	return &RegistryTier{
		host: host,
		newRepo: func(repoPath string) (repository, error) {
			return remote.NewRepository(repoPath)
		},
		timeout: timeout,
		logger:  logger,
	}
}

var _ Tier = (*RegistryTier)(nil)

func (t *RegistryTier) Name() types.Tier { return types.TierRegistry }

func (t *RegistryTier) Available(_ context.Context) bool {
	return t.host != ""
}

// repoPath maps a reference onto the registry's repository layout:
// host/ecosystem[/namespace]/name.
func (t *RegistryTier) repoPath(ref types.ArtifactReference) string {
	if ref.Namespace != "" {
		return fmt.Sprintf("%s/%s/%s/%s", t.host, ref.Ecosystem, ref.Namespace, ref.Name)
	}
	return fmt.Sprintf("%s/%s/%s", t.host, ref.Ecosystem, ref.Name)
}

// tag maps version and platform onto the registry tag.
func (t *RegistryTier) tag(ref types.ArtifactReference) string {
	if ref.Platform != "" {
		return ref.Version + "-" + ref.Platform
	}
	return ref.Version
}

func (t *RegistryTier) Fetch(ctx context.Context, ref types.ArtifactReference) ([]byte, error) {
	repo, err := t.newRepo(t.repoPath(ref))
	if err != nil {
		return nil, fmt.Errorf("registry client: %w", err)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	desc, err := repo.Resolve(ctx, t.tag(ref))
	if err != nil {
		if isRegistryNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.String())
		}
		return nil, fmt.Errorf("registry resolve: %w", err)
	}

	data, err := content.FetchAll(ctx, repo, desc)
	if err != nil {
		return nil, fmt.Errorf("registry fetch: %w", err)
	}

	if desc.MediaType == ocispec.MediaTypeImageManifest {
		data, err = t.fetchFirstLayer(ctx, repo, data)
		if err != nil {
			return nil, err
		}
	}

	t.logger.Debug("registry tier fetched artifact", map[string]any{
		"reference":  ref.String(),
		"repository": t.repoPath(ref),
		"size_bytes": len(data),
	})
	return data, nil
}

// fetchFirstLayer unwraps an image manifest and returns its first
// layer's bytes. The registry publishes single-layer artifacts.
func (t *RegistryTier) fetchFirstLayer(ctx context.Context, repo repository, manifestBytes []byte) ([]byte, error) {
	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("registry manifest: %w", err)
	}
	if len(manifest.Layers) == 0 {
		return nil, fmt.Errorf("registry manifest has no layers")
	}

	data, err := content.FetchAll(ctx, repo, manifest.Layers[0])
	if err != nil {
		return nil, fmt.Errorf("registry layer fetch: %w", err)
	}
	return data, nil
}

func isRegistryNotFound(err error) bool {
	return errors.Is(err, errdef.ErrNotFound)
}
