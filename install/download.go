package install

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/mirror"
	"github.com/justapithecus/depot/types"
)

// DownloadTier fetches artifacts over plain HTTP. Each artifact URL is
// paired with a ".sha256" sidecar carrying the expected checksum; a
// download whose bytes do not match the sidecar is rejected.
type DownloadTier struct {
	baseURL  string
	selector *mirror.Selector
	pool     string
	client   *http.Client
	logger   *log.Logger
}

// NewDownloadTier creates a download tier rooted at baseURL. An empty
// baseURL disables the tier.
func NewDownloadTier(baseURL string, timeout time.Duration, logger *log.Logger) *DownloadTier {
	return &DownloadTier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// WithMirrors routes downloads through a mirror pool instead of the
// fixed base URL.
func (t *DownloadTier) WithMirrors(sel *mirror.Selector, pool string) *DownloadTier {
	t.selector = sel
	t.pool = pool
	return t
}

var _ Tier = (*DownloadTier)(nil)

func (t *DownloadTier) Name() types.Tier { return types.TierDownload }

func (t *DownloadTier) Available(_ context.Context) bool {
	return t.baseURL != "" || t.selector != nil
}

// artifactURL builds the download URL:
// <base>/<ecosystem>/<namespace>/<name>/<name>-<version>[-platform].
func (t *DownloadTier) artifactURL(base string, ref types.ArtifactReference) string {
	file := ref.Name + "-" + ref.Version
	if ref.Platform != "" {
		file += "-" + ref.Platform
	}
	parts := []string{strings.TrimRight(base, "/"), ref.Ecosystem}
	if ref.Namespace != "" {
		parts = append(parts, ref.Namespace)
	}
	parts = append(parts, ref.Name, file)
	return strings.Join(parts, "/")
}

func (t *DownloadTier) base(ref types.ArtifactReference) (string, error) {
	if t.selector == nil {
		return t.baseURL, nil
	}
	ep, err := t.selector.Select(mirror.SelectRequest{
		Pool:      t.pool,
		Ecosystem: ref.Ecosystem,
		Reference: ref.String(),
		Commit:    true,
	})
	if err != nil {
		return "", fmt.Errorf("mirror selection: %w", err)
	}
	return ep.BaseURL, nil
}

func (t *DownloadTier) Fetch(ctx context.Context, ref types.ArtifactReference) ([]byte, error) {
	base, err := t.base(ref)
	if err != nil {
		return nil, err
	}
	url := t.artifactURL(base, ref)

	data, err := t.get(ctx, url)
	if err != nil {
		return nil, err
	}

	sum, err := t.get(ctx, url+".sha256")
	if err != nil {
		return nil, fmt.Errorf("checksum sidecar: %w", err)
	}

	want := digest.NewDigestFromEncoded(digest.SHA256, strings.TrimSpace(string(sum)))
	if err := want.Validate(); err != nil {
		return nil, fmt.Errorf("checksum sidecar for %s is malformed: %w", ref.String(), err)
	}
	if got := digest.FromBytes(data); got != want {
		return nil, fmt.Errorf("%w: %s downloaded as %s, sidecar says %s",
			ErrVerificationFailed, ref.String(), got, want)
	}

	t.logger.Debug("download tier fetched artifact", map[string]any{
		"reference":  ref.String(),
		"url":        url,
		"size_bytes": len(data),
	})
	return data, nil
}

func (t *DownloadTier) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: GET %s returned 404", ErrNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s returned %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}
