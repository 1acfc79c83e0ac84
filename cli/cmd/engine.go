package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/adapter"
	"github.com/justapithecus/depot/adapter/redis"
	"github.com/justapithecus/depot/adapter/webhook"
	"github.com/justapithecus/depot/cli/config"
	"github.com/justapithecus/depot/flight"
	"github.com/justapithecus/depot/install"
	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/metrics"
	"github.com/justapithecus/depot/mirror"
	"github.com/justapithecus/depot/report"
	"github.com/justapithecus/depot/resolve"
	"github.com/justapithecus/depot/store"
	"github.com/justapithecus/depot/team"
	"github.com/justapithecus/depot/types"
	"github.com/justapithecus/depot/usage"
)

// Default tier timeouts when the config leaves them unset.
const (
	defaultNativeTimeout   = 5 * time.Minute
	defaultRegistryTimeout = 30 * time.Second
	defaultDownloadTimeout = 2 * time.Minute

	defaultDataset = "depot-usage"
)

// engine composes the resolution pipeline for one CLI invocation:
// store, resolver, tier chain, single-flight coordinator, usage
// recording, team analysis and reporting, all from one config.
type engine struct {
	cfg      *config.Config
	teamCfg  types.TeamConfig
	logger   *log.Logger
	store    *store.Store
	metrics  *metrics.Collector
	resolver *resolve.Resolver
	tiers    []install.Tier
	flight   *flight.Coordinator
	selector *mirror.Selector
	journal  *usage.Journal
	recorder *usage.Recorder
	team     *team.Coordinator
	reporter *report.Reporter
	sink     adapter.Adapter
}

// newEngine builds an engine from the config file and global flags.
// Flags override config values.
func newEngine(c *cli.Context) (*engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	root, err := cacheRoot(c, cfg)
	if err != nil {
		return nil, err
	}

	teamName := c.String("team")
	if teamName == "" {
		teamName = cfg.Team
	}
	if teamName == "" {
		teamName = "default"
	}
	teamCfg := cfg.TeamByName(teamName)

	logger := log.NewLogger(root)

	s, err := store.Open(root, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache at %s: %w", root, err)
	}

	collector := metrics.NewCollector(root)

	selector, err := buildSelector(cfg)
	if err != nil {
		return nil, err
	}

	tiers := buildTiers(cfg, selector, logger)
	installer := install.NewInstaller(s, collector, logger, tiers...)

	journalDir := cfg.Usage.JournalDir
	if journalDir == "" {
		journalDir = filepath.Join(root, "usage")
	}
	journal, err := usage.OpenJournal(journalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage journal: %w", err)
	}

	archiver, err := buildArchiver(cfg.Usage.Archive)
	if err != nil {
		return nil, err
	}

	recorder := usage.NewRecorder(journal, archiver, logger)

	sink, err := buildAdapter(cfg.Adapter)
	if err != nil {
		recorder.Close()
		return nil, err
	}

	return &engine{
		cfg:      cfg,
		teamCfg:  teamCfg,
		logger:   logger,
		store:    s,
		metrics:  collector,
		resolver: resolve.New(s),
		tiers:    tiers,
		flight:   flight.NewCoordinator(installer.Install, logger),
		selector: selector,
		journal:  journal,
		recorder: recorder,
		team:     team.NewCoordinator(teamCfg, recorder, journal, logger),
		reporter: report.NewReporter(collector),
		sink:     sink,
	}, nil
}

// Close drains the usage recorder and releases the event sink.
func (e *engine) Close() {
	e.recorder.Close()
	if e.sink != nil {
		if err := e.sink.Close(); err != nil {
			e.logger.Warn("event sink close failed", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// Pull resolves a reference, serving from cache when possible and
// escalating through the tier chain on a miss. Usage is recorded and a
// resolution event is published on every success; publish failures are
// logged and never fail the pull.
func (e *engine) Pull(ctx context.Context, ref types.ArtifactReference, expectedDigest digest.Digest, actor string) (types.InstallResult, error) {
	d, err := e.resolver.Resolve(ref)
	if err == nil {
		entry, entryErr := e.store.EntryByReference(ref)
		if entryErr != nil {
			return types.InstallResult{}, entryErr
		}
		e.metrics.IncHit(entry.SizeBytes)
		result := types.InstallResult{
			Reference:  ref,
			Digest:     d,
			BinaryPath: e.store.BlobPath(d),
			SizeBytes:  entry.SizeBytes,
			TierUsed:   types.TierCache,
		}
		e.recordUsage(ref, types.TierCache, actor)
		return result, nil
	}
	if !errors.Is(err, resolve.ErrCacheMiss) {
		return types.InstallResult{}, err
	}

	e.metrics.IncMiss()

	result, err := e.flight.Acquire(ctx, ref, expectedDigest)
	if err != nil {
		return result, err
	}

	e.recordUsage(ref, result.TierUsed, actor)
	e.publish(ctx, adapter.NewResolutionEvent(e.teamCfg.TeamName, result))

	return result, nil
}

func (e *engine) recordUsage(ref types.ArtifactReference, tier types.Tier, actor string) {
	e.team.Record(types.UsageEvent{
		Reference: ref,
		Actor:     actor,
		Tier:      tier,
	})
}

func (e *engine) publish(ctx context.Context, event *adapter.Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, event); err != nil {
		e.logger.Warn("event publish failed", map[string]any{
			"event_type": event.EventType,
			"error":      err.Error(),
		})
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.LoadDefault()
}

func cacheRoot(c *cli.Context, cfg *config.Config) (string, error) {
	if root := c.String("cache-root"); root != "" {
		return root, nil
	}
	if cfg.Cache.Root != "" {
		return cfg.Cache.Root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".depot"), nil
}

func buildSelector(cfg *config.Config) (*mirror.Selector, error) {
	pools := cfg.MirrorPools()
	if len(pools) == 0 {
		return nil, nil
	}
	selector := mirror.NewSelector()
	for _, pool := range pools {
		if err := selector.RegisterPool(pool); err != nil {
			return nil, fmt.Errorf("failed to register mirror pool %q: %w", pool.Name, err)
		}
	}
	return selector, nil
}

// buildTiers assembles the tier chain in resolution order:
// native, registry, download.
func buildTiers(cfg *config.Config, selector *mirror.Selector, logger *log.Logger) []install.Tier {
	var tiers []install.Tier

	if !cfg.Native.Disabled {
		tiers = append(tiers, install.NewNativeTier(
			durationOr(cfg.Native.Timeout, defaultNativeTimeout), logger))
	}

	tiers = append(tiers, install.NewRegistryTier(
		cfg.Registry.Host,
		durationOr(cfg.Registry.Timeout, defaultRegistryTimeout), logger))

	download := install.NewDownloadTier(
		cfg.Download.BaseURL,
		durationOr(cfg.Download.Timeout, defaultDownloadTimeout), logger)
	if selector != nil && cfg.Download.MirrorPool != "" {
		download = download.WithMirrors(selector, cfg.Download.MirrorPool)
	}
	tiers = append(tiers, download)

	return tiers
}

func buildArchiver(cfg config.ArchiveConfig) (*usage.Archiver, error) {
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = defaultDataset
	}

	switch cfg.Backend {
	case "":
		return nil, nil
	case "fs":
		if cfg.Path == "" {
			return nil, fmt.Errorf("usage archive backend fs requires a path")
		}
		return usage.NewFSArchiver(dataset, cfg.Path)
	case "s3":
		bucket, prefix := parseS3Path(cfg.Path)
		return usage.NewS3Archiver(dataset, usage.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown usage archive backend: %s (must be fs or s3)", cfg.Backend)
	}
}

func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := 0
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", cfg.Type)
	}
}

// parseS3Path splits "bucket/prefix" into bucket and prefix.
func parseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

func durationOr(d config.Duration, def time.Duration) time.Duration {
	if d.Duration > 0 {
		return d.Duration
	}
	return def
}
