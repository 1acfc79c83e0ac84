package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/justapithecus/depot/mirror"
	"github.com/justapithecus/depot/types"
)

// Config represents a depot.yaml configuration file.
// All values are optional and act as defaults for depot commands.
// CLI flags always override config values.
type Config struct {
	Cache    CacheConfig                 `yaml:"cache"`
	Registry RegistryConfig              `yaml:"registry"`
	Download DownloadConfig              `yaml:"download"`
	Native   NativeConfig                `yaml:"native"`
	Mirrors  map[string]MirrorPoolConfig `yaml:"mirrors"`
	Usage    UsageConfig                 `yaml:"usage"`
	Teams    []types.TeamConfig          `yaml:"teams"`
	Team     string                      `yaml:"team"`
	Adapter  AdapterConfig               `yaml:"adapter"`
}

// CacheConfig holds digest store defaults.
type CacheConfig struct {
	// Root is the cache directory (default ~/.depot).
	Root string `yaml:"root"`
	// MaxSizeBytes caps the store; zero derives the cap from the
	// team's cache strategy.
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
	// MaxAge evicts entries not accessed within this duration.
	MaxAge Duration `yaml:"max_age"`
}

// RegistryConfig holds registry-pull tier defaults.
type RegistryConfig struct {
	// Host is the registry host, e.g. "registry.example". Empty
	// disables the tier.
	Host    string   `yaml:"host"`
	Timeout Duration `yaml:"timeout"`
}

// DownloadConfig holds direct-download tier defaults.
type DownloadConfig struct {
	// BaseURL is the fixed download root. Empty with no mirror pool
	// disables the tier.
	BaseURL string `yaml:"base_url"`
	// MirrorPool names the pool in Mirrors to route downloads through.
	MirrorPool string   `yaml:"mirror_pool"`
	Timeout    Duration `yaml:"timeout"`
}

// NativeConfig holds native-ecosystem tier defaults.
type NativeConfig struct {
	// Disabled turns the native tier off even when managers are present.
	Disabled bool     `yaml:"disabled"`
	Timeout  Duration `yaml:"timeout"`
}

// MirrorPoolConfig is a mirror pool definition within the config file.
// Name is derived from the map key, not stored in the struct.
type MirrorPoolConfig struct {
	Strategy  mirror.Strategy   `yaml:"strategy"`
	Endpoints []mirror.Endpoint `yaml:"endpoints"`
	Sticky    *mirror.Sticky    `yaml:"sticky,omitempty"`
}

// UsageConfig holds usage journal and archive defaults.
type UsageConfig struct {
	// JournalDir overrides the journal location (default <root>/usage).
	JournalDir string        `yaml:"journal_dir"`
	Archive    ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig selects the durable usage archive backend.
type ArchiveConfig struct {
	// Backend is "fs", "s3", or empty for no archive.
	Backend     string `yaml:"backend"`
	Dataset     string `yaml:"dataset"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds event sink adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // webhook, redis
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MirrorPools converts the map-keyed mirror config into a sorted slice
// of mirror.Pool. Sorting by name ensures deterministic ordering.
func (c *Config) MirrorPools() []*mirror.Pool {
	if len(c.Mirrors) == 0 {
		return nil
	}

	names := make([]string, 0, len(c.Mirrors))
	for name := range c.Mirrors {
		names = append(names, name)
	}
	sort.Strings(names)

	pools := make([]*mirror.Pool, 0, len(names))
	for _, name := range names {
		mc := c.Mirrors[name]
		pools = append(pools, &mirror.Pool{
			Name:      name,
			Strategy:  mc.Strategy,
			Endpoints: mc.Endpoints,
			Sticky:    mc.Sticky,
		})
	}
	return pools
}

// TeamByName finds a team's config. Falls back to a balanced-strategy
// default when the team is not declared.
func (c *Config) TeamByName(name string) types.TeamConfig {
	for _, tc := range c.Teams {
		if tc.TeamName == name {
			return tc
		}
	}
	return types.TeamConfig{TeamName: name, CacheStrategy: types.StrategyBalanced}
}
