package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/justapithecus/depot/types"
)

// RecordKindUsage is the record discriminator for usage event records.
const RecordKindUsage = "usage_event"

// usageRecord is the storage format for archived usage events.
// Partition keys team, day and event_type drive the Hive layout.
type usageRecord struct {
	RecordKind string `json:"record_kind"`

	EventID   string `json:"event_id"`
	Reference string `json:"reference"`
	Actor     string `json:"actor"`
	Tier      string `json:"tier"`
	Timestamp string `json:"timestamp"`

	// Partition keys
	Team      string `json:"team"`
	Day       string `json:"day"`
	EventType string `json:"event_type"`
}

// Archiver mirrors usage events into a durable Hive-partitioned dataset.
// The journal remains the analysis read path; the archive serves
// long-term retention and cross-host aggregation.
type Archiver struct {
	dataset lode.Dataset
}

// newArchiverDataset builds the dataset with the shared layout and codec.
func newArchiverDataset(name string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(name),
		factory,
		lode.WithHiveLayout("team", "day", "event_type"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// NewFSArchiver creates an archiver with filesystem storage under root.
func NewFSArchiver(name, root string) (*Archiver, error) {
	ds, err := newArchiverDataset(name, lode.NewFSFactory(root))
	if err != nil {
		return nil, fmt.Errorf("usage archive dataset: %w", err)
	}
	return &Archiver{dataset: ds}, nil
}

// NewArchiverWithFactory creates an archiver with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewArchiverWithFactory(name string, factory lode.StoreFactory) (*Archiver, error) {
	ds, err := newArchiverDataset(name, factory)
	if err != nil {
		return nil, fmt.Errorf("usage archive dataset: %w", err)
	}
	return &Archiver{dataset: ds}, nil
}

// S3Config holds configuration for the S3 archive backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers.
	// Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// NewS3Archiver creates an archiver with S3 storage. Credentials come
// from the AWS SDK default chain.
func NewS3Archiver(name string, s3cfg S3Config) (*Archiver, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	s3Client := s3.NewFromConfig(awsConfig, s3Opts...)

	factory := func() (lode.Store, error) {
		return lodes3.New(s3Client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}
	return NewArchiverWithFactory(name, factory)
}

// Archive writes a batch of events to the dataset.
func (a *Archiver) Archive(ctx context.Context, events []types.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]any, 0, len(events))
	for _, ev := range events {
		records = append(records, usageRecord{
			RecordKind: RecordKindUsage,
			EventID:    ev.EventID,
			Reference:  ev.Reference.String(),
			Actor:      ev.Actor,
			Tier:       string(ev.Tier),
			Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339Nano),
			Team:       ev.Team,
			Day:        ev.Timestamp.UTC().Format(dayLayout),
			EventType:  RecordKindUsage,
		})
	}

	if _, err := a.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return fmt.Errorf("archive usage events: %w", err)
	}
	return nil
}

// Events reads a team's archived events with timestamps in [since, until).
// Snapshot partition paths are a coarse pre-filter; record fields are
// authoritative.
func (a *Archiver) Events(ctx context.Context, team string, since, until time.Time) ([]types.UsageEvent, error) {
	snapshots, err := a.dataset.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive snapshots: %w", err)
	}

	var events []types.UsageEvent
	for _, snap := range snapshots {
		if !snapshotMatchesPartition(snap, "team", team) {
			continue
		}

		data, err := a.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("read archive snapshot %s: %w", snap.ID, err)
		}

		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindUsage {
				continue
			}
			if toString(record["team"]) != team {
				continue
			}

			ev, err := recordToEvent(record)
			if err != nil {
				continue
			}
			if ev.Timestamp.Before(since) || !ev.Timestamp.Before(until) {
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func recordToEvent(record map[string]any) (types.UsageEvent, error) {
	ref, err := types.ParseReference(toString(record["reference"]))
	if err != nil {
		return types.UsageEvent{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, toString(record["timestamp"]))
	if err != nil {
		return types.UsageEvent{}, err
	}
	return types.UsageEvent{
		EventID:   toString(record["event_id"]),
		Team:      toString(record["team"]),
		Reference: ref,
		Actor:     toString(record["actor"]),
		Tier:      types.Tier(toString(record["tier"])),
		Timestamp: ts,
	}, nil
}

// snapshotMatchesPartition checks a snapshot's file paths for an exact
// key=value Hive segment. Exact segment matching avoids substring false
// positives across team names.
func snapshotMatchesPartition(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
