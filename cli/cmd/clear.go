package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
	"github.com/justapithecus/depot/store"
)

// ClearCommand returns the clear command. Eviction honors the team's
// cache strategy limits unless explicit flags override them.
func ClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Evict cache entries by age, size limit, or entirely",
		Flags: append(ReadOnlyFlags(),
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Evict entries not accessed within this duration",
			},
			&cli.Int64Flag{
				Name:  "max-bytes",
				Usage: "Evict least-recently-used entries until total size fits (overrides strategy limit)",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Remove every cache entry",
			},
			&cli.BoolFlag{
				Name:  "prune-usage",
				Usage: "Also prune usage journal segments past the team's retention",
			},
		),
		Action: clearAction,
	}
}

func clearAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for clear", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	now := time.Now()

	if c.Bool("all") {
		removed, err := e.store.Clear(0, now)
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		return renderClearResult(c, store.EvictResult{
			BlobsRemoved:   removed,
			EntriesRemoved: removed,
		}, 0)
	}

	policy := store.EvictPolicy{
		MaxTotalBytes: c.Int64("max-bytes"),
		MaxAge:        c.Duration("older-than"),
	}
	// Fall back to strategy-derived limits when no explicit flag is given.
	if policy.MaxTotalBytes == 0 && policy.MaxAge == 0 {
		policy.MaxTotalBytes = e.cfg.Cache.MaxSizeBytes
		if policy.MaxTotalBytes == 0 {
			policy.MaxTotalBytes = e.team.Thresholds().MaxCacheBytes
		}
		policy.MaxAge = e.cfg.Cache.MaxAge.Duration
	}

	result, err := e.store.Evict(policy, now)
	if err != nil {
		return fmt.Errorf("eviction failed: %w", err)
	}

	pruned := 0
	if c.Bool("prune-usage") {
		cutoff := now.Add(-e.team.Thresholds().Retention)
		pruned, err = e.journal.Prune(cutoff)
		if err != nil {
			return fmt.Errorf("usage prune failed: %w", err)
		}
	}

	return renderClearResult(c, result, pruned)
}

// clearResponse reports one eviction pass.
type clearResponse struct {
	BlobsRemoved        int   `json:"blobs_removed"`
	EntriesRemoved      int   `json:"entries_removed"`
	BytesFreed          int64 `json:"bytes_freed"`
	UsageSegmentsPruned int   `json:"usage_segments_pruned,omitempty"`
}

func renderClearResult(c *cli.Context, result store.EvictResult, pruned int) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(clearResponse{
		BlobsRemoved:        result.BlobsRemoved,
		EntriesRemoved:      result.EntriesRemoved,
		BytesFreed:          result.BytesFreed,
		UsageSegmentsPruned: pruned,
	})
}
