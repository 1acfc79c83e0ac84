package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// entryRow is the thin list representation of a cache entry.
type entryRow struct {
	Reference    string `json:"reference"`
	Digest       string `json:"digest"`
	SizeBytes    int64  `json:"size_bytes"`
	SourceTier   string `json:"source_tier"`
	LastAccessed string `json:"last_accessed"`
}

// poolRow is the thin list representation of a mirror pool.
type poolRow struct {
	Name      string `json:"name"`
	Strategy  string `json:"strategy"`
	Endpoints int    `json:"endpoints"`
	Sticky    string `json:"sticky,omitempty"`
}

// ListCommand returns the list command with subcommands.
// List returns thin slices, not info-level detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (entries, pools)",
		Subcommands: []*cli.Command{
			listEntriesCommand(),
			listPoolsCommand(),
		},
	}
}

func listEntriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "entries",
		Usage: "List cached artifact entries",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "ecosystem",
				Usage: "Filter by ecosystem",
			},
			&cli.StringFlag{
				Name:  "tier",
				Usage: "Filter by source tier: cache, native, registry, http",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listEntriesAction,
	}
}

func listEntriesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := e.store.Entries()
	if err != nil {
		return fmt.Errorf("failed to read cache index: %w", err)
	}

	ecosystem := c.String("ecosystem")
	tier := c.String("tier")
	limit := c.Int("limit")

	rows := make([]entryRow, 0, len(entries))
	for _, entry := range entries {
		if ecosystem != "" && entry.Reference.Ecosystem != ecosystem {
			continue
		}
		if tier != "" && string(entry.SourceTier) != tier {
			continue
		}
		rows = append(rows, entryRow{
			Reference:    entry.Reference.String(),
			Digest:       entry.Digest.String(),
			SizeBytes:    entry.SizeBytes,
			SourceTier:   string(entry.SourceTier),
			LastAccessed: entry.LastAccessedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Reference < rows[j].Reference })

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(rows) > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(rows))
	}

	return r.Render(rows)
}

func listPoolsCommand() *cli.Command {
	return &cli.Command{
		Name:   "pools",
		Usage:  "List configured mirror pools",
		Flags:  ReadOnlyFlags(),
		Action: listPoolsAction,
	}
}

func listPoolsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	pools := cfg.MirrorPools()
	rows := make([]poolRow, 0, len(pools))
	for _, pool := range pools {
		row := poolRow{
			Name:      pool.Name,
			Strategy:  string(pool.Strategy),
			Endpoints: len(pool.Endpoints),
		}
		if pool.Sticky != nil {
			row.Sticky = string(pool.Sticky.Scope)
		}
		rows = append(rows, row)
	}

	return r.Render(rows)
}
