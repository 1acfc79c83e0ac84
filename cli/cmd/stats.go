package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
	"github.com/justapithecus/depot/cli/tui"
)

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (cache, tiers, report)",
		Subcommands: []*cli.Command{
			statsCacheCommand(),
			statsTiersCommand(),
			statsReportCommand(),
		},
	}
}

func statsCacheCommand() *cli.Command {
	return &cli.Command{
		Name:   "cache",
		Usage:  "Show cache contents and hit/miss counters",
		Flags:  TUIReadOnlyFlags(),
		Action: statsCacheAction,
	}
}

func statsCacheAction(c *cli.Context) error {
	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	storeStats, err := e.store.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	view := &tui.CacheStatsView{
		Store:   storeStats,
		Metrics: e.metrics.Snapshot(),
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_cache", view)
	}

	return r.Render(view)
}

func statsTiersCommand() *cli.Command {
	return &cli.Command{
		Name:   "tiers",
		Usage:  "Show per-tier resolution outcomes and latency",
		Flags:  TUIReadOnlyFlags(),
		Action: statsTiersAction,
	}
}

func statsTiersAction(c *cli.Context) error {
	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	snapshot := e.metrics.Snapshot()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_tiers", &snapshot)
	}

	return r.Render(snapshot)
}

func statsReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Show the derived performance report for the team",
		Flags: append(ReadOnlyFlags(),
			&cli.DurationFlag{
				Name:  "window",
				Usage: "Reporting window (default: 7 days)",
				Value: 7 * 24 * time.Hour,
			},
		),
		Action: statsReportAction,
	}
}

func statsReportAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for stats report", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	report := e.reporter.Metrics(e.teamCfg.TeamName, c.Duration("window"))

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	return r.Render(report)
}
