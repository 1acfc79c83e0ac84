package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
)

// RecommendCommand returns the recommend command, deriving optimization
// recommendations from usage history and resolution counters.
func RecommendCommand() *cli.Command {
	return &cli.Command{
		Name:  "recommend",
		Usage: "Derive cache optimization recommendations for the team",
		Flags: append(ReadOnlyFlags(),
			&cli.DurationFlag{
				Name:  "window",
				Usage: "Usage window to analyze (default: team retention)",
			},
		),
		Action: recommendAction,
	}
}

func recommendAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for recommend", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	recommendations, err := e.reporter.Recommendations(e.team, windowOrRetention(c, e))
	if err != nil {
		return fmt.Errorf("failed to derive recommendations: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	return r.Render(recommendations)
}

// windowOrRetention is shared by the analysis commands: an unset window
// falls back to the team's retention period.
func windowOrRetention(c *cli.Context, e *engine) time.Duration {
	if window := c.Duration("window"); window > 0 {
		return window
	}
	return e.team.Thresholds().Retention
}
