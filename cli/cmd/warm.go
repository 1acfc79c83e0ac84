package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
)

// WarmCommand returns the warm command: shows the team's pre-warm
// schedule, and optionally prefetches the scheduled references now.
func WarmCommand() *cli.Command {
	return &cli.Command{
		Name:  "warm",
		Usage: "Show the team's cache pre-warm schedule",
		Flags: append(ReadOnlyFlags(),
			&cli.DurationFlag{
				Name:  "window",
				Usage: "Usage window to analyze (default: team retention)",
			},
			&cli.BoolFlag{
				Name:  "run",
				Usage: "Prefetch every scheduled reference immediately",
			},
		),
		Action: warmAction,
	}
}

func warmAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for warm", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	schedule, err := e.team.WarmSchedule(windowOrRetention(c, e))
	if err != nil {
		return fmt.Errorf("warm schedule analysis failed: %w", err)
	}

	if c.Bool("run") {
		ctx, cancel := signalContext()
		defer cancel()

		for _, slot := range schedule {
			for _, ref := range slot.References {
				if _, err := e.Pull(ctx, ref, "", actorName(c)); err != nil {
					// Prefetching is best-effort; a missing upstream
					// artifact should not abort the rest of the slot.
					fmt.Fprintf(os.Stderr, "Warning: prefetch %s failed: %v\n", ref, err)
				}
			}
		}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	return r.Render(schedule)
}
