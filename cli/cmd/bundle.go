package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/adapter"
	"github.com/justapithecus/depot/bundle"
	"github.com/justapithecus/depot/cli/render"
)

// BundleCommand returns the bundle command with subcommands.
func BundleCommand() *cli.Command {
	return &cli.Command{
		Name:  "bundle",
		Usage: "Propose and build artifact bundles from co-occurrence analysis",
		Subcommands: []*cli.Command{
			bundleProposeCommand(),
			bundleBuildCommand(),
		},
	}
}

func bundleProposeCommand() *cli.Command {
	return &cli.Command{
		Name:  "propose",
		Usage: "Propose a bundle from the team's co-occurring artifacts",
		Flags: append(ReadOnlyFlags(),
			&cli.DurationFlag{
				Name:  "window",
				Usage: "Usage window to analyze (default: team retention)",
			},
		),
		Action: bundleProposeAction,
	}
}

func bundleProposeAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for bundle commands", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	proposal, err := e.team.ProposeBundle(windowOrRetention(c, e))
	if err != nil {
		return fmt.Errorf("bundle analysis failed: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if proposal == nil {
		return r.Render(map[string]string{
			"result": "no artifact pairs clear the team's bundle thresholds",
		})
	}

	return r.Render(proposal)
}

func bundleBuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build the proposed bundle into the cache and announce it",
		Flags: append(ReadOnlyFlags(),
			&cli.DurationFlag{
				Name:  "window",
				Usage: "Usage window to analyze (default: team retention)",
			},
		),
		Action: bundleBuildAction,
	}
}

func bundleBuildAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for bundle commands", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	proposal, err := e.team.ProposeBundle(windowOrRetention(c, e))
	if err != nil {
		return fmt.Errorf("bundle analysis failed: %w", err)
	}
	if proposal == nil {
		return cli.Exit("no artifact pairs clear the team's bundle thresholds", 1)
	}

	// Every member must already be cached; build fails otherwise.
	builder := bundle.NewBuilder(e.store, e.logger)
	built, err := builder.Build(*proposal)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bundle build failed: %v", err), 1)
	}

	e.publish(ctx, adapter.NewBundleProposedEvent(e.teamCfg.TeamName, built))

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	return r.Render(built)
}
