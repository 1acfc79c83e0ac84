package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
	"github.com/justapithecus/depot/cli/tui"
	"github.com/justapithecus/depot/types"
)

// InfoCommand returns the info command, showing full detail for one
// cache entry or mirror pool. Supports --tui.
func InfoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show detail for a cached artifact or mirror pool",
		Subcommands: []*cli.Command{
			infoEntryCommand(),
			infoPoolCommand(),
		},
	}
}

func infoEntryCommand() *cli.Command {
	return &cli.Command{
		Name:      "entry",
		Usage:     "Show a cache entry",
		ArgsUsage: "<reference>",
		Flags:     TUIReadOnlyFlags(),
		Action:    infoEntryAction,
	}
}

func infoEntryAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one artifact reference is required", 1)
	}

	ref, err := types.ParseReference(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid reference: %v", err), 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	// Entry reads do not touch access time; info is a pure read.
	entry, err := e.resolver.Entry(ref)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%v", err), 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_entry", &entry)
	}

	return r.Render(entry)
}

func infoPoolCommand() *cli.Command {
	return &cli.Command{
		Name:      "pool",
		Usage:     "Show a mirror pool's configuration and selector state",
		ArgsUsage: "<pool-name>",
		Flags:     TUIReadOnlyFlags(),
		Action:    infoPoolAction,
	}
}

func infoPoolAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one pool name is required", 1)
	}
	name := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	view := &tui.PoolView{}
	for _, pool := range cfg.MirrorPools() {
		if pool.Name == name {
			view.Pool = pool
			break
		}
	}
	if view.Pool == nil {
		return cli.Exit(fmt.Sprintf("mirror pool %q not found", name), 1)
	}

	// Selector state is per-invocation; a fresh selector reports the
	// initial rotation state.
	selector, err := buildSelector(cfg)
	if err != nil {
		return err
	}
	if selector != nil {
		if stats, err := selector.Stats(name); err == nil {
			view.Stats = stats
		}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_pool", view)
	}

	return r.Render(view)
}
