package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencontainers/go-digest"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
	"github.com/justapithecus/depot/types"
)

// PullCommand returns the pull command, the only command that fetches
// artifacts.
func PullCommand() *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "Resolve an artifact into the cache (ecosystem[/namespace]/name:version)",
		ArgsUsage: "<reference> [<reference>...]",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "digest",
				Usage: "Expected sha256 digest; resolution fails on mismatch",
			},
			&cli.StringFlag{
				Name:  "actor",
				Usage: "Actor recorded in usage events (default: $USER)",
			},
		),
		Action: pullAction,
	}
}

func pullAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one artifact reference is required", 1)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for pull", 1)
	}

	var expected digest.Digest
	if raw := c.String("digest"); raw != "" {
		d, err := digest.Parse(raw)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid digest: %v", err), 1)
		}
		expected = d
	}
	if expected != "" && c.NArg() > 1 {
		return cli.Exit("--digest requires exactly one reference", 1)
	}

	refs := make([]types.ArtifactReference, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		ref, err := types.ParseReference(arg)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid reference %q: %v", arg, err), 1)
		}
		refs = append(refs, ref)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	results := make([]types.InstallResult, 0, len(refs))
	for _, ref := range refs {
		result, err := e.Pull(ctx, ref, expected, actorName(c))
		if err != nil {
			return cli.Exit(fmt.Sprintf("pull %s: %v", ref, err), 1)
		}
		results = append(results, result)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if len(results) == 1 {
		return r.Render(results[0])
	}
	return r.Render(results)
}

func actorName(c *cli.Context) string {
	if actor := c.String("actor"); actor != "" {
		return actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
