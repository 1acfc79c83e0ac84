package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/depot/cli/render"
)

// tierHealth reports one tier's availability.
type tierHealth struct {
	Tier      string `json:"tier"`
	Available bool   `json:"available"`
}

// doctorReport is the full diagnostic output.
type doctorReport struct {
	CacheRoot    string       `json:"cache_root"`
	Entries      int          `json:"entries"`
	Blobs        int          `json:"blobs"`
	TotalBytes   int64        `json:"total_bytes"`
	Tiers        []tierHealth `json:"tiers"`
	MissingBlobs []string     `json:"missing_blobs,omitempty"`
	Healthy      bool         `json:"healthy"`
}

// DoctorCommand returns the doctor command: tier availability probes
// and an index/blob consistency scan.
func DoctorCommand() *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "Diagnose tier availability and cache consistency",
		Flags:  ReadOnlyFlags(),
		Action: doctorAction,
	}
}

func doctorAction(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for doctor", 1)
	}

	e, err := newEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := e.store.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache stats: %w", err)
	}

	report := doctorReport{
		CacheRoot:  e.store.Root(),
		Entries:    stats.Entries,
		Blobs:      stats.Blobs,
		TotalBytes: stats.TotalBytes,
		Healthy:    true,
	}

	for _, tier := range e.tiers {
		report.Tiers = append(report.Tiers, tierHealth{
			Tier:      string(tier.Name()),
			Available: tier.Available(ctx),
		})
	}

	// Index entries whose blob is gone indicate interrupted writes or
	// external tampering. They resolve as misses, so they are flagged
	// rather than fatal.
	entries, err := e.store.Entries()
	if err != nil {
		return fmt.Errorf("failed to scan cache index: %w", err)
	}
	for _, entry := range entries {
		if !e.store.HasBlob(entry.Digest) {
			report.MissingBlobs = append(report.MissingBlobs, entry.Reference.String())
			report.Healthy = false
		}
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if err := r.Render(report); err != nil {
		return err
	}

	if !report.Healthy {
		return cli.Exit("", 1)
	}
	return nil
}
