package install

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"time"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
)

// Runner executes a host command. Abstracted so tests can substitute
// a fake without a real package manager on the host.
type Runner interface {
	// LookPath reports the absolute path of a binary, or an error
	// when it is not on PATH.
	LookPath(name string) (string, error)

	// Run executes name with args, writing any fetched artifact
	// under destDir.
	Run(ctx context.Context, destDir, name string, args ...string) error
}

// execRunner runs commands through os/exec.
type execRunner struct{}

func (execRunner) LookPath(name string) (string, error) {
	return osexec.LookPath(name)
}

func (execRunner) Run(ctx context.Context, destDir, name string, args ...string) error {
	cmd := osexec.CommandContext(ctx, name, args...)
	cmd.Dir = destDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, string(out))
	}
	return nil
}

// manager describes how one ecosystem's package manager fetches an
// artifact into a directory without installing it system-wide.
type manager struct {
	binary string
	args   func(ref types.ArtifactReference) []string
}

// managers maps ecosystem names to their host package managers. An
// ecosystem absent here has no native tier and falls through.
var managers = map[string]manager{
	"npm": {
		binary: "npm",
		args: func(ref types.ArtifactReference) []string {
			return []string{"pack", fmt.Sprintf("%s@%s", ref.Name, ref.Version)}
		},
	},
	"pip": {
		binary: "pip",
		args: func(ref types.ArtifactReference) []string {
			return []string{"download", "--no-deps", "-d", ".", fmt.Sprintf("%s==%s", ref.Name, ref.Version)}
		},
	},
	"cargo": {
		binary: "cargo",
		args: func(ref types.ArtifactReference) []string {
			return []string{"install", "--root", ".", "--version", ref.Version, ref.Name}
		},
	},
	"gem": {
		binary: "gem",
		args: func(ref types.ArtifactReference) []string {
			return []string{"fetch", ref.Name, "-v", ref.Version}
		},
	},
}

// NativeTier fetches artifacts through the host package manager that
// matches the reference's declared ecosystem.
type NativeTier struct {
	runner  Runner
	timeout time.Duration
	logger  *log.Logger
}

// NewNativeTier creates a native tier backed by os/exec.
func NewNativeTier(timeout time.Duration, logger *log.Logger) *NativeTier {
	return &NativeTier{runner: execRunner{}, timeout: timeout, logger: logger}
}

// NewNativeTierWithRunner creates a native tier with a custom runner.
func NewNativeTierWithRunner(r Runner, timeout time.Duration, logger *log.Logger) *NativeTier {
	return &NativeTier{runner: r, timeout: timeout, logger: logger}
}

var _ Tier = (*NativeTier)(nil)

func (t *NativeTier) Name() types.Tier { return types.TierNative }

// Available reports whether any ecosystem manager is probeable. The
// per-reference check happens in Fetch, since availability depends on
// the reference's ecosystem.
func (t *NativeTier) Available(_ context.Context) bool {
	for _, m := range managers {
		if _, err := t.runner.LookPath(m.binary); err == nil {
			return true
		}
	}
	return false
}

func (t *NativeTier) Fetch(ctx context.Context, ref types.ArtifactReference) ([]byte, error) {
	m, ok := managers[ref.Ecosystem]
	if !ok {
		return nil, fmt.Errorf("%w: no package manager mapped for ecosystem %q", ErrTierUnavailable, ref.Ecosystem)
	}
	if _, err := t.runner.LookPath(m.binary); err != nil {
		return nil, fmt.Errorf("%w: %s not on PATH", ErrTierUnavailable, m.binary)
	}

	destDir, err := os.MkdirTemp("", "depot-native-*")
	if err != nil {
		return nil, fmt.Errorf("native fetch workspace: %w", err)
	}
	defer os.RemoveAll(destDir)

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if err := t.runner.Run(ctx, destDir, m.binary, m.args(ref)...); err != nil {
		return nil, fmt.Errorf("native fetch: %w", err)
	}

	path, err := newestFile(destDir)
	if err != nil {
		return nil, fmt.Errorf("native fetch produced no artifact: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read native artifact: %w", err)
	}

	t.logger.Debug("native tier fetched artifact", map[string]any{
		"reference":  ref.String(),
		"manager":    m.binary,
		"size_bytes": len(data),
	})
	return data, nil
}

// newestFile returns the most recently modified regular file under dir,
// walking one level of subdirectories. Package managers differ in where
// they place fetched output.
func newestFile(dir string) (string, error) {
	var newest string
	var newestMod time.Time

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if newest == "" {
		return "", ErrNotFound
	}
	return newest, nil
}
