package install

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justapithecus/depot/types"
)

// fakeRunner simulates a host package manager without executing anything.
type fakeRunner struct {
	binaries map[string]bool
	payload  []byte
	runErr   error
	lastArgs []string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.binaries[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeRunner) Run(_ context.Context, destDir, name string, args ...string) error {
	f.lastArgs = append([]string{name}, args...)
	if f.runErr != nil {
		return f.runErr
	}
	return os.WriteFile(filepath.Join(destDir, "fetched.tgz"), f.payload, 0o644)
}

func TestNativeTier_FetchViaManager(t *testing.T) {
	runner := &fakeRunner{binaries: map[string]bool{"npm": true}, payload: []byte("packed tarball")}
	tier := NewNativeTierWithRunner(runner, time.Minute, discardLogger(t))

	if !tier.Available(context.Background()) {
		t.Fatal("tier should be available when a manager is on PATH")
	}

	data, err := tier.Fetch(context.Background(), mustRef(t, "npm/tools/typescript:5.4.5"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "packed tarball" {
		t.Error("fetched bytes differ from manager output")
	}
	if runner.lastArgs[0] != "npm" || runner.lastArgs[1] != "pack" {
		t.Errorf("unexpected manager invocation: %v", runner.lastArgs)
	}
}

func TestNativeTier_UnknownEcosystem(t *testing.T) {
	runner := &fakeRunner{binaries: map[string]bool{"npm": true}}
	tier := NewNativeTierWithRunner(runner, time.Minute, discardLogger(t))

	_, err := tier.Fetch(context.Background(), mustRef(t, "conda/tools/numpy:2.0.0"))
	if !errors.Is(err, ErrTierUnavailable) {
		t.Errorf("err = %v, want ErrTierUnavailable", err)
	}
}

func TestNativeTier_ManagerNotOnPath(t *testing.T) {
	runner := &fakeRunner{binaries: map[string]bool{}}
	tier := NewNativeTierWithRunner(runner, time.Minute, discardLogger(t))

	if tier.Available(context.Background()) {
		t.Error("tier should be unavailable when no manager is on PATH")
	}

	_, err := tier.Fetch(context.Background(), mustRef(t, "pip/tools/black:24.4.2"))
	if !errors.Is(err, ErrTierUnavailable) {
		t.Errorf("err = %v, want ErrTierUnavailable", err)
	}
}

func TestNativeTier_ManagerFailure(t *testing.T) {
	runner := &fakeRunner{
		binaries: map[string]bool{"pip": true},
		runErr:   errors.New("No matching distribution found"),
	}
	tier := NewNativeTierWithRunner(runner, time.Minute, discardLogger(t))

	_, err := tier.Fetch(context.Background(), mustRef(t, "pip/tools/black:0.0.0"))
	if err == nil {
		t.Fatal("expected error from failed manager run")
	}
	if errors.Is(err, ErrTierUnavailable) {
		t.Error("manager failure must fall through as failure, not skip")
	}
}

func TestNativeTier_Name(t *testing.T) {
	tier := NewNativeTier(time.Minute, discardLogger(t))
	if tier.Name() != types.TierNative {
		t.Errorf("name = %s, want %s", tier.Name(), types.TierNative)
	}
}
