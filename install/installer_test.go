package install

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/metrics"
	"github.com/justapithecus/depot/store"
	"github.com/justapithecus/depot/types"
)

func newTestStore(t *testing.T) (*store.Store, *log.Logger) {
	t.Helper()
	logger := log.NewLogger(t.TempDir()).WithOutput(io.Discard)
	s, err := store.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s, logger
}

func mustRef(t *testing.T, raw string) types.ArtifactReference {
	t.Helper()
	ref, err := types.ParseReference(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return ref
}

// fakeTier is a scripted tier for chain tests.
type fakeTier struct {
	name      types.Tier
	available bool
	data      []byte
	err       error
	calls     int
}

func (f *fakeTier) Name() types.Tier                 { return f.name }
func (f *fakeTier) Available(context.Context) bool   { return f.available }
func (f *fakeTier) Fetch(context.Context, types.ArtifactReference) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func TestInstall_FallthroughOrder(t *testing.T) {
	s, logger := newTestStore(t)
	ref := mustRef(t, "npm/tools/protoc:31.1")

	native := &fakeTier{name: types.TierNative, available: false}
	registry := &fakeTier{name: types.TierRegistry, available: true, err: ErrNotFound}
	download := &fakeTier{name: types.TierDownload, available: true, data: []byte("protoc binary")}

	inst := NewInstaller(s, metrics.NewCollector(s.Root()), logger, native, registry, download)
	result, err := inst.Install(context.Background(), ref, "")
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	if result.TierUsed != types.TierDownload {
		t.Errorf("tier used = %s, want %s", result.TierUsed, types.TierDownload)
	}
	if native.calls != 0 {
		t.Errorf("unavailable tier was invoked %d times", native.calls)
	}
	if registry.calls != 1 || download.calls != 1 {
		t.Errorf("registry calls = %d, download calls = %d, want 1 and 1", registry.calls, download.calls)
	}
}

func TestInstall_CommitsToStore(t *testing.T) {
	s, logger := newTestStore(t)
	ref := mustRef(t, "npm/tools/protoc:31.1-linux-x86_64")
	payload := []byte("artifact payload")

	tier := &fakeTier{name: types.TierDownload, available: true, data: payload}
	inst := NewInstaller(s, metrics.NewCollector(s.Root()), logger, tier)

	result, err := inst.Install(context.Background(), ref, "")
	if err != nil {
		t.Fatalf("install: %v", err)
	}

	if result.Digest != digest.FromBytes(payload) {
		t.Errorf("result digest = %s, want %s", result.Digest, digest.FromBytes(payload))
	}

	entry, err := s.EntryByReference(ref)
	if err != nil {
		t.Fatalf("entry missing after install: %v", err)
	}
	if entry.SourceTier != types.TierDownload {
		t.Errorf("entry source tier = %s, want %s", entry.SourceTier, types.TierDownload)
	}

	data, err := s.ReadBlob(result.Digest)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("blob bytes differ from fetched payload")
	}
}

func TestInstall_AggregateErrorListsTiers(t *testing.T) {
	s, logger := newTestStore(t)
	ref := mustRef(t, "pip/tools/black:24.4.2")

	skipped := &fakeTier{name: types.TierNative, available: false}
	failing := &fakeTier{name: types.TierRegistry, available: true, err: errors.New("connection refused")}
	missing := &fakeTier{name: types.TierDownload, available: true, err: ErrNotFound}

	inst := NewInstaller(s, metrics.NewCollector(s.Root()), logger, skipped, failing, missing)
	_, err := inst.Install(context.Background(), ref, "")
	if err == nil {
		t.Fatal("expected aggregate error")
	}

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("error is %T, want *AggregateError", err)
	}
	if len(agg.Tiers) != 2 {
		t.Errorf("aggregate lists %d tiers, want 2 (skips excluded)", len(agg.Tiers))
	}
	for _, te := range agg.Tiers {
		if te.Tier == types.TierNative {
			t.Error("skipped tier appears in aggregate error")
		}
	}
}

func TestInstall_DigestMismatchIsTerminal(t *testing.T) {
	s, logger := newTestStore(t)
	ref := mustRef(t, "npm/tools/protoc:31.1")

	first := &fakeTier{name: types.TierRegistry, available: true, data: []byte("tampered bytes")}
	second := &fakeTier{name: types.TierDownload, available: true, data: []byte("clean bytes")}

	inst := NewInstaller(s, metrics.NewCollector(s.Root()), logger, first, second)
	expected := digest.FromBytes([]byte("clean bytes"))

	_, err := inst.Install(context.Background(), ref, expected)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}
	if second.calls != 0 {
		t.Errorf("later tier was tried %d times after digest mismatch", second.calls)
	}
	if _, err := s.EntryByReference(ref); err == nil {
		t.Error("mismatched artifact was committed to the store")
	}
}

func TestInstall_ExpectedDigestMatch(t *testing.T) {
	s, logger := newTestStore(t)
	ref := mustRef(t, "npm/tools/protoc:31.1")
	payload := []byte("verified payload")

	tier := &fakeTier{name: types.TierRegistry, available: true, data: payload}
	inst := NewInstaller(s, metrics.NewCollector(s.Root()), logger, tier)

	result, err := inst.Install(context.Background(), ref, digest.FromBytes(payload))
	if err != nil {
		t.Fatalf("install with matching digest: %v", err)
	}
	if result.TierUsed != types.TierRegistry {
		t.Errorf("tier used = %s, want %s", result.TierUsed, types.TierRegistry)
	}
}

func TestInstall_TierUnavailableErrorCountsAsSkip(t *testing.T) {
	s, logger := newTestStore(t)
	ref := mustRef(t, "gem/tools/rake:13.2.1")

	// Available() passes but the per-reference probe inside Fetch fails.
	probing := &fakeTier{name: types.TierNative, available: true, err: ErrTierUnavailable}
	winning := &fakeTier{name: types.TierDownload, available: true, data: []byte("gem bytes")}

	collector := metrics.NewCollector(s.Root())
	inst := NewInstaller(s, collector, logger, probing, winning)

	result, err := inst.Install(context.Background(), ref, "")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if result.TierUsed != types.TierDownload {
		t.Errorf("tier used = %s, want %s", result.TierUsed, types.TierDownload)
	}

	snap := collector.Snapshot()
	if ts, ok := snap.Tiers[string(types.TierNative)]; !ok || ts.Skipped != 1 {
		t.Errorf("native tier skip not recorded: %+v", snap.Tiers)
	}
}

func TestInstall_InvalidReference(t *testing.T) {
	s, logger := newTestStore(t)
	inst := NewInstaller(s, metrics.NewCollector(s.Root()), logger)

	_, err := inst.Install(context.Background(), types.ArtifactReference{Ecosystem: "npm"}, "")
	if err == nil {
		t.Error("expected validation error for reference without name or version")
	}
}
