package team

import (
	"io"
	"math"
	"testing"
	"time"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
	"github.com/justapithecus/depot/usage"
)

func discardLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.NewLogger(t.TempDir()).WithOutput(io.Discard)
}

func mustRef(t *testing.T, raw string) types.ArtifactReference {
	t.Helper()
	ref, err := types.ParseReference(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return ref
}

func newTestCoordinator(t *testing.T, strategy types.CacheStrategy, now time.Time) (*Coordinator, *usage.Journal) {
	t.Helper()
	j, err := usage.OpenJournal(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	logger := discardLogger(t)
	recorder := usage.NewRecorder(j, nil, logger)
	t.Cleanup(recorder.Close)

	cfg := types.TeamConfig{TeamName: "platform", CacheStrategy: strategy}
	c := NewCoordinator(cfg, recorder, j, logger)
	c.now = func() time.Time { return now }
	return c, j
}

func appendEvent(t *testing.T, j *usage.Journal, actor string, ref types.ArtifactReference, at time.Time) {
	t.Helper()
	err := j.Append(types.UsageEvent{
		EventID:   "ev",
		Team:      "platform",
		Reference: ref,
		Actor:     actor,
		Tier:      types.TierRegistry,
		Timestamp: at.UTC(),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestCoOccurrence_ScenarioBundleProposed(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c, j := newTestCoordinator(t, types.StrategyBalanced, now)

	x := mustRef(t, "npm/tools/protoc:31.1")
	y := mustRef(t, "npm/tools/buf:1.32.0")

	// 45 paired uses of X and Y by one actor, each pair one minute
	// apart, pairs spaced beyond the one-hour pairing window.
	base := now.Add(-20 * 24 * time.Hour)
	for i := 0; i < 45; i++ {
		at := base.Add(time.Duration(i) * 2 * time.Hour)
		appendEvent(t, j, "dev-1", x, at)
		appendEvent(t, j, "dev-1", y, at.Add(time.Minute))
	}
	// 5 solo uses of X, far from any Y.
	solo := base.Add(10 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		appendEvent(t, j, "dev-2", x, solo.Add(time.Duration(i)*3*time.Hour))
	}

	pairs, err := c.CoOccurrence(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("co-occurrence: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}

	// Joint 45 over max(total X = 50, total Y = 45).
	if math.Abs(pairs[0].Score-0.9) > 1e-9 {
		t.Errorf("score = %v, want 0.90", pairs[0].Score)
	}
	if pairs[0].UsageCount != 45 {
		t.Errorf("usage count = %d, want 45", pairs[0].UsageCount)
	}

	bundle, err := c.ProposeBundle(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("propose bundle: %v", err)
	}
	if bundle == nil {
		t.Fatal("score 0.90 over threshold 0.7 should propose a bundle")
	}
	if len(bundle.Members) != 2 {
		t.Fatalf("bundle has %d members, want 2", len(bundle.Members))
	}
	got := map[string]bool{}
	for _, m := range bundle.Members {
		got[m.Key()] = true
	}
	if !got[x.Key()] || !got[y.Key()] {
		t.Errorf("bundle members = %v, want {X, Y}", bundle.Members)
	}
}

func TestCoOccurrence_SymmetryAndBounds(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c, j := newTestCoordinator(t, types.StrategyBalanced, now)

	a := mustRef(t, "npm/tools/protoc:31.1")
	b := mustRef(t, "pip/tools/black:24.4.2")

	// Interleave orderings: sometimes a before b, sometimes b before a.
	base := now.Add(-24 * time.Hour)
	for i := 0; i < 10; i++ {
		at := base.Add(time.Duration(i) * 2 * time.Hour)
		if i%2 == 0 {
			appendEvent(t, j, "dev-1", a, at)
			appendEvent(t, j, "dev-1", b, at.Add(time.Minute))
		} else {
			appendEvent(t, j, "dev-1", b, at)
			appendEvent(t, j, "dev-1", a, at.Add(time.Minute))
		}
	}

	pairs, err := c.CoOccurrence(48 * time.Hour)
	if err != nil {
		t.Fatalf("co-occurrence: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("orderings must share one counter, got %d pairs", len(pairs))
	}
	if pairs[0].Score < 0 || pairs[0].Score > 1 {
		t.Errorf("score %v out of [0,1]", pairs[0].Score)
	}
	if pairs[0].UsageCount != 10 {
		t.Errorf("usage count = %d, want 10", pairs[0].UsageCount)
	}
}

func TestCoOccurrence_DifferentActorsDoNotPair(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c, j := newTestCoordinator(t, types.StrategyBalanced, now)

	at := now.Add(-time.Hour)
	appendEvent(t, j, "dev-1", mustRef(t, "npm/tools/protoc:31.1"), at)
	appendEvent(t, j, "dev-2", mustRef(t, "npm/tools/buf:1.32.0"), at.Add(time.Minute))

	pairs, err := c.CoOccurrence(24 * time.Hour)
	if err != nil {
		t.Fatalf("co-occurrence: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("cross-actor events paired: %+v", pairs)
	}
}

func TestProposeBundle_BelowThresholdReturnsNil(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c, j := newTestCoordinator(t, types.StrategyConservative, now)

	x := mustRef(t, "npm/tools/protoc:31.1")
	y := mustRef(t, "npm/tools/buf:1.32.0")
	base := now.Add(-24 * time.Hour)
	// Ten joint uses: under the conservative usage minimum of 50.
	for i := 0; i < 10; i++ {
		at := base.Add(time.Duration(i) * 2 * time.Hour)
		appendEvent(t, j, "dev-1", x, at)
		appendEvent(t, j, "dev-1", y, at.Add(time.Minute))
	}

	bundle, err := c.ProposeBundle(48 * time.Hour)
	if err != nil {
		t.Fatalf("propose bundle: %v", err)
	}
	if bundle != nil {
		t.Errorf("bundle proposed below usage minimum: %+v", bundle)
	}
}

func TestWarmSchedule_TopHoursRanked(t *testing.T) {
	now := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	c, j := newTestCoordinator(t, types.StrategyBalanced, now)

	x := mustRef(t, "npm/tools/protoc:31.1")
	y := mustRef(t, "npm/tools/buf:1.32.0")
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	// Hour 9: 6 events. Hour 14: 3 events. Hour 20: 1 event.
	for i := 0; i < 6; i++ {
		appendEvent(t, j, "dev-1", x, day.Add(9*time.Hour).Add(time.Duration(i)*time.Minute))
	}
	for i := 0; i < 3; i++ {
		appendEvent(t, j, "dev-1", y, day.Add(14*time.Hour).Add(time.Duration(i)*time.Minute))
	}
	appendEvent(t, j, "dev-1", y, day.Add(20*time.Hour))

	slots, err := c.WarmSchedule(24 * time.Hour)
	if err != nil {
		t.Fatalf("warm schedule: %v", err)
	}

	// Balanced strategy keeps the top two hours.
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
	if slots[0].Hour != 9 || slots[1].Hour != 14 {
		t.Errorf("slot hours = %d, %d, want 9 and 14", slots[0].Hour, slots[1].Hour)
	}
	if len(slots[0].References) != 1 || slots[0].References[0].Key() != x.Key() {
		t.Errorf("hour 9 references = %v, want just X", slots[0].References)
	}
}

func TestWarmSchedule_EmptyHistory(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	c, _ := newTestCoordinator(t, types.StrategyBalanced, now)

	slots, err := c.WarmSchedule(24 * time.Hour)
	if err != nil {
		t.Fatalf("warm schedule: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("empty history produced %d slots", len(slots))
	}
}
