package store

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	logger := log.NewLogger(root).WithOutput(io.Discard)
	s, err := Open(root, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func mustRef(t *testing.T, s string) types.ArtifactReference {
	t.Helper()
	ref, err := types.ParseReference(s)
	if err != nil {
		t.Fatalf("ParseReference(%q): %v", s, err)
	}
	return ref
}

func putEntry(t *testing.T, s *Store, refStr string, content []byte, accessed time.Time) types.CacheEntry {
	t.Helper()
	d, err := s.PutBytes(content)
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	entry := types.CacheEntry{
		Reference:      mustRef(t, refStr),
		Digest:         d,
		SizeBytes:      int64(len(content)),
		CreatedAt:      accessed,
		LastAccessedAt: accessed,
		SourceTier:     types.TierDownload,
	}
	if err := s.RecordEntry(entry); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	return entry
}

func TestPut_ComputesDigestAndWritesBlob(t *testing.T) {
	s := newTestStore(t)
	content := []byte("protoc binary bytes")

	d, size, err := s.Put(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	if want := digest.FromBytes(content); d != want {
		t.Errorf("digest = %s, want %s", d, want)
	}
	if !s.HasBlob(d) {
		t.Error("blob not present after Put")
	}

	got, err := s.ReadBlob(d)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("ReadBlob returned different bytes")
	}
}

func TestPut_Idempotent(t *testing.T) {
	s := newTestStore(t)
	content := []byte("same bytes twice")

	d1, _, err := s.Put(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	d2, _, err := s.Put(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if d1 != d2 {
		t.Errorf("digests differ: %s vs %s", d1, d2)
	}
}

func TestVerify(t *testing.T) {
	s := newTestStore(t)
	content := []byte("verify me")
	d := digest.FromBytes(content)

	if !s.Verify(d, content) {
		t.Error("Verify rejected matching bytes")
	}
	if s.Verify(d, []byte("tampered")) {
		t.Error("Verify accepted mismatched bytes")
	}
}

func TestReadBlob_CorruptionDetectedAndHealed(t *testing.T) {
	s := newTestStore(t)
	entry := putEntry(t, s, "registry.example/tools/protoc:31.1", []byte("original content"), time.Now())

	// Corrupt the blob in place.
	if err := os.WriteFile(s.BlobPath(entry.Digest), []byte("corrupted content"), 0o644); err != nil {
		t.Fatalf("corrupt blob: %v", err)
	}

	_, err := s.ReadBlob(entry.Digest)
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("ReadBlob error = %v, want ErrCorrupted", err)
	}

	// Self-heal: blob and index entry are gone, next resolve is a miss.
	if s.HasBlob(entry.Digest) {
		t.Error("corrupted blob not evicted")
	}
	if _, err := s.EntryByReference(entry.Reference); !errors.Is(err, ErrNotFound) {
		t.Error("index entry survived corruption eviction")
	}
}

func TestOpenBlob_StreamingVerification(t *testing.T) {
	s := newTestStore(t)
	content := []byte("streaming content for verification")
	entry := putEntry(t, s, "registry.example/tools/buf:1.30.0", content, time.Now())

	rc, err := s.OpenBlob(entry.Digest)
	if err != nil {
		t.Fatalf("OpenBlob: %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("streamed bytes differ")
	}
}

func TestOpenBlob_PinsAgainstEviction(t *testing.T) {
	s := newTestStore(t)
	entry := putEntry(t, s, "registry.example/tools/protoc:31.1", []byte("pinned bytes"), time.Now().Add(-48*time.Hour))

	rc, err := s.OpenBlob(entry.Digest)
	if err != nil {
		t.Fatalf("OpenBlob: %v", err)
	}

	result, err := s.Evict(EvictPolicy{MaxAge: time.Hour}, time.Now())
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if result.BlobsRemoved != 0 {
		t.Error("evicted a blob with an open reader")
	}

	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err = s.Evict(EvictPolicy{MaxAge: time.Hour}, time.Now())
	if err != nil {
		t.Fatalf("Evict after close: %v", err)
	}
	if result.BlobsRemoved != 1 {
		t.Errorf("BlobsRemoved = %d after close, want 1", result.BlobsRemoved)
	}
}

func TestIndex_DualKeying(t *testing.T) {
	s := newTestStore(t)
	content := []byte("shared blob")
	now := time.Now()

	// Two references (a floating tag and a pinned version) share one digest.
	pinned := putEntry(t, s, "registry.example/tools/protoc:31.1", content, now)
	floating := putEntry(t, s, "registry.example/tools/protoc:latest", content, now)

	if pinned.Digest != floating.Digest {
		t.Fatal("test setup: digests should match")
	}

	entries, err := s.EntriesByDigest(pinned.Digest)
	if err != nil {
		t.Fatalf("EntriesByDigest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("EntriesByDigest returned %d entries, want 2", len(entries))
	}

	got, err := s.EntryByReference(pinned.Reference)
	if err != nil {
		t.Fatalf("EntryByReference: %v", err)
	}
	if got.Digest != pinned.Digest {
		t.Errorf("entry digest = %s, want %s", got.Digest, pinned.Digest)
	}
}

func TestIndex_FloatingTagMove(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	old := putEntry(t, s, "registry.example/tools/protoc:latest", []byte("v31.0 bytes"), now)

	// The latest tag moves to new content.
	newEntry := putEntry(t, s, "registry.example/tools/protoc:latest", []byte("v31.1 bytes"), now)

	entries, err := s.EntriesByDigest(old.Digest)
	if err == nil && len(entries) > 0 {
		t.Error("old digest still linked to moved tag")
	}
	entries, err = s.EntriesByDigest(newEntry.Digest)
	if err != nil || len(entries) != 1 {
		t.Errorf("new digest entries = (%v, %v), want 1 entry", entries, err)
	}
}

func TestTouch_UpdatesLastAccessed(t *testing.T) {
	s := newTestStore(t)
	past := time.Now().Add(-time.Hour)
	entry := putEntry(t, s, "registry.example/tools/protoc:31.1", []byte("touch me"), past)

	now := time.Now()
	updated, err := s.Touch(entry.Reference, now)
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if !updated.LastAccessedAt.After(past) {
		t.Error("Touch did not advance LastAccessedAt")
	}
}

func TestEvict_LRUBySize(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-10 * time.Hour)

	// Three 100-byte blobs with distinct access times, oldest first.
	oldest := putEntry(t, s, "registry.example/tools/a:1.0", bytes.Repeat([]byte("a"), 100), base)
	middle := putEntry(t, s, "registry.example/tools/b:1.0", bytes.Repeat([]byte("b"), 100), base.Add(time.Hour))
	newest := putEntry(t, s, "registry.example/tools/c:1.0", bytes.Repeat([]byte("c"), 100), base.Add(2*time.Hour))

	// Limit to 250 bytes: exactly the oldest must go.
	result, err := s.Evict(EvictPolicy{MaxTotalBytes: 250}, time.Now())
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if result.BlobsRemoved != 1 || result.BytesFreed != 100 {
		t.Errorf("result = %+v, want 1 blob / 100 bytes", result)
	}
	if s.HasBlob(oldest.Digest) {
		t.Error("oldest blob survived size eviction")
	}
	if !s.HasBlob(middle.Digest) || !s.HasBlob(newest.Digest) {
		t.Error("newer blobs were evicted")
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalBytes > 250 {
		t.Errorf("TotalBytes = %d after eviction, want <= 250", stats.TotalBytes)
	}
}

func TestEvict_ByAge(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	stale := putEntry(t, s, "registry.example/tools/old:1.0", []byte("stale"), now.Add(-72*time.Hour))
	fresh := putEntry(t, s, "registry.example/tools/new:1.0", []byte("fresh"), now.Add(-time.Hour))

	result, err := s.Evict(EvictPolicy{MaxAge: 24 * time.Hour}, now)
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if result.BlobsRemoved != 1 {
		t.Errorf("BlobsRemoved = %d, want 1", result.BlobsRemoved)
	}
	if s.HasBlob(stale.Digest) {
		t.Error("stale blob survived age eviction")
	}
	if !s.HasBlob(fresh.Digest) {
		t.Error("fresh blob was evicted")
	}
}

func TestClear_All(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	putEntry(t, s, "registry.example/tools/a:1.0", []byte("aa"), now)
	putEntry(t, s, "registry.example/tools/b:1.0", []byte("bb"), now)

	removed, err := s.Clear(0, now)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 2 {
		t.Errorf("Clear removed %d entries, want 2", removed)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 0 || stats.Blobs != 0 {
		t.Errorf("stats after clear = %+v, want empty", stats)
	}
}

func TestStats_SharedDigestCountedOnce(t *testing.T) {
	s := newTestStore(t)
	content := bytes.Repeat([]byte("x"), 64)
	now := time.Now()
	putEntry(t, s, "registry.example/tools/protoc:31.1", content, now)
	putEntry(t, s, "registry.example/tools/protoc:latest", content, now)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.Blobs != 1 {
		t.Errorf("Blobs = %d, want 1", stats.Blobs)
	}
	if stats.TotalBytes != 64 {
		t.Errorf("TotalBytes = %d, want 64", stats.TotalBytes)
	}
}
