package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/justapithecus/depot/iox"
	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
)

// Disk layout under the cache root:
//
//	blobs/<algo>/<prefix2>/<encoded>   blob content, content-addressed
//	index/refs/<escaped-ref>.json      one CacheEntry per reference
//	index/digests/<algo>/<prefix2>/<encoded>.json  reference keys per digest
//	tmp/                               staging area for atomic writes
//
// The two-level fan-out on the digest prefix bounds per-directory entry
// counts. All writes go through a temp file plus atomic rename so readers
// never observe a partially written blob.

// Store is the content-addressed artifact cache. It owns all cache files;
// no other component mutates them directly. Safe for concurrent use.
type Store struct {
	root   string
	logger *log.Logger

	index *index

	// pinMu guards pins. A pinned digest has open readers and is never
	// evicted mid-read.
	pinMu sync.Mutex
	pins  map[digest.Digest]int
}

// Open initializes a store rooted at the given directory, creating the
// layout if needed.
func Open(root string, logger *log.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	for _, dir := range []string{
		filepath.Join(abs, "blobs"),
		filepath.Join(abs, "index", "refs"),
		filepath.Join(abs, "index", "digests"),
		filepath.Join(abs, "tmp"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrapFSError(err, "init", dir)
		}
	}

	return &Store{
		root:   abs,
		logger: logger,
		index:  newIndex(abs),
		pins:   make(map[digest.Digest]int),
	}, nil
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

// blobPath returns the on-disk path for a digest.
func (s *Store) blobPath(d digest.Digest) string {
	enc := d.Encoded()
	return filepath.Join(s.root, "blobs", string(d.Algorithm()), enc[:2], enc)
}

// BlobPath returns the on-disk path for a digest. The path is only
// guaranteed to exist after a successful Put or verified read.
func (s *Store) BlobPath(d digest.Digest) string {
	return s.blobPath(d)
}

// HasBlob reports whether a blob exists on disk.
func (s *Store) HasBlob(d digest.Digest) bool {
	_, err := os.Stat(s.blobPath(d))
	return err == nil
}

// Put streams content into the store, computing its digest along the way.
// Writing bytes that are already present is a no-op beyond refreshing the
// blob's modification time. Returns the digest and size of the content.
func (s *Store) Put(r io.Reader) (digest.Digest, int64, error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "put-*")
	if err != nil {
		return "", 0, wrapFSError(err, "put", s.root)
	}
	defer iox.DiscardRemove(tmp.Name())

	digester := digest.Canonical.Digester()
	size, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), r)
	if err != nil {
		iox.DiscardClose(tmp)
		return "", 0, wrapFSError(err, "put", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return "", 0, wrapFSError(err, "put", tmp.Name())
	}

	d := digester.Digest()
	dst := s.blobPath(d)

	if _, err := os.Stat(dst); err == nil {
		// Idempotent put: blob already present, refresh mtime only.
		now := time.Now()
		_ = os.Chtimes(dst, now, now)
		return d, size, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", 0, wrapFSError(err, "put", dst)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", 0, wrapFSError(err, "put", dst)
	}

	return d, size, nil
}

// PutBytes is a convenience wrapper over Put for in-memory content.
func (s *Store) PutBytes(p []byte) (digest.Digest, error) {
	d, _, err := s.Put(bytes.NewReader(p))
	return d, err
}

// Verify reports whether data matches the given digest.
func (s *Store) Verify(d digest.Digest, data []byte) bool {
	return d.Algorithm().FromBytes(data) == d
}

// ReadBlob reads a blob fully and verifies its digest. A mismatch means
// on-disk corruption: the store evicts the entry (self-heal) and returns
// ErrCorrupted so the caller can re-resolve.
func (s *Store) ReadBlob(d digest.Digest) ([]byte, error) {
	path := s.blobPath(d)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapFSError(err, "read", path)
	}

	if !s.Verify(d, data) {
		s.selfHeal(d)
		return nil, newStoreError(ErrCorrupted, "read", path,
			fmt.Errorf("digest mismatch: blob no longer hashes to %s", d))
	}

	return data, nil
}

// OpenBlob opens a blob for streaming reads. The digest is pinned against
// eviction until the returned reader is closed. The reader verifies
// content incrementally and surfaces ErrCorrupted in place of EOF when
// the bytes read do not hash to the expected digest.
func (s *Store) OpenBlob(d digest.Digest) (io.ReadCloser, error) {
	path := s.blobPath(d)
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapFSError(err, "open", path)
	}

	s.pin(d)
	return &blobReader{
		store:    s,
		digest:   d,
		file:     f,
		verifier: d.Verifier(),
	}, nil
}

// RemoveBlob deletes a blob and all index records that point at it.
func (s *Store) RemoveBlob(d digest.Digest) error {
	if err := s.index.removeDigest(d); err != nil {
		return err
	}
	path := s.blobPath(d)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return wrapFSError(err, "remove", path)
	}
	return nil
}

// selfHeal drops a corrupted blob and its index records, logging a
// warning rather than failing hard.
func (s *Store) selfHeal(d digest.Digest) {
	if err := s.RemoveBlob(d); err != nil {
		s.logger.Error("corrupted blob eviction failed", map[string]any{
			"digest": d.String(),
			"error":  err.Error(),
		})
		return
	}
	s.logger.Warn("evicted corrupted cache entry", map[string]any{
		"digest": d.String(),
	})
}

// pin marks a digest as having an open reader.
func (s *Store) pin(d digest.Digest) {
	s.pinMu.Lock()
	s.pins[d]++
	s.pinMu.Unlock()
}

// unpin releases one open-reader reference.
func (s *Store) unpin(d digest.Digest) {
	s.pinMu.Lock()
	if s.pins[d] > 1 {
		s.pins[d]--
	} else {
		delete(s.pins, d)
	}
	s.pinMu.Unlock()
}

// pinned reports whether a digest currently has open readers.
func (s *Store) pinned(d digest.Digest) bool {
	s.pinMu.Lock()
	defer s.pinMu.Unlock()
	return s.pins[d] > 0
}

// Stats summarizes cache contents.
type Stats struct {
	Entries    int   `json:"entries"`
	Blobs      int   `json:"blobs"`
	TotalBytes int64 `json:"total_bytes"`
}

// Stats walks the index and reports entry count, distinct blob count and
// total blob size. Blob sizes are counted once per digest even when
// multiple references share it.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.index.entries()
	if err != nil {
		return Stats{}, err
	}

	seen := make(map[digest.Digest]int64)
	for _, e := range entries {
		seen[e.Digest] = e.SizeBytes
	}

	var total int64
	for _, size := range seen {
		total += size
	}

	return Stats{
		Entries:    len(entries),
		Blobs:      len(seen),
		TotalBytes: total,
	}, nil
}

// RecordEntry creates or replaces the index entry for a reference.
func (s *Store) RecordEntry(entry types.CacheEntry) error {
	return s.index.putEntry(entry)
}

// EntryByReference returns the index entry for a reference.
func (s *Store) EntryByReference(ref types.ArtifactReference) (types.CacheEntry, error) {
	return s.index.byReference(ref)
}

// EntriesByDigest returns all index entries that resolve to a digest.
func (s *Store) EntriesByDigest(d digest.Digest) ([]types.CacheEntry, error) {
	return s.index.byDigest(d)
}

// Touch updates a reference's last-accessed time and returns the updated
// entry. Drives LRU eviction ordering.
func (s *Store) Touch(ref types.ArtifactReference, now time.Time) (types.CacheEntry, error) {
	return s.index.touch(ref, now)
}

// Entries lists all index entries.
func (s *Store) Entries() ([]types.CacheEntry, error) {
	return s.index.entries()
}

// blobReader streams a blob while hashing it, pinning the digest against
// eviction for the lifetime of the reader.
type blobReader struct {
	store    *Store
	digest   digest.Digest
	file     *os.File
	verifier digest.Verifier
	done     bool
}

func (r *blobReader) Read(p []byte) (int, error) {
	n, err := r.file.Read(p)
	if n > 0 {
		// Verifier writes never fail.
		_, _ = r.verifier.Write(p[:n])
	}
	if err == io.EOF && !r.done {
		r.done = true
		if !r.verifier.Verified() {
			r.store.selfHeal(r.digest)
			return n, newStoreError(ErrCorrupted, "read", r.file.Name(),
				fmt.Errorf("digest mismatch: blob no longer hashes to %s", r.digest))
		}
	}
	return n, err
}

func (r *blobReader) Close() error {
	r.store.unpin(r.digest)
	return r.file.Close()
}
