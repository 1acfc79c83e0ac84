package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/justapithecus/depot/types"
)

// index is the on-disk metadata index. Each CacheEntry is one JSON record
// keyed by reference; a secondary record per digest lists the reference
// keys that resolve to it, since the same digest may be reachable via
// multiple references (a floating tag and a pinned version).
//
// Record writes use temp-file-plus-rename. The mutex serializes
// read-modify-write of digest records within this process; blob content
// itself needs no locking because paths are derived from content hashes.
type index struct {
	root string
	mu   sync.Mutex
}

// digestRecord is the by-digest secondary index record.
type digestRecord struct {
	Digest digest.Digest `json:"digest"`
	Refs   []string      `json:"refs"`
}

func newIndex(root string) *index {
	return &index{root: root}
}

// refPath returns the entry record path for a reference key.
func (ix *index) refPath(key string) string {
	return filepath.Join(ix.root, "index", "refs", url.QueryEscape(key)+".json")
}

// digestPath returns the secondary record path for a digest.
func (ix *index) digestPath(d digest.Digest) string {
	enc := d.Encoded()
	return filepath.Join(ix.root, "index", "digests", string(d.Algorithm()), enc[:2], enc+".json")
}

// writeRecord marshals v and writes it atomically.
func (ix *index) writeRecord(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal index record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrapFSError(err, "index", path)
	}

	tmp, err := os.CreateTemp(filepath.Join(ix.root, "tmp"), "idx-*")
	if err != nil {
		return wrapFSError(err, "index", path)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return wrapFSError(err, "index", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return wrapFSError(err, "index", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return wrapFSError(err, "index", path)
	}
	return nil
}

// putEntry records an entry under its reference key and links the
// reference into the digest's secondary record.
func (ix *index) putEntry(entry types.CacheEntry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key := entry.Reference.Key()

	// If the reference previously resolved to a different digest
	// (floating tag moved), unlink it from the old digest record first.
	if prev, err := ix.readEntry(key); err == nil && prev.Digest != entry.Digest {
		if err := ix.unlinkRef(prev.Digest, key); err != nil {
			return err
		}
	}

	if err := ix.writeRecord(ix.refPath(key), entry); err != nil {
		return err
	}
	return ix.linkRef(entry.Digest, key)
}

// linkRef adds a reference key to a digest's secondary record.
func (ix *index) linkRef(d digest.Digest, key string) error {
	rec, err := ix.readDigestRecord(d)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	rec.Digest = d

	for _, r := range rec.Refs {
		if r == key {
			return nil
		}
	}
	rec.Refs = append(rec.Refs, key)
	sort.Strings(rec.Refs)

	return ix.writeRecord(ix.digestPath(d), rec)
}

// unlinkRef removes a reference key from a digest's secondary record,
// deleting the record when it empties.
func (ix *index) unlinkRef(d digest.Digest, key string) error {
	rec, err := ix.readDigestRecord(d)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	kept := rec.Refs[:0]
	for _, r := range rec.Refs {
		if r != key {
			kept = append(kept, r)
		}
	}
	rec.Refs = kept

	if len(rec.Refs) == 0 {
		if err := os.Remove(ix.digestPath(d)); err != nil && !os.IsNotExist(err) {
			return wrapFSError(err, "index", ix.digestPath(d))
		}
		return nil
	}
	return ix.writeRecord(ix.digestPath(d), rec)
}

// readEntry loads one entry record by reference key.
func (ix *index) readEntry(key string) (types.CacheEntry, error) {
	var entry types.CacheEntry
	data, err := os.ReadFile(ix.refPath(key))
	if err != nil {
		return entry, wrapFSError(err, "index", ix.refPath(key))
	}
	if err := json.Unmarshal(data, &entry); err != nil {
		return entry, newStoreError(ErrCorrupted, "index", ix.refPath(key), err)
	}
	return entry, nil
}

// readDigestRecord loads a digest's secondary record.
func (ix *index) readDigestRecord(d digest.Digest) (digestRecord, error) {
	var rec digestRecord
	data, err := os.ReadFile(ix.digestPath(d))
	if err != nil {
		return rec, wrapFSError(err, "index", ix.digestPath(d))
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, newStoreError(ErrCorrupted, "index", ix.digestPath(d), err)
	}
	return rec, nil
}

// byReference returns the entry for a reference.
func (ix *index) byReference(ref types.ArtifactReference) (types.CacheEntry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.readEntry(ref.Key())
}

// byDigest returns all entries whose references resolve to a digest.
func (ix *index) byDigest(d digest.Digest) ([]types.CacheEntry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, err := ix.readDigestRecord(d)
	if err != nil {
		return nil, err
	}

	entries := make([]types.CacheEntry, 0, len(rec.Refs))
	for _, key := range rec.Refs {
		entry, err := ix.readEntry(key)
		if err != nil {
			continue // stale link, skipped
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// touch updates LastAccessedAt for a reference.
func (ix *index) touch(ref types.ArtifactReference, now time.Time) (types.CacheEntry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	entry, err := ix.readEntry(ref.Key())
	if err != nil {
		return entry, err
	}
	entry.LastAccessedAt = now
	if err := ix.writeRecord(ix.refPath(ref.Key()), entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// removeRef deletes one reference record and unlinks it from its digest.
func (ix *index) removeRef(ref types.ArtifactReference) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key := ref.Key()
	entry, err := ix.readEntry(key)
	if err != nil {
		return err
	}
	if err := os.Remove(ix.refPath(key)); err != nil && !os.IsNotExist(err) {
		return wrapFSError(err, "index", ix.refPath(key))
	}
	return ix.unlinkRef(entry.Digest, key)
}

// removeDigest deletes a digest's secondary record and every reference
// record pointing at it.
func (ix *index) removeDigest(d digest.Digest) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, err := ix.readDigestRecord(d)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	for _, key := range rec.Refs {
		if err := os.Remove(ix.refPath(key)); err != nil && !os.IsNotExist(err) {
			return wrapFSError(err, "index", ix.refPath(key))
		}
	}
	if err := os.Remove(ix.digestPath(d)); err != nil && !os.IsNotExist(err) {
		return wrapFSError(err, "index", ix.digestPath(d))
	}
	return nil
}

// entries walks the refs directory and loads every entry record.
func (ix *index) entries() ([]types.CacheEntry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	dir := filepath.Join(ix.root, "index", "refs")
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapFSError(err, "index", dir)
	}

	entries := make([]types.CacheEntry, 0, len(items))
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".json") {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(item.Name(), ".json"))
		if err != nil {
			continue
		}
		entry, err := ix.readEntry(key)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
