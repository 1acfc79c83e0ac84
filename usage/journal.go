// Package usage records and reads team usage events.
//
// Events land in two places: a local length-prefixed msgpack journal,
// partitioned by team and day, which serves the analysis read path; and
// an optional archiver that mirrors events into a durable dataset.
package usage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/depot/types"
)

// Frame size constants for journal records.
const (
	// MaxFrameSize is the maximum frame size (1 MiB), including length prefix.
	MaxFrameSize = 1 << 20
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies journal frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a journal frame error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// EncodeFrame encodes an event as a length-prefixed msgpack frame.
func EncodeFrame(event types.UsageEvent) ([]byte, error) {
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "encode usage event", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)
	return frame, nil
}

// FrameDecoder decodes length-prefixed msgpack usage events from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadEvent reads one event from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit
//   - *FrameError with Kind=FrameErrorDecode: msgpack decoding failed
func (d *FrameDecoder) ReadEvent() (types.UsageEvent, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return types.UsageEvent{}, io.EOF
		}
		return types.UsageEvent{}, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return types.UsageEvent{}, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return types.UsageEvent{}, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	var event types.UsageEvent
	if err := msgpack.Unmarshal(payload, &event); err != nil {
		return types.UsageEvent{}, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode usage event",
			Err:  err,
		}
	}
	return event, nil
}

// dayLayout names journal segment files by UTC day.
const dayLayout = "2006-01-02"

// Journal is an append-only usage event log, one msgpack segment file
// per team per UTC day.
type Journal struct {
	root string
}

// OpenJournal opens a journal rooted at dir, creating it when absent.
func OpenJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{root: dir}, nil
}

func (j *Journal) segmentPath(team string, day time.Time) string {
	return filepath.Join(j.root, team, day.UTC().Format(dayLayout)+".mpk")
}

// Append writes an event to its team/day segment.
func (j *Journal) Append(event types.UsageEvent) error {
	frame, err := EncodeFrame(event)
	if err != nil {
		return err
	}

	path := j.segmentPath(event.Team, event.Timestamp)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("journal segment dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal segment: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(frame); err != nil {
		return fmt.Errorf("append journal segment: %w", err)
	}
	return nil
}

// Events returns a team's events with timestamps in [since, until),
// ordered by timestamp. A truncated trailing frame ends that segment's
// read without failing the whole query.
func (j *Journal) Events(team string, since, until time.Time) ([]types.UsageEvent, error) {
	teamDir := filepath.Join(j.root, team)
	entries, err := os.ReadDir(teamDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}

	var events []types.UsageEvent
	for _, entry := range entries {
		day, ok := segmentDay(entry.Name())
		if !ok {
			continue
		}
		// Whole-day bounds check before opening the segment.
		if day.Add(24*time.Hour).Before(since) || !day.Before(until) {
			continue
		}

		segEvents, err := j.readSegment(filepath.Join(teamDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		for _, ev := range segEvents {
			if ev.Timestamp.Before(since) || !ev.Timestamp.Before(until) {
				continue
			}
			events = append(events, ev)
		}
	}

	sort.Slice(events, func(a, b int) bool {
		return events[a].Timestamp.Before(events[b].Timestamp)
	})
	return events, nil
}

func (j *Journal) readSegment(path string) ([]types.UsageEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal segment: %w", err)
	}
	defer f.Close()

	var events []types.UsageEvent
	dec := NewFrameDecoder(f)
	for {
		ev, err := dec.ReadEvent()
		if err == io.EOF {
			return events, nil
		}
		var fe *FrameError
		if errors.As(err, &fe) && fe.Kind == FrameErrorPartial {
			// Torn tail write from a crashed process. Keep what decoded.
			return events, nil
		}
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
}

// Prune removes segment files whose day is entirely before cutoff.
// Returns the number of segments removed.
func (j *Journal) Prune(cutoff time.Time) (int, error) {
	teams, err := os.ReadDir(j.root)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}

	removed := 0
	for _, teamEntry := range teams {
		if !teamEntry.IsDir() {
			continue
		}
		teamDir := filepath.Join(j.root, teamEntry.Name())
		segments, err := os.ReadDir(teamDir)
		if err != nil {
			return removed, fmt.Errorf("prune journal: %w", err)
		}
		for _, seg := range segments {
			day, ok := segmentDay(seg.Name())
			if !ok {
				continue
			}
			if day.Add(24 * time.Hour).After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(teamDir, seg.Name())); err != nil {
				return removed, fmt.Errorf("prune journal segment: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

// segmentDay parses a segment filename back to its UTC day.
func segmentDay(name string) (time.Time, bool) {
	base, ok := strings.CutSuffix(name, ".mpk")
	if !ok {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dayLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}
