package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
)

const (
	// recorderBuffer bounds queued events before Record starts dropping.
	recorderBuffer = 1024
	// flushBatchSize triggers an archive flush before the interval elapses.
	flushBatchSize = 64
	// flushInterval bounds how long a buffered event waits for archival.
	flushInterval = 5 * time.Second
)

// Recorder accepts usage events without blocking the resolution path.
// Events are journaled immediately by a background worker and mirrored
// to the archiver in batches. A full buffer drops the event with a
// warning rather than stalling a resolution.
type Recorder struct {
	journal  *Journal
	archiver *Archiver
	logger   *log.Logger

	ch   chan types.UsageEvent
	done chan struct{}

	closeOnce sync.Once
}

// NewRecorder starts a recorder over a journal. archiver may be nil
// when no durable archive is configured.
func NewRecorder(journal *Journal, archiver *Archiver, logger *log.Logger) *Recorder {
	r := &Recorder{
		journal:  journal,
		archiver: archiver,
		logger:   logger,
		ch:       make(chan types.UsageEvent, recorderBuffer),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues a usage event. Missing event IDs and timestamps are
// filled in. Never blocks.
func (r *Recorder) Record(event types.UsageEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case r.ch <- event:
	default:
		r.logger.Warn("usage event dropped, recorder buffer full", map[string]any{
			"team":      event.Team,
			"reference": event.Reference.String(),
		})
	}
}

// Close stops the recorder after draining queued events.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.ch)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []types.UsageEvent

	flush := func() {
		if r.archiver == nil || len(pending) == 0 {
			pending = pending[:0]
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := r.archiver.Archive(ctx, pending); err != nil {
			r.logger.Warn("usage archive flush failed", map[string]any{
				"events": len(pending),
				"error":  err.Error(),
			})
		}
		cancel()
		pending = pending[:0]
	}

	for {
		select {
		case event, ok := <-r.ch:
			if !ok {
				flush()
				return
			}
			if err := r.journal.Append(event); err != nil {
				r.logger.Warn("usage journal append failed", map[string]any{
					"team":  event.Team,
					"error": err.Error(),
				})
			}
			pending = append(pending, event)
			if len(pending) >= flushBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
