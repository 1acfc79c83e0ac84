// Package team analyzes usage patterns for team-scoped shared caches.
//
// The coordinator records resolutions as usage events and derives
// co-occurrence pairs, bundle proposals and cache warm schedules from
// the recorded history. All statistics are recomputed from events on
// demand; nothing derived is stored.
package team

import (
	"fmt"
	"sort"
	"time"

	"github.com/justapithecus/depot/log"
	"github.com/justapithecus/depot/types"
	"github.com/justapithecus/depot/usage"
)

// EventSource provides the usage history the analyses read.
// *usage.Journal satisfies it.
type EventSource interface {
	Events(team string, since, until time.Time) ([]types.UsageEvent, error)
}

var _ EventSource = (*usage.Journal)(nil)

// Coordinator owns one team's usage recording and analysis.
type Coordinator struct {
	config     types.TeamConfig
	thresholds types.Thresholds
	recorder   *usage.Recorder
	source     EventSource
	logger     *log.Logger

	now func() time.Time
}

// NewCoordinator creates a coordinator for a team. The recorder may be
// shared across teams; the source is the analysis read path.
func NewCoordinator(cfg types.TeamConfig, recorder *usage.Recorder, source EventSource, logger *log.Logger) *Coordinator {
	return &Coordinator{
		config:     cfg,
		thresholds: types.ThresholdsFor(cfg.CacheStrategy),
		recorder:   recorder,
		source:     source,
		logger:     logger.WithTeam(cfg.TeamName),
		now:        time.Now,
	}
}

// Thresholds returns the team's strategy-derived tunables.
func (c *Coordinator) Thresholds() types.Thresholds {
	return c.thresholds
}

// Record enqueues a usage event for this team. Fire-and-forget; never
// blocks the resolution that triggered it.
func (c *Coordinator) Record(event types.UsageEvent) {
	event.Team = c.config.TeamName
	c.recorder.Record(event)
}

// CoOccurrence computes co-occurrence pairs over the trailing window.
// Two references co-occur when the same actor used both within the
// strategy's pairing window. Score is the pair's joint count divided by
// the larger of either reference's total count, so it is symmetric and
// bounded to [0,1].
func (c *Coordinator) CoOccurrence(window time.Duration) ([]types.CoOccurrencePair, error) {
	until := c.now().UTC()
	events, err := c.source.Events(c.config.TeamName, until.Add(-window), until)
	if err != nil {
		return nil, fmt.Errorf("co-occurrence analysis: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	totals := make(map[string]int)
	refs := make(map[string]types.ArtifactReference)
	for _, ev := range events {
		key := ev.Reference.Key()
		totals[key]++
		refs[key] = ev.Reference
	}

	byActor := make(map[string][]types.UsageEvent)
	for _, ev := range events {
		byActor[ev.Actor] = append(byActor[ev.Actor], ev)
	}

	joint := make(map[[2]string]int)
	pairWindow := c.thresholds.CoOccurrenceWindow
	for _, actorEvents := range byActor {
		sort.Slice(actorEvents, func(a, b int) bool {
			return actorEvents[a].Timestamp.Before(actorEvents[b].Timestamp)
		})
		for i := 0; i < len(actorEvents); i++ {
			for j := i + 1; j < len(actorEvents); j++ {
				if actorEvents[j].Timestamp.Sub(actorEvents[i].Timestamp) > pairWindow {
					break
				}
				a, b := actorEvents[i].Reference.Key(), actorEvents[j].Reference.Key()
				if a == b {
					continue
				}
				joint[pairKey(a, b)]++
			}
		}
	}

	pairs := make([]types.CoOccurrencePair, 0, len(joint))
	for key, count := range joint {
		denom := totals[key[0]]
		if totals[key[1]] > denom {
			denom = totals[key[1]]
		}
		score := float64(count) / float64(denom)
		if score > 1 {
			score = 1
		}
		pairs = append(pairs, types.CoOccurrencePair{
			ReferenceA: refs[key[0]],
			ReferenceB: refs[key[1]],
			Score:      score,
			UsageCount: count,
		})
	}

	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a].Score != pairs[b].Score {
			return pairs[a].Score > pairs[b].Score
		}
		return pairs[a].UsageCount > pairs[b].UsageCount
	})
	return pairs, nil
}

// pairKey orders two reference keys so (a,b) and (b,a) share a counter.
func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// ProposeBundle returns a candidate bundle when at least one pair
// clears the strategy's score and usage thresholds. Members are the
// union of all qualifying pairs. Returns nil when nothing qualifies;
// the caller decides whether to materialize the proposal.
func (c *Coordinator) ProposeBundle(window time.Duration) (*types.Bundle, error) {
	pairs, err := c.CoOccurrence(window)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var members []types.ArtifactReference
	for _, pair := range pairs {
		if pair.Score < c.thresholds.BundleScoreMin || pair.UsageCount < c.thresholds.BundleUsageMin {
			continue
		}
		for _, ref := range []types.ArtifactReference{pair.ReferenceA, pair.ReferenceB} {
			if !seen[ref.Key()] {
				seen[ref.Key()] = true
				members = append(members, ref)
			}
		}
	}
	if len(members) == 0 {
		return nil, nil
	}

	sort.Slice(members, func(a, b int) bool {
		return members[a].Key() < members[b].Key()
	})

	c.logger.Info("bundle proposed", map[string]any{
		"members": len(members),
	})
	return &types.Bundle{
		Name:        fmt.Sprintf("%s-bundle-%s", c.config.TeamName, c.now().UTC().Format("20060102")),
		Members:     members,
		Description: fmt.Sprintf("co-occurring artifacts for team %s", c.config.TeamName),
		CreatedAt:   c.now().UTC(),
	}, nil
}

// WarmSchedule buckets the trailing window's events by hour of day,
// ranks hours by volume, and emits a prefetch schedule for the top
// hours using each hour's most requested references.
func (c *Coordinator) WarmSchedule(window time.Duration) ([]types.WarmSlot, error) {
	until := c.now().UTC()
	events, err := c.source.Events(c.config.TeamName, until.Add(-window), until)
	if err != nil {
		return nil, fmt.Errorf("warm schedule: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	type hourBucket struct {
		hour   int
		volume int
		counts map[string]int
		refs   map[string]types.ArtifactReference
	}
	buckets := make(map[int]*hourBucket)
	for _, ev := range events {
		h := ev.Timestamp.UTC().Hour()
		b, ok := buckets[h]
		if !ok {
			b = &hourBucket{
				hour:   h,
				counts: make(map[string]int),
				refs:   make(map[string]types.ArtifactReference),
			}
			buckets[h] = b
		}
		b.volume++
		key := ev.Reference.Key()
		b.counts[key]++
		b.refs[key] = ev.Reference
	}

	ranked := make([]*hourBucket, 0, len(buckets))
	for _, b := range buckets {
		ranked = append(ranked, b)
	}
	sort.Slice(ranked, func(a, b int) bool {
		if ranked[a].volume != ranked[b].volume {
			return ranked[a].volume > ranked[b].volume
		}
		return ranked[a].hour < ranked[b].hour
	})
	if len(ranked) > c.thresholds.WarmSlots {
		ranked = ranked[:c.thresholds.WarmSlots]
	}

	slots := make([]types.WarmSlot, 0, len(ranked))
	for _, b := range ranked {
		keys := make([]string, 0, len(b.counts))
		for key := range b.counts {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(x, y int) bool {
			if b.counts[keys[x]] != b.counts[keys[y]] {
				return b.counts[keys[x]] > b.counts[keys[y]]
			}
			return keys[x] < keys[y]
		})
		if len(keys) > c.thresholds.PreloadCount {
			keys = keys[:c.thresholds.PreloadCount]
		}

		slot := types.WarmSlot{Hour: b.hour}
		for _, key := range keys {
			slot.References = append(slot.References, b.refs[key])
		}
		slots = append(slots, slot)
	}

	sort.Slice(slots, func(a, b int) bool {
		return slots[a].Hour < slots[b].Hour
	})
	return slots, nil
}
