// Package queue delivers each finished event into the write pipeline
// exactly once per process, and tracks in-progress events so the worker
// can compute an efficient sleep interval. Enqueue is safe from
// concurrent producers (startup enumeration and the client's push
// callback); draining is single-threaded.
package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/videre-project/MTGOBot/internal/composite"
	"github.com/videre-project/MTGOBot/internal/config"
	"github.com/videre-project/MTGOBot/internal/constants"
	"github.com/videre-project/MTGOBot/internal/domain"
	"github.com/videre-project/MTGOBot/internal/mtgo"
)

// Store is the persistence surface the queue needs.
type Store interface {
	EventExists(ctx context.Context, id int) (bool, error)
	AddEvent(ctx context.Context, composite *domain.EventComposite) error
}

// BuilderFactory constructs a fresh composite builder per queued event.
type BuilderFactory func() *composite.Builder

type item struct {
	id      int
	handle  mtgo.EventHandle
	builder *composite.Builder
}

type EventQueue struct {
	source   mtgo.EventSource
	store    Store
	builders BuilderFactory
	cfg      *config.Config
	logger   zerolog.Logger

	mu       sync.Mutex
	ready    []*item
	upcoming []*item
	members  map[int]struct{}
}

func NewEventQueue(source mtgo.EventSource, store Store, builders BuilderFactory, cfg *config.Config, logger zerolog.Logger) *EventQueue {
	return &EventQueue{
		source:   source,
		store:    store,
		builders: builders,
		cfg:      cfg,
		logger:   logger,
		members:  make(map[int]struct{}),
	}
}

// Observe classifies an incoming event and enqueues it at most once.
// Returns false, with no side effect, for anything that should not enter
// the pipeline: non-tournament handles, unparseable metadata, implausible
// start times, queue/draft event types, events racing the next
// maintenance reset, duplicates, and events already persisted.
func (q *EventQueue) Observe(ctx context.Context, handle mtgo.EventHandle) bool {
	if handle == nil {
		return false
	}

	id := handle.ID()
	description := handle.Description()
	log := q.logger.With().Int("event_id", id).Str("event", description).Logger()

	if _, err := domain.ParseFormat(description); err != nil {
		log.Debug().Err(err).Msg("rejecting event with unparseable format")
		return false
	}
	if _, err := domain.ParseKind(description); err != nil {
		log.Debug().Err(err).Msg("rejecting event with unparseable kind")
		return false
	}

	now := time.Now().UTC()
	start := handle.StartTime().UTC()
	if start.After(now.Add(constants.MaxFutureStart)) {
		log.Warn().Time("start", start).Msg("rejecting event with implausible start time")
		return false
	}

	if strings.Contains(description, "Queue") || strings.Contains(description, "Draft") {
		return false
	}

	if reset := q.cfg.NextReset(start); reset.Sub(start) < constants.ResetGuardWindow {
		log.Debug().Time("start", start).Time("reset", reset).Msg("rejecting event racing the maintenance reset")
		return false
	}

	q.mu.Lock()
	_, enqueued := q.members[id]
	q.mu.Unlock()
	if enqueued {
		return false
	}

	exists, err := q.store.EventExists(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("failed to check event existence")
		return false
	}
	if exists {
		return false
	}

	it := &item{id: id, handle: handle, builder: q.builders()}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.members[id]; dup {
		return false
	}
	q.members[id] = struct{}{}
	if handle.IsCompleted() {
		q.ready = append(q.ready, it)
		log.Info().Msg("finished event queued")
	} else {
		q.upcoming = append(q.upcoming, it)
		log.Info().Time("start", start).Msg("in-progress event queued for polling")
	}
	return true
}

// Promote moves upcoming events that have since finished into the ready
// queue, re-resolving handles that went stale while waiting.
func (q *EventQueue) Promote(ctx context.Context) {
	q.mu.Lock()
	pending := q.upcoming
	q.mu.Unlock()

	var stillUpcoming, nowReady []*item
	for _, it := range pending {
		if it.handle == nil || !it.handle.IsLive() {
			handle, err := q.source.GetEvent(ctx, it.id)
			if err != nil {
				q.logger.Warn().Err(err).Int("event_id", it.id).Msg("failed to refresh upcoming event handle")
				stillUpcoming = append(stillUpcoming, it)
				continue
			}
			it.handle = handle
		}
		if it.handle.IsCompleted() {
			nowReady = append(nowReady, it)
		} else {
			stillUpcoming = append(stillUpcoming, it)
		}
	}

	q.mu.Lock()
	q.upcoming = stillUpcoming
	q.ready = append(q.ready, nowReady...)
	q.mu.Unlock()

	if len(nowReady) > 0 {
		q.logger.Info().Int("count", len(nowReady)).Msg("upcoming events promoted to ready")
	}
}

// Drain processes the ready queue until empty, one event at a time, and
// reports whether anything was written. Failed items are logged and
// abandoned for this pass; they stay absent from the store and are
// rediscovered on the next process start.
func (q *EventQueue) Drain(ctx context.Context) bool {
	wrote := false
	for {
		it := q.pop()
		if it == nil {
			return wrote
		}

		start := time.Now()
		log := q.logger.With().Int("event_id", it.id).Logger()
		log.Info().Msg("processing event")

		if err := q.process(ctx, it); err != nil {
			log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("event abandoned for this pass")
			continue
		}

		log.Info().Dur("elapsed", time.Since(start)).Msg("event processed")
		wrote = true
	}
}

func (q *EventQueue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return nil
	}
	it := q.ready[0]
	q.ready = q.ready[1:]
	return it
}

// process runs the resolve/build loop for one item: a stale handle (or
// any previous iteration's failure) forces re-resolution, a
// handle-level resolution failure escalates to a session restart, and a
// successful partial build carries over to the next iteration. The
// validated composite is written once.
func (q *EventQueue) process(ctx context.Context, it *item) error {
	log := q.logger.With().Int("event_id", it.id).Logger()

	var lastErr error
	for attempt := 1; attempt <= constants.HandleResolveAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(constants.HandleResolveBackoff):
			}
		}

		if it.handle == nil || lastErr != nil || !it.handle.IsLive() {
			handle, err := q.source.GetEvent(ctx, it.id)
			if err != nil {
				lastErr = err
				log.Warn().Err(err).Int("attempt", attempt).Msg("handle resolution failed, restarting session")
				if rerr := q.source.RestartSession(ctx); rerr != nil {
					log.Error().Err(rerr).Msg("session restart failed")
				}
				continue
			}
			it.handle = handle
		}

		log.Debug().Int("attempt", attempt).Msg("building composite")
		if err := it.builder.Build(ctx, it.handle); err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("composite build failed")
			if errors.Is(err, domain.ErrInvalidStandings) {
				// A corrupted enumeration mid-read; the safest remedy is
				// a fresh session, not repeating the same read.
				if rerr := q.source.RestartSession(ctx); rerr != nil {
					log.Error().Err(rerr).Msg("session restart failed")
				}
			}
			continue
		}

		log.Debug().Msg("writing composite")
		if err := q.store.AddEvent(ctx, it.builder.Composite()); err != nil {
			return err
		}
		return nil
	}
	return lastErr
}

// Depths reports the current ready and upcoming queue sizes.
func (q *EventQueue) Depths() (ready, upcoming int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), len(q.upcoming)
}

// UpcomingStartTimes lists the start times of tracked in-progress
// events; the worker uses them to size its sleep interval.
func (q *EventQueue) UpcomingStartTimes() []time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	times := make([]time.Time, 0, len(q.upcoming))
	for _, it := range q.upcoming {
		if it.handle != nil {
			times = append(times, it.handle.StartTime())
		}
	}
	return times
}
