package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/videre-project/MTGOBot/internal/config"
	"github.com/videre-project/MTGOBot/internal/constants"
	"github.com/videre-project/MTGOBot/internal/mtgo"
	"github.com/videre-project/MTGOBot/internal/queue"
)

// ExitReason distinguishes the worker's two ways of returning so the
// supervising process can tell a scheduled restart from a shutdown.
type ExitReason int

const (
	CleanShutdown ExitReason = iota
	RestartRequested
)

func (r ExitReason) String() string {
	if r == RestartRequested {
		return "restart requested"
	}
	return "clean shutdown"
}

// Worker is the single long-lived ingestion loop: discover events, drain
// the queue, trigger the classification backfill after successful
// writes, and sleep until the next event or the maintenance reset.
type Worker struct {
	source  mtgo.EventSource
	queue   *queue.EventQueue
	matcher *ArchetypeMatcher
	cfg     *config.Config
	logger  zerolog.Logger

	mu           sync.Mutex
	lastDrain    time.Time
	lastBackfill time.Time
}

func NewWorker(source mtgo.EventSource, q *queue.EventQueue, matcher *ArchetypeMatcher, cfg *config.Config, logger zerolog.Logger) *Worker {
	return &Worker{source: source, queue: q, matcher: matcher, cfg: cfg, logger: logger}
}

// Run drives the loop until the context is cancelled (clean shutdown) or
// the maintenance reset boundary is crossed (restart requested). The
// reset is a soft deadline checked at loop granularity, never
// preemptive.
func (w *Worker) Run(ctx context.Context) (ExitReason, error) {
	nextReset := w.cfg.NextReset(time.Now().UTC())
	w.logger.Info().Time("next_reset", nextReset).Msg("worker started")

	for {
		if time.Now().UTC().After(nextReset) {
			w.logger.Info().Msg("maintenance reset boundary reached")
			return RestartRequested, nil
		}

		log := w.logger.With().Str("pass_id", uuid.NewString()).Logger()
		if err := w.pass(ctx, log); err != nil {
			if ctx.Err() != nil {
				return CleanShutdown, nil
			}
			log.Error().Err(err).Msg("ingestion pass failed")
		}

		sleep := w.sleepInterval(time.Now().UTC(), nextReset)
		log.Debug().Dur("sleep", sleep).Msg("pass complete")

		select {
		case <-ctx.Done():
			return CleanShutdown, nil
		case <-time.After(sleep):
		}
	}
}

func (w *Worker) pass(ctx context.Context, log zerolog.Logger) error {
	start := time.Now()

	handles, err := w.source.ListEvents(ctx)
	if err != nil {
		return err
	}

	observed := 0
	for _, h := range handles {
		if w.queue.Observe(ctx, h) {
			observed++
		}
	}
	log.Info().Int("listed", len(handles)).Int("observed", observed).Msg("events discovered")

	w.queue.Promote(ctx)

	wrote := w.queue.Drain(ctx)
	w.mu.Lock()
	w.lastDrain = time.Now()
	w.mu.Unlock()

	if wrote {
		// New decks may now be labelable on the secondary site.
		if err := w.matcher.Backfill(ctx); err != nil {
			log.Warn().Err(err).Msg("archetype backfill failed")
		}
		w.mu.Lock()
		w.lastBackfill = time.Now()
		w.mu.Unlock()
	}

	log.Info().Dur("elapsed", time.Since(start)).Bool("wrote", wrote).Msg("ingestion pass finished")
	return nil
}

// sleepInterval sizes the idle period from whichever comes first: the
// earliest tracked in-progress event's expected finish poll, the default
// poll interval, or the maintenance reset.
func (w *Worker) sleepInterval(now, nextReset time.Time) time.Duration {
	sleep := constants.WorkerPollInterval

	for _, start := range w.queue.UpcomingStartTimes() {
		if until := start.Sub(now); until > 0 && until < sleep {
			sleep = until
		}
	}
	if until := nextReset.Sub(now); until > 0 && until < sleep {
		sleep = until
	}
	if sleep < constants.WorkerMinSleep {
		sleep = constants.WorkerMinSleep
	}
	return sleep
}

// Snapshot reports loop progress for the status server.
func (w *Worker) Snapshot() (lastDrain, lastBackfill time.Time, ready, upcoming int) {
	w.mu.Lock()
	lastDrain, lastBackfill = w.lastDrain, w.lastBackfill
	w.mu.Unlock()
	ready, upcoming = w.queue.Depths()
	return lastDrain, lastBackfill, ready, upcoming
}
