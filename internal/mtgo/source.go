// Package mtgo defines the boundary contract for the live Magic Online
// client. The client itself (login, session, screen scraping) lives
// outside this repository; the pipeline consumes it through these
// interfaces and tests substitute fakes.
package mtgo

import (
	"context"
	"errors"
	"time"
)

// ErrStaleHandle is returned by implementations when a cached event
// handle no longer tracks the client's live object graph.
var ErrStaleHandle = errors.New("stale event handle")

// EventSource is the live client's event feed.
type EventSource interface {
	// ListEvents enumerates every event the client currently knows of,
	// regardless of lifecycle state.
	ListEvents(ctx context.Context) ([]EventHandle, error)

	// GetEvent re-resolves a fresh handle for one event id.
	GetEvent(ctx context.Context, id int) (EventHandle, error)

	// RestartSession tears down and re-establishes the client session.
	// The escalation path when handle resolution keeps failing.
	RestartSession(ctx context.Context) error
}

// EventHandle is one tournament-shaped object in the client. Anything
// not satisfying this capability set is rejected at the boundary.
type EventHandle interface {
	ID() int
	StartTime() time.Time
	IsCompleted() bool

	// IsLive probes whether the handle still tracks the client's state;
	// a false result means the handle must be re-resolved before use.
	IsLive() bool

	// Description is the event's free-text display name, the input to
	// format/kind derivation.
	Description() string

	Rounds() int
	Players(ctx context.Context) ([]PlayerRecord, error)
	Standings(ctx context.Context) ([]StandingRecord, error)
}

type PlayerRecord struct {
	ID   int
	Name string
}

// StandingRecord is one final-standings row as the client reports it.
// The win percentages are the client's display strings ("NN.NN%").
type StandingRecord struct {
	Rank            int
	Player          PlayerRecord
	Points          int
	OMWP            string
	GWP             string
	OGWP            string
	PreviousMatches []MatchHandle
}

// MatchHandle defers the expensive per-match detail read; Resolve is the
// I/O the composite builder retries.
type MatchHandle interface {
	Resolve(ctx context.Context) (MatchRecord, error)
}

// MatchRecord is the client's view of one round result. Winners and
// losers carry full player records, not bare ids: anonymized players
// share one sentinel id and can only be told apart by name.
type MatchRecord struct {
	ID          int
	Round       int
	Players     []PlayerRecord
	Winners     []PlayerRecord
	Losers      []PlayerRecord
	HasBye      bool
	GameRecords []GameRecord
}

// GameRecord reports one game's winners; a player's game result is
// derived from membership in Winners.
type GameRecord struct {
	ID      int
	Winners []PlayerRecord
}
