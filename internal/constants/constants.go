package constants

import "time"

const (
	// HandleResolveAttempts bounds re-resolution of a stale event handle
	// before the item is abandoned for this pass.
	HandleResolveAttempts = 5
	HandleResolveBackoff  = 10 * time.Second

	// MatchHistoryAttempts bounds the per-match expansion of a single
	// standing's previous matches.
	MatchHistoryAttempts = 5
	MatchHistoryBackoff  = 2 * time.Second

	// StandingTimeout is the hard budget for expanding one standing's
	// match history. Exceeding it fails the whole build attempt.
	StandingTimeout = 5 * time.Minute
)

const (
	// MaxFutureStart rejects events whose reported start time is
	// implausibly far out, guarding against malformed dates upstream.
	MaxFutureStart = 14 * 24 * time.Hour

	// ResetGuardWindow keeps events that start right before a scheduled
	// maintenance reset out of the queue so a mid-write restart cannot
	// race the transaction.
	ResetGuardWindow = 5 * time.Minute
)

const (
	ExternalAPITimeout = 30 * time.Second
	DatabaseTimeout    = 15 * time.Second
)

const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// WorkerPollInterval is the default idle period between ingestion
	// passes when nothing sooner is expected.
	WorkerPollInterval = 5 * time.Minute
	WorkerMinSleep     = 30 * time.Second
)

const (
	// ByeMatchID is the sentinel the live client reports for matches
	// that never happened.
	ByeMatchID = 0

	// ByeRecord is the automatic result awarded for a bye.
	ByeRecord = "2-0-0"
)
