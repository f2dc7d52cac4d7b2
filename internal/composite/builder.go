// Package composite assembles one validated event aggregate from a live
// tournament handle. Sub-collections are fetched independently and kept
// across attempts, so a retry only re-fetches what is still missing.
package composite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/videre-project/MTGOBot/internal/api"
	"github.com/videre-project/MTGOBot/internal/constants"
	"github.com/videre-project/MTGOBot/internal/domain"
	"github.com/videre-project/MTGOBot/internal/mtgo"
)

// DecklistFetcher is the delayed decklist publication boundary.
type DecklistFetcher interface {
	GetDecklists(ctx context.Context, eventID int, name string, date time.Time) ([]api.DecklistRecord, error)
}

// Builder accumulates one event's composite across build attempts. Each
// sub-collection is nil until fetched; Build fills in whatever is still
// missing and leaves earlier results untouched.
type Builder struct {
	decklists DecklistFetcher
	logger    zerolog.Logger

	event     *domain.Event
	records   []mtgo.StandingRecord
	players   []domain.Player
	standings []domain.Standing
	decks     []domain.Deck

	haveRecords   bool
	havePlayers   bool
	haveStandings bool
	haveDecks     bool

	// whitelist holds the upstream player ids seen in the roster and
	// standings; decks referencing anyone else are dropped as noise.
	whitelist map[int]struct{}
}

func NewBuilder(decklists DecklistFetcher, logger zerolog.Logger) *Builder {
	return &Builder{
		decklists: decklists,
		logger:    logger,
		whitelist: make(map[int]struct{}),
	}
}

// Build assembles (or finishes assembling) the composite from the given
// handle. Metadata errors and validation failures are fatal to the
// attempt; fetch errors leave completed sub-collections in place so the
// next attempt resumes where this one stopped.
func (b *Builder) Build(ctx context.Context, handle mtgo.EventHandle) error {
	if err := b.ensureEvent(handle); err != nil {
		return err
	}
	if err := b.ensureRecords(ctx, handle); err != nil {
		return err
	}
	if err := b.ensurePlayers(ctx, handle); err != nil {
		return err
	}
	if err := b.ensureStandings(ctx); err != nil {
		return err
	}
	return b.ensureDecks(ctx)
}

// Composite returns the assembled aggregate; only valid after a
// successful Build.
func (b *Builder) Composite() *domain.EventComposite {
	return &domain.EventComposite{
		Event:     *b.event,
		Players:   b.players,
		Standings: b.standings,
		Decks:     b.decks,
	}
}

func (b *Builder) ensureEvent(handle mtgo.EventHandle) error {
	if b.event != nil {
		return nil
	}

	description := handle.Description()
	format, err := domain.ParseFormat(description)
	if err != nil {
		return fmt.Errorf("event %d has no parseable format: %w", handle.ID(), err)
	}
	kind, err := domain.ParseKind(description)
	if err != nil {
		return fmt.Errorf("event %d has no parseable kind: %w", handle.ID(), err)
	}

	start := handle.StartTime().UTC()
	b.event = &domain.Event{
		ID:     handle.ID(),
		Name:   description,
		Date:   time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		Format: format,
		Kind:   kind,
		Rounds: handle.Rounds(),
	}
	return nil
}

func (b *Builder) ensureRecords(ctx context.Context, handle mtgo.EventHandle) error {
	if b.haveRecords {
		return nil
	}
	records, err := handle.Standings(ctx)
	if err != nil {
		return fmt.Errorf("failed to list standings of event %d: %w", b.event.ID, err)
	}
	b.records = records
	b.haveRecords = true
	return nil
}

// ensurePlayers unions the roster view with the standings view; the two
// upstream views can disagree, so players are deduplicated by (id, name)
// after anonymous ids are replaced with their synthetic stand-ins.
func (b *Builder) ensurePlayers(ctx context.Context, handle mtgo.EventHandle) error {
	if b.havePlayers {
		return nil
	}

	roster, err := handle.Players(ctx)
	if err != nil {
		return fmt.Errorf("failed to list players of event %d: %w", b.event.ID, err)
	}

	all := make([]mtgo.PlayerRecord, 0, len(roster)+len(b.records))
	all = append(all, roster...)
	for _, rec := range b.records {
		all = append(all, rec.Player)
	}

	type key struct {
		id   int
		name string
	}
	seen := make(map[key]struct{}, len(all))
	players := make([]domain.Player, 0, len(all))
	for _, rec := range all {
		if rec.ID != domain.AnonymousPlayerID {
			b.whitelist[rec.ID] = struct{}{}
		}
		p := normalizePlayer(rec)
		k := key{id: p.ID, name: p.Name}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		players = append(players, p)
	}

	b.players = players
	b.havePlayers = true
	b.event.PlayerCount = len(players)
	return nil
}

func normalizePlayer(rec mtgo.PlayerRecord) domain.Player {
	if rec.ID == domain.AnonymousPlayerID {
		return domain.Player{ID: domain.SyntheticID(rec.Name), Name: rec.Name}
	}
	return domain.Player{ID: rec.ID, Name: rec.Name}
}

func (b *Builder) ensureStandings(ctx context.Context) error {
	if b.haveStandings {
		return nil
	}

	standings := make([]domain.Standing, 0, len(b.records))
	for _, rec := range b.records {
		standing, err := b.buildStanding(ctx, rec)
		if err != nil {
			return err
		}
		standings = append(standings, standing)
	}

	if err := domain.ValidateStandings(standings); err != nil {
		return err
	}

	b.standings = standings
	b.haveStandings = true
	return nil
}

// buildStanding expands one standing's match history. Each match detail
// read is retried with backoff; the whole standing runs under a hard
// time budget, and exceeding it fails the attempt.
func (b *Builder) buildStanding(ctx context.Context, rec mtgo.StandingRecord) (domain.Standing, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.StandingTimeout)
	defer cancel()

	omwp, err := domain.ParsePercent(rec.OMWP)
	if err != nil {
		return domain.Standing{}, fmt.Errorf("standing %d of event %d: %w", rec.Rank, b.event.ID, err)
	}
	gwp, err := domain.ParsePercent(rec.GWP)
	if err != nil {
		return domain.Standing{}, fmt.Errorf("standing %d of event %d: %w", rec.Rank, b.event.ID, err)
	}
	ogwp, err := domain.ParsePercent(rec.OGWP)
	if err != nil {
		return domain.Standing{}, fmt.Errorf("standing %d of event %d: %w", rec.Rank, b.event.ID, err)
	}

	matches := make([]domain.Match, 0, len(rec.PreviousMatches))
	var wins, losses, draws int
	for _, mh := range rec.PreviousMatches {
		var mr mtgo.MatchRecord
		backoff := retry.WithMaxRetries(constants.MatchHistoryAttempts-1, retry.NewConstant(constants.MatchHistoryBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var err error
			if mr, err = mh.Resolve(ctx); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return domain.Standing{}, fmt.Errorf("failed to resolve match history of %q in event %d: %w",
				rec.Player.Name, b.event.ID, err)
		}

		match := buildMatch(b.event.ID, rec.Player, mr)
		switch match.Result {
		case domain.ResultWin:
			wins++
		case domain.ResultLoss:
			losses++
		case domain.ResultDraw:
			draws++
		}
		matches = append(matches, match)
	}

	return domain.Standing{
		EventID: b.event.ID,
		Rank:    rec.Rank,
		Player:  rec.Player.Name,
		Record:  domain.FormatRecord(wins, losses, draws),
		Points:  rec.Points,
		OMWP:    omwp,
		GWP:     gwp,
		OGWP:    ogwp,
		Matches: matches,
	}, nil
}

// buildMatch derives one player's view of a match record. A bye has no
// opponent and no games and is an automatic 2-0-0 win.
func buildMatch(eventID int, player mtgo.PlayerRecord, mr mtgo.MatchRecord) domain.Match {
	if mr.HasBye || mr.ID == constants.ByeMatchID {
		return domain.Match{
			ID:      constants.ByeMatchID,
			EventID: eventID,
			Round:   mr.Round,
			Player:  player.Name,
			Record:  constants.ByeRecord,
			Result:  domain.ResultWin,
			IsBye:   true,
		}
	}

	var opponent *string
	for _, p := range mr.Players {
		if !samePlayer(player, p) {
			name := p.Name
			opponent = &name
			break
		}
	}

	games := make([]domain.Game, 0, len(mr.GameRecords))
	var gameWins, gameLosses, gameDraws int
	for _, g := range mr.GameRecords {
		result := resultFor(player, g.Winners)
		switch result {
		case domain.ResultWin:
			gameWins++
		case domain.ResultLoss:
			gameLosses++
		case domain.ResultDraw:
			gameDraws++
		}
		games = append(games, domain.Game{ID: g.ID, Result: result})
	}

	return domain.Match{
		ID:       mr.ID,
		EventID:  eventID,
		Round:    mr.Round,
		Player:   player.Name,
		Opponent: opponent,
		Record:   domain.FormatRecord(gameWins, gameLosses, gameDraws),
		Result:   matchResult(player, mr),
		Games:    games,
	}
}

// samePlayer matches by id for real players and by name when either
// side carries the anonymous sentinel, since every anonymized player
// shares the same id.
func samePlayer(a, b mtgo.PlayerRecord) bool {
	if a.ID == domain.AnonymousPlayerID || b.ID == domain.AnonymousPlayerID {
		return a.ID == b.ID && a.Name == b.Name
	}
	return a.ID == b.ID
}

func matchResult(player mtgo.PlayerRecord, mr mtgo.MatchRecord) domain.Result {
	for _, w := range mr.Winners {
		if samePlayer(player, w) {
			return domain.ResultWin
		}
	}
	for _, l := range mr.Losers {
		if samePlayer(player, l) {
			return domain.ResultLoss
		}
	}
	return domain.ResultDraw
}

// resultFor derives a game result from winner membership; a game with
// no winners is a draw.
func resultFor(player mtgo.PlayerRecord, winners []mtgo.PlayerRecord) domain.Result {
	if len(winners) == 0 {
		return domain.ResultDraw
	}
	for _, w := range winners {
		if samePlayer(player, w) {
			return domain.ResultWin
		}
	}
	return domain.ResultLoss
}

// ensureDecks fetches the event's delayed decklist publication.
// Preliminary events never publish lists, and absence elsewhere is an
// expected state; both leave the composite with no decks.
func (b *Builder) ensureDecks(ctx context.Context) error {
	if b.haveDecks {
		return nil
	}

	if b.event.Kind == domain.KindPreliminary {
		b.decks = []domain.Deck{}
		b.haveDecks = true
		return nil
	}

	records, err := b.decklists.GetDecklists(ctx, b.event.ID, b.event.Name, b.event.Date)
	if err != nil && !errors.Is(err, api.ErrNotPublished) {
		return fmt.Errorf("failed to fetch decklists of event %d: %w", b.event.ID, err)
	}

	decks := make([]domain.Deck, 0, len(records))
	for _, rec := range records {
		if _, known := b.whitelist[rec.PlayerID]; !known {
			b.logger.Debug().
				Int("event_id", b.event.ID).
				Int("player_id", rec.PlayerID).
				Str("player", rec.PlayerName).
				Msg("dropping deck for unknown player")
			continue
		}
		decks = append(decks, domain.Deck{
			ID:        rec.DeckID,
			EventID:   b.event.ID,
			Player:    rec.PlayerName,
			Mainboard: rec.Mainboard,
			Sideboard: rec.Sideboard,
		})
	}

	b.decks = decks
	b.haveDecks = true
	return nil
}
