package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/videre-project/MTGOBot/internal/api"
	"github.com/videre-project/MTGOBot/internal/config"
	"github.com/videre-project/MTGOBot/internal/domain"
	"github.com/videre-project/MTGOBot/internal/repository"
)

// ClassificationFetcher is the secondary site boundary.
type ClassificationFetcher interface {
	SearchEvents(ctx context.Context, namePrefix string, from, to time.Time) ([]api.TournamentResult, error)
	GetEventDetail(ctx context.Context, pageURL string) (*api.EventDetail, error)
	GetStandingsPage(ctx context.Context, pageURL string, page int) ([]api.StandingsRow, error)
	GetDeckArchetypeLabel(ctx context.Context, deckID int) (string, error)
}

// ArchetypeStore is the persistence surface of the backfill.
type ArchetypeStore interface {
	GetUnlabeledEvents(ctx context.Context, days int) ([]repository.UnlabeledEvent, error)
	GetDecksByEvent(ctx context.Context, eventID int) ([]domain.Deck, error)
	AddArchetypeEntries(ctx context.Context, entries []domain.ArchetypeEntry) error
}

// ArchetypeMatcher back-fills deck classifications from the secondary
// site. The two sites share no common event id, so events are matched by
// name and date proximity and confirmed through each candidate's
// declared backlink to the primary source.
type ArchetypeMatcher struct {
	fetcher ClassificationFetcher
	store   ArchetypeStore
	cfg     *config.Config
	logger  zerolog.Logger
}

func NewArchetypeMatcher(fetcher ClassificationFetcher, store ArchetypeStore, cfg *config.Config, logger zerolog.Logger) *ArchetypeMatcher {
	return &ArchetypeMatcher{fetcher: fetcher, store: store, cfg: cfg, logger: logger}
}

// Backfill runs one best-effort classification pass over recent events
// still missing labels. Per-event failures are logged and skipped; the
// next scheduled pass naturally retries them.
func (m *ArchetypeMatcher) Backfill(ctx context.Context) error {
	events, err := m.store.GetUnlabeledEvents(ctx, m.cfg.BackfillLookbackDays)
	if err != nil {
		return fmt.Errorf("failed to list unlabeled events: %w", err)
	}

	for _, e := range events {
		if e.UnlabeledDecks < m.cfg.MinUnlabeledDecks {
			m.logger.Debug().
				Int("event_id", e.ID).
				Int("unlabeled", e.UnlabeledDecks).
				Msg("too few unlabeled decks, skipping")
			continue
		}
		if err := m.labelEvent(ctx, e); err != nil {
			m.logger.Warn().Err(err).Int("event_id", e.ID).Str("event", e.Name).Msg("classification pass failed for event")
		}
	}
	return nil
}

var foreignIDToken = regexp.MustCompile(`#(\d+)`)

func (m *ArchetypeMatcher) labelEvent(ctx context.Context, e repository.UnlabeledEvent) error {
	prefix := namePrefix(e.Name)

	// The secondary site sometimes republishes under a shifted date.
	from := e.Date.AddDate(0, 0, -m.cfg.DateOffsetBefore)
	to := e.Date.AddDate(0, 0, m.cfg.DateOffsetAfter)
	candidates, err := m.fetcher.SearchEvents(ctx, prefix, from, to)
	if err != nil {
		return fmt.Errorf("candidate search failed: %w", err)
	}

	detail, pageURL := m.confirmCandidate(ctx, e, prefix, candidates)
	if detail == nil {
		return fmt.Errorf("no candidate confirmed among %d search results", len(candidates))
	}

	var decks []domain.Deck
	var rows []api.StandingsRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		decks, err = m.store.GetDecksByEvent(gctx, e.ID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = m.fetcher.GetStandingsPage(gctx, pageURL, 1)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load event %d for classification: %w", e.ID, err)
	}

	for page := 2; ; page++ {
		next, err := m.fetcher.GetStandingsPage(ctx, pageURL, page)
		if err != nil {
			return fmt.Errorf("failed to fetch standings page %d: %w", page, err)
		}
		if len(next) == 0 {
			break
		}
		rows = append(rows, next...)
	}

	decksByPlayer := make(map[string]domain.Deck, len(decks))
	for _, d := range decks {
		decksByPlayer[strings.ToLower(d.Player)] = d
	}

	var entries []domain.ArchetypeEntry
	for _, row := range rows {
		deck, ok := decksByPlayer[strings.ToLower(row.PlayerName)]
		if !ok {
			continue
		}

		label, labelID := resolveLabel(row.RawName, detail.ArchetypeGroups)
		if label == "" {
			// The row alone was inconclusive; the deck's own page
			// declares its archetype explicitly.
			fallback, err := m.fetcher.GetDeckArchetypeLabel(ctx, row.DeckID)
			if err != nil {
				m.logger.Debug().Err(err).Int("deck_id", row.DeckID).Msg("deck archetype fallback failed")
			} else if fallback != "" {
				label = fallback
				if id, ok := detail.ArchetypeGroups[fallback]; ok {
					labelID = &id
				}
			}
		}

		entries = append(entries, domain.ArchetypeEntry{
			ID:          row.DeckID,
			DeckID:      deck.ID,
			Name:        row.RawName,
			Archetype:   label,
			ArchetypeID: labelID,
		})
	}

	if len(entries) == 0 {
		m.logger.Debug().Int("event_id", e.ID).Msg("no classifiable rows found")
		return nil
	}
	if err := m.store.AddArchetypeEntries(ctx, entries); err != nil {
		return err
	}

	m.logger.Info().
		Int("event_id", e.ID).
		Str("event", e.Name).
		Int("entries", len(entries)).
		Msg("archetype entries back-filled")
	return nil
}

// confirmCandidate walks search results in order and accepts the first
// whose detail page links back to one of the event's canonical
// primary-source URLs, or whose own URL ends with the event id.
func (m *ArchetypeMatcher) confirmCandidate(ctx context.Context, e repository.UnlabeledEvent, prefix string, candidates []api.TournamentResult) (*api.EventDetail, string) {
	canonical := make(map[string]struct{})
	for _, u := range api.CanonicalURLs(e.Name, e.Date, e.ID, m.cfg.DateOffsetBefore, m.cfg.DateOffsetAfter) {
		canonical[u] = struct{}{}
	}
	idSuffix := strconv.Itoa(e.ID)

	for _, c := range candidates {
		if tok := foreignIDToken.FindStringSubmatch(c.Title); tok != nil && tok[1] != idSuffix {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(c.Title), strings.ToLower(prefix)) {
			continue
		}

		detail, err := m.fetcher.GetEventDetail(ctx, c.URL)
		if err != nil {
			m.logger.Debug().Err(err).Str("url", c.URL).Msg("candidate page fetch failed")
			continue
		}

		if _, ok := canonical[detail.Backlink]; ok || strings.HasSuffix(c.URL, idSuffix) {
			m.logger.Debug().Int("event_id", e.ID).Str("url", c.URL).Msg("candidate confirmed")
			return detail, c.URL
		}
	}
	return nil, ""
}

// namePrefix returns the event name's conventional prefix, the text
// before the " - " separator.
func namePrefix(name string) string {
	if i := strings.Index(name, " - "); i >= 0 {
		return name[:i]
	}
	return name
}

// resolveLabel maps a raw entry name to a classification label: exact
// match first, then with the first word stripped (players customize
// names like "Boros Burn" for a plain "Burn" group). Returns "" and nil
// when unresolved.
func resolveLabel(rawName string, labels map[string]int) (string, *int) {
	if id, ok := labels[rawName]; ok {
		return rawName, &id
	}
	if _, rest, found := strings.Cut(rawName, " "); found {
		if id, ok := labels[rest]; ok {
			return rest, &id
		}
	}
	return "", nil
}
