package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videre-project/MTGOBot/internal/api"
	"github.com/videre-project/MTGOBot/internal/config"
	"github.com/videre-project/MTGOBot/internal/domain"
	"github.com/videre-project/MTGOBot/internal/repository"
)

func TestResolveLabel(t *testing.T) {
	labels := map[string]int{"Burn": 7, "Affinity": 12}

	tests := []struct {
		name    string
		rawName string
		want    string
		wantID  *int
	}{
		{name: "exact match", rawName: "Burn", want: "Burn", wantID: ptr(7)},
		{name: "customized prefix stripped", rawName: "Boros Burn", want: "Burn", wantID: ptr(7)},
		{name: "unresolved", rawName: "My Sweet Brew", want: "", wantID: nil},
		{name: "single unknown word", rawName: "Tron", want: "", wantID: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotID := resolveLabel(tt.rawName, labels)
			assert.Equal(t, tt.want, got)
			if tt.wantID == nil {
				assert.Nil(t, gotID)
			} else {
				require.NotNil(t, gotID)
				assert.Equal(t, *tt.wantID, *gotID)
			}
		})
	}
}

func TestNamePrefix(t *testing.T) {
	assert.Equal(t, "Modern Challenge", namePrefix("Modern Challenge - Sunday 10AM"))
	assert.Equal(t, "Modern Challenge", namePrefix("Modern Challenge"))
}

func ptr(n int) *int { return &n }

type fakeFetcher struct {
	results     []api.TournamentResult
	details     map[string]*api.EventDetail
	standings   map[string][][]api.StandingsRow
	deckLabels  map[int]string
	searchCalls int
	searchFrom  time.Time
	searchTo    time.Time
}

func (f *fakeFetcher) SearchEvents(ctx context.Context, prefix string, from, to time.Time) ([]api.TournamentResult, error) {
	f.searchCalls++
	f.searchFrom, f.searchTo = from, to
	return f.results, nil
}

func (f *fakeFetcher) GetEventDetail(ctx context.Context, pageURL string) (*api.EventDetail, error) {
	if d, ok := f.details[pageURL]; ok {
		return d, nil
	}
	return nil, api.ErrNotPublished
}

func (f *fakeFetcher) GetStandingsPage(ctx context.Context, pageURL string, page int) ([]api.StandingsRow, error) {
	pages := f.standings[pageURL]
	if page > len(pages) {
		return nil, nil
	}
	return pages[page-1], nil
}

func (f *fakeFetcher) GetDeckArchetypeLabel(ctx context.Context, deckID int) (string, error) {
	return f.deckLabels[deckID], nil
}

type fakeArchetypeStore struct {
	unlabeled []repository.UnlabeledEvent
	decks     map[int][]domain.Deck
	added     []domain.ArchetypeEntry
}

func (s *fakeArchetypeStore) GetUnlabeledEvents(ctx context.Context, days int) ([]repository.UnlabeledEvent, error) {
	return s.unlabeled, nil
}

func (s *fakeArchetypeStore) GetDecksByEvent(ctx context.Context, eventID int) ([]domain.Deck, error) {
	return s.decks[eventID], nil
}

func (s *fakeArchetypeStore) AddArchetypeEntries(ctx context.Context, entries []domain.ArchetypeEntry) error {
	s.added = append(s.added, entries...)
	return nil
}

func backfillConfig() *config.Config {
	return &config.Config{
		BackfillLookbackDays: 7,
		MinUnlabeledDecks:    4,
		DateOffsetBefore:     1,
		DateOffsetAfter:      2,
	}
}

func TestBackfill_LabelsConfirmedEvent(t *testing.T) {
	date := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	event := repository.UnlabeledEvent{ID: 111222, Name: "Saturday Night Standard", Date: date, UnlabeledDecks: 4}

	pageURL := "https://www.mtggoldfish.com/tournament/saturday-night-standard-111222"
	fetcher := &fakeFetcher{
		results: []api.TournamentResult{
			// A sibling event carrying another id token is filtered out
			// before any page fetch.
			{Title: "Saturday Night Standard #999999", URL: "https://www.mtggoldfish.com/tournament/other-999999"},
			{Title: "Saturday Night Standard #111222", URL: pageURL},
		},
		details: map[string]*api.EventDetail{
			pageURL: {
				Backlink:        "https://www.mtgo.com/decklist/saturday-night-standard-2024-05-04111222",
				ArchetypeGroups: map[string]int{"Burn": 7, "Azorius Control": 9},
			},
		},
		standings: map[string][][]api.StandingsRow{
			pageURL: {
				{
					{RawName: "Boros Burn", PlayerName: "Alice", DeckID: 9001},
					{RawName: "Azorius Control", PlayerName: "BOB", DeckID: 9002},
				},
				{
					{RawName: "My Sweet Brew", PlayerName: "carol", DeckID: 9003},
					{RawName: "Mystery Deck", PlayerName: "nobody_here", DeckID: 9004},
				},
			},
		},
		deckLabels: map[int]string{9003: "Burn"},
	}
	store := &fakeArchetypeStore{
		unlabeled: []repository.UnlabeledEvent{event},
		decks: map[int][]domain.Deck{
			111222: {
				{ID: 500, EventID: 111222, Player: "alice"},
				{ID: 501, EventID: 111222, Player: "bob"},
				{ID: 502, EventID: 111222, Player: "carol"},
			},
		},
	}

	m := NewArchetypeMatcher(fetcher, store, backfillConfig(), zerolog.Nop())
	require.NoError(t, m.Backfill(context.Background()))

	require.Len(t, store.added, 3, "rows without a matching local deck are skipped")

	byDeck := make(map[int]domain.ArchetypeEntry)
	for _, e := range store.added {
		byDeck[e.ID] = e
	}

	alice := byDeck[9001]
	assert.Equal(t, 500, alice.DeckID)
	assert.Equal(t, "Boros Burn", alice.Name)
	assert.Equal(t, "Burn", alice.Archetype, "customized name resolves to its group")
	require.NotNil(t, alice.ArchetypeID)
	assert.Equal(t, 7, *alice.ArchetypeID)

	bob := byDeck[9002]
	assert.Equal(t, "Azorius Control", bob.Archetype)

	carol := byDeck[9003]
	assert.Equal(t, "Burn", carol.Archetype, "deck page fallback resolves unmatched names")
	require.NotNil(t, carol.ArchetypeID)
}

func TestBackfill_SearchWindowFromConfig(t *testing.T) {
	date := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	event := repository.UnlabeledEvent{ID: 111222, Name: "Saturday Night Standard", Date: date, UnlabeledDecks: 4}

	fetcher := &fakeFetcher{}
	store := &fakeArchetypeStore{unlabeled: []repository.UnlabeledEvent{event}}
	cfg := backfillConfig()
	cfg.DateOffsetBefore = 3
	cfg.DateOffsetAfter = 5

	m := NewArchetypeMatcher(fetcher, store, cfg, zerolog.Nop())
	require.NoError(t, m.Backfill(context.Background()))

	require.Equal(t, 1, fetcher.searchCalls)
	assert.Equal(t, date.AddDate(0, 0, -3), fetcher.searchFrom)
	assert.Equal(t, date.AddDate(0, 0, 5), fetcher.searchTo)
}

func TestBackfill_SkipsEventsBelowDeckThreshold(t *testing.T) {
	event := repository.UnlabeledEvent{ID: 1, Name: "Modern Challenge", Date: time.Now(), UnlabeledDecks: 3}
	fetcher := &fakeFetcher{}
	store := &fakeArchetypeStore{unlabeled: []repository.UnlabeledEvent{event}}

	m := NewArchetypeMatcher(fetcher, store, backfillConfig(), zerolog.Nop())
	require.NoError(t, m.Backfill(context.Background()))

	assert.Zero(t, fetcher.searchCalls)
	assert.Empty(t, store.added)
}

func TestBackfill_UnconfirmedCandidateIsSkipped(t *testing.T) {
	date := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	event := repository.UnlabeledEvent{ID: 111222, Name: "Saturday Night Standard", Date: date, UnlabeledDecks: 4}

	pageURL := "https://www.mtggoldfish.com/tournament/lookalike-555"
	fetcher := &fakeFetcher{
		results: []api.TournamentResult{{Title: "Saturday Night Standard", URL: pageURL}},
		details: map[string]*api.EventDetail{
			pageURL: {Backlink: "https://www.mtgo.com/decklist/some-other-event-2024-05-04999999"},
		},
	}
	store := &fakeArchetypeStore{unlabeled: []repository.UnlabeledEvent{event}}

	m := NewArchetypeMatcher(fetcher, store, backfillConfig(), zerolog.Nop())
	require.NoError(t, m.Backfill(context.Background()), "per-event failures are absorbed")
	assert.Empty(t, store.added)
}
