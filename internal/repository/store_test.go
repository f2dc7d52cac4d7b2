package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videre-project/MTGOBot/internal/database"
	"github.com/videre-project/MTGOBot/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.RunMigrations(db, zerolog.Nop()))
	return NewStore(db, zerolog.Nop()), db
}

func testComposite(eventID int, date time.Time) *domain.EventComposite {
	opponent := func(name string) *string { return &name }
	return &domain.EventComposite{
		Event: domain.Event{
			ID:          eventID,
			Name:        "Modern Challenge",
			Date:        date,
			Format:      domain.FormatModern,
			Kind:        domain.KindChallenge,
			Rounds:      1,
			PlayerCount: 2,
		},
		Players: []domain.Player{
			{ID: 10, Name: "alice"},
			{ID: 11, Name: "bob"},
		},
		Standings: []domain.Standing{
			{
				EventID: eventID, Rank: 1, Player: "alice", Record: "1-0-0", Points: 3,
				OMWP: 0.3333, GWP: 1.0, OGWP: 0.0,
				Matches: []domain.Match{{
					ID: 100, EventID: eventID, Round: 1, Player: "alice",
					Opponent: opponent("bob"), Record: "2-0-0", Result: domain.ResultWin,
					Games: []domain.Game{{ID: 1000, Result: domain.ResultWin}, {ID: 1001, Result: domain.ResultWin}},
				}},
			},
			{
				EventID: eventID, Rank: 2, Player: "bob", Record: "0-1-0", Points: 0,
				OMWP: 1.0, GWP: 0.0, OGWP: 1.0,
				Matches: []domain.Match{{
					ID: 100, EventID: eventID, Round: 1, Player: "bob",
					Opponent: opponent("alice"), Record: "0-2-0", Result: domain.ResultLoss,
					Games: []domain.Game{{ID: 1000, Result: domain.ResultLoss}, {ID: 1001, Result: domain.ResultLoss}},
				}},
			},
		},
		Decks: []domain.Deck{
			{
				ID: 500, EventID: eventID, Player: "alice",
				Mainboard: []domain.CardQuantity{{ID: 9, Name: "Lightning Bolt", Quantity: 4}},
				Sideboard: []domain.CardQuantity{{ID: 12, Name: "Smash to Smithereens", Quantity: 2}},
			},
		},
	}
}

func TestAddEvent_WriteOnce(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)

	exists, err := store.EventExists(ctx, 42)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.AddEvent(ctx, testComposite(42, date)))

	exists, err = store.EventExists(ctx, 42)
	require.NoError(t, err)
	assert.True(t, exists)

	err = store.AddEvent(ctx, testComposite(42, date))
	require.Error(t, err, "re-delivery of a written event must not update rows")

	var standings int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM standings WHERE event_id = 42`).Scan(&standings))
	assert.Equal(t, 2, standings, "failed re-delivery leaves no extra rows")
}

func TestAddEvent_RollsBackOnFailure(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	c := testComposite(42, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC))
	c.Standings = append(c.Standings, c.Standings[0]) // duplicate rank violates the unique index

	require.Error(t, store.AddEvent(ctx, c))

	exists, err := store.EventExists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, exists, "partial event must not be visible")

	var players int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&players))
	assert.Zero(t, players)
}

func TestGetEventDate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AddEvent(ctx, testComposite(42, date)))

	got, err := store.GetEventDate(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, date, got)
}

func TestInsertPlayer_Reconciliation(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.AddEvent(ctx, testComposite(42, date)))

	playerName := func(id int) (string, bool) {
		var name string
		err := db.QueryRow(`SELECT name FROM players WHERE id = ?`, id).Scan(&name)
		if err == sql.ErrNoRows {
			return "", false
		}
		require.NoError(t, err)
		return name, true
	}

	// Same id under a new name: the name gets its own row under a
	// synthetic id, and the original row is untouched.
	c := testComposite(43, date.AddDate(0, 0, 1))
	c.Players = []domain.Player{{ID: 10, Name: "alice_renamed"}, {ID: 11, Name: "bob"}}
	require.NoError(t, store.AddEvent(ctx, c))

	name, ok := playerName(10)
	require.True(t, ok)
	assert.Equal(t, "alice", name)

	synthetic := domain.SyntheticID("alice_renamed")
	name, ok = playerName(synthetic)
	require.True(t, ok)
	assert.Equal(t, "alice_renamed", name)

	// Same id under a name that already belongs to someone else: no new
	// row at all.
	c = testComposite(44, date.AddDate(0, 0, 2))
	c.Players = []domain.Player{{ID: 10, Name: "bob"}, {ID: 11, Name: "bob"}}
	require.NoError(t, store.AddEvent(ctx, c))

	_, ok = playerName(domain.SyntheticID("bob"))
	assert.False(t, ok, "a taken name never gets an alias row")

	var total int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&total))
	assert.Equal(t, 3, total)
}

func TestGetDecksByEvent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddEvent(ctx, testComposite(42, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC))))

	decks, err := store.GetDecksByEvent(ctx, 42)
	require.NoError(t, err)
	require.Len(t, decks, 1)
	assert.Equal(t, 500, decks[0].ID)
	assert.Equal(t, "alice", decks[0].Player)
	require.Len(t, decks[0].Mainboard, 1)
	assert.Equal(t, domain.CardQuantity{ID: 9, Name: "Lightning Bolt", Quantity: 4}, decks[0].Mainboard[0])
	require.Len(t, decks[0].Sideboard, 1)
	assert.Equal(t, 2, decks[0].Sideboard[0].Quantity)
}

func TestArchetypeEntries_RekeyedDeck(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddEvent(ctx, testComposite(42, time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC))))

	id := 7
	require.NoError(t, store.AddArchetypeEntries(ctx, []domain.ArchetypeEntry{
		{ID: 9001, DeckID: 500, Name: "Boros Burn", Archetype: "Burn", ArchetypeID: &id},
	}))

	// The secondary site republished the same deck under a new id; the
	// existing row is re-keyed rather than failing the batch.
	require.NoError(t, store.AddArchetypeEntries(ctx, []domain.ArchetypeEntry{
		{ID: 8888, DeckID: 500, Name: "Burn", Archetype: "Burn", ArchetypeID: &id},
	}))

	var count, entryID int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), MAX(id) FROM archetypes WHERE deck_id = 500`).Scan(&count, &entryID))
	assert.Equal(t, 1, count, "one classification per deck")
	assert.Equal(t, 8888, entryID)
}

func TestArchetypeEntries_UpsertAndBackfillWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	recent := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -2)
	stale := recent.AddDate(0, 0, -20)

	recentEvent := testComposite(42, recent)
	recentEvent.Decks = append(recentEvent.Decks, domain.Deck{
		ID: 501, EventID: 42, Player: "bob",
		Mainboard: []domain.CardQuantity{}, Sideboard: []domain.CardQuantity{},
	})
	require.NoError(t, store.AddEvent(ctx, recentEvent))

	staleEvent := testComposite(43, stale)
	staleEvent.Decks[0].ID = 600
	require.NoError(t, store.AddEvent(ctx, staleEvent))

	events, err := store.GetUnlabeledEvents(ctx, 7)
	require.NoError(t, err)
	require.Len(t, events, 1, "events outside the window are not scanned")
	assert.Equal(t, 42, events[0].ID)
	assert.Equal(t, 2, events[0].UnlabeledDecks)
	assert.Equal(t, recent, events[0].Date)

	id := 7
	require.NoError(t, store.AddArchetypeEntries(ctx, []domain.ArchetypeEntry{
		{ID: 9001, DeckID: 500, Name: "Boros Burn", Archetype: "Burn", ArchetypeID: &id},
	}))

	events, err = store.GetUnlabeledEvents(ctx, 7)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].UnlabeledDecks, "labeled decks leave the unlabeled count")

	// A later pass refreshes the entry in place.
	id2 := 9
	require.NoError(t, store.AddArchetypeEntries(ctx, []domain.ArchetypeEntry{
		{ID: 9001, DeckID: 500, Name: "Boros Burn", Archetype: "Azorius Control", ArchetypeID: &id2},
	}))

	var archetype string
	var archetypeID int
	db := store.db
	require.NoError(t, db.QueryRow(`SELECT archetype, archetype_id FROM archetypes WHERE id = 9001`).Scan(&archetype, &archetypeID))
	assert.Equal(t, "Azorius Control", archetype)
	assert.Equal(t, 9, archetypeID)

	require.NoError(t, store.AddArchetypeEntries(ctx, []domain.ArchetypeEntry{
		{ID: 9002, DeckID: 501, Name: "Affinity", Archetype: "Affinity", ArchetypeID: nil},
	}))

	events, err = store.GetUnlabeledEvents(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, events, "fully labeled events drop out of the backfill")
}
