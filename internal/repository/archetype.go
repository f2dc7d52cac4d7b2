package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/videre-project/MTGOBot/internal/domain"
)

// AddArchetypeEntries upserts classification entries keyed by entry id,
// refreshing every field from the latest pass. A later pass may also
// re-key a deck under a different secondary-site id, so the deck_id
// conflict re-keys the existing row instead of failing the batch.
// Deliberately outside the event transaction: archetype data arrives
// asynchronously and must not block or be blocked by ingestion.
func (s *Store) AddArchetypeEntries(ctx context.Context, entries []domain.ArchetypeEntry) error {
	for _, e := range entries {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO archetypes (id, deck_id, name, archetype, archetype_id)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET
			   deck_id = excluded.deck_id,
			   name = excluded.name,
			   archetype = excluded.archetype,
			   archetype_id = excluded.archetype_id
			 ON CONFLICT (deck_id) DO UPDATE SET
			   id = excluded.id,
			   name = excluded.name,
			   archetype = excluded.archetype,
			   archetype_id = excluded.archetype_id`,
			e.ID, e.DeckID, e.Name, e.Archetype, e.ArchetypeID)
		if err != nil {
			return fmt.Errorf("failed to upsert archetype entry %d: %w", e.ID, err)
		}
	}
	s.logger.Debug().Int("count", len(entries)).Msg("archetype entries upserted")
	return nil
}

// UnlabeledEvent is one event still missing classifications, with the
// number of decks lacking an archetype entry.
type UnlabeledEvent struct {
	ID             int
	Name           string
	Date           time.Time
	UnlabeledDecks int
}

// GetUnlabeledEvents lists events inside the trailing day window that
// still have at least one deck without an archetype entry. The window
// bounds the backfill scan; older unlabeled events are presumed
// permanently unlabeled.
func (s *Store) GetUnlabeledEvents(ctx context.Context, days int) ([]UnlabeledEvent, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.name, e.date, COUNT(d.id)
		 FROM events e
		 JOIN decks d ON d.event_id = e.id
		 LEFT JOIN archetypes a ON a.deck_id = d.id
		 WHERE e.date >= ? AND a.id IS NULL
		 GROUP BY e.id, e.name, e.date
		 ORDER BY e.date`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlabeled events: %w", err)
	}
	defer rows.Close()

	var events []UnlabeledEvent
	for rows.Next() {
		var e UnlabeledEvent
		var raw string
		if err := rows.Scan(&e.ID, &e.Name, &raw, &e.UnlabeledDecks); err != nil {
			return nil, fmt.Errorf("failed to scan unlabeled event: %w", err)
		}
		if e.Date, err = time.Parse("2006-01-02", raw); err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", raw, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetDecksByEvent returns every stored deck of one event.
func (s *Store) GetDecksByEvent(ctx context.Context, eventID int) ([]domain.Deck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, player, mainboard, sideboard FROM decks WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decks of event %d: %w", eventID, err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		var d domain.Deck
		var mainboard, sideboard string
		if err := rows.Scan(&d.ID, &d.EventID, &d.Player, &mainboard, &sideboard); err != nil {
			return nil, fmt.Errorf("failed to scan deck: %w", err)
		}
		if err := json.Unmarshal([]byte(mainboard), &d.Mainboard); err != nil {
			return nil, fmt.Errorf("failed to decode mainboard of deck %d: %w", d.ID, err)
		}
		if err := json.Unmarshal([]byte(sideboard), &d.Sideboard); err != nil {
			return nil, fmt.Errorf("failed to decode sideboard of deck %d: %w", d.ID, err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}
