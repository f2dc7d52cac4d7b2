package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/videre-project/MTGOBot/internal/domain"
)

// Store persists event composites. One composite is written in one
// transaction; a failure at any step rolls the whole event back so no
// partial event is ever visible to readers.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EventExists answers the point existence check the queue uses to skip
// already-persisted events.
func (s *Store) EventExists(ctx context.Context, id int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = ?)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event %d: %w", id, err)
	}
	return exists, nil
}

// AddEvent writes one composite atomically. The event row is write-once:
// a primary-key conflict fails the insert rather than updating, which is
// what makes re-delivery of an already-written event safe.
func (s *Store) AddEvent(ctx context.Context, composite *domain.EventComposite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	evt := composite.Event
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, name, date, format, kind, rounds, players)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.Name, evt.Date.Format("2006-01-02"), string(evt.Format), string(evt.Kind), evt.Rounds, evt.PlayerCount)
	if err != nil {
		return fmt.Errorf("failed to insert event %d: %w", evt.ID, err)
	}

	for _, p := range composite.Players {
		if err := insertPlayer(ctx, tx, p); err != nil {
			return err
		}
	}

	for _, st := range composite.Standings {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO standings (event_id, rank, player, record, points, omwp, gwp, ogwp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.ID, st.Rank, st.Player, st.Record, st.Points, st.OMWP, st.GWP, st.OGWP)
		if err != nil {
			return fmt.Errorf("failed to insert standing %d of event %d: %w", st.Rank, evt.ID, err)
		}

		for _, m := range st.Matches {
			games, err := json.Marshal(m.Games)
			if err != nil {
				return fmt.Errorf("failed to encode games of match %d: %w", m.ID, err)
			}
			var opponent any
			if m.Opponent != nil {
				opponent = *m.Opponent
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO matches (id, event_id, round, player, opponent, record, result, is_bye, games)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, evt.ID, m.Round, m.Player, opponent, m.Record, string(m.Result), m.IsBye, string(games))
			if err != nil {
				return fmt.Errorf("failed to insert match %d of event %d: %w", m.ID, evt.ID, err)
			}
		}
	}

	for _, d := range composite.Decks {
		mainboard, err := json.Marshal(d.Mainboard)
		if err != nil {
			return fmt.Errorf("failed to encode mainboard of deck %d: %w", d.ID, err)
		}
		sideboard, err := json.Marshal(d.Sideboard)
		if err != nil {
			return fmt.Errorf("failed to encode sideboard of deck %d: %w", d.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO decks (id, event_id, player, mainboard, sideboard)
			 VALUES (?, ?, ?, ?, ?)`,
			d.ID, evt.ID, d.Player, string(mainboard), string(sideboard))
		if err != nil {
			return fmt.Errorf("failed to insert deck %d of event %d: %w", d.ID, evt.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event %d: %w", evt.ID, err)
	}

	s.logger.Info().
		Int("event_id", evt.ID).
		Int("standings", len(composite.Standings)).
		Int("decks", len(composite.Decks)).
		Msg("event written")
	return nil
}

// insertPlayer applies the identity reconciliation rule: a new id is
// inserted as-is; an id already present under a different name gets that
// name inserted as a second row under its synthetic id, but only if the
// name isn't already present under any id. Existing rows are never
// renamed.
func insertPlayer(ctx context.Context, tx *sql.Tx, p domain.Player) error {
	var existing string
	err := tx.QueryRowContext(ctx, `SELECT name FROM players WHERE id = ?`, p.ID).Scan(&existing)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx, `INSERT INTO players (id, name) VALUES (?, ?)`, p.ID, p.Name); err != nil {
			return fmt.Errorf("failed to insert player %d: %w", p.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up player %d: %w", p.ID, err)
	}
	if existing == p.Name {
		return nil
	}

	var taken bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM players WHERE name = ?)`, p.Name).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check player name %q: %w", p.Name, err)
	}
	if taken {
		return nil
	}

	synthetic := domain.SyntheticID(p.Name)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO players (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		synthetic, p.Name); err != nil {
		return fmt.Errorf("failed to insert alias player %q: %w", p.Name, err)
	}
	return nil
}

// GetEventDate returns the stored calendar date of one event.
func (s *Store) GetEventDate(ctx context.Context, id int) (time.Time, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT date FROM events WHERE id = ?`, id).Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("failed to read event %d: %w", id, err)
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", raw, err)
	}
	return date, nil
}
