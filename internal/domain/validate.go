package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidStandings marks a failed integrity check over a full
// standings collection. It signals a corrupted or mid-mutation read from
// the live source, so callers abort the attempt instead of retrying the
// same data.
var ErrInvalidStandings = errors.New("invalid standings")

// ValidateStandings checks a fully-built standings collection:
//   - ranks are unique within the event
//   - player names are unique within the event
//   - each standing's points equal 3*wins + draws counted from its
//     matches (byes count as wins)
//   - every non-bye match id is referenced exactly twice, with mirrored
//     results; a single reference is only valid for byes
//
// Pure function; any violation aborts the composite build.
func ValidateStandings(standings []Standing) error {
	ranks := make(map[int]struct{}, len(standings))
	players := make(map[string]struct{}, len(standings))

	type matchRef struct {
		player string
		result Result
	}
	refs := make(map[int][]matchRef)

	for _, s := range standings {
		if _, dup := ranks[s.Rank]; dup {
			return fmt.Errorf("%w: duplicate rank %d", ErrInvalidStandings, s.Rank)
		}
		ranks[s.Rank] = struct{}{}

		if _, dup := players[s.Player]; dup {
			return fmt.Errorf("%w: duplicate player %q", ErrInvalidStandings, s.Player)
		}
		players[s.Player] = struct{}{}

		var wins, draws int
		for _, m := range s.Matches {
			switch m.Result {
			case ResultWin:
				wins++
			case ResultDraw:
				draws++
			}
			if m.IsBye || m.ID == byeSentinel {
				continue
			}
			refs[m.ID] = append(refs[m.ID], matchRef{player: s.Player, result: m.Result})
		}

		if s.Points != 3*wins+draws {
			return fmt.Errorf("%w: player %q has %d points for a %d-win %d-draw record",
				ErrInvalidStandings, s.Player, s.Points, wins, draws)
		}
	}

	for id, r := range refs {
		switch len(r) {
		case 2:
			if !Mirrors(r[0].result, r[1].result) {
				return fmt.Errorf("%w: match %d results do not mirror (%s vs %s)",
					ErrInvalidStandings, id, r[0].result, r[1].result)
			}
		case 1:
			return fmt.Errorf("%w: match %d referenced by %q only", ErrInvalidStandings, id, r[0].player)
		default:
			return fmt.Errorf("%w: match %d referenced %d times", ErrInvalidStandings, id, len(r))
		}
	}

	return nil
}

// byeSentinel is the match id the live client reports for byes.
const byeSentinel = 0
