package domain

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// Event is the write-once metadata row for one finished tournament. Date
// is calendar-precision only; time-of-day never round-trips through the
// store.
type Event struct {
	ID          int
	Name        string
	Date        time.Time
	Format      Format
	Kind        Kind
	Rounds      int
	PlayerCount int
}

type Player struct {
	ID   int
	Name string
}

// AnonymousPlayerID is the sentinel the live client reports for players
// whose account identity is hidden.
const AnonymousPlayerID = -1

// SyntheticID derives a stable stand-in id for a player whose upstream
// identity is missing or colliding. It is a pure function of the name so
// the same anonymous player maps to the same row across events and
// process restarts. Always negative, so it can never collide with a real
// upstream id.
func SyntheticID(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	id := -int(int64(h.Sum32()))
	if id == 0 {
		id = -1
	}
	return id
}

// Standing is one row of an event's final standings, owning the match
// history that produced it.
type Standing struct {
	EventID int
	Rank    int
	Player  string
	Record  string
	Points  int
	OMWP    float64
	GWP     float64
	OGWP    float64
	Matches []Match
}

// Match is one round's result for one player. A bye carries no opponent
// and no games and is recorded as an automatic 2-0-0 win.
type Match struct {
	ID       int
	EventID  int
	Round    int
	Player   string
	Opponent *string
	Record   string
	Result   Result
	IsBye    bool
	Games    []Game
}

type Game struct {
	ID     int    `json:"id"`
	Result Result `json:"result"`
}

// CardQuantity is one (card, count) line of a deck board.
type CardQuantity struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Deck is a tournament-scoped decklist. Empty boards mean the primary
// source has not published the list yet, which is an expected state, not
// an error.
type Deck struct {
	ID        int
	EventID   int
	Player    string
	Mainboard []CardQuantity
	Sideboard []CardQuantity
}

// ArchetypeEntry is the classification back-filled from the secondary
// site for one deck. ArchetypeID is nil while the label is unresolved.
type ArchetypeEntry struct {
	ID          int
	DeckID      int
	Name        string
	Archetype   string
	ArchetypeID *int
}

// EventComposite is the aggregate written atomically per event.
type EventComposite struct {
	Event     Event
	Players   []Player
	Standings []Standing
	Decks     []Deck
}

// FormatRecord renders a wins-losses-draws display record.
func FormatRecord(wins, losses, draws int) string {
	return fmt.Sprintf("%d-%d-%d", wins, losses, draws)
}

// ParsePercent parses the source's "NN.NN%" display strings into a
// float, e.g. "58.33%" -> 58.33.
func ParsePercent(s string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentage %q: %w", s, err)
	}
	return v, nil
}
