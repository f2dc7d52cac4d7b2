package mtgo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/videre-project/MTGOBot/internal/constants"
)

// BridgeClient implements EventSource over the local HTTP surface of
// the client wrapper process that owns the live MTGO session. Login and
// session management live in the wrapper; this side only reads event
// state and asks for restarts.
type BridgeClient struct {
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger

	mu      sync.Mutex
	session string
}

func NewBridgeClient(baseURL string, logger zerolog.Logger) *BridgeClient {
	return &BridgeClient{
		baseURL: baseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     4,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

type bridgeEvent struct {
	ID          int       `json:"id"`
	StartTime   time.Time `json:"start_time"`
	Completed   bool      `json:"completed"`
	Description string    `json:"description"`
	Rounds      int       `json:"rounds"`
}

type bridgeStanding struct {
	Rank   int `json:"rank"`
	Player struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"player"`
	Points int    `json:"points"`
	OMWP   string `json:"omwp"`
	GWP    string `json:"gwp"`
	OGWP   string `json:"ogwp"`
	Rounds []int  `json:"rounds"`
}

type bridgePlayer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type bridgeMatch struct {
	ID      int            `json:"id"`
	Round   int            `json:"round"`
	Players []bridgePlayer `json:"players"`
	Winners []bridgePlayer `json:"winners"`
	Losers  []bridgePlayer `json:"losers"`
	HasBye  bool           `json:"has_bye"`
	Games   []struct {
		ID      int            `json:"id"`
		Winners []bridgePlayer `json:"winners"`
	} `json:"games"`
}

func (c *BridgeClient) ListEvents(ctx context.Context) ([]EventHandle, error) {
	var resp struct {
		Session string        `json:"session"`
		Events  []bridgeEvent `json:"events"`
	}
	if err := c.get(ctx, "/events", &resp); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	c.setSession(resp.Session)

	handles := make([]EventHandle, len(resp.Events))
	for i, e := range resp.Events {
		handles[i] = &bridgeHandle{client: c, session: resp.Session, data: e}
	}
	return handles, nil
}

func (c *BridgeClient) GetEvent(ctx context.Context, id int) (EventHandle, error) {
	var resp struct {
		Session string      `json:"session"`
		Event   bridgeEvent `json:"event"`
	}
	if err := c.get(ctx, fmt.Sprintf("/events/%d", id), &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve event %d: %w", id, err)
	}
	c.setSession(resp.Session)
	return &bridgeHandle{client: c, session: resp.Session, data: resp.Event}, nil
}

// RestartSession asks the wrapper to tear down and re-establish the
// client session; every handle issued before this becomes stale.
func (c *BridgeClient) RestartSession(ctx context.Context) error {
	var resp struct {
		Session string `json:"session"`
	}
	if err := c.post(ctx, "/session/restart", &resp); err != nil {
		return fmt.Errorf("failed to restart session: %w", err)
	}
	c.setSession(resp.Session)
	c.logger.Info().Str("session", resp.Session).Msg("client session restarted")
	return nil
}

func (c *BridgeClient) setSession(session string) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

func (c *BridgeClient) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// bridgeHandle is one event snapshot tied to the session that produced
// it; a session change invalidates the handle without I/O.
type bridgeHandle struct {
	client  *BridgeClient
	session string
	data    bridgeEvent
}

func (h *bridgeHandle) ID() int              { return h.data.ID }
func (h *bridgeHandle) StartTime() time.Time { return h.data.StartTime }
func (h *bridgeHandle) IsCompleted() bool    { return h.data.Completed }
func (h *bridgeHandle) Description() string  { return h.data.Description }
func (h *bridgeHandle) Rounds() int          { return h.data.Rounds }

func (h *bridgeHandle) IsLive() bool {
	return h.session != "" && h.session == h.client.currentSession()
}

func (h *bridgeHandle) Players(ctx context.Context) ([]PlayerRecord, error) {
	var resp struct {
		Players []PlayerRecord `json:"players"`
	}
	if err := h.client.get(ctx, fmt.Sprintf("/events/%d/players", h.data.ID), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch roster of event %d: %w", h.data.ID, err)
	}
	return resp.Players, nil
}

func (h *bridgeHandle) Standings(ctx context.Context) ([]StandingRecord, error) {
	var resp struct {
		Standings []bridgeStanding `json:"standings"`
	}
	if err := h.client.get(ctx, fmt.Sprintf("/events/%d/standings", h.data.ID), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch standings of event %d: %w", h.data.ID, err)
	}

	records := make([]StandingRecord, len(resp.Standings))
	for i, s := range resp.Standings {
		rec := StandingRecord{
			Rank:   s.Rank,
			Player: PlayerRecord{ID: s.Player.ID, Name: s.Player.Name},
			Points: s.Points,
			OMWP:   s.OMWP,
			GWP:    s.GWP,
			OGWP:   s.OGWP,
		}
		for _, round := range s.Rounds {
			rec.PreviousMatches = append(rec.PreviousMatches, &bridgeMatchHandle{
				client:   h.client,
				eventID:  h.data.ID,
				playerID: s.Player.ID,
				round:    round,
			})
		}
		records[i] = rec
	}
	return records, nil
}

// bridgeMatchHandle defers the per-round detail read, the expensive
// call the composite builder retries.
type bridgeMatchHandle struct {
	client   *BridgeClient
	eventID  int
	playerID int
	round    int
}

func (m *bridgeMatchHandle) Resolve(ctx context.Context) (MatchRecord, error) {
	var resp bridgeMatch
	path := fmt.Sprintf("/events/%d/players/%d/matches/%d", m.eventID, m.playerID, m.round)
	if err := m.client.get(ctx, path, &resp); err != nil {
		return MatchRecord{}, fmt.Errorf("failed to resolve round %d of event %d: %w", m.round, m.eventID, err)
	}

	rec := MatchRecord{
		ID:      resp.ID,
		Round:   resp.Round,
		Players: toPlayerRecords(resp.Players),
		Winners: toPlayerRecords(resp.Winners),
		Losers:  toPlayerRecords(resp.Losers),
		HasBye:  resp.HasBye,
	}
	for _, g := range resp.Games {
		rec.GameRecords = append(rec.GameRecords, GameRecord{ID: g.ID, Winners: toPlayerRecords(g.Winners)})
	}
	return rec, nil
}

func toPlayerRecords(players []bridgePlayer) []PlayerRecord {
	records := make([]PlayerRecord, len(players))
	for i, p := range players {
		records[i] = PlayerRecord{ID: p.ID, Name: p.Name}
	}
	return records
}

func (c *BridgeClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, fasthttp.MethodGet, path, out)
}

func (c *BridgeClient) post(ctx context.Context, path string, out any) error {
	return c.do(ctx, fasthttp.MethodPost, path, out)
}

func (c *BridgeClient) do(ctx context.Context, method, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return err
		}
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("bridge error: %d", resp.StatusCode())
	}
	return json.Unmarshal(resp.Body(), out)
}
