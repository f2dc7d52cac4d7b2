package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/videre-project/MTGOBot/internal/constants"
)

const goldfishBaseURL = "https://www.mtggoldfish.com"

// GoldfishClient fetches the secondary classification site. The two
// sites share no common event id, so callers match events by name and
// date proximity and confirm via each candidate's declared backlink to
// the primary source.
type GoldfishClient struct {
	baseURL string
	client  *fasthttp.Client
	logger  zerolog.Logger
}

func NewGoldfishClient(logger zerolog.Logger) *GoldfishClient {
	return &GoldfishClient{
		baseURL: goldfishBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     8,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

// TournamentResult is one hit from the secondary site's search endpoint.
type TournamentResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// EventDetail is the parsed header of one tournament page: the declared
// backlink to the primary source and the page's labeled archetype
// groups (label -> the site's archetype id).
type EventDetail struct {
	Backlink        string         `json:"backlink"`
	ArchetypeGroups map[string]int `json:"archetype_groups"`
}

// StandingsRow is one row of the site's paginated standings table.
type StandingsRow struct {
	RawName    string `json:"raw_name"`
	PlayerName string `json:"player_name"`
	DeckID     int    `json:"deck_id"`
}

// SearchEvents queries the tournament search endpoint for a name
// prefix over an inclusive date range, returned in the site's result
// order.
func (c *GoldfishClient) SearchEvents(ctx context.Context, namePrefix string, from, to time.Time) ([]TournamentResult, error) {
	endpoint := fmt.Sprintf("%s/tournament_searches.json?name=%s&date_from=%s&date_to=%s",
		c.baseURL,
		url.QueryEscape(namePrefix),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"))

	resp, err := doRequest[struct {
		Tournaments []TournamentResult `json:"tournaments"`
	}](ctx, c.client, endpoint)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tournament search for %q failed: %w", namePrefix, err)
	}
	c.logger.Debug().Str("prefix", namePrefix).Int("count", len(resp.Tournaments)).Msg("tournament search completed")
	return resp.Tournaments, nil
}

// GetEventDetail fetches one candidate tournament page.
func (c *GoldfishClient) GetEventDetail(ctx context.Context, pageURL string) (*EventDetail, error) {
	detail, err := doRequest[EventDetail](ctx, c.client, c.absolute(pageURL))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tournament page %s: %w", pageURL, err)
	}
	return detail, nil
}

// GetStandingsPage fetches one page of a tournament's standings table.
// An empty slice means the table is exhausted.
func (c *GoldfishClient) GetStandingsPage(ctx context.Context, pageURL string, page int) ([]StandingsRow, error) {
	endpoint := fmt.Sprintf("%s?page=%d", c.absolute(pageURL), page)
	resp, err := doRequest[struct {
		Rows []StandingsRow `json:"rows"`
	}](ctx, c.client, endpoint)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch standings page %d of %s: %w", page, pageURL, err)
	}
	return resp.Rows, nil
}

// GetDeckArchetypeLabel fetches one deck's detail page and returns its
// declared archetype label, or "" when the deck carries none.
func (c *GoldfishClient) GetDeckArchetypeLabel(ctx context.Context, deckID int) (string, error) {
	endpoint := fmt.Sprintf("%s/deck/%d.json", c.baseURL, deckID)
	resp, err := doRequest[struct {
		Archetype string `json:"archetype"`
	}](ctx, c.client, endpoint)
	if errors.Is(err, errNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch deck %d: %w", deckID, err)
	}
	return resp.Archetype, nil
}

func (c *GoldfishClient) absolute(pageURL string) string {
	if len(pageURL) > 0 && pageURL[0] == '/' {
		return c.baseURL + pageURL
	}
	return pageURL
}
