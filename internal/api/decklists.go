package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/videre-project/MTGOBot/internal/config"
	"github.com/videre-project/MTGOBot/internal/constants"
	"github.com/videre-project/MTGOBot/internal/domain"
)

// ErrNotPublished is returned when no decklist publication exists yet
// for an event under any candidate slug. Publications lag events by
// hours to days and some never appear, so callers treat this as an
// expected empty result.
var ErrNotPublished = errors.New("decklists not published")

const decklistBaseURL = "https://www.mtgo.com/decklist"

// DecklistClient fetches the primary source's delayed decklist
// publications, keyed by a slug built from event name, date and id.
type DecklistClient struct {
	baseURL      string
	offsetBefore int
	offsetAfter  int
	client       *fasthttp.Client
	logger       zerolog.Logger
}

func NewDecklistClient(cfg *config.Config, logger zerolog.Logger) *DecklistClient {
	return &DecklistClient{
		baseURL:      decklistBaseURL,
		offsetBefore: cfg.DateOffsetBefore,
		offsetAfter:  cfg.DateOffsetAfter,
		client: &fasthttp.Client{
			MaxConnsPerHost:     8,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

// DecklistRecord is one published deck, keyed to the event's player
// roster by upstream player id.
type DecklistRecord struct {
	DeckID     int
	PlayerID   int
	PlayerName string
	Mainboard  []domain.CardQuantity
	Sideboard  []domain.CardQuantity
}

// Slug builds the publication's URL slug for one candidate date:
// lowercased hyphenated event name, the date, then the event id with no
// separator, e.g. "saturday-night-standard-2024-05-04111222".
func Slug(name string, date time.Time, eventID int) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	return fmt.Sprintf("%s-%s%d", slug, date.Format("2006-01-02"), eventID)
}

// CandidateSlugs lists the slugs to try in order: the event's own date
// first, then day offsets from -before to +after that absorb timezone
// skew between the event's recorded start and the publication's date
// key.
func CandidateSlugs(name string, date time.Time, eventID, before, after int) []string {
	slugs := []string{Slug(name, date, eventID)}
	for offset := -before; offset <= after; offset++ {
		if offset == 0 {
			continue
		}
		slugs = append(slugs, Slug(name, date.AddDate(0, 0, offset), eventID))
	}
	return slugs
}

// CanonicalURLs lists the primary-source URLs for an event across the
// same date offsets; the archetype matcher compares these against the
// secondary site's declared backlinks.
func CanonicalURLs(name string, date time.Time, eventID, before, after int) []string {
	slugs := CandidateSlugs(name, date, eventID, before, after)
	urls := make([]string, len(slugs))
	for i, s := range slugs {
		urls[i] = decklistBaseURL + "/" + s
	}
	return urls
}

type decklistResponse struct {
	Decklists []struct {
		DeckID     int    `json:"decklist_id,string"`
		PlayerID   int    `json:"loginid,string"`
		PlayerName string `json:"player"`
		Main       []struct {
			ID       int    `json:"docid,string"`
			Name     string `json:"card_name"`
			Quantity int    `json:"qty,string"`
		} `json:"main_deck"`
		Side []struct {
			ID       int    `json:"docid,string"`
			Name     string `json:"card_name"`
			Quantity int    `json:"qty,string"`
		} `json:"sideboard_deck"`
	} `json:"decklists"`
}

// GetDecklists tries each candidate slug in order and returns the first
// publication found, or ErrNotPublished if none exists yet.
func (c *DecklistClient) GetDecklists(ctx context.Context, eventID int, name string, date time.Time) ([]DecklistRecord, error) {
	for _, slug := range CandidateSlugs(name, date, eventID, c.offsetBefore, c.offsetAfter) {
		url := c.baseURL + "/" + slug
		resp, err := doRequest[decklistResponse](ctx, c.client, url)
		if errors.Is(err, errNotFound) {
			c.logger.Debug().Int("event_id", eventID).Str("slug", slug).Msg("no decklists under slug")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch decklists for event %d: %w", eventID, err)
		}

		records := make([]DecklistRecord, 0, len(resp.Decklists))
		for _, d := range resp.Decklists {
			rec := DecklistRecord{
				DeckID:     d.DeckID,
				PlayerID:   d.PlayerID,
				PlayerName: d.PlayerName,
			}
			for _, card := range d.Main {
				rec.Mainboard = append(rec.Mainboard, domain.CardQuantity{ID: card.ID, Name: card.Name, Quantity: card.Quantity})
			}
			for _, card := range d.Side {
				rec.Sideboard = append(rec.Sideboard, domain.CardQuantity{ID: card.ID, Name: card.Name, Quantity: card.Quantity})
			}
			records = append(records, rec)
		}
		c.logger.Debug().Int("event_id", eventID).Str("slug", slug).Int("count", len(records)).Msg("decklists fetched")
		return records, nil
	}
	return nil, ErrNotPublished
}

var errNotFound = errors.New("not found")

// doRequest performs a GET and decodes the JSON body. 404s map to
// errNotFound so callers can distinguish absence from failure.
func doRequest[T any](ctx context.Context, client *fasthttp.Client, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode() == fasthttp.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
