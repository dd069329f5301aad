package predictionmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"spotarb/internal/types"
)

// windowSeconds is the fixed cadence on which the venue rolls over to a
// new short-horizon contract (spec.md §4.3 "15-minute window").
const windowSeconds int64 = 15 * 60

// Catalog looks up short-horizon contracts by slug against the
// prediction-market catalog HTTP API.
type Catalog struct {
	client  *resty.Client
	baseURL string
	prefix  string
}

// NewCatalog constructs a Catalog against baseURL (e.g.
// "https://gamma-api.polymarket.com") using slugPrefix to build window
// slugs (e.g. "bitcoin-up-or-down").
func NewCatalog(baseURL, slugPrefix string) *Catalog {
	return &Catalog{
		client:  resty.New().SetTimeout(10 * time.Second),
		baseURL: baseURL,
		prefix:  slugPrefix,
	}
}

// windowFloor rounds t down to the start of its 15-minute window.
func windowFloor(t time.Time) time.Time {
	e := t.Unix()
	floor := e - e%windowSeconds
	return time.Unix(floor, 0).UTC()
}

func slugFor(prefix string, windowStart time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, windowStart.Unix())
}

// fetchSlug issues the catalog GET for one slug. A non-2xx response or
// transport error both mean "not found" from the caller's perspective.
func (c *Catalog) fetchSlug(ctx context.Context, slug string) (*types.CatalogMarket, error) {
	var m types.CatalogMarket
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&m).
		Get(c.baseURL + "/markets/slug/" + slug)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("catalog slug %q: status %d", slug, resp.StatusCode())
	}
	return &m, nil
}

// Discover tries the current window's slug, then the next window's,
// then the previous window's (spec.md §4.3), returning the first
// result that is accepting orders and not closed.
func (c *Catalog) Discover(ctx context.Context, now time.Time) (types.ActiveMarket, error) {
	current := windowFloor(now)
	candidates := []time.Time{
		current,
		current.Add(time.Duration(windowSeconds) * time.Second),
		current.Add(-time.Duration(windowSeconds) * time.Second),
	}

	var lastErr error
	for _, ws := range candidates {
		slug := slugFor(c.prefix, ws)
		m, err := c.fetchSlug(ctx, slug)
		if err != nil {
			lastErr = err
			continue
		}
		if !m.AcceptingOrders || m.Closed {
			lastErr = fmt.Errorf("slug %q not accepting orders (closed=%v)", slug, m.Closed)
			continue
		}
		return convertToActiveMarket(m, ws)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate window slug resolved")
	}
	return types.ActiveMarket{}, lastErr
}

func convertToActiveMarket(m *types.CatalogMarket, windowStart time.Time) (types.ActiveMarket, error) {
	var tokenIDs [2]string
	if err := json.Unmarshal([]byte(m.ClobTokenIds), &tokenIDs); err != nil {
		return types.ActiveMarket{}, fmt.Errorf("parse clobTokenIds: %w", err)
	}

	start := windowStart
	if t, ok := parseTimestamp(m.EventStartTime); ok {
		start = t
	} else if len(m.Events) > 0 {
		if t, ok := parseTimestamp(m.Events[0].StartTime); ok {
			start = t
		}
	}

	end := start.Add(time.Duration(windowSeconds) * time.Second)
	if t, ok := parseTimestamp(m.EndDate); ok {
		end = t
	}

	return types.ActiveMarket{
		ConditionID: m.ConditionID,
		Slug:        m.Slug,
		Title:       m.Question,
		UpTokenID:   tokenIDs[0],
		DownTokenID: tokenIDs[1],
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
