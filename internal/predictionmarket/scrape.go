package predictionmarket

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// defaultSanityRange is BTC-specific; NewScraper takes the range as a
// parameter and falls back to this value only when given a zero range.
var defaultSanityRange = [2]float64{10000, 500000}

const eventPageBaseURL = "https://polymarket.com/event/"

// openPricePattern matches an embedded JSON numeric literal of the
// shape "openPrice":<number> anywhere in the page body. A regexp is
// used rather than an HTML/DOM library because the target is a single
// embedded JSON value, not a DOM traversal.
var openPricePattern = regexp.MustCompile(`"openPrice"\s*:\s*([0-9]+(?:\.[0-9]+)?)`)

// Scraper extracts a window's target price from its event page.
type Scraper struct {
	client      *resty.Client
	sanityRange [2]float64
}

// NewScraper constructs a Scraper using the given sanity range for
// accepting a scraped value (spec.md §4.3 defaults to BTC's
// [10000, 500000]).
func NewScraper(sanityRange [2]float64) *Scraper {
	if sanityRange == ([2]float64{}) {
		sanityRange = defaultSanityRange
	}
	return &Scraper{
		client:      resty.New().SetTimeout(10 * time.Second),
		sanityRange: sanityRange,
	}
}

// ScrapeTargetPrice fetches the event page for slug and returns the
// last in-range "openPrice" occurrence, or ok=false if none was found.
func (s *Scraper) ScrapeTargetPrice(ctx context.Context, slug string) (float64, bool, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36").
		Get(eventPageBaseURL + slug)
	if err != nil {
		return 0, false, err
	}
	if resp.IsError() {
		return 0, false, nil
	}

	v, ok := extractOpenPrice(resp.String(), s.sanityRange)
	return v, ok, nil
}

// extractOpenPrice returns the last in-range "openPrice" occurrence in
// body, or ok=false if none falls within sanityRange.
func extractOpenPrice(body string, sanityRange [2]float64) (float64, bool) {
	matches := openPricePattern.FindAllStringSubmatch(body, -1)
	var found float64
	ok := false
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if v >= sanityRange[0] && v <= sanityRange[1] {
			found = v
			ok = true
		}
	}
	return found, ok
}
