package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
)

// maxFeedBody bounds how much of a feed response is read.
const maxFeedBody = 64 << 10

// FeedQuote is one price-per-gram pair published by the rate feed.
type FeedQuote struct {
	Currency string  `json:"currency"`
	Unit     string  `json:"unit"`
	Gold     float64 `json:"gold"`
	Silver   float64 `json:"silver"`
}

// Feed is an external source of live rates.
type Feed interface {
	Fetch(ctx context.Context) (FeedQuote, error)
}

// HTTPFeed polls a JSON rate endpoint authenticated with X-API-Key.
type HTTPFeed struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPFeed returns a feed client whose every call is bounded by timeout.
func NewHTTPFeed(url, apiKey string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the feed's current quote. Any transport failure, non-2xx
// status, malformed body or unexpected denomination is reported as
// apperr.ErrExternalUnavailable.
func (f *HTTPFeed) Fetch(ctx context.Context) (FeedQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return FeedQuote{}, fmt.Errorf("%w: build feed request: %v", apperr.ErrExternalUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("X-API-Key", f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FeedQuote{}, fmt.Errorf("%w: rate feed: %v", apperr.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return FeedQuote{}, fmt.Errorf("%w: rate feed returned %d", apperr.ErrExternalUnavailable, resp.StatusCode)
	}

	var q FeedQuote
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBody)).Decode(&q); err != nil {
		return FeedQuote{}, fmt.Errorf("%w: decode rate feed: %v", apperr.ErrExternalUnavailable, err)
	}
	if !strings.EqualFold(q.Currency, CurrencyINR) || !strings.EqualFold(q.Unit, UnitGram) {
		return FeedQuote{}, fmt.Errorf("%w: rate feed quoted %s per %s", apperr.ErrExternalUnavailable, q.Currency, q.Unit)
	}
	for _, v := range []float64{q.Gold, q.Silver} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return FeedQuote{}, fmt.Errorf("%w: rate feed returned a non-positive rate", apperr.ErrExternalUnavailable)
		}
	}
	return q, nil
}
