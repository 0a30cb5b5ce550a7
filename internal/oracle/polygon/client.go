// Package polygon prices symbols from the Polygon.io aggregates API.
package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/oracle"
)

const DefaultBaseURL = "https://api.polygon.io"

// ErrRateLimited is returned on HTTP 429; callers may retry later.
var ErrRateLimited = errors.New("polygon rate limit exceeded")

// Client for the Polygon.io REST API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Polygon client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("client", "polygon").Logger(),
	}
}

type prevCloseResponse struct {
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	Results      []struct {
		Close decimal.Decimal `json:"c"`
	} `json:"results"`
}

type openCloseResponse struct {
	Status string          `json:"status"`
	Close  decimal.Decimal `json:"close"`
}

// GetPrice returns the previous session's close for a nil date, or the close
// of the given trading day.
func (c *Client) GetPrice(ctx context.Context, symbol string, date *time.Time) (decimal.Decimal, error) {
	ticker := url.PathEscape(strings.ToUpper(strings.TrimSpace(symbol)))

	if date == nil {
		var resp prevCloseResponse
		if err := c.get(ctx, fmt.Sprintf("/v2/aggs/ticker/%s/prev", ticker), &resp); err != nil {
			return decimal.Zero, err
		}
		if len(resp.Results) == 0 || !resp.Results[0].Close.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: %s (no previous close)", oracle.ErrNoPrice, symbol)
		}
		return resp.Results[0].Close, nil
	}

	day := date.UTC().Format("2006-01-02")
	var resp openCloseResponse
	if err := c.get(ctx, fmt.Sprintf("/v1/open-close/%s/%s", ticker, day), &resp); err != nil {
		return decimal.Zero, err
	}
	if !resp.Close.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", oracle.ErrNoPrice, symbol, day)
	}
	return resp.Close, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	endpoint := c.baseURL + path + "?adjusted=true"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	// The key travels in a header so it never appears in URLs or their errors.
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.log.Debug().Str("path", path).Msg("Fetching price")
	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = path
		}
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", oracle.ErrNoPrice, path)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

var _ interfaces.PriceOracle = (*Client)(nil)
