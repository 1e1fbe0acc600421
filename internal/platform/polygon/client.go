// Package polygon provides a REST client for the Polygon.io stocks API.
// It supplies the historical aggregate bars the signal algorithms run on
// and the previous-close marks used to price paper fills.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/blingworks/blingbot/internal/domain"
)

// DefaultBaseURL is the public Polygon.io API root.
const DefaultBaseURL = "https://api.polygon.io"

// Client is the REST client for the Polygon.io aggregates API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Polygon REST client. An empty baseURL falls back
// to DefaultBaseURL.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// WithClock overrides the client's notion of the current time. Test use.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// aggBar is a single aggregate bar as returned by the Polygon API.
type aggBar struct {
	Timestamp int64   `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	VWAP      float64 `json:"vw"`
}

type aggsResponse struct {
	Ticker       string   `json:"ticker"`
	Status       string   `json:"status"`
	ResultsCount int      `json:"resultsCount"`
	Results      []aggBar `json:"results"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// GetBars returns aggregate bars for the symbol over the trailing window,
// oldest first. A successful response with no bars maps to
// domain.ErrNoMarketData.
func (c *Client) GetBars(ctx context.Context, symbol string, w domain.Window) ([]domain.Candle, error) {
	to := c.now().UTC()
	from := to.AddDate(0, 0, -w.DaysBack)

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		url.PathEscape(symbol), w.Multiplier, url.PathEscape(w.Timespan),
		from.Format("2006-01-02"), to.Format("2006-01-02"))

	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "50000")

	body, err := c.doRequest(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("polygon: get bars %s %s: %w", symbol, w, err)
	}

	var resp aggsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polygon: decode bars: %w", err)
	}

	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("polygon: bars %s %s: %w", symbol, w, domain.ErrNoMarketData)
	}

	candles := make([]domain.Candle, len(resp.Results))
	for i, b := range resp.Results {
		candles[i] = domain.Candle{
			Timestamp: time.UnixMilli(b.Timestamp).UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			VWAP:      b.VWAP,
		}
	}
	return candles, nil
}

// LastPrice returns the previous-close price for the symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(symbol))

	params := url.Values{}
	params.Set("adjusted", "true")

	body, err := c.doRequest(ctx, path, params)
	if err != nil {
		return 0, fmt.Errorf("polygon: last price %s: %w", symbol, err)
	}

	var resp aggsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("polygon: decode last price: %w", err)
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("polygon: last price %s: %w", symbol, domain.ErrNoMarketData)
	}
	return resp.Results[len(resp.Results)-1].Close, nil
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("apiKey", c.apiKey)
	fullURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = apiErr.Message
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("not found: %s", msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s", msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}

var _ domain.BarSource = (*Client)(nil)
