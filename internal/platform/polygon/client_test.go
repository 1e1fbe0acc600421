package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blingworks/blingbot/internal/domain"
)

func TestGetBars(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"ticker": "SPY",
			"status": "OK",
			"resultsCount": 2,
			"results": [
				{"t": 1767364200000, "o": 100, "h": 101, "l": 99, "c": 100.5, "v": 1200, "vw": 100.2},
				{"t": 1767364500000, "o": 100.5, "h": 102, "l": 100, "c": 101.8, "v": 900, "vw": 101.1}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key").WithClock(func() time.Time {
		return time.Date(2026, 1, 2, 16, 0, 0, 0, time.UTC)
	})

	bars, err := c.GetBars(context.Background(), "SPY", domain.Window{Timespan: "minute", Multiplier: 5, DaysBack: 3})
	require.NoError(t, err)

	assert.Equal(t, "/v2/aggs/ticker/SPY/range/5/minute/2025-12-30/2026-01-02", gotPath)
	assert.Contains(t, gotQuery, "apiKey=test-key")
	assert.Contains(t, gotQuery, "adjusted=true")
	assert.Contains(t, gotQuery, "sort=asc")

	require.Len(t, bars, 2)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, 101.8, bars[1].Close)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
}

func TestGetBarsEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ticker": "SPY", "status": "OK", "resultsCount": 0, "results": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	_, err := c.GetBars(context.Background(), "SPY", domain.Window{Timespan: "minute", Multiplier: 5, DaysBack: 3})
	assert.ErrorIs(t, err, domain.ErrNoMarketData)
}

func TestGetBarsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"status": "ERROR", "error": "rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	_, err := c.GetBars(context.Background(), "SPY", domain.Window{Timespan: "minute", Multiplier: 5, DaysBack: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestLastPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/SPY/prev", r.URL.Path)
		_, _ = w.Write([]byte(`{"ticker": "SPY", "status": "OK", "resultsCount": 1, "results": [{"t": 1767364200000, "c": 412.34}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")

	price, err := c.LastPrice(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, 412.34, price)
}
