package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	statuses []BotStatus
}

func (s *staticSource) BotStatuses() []BotStatus { return s.statuses }

func TestListBots(t *testing.T) {
	h := NewStatusHandler(&staticSource{statuses: []BotStatus{
		{BotID: "bot-1", Symbol: "SPY", Value: 1050, LastSignal: "BUY"},
		{BotID: "bot-2", Symbol: "QQQ", Value: 940, Halted: true},
	}})

	rec := httptest.NewRecorder()
	h.ListBots(rec, httptest.NewRequest(http.MethodGet, "/api/bots", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Bots []BotStatus `json:"bots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Bots, 2)
	assert.Equal(t, "bot-1", body.Bots[0].BotID)
	assert.True(t, body.Bots[1].Halted)
}

func TestGetBot(t *testing.T) {
	h := NewStatusHandler(&staticSource{statuses: []BotStatus{
		{BotID: "bot-1", Symbol: "SPY"},
	}})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bots/{id}", h.GetBot)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bots/bot-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status BotStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "SPY", status.Symbol)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/bots/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubPinger struct{ err error }

func (p *stubPinger) Ping(context.Context) error { return p.err }

func TestHealthCheckReportsDegradedDependencies(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"postgres": &stubPinger{},
		"redis":    &stubPinger{err: errors.New("connection refused")},
		"skipped":  nil,
	})

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["postgres"])
	assert.Contains(t, body.Dependencies["redis"], "connection refused")
	assert.NotContains(t, body.Dependencies, "skipped")
}
