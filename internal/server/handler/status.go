package handler

import (
	"net/http"
	"time"
)

// BotStatus is the per-bot snapshot the dashboard reads.
type BotStatus struct {
	BotID       string    `json:"bot_id"`
	Symbol      string    `json:"symbol"`
	Algorithm   string    `json:"algorithm"`
	Broker      string    `json:"broker"`
	Value       float64   `json:"value"`
	LastSignal  string    `json:"last_signal"`
	DayStart    float64   `json:"day_start_value"`
	DailyReturn float64   `json:"daily_return"`
	TradingDay  string    `json:"trading_day"`
	Halted      bool      `json:"halted"`
	LastOutcome string    `json:"last_outcome"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusSource supplies current snapshots for every running bot.
type StatusSource interface {
	BotStatuses() []BotStatus
}

// StatusHandler serves read-only bot status for dashboards and operators.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler reading from source.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// ListBots responds with the status of every running bot.
// GET /api/bots
func (h *StatusHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bots": h.source.BotStatuses(),
	})
}

// GetBot responds with the status of a single bot by ID.
// GET /api/bots/{id}
func (h *StatusHandler) GetBot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, s := range h.source.BotStatuses() {
		if s.BotID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown bot: "+id)
}
