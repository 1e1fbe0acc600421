package domain

import "time"

// BotState is the durable record of one bot. It is owned exclusively by the
// bot's runtime: the runtime loads it once at construction and saves it at
// the end of every tick. Rows are partitioned by BotID, so bots never
// contend on each other's state.
//
// Invariants:
//   - DayStartValue is set exactly once per trading day, before any position
//     mutation on that day.
//   - Halted == true suppresses all position mutation until the next
//     day-boundary reset.
//   - CurrentValue never goes negative.
type BotState struct {
	BotID         string
	Symbol        string
	CurrentValue  float64
	LastSignal    Signal
	DayStartValue float64
	// TradingDay is the exchange-local calendar date ("2006-01-02") the
	// day-scoped fields belong to. Day rollover happens at exchange-local
	// midnight.
	TradingDay string
	Halted     bool
	UpdatedAt  time.Time
}

// NewBotState returns the initial state for a bot that has never persisted
// anything: full initial value, no committed signal, day bookkeeping unset
// so the first tick establishes the baseline.
func NewBotState(botID, symbol string, initialValue float64) BotState {
	return BotState{
		BotID:        botID,
		Symbol:       symbol,
		CurrentValue: initialValue,
		LastSignal:   SignalNone,
	}
}

// DailyReturn is the day-relative fractional P&L, or 0 when the baseline is
// not yet established.
func (s BotState) DailyReturn() float64 {
	if s.DayStartValue == 0 {
		return 0
	}
	return (s.CurrentValue - s.DayStartValue) / s.DayStartValue
}
