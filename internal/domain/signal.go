package domain

import (
	"fmt"
	"strings"
	"time"
)

// Signal is the three-valued trading signal produced by an algorithm.
// None means "no opinion this cycle"; the bot runtime falls back to the
// last committed signal (or a conservative SELL) when it sees None.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalNone Signal = "NONE"
)

// ParseSignal normalizes a stored or transported signal string. Unknown
// values map to None so that a corrupt persisted row degrades to the
// conservative default instead of an invented position.
func ParseSignal(s string) Signal {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SignalBuy
	case "SELL":
		return SignalSell
	default:
		return SignalNone
	}
}

// Position is the paper position implied by the last committed signal.
type Position string

const (
	PositionLong    Position = "long"
	PositionFlat    Position = "flat"
	PositionUnknown Position = "unknown"
)

// Position derives the implied paper position: long after a committed BUY,
// flat after a committed SELL, unknown before any signal was committed.
func (s Signal) Position() Position {
	switch s {
	case SignalBuy:
		return PositionLong
	case SignalSell:
		return PositionFlat
	default:
		return PositionUnknown
	}
}

// Candle is one OHLCV aggregate bar from the market-data provider.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	VWAP      float64
}

// Window describes the historical-data slice an algorithm computes over:
// Multiplier x Timespan bars (e.g. 5-minute) going DaysBack days into the past.
type Window struct {
	Timespan   string // "minute", "hour", "day"
	Multiplier int
	DaysBack   int
}

func (w Window) String() string {
	return fmt.Sprintf("%d-%s/%dd", w.Multiplier, w.Timespan, w.DaysBack)
}
