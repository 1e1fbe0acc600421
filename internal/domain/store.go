package domain

import (
	"context"
	"time"
)

// BotStateStore persists per-bot state, keyed by bot ID. Load returns
// ErrNotFound for a bot that has never saved. Save must be atomic with
// respect to concurrent reads of the same ID; the per-bot single-flight
// rule in the runtime guarantees there is never more than one writer per ID.
type BotStateStore interface {
	Load(ctx context.Context, botID string) (BotState, error)
	Save(ctx context.Context, state BotState) error
}

// BarSource provides historical OHLCV aggregates for a symbol and window.
// Implementations may block on network I/O; callers bound them with a
// context deadline.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, w Window) ([]Candle, error)
}

// BarCache stores recently fetched candle windows so several bots polling
// the same symbol within one interval share a single upstream request.
type BarCache interface {
	GetBars(ctx context.Context, symbol string, w Window) ([]Candle, error)
	SetBars(ctx context.Context, symbol string, w Window, bars []Candle, ttl time.Duration) error
}

// RateLimiter provides distributed rate limiting, shared across replicas.
type RateLimiter interface {
	// Allow reports whether a request for key fits under limit requests per
	// window, counting the request when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Broker is the narrow execution surface the runtime consumes. GetPosition
// reports the current per-symbol paper value. SetPosition moves the paper
// position to the one implied by desired (BUY = long, SELL = flat) and
// returns the realized per-symbol value after the move. SetPosition is
// idempotent: requesting a position the broker already holds is a no-op
// that returns the current value.
type Broker interface {
	Name() string
	GetPosition(ctx context.Context, symbol string) (float64, error)
	SetPosition(ctx context.Context, symbol string, desired Signal) (float64, error)
}
