// Package algo defines the pluggable signal-algorithm interface and the
// built-in SMA/EMA crossover implementations. Algorithms are pure with
// respect to the bot runtime: they read market data and return a signal,
// nothing else.
package algo

import (
	"context"

	"github.com/blingworks/blingbot/internal/domain"
)

// Algorithm produces a BUY/SELL/NONE signal for a symbol over a historical
// window. Implementations may keep internal computation state but must not
// observe bot state.
type Algorithm interface {
	Name() string
	GetSignal(ctx context.Context, symbol string, w domain.Window) (domain.Signal, error)
}

// Factory builds an Algorithm over the given market-data source. Factories
// are registered by name and resolved at bot construction time.
type Factory func(bars domain.BarSource) Algorithm
