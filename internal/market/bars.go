package market

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/blingworks/blingbot/internal/domain"
)

// CachedBars is a read-through wrapper around a BarSource. Cache misses go
// to the upstream source and populate the cache; cache errors degrade to a
// direct upstream fetch so a flaky cache never blocks a tick.
type CachedBars struct {
	source domain.BarSource
	cache  domain.BarCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedBars wraps source with the given cache. Windows are cached for
// ttl, which should be shorter than the bot tick interval.
func NewCachedBars(source domain.BarSource, cache domain.BarCache, ttl time.Duration, logger *slog.Logger) *CachedBars {
	return &CachedBars{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "bar_cache")),
	}
}

func (cb *CachedBars) GetBars(ctx context.Context, symbol string, w domain.Window) ([]domain.Candle, error) {
	bars, err := cb.cache.GetBars(ctx, symbol, w)
	if err == nil {
		return bars, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		cb.logger.Warn("cache read failed, falling through",
			slog.String("symbol", symbol),
			slog.String("window", w.String()),
			slog.String("error", err.Error()))
	}

	bars, err = cb.source.GetBars(ctx, symbol, w)
	if err != nil {
		return nil, err
	}

	if err := cb.cache.SetBars(ctx, symbol, w, bars, cb.ttl); err != nil {
		cb.logger.Warn("cache write failed",
			slog.String("symbol", symbol),
			slog.String("window", w.String()),
			slog.String("error", err.Error()))
	}
	return bars, nil
}

var _ domain.BarSource = (*CachedBars)(nil)
