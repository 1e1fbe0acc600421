package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blingworks/blingbot/internal/domain"
)

// BarCache implements domain.BarCache using JSON-serialized candle windows.
//
// Key schema:
//
//	bars:{symbol}:{window} - string value containing the JSON candle slice
type BarCache struct {
	rdb *redis.Client
}

// NewBarCache creates a BarCache backed by the given Client.
func NewBarCache(c *Client) *BarCache {
	return &BarCache{rdb: c.Underlying()}
}

func barsKey(symbol string, w domain.Window) string {
	return fmt.Sprintf("bars:%s:%s", symbol, w)
}

// GetBars retrieves a cached candle window. It returns domain.ErrNotFound
// when the key does not exist or has expired.
func (bc *BarCache) GetBars(ctx context.Context, symbol string, w domain.Window) ([]domain.Candle, error) {
	data, err := bc.rdb.Get(ctx, barsKey(symbol, w)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get bars %s %s: %w", symbol, w, err)
	}

	var bars []domain.Candle
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("redis: unmarshal bars %s %s: %w", symbol, w, err)
	}
	return bars, nil
}

// SetBars stores a candle window with the given TTL.
func (bc *BarCache) SetBars(ctx context.Context, symbol string, w domain.Window, bars []domain.Candle, ttl time.Duration) error {
	data, err := json.Marshal(bars)
	if err != nil {
		return fmt.Errorf("redis: marshal bars %s %s: %w", symbol, w, err)
	}
	if err := bc.rdb.Set(ctx, barsKey(symbol, w), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set bars %s %s: %w", symbol, w, err)
	}
	return nil
}

var _ domain.BarCache = (*BarCache)(nil)
