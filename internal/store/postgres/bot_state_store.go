package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blingworks/blingbot/internal/domain"
)

// BotStateStore implements domain.BotStateStore using PostgreSQL.
type BotStateStore struct {
	pool *pgxpool.Pool
}

// NewBotStateStore creates a new BotStateStore backed by the given connection pool.
func NewBotStateStore(pool *pgxpool.Pool) *BotStateStore {
	return &BotStateStore{pool: pool}
}

// Load retrieves the persisted state for a bot by its ID. It returns
// domain.ErrNotFound for a bot that has never saved.
func (s *BotStateStore) Load(ctx context.Context, botID string) (domain.BotState, error) {
	const query = `
		SELECT bot_id, symbol, current_value, last_signal, day_start_value,
		       trading_day, halted, updated_at
		FROM bot_states WHERE bot_id = $1`

	var state domain.BotState
	var lastSignal string

	err := s.pool.QueryRow(ctx, query, botID).Scan(
		&state.BotID, &state.Symbol, &state.CurrentValue, &lastSignal,
		&state.DayStartValue, &state.TradingDay, &state.Halted, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BotState{}, domain.ErrNotFound
		}
		return domain.BotState{}, fmt.Errorf("postgres: load bot state %s: %w", botID, err)
	}

	state.LastSignal = domain.ParseSignal(lastSignal)
	return state, nil
}

// Save upserts a bot's state. The single-row UPSERT keeps the write atomic;
// readers see either the previous snapshot or the new one, never a mix.
func (s *BotStateStore) Save(ctx context.Context, state domain.BotState) error {
	const query = `
		INSERT INTO bot_states (bot_id, symbol, current_value, last_signal,
			day_start_value, trading_day, halted, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (bot_id) DO UPDATE SET
			symbol          = EXCLUDED.symbol,
			current_value   = EXCLUDED.current_value,
			last_signal     = EXCLUDED.last_signal,
			day_start_value = EXCLUDED.day_start_value,
			trading_day     = EXCLUDED.trading_day,
			halted          = EXCLUDED.halted,
			updated_at      = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		state.BotID, state.Symbol, state.CurrentValue, string(state.LastSignal),
		state.DayStartValue, state.TradingDay, state.Halted, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save bot state %s: %w", state.BotID, err)
	}
	return nil
}

var _ domain.BotStateStore = (*BotStateStore)(nil)
