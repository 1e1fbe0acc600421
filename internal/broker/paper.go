// Package broker provides the execution backends bots trade through. The
// paper broker simulates fills in memory against live marks; the alpaca
// broker routes the same position changes to an Alpaca paper account.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/blingworks/blingbot/internal/domain"
)

// PriceSource supplies the mark used to value and fill simulated positions.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// account is one symbol's simulated book. Either cash or qty is nonzero,
// never both, because fills always use the full balance.
type account struct {
	cash float64
	qty  float64
}

// Paper is an in-memory broker. Each symbol gets an isolated account that
// must be funded before use; fills execute at the PriceSource mark with no
// slippage or commission.
type Paper struct {
	prices PriceSource
	logger *slog.Logger

	mu       sync.Mutex
	accounts map[string]*account
}

// NewPaper creates a paper broker that marks positions via prices.
func NewPaper(prices PriceSource, logger *slog.Logger) *Paper {
	return &Paper{
		prices:   prices,
		logger:   logger.With(slog.String("component", "paper_broker")),
		accounts: make(map[string]*account),
	}
}

func (p *Paper) Name() string { return "paper" }

// Fund opens (or replaces) the account for symbol with the given cash
// balance and no position.
func (p *Paper) Fund(symbol string, cash float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[symbol] = &account{cash: cash}
}

// GetPosition returns the account's current value, cash plus position
// marked at the latest price. An unfunded symbol maps to domain.ErrNotFound.
func (p *Paper) GetPosition(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	acct, ok := p.accounts[symbol]
	p.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("broker: account %s: %w", symbol, domain.ErrNotFound)
	}

	if acct.qty == 0 {
		return acct.cash, nil
	}
	mark, err := p.prices.LastPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("broker: mark %s: %w", symbol, err)
	}
	return acct.cash + acct.qty*mark, nil
}

// SetPosition moves the account to the position implied by desired and
// returns the account value after the move. Requesting the position the
// account already holds is a no-op.
func (p *Paper) SetPosition(ctx context.Context, symbol string, desired domain.Signal) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[symbol]
	if !ok {
		return 0, fmt.Errorf("broker: account %s: %w", symbol, domain.ErrNotFound)
	}

	target := desired.Position()
	if target != domain.PositionLong && target != domain.PositionFlat {
		return 0, fmt.Errorf("broker: set position %s: signal %q implies no position", symbol, desired)
	}

	// Idempotent no-ops that do not touch the position avoid a mark fetch
	// only when the account is all cash.
	if target == domain.PositionFlat && acct.qty == 0 {
		return acct.cash, nil
	}

	mark, err := p.prices.LastPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("broker: mark %s: %w", symbol, err)
	}

	switch {
	case target == domain.PositionLong && acct.qty == 0:
		qty := acct.cash / mark
		p.logger.Info("paper fill",
			slog.String("order_id", uuid.New().String()),
			slog.String("symbol", symbol),
			slog.String("side", "buy"),
			slog.Float64("qty", qty),
			slog.Float64("price", mark))
		acct.qty = qty
		acct.cash = 0

	case target == domain.PositionFlat && acct.qty > 0:
		p.logger.Info("paper fill",
			slog.String("order_id", uuid.New().String()),
			slog.String("symbol", symbol),
			slog.String("side", "sell"),
			slog.Float64("qty", acct.qty),
			slog.Float64("price", mark))
		acct.cash += acct.qty * mark
		acct.qty = 0
	}

	return acct.cash + acct.qty*mark, nil
}

var _ domain.Broker = (*Paper)(nil)
