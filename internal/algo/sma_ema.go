package algo

import (
	"context"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/blingworks/blingbot/internal/domain"
)

// Built-in algorithm names.
const (
	NameCrossover    = "sma_ema_crossover"
	NameCrossoverAgg = "sma_ema_crossover_agg"
)

// Indicator periods: fast EMA against slow SMA.
const (
	emaPeriod = 9
	smaPeriod = 21
)

// Crossover emits BUY when the fast EMA crosses above the slow SMA on the
// latest completed bar and SELL when it crosses below. Any bar without a
// fresh crossover yields NONE, leaving the decision to the runtime's
// signal-persistence rule.
type Crossover struct {
	bars      domain.BarSource
	emaPeriod int
	smaPeriod int
}

// NewCrossover builds the conservative crossover algorithm over the given
// bar source.
func NewCrossover(bars domain.BarSource) *Crossover {
	return &Crossover{bars: bars, emaPeriod: emaPeriod, smaPeriod: smaPeriod}
}

func (a *Crossover) Name() string { return NameCrossover }

func (a *Crossover) GetSignal(ctx context.Context, symbol string, w domain.Window) (domain.Signal, error) {
	closes, err := a.closes(ctx, symbol, w)
	if err != nil {
		return domain.SignalNone, err
	}
	if len(closes) < a.smaPeriod+1 {
		// Not enough bars to compare two consecutive indicator values.
		return domain.SignalNone, nil
	}

	ema := talib.Ema(closes, a.emaPeriod)
	sma := talib.Sma(closes, a.smaPeriod)

	i := len(closes) - 1
	prev := ema[i-1] - sma[i-1]
	curr := ema[i] - sma[i]
	switch {
	case prev <= 0 && curr > 0:
		return domain.SignalBuy, nil
	case prev >= 0 && curr < 0:
		return domain.SignalSell, nil
	default:
		return domain.SignalNone, nil
	}
}

func (a *Crossover) closes(ctx context.Context, symbol string, w domain.Window) ([]float64, error) {
	bars, err := a.bars.GetBars(ctx, symbol, w)
	if err != nil {
		return nil, fmt.Errorf("algo: get bars for %s %s: %w", symbol, w, err)
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes, nil
}

// CrossoverAgg is the aggressive variant: it reports the direction of the
// most recent crossover anywhere in the window, so it returns NONE only
// when the indicators never crossed (or data is insufficient). Useful for
// bots that should take a stance immediately after a restart.
type CrossoverAgg struct {
	inner *Crossover
}

// NewCrossoverAgg builds the aggressive crossover algorithm over the given
// bar source.
func NewCrossoverAgg(bars domain.BarSource) *CrossoverAgg {
	return &CrossoverAgg{inner: NewCrossover(bars)}
}

func (a *CrossoverAgg) Name() string { return NameCrossoverAgg }

func (a *CrossoverAgg) GetSignal(ctx context.Context, symbol string, w domain.Window) (domain.Signal, error) {
	closes, err := a.inner.closes(ctx, symbol, w)
	if err != nil {
		return domain.SignalNone, err
	}
	if len(closes) < a.inner.smaPeriod+1 {
		return domain.SignalNone, nil
	}

	ema := talib.Ema(closes, a.inner.emaPeriod)
	sma := talib.Sma(closes, a.inner.smaPeriod)

	last := domain.SignalNone
	// Indicator values before the SMA warmup are zero; start where both
	// series are defined.
	for i := a.inner.smaPeriod; i < len(closes); i++ {
		prev := ema[i-1] - sma[i-1]
		curr := ema[i] - sma[i]
		switch {
		case prev <= 0 && curr > 0:
			last = domain.SignalBuy
		case prev >= 0 && curr < 0:
			last = domain.SignalSell
		}
	}
	return last, nil
}

var (
	_ Algorithm = (*Crossover)(nil)
	_ Algorithm = (*CrossoverAgg)(nil)
)
