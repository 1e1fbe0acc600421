// Package bot implements the per-bot evaluate-decide-act loop: fetch a
// signal, merge it with the last committed signal, adjust the paper
// position through the broker, gate on daily P&L, and persist the outcome.
// One Runtime owns one BotState; ticks for the same bot never overlap.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blingworks/blingbot/internal/domain"
	"github.com/blingworks/blingbot/internal/risk"
)

// SignalSource produces a three-valued signal for a symbol over a window.
// It must not observe or mutate runtime state.
type SignalSource interface {
	Name() string
	GetSignal(ctx context.Context, symbol string, w domain.Window) (domain.Signal, error)
}

// SessionClock reports exchange session state and the current trading day.
type SessionClock interface {
	IsOpen() bool
	TradingDay() string
}

// EventSink receives informational runtime events (halts, rollovers). A nil
// sink is allowed.
type EventSink interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Outcome classifies what a tick did.
type Outcome string

const (
	OutcomeTraded        Outcome = "traded"         // a position change was committed
	OutcomeHeld          Outcome = "held"           // evaluated, no position change needed
	OutcomeSkippedClosed Outcome = "skipped_closed" // market closed
	OutcomeSkippedHalted Outcome = "skipped_halted" // halted earlier today
	OutcomeHalted        Outcome = "halted"         // a risk threshold fired this tick
	OutcomeBusy          Outcome = "busy"           // previous tick still in flight
)

// TickResult summarizes one tick for the supervisor and the status endpoint.
type TickResult struct {
	Outcome     Outcome
	Signal      domain.Signal // committed signal after the tick
	Value       float64
	DailyReturn float64
	Transient   error // transient-external failure observed during the tick, if any
}

// Config carries the per-bot parameters the runtime needs. All fields are
// read once at construction and never mutated.
type Config struct {
	BotID        string
	Symbol       string
	Window       domain.Window
	InitialValue float64
	LossLimit    float64 // negative fraction, e.g. -0.05
	GainTarget   float64 // positive fraction, e.g. 0.10
	CallTimeout  time.Duration
}

// Runtime drives one bot. Collaborators are injected as interfaces; the
// runtime is the only writer of its BotState.
type Runtime struct {
	cfg    Config
	algo   SignalSource
	broker domain.Broker
	store  domain.BotStateStore
	clock  SessionClock
	events EventSink
	logger *slog.Logger

	mu    sync.Mutex // single-flight guard for Tick
	state domain.BotState
	// durable mirrors the last state known to have been saved; a failed
	// save rolls the in-memory state back to it so the next tick
	// recomputes from durable data.
	durable domain.BotState
}

const defaultCallTimeout = 15 * time.Second

// NewRuntime loads the bot's persisted state (or initializes a fresh one)
// and returns a ready Runtime.
func NewRuntime(
	ctx context.Context,
	cfg Config,
	algo SignalSource,
	broker domain.Broker,
	store domain.BotStateStore,
	clock SessionClock,
	events EventSink,
	logger *slog.Logger,
) (*Runtime, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}

	r := &Runtime{
		cfg:    cfg,
		algo:   algo,
		broker: broker,
		store:  store,
		clock:  clock,
		events: events,
		logger: logger.With(
			slog.String("component", "bot"),
			slog.String("bot_id", cfg.BotID),
			slog.String("symbol", cfg.Symbol),
		),
	}

	state, err := store.Load(ctx, cfg.BotID)
	switch {
	case err == nil:
		r.logger.InfoContext(ctx, "loaded persisted state",
			slog.Float64("value", state.CurrentValue),
			slog.String("last_signal", string(state.LastSignal)),
			slog.Bool("halted", state.Halted),
		)
	case errors.Is(err, domain.ErrNotFound):
		state = domain.NewBotState(cfg.BotID, cfg.Symbol, cfg.InitialValue)
		r.logger.InfoContext(ctx, "no persisted state, starting fresh",
			slog.Float64("initial_value", cfg.InitialValue),
		)
	default:
		return nil, fmt.Errorf("bot: load state for %s: %w", cfg.BotID, err)
	}
	r.state = state
	r.durable = state
	return r, nil
}

// State returns a copy of the current bot state.
func (r *Runtime) State() domain.BotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Tick runs one evaluate-decide-act cycle. It never panics outward and
// never returns an error: transient failures are absorbed per the
// persistence rule and reported in the result. If the previous tick is
// still in flight the call returns immediately with OutcomeBusy; the missed
// cycle is dropped, not queued.
func (r *Runtime) Tick(ctx context.Context) TickResult {
	if !r.mu.TryLock() {
		return TickResult{Outcome: OutcomeBusy}
	}
	defer r.mu.Unlock()

	// A shutdown signal must not abort a tick in flight: the tick runs to
	// completion, including its persistence write, before the supervisor
	// loop observes the cancellation. Every blocking call below is still
	// bounded by CallTimeout.
	ctx = context.WithoutCancel(ctx)

	if !r.clock.IsOpen() {
		r.logger.DebugContext(ctx, "market closed, skipping tick")
		return r.result(OutcomeSkippedClosed, nil)
	}

	day := r.clock.TradingDay()
	if r.state.TradingDay != day {
		r.rollDay(ctx, day)
	} else if r.state.Halted {
		r.logger.DebugContext(ctx, "halted for the day, skipping tick")
		return r.result(OutcomeSkippedHalted, nil)
	}

	var transient error

	// Refresh the per-symbol value so the risk gate sees marks that moved
	// while holding; a failed lookup keeps the last known value.
	if value, err := r.getPosition(ctx); err != nil {
		transient = err
		r.logger.WarnContext(ctx, "position refresh failed, using last known value",
			slog.String("error", err.Error()),
		)
	} else if value > 0 {
		r.state.CurrentValue = value
	}

	raw, err := r.getSignal(ctx)
	if err != nil {
		transient = err
		raw = domain.SignalNone
		r.logger.WarnContext(ctx, "signal fetch failed, falling back to persistence rule",
			slog.String("error", err.Error()),
		)
	}

	// Signal persistence: None reuses the last committed signal; a bot
	// that has never committed anything defaults to SELL, the
	// no-position stance.
	candidate := raw
	if candidate == domain.SignalNone {
		candidate = r.state.LastSignal
	}
	if candidate == domain.SignalNone {
		candidate = domain.SignalSell
	}

	outcome := OutcomeHeld
	if candidate != r.state.LastSignal {
		realized, err := r.setPosition(ctx, candidate)
		if err != nil {
			// Transient: committed signal and value stay untouched, the
			// risk gate still runs against the last known value.
			transient = err
			r.logger.WarnContext(ctx, "position change failed",
				slog.String("desired", string(candidate)),
				slog.String("error", err.Error()),
			)
		} else {
			r.state.LastSignal = candidate
			r.state.CurrentValue = realized
			outcome = OutcomeTraded
			r.logger.InfoContext(ctx, "position changed",
				slog.String("signal", string(candidate)),
				slog.Float64("value", realized),
			)
		}
	}

	decision := risk.Evaluate(
		r.state.CurrentValue, r.state.DayStartValue,
		r.cfg.LossLimit, r.cfg.GainTarget,
	)
	if decision == risk.Halt {
		r.halt(ctx)
		outcome = OutcomeHalted
	}

	r.save(ctx)
	return r.result(outcome, transient)
}

// rollDay resets the day-scoped fields at a trading-day boundary: the
// baseline becomes the current value and a halt from the previous day is
// lifted, even if the old baseline would still trip a threshold.
func (r *Runtime) rollDay(ctx context.Context, day string) {
	resumed := r.state.Halted
	r.state.TradingDay = day
	r.state.DayStartValue = r.state.CurrentValue
	r.state.Halted = false
	r.logger.InfoContext(ctx, "trading day rolled over",
		slog.String("day", day),
		slog.Float64("day_start_value", r.state.DayStartValue),
		slog.Bool("halt_lifted", resumed),
	)
	r.emit(ctx, "day_rollover", "Trading day rollover",
		r.cfg.Symbol+" baseline reset for "+day)
}

// halt flattens the position (idempotent when already flat) and suppresses
// trading until the next day rollover. Not an error: this is the designed
// terminal-for-the-day state.
func (r *Runtime) halt(ctx context.Context) {
	if realized, err := r.setPosition(ctx, domain.SignalSell); err != nil {
		r.logger.WarnContext(ctx, "flatten on halt failed, position may remain open",
			slog.String("error", err.Error()),
		)
	} else {
		r.state.LastSignal = domain.SignalSell
		r.state.CurrentValue = realized
	}
	r.state.Halted = true
	r.logger.InfoContext(ctx, "daily risk threshold reached, halting until rollover",
		slog.Float64("daily_return", r.state.DailyReturn()),
		slog.Float64("loss_limit", r.cfg.LossLimit),
		slog.Float64("gain_target", r.cfg.GainTarget),
	)
	r.emit(ctx, "halt", "Daily risk halt",
		r.cfg.Symbol+" halted for the day")
}

// save persists the state if it changed this tick. A failed save is a
// critical condition but is not retried: the in-memory state rolls back to
// the last durable snapshot so the next tick recomputes from what is
// actually on disk. The signal persistence rule makes the resulting single
// corrective order idempotent.
func (r *Runtime) save(ctx context.Context) {
	if r.state == r.durable {
		return
	}
	r.state.UpdatedAt = time.Now().UTC()

	saveCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	if err := r.store.Save(saveCtx, r.state); err != nil {
		r.logger.ErrorContext(ctx, "state save failed, reverting to last durable state",
			slog.String("error", err.Error()),
		)
		r.state = r.durable
		return
	}
	r.durable = r.state
}

func (r *Runtime) getSignal(ctx context.Context) (domain.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.algo.GetSignal(ctx, r.cfg.Symbol, r.cfg.Window)
}

func (r *Runtime) getPosition(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.broker.GetPosition(ctx, r.cfg.Symbol)
}

func (r *Runtime) setPosition(ctx context.Context, desired domain.Signal) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return r.broker.SetPosition(ctx, r.cfg.Symbol, desired)
}

func (r *Runtime) emit(ctx context.Context, event, title, message string) {
	if r.events == nil {
		return
	}
	if err := r.events.Notify(ctx, event, title, message); err != nil {
		r.logger.WarnContext(ctx, "event notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runtime) result(outcome Outcome, transient error) TickResult {
	return TickResult{
		Outcome:     outcome,
		Signal:      r.state.LastSignal,
		Value:       r.state.CurrentValue,
		DailyReturn: r.state.DailyReturn(),
		Transient:   transient,
	}
}
