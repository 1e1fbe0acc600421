package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blingworks/blingbot/internal/bot"
	"github.com/blingworks/blingbot/internal/config"
	"github.com/blingworks/blingbot/internal/metrics"
	"github.com/blingworks/blingbot/internal/server/handler"
)

// managedBot pairs a runtime with its schedule and last observed outcome.
type managedBot struct {
	cfg        config.BotConfig
	runtime    *bot.Runtime
	brokerName string

	mu          sync.Mutex
	lastOutcome bot.Outcome
}

// Supervisor drives every bot on its own timer goroutine. A crashing or
// erroring bot never takes down its siblings: panics are contained per tick
// and tick errors only surface as logs, metrics, and notifications.
type Supervisor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	bots []*managedBot
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor(m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		logger:  logger.With(slog.String("component", "supervisor")),
		metrics: m,
	}
}

// Add registers a bot with the supervisor. Not safe to call after Run.
func (s *Supervisor) Add(cfg config.BotConfig, rt *bot.Runtime, brokerName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots = append(s.bots, &managedBot{
		cfg:        cfg,
		runtime:    rt,
		brokerName: brokerName,
	})
}

// Run ticks every registered bot at its configured interval until the
// context is cancelled. The first tick fires immediately so a restart does
// not wait out a full interval before resuming.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.mu.RLock()
	bots := make([]*managedBot, len(s.bots))
	copy(bots, s.bots)
	s.mu.RUnlock()

	for _, mb := range bots {
		g.Go(func() error {
			s.runBot(ctx, mb)
			return nil
		})
	}

	s.logger.InfoContext(ctx, "supervisor started", slog.Int("bots", len(bots)))
	return g.Wait()
}

func (s *Supervisor) runBot(ctx context.Context, mb *managedBot) {
	logger := s.logger.With(slog.String("bot_id", mb.cfg.ID))
	logger.InfoContext(ctx, "bot loop starting",
		slog.String("symbol", mb.cfg.Symbol),
		slog.String("algorithm", mb.cfg.Algorithm),
		slog.Duration("interval", mb.cfg.Interval.Duration),
	)

	ticker := time.NewTicker(mb.cfg.Interval.Duration)
	defer ticker.Stop()

	s.tickOnce(ctx, mb, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("bot loop stopping")
			return
		case <-ticker.C:
			s.tickOnce(ctx, mb, logger)
		}
	}
}

// tickOnce runs a single tick with panic containment. A panicking tick is
// recorded like a failed one; the loop keeps going.
func (s *Supervisor) tickOnce(ctx context.Context, mb *managedBot, logger *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "tick panicked",
				slog.Any("panic", rec),
			)
			s.metrics.TickErrors.WithLabelValues(mb.cfg.ID).Inc()
		}
	}()

	res := mb.runtime.Tick(ctx)

	mb.mu.Lock()
	mb.lastOutcome = res.Outcome
	mb.mu.Unlock()

	s.record(mb.cfg.ID, res)

	if res.Transient != nil {
		logger.WarnContext(ctx, "tick completed with transient error",
			slog.String("outcome", string(res.Outcome)),
			slog.String("error", res.Transient.Error()),
		)
	} else {
		logger.DebugContext(ctx, "tick completed",
			slog.String("outcome", string(res.Outcome)),
			slog.String("signal", string(res.Signal)),
			slog.Float64("value", res.Value),
			slog.Float64("daily_return", res.DailyReturn),
		)
	}
}

// record translates one TickResult into metric updates.
func (s *Supervisor) record(botID string, res bot.TickResult) {
	m := s.metrics
	m.Ticks.WithLabelValues(botID, string(res.Outcome)).Inc()

	switch res.Outcome {
	case bot.OutcomeTraded:
		m.Trades.WithLabelValues(botID, string(res.Signal)).Inc()
	case bot.OutcomeHalted:
		reason := "loss_limit"
		if res.DailyReturn > 0 {
			reason = "gain_target"
		}
		m.Halts.WithLabelValues(botID, reason).Inc()
	case bot.OutcomeBusy, bot.OutcomeSkippedClosed, bot.OutcomeSkippedHalted:
		// No signal was evaluated; keep signal counts and gauges as they were.
		return
	}

	m.Signals.WithLabelValues(botID, string(res.Signal)).Inc()
	m.Value.WithLabelValues(botID).Set(res.Value)
	m.DailyReturn.WithLabelValues(botID).Set(res.DailyReturn)

	if res.Transient != nil {
		m.TickErrors.WithLabelValues(botID).Inc()
	}
}

// BotStatuses snapshots every bot for the status API.
func (s *Supervisor) BotStatuses() []handler.BotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]handler.BotStatus, 0, len(s.bots))
	for _, mb := range s.bots {
		st := mb.runtime.State()

		mb.mu.Lock()
		outcome := mb.lastOutcome
		mb.mu.Unlock()

		out = append(out, handler.BotStatus{
			BotID:       st.BotID,
			Symbol:      st.Symbol,
			Algorithm:   mb.cfg.Algorithm,
			Broker:      mb.brokerName,
			Value:       st.CurrentValue,
			LastSignal:  string(st.LastSignal),
			DayStart:    st.DayStartValue,
			DailyReturn: st.DailyReturn(),
			TradingDay:  st.TradingDay,
			Halted:      st.Halted,
			LastOutcome: string(outcome),
			UpdatedAt:   st.UpdatedAt,
		})
	}
	return out
}

var _ handler.StatusSource = (*Supervisor)(nil)
