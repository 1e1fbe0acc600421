// Package app provides the top-level application lifecycle: it wires the
// stores, market data, brokers, and notifier together, builds one runtime
// per configured bot, and supervises the fleet plus the HTTP server until
// shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blingworks/blingbot/internal/algo"
	"github.com/blingworks/blingbot/internal/bot"
	"github.com/blingworks/blingbot/internal/broker"
	"github.com/blingworks/blingbot/internal/config"
	"github.com/blingworks/blingbot/internal/domain"
	"github.com/blingworks/blingbot/internal/notify"
	"github.com/blingworks/blingbot/internal/server"
	"github.com/blingworks/blingbot/internal/server/handler"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, constructs and
// supervises the bots, starts the HTTP server when enabled, and blocks
// until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Int("bots", len(a.cfg.Bots)),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	sup := NewSupervisor(deps.Metrics, a.logger)
	started := 0
	for _, bc := range a.cfg.Bots {
		if err := a.startBot(ctx, sup, deps, bc); err != nil {
			// One broken bot must not block the rest of the fleet.
			a.logger.ErrorContext(ctx, "bot failed to start, skipping",
				slog.String("bot_id", bc.ID),
				slog.String("error", err.Error()),
			)
			if nerr := deps.Notifier.Notify(ctx, notify.EventBotError,
				"Bot failed to start", bc.ID+": "+err.Error()); nerr != nil {
				a.logger.WarnContext(ctx, "bot error notification failed",
					slog.String("error", nerr.Error()),
				)
			}
			continue
		}
		started++
	}
	if started == 0 {
		return errors.New("app: no bot could be started")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sup.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.NewServer(
			server.Config{
				Port:      a.cfg.Server.Port,
				APIKey:    a.cfg.Server.APIKey,
				RateLimit: a.cfg.Server.RateLimit,
			},
			server.Handlers{
				Health: handler.NewHealthHandler(map[string]handler.Pinger{
					"postgres": deps.Postgres,
					"redis":    redisPinger(deps),
				}),
				Status: handler.NewStatusHandler(sup),
			},
			deps.Metrics.Registry(),
			deps.RateLimiter,
			a.logger,
		)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startBot builds the per-bot dependencies (algorithm, broker) and runtime,
// restores the broker account from persisted state, and registers the bot
// with the supervisor.
func (a *App) startBot(ctx context.Context, sup *Supervisor, deps *Dependencies, bc config.BotConfig) error {
	alg, err := algo.DefaultRegistry().New(bc.Algorithm, deps.Bars)
	if err != nil {
		return fmt.Errorf("app: bot %s: %w", bc.ID, err)
	}

	brk, err := a.newBroker(bc, deps)
	if err != nil {
		return fmt.Errorf("app: bot %s: %w", bc.ID, err)
	}

	rt, err := bot.NewRuntime(ctx, bot.Config{
		BotID:        bc.ID,
		Symbol:       bc.Symbol,
		Window:       bc.Window(),
		InitialValue: bc.InitialValue,
		LossLimit:    bc.LossLimit,
		GainTarget:   bc.GainTarget,
		CallTimeout:  bc.CallTimeout.Duration,
	}, alg, brk, deps.StateStore, deps.Calendar, deps.Notifier, a.logger)
	if err != nil {
		return fmt.Errorf("app: bot %s: %w", bc.ID, err)
	}

	if err := a.restoreAccount(ctx, brk, rt.State()); err != nil {
		return fmt.Errorf("app: bot %s: restore account: %w", bc.ID, err)
	}

	sup.Add(bc, rt, brk.Name())
	return nil
}

// newBroker constructs the execution backend for one bot. Each bot gets its
// own instance so per-symbol accounts never collide across bots.
func (a *App) newBroker(bc config.BotConfig, deps *Dependencies) (domain.Broker, error) {
	switch bc.Broker {
	case "paper":
		return broker.NewPaper(deps.Prices, a.logger), nil
	case "alpaca":
		return broker.NewAlpaca(a.cfg.Alpaca.BaseURL, a.cfg.Alpaca.KeyID, a.cfg.Alpaca.SecretKey), nil
	default:
		return nil, fmt.Errorf("unknown broker %q", bc.Broker)
	}
}

// restoreAccount seeds the broker from the loaded state so a restart
// resumes with the persisted value and position instead of a fresh account.
func (a *App) restoreAccount(ctx context.Context, brk domain.Broker, st domain.BotState) error {
	switch b := brk.(type) {
	case *broker.Paper:
		b.Fund(st.Symbol, st.CurrentValue)
		if st.LastSignal.Position() == domain.PositionLong {
			// Re-enter the long at the current mark; the cash balance was
			// funded with the persisted value so the value is preserved.
			if _, err := b.SetPosition(ctx, st.Symbol, domain.SignalBuy); err != nil {
				return err
			}
		}
	case *broker.Alpaca:
		// Positions survive at Alpaca; only uninvested cash is local.
		if st.LastSignal.Position() == domain.PositionLong {
			b.Fund(st.Symbol, 0)
		} else {
			b.Fund(st.Symbol, st.CurrentValue)
		}
	}
	return nil
}

// redisPinger avoids handing the health handler a typed nil when Redis is
// disabled.
func redisPinger(deps *Dependencies) handler.Pinger {
	if deps.Redis == nil {
		return nil
	}
	return deps.Redis
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
