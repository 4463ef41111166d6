package app

import (
	"context"
	"fmt"

	"blitz/internal/config"
	"blitz/internal/control"
	"blitz/internal/emergency"
	"blitz/internal/engine"
	"blitz/internal/exitplan"
	"blitz/internal/exitsys"
	"blitz/internal/gateway/exchange"
	"blitz/internal/gateway/notifier"
	"blitz/internal/gateway/tokenfeed"
	"blitz/internal/logger"
	"blitz/internal/metrics"
	"blitz/internal/mining"
	"blitz/internal/screener"
	"blitz/internal/store/flagstore"
	"blitz/internal/store/opstore"
	"blitz/internal/transport"
	"blitz/internal/wallet"

	"golang.org/x/sync/errgroup"
)

// App wires the full controller: admission, engine, stores and the
// monitoring API.
type App struct {
	cfg    *config.Config
	engine *engine.Engine
	http   *transport.HTTPServer
	ops    *opstore.Store
	flags  *flagstore.Store
}

// New builds the application from config without starting anything.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	funds := wallet.New(cfg.Wallet, cfg.Control.PsychologyTaxRate)
	if err := funds.ValidateIntegrity(); err != nil {
		return nil, fmt.Errorf("wallet setup: %w", err)
	}
	ctrl := control.New(cfg.Control, funds)
	miner := mining.New(cfg.Mining, funds)
	exits := exitsys.New(cfg.Exit)
	stats := metrics.New(cfg.Metrics)

	screen, err := screener.New(cfg.Screener)
	if err != nil {
		return nil, err
	}

	feed := tokenfeed.NewClient(cfg.TokenFeed)
	executor := exchange.NewPaperExecutor(func(token string) (float64, error) {
		td, err := feed.FetchToken(context.Background(), token)
		if err != nil {
			return 0, err
		}
		return td.EntryPrice, nil
	})

	var notify notifier.TextNotifier = notifier.Noop{}
	if tg := cfg.Notify.Telegram; tg.Enabled {
		notify = notifier.NewTelegram(tg.BotToken, tg.ChatID)
	}

	ops, err := opstore.New(cfg.App.OpsStorePath)
	if err != nil {
		return nil, fmt.Errorf("operation store: %w", err)
	}
	flags, err := flagstore.New(cfg.App.FlagDBPath)
	if err != nil {
		ops.Close()
		return nil, fmt.Errorf("flag store: %w", err)
	}

	panics := emergency.New(cfg.Emergency, executor, notify, funds, flags)

	eng := engine.New(cfg, engine.Deps{
		Control:  ctrl,
		Funds:    funds,
		Miner:    miner,
		Exits:    exits,
		Panic:    panics,
		Stats:    stats,
		Screen:   screen,
		Executor: executor,
		Feed:     feed,
		Ops:      ops,
		Flags:    flags,
		Notify:   notify,
	})

	// Ladder registry is optional: a missing file falls back to the
	// built-in ladder.
	if reg, err := exitplan.NewRegistry(cfg.App.LadderPath); err != nil {
		logger.Warnf("ladder registry unavailable (%v), using built-in ladder", err)
	} else {
		eng.UseLadderRegistry(reg, "standard")
	}

	httpSrv, err := transport.NewHTTPServer(transport.HTTPConfig{
		Addr:   cfg.App.HTTPAddr,
		Engine: eng,
		Panic:  panics,
		Ops:    ops,
		Flags:  flags,
	})
	if err != nil {
		ops.Close()
		flags.Close()
		return nil, err
	}

	return &App{cfg: cfg, engine: eng, http: httpSrv, ops: ops, flags: flags}, nil
}

// Run starts the engine loop and the monitoring API, blocking until the
// context ends or either component fails.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Run(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := a.engine.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("engine: %w", err)
		}
		return nil
	})
	err := group.Wait()
	a.Close()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the stores.
func (a *App) Close() {
	if a.ops != nil {
		a.ops.Close()
	}
	if a.flags != nil {
		a.flags.Close()
	}
}
