// Package runner composes one strategy with one adapter and drives the
// run to a terminal state.
package runner

import (
	"context"
	"sync"

	"github.com/quantbay/stratexec/internal/backtest"
	"github.com/quantbay/stratexec/internal/config"
	"github.com/quantbay/stratexec/internal/live"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/strategy"
	"github.com/quantbay/stratexec/internal/trading"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// sessionFactory builds the broker session for a live run. Swappable in
// tests.
type sessionFactory func(cfg config.LiveConfig, log *logger.Logger) live.BrokerSession

// Runner owns the composition for one run: it builds the configured
// adapter, hosts the strategy runtime, and guarantees an orderly
// shutdown. Returns nil on replay completion or clean trading-window
// exit.
type Runner struct {
	cfg            *config.Config
	logger         *logger.Logger
	sessionFactory sessionFactory
}

func New(cfg *config.Config, log *logger.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		logger: log,
		sessionFactory: func(liveCfg config.LiveConfig, log *logger.Logger) live.BrokerSession {
			return live.NewBinanceSession(liveCfg, log)
		},
	}
}

// Run executes the configured mode to completion.
func (r *Runner) Run(ctx context.Context) error {
	strat, err := strategy.New(r.cfg.Strategy.Name, r.cfg.Strategy.Params)
	if err != nil {
		return err
	}

	r.logger.Info("starting run",
		zap.String("mode", string(r.cfg.Mode)),
		zap.String("strategy", strat.Name()),
		zap.Int("instruments", len(r.cfg.Instruments)))

	switch r.cfg.Mode {
	case config.ModeBacktest:
		return r.runBacktest(ctx, strat)
	case config.ModeLive:
		return r.runLive(ctx, strat)
	default:
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "unknown mode: %q", r.cfg.Mode)
	}
}

func (r *Runner) runBacktest(ctx context.Context, strat strategy.Strategy) error {
	adapter, err := backtest.NewAdapter(*r.cfg.Backtest, r.logger.Named("backtest"))
	if err != nil {
		return err
	}

	defer func() {
		if err := adapter.Close(); err != nil {
			r.logger.Warn("failed to close backtest adapter", zap.Error(err))
		}
	}()

	runtime := strategy.NewRuntime(strat, &strategy.Context{
		Market:      adapter,
		Trading:     adapter.Broker(),
		Logger:      r.logger,
		Instruments: r.cfg.Instruments,
	})
	defer runtime.Stop()

	adapter.Broker().SetEventHandler(runtime.HandleOrderEvent)

	if err := runtime.Init(); err != nil {
		return err
	}

	if err := adapter.Subscribe(r.cfg.Instruments, r.cfg.ParsedInterval()); err != nil {
		return err
	}

	if err := adapter.Run(ctx, runtime); err != nil {
		return err
	}

	trades, err := adapter.Ledger().TradeCount()
	if err != nil {
		return err
	}

	r.logger.Info("backtest complete", zap.Int("trades", trades))

	return nil
}

func (r *Runner) runLive(ctx context.Context, strat strategy.Strategy) error {
	window, err := live.NewTradingWindow(r.cfg.Window.Start, r.cfg.Window.End)
	if err != nil {
		return err
	}

	liveLogger := r.logger.Named("live")
	session := r.sessionFactory(*r.cfg.Live, liveLogger)
	adapter := live.NewAdapter(session, *r.cfg.Live, window, r.cfg.Instruments, r.cfg.ParsedInterval(), liveLogger)

	if err := adapter.Connect(ctx); err != nil {
		return err
	}

	defer func() {
		if err := adapter.Close(); err != nil {
			r.logger.Warn("failed to close live adapter", zap.Error(err))
		}
	}()

	runtime := strategy.NewRuntime(strat, &strategy.Context{
		Market:      adapter,
		Trading:     adapter,
		Logger:      r.logger,
		Instruments: r.cfg.Instruments,
	})
	defer runtime.Stop()

	tracker := newOrderTracker()
	adapter.SetEventHandler(func(event types.OrderEvent) {
		tracker.observe(event)
		runtime.HandleOrderEvent(event)
	})

	if err := runtime.Init(); err != nil {
		return err
	}

	if err := adapter.Subscribe(r.cfg.Instruments, r.cfg.ParsedInterval()); err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		err := adapter.Run(ctx, runtime)
		if err == nil {
			r.logger.Info("live run complete")

			return nil
		}

		if errors.HasCode(err, errors.ErrCodeConnectionLost) && attempt < r.cfg.Live.ReconnectAttempts {
			r.logger.Warn("connection lost, reconnecting",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", r.cfg.Live.ReconnectAttempts))

			if reconnectErr := adapter.Connect(ctx); reconnectErr != nil {
				r.cancelOpenOrders(adapter, tracker)

				return reconnectErr
			}

			continue
		}

		// Fatal: cancel everything still known open, then surface.
		r.cancelOpenOrders(adapter, tracker)

		return err
	}
}

// cancelOpenOrders is the orderly-shutdown path: every order observed
// accepted but not yet terminal gets a cancel request.
func (r *Runner) cancelOpenOrders(port trading.ExecutionPort, tracker *orderTracker) {
	for _, handle := range tracker.openHandles() {
		if err := port.CancelOrder(handle); err != nil {
			r.logger.Warn("failed to cancel order during shutdown",
				zap.String("order_id", handle.ID),
				zap.String("remark", handle.Remark),
				zap.Error(err))

			continue
		}

		r.logger.Info("cancelled order during shutdown",
			zap.String("order_id", handle.ID),
			zap.String("remark", handle.Remark))
	}
}

// orderTracker follows order events to maintain the set of orders known
// to be open. Observed from the dispatch goroutine, read during
// shutdown.
type orderTracker struct {
	mu   sync.Mutex
	open map[string]types.OrderHandle
}

func newOrderTracker() *orderTracker {
	return &orderTracker{
		open: make(map[string]types.OrderHandle),
	}
}

func (t *orderTracker) observe(event types.OrderEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case types.OrderEventAccepted, types.OrderEventPartiallyFilled:
		t.open[event.OrderID] = types.OrderHandle{ID: event.OrderID, Remark: event.Remark}
	case types.OrderEventFilled, types.OrderEventRejected:
		delete(t.open, event.OrderID)
	}
}

func (t *orderTracker) openHandles() []types.OrderHandle {
	t.mu.Lock()
	defer t.mu.Unlock()

	handles := make([]types.OrderHandle, 0, len(t.open))
	for _, handle := range t.open {
		handles = append(handles, handle)
	}

	return handles
}
