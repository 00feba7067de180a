package backtest

import (
	"context"
	"strings"
	"time"

	"github.com/quantbay/stratexec/internal/config"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/market"
	"github.com/quantbay/stratexec/internal/strategy"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// Adapter replays a historical dataset through a strategy against the
// simulated broker. Single-threaded: bars are delivered synchronously
// in dataset order (ties broken by configured instrument order), and
// every order event is delivered before the next bar.
type Adapter struct {
	source *DuckDBDataSource
	ledger *Ledger
	broker *Broker
	logger *logger.Logger

	subscriptions map[string][]types.Bar
	replay        []types.Bar
	latest        map[types.Instrument]types.Bar
}

var _ market.DataPort = (*Adapter)(nil)

var _ market.ReferenceData = (*Adapter)(nil)

// NewAdapter loads the configured dataset and prepares the simulated
// broker and ledger.
func NewAdapter(cfg config.BacktestConfig, logger *logger.Logger) (*Adapter, error) {
	source, err := NewDataSource(logger)
	if err != nil {
		return nil, err
	}

	if err := source.Initialize(cfg.DataPath); err != nil {
		source.Close()

		return nil, err
	}

	if cfg.ReferencePath != "" {
		if err := source.InitializeReference(cfg.ReferencePath); err != nil {
			source.Close()

			return nil, err
		}
	}

	ledger, err := NewLedger(logger)
	if err != nil {
		source.Close()

		return nil, err
	}

	if err := ledger.Initialize(); err != nil {
		source.Close()
		ledger.Close()

		return nil, err
	}

	return &Adapter{
		source:        source,
		ledger:        ledger,
		broker:        NewBroker(cfg, ledger, logger),
		logger:        logger,
		subscriptions: make(map[string][]types.Bar),
		latest:        make(map[types.Instrument]types.Bar),
	}, nil
}

// Broker returns the execution port of this run.
func (a *Adapter) Broker() *Broker {
	return a.broker
}

// Ledger returns the order and trade records of this run.
func (a *Adapter) Ledger() *Ledger {
	return a.ledger
}

// Subscribe implements market.DataPort. The first subscription for a
// given instrument set and interval bulk-loads the replay buffer;
// repeating it is a no-op.
func (a *Adapter) Subscribe(instruments []types.Instrument, interval types.Interval) error {
	if a.source == nil {
		return errors.New(errors.ErrCodeNotConnected, "datasource is closed")
	}

	key := subscriptionKey(instruments, interval)
	if _, ok := a.subscriptions[key]; ok {
		return nil
	}

	bars, err := a.source.BarsSince(instruments, time.Time{})
	if err != nil {
		return err
	}

	if len(bars) == 0 {
		return errors.New(errors.ErrCodeDataUnavailable, "dataset has no bars for subscribed instruments")
	}

	a.subscriptions[key] = bars
	a.replay = bars
	a.logger.Info("loaded replay buffer",
		zap.Int("bars", len(bars)),
		zap.Int("instruments", len(instruments)),
		zap.String("interval", string(interval)))

	return nil
}

// GetHistory implements market.DataPort.
func (a *Adapter) GetHistory(instruments []types.Instrument, interval types.Interval, start time.Time) ([]types.Bar, error) {
	if a.source == nil {
		return nil, errors.New(errors.ErrCodeNotConnected, "datasource is closed")
	}

	bars, err := a.source.BarsSince(instruments, start)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.New(errors.ErrCodeDataUnavailable, "no bars for requested instruments")
	}

	return bars, nil
}

// Latest implements market.DataPort. Reflects replay progress: an
// instrument appears once its first bar has been replayed.
func (a *Adapter) Latest(instruments []types.Instrument) (map[types.Instrument]types.Snapshot, error) {
	snapshots := make(map[types.Instrument]types.Snapshot, len(instruments))

	for _, instrument := range instruments {
		if bar, ok := a.latest[instrument]; ok {
			snapshots[instrument] = types.Snapshot{Bar: bar}
		}
	}

	return snapshots, nil
}

// SectorOf implements market.ReferenceData.
func (a *Adapter) SectorOf(instrument types.Instrument) (string, error) {
	return a.source.SectorOf(instrument)
}

// StocksInSector implements market.ReferenceData.
func (a *Adapter) StocksInSector(sector string) ([]types.Instrument, error) {
	return a.source.StocksInSector(sector)
}

// FloatMarketCap implements market.ReferenceData.
func (a *Adapter) FloatMarketCap(instrument types.Instrument) (float64, error) {
	return a.source.FloatMarketCap(instrument)
}

// AvgTurnover implements market.ReferenceData.
func (a *Adapter) AvgTurnover(instrument types.Instrument) (float64, error) {
	return a.source.AvgTurnover(instrument)
}

// Run replays the loaded buffer through the strategy runtime. Pending
// orders are settled against each bar before the strategy sees it, so
// orders submitted on bar N fill no earlier than the next bar of their
// instrument under the next-open policy.
func (a *Adapter) Run(ctx context.Context, runtime *strategy.Runtime) error {
	if len(a.replay) == 0 {
		return errors.New(errors.ErrCodeDataUnavailable, "no replay buffer loaded, Subscribe first")
	}

	for _, bar := range a.replay {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeRunnerShutdown, "replay interrupted", err)
		}

		a.broker.ProcessBar(bar)
		a.latest[bar.Symbol] = bar

		if err := runtime.HandleBar(bar); err != nil {
			return err
		}
	}

	a.logger.Info("replay complete", zap.Int("bars", len(a.replay)))

	return nil
}

func (a *Adapter) Close() error {
	var errs []error

	if a.source != nil {
		if err := a.source.Close(); err != nil {
			errs = append(errs, err)
		}

		a.source = nil
	}

	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(errors.ErrCodeFatalAdapter, "failed to close backtest adapter", errs[0])
	}

	return nil
}

func subscriptionKey(instruments []types.Instrument, interval types.Interval) string {
	parts := make([]string, 0, len(instruments)+1)
	for _, instrument := range instruments {
		parts = append(parts, string(instrument))
	}

	parts = append(parts, string(interval))

	return strings.Join(parts, "|")
}
