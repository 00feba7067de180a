package runner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/quantbay/stratexec/internal/config"
	"github.com/quantbay/stratexec/internal/live"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// fakeSession is a scriptable in-memory broker session. Submitted
// orders are acknowledged synchronously through the registered handler.
type fakeSession struct {
	mu      sync.Mutex
	handler live.SessionHandler

	connectErr        error
	connects          int
	quotes            []types.Snapshot
	quoteIdx          int
	disconnectOnQuote bool

	submitted []types.OrderRequest
	cancelled []string
}

var _ live.BrokerSession = (*fakeSession)(nil)

func (f *fakeSession) RegisterHandler(handler live.SessionHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handler = handler
}

func (f *fakeSession) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++

	return f.connectErr
}

func (f *fakeSession) Close() error {
	return nil
}

func (f *fakeSession) SubscribeQuotes(_ []types.Instrument, _ types.Interval) error {
	return nil
}

func (f *fakeSession) LatestQuotes(instruments []types.Instrument) (map[types.Instrument]types.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshots := make(map[types.Instrument]types.Snapshot)

	if f.quoteIdx < len(f.quotes) {
		quote := f.quotes[f.quoteIdx]
		f.quoteIdx++

		for _, instrument := range instruments {
			if instrument == quote.Bar.Symbol {
				snapshots[instrument] = quote
			}
		}
	}

	if f.disconnectOnQuote && f.handler != nil {
		f.handler.HandleDisconnected()
	}

	return snapshots, nil
}

func (f *fakeSession) History(_ []types.Instrument, _ types.Interval, _ time.Time) ([]types.Bar, error) {
	return nil, nil
}

func (f *fakeSession) SubmitOrder(request types.OrderRequest) (string, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, request)
	orderID := "live-1"
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		handler.HandleOrderUpdate(live.OrderUpdate{
			OrderID: orderID,
			Remark:  request.Remark,
			Symbol:  request.Symbol,
			Side:    request.Side,
			Status:  types.OrderStatusAccepted,
			Time:    time.Now(),
		})
	}

	return orderID, nil
}

func (f *fakeSession) CancelOrder(orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, orderID)

	return nil
}

func (f *fakeSession) Positions() ([]types.Position, error) {
	return nil, nil
}

func (f *fakeSession) Cash() (float64, error) {
	return 1000000, nil
}

func (f *fakeSession) cancelledOrders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.cancelled...)
}

func (f *fakeSession) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connects
}

type RunnerTestSuite struct {
	suite.Suite
}

func (s *RunnerTestSuite) writeDataset() string {
	path := filepath.Join(s.T().TempDir(), "bars.csv")
	content := `time,symbol,open,high,low,close,volume
2024-03-01 10:00:00,600000.SH,10.0,10.1,9.9,10.0,1000
2024-03-01 10:05:00,600000.SH,10.0,11.1,10.0,11.0,1500
2024-03-01 10:10:00,600000.SH,11.0,11.2,10.9,11.1,1200
`
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	return path
}

func (s *RunnerTestSuite) backtestConfig() *config.Config {
	return &config.Config{
		Mode: config.ModeBacktest,
		Strategy: config.StrategyConfig{
			Name: "momentum",
			Params: map[string]any{
				"threshold": 0.09,
				"lot_size":  100,
			},
		},
		Instruments: []types.Instrument{"600000.SH"},
		Interval:    "5m",
		Window:      config.WindowConfig{Start: "09:30:00", End: "15:00:00"},
		Backtest: &config.BacktestConfig{
			DataPath:       s.writeDataset(),
			FillPolicy:     config.FillPolicyNextOpen,
			InitialCapital: 1000000,
			CommissionRate: 0.0003,
		},
	}
}

func (s *RunnerTestSuite) liveRunner(session *fakeSession, reconnectAttempts int) *Runner {
	cfg := &config.Config{
		Mode: config.ModeLive,
		Strategy: config.StrategyConfig{
			Name: "momentum",
			Params: map[string]any{
				"threshold": 0.05,
				"lot_size":  100,
			},
		},
		Instruments: []types.Instrument{"600000.SH"},
		Interval:    "1m",
		Window:      config.WindowConfig{Start: "00:00:00", End: "23:59:59"},
		Live: &config.LiveConfig{
			Broker:            "binance-paper",
			AccountID:         "test-account",
			PollInterval:      time.Second,
			ReconnectAttempts: reconnectAttempts,
		},
	}

	runner := New(cfg, logger.NewNopLogger())
	runner.sessionFactory = func(_ config.LiveConfig, _ *logger.Logger) live.BrokerSession {
		return session
	}

	return runner
}

func (s *RunnerTestSuite) TestBacktestRunsToCompletion() {
	runner := New(s.backtestConfig(), logger.NewNopLogger())

	s.Require().NoError(runner.Run(context.Background()))
}

func (s *RunnerTestSuite) TestUnknownStrategyFailsFast() {
	cfg := s.backtestConfig()
	cfg.Strategy.Name = "does-not-exist"

	err := New(cfg, logger.NewNopLogger()).Run(context.Background())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func (s *RunnerTestSuite) TestBacktestCancelledContextSurfacesShutdown() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(s.backtestConfig(), logger.NewNopLogger()).Run(ctx)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeRunnerShutdown))
}

func (s *RunnerTestSuite) TestLiveConnectFailureSurfaces() {
	session := &fakeSession{
		connectErr: errors.New(errors.ErrCodeNotConnected, "terminal offline"),
	}
	runner := s.liveRunner(session, 0)

	err := runner.Run(context.Background())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeAdapterInitFailed))
}

func (s *RunnerTestSuite) TestLiveFatalErrorCancelsOpenOrders() {
	entryBar := types.Bar{
		Symbol:    "600000.SH",
		Time:      time.Date(2024, 3, 1, 10, 1, 0, 0, time.UTC),
		Open:      10.5,
		High:      11.1,
		Low:       10.4,
		Close:     11.0,
		PrevClose: 10.0,
		Volume:    1000,
	}
	staleBar := entryBar
	staleBar.Time = entryBar.Time.Add(-time.Minute)

	// The first poll triggers an entry, the second serves a bar that
	// moves backwards in time and ends the run.
	session := &fakeSession{
		quotes: []types.Snapshot{{Bar: entryBar}, {Bar: staleBar}},
	}
	runner := s.liveRunner(session, 0)

	err := runner.Run(context.Background())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeDataUnavailable))

	// The accepted entry never reached a terminal state, so shutdown
	// cancelled it.
	s.Equal([]string{"live-1"}, session.cancelledOrders())
}

func (s *RunnerTestSuite) TestLiveReconnectsUpToConfiguredAttempts() {
	session := &fakeSession{disconnectOnQuote: true}
	runner := s.liveRunner(session, 1)

	err := runner.Run(context.Background())
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeConnectionLost))
	s.Equal(2, session.connectCount())
}

func (s *RunnerTestSuite) TestOrderTrackerFollowsTerminalStates() {
	tracker := newOrderTracker()

	tracker.observe(types.OrderEvent{Kind: types.OrderEventAccepted, OrderID: "a", Remark: "r-a"})
	tracker.observe(types.OrderEvent{Kind: types.OrderEventAccepted, OrderID: "b", Remark: "r-b"})
	tracker.observe(types.OrderEvent{Kind: types.OrderEventPartiallyFilled, OrderID: "b", Remark: "r-b"})
	s.Len(tracker.openHandles(), 2)

	tracker.observe(types.OrderEvent{Kind: types.OrderEventFilled, OrderID: "a", Remark: "r-a"})
	s.Len(tracker.openHandles(), 1)

	tracker.observe(types.OrderEvent{Kind: types.OrderEventRejected, OrderID: "b", Remark: "r-b"})
	s.Empty(tracker.openHandles())
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}
