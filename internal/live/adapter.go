package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quantbay/stratexec/internal/config"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/market"
	"github.com/quantbay/stratexec/internal/strategy"
	"github.com/quantbay/stratexec/internal/trading"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// evCorrelate records the remark of a freshly submitted order. It
// travels through the same channel as session notifications, so the
// dispatch goroutine stays the sole writer of correlation state and
// sees the registration before any event for that order.
type evCorrelate struct {
	orderID string
	remark  string
	symbol  types.Instrument
	side    types.PurchaseType
}

// Adapter drives one strategy against a broker terminal session. Two
// goroutines: the polling goroutine owns strategy calls and run state,
// the dispatch goroutine owns order correlation and delivers session
// events one at a time in emission order.
type Adapter struct {
	session      BrokerSession
	window       TradingWindow
	pollInterval time.Duration
	instruments  []types.Instrument
	interval     types.Interval
	logger       *logger.Logger

	// handler is registered on the runner goroutine and read by the
	// dispatch goroutine.
	handlerMu sync.RWMutex
	handler   trading.EventHandler

	events       chan any
	quit         chan struct{}
	dispatchOnce sync.Once
	wg           sync.WaitGroup

	connected    bool
	disconnected atomic.Bool
	subscribed   map[string]struct{}
	lastBar      map[types.Instrument]time.Time
	remarks      map[string]struct{}

	// correlation state, dispatch goroutine only
	orderRemarks map[string]string
	orderSymbols map[string]types.Instrument
	orderSides   map[string]types.PurchaseType

	clock func() time.Time
}

var _ market.DataPort = (*Adapter)(nil)

var _ trading.ExecutionPort = (*Adapter)(nil)

var _ SessionHandler = (*Adapter)(nil)

// NewAdapter wires a session into an adapter. The poll interval is
// clamped to config.MinPollInterval to bound the request rate.
func NewAdapter(session BrokerSession, cfg config.LiveConfig, window TradingWindow, instruments []types.Instrument, interval types.Interval, log *logger.Logger) *Adapter {
	pollInterval := cfg.PollInterval
	if pollInterval < config.MinPollInterval {
		log.Warn("poll interval below floor, clamping",
			zap.Duration("configured", pollInterval),
			zap.Duration("floor", config.MinPollInterval))

		pollInterval = config.MinPollInterval
	}

	return &Adapter{
		session:      session,
		window:       window,
		pollInterval: pollInterval,
		instruments:  instruments,
		interval:     interval,
		logger:       log,
		events:       make(chan any, 256),
		quit:         make(chan struct{}),
		subscribed:   make(map[string]struct{}),
		lastBar:      make(map[types.Instrument]time.Time),
		remarks:      make(map[string]struct{}),
		orderRemarks: make(map[string]string),
		orderSymbols: make(map[string]types.Instrument),
		orderSides:   make(map[string]types.PurchaseType),
		clock:        time.Now,
	}
}

// Connect establishes the session and starts event dispatch.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.connected && !a.disconnected.Load() {
		return nil
	}

	a.session.RegisterHandler(a)

	if err := a.session.Connect(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeAdapterInitFailed, "failed to connect broker session", err)
	}

	a.connected = true
	a.disconnected.Store(false)
	a.dispatchOnce.Do(func() {
		a.wg.Add(1)

		go a.dispatch()
	})

	return nil
}

// Close tears down the session and stops the dispatch goroutine.
func (a *Adapter) Close() error {
	err := a.session.Close()
	a.connected = false

	close(a.quit)
	a.wg.Wait()

	if err != nil {
		return errors.Wrap(errors.ErrCodeFatalAdapter, "failed to close broker session", err)
	}

	return nil
}

// Subscribe implements market.DataPort. Idempotent per instrument set
// and interval.
func (a *Adapter) Subscribe(instruments []types.Instrument, interval types.Interval) error {
	if err := a.requireConnected(); err != nil {
		return err
	}

	key := subscriptionKey(instruments, interval)
	if _, ok := a.subscribed[key]; ok {
		return nil
	}

	if err := a.session.SubscribeQuotes(instruments, interval); err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to subscribe quotes", err)
	}

	a.subscribed[key] = struct{}{}

	return nil
}

// GetHistory implements market.DataPort.
func (a *Adapter) GetHistory(instruments []types.Instrument, interval types.Interval, start time.Time) ([]types.Bar, error) {
	if err := a.requireConnected(); err != nil {
		return nil, err
	}

	bars, err := a.session.History(instruments, interval, start)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.New(errors.ErrCodeDataUnavailable, "no history for requested instruments")
	}

	return bars, nil
}

// Latest implements market.DataPort.
func (a *Adapter) Latest(instruments []types.Instrument) (map[types.Instrument]types.Snapshot, error) {
	if err := a.requireConnected(); err != nil {
		return nil, err
	}

	return a.session.LatestQuotes(instruments)
}

// SubmitOrder implements trading.ExecutionPort.
func (a *Adapter) SubmitOrder(request types.OrderRequest) (types.OrderHandle, error) {
	if err := a.requireConnected(); err != nil {
		return types.OrderHandle{}, err
	}

	if err := request.Validate(); err != nil {
		return types.OrderHandle{}, err
	}

	if request.Remark == "" {
		request.Remark = uuid.NewString()
	}

	if _, seen := a.remarks[request.Remark]; seen {
		return types.OrderHandle{}, errors.Newf(errors.ErrCodeInvalidOrderParameters, "duplicate remark: %q", request.Remark)
	}

	orderID, err := a.session.SubmitOrder(request)
	if err != nil {
		return types.OrderHandle{}, errors.Wrapf(errors.ErrCodeOrderFailed, err, "order %q not accepted", request.Remark)
	}

	a.remarks[request.Remark] = struct{}{}
	a.events <- evCorrelate{
		orderID: orderID,
		remark:  request.Remark,
		symbol:  request.Symbol,
		side:    request.Side,
	}

	return types.OrderHandle{ID: orderID, Remark: request.Remark}, nil
}

// CancelOrder implements trading.ExecutionPort. A transport failure is
// returned synchronously; a broker-side refusal arrives later as a
// CancelFailed event.
func (a *Adapter) CancelOrder(handle types.OrderHandle) error {
	if err := a.requireConnected(); err != nil {
		return err
	}

	if err := a.session.CancelOrder(handle.ID); err != nil {
		return errors.Wrapf(errors.ErrCodeCancelFailed, err, "failed to request cancel of order %s", handle.ID)
	}

	return nil
}

// SetEventHandler implements trading.ExecutionPort. Safe to call after
// Connect, while the dispatch goroutine is already running.
func (a *Adapter) SetEventHandler(handler trading.EventHandler) {
	a.handlerMu.Lock()
	defer a.handlerMu.Unlock()

	a.handler = handler
}

// Positions implements trading.ExecutionPort.
func (a *Adapter) Positions() ([]types.Position, error) {
	if err := a.requireConnected(); err != nil {
		return nil, err
	}

	return a.session.Positions()
}

// Cash implements trading.ExecutionPort.
func (a *Adapter) Cash() (float64, error) {
	if err := a.requireConnected(); err != nil {
		return 0, err
	}

	return a.session.Cash()
}

// Run polls latest quotes on the configured interval and feeds new bars
// to the strategy, until the trading window ends, the context is
// cancelled, or the session reports a lost connection. Returns nil on
// clean window exit.
func (a *Adapter) Run(ctx context.Context, runtime *strategy.Runtime) error {
	if err := a.requireConnected(); err != nil {
		return err
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.ErrCodeRunnerShutdown, "polling interrupted", ctx.Err())
		case <-timer.C:
		}

		if a.disconnected.Load() {
			return errors.New(errors.ErrCodeConnectionLost, "broker session disconnected")
		}

		now := a.clock()
		if a.window.Ended(now) {
			a.logger.Info("trading window ended, stopping polling loop",
				zap.Time("at", now))

			return nil
		}

		if !a.window.Before(now) {
			if err := a.pollOnce(runtime); err != nil {
				return err
			}
		}

		timer.Reset(a.pollInterval)
	}
}

// pollOnce delivers at most one new bar per instrument, in configured
// instrument order.
func (a *Adapter) pollOnce(runtime *strategy.Runtime) error {
	snapshots, err := a.session.LatestQuotes(a.instruments)
	if err != nil {
		// Transient quote failures skip the poll rather than end the run.
		a.logger.Warn("failed to poll quotes", zap.Error(err))

		return nil
	}

	for _, instrument := range a.instruments {
		snapshot, ok := snapshots[instrument]
		if !ok {
			continue
		}

		bar := snapshot.Bar

		if last, seen := a.lastBar[instrument]; seen {
			if bar.Time.Before(last) {
				return errors.Newf(errors.ErrCodeDataUnavailable,
					"timestamp regression for %s: %s after %s",
					instrument, bar.Time.Format(time.RFC3339), last.Format(time.RFC3339))
			}

			if !bar.Time.After(last) {
				continue
			}
		}

		a.lastBar[instrument] = bar.Time

		if err := runtime.HandleBar(bar); err != nil {
			return err
		}

		if snapshot.Tick.IsSome() {
			if err := runtime.HandleTick(snapshot.Tick.Unwrap()); err != nil {
				return err
			}
		}
	}

	return nil
}

// HandleDisconnected implements SessionHandler.
func (a *Adapter) HandleDisconnected() {
	a.logger.Warn("broker session disconnected")
	a.disconnected.Store(true)
}

// HandleOrderUpdate implements SessionHandler.
func (a *Adapter) HandleOrderUpdate(update OrderUpdate) {
	a.events <- update
}

// HandleTrade implements SessionHandler.
func (a *Adapter) HandleTrade(fill TradeFill) {
	a.events <- fill
}

// HandleOrderError implements SessionHandler.
func (a *Adapter) HandleOrderError(failure OrderFailure) {
	a.events <- failure
}

// HandleCancelError implements SessionHandler.
func (a *Adapter) HandleCancelError(failure CancelFailure) {
	a.events <- failure
}

// HandleAccountStatus implements SessionHandler.
func (a *Adapter) HandleAccountStatus(status AccountStatus) {
	a.events <- status
}

// dispatch is the only consumer of the event channel and the only
// writer of correlation state. Events reach the handler one at a time
// in emission order.
func (a *Adapter) dispatch() {
	defer a.wg.Done()

	for {
		select {
		case <-a.quit:
			return
		case raw := <-a.events:
			a.dispatchOne(raw)
		}
	}
}

func (a *Adapter) dispatchOne(raw any) {
	switch event := raw.(type) {
	case evCorrelate:
		a.orderRemarks[event.orderID] = event.remark
		a.orderSymbols[event.orderID] = event.symbol
		a.orderSides[event.orderID] = event.side
	case OrderUpdate:
		a.onOrderUpdate(event)
	case TradeFill:
		a.emit(types.OrderEvent{
			Kind:           types.OrderEventFilled,
			OrderID:        event.OrderID,
			Remark:         a.remarkFor(event.OrderID, event.Remark),
			Symbol:         event.Symbol,
			Side:           event.Side,
			FilledQuantity: event.Quantity,
			FillPrice:      event.Price,
			Time:           event.Time,
		})
	case OrderFailure:
		remark := a.remarkFor(event.OrderID, event.Remark)
		a.logger.Warn("order rejected",
			zap.String("order_id", event.OrderID),
			zap.String("remark", remark),
			zap.String("reason", event.Reason))
		a.emit(types.OrderEvent{
			Kind:    types.OrderEventRejected,
			OrderID: event.OrderID,
			Remark:  remark,
			Symbol:  a.orderSymbols[event.OrderID],
			Side:    a.orderSides[event.OrderID],
			Reason:  event.Reason,
			Time:    event.Time,
		})
	case CancelFailure:
		remark := a.remarkFor(event.OrderID, event.Remark)
		a.logger.Warn("cancel failed",
			zap.String("order_id", event.OrderID),
			zap.String("remark", remark),
			zap.String("reason", event.Reason))
		a.emit(types.OrderEvent{
			Kind:    types.OrderEventCancelFailed,
			OrderID: event.OrderID,
			Remark:  remark,
			Reason:  event.Reason,
			Time:    event.Time,
		})
	case AccountStatus:
		a.logger.Info("account status",
			zap.String("account_id", event.AccountID),
			zap.String("status", event.Status))
	}
}

func (a *Adapter) onOrderUpdate(update OrderUpdate) {
	remark := a.remarkFor(update.OrderID, update.Remark)

	var kind types.OrderEventKind

	switch update.Status {
	case types.OrderStatusAccepted:
		kind = types.OrderEventAccepted
	case types.OrderStatusRejected:
		kind = types.OrderEventRejected
		a.logger.Warn("order rejected",
			zap.String("order_id", update.OrderID),
			zap.String("remark", remark))
	case types.OrderStatusPartiallyFilled:
		kind = types.OrderEventPartiallyFilled
	case types.OrderStatusFilled:
		kind = types.OrderEventFilled
	default:
		a.logger.Debug("ignoring order update",
			zap.String("order_id", update.OrderID),
			zap.String("status", string(update.Status)))

		return
	}

	a.emit(types.OrderEvent{
		Kind:           kind,
		OrderID:        update.OrderID,
		Remark:         remark,
		Symbol:         update.Symbol,
		Side:           update.Side,
		FilledQuantity: update.FilledQuantity,
		FillPrice:      update.AvgFillPrice,
		Time:           update.Time,
	})
}

func (a *Adapter) remarkFor(orderID, remark string) string {
	if remark != "" {
		return remark
	}

	return a.orderRemarks[orderID]
}

func (a *Adapter) emit(event types.OrderEvent) {
	a.handlerMu.RLock()
	handler := a.handler
	a.handlerMu.RUnlock()

	if handler == nil {
		return
	}

	handler(event)
}

func (a *Adapter) requireConnected() error {
	if !a.connected {
		return errors.New(errors.ErrCodeNotConnected, "broker session not established")
	}

	if a.disconnected.Load() {
		return errors.New(errors.ErrCodeConnectionLost, "broker session disconnected")
	}

	return nil
}

func subscriptionKey(instruments []types.Instrument, interval types.Interval) string {
	key := string(interval)
	for _, instrument := range instruments {
		key += "|" + string(instrument)
	}

	return key
}
