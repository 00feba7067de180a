package live

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/quantbay/stratexec/internal/config"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// BinanceSession implements BrokerSession over the Binance spot API.
// Quotes are served from klines, asynchronous order notifications from
// the user data stream. The order remark travels as the Binance client
// order ID, so every stream event carries it back.
type BinanceSession struct {
	client    *binance.Client
	handler   SessionHandler
	logger    *logger.Logger
	accountID string

	listenKey string
	stopWs    chan struct{}

	// orderID -> exchange symbol, needed for cancels
	orderSymbols map[string]string
}

var _ BrokerSession = (*BinanceSession)(nil)

// NewBinanceSession builds a session from the live configuration. The
// binance-paper broker kind targets the spot testnet.
func NewBinanceSession(cfg config.LiveConfig, log *logger.Logger) *BinanceSession {
	if cfg.Broker == "binance-paper" {
		binance.UseTestnet = true
	}

	return &BinanceSession{
		client:       binance.NewClient(cfg.APIKey, cfg.APISecret),
		logger:       log,
		accountID:    cfg.AccountID,
		orderSymbols: make(map[string]string),
	}
}

// RegisterHandler implements BrokerSession.
func (s *BinanceSession) RegisterHandler(handler SessionHandler) {
	s.handler = handler
}

// Connect implements BrokerSession. Verifies credentials and starts the
// user data stream.
func (s *BinanceSession) Connect(ctx context.Context) error {
	if _, err := s.client.NewGetAccountService().Do(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeNotConnected, "failed to reach binance account", err)
	}

	listenKey, err := s.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotConnected, "failed to start user data stream", err)
	}

	s.listenKey = listenKey

	doneC, stopC, err := binance.WsUserDataServe(listenKey, s.onUserData, s.onStreamError)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotConnected, "failed to open user data stream", err)
	}

	s.stopWs = stopC

	go func() {
		<-doneC

		if s.handler != nil {
			s.handler.HandleDisconnected()
		}
	}()

	if s.handler != nil {
		s.handler.HandleAccountStatus(AccountStatus{
			AccountID: s.accountID,
			Status:    "connected",
			Time:      time.Now(),
		})
	}

	return nil
}

// Close implements BrokerSession.
func (s *BinanceSession) Close() error {
	if s.stopWs != nil {
		close(s.stopWs)
		s.stopWs = nil
	}

	if s.listenKey != "" {
		if err := s.client.NewCloseUserStreamService().ListenKey(s.listenKey).Do(context.Background()); err != nil {
			s.logger.Warn("failed to close user data stream", zap.Error(err))
		}

		s.listenKey = ""
	}

	return nil
}

// SubscribeQuotes implements BrokerSession. Quotes are pulled on
// demand, so subscribing only validates the interval.
func (s *BinanceSession) SubscribeQuotes(instruments []types.Instrument, interval types.Interval) error {
	if _, err := binanceInterval(interval); err != nil {
		return err
	}

	s.logger.Info("subscribed quotes",
		zap.Int("instruments", len(instruments)),
		zap.String("interval", string(interval)))

	return nil
}

// LatestQuotes implements BrokerSession. Returns the last closed kline
// per instrument as a bar, with the preceding close for reference.
func (s *BinanceSession) LatestQuotes(instruments []types.Instrument) (map[types.Instrument]types.Snapshot, error) {
	snapshots := make(map[types.Instrument]types.Snapshot, len(instruments))

	for _, instrument := range instruments {
		klines, err := s.client.NewKlinesService().
			Symbol(instrument.Code()).
			Interval("1m").
			Limit(3).
			Do(context.Background())
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataUnavailable, err, "failed to fetch klines for %s", instrument)
		}

		// The final kline is still forming; use the last closed one.
		if len(klines) < 2 {
			continue
		}

		bar := klineToBar(instrument, klines[len(klines)-2])
		if len(klines) >= 3 {
			bar.PrevClose = parseFloat(klines[len(klines)-3].Close)
		}

		snapshots[instrument] = types.Snapshot{Bar: bar}
	}

	return snapshots, nil
}

// History implements BrokerSession.
func (s *BinanceSession) History(instruments []types.Instrument, interval types.Interval, start time.Time) ([]types.Bar, error) {
	binInterval, err := binanceInterval(interval)
	if err != nil {
		return nil, err
	}

	var bars []types.Bar

	for _, instrument := range instruments {
		klines, err := s.client.NewKlinesService().
			Symbol(instrument.Code()).
			Interval(binInterval).
			StartTime(start.UnixMilli()).
			Do(context.Background())
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeDataUnavailable, err, "failed to fetch history for %s", instrument)
		}

		var prevClose float64

		for _, kline := range klines {
			bar := klineToBar(instrument, kline)
			bar.PrevClose = prevClose
			prevClose = bar.Close
			bars = append(bars, bar)
		}
	}

	return bars, nil
}

// SubmitOrder implements BrokerSession. The remark is routed as the
// client order ID.
func (s *BinanceSession) SubmitOrder(request types.OrderRequest) (string, error) {
	var side binance.SideType

	switch request.Side {
	case types.PurchaseTypeBuy:
		side = binance.SideTypeBuy
	case types.PurchaseTypeSell:
		side = binance.SideTypeSell
	default:
		return "", errors.Newf(errors.ErrCodeInvalidOrderParameters, "unsupported order side: %s", request.Side)
	}

	service := s.client.NewCreateOrderService().
		Symbol(request.Symbol.Code()).
		Side(side).
		NewClientOrderID(request.Remark).
		Quantity(strconv.FormatFloat(request.Quantity, 'f', -1, 64))

	switch request.PriceType {
	case types.PriceTypeMarket, types.PriceTypeLatest:
		service = service.Type(binance.OrderTypeMarket)
	case types.PriceTypeLimit:
		service = service.
			Type(binance.OrderTypeLimit).
			Price(strconv.FormatFloat(request.LimitPrice.Unwrap(), 'f', -1, 64)).
			TimeInForce(binance.TimeInForceTypeGTC)
	}

	response, err := service.Do(context.Background())
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeOrderFailed, "failed to place order", err)
	}

	orderID := strconv.FormatInt(response.OrderID, 10)
	s.orderSymbols[orderID] = request.Symbol.Code()

	return orderID, nil
}

// CancelOrder implements BrokerSession.
func (s *BinanceSession) CancelOrder(orderID string) error {
	symbol, ok := s.orderSymbols[orderID]
	if !ok {
		return errors.Newf(errors.ErrCodeCancelFailed, "unknown order: %s", orderID)
	}

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeCancelFailed, err, "invalid order id %q", orderID)
	}

	_, err = s.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(id).
		Do(context.Background())
	if err != nil {
		return errors.Wrap(errors.ErrCodeCancelFailed, "failed to cancel order", err)
	}

	return nil
}

// Positions implements BrokerSession. Spot balances with a positive
// total are reported as positions; quote currencies are excluded.
func (s *BinanceSession) Positions() ([]types.Position, error) {
	account, err := s.client.NewGetAccountService().Do(context.Background())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to fetch account", err)
	}

	var positions []types.Position

	for _, balance := range account.Balances {
		if isQuoteAsset(balance.Asset) {
			continue
		}

		total := parseFloat(balance.Free) + parseFloat(balance.Locked)
		if total <= 0 {
			continue
		}

		positions = append(positions, types.Position{
			Symbol:   types.Instrument(balance.Asset + ".BN"),
			Quantity: total,
		})
	}

	return positions, nil
}

// Cash implements BrokerSession. Free quote-currency balance.
func (s *BinanceSession) Cash() (float64, error) {
	account, err := s.client.NewGetAccountService().Do(context.Background())
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to fetch account", err)
	}

	var cash float64

	for _, balance := range account.Balances {
		if isQuoteAsset(balance.Asset) {
			cash += parseFloat(balance.Free)
		}
	}

	return cash, nil
}

// onUserData translates execution reports into session notifications.
func (s *BinanceSession) onUserData(event *binance.WsUserDataEvent) {
	if s.handler == nil || event.Event != binance.UserDataEventTypeExecutionReport {
		return
	}

	update := event.OrderUpdate
	orderID := strconv.FormatInt(update.Id, 10)
	at := time.UnixMilli(update.TransactionTime)

	side := types.PurchaseTypeBuy
	if update.Side == string(binance.SideTypeSell) {
		side = types.PurchaseTypeSell
	}

	switch update.Status {
	case string(binance.OrderStatusTypeNew):
		s.handler.HandleOrderUpdate(OrderUpdate{
			OrderID: orderID,
			Remark:  update.ClientOrderId,
			Symbol:  types.Instrument(update.Symbol + ".BN"),
			Side:    side,
			Status:  types.OrderStatusAccepted,
			Time:    at,
		})
	case string(binance.OrderStatusTypeRejected):
		s.handler.HandleOrderError(OrderFailure{
			OrderID: orderID,
			Remark:  update.ClientOrderId,
			Reason:  update.RejectReason,
			Time:    at,
		})
	case string(binance.OrderStatusTypePartiallyFilled), string(binance.OrderStatusTypeFilled):
		s.handler.HandleTrade(TradeFill{
			OrderID:  orderID,
			Remark:   update.ClientOrderId,
			Symbol:   types.Instrument(update.Symbol + ".BN"),
			Side:     side,
			Quantity: parseFloat(update.LatestVolume),
			Price:    parseFloat(update.LatestPrice),
			Time:     at,
		})
	default:
		s.logger.Debug("ignoring execution report",
			zap.String("order_id", orderID),
			zap.String("status", update.Status))
	}
}

func (s *BinanceSession) onStreamError(err error) {
	s.logger.Warn("user data stream error", zap.Error(err))

	if s.handler != nil {
		s.handler.HandleDisconnected()
	}
}

func klineToBar(instrument types.Instrument, kline *binance.Kline) types.Bar {
	return types.Bar{
		Symbol: instrument,
		Time:   time.UnixMilli(kline.CloseTime),
		Open:   parseFloat(kline.Open),
		High:   parseFloat(kline.High),
		Low:    parseFloat(kline.Low),
		Close:  parseFloat(kline.Close),
		Volume: parseFloat(kline.Volume),
	}
}

func binanceInterval(interval types.Interval) (string, error) {
	switch interval {
	case types.Interval1m:
		return "1m", nil
	case types.Interval5m:
		return "5m", nil
	case types.Interval1d:
		return "1d", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidInterval, "interval %q not supported by binance session", interval)
	}
}

func isQuoteAsset(asset string) bool {
	switch asset {
	case "USDT", "BUSD", "USDC", "USD":
		return true
	default:
		return false
	}
}

func parseFloat(s string) float64 {
	value, _ := strconv.ParseFloat(s, 64)

	return value
}
