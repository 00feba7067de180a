package backtest

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/quantbay/stratexec/internal/config"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/trading"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// Broker simulates order execution against replayed bars. Everything
// runs on the replay goroutine: submissions, fills, and event delivery
// are synchronous and happen in submission order, so identical inputs
// produce identical event sequences.
type Broker struct {
	logger         *logger.Logger
	ledger         *Ledger
	fillPolicy     config.FillPolicy
	commissionRate float64

	cash      float64
	positions map[types.Instrument]*types.Position
	handler   trading.EventHandler

	current map[types.Instrument]types.Bar
	now     time.Time
	pending []types.Order
	remarks map[string]struct{}
}

var _ trading.ExecutionPort = (*Broker)(nil)

func NewBroker(cfg config.BacktestConfig, ledger *Ledger, logger *logger.Logger) *Broker {
	return &Broker{
		logger:         logger,
		ledger:         ledger,
		fillPolicy:     cfg.FillPolicy,
		commissionRate: cfg.CommissionRate,
		cash:           cfg.InitialCapital,
		positions:      make(map[types.Instrument]*types.Position),
		current:        make(map[types.Instrument]types.Bar),
		remarks:        make(map[string]struct{}),
	}
}

// SetEventHandler implements trading.ExecutionPort.
func (b *Broker) SetEventHandler(handler trading.EventHandler) {
	b.handler = handler
}

// SubmitOrder implements trading.ExecutionPort. Acceptance is emitted
// synchronously; the fill or rejection follows per fill policy.
func (b *Broker) SubmitOrder(request types.OrderRequest) (types.OrderHandle, error) {
	if err := request.Validate(); err != nil {
		return types.OrderHandle{}, err
	}

	if request.Remark == "" {
		request.Remark = uuid.NewString()
	}

	if _, seen := b.remarks[request.Remark]; seen {
		return types.OrderHandle{}, errors.Newf(errors.ErrCodeInvalidOrderParameters, "duplicate remark: %q", request.Remark)
	}

	b.remarks[request.Remark] = struct{}{}

	order := types.Order{
		ID:           uuid.NewString(),
		Symbol:       request.Symbol,
		Side:         request.Side,
		Quantity:     request.Quantity,
		PriceType:    request.PriceType,
		LimitPrice:   request.LimitPrice.TakeOr(0),
		Remark:       request.Remark,
		StrategyName: request.StrategyName,
		Status:       types.OrderStatusAccepted,
		Timestamp:    b.now,
	}

	if err := b.ledger.RecordOrder(order); err != nil {
		return types.OrderHandle{}, err
	}

	b.emit(types.OrderEvent{
		Kind:    types.OrderEventAccepted,
		OrderID: order.ID,
		Remark:  order.Remark,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Time:    b.now,
	})

	if b.fillPolicy == config.FillPolicySameClose {
		if bar, ok := b.current[order.Symbol]; ok && b.tryFill(&order, bar, bar.Close) {
			return types.OrderHandle{ID: order.ID, Remark: order.Remark}, nil
		}
	}

	b.pending = append(b.pending, order)

	return types.OrderHandle{ID: order.ID, Remark: order.Remark}, nil
}

// CancelOrder implements trading.ExecutionPort. An unknown or already
// executed order yields an asynchronous CancelFailed event, matching
// live broker behavior.
func (b *Broker) CancelOrder(handle types.OrderHandle) error {
	for i, order := range b.pending {
		if order.ID == handle.ID {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)

			if err := b.ledger.UpdateOrderStatus(order.ID, types.OrderStatusCancelled); err != nil {
				return err
			}

			return nil
		}
	}

	b.emit(types.OrderEvent{
		Kind:    types.OrderEventCancelFailed,
		OrderID: handle.ID,
		Remark:  handle.Remark,
		Reason:  "order not pending",
		Time:    b.now,
	})

	return nil
}

// Positions implements trading.ExecutionPort. Sorted by symbol so the
// result is stable across runs.
func (b *Broker) Positions() ([]types.Position, error) {
	positions := make([]types.Position, 0, len(b.positions))
	for _, position := range b.positions {
		positions = append(positions, *position)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Symbol < positions[j].Symbol
	})

	return positions, nil
}

// Cash implements trading.ExecutionPort.
func (b *Broker) Cash() (float64, error) {
	return b.cash, nil
}

// ProcessBar advances the simulated clock and settles pending orders
// for the bar's instrument, in submission order.
func (b *Broker) ProcessBar(bar types.Bar) {
	b.now = bar.Time
	b.current[bar.Symbol] = bar

	basis := bar.Open
	if b.fillPolicy == config.FillPolicySameClose {
		basis = bar.Close
	}

	remaining := b.pending[:0]

	for _, order := range b.pending {
		if order.Symbol != bar.Symbol {
			remaining = append(remaining, order)

			continue
		}

		if !b.tryFill(&order, bar, basis) {
			remaining = append(remaining, order)
		}
	}

	b.pending = remaining
}

// tryFill settles one order against a bar when executable. Returns true
// when the order reached a terminal state (filled or rejected).
func (b *Broker) tryFill(order *types.Order, bar types.Bar, basis float64) bool {
	var price float64

	switch order.PriceType {
	case types.PriceTypeMarket, types.PriceTypeLatest:
		price = basis
	case types.PriceTypeLimit:
		if order.Side == types.PurchaseTypeBuy {
			if bar.Low > order.LimitPrice {
				return false
			}

			price = min(order.LimitPrice, basis)
		} else {
			if bar.High < order.LimitPrice {
				return false
			}

			price = order.LimitPrice
		}
	}

	if price <= 0 {
		return false
	}

	return b.settle(order, price)
}

// settle applies cash and position accounting. Violations surface as
// Rejected events, never as errors.
func (b *Broker) settle(order *types.Order, price float64) bool {
	commission := order.Quantity * price * b.commissionRate

	if order.Side == types.PurchaseTypeBuy {
		cost := order.Quantity*price + commission
		if cost > b.cash {
			b.reject(order, "insufficient cash")

			return true
		}

		b.cash -= cost
		b.addPosition(order.Symbol, order.Quantity, price)
	} else {
		position, ok := b.positions[order.Symbol]
		if !ok || position.Quantity < order.Quantity {
			b.reject(order, "insufficient holdings")

			return true
		}

		b.cash += order.Quantity*price - commission
		position.Quantity -= order.Quantity

		if position.Quantity <= 0 {
			delete(b.positions, order.Symbol)
		}
	}

	order.Status = types.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = price
	order.Timestamp = b.now

	if err := b.ledger.RecordFill(*order, commission); err != nil {
		b.logger.Error("failed to record fill", zap.String("order_id", order.ID), zap.Error(err))
	}

	b.emit(types.OrderEvent{
		Kind:           types.OrderEventFilled,
		OrderID:        order.ID,
		Remark:         order.Remark,
		Symbol:         order.Symbol,
		Side:           order.Side,
		FilledQuantity: order.Quantity,
		FillPrice:      price,
		Time:           b.now,
	})

	return true
}

func (b *Broker) reject(order *types.Order, reason string) {
	order.Status = types.OrderStatusRejected

	if err := b.ledger.UpdateOrderStatus(order.ID, types.OrderStatusRejected); err != nil {
		b.logger.Error("failed to record rejection", zap.String("order_id", order.ID), zap.Error(err))
	}

	b.logger.Warn("order rejected",
		zap.String("order_id", order.ID),
		zap.String("remark", order.Remark),
		zap.String("reason", reason))

	b.emit(types.OrderEvent{
		Kind:    types.OrderEventRejected,
		OrderID: order.ID,
		Remark:  order.Remark,
		Symbol:  order.Symbol,
		Side:    order.Side,
		Reason:  reason,
		Time:    b.now,
	})
}

func (b *Broker) addPosition(symbol types.Instrument, quantity, price float64) {
	position, ok := b.positions[symbol]
	if !ok {
		b.positions[symbol] = &types.Position{
			Symbol:        symbol,
			Quantity:      quantity,
			AvgCost:       price,
			OpenTimestamp: b.now,
		}

		return
	}

	total := position.Quantity + quantity
	position.AvgCost = (position.AvgCost*position.Quantity + price*quantity) / total
	position.Quantity = total
}

func (b *Broker) emit(event types.OrderEvent) {
	if b.handler == nil {
		return
	}

	b.handler(event)
}
