package strategy

import (
	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// MomentumConfig parameterizes the momentum entry policy.
type MomentumConfig struct {
	// Threshold is the minimum relative change of close against previous
	// close that triggers an entry, e.g. 0.09 for 9%.
	Threshold float64 `yaml:"threshold" json:"threshold" validate:"required,gt=0"`
	// LotSize is the fixed quantity of every entry order.
	LotSize float64 `yaml:"lot_size" json:"lot_size" validate:"required,gt=0"`
}

// Momentum buys a fixed lot of an instrument the first time its close
// rises at least Threshold above the previous close, and never enters
// the same instrument twice while it stays open.
type Momentum struct {
	config MomentumConfig
	ctx    *Context
	book   *PositionBook
}

var _ Strategy = (*Momentum)(nil)

func NewMomentum(config MomentumConfig) (*Momentum, error) {
	if config.Threshold <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "momentum threshold must be positive, got %f", config.Threshold)
	}

	if config.LotSize <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "momentum lot size must be positive, got %f", config.LotSize)
	}

	return &Momentum{
		config: config,
	}, nil
}

// Name implements Strategy.
func (m *Momentum) Name() string {
	return "momentum"
}

// OnInit implements Strategy.
func (m *Momentum) OnInit(ctx *Context) error {
	m.ctx = ctx
	m.book = NewPositionBook()

	return nil
}

// OnBar implements Strategy. Runs on the replay or polling goroutine,
// which is the only writer of the position book.
func (m *Momentum) OnBar(bar types.Bar) error {
	change := bar.RelativeChange()
	if change < m.config.Threshold {
		return nil
	}

	if m.book.IsOpen(bar.Symbol) {
		return nil
	}

	request := types.OrderRequest{
		Symbol:       bar.Symbol,
		Side:         types.PurchaseTypeBuy,
		Quantity:     m.config.LotSize,
		PriceType:    types.PriceTypeMarket,
		LimitPrice:   optional.None[float64](),
		Remark:       uuid.NewString(),
		StrategyName: m.Name(),
	}

	handle, err := m.ctx.Trading.SubmitOrder(request)
	if err != nil {
		// Not accepted by the backend, so the instrument stays out of the
		// open set and remains eligible on a later bar.
		m.ctx.Logger.Warn("momentum entry not accepted",
			zap.String("symbol", string(bar.Symbol)),
			zap.String("remark", request.Remark),
			zap.Error(err))

		return nil
	}

	m.book.MarkOpen(bar.Symbol)
	m.ctx.Logger.Info("momentum entry submitted",
		zap.String("symbol", string(bar.Symbol)),
		zap.String("order_id", handle.ID),
		zap.String("remark", handle.Remark),
		zap.Float64("change", change))

	return nil
}

// OnOrderEvent implements Strategy. Events are audit-logged with their
// remark; the open set is never mutated from here.
func (m *Momentum) OnOrderEvent(event types.OrderEvent) {
	switch event.Kind {
	case types.OrderEventRejected, types.OrderEventCancelFailed:
		m.ctx.Logger.Warn("order event",
			zap.String("kind", string(event.Kind)),
			zap.String("remark", event.Remark),
			zap.String("symbol", string(event.Symbol)),
			zap.String("reason", event.Reason))
	default:
		m.ctx.Logger.Info("order event",
			zap.String("kind", string(event.Kind)),
			zap.String("remark", event.Remark),
			zap.String("symbol", string(event.Symbol)),
			zap.Float64("filled_quantity", event.FilledQuantity),
			zap.Float64("fill_price", event.FillPrice))
	}
}

// OpenPositions exposes the open set for inspection after a run.
func (m *Momentum) OpenPositions() []types.Instrument {
	return m.book.Instruments()
}
