package strategy

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/quantbay/stratexec/internal/market"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SectorChaseConfig parameterizes the sector-chase entry and exit
// policy.
type SectorChaseConfig struct {
	// WeightFloatCapMin splits the universe: instruments with free-float
	// market cap at or above it act as sector weight stocks, the rest
	// are entry candidates.
	WeightFloatCapMin float64 `yaml:"weight_float_cap_min" json:"weight_float_cap_min" validate:"required,gt=0"`
	// SmallCapTurnoverMin filters entry candidates by recent average
	// daily traded amount.
	SmallCapTurnoverMin float64 `yaml:"small_cap_turnover_min" json:"small_cap_turnover_min" validate:"required,gt=0"`
	// WeightGain is the relative change of a weight stock that marks its
	// sector hot.
	WeightGain float64 `yaml:"weight_gain" json:"weight_gain" validate:"required,gt=0"`
	// SectorGain is the relative change of a candidate in a hot sector
	// that triggers an entry.
	SectorGain float64 `yaml:"sector_gain" json:"sector_gain" validate:"required,gt=0"`
	// OrderAmount is the target notional per entry order.
	OrderAmount float64 `yaml:"order_amount" json:"order_amount" validate:"required,gt=0"`
	// MaxSectors caps how many sectors may be hot at once.
	MaxSectors int `yaml:"max_sectors" json:"max_sectors" validate:"required,gt=0"`
	// MaxPositions caps the open set size.
	MaxPositions int `yaml:"max_positions" json:"max_positions" validate:"required,gt=0"`
	// SellTime is the HH:MM:SS time of day at which all open positions
	// are liquidated.
	SellTime string `yaml:"sell_time" json:"sell_time" validate:"required"`
}

// SectorChase chases sector moves: when a weight stock of a sector
// gains past WeightGain the sector turns hot, and small-cap candidates
// in a hot sector gaining past SectorGain are bought with a limit order
// at the current price rounded down to cents. All positions are
// liquidated once per day at SellTime.
type SectorChase struct {
	config SectorChaseConfig
	ctx    *Context
	ref    market.ReferenceData
	book   *PositionBook

	// weightSector maps weight stocks to their sector, candidateSector
	// maps entry candidates to theirs. Built once in OnInit.
	weightSector    map[types.Instrument]string
	candidateSector map[types.Instrument]string
	hotSectors      map[string]struct{}

	sellSecond  int
	lastSellDay string
}

var _ Strategy = (*SectorChase)(nil)

func NewSectorChase(config SectorChaseConfig) (*SectorChase, error) {
	sellSecond, err := parseTimeOfDay(config.SellTime)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid sell time %q", config.SellTime)
	}

	if config.MaxSectors <= 0 || config.MaxPositions <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "sector-chase caps must be positive")
	}

	if config.OrderAmount <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "sector-chase order amount must be positive, got %f", config.OrderAmount)
	}

	return &SectorChase{
		config:     config,
		sellSecond: sellSecond,
	}, nil
}

// Name implements Strategy.
func (s *SectorChase) Name() string {
	return "sector-chase"
}

// OnInit implements Strategy. Splits the configured universe into
// weight stocks and entry candidates using the data port's reference
// data capability.
func (s *SectorChase) OnInit(ctx *Context) error {
	ref, ok := ctx.Market.(market.ReferenceData)
	if !ok {
		return errors.New(errors.ErrCodeDataUnavailable, "sector-chase requires a data port with reference data")
	}

	s.ctx = ctx
	s.ref = ref
	s.book = NewPositionBook()
	s.weightSector = make(map[types.Instrument]string)
	s.candidateSector = make(map[types.Instrument]string)
	s.hotSectors = make(map[string]struct{})

	for _, instrument := range ctx.Instruments {
		sector, err := ref.SectorOf(instrument)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeDataUnavailable, err, "no sector for %s", instrument)
		}

		floatCap, err := ref.FloatMarketCap(instrument)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeDataUnavailable, err, "no float market cap for %s", instrument)
		}

		if floatCap >= s.config.WeightFloatCapMin {
			s.weightSector[instrument] = sector

			continue
		}

		if excludedBoard(instrument) {
			continue
		}

		turnover, err := ref.AvgTurnover(instrument)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeDataUnavailable, err, "no turnover for %s", instrument)
		}

		if turnover >= s.config.SmallCapTurnoverMin {
			s.candidateSector[instrument] = sector
		}
	}

	s.ctx.Logger.Info("sector-chase pools built",
		zap.Int("weight_stocks", len(s.weightSector)),
		zap.Int("candidates", len(s.candidateSector)))

	return nil
}

// OnBar implements Strategy.
func (s *SectorChase) OnBar(bar types.Bar) error {
	s.maybeLiquidate(bar.Time)

	change := bar.RelativeChange()

	if sector, ok := s.weightSector[bar.Symbol]; ok {
		s.maybeMarkHot(sector, bar.Symbol, change)

		return nil
	}

	sector, ok := s.candidateSector[bar.Symbol]
	if !ok {
		return nil
	}

	if _, hot := s.hotSectors[sector]; !hot {
		return nil
	}

	if change < s.config.SectorGain {
		return nil
	}

	if s.book.IsOpen(bar.Symbol) || s.book.Len() >= s.config.MaxPositions {
		return nil
	}

	s.enter(bar, sector, change)

	return nil
}

// OnOrderEvent implements Strategy. Audit only; the open set is owned
// by the bar path.
func (s *SectorChase) OnOrderEvent(event types.OrderEvent) {
	if event.Kind == types.OrderEventRejected || event.Kind == types.OrderEventCancelFailed {
		s.ctx.Logger.Warn("order event",
			zap.String("kind", string(event.Kind)),
			zap.String("remark", event.Remark),
			zap.String("symbol", string(event.Symbol)),
			zap.String("reason", event.Reason))

		return
	}

	s.ctx.Logger.Info("order event",
		zap.String("kind", string(event.Kind)),
		zap.String("remark", event.Remark),
		zap.String("symbol", string(event.Symbol)),
		zap.Float64("filled_quantity", event.FilledQuantity))
}

// OpenPositions exposes the open set for inspection after a run.
func (s *SectorChase) OpenPositions() []types.Instrument {
	return s.book.Instruments()
}

func (s *SectorChase) maybeMarkHot(sector string, symbol types.Instrument, change float64) {
	if change < s.config.WeightGain {
		return
	}

	if _, hot := s.hotSectors[sector]; hot {
		return
	}

	if len(s.hotSectors) >= s.config.MaxSectors {
		return
	}

	s.hotSectors[sector] = struct{}{}
	s.ctx.Logger.Info("sector marked hot",
		zap.String("sector", sector),
		zap.String("trigger", string(symbol)),
		zap.Float64("change", change))
}

func (s *SectorChase) enter(bar types.Bar, sector string, change float64) {
	limit := roundDownToCents(bar.Close)
	quantity := math.Floor(s.config.OrderAmount/limit/100) * 100
	if quantity <= 0 {
		return
	}

	request := types.OrderRequest{
		Symbol:       bar.Symbol,
		Side:         types.PurchaseTypeBuy,
		Quantity:     quantity,
		PriceType:    types.PriceTypeLimit,
		LimitPrice:   optional.Some(limit),
		Remark:       uuid.NewString(),
		StrategyName: s.Name(),
	}

	handle, err := s.ctx.Trading.SubmitOrder(request)
	if err != nil {
		s.ctx.Logger.Warn("sector-chase entry not accepted",
			zap.String("symbol", string(bar.Symbol)),
			zap.String("remark", request.Remark),
			zap.Error(err))

		return
	}

	s.book.MarkOpen(bar.Symbol)
	s.ctx.Logger.Info("sector-chase entry submitted",
		zap.String("symbol", string(bar.Symbol)),
		zap.String("sector", sector),
		zap.String("order_id", handle.ID),
		zap.Float64("limit_price", limit),
		zap.Float64("quantity", quantity),
		zap.Float64("change", change))
}

// maybeLiquidate sells every held position at the first bar at or past
// the configured sell time, once per day.
func (s *SectorChase) maybeLiquidate(now time.Time) {
	day := now.Format("2006-01-02")
	if day == s.lastSellDay {
		return
	}

	if secondOfDay(now) < s.sellSecond {
		return
	}

	s.lastSellDay = day

	positions, err := s.ctx.Trading.Positions()
	if err != nil {
		s.ctx.Logger.Warn("failed to query positions for liquidation", zap.Error(err))

		return
	}

	for _, position := range positions {
		if position.Quantity <= 0 {
			continue
		}

		request := types.OrderRequest{
			Symbol:       position.Symbol,
			Side:         types.PurchaseTypeSell,
			Quantity:     position.Quantity,
			PriceType:    types.PriceTypeMarket,
			LimitPrice:   optional.None[float64](),
			Remark:       uuid.NewString(),
			StrategyName: s.Name(),
		}

		if _, err := s.ctx.Trading.SubmitOrder(request); err != nil {
			s.ctx.Logger.Warn("liquidation order not accepted",
				zap.String("symbol", string(position.Symbol)),
				zap.Error(err))

			continue
		}

		s.book.MarkClosed(position.Symbol)
	}
}

// excludedBoard filters exchange boards the policy never buys.
func excludedBoard(instrument types.Instrument) bool {
	code := instrument.Code()

	return strings.HasPrefix(code, "68") || strings.HasPrefix(code, "43")
}

// roundDownToCents truncates a price to two decimal places.
func roundDownToCents(price float64) float64 {
	return decimal.NewFromFloat(price).RoundFloor(2).InexactFloat64()
}

// parseTimeOfDay parses HH:MM:SS into a second-of-day offset.
func parseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, err
	}

	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
