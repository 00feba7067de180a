// Package strategy defines the pluggable trading strategy contract and
// the runtime that hosts one strategy for the lifetime of a run.
package strategy

import (
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/market"
	"github.com/quantbay/stratexec/internal/trading"
	"github.com/quantbay/stratexec/internal/types"
)

// Context is the strategy's window onto the outside world: exactly one
// market data port and one execution port for the lifetime of a run.
// Immutable after construction.
type Context struct {
	Market  market.DataPort
	Trading trading.ExecutionPort
	Logger  *logger.Logger
	// Instruments is the configured universe for this run, in
	// configuration order.
	Instruments []types.Instrument
}

// Strategy is the single contract trading logic implements. The same
// implementation runs unmodified against the backtest and live
// adapters.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string
	// OnInit is called exactly once before any market event.
	OnInit(ctx *Context) error
	// OnBar is called once per completed bar, on the replay or polling
	// goroutine.
	OnBar(bar types.Bar) error
	// OnOrderEvent receives asynchronous order outcomes. It is called
	// from the adapter's dispatch context and must not block.
	OnOrderEvent(event types.OrderEvent)
}

// TickHandler is an optional capability for strategies that consume
// tick granularity. Adapters type-assert for it.
type TickHandler interface {
	OnTick(tick types.Tick) error
}
