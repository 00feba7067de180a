// Package market defines the backend-agnostic market data contract.
package market

import (
	"time"

	"github.com/quantbay/stratexec/internal/types"
)

// DataPort pulls or streams bar/tick data for a set of instruments. Both
// the backtest and live adapters implement it.
//
// All methods fail with ErrCodeNotConnected when called before the
// adapter has established its backend session, and with
// ErrCodeDataUnavailable when the backend has no data for an
// instrument/interval pair.
type DataPort interface {
	// Subscribe registers interest in the given instruments at the given
	// interval. Idempotent per (instrument, interval) pair: a backtest
	// adapter triggers at most one bulk load, a live adapter at most one
	// subscription registration.
	Subscribe(instruments []types.Instrument, interval types.Interval) error

	// GetHistory returns bars for the instruments from start onwards,
	// ordered ascending by timestamp.
	GetHistory(instruments []types.Instrument, interval types.Interval, start time.Time) ([]types.Bar, error)

	// Latest returns the most recent snapshot per instrument.
	Latest(instruments []types.Instrument) (map[types.Instrument]types.Snapshot, error)
}

// ReferenceData is an optional capability exposing static per-instrument
// metadata. Strategies that need it type-assert the DataPort.
type ReferenceData interface {
	// SectorOf returns the sector an instrument belongs to.
	SectorOf(instrument types.Instrument) (string, error)
	// StocksInSector returns all instruments in a sector.
	StocksInSector(sector string) ([]types.Instrument, error)
	// FloatMarketCap returns the free-float market capitalisation.
	FloatMarketCap(instrument types.Instrument) (float64, error)
	// AvgTurnover returns the recent average daily traded amount.
	AvgTurnover(instrument types.Instrument) (float64, error)
}
