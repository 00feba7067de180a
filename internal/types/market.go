package types

import (
	"strings"
	"time"

	"github.com/moznion/go-optional"
	"github.com/quantbay/stratexec/pkg/errors"
)

// Instrument is an exchange-qualified symbol identifier, e.g. "600000.SH".
// Immutable once created.
type Instrument string

// Validate checks the CODE.EXCHANGE shape of the instrument identifier.
func (i Instrument) Validate() error {
	code, exchange, found := strings.Cut(string(i), ".")
	if !found || code == "" || exchange == "" {
		return errors.Newf(errors.ErrCodeInvalidInstrument, "instrument must be CODE.EXCHANGE, got %q", string(i))
	}

	return nil
}

// Code returns the exchange-local part of the identifier.
func (i Instrument) Code() string {
	code, _, _ := strings.Cut(string(i), ".")

	return code
}

// Interval is a fixed period granularity for market data.
type Interval string

const (
	IntervalTick Interval = "tick"
	Interval1m   Interval = "1m"
	Interval5m   Interval = "5m"
	Interval1d   Interval = "1d"
)

// ParseInterval validates and returns an Interval from its string form.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case IntervalTick, Interval1m, Interval5m, Interval1d:
		return Interval(s), nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidInterval, "unsupported interval: %q", s)
	}
}

// Bar is a timestamped OHLCV record for one instrument at one period
// granularity. Immutable; produced by a market data port, consumed once
// per strategy tick.
type Bar struct {
	Symbol    Instrument `yaml:"symbol" json:"symbol" validate:"required"`
	Time      time.Time  `yaml:"time" json:"time" validate:"required"`
	Open      float64    `yaml:"open" json:"open"`
	High      float64    `yaml:"high" json:"high"`
	Low       float64    `yaml:"low" json:"low"`
	Close     float64    `yaml:"close" json:"close"`
	Volume    float64    `yaml:"volume" json:"volume"`
	PrevClose float64    `yaml:"prev_close" json:"prev_close"`
}

// RelativeChange returns the change of Close against PrevClose, e.g. 0.1
// for a 10% rise. Returns 0 when PrevClose is zero.
func (b Bar) RelativeChange() float64 {
	if b.PrevClose == 0 {
		return 0
	}

	return (b.Close - b.PrevClose) / b.PrevClose
}

// Tick is a single last-price/volume snapshot, finer-grained than a Bar.
// Optional capability: not all adapters support it.
type Tick struct {
	Symbol    Instrument `yaml:"symbol" json:"symbol" validate:"required"`
	Time      time.Time  `yaml:"time" json:"time" validate:"required"`
	LastPrice float64    `yaml:"last_price" json:"last_price"`
	Volume    float64    `yaml:"volume" json:"volume"`
	// Amount is the traded amount (price * volume) for this update.
	Amount float64 `yaml:"amount" json:"amount"`
}

// Snapshot is the latest state of one instrument: always a bar, with a
// tick when the adapter supports tick granularity.
type Snapshot struct {
	Bar  Bar
	Tick optional.Option[Tick]
}
