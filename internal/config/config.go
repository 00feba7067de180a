// Package config loads and validates the run configuration file.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode selects which adapter the runner composes.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

// FillPolicy selects how the backtest broker prices fills.
type FillPolicy string

const (
	// FillPolicyNextOpen fills at the next bar's open price.
	FillPolicyNextOpen FillPolicy = "next-open"
	// FillPolicySameClose fills at the submitting bar's close price.
	FillPolicySameClose FillPolicy = "same-close"
)

// MinPollInterval is the floor the live polling interval is clamped to,
// bounding the request rate against the broker terminal.
const MinPollInterval = time.Second

// Config is the full run configuration.
type Config struct {
	Mode        Mode               `yaml:"mode" json:"mode" validate:"required,oneof=backtest live"`
	Strategy    StrategyConfig     `yaml:"strategy" json:"strategy" validate:"required"`
	Instruments []types.Instrument `yaml:"instruments" json:"instruments" validate:"required,min=1"`
	Interval    string             `yaml:"interval" json:"interval" validate:"required"`
	Window      WindowConfig       `yaml:"window" json:"window"`
	Backtest    *BacktestConfig    `yaml:"backtest" json:"backtest"`
	Live        *LiveConfig        `yaml:"live" json:"live"`
}

// StrategyConfig names the strategy and carries its raw parameters.
type StrategyConfig struct {
	Name   string         `yaml:"name" json:"name" validate:"required"`
	Params map[string]any `yaml:"params" json:"params"`
}

// WindowConfig bounds the live polling loop to a trading window.
type WindowConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// BacktestConfig configures the offline adapter.
type BacktestConfig struct {
	// DataPath points at a CSV or Parquet bar dataset.
	DataPath string `yaml:"data_path" json:"data_path" validate:"required"`
	// ReferencePath optionally points at a per-instrument reference
	// dataset (sector, float cap, turnover) for strategies that need it.
	ReferencePath  string     `yaml:"reference_path" json:"reference_path"`
	FillPolicy     FillPolicy `yaml:"fill_policy" json:"fill_policy" validate:"required,oneof=next-open same-close"`
	InitialCapital float64    `yaml:"initial_capital" json:"initial_capital" validate:"required,gt=0"`
	CommissionRate float64    `yaml:"commission_rate" json:"commission_rate" validate:"gte=0"`
}

// LiveConfig configures the live adapter and its broker session.
type LiveConfig struct {
	Broker string `yaml:"broker" json:"broker" validate:"required,oneof=binance binance-paper"`
	// SessionPath and SessionID identify the broker terminal session.
	SessionPath string `yaml:"session_path" json:"session_path"`
	SessionID   int    `yaml:"session_id" json:"session_id"`
	AccountID   string `yaml:"account_id" json:"account_id" validate:"required"`
	APIKey      string `yaml:"api_key" json:"api_key"`
	APISecret   string `yaml:"api_secret" json:"api_secret"`
	// PollInterval is clamped to MinPollInterval by the adapter.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// ReconnectAttempts is the runner's policy after a lost connection:
	// 0 halts the run, n > 0 reconnects up to n times.
	ReconnectAttempts int `yaml:"reconnect_attempts" json:"reconnect_attempts" validate:"gte=0"`
}

// Defaults applied before decoding the file.
func newConfig() Config {
	return Config{
		Interval: string(types.Interval1d),
		Window: WindowConfig{
			Start: "09:30:00",
			End:   "15:00:00",
		},
	}
}

// Load reads, decodes, and validates a configuration file. Unknown
// fields are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	return Parse(raw)
}

// Parse decodes and validates raw YAML configuration.
func Parse(raw []byte) (*Config, error) {
	config := newConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to decode config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks struct tags and the cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	for _, instrument := range c.Instruments {
		if err := instrument.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid instrument", err)
		}
	}

	if _, err := types.ParseInterval(c.Interval); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid interval", err)
	}

	if err := c.Window.validate(); err != nil {
		return err
	}

	switch c.Mode {
	case ModeBacktest:
		if c.Backtest == nil {
			return errors.New(errors.ErrCodeInvalidConfiguration, "backtest mode requires a backtest section")
		}
	case ModeLive:
		if c.Live == nil {
			return errors.New(errors.ErrCodeInvalidConfiguration, "live mode requires a live section")
		}
	}

	return nil
}

// ParsedInterval returns the validated interval.
func (c *Config) ParsedInterval() types.Interval {
	interval, _ := types.ParseInterval(c.Interval)

	return interval
}

func (w *WindowConfig) validate() error {
	start, err := time.Parse("15:04:05", w.Start)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidTradingWindow, err, "invalid window start %q", w.Start)
	}

	end, err := time.Parse("15:04:05", w.End)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidTradingWindow, err, "invalid window end %q", w.End)
	}

	if !start.Before(end) {
		return errors.Newf(errors.ErrCodeInvalidTradingWindow, "window start %q must precede end %q", w.Start, w.End)
	}

	return nil
}
