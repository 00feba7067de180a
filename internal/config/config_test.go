package config

import (
	"testing"
	"time"

	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestParseBacktestConfig() {
	config, err := Parse([]byte(`
mode: backtest
strategy:
  name: momentum
  params:
    threshold: 0.09
    lot_size: 100
instruments:
  - 600000.SH
  - 000001.SZ
interval: 1d
backtest:
  data_path: testdata/bars.csv
  fill_policy: next-open
  initial_capital: 1000000
  commission_rate: 0.0003
`))
	s.Require().NoError(err)

	s.Equal(ModeBacktest, config.Mode)
	s.Equal("momentum", config.Strategy.Name)
	s.Equal([]types.Instrument{"600000.SH", "000001.SZ"}, config.Instruments)
	s.Equal(types.Interval1d, config.ParsedInterval())
	s.Equal(FillPolicyNextOpen, config.Backtest.FillPolicy)
	// Window defaults.
	s.Equal("09:30:00", config.Window.Start)
	s.Equal("15:00:00", config.Window.End)
}

func (s *ConfigTestSuite) TestParseLiveConfig() {
	config, err := Parse([]byte(`
mode: live
strategy:
  name: sector-chase
instruments:
  - 600000.SH
interval: 5m
window:
  start: "09:30:00"
  end: "15:00:00"
live:
  broker: binance-paper
  session_path: /opt/broker/userdata
  session_id: 123456
  account_id: acc-1
  poll_interval: 3s
  reconnect_attempts: 2
`))
	s.Require().NoError(err)

	s.Equal(ModeLive, config.Mode)
	s.Equal("binance-paper", config.Live.Broker)
	s.Equal(3*time.Second, config.Live.PollInterval)
	s.Equal(2, config.Live.ReconnectAttempts)
}

func (s *ConfigTestSuite) TestUnknownFieldRejected() {
	_, err := Parse([]byte(`
mode: backtest
strategy:
  name: momentum
instruments: [600000.SH]
interval: 1d
turbo: true
backtest:
  data_path: testdata/bars.csv
  fill_policy: next-open
  initial_capital: 1000000
`))
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestModeRequiresMatchingSection() {
	_, err := Parse([]byte(`
mode: backtest
strategy:
  name: momentum
instruments: [600000.SH]
interval: 1d
`))
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestInvalidInstrument() {
	_, err := Parse([]byte(`
mode: backtest
strategy:
  name: momentum
instruments: [600000]
interval: 1d
backtest:
  data_path: testdata/bars.csv
  fill_policy: next-open
  initial_capital: 1000000
`))
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestInvalidInterval() {
	_, err := Parse([]byte(`
mode: backtest
strategy:
  name: momentum
instruments: [600000.SH]
interval: 3h
backtest:
  data_path: testdata/bars.csv
  fill_policy: next-open
  initial_capital: 1000000
`))
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *ConfigTestSuite) TestInvalidWindow() {
	_, err := Parse([]byte(`
mode: backtest
strategy:
  name: momentum
instruments: [600000.SH]
interval: 1d
window:
  start: "15:00:00"
  end: "09:30:00"
backtest:
  data_path: testdata/bars.csv
  fill_policy: next-open
  initial_capital: 1000000
`))
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidTradingWindow))
}

func (s *ConfigTestSuite) TestInvalidFillPolicy() {
	_, err := Parse([]byte(`
mode: backtest
strategy:
  name: momentum
instruments: [600000.SH]
interval: 1d
backtest:
  data_path: testdata/bars.csv
  fill_policy: midpoint
  initial_capital: 1000000
`))
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
