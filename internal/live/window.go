// Package live implements the live adapter: a supervised broker
// terminal session driven by a polling loop inside a trading window.
package live

import (
	"time"

	"github.com/quantbay/stratexec/pkg/errors"
)

// TradingWindow is a daily [start, end) time-of-day range. The polling
// loop only runs inside it; a poll at or after the end exits the loop
// cleanly.
type TradingWindow struct {
	start int
	end   int
}

// NewTradingWindow parses HH:MM:SS bounds.
func NewTradingWindow(start, end string) (TradingWindow, error) {
	startSecond, err := parseTimeOfDay(start)
	if err != nil {
		return TradingWindow{}, errors.Wrapf(errors.ErrCodeInvalidTradingWindow, err, "invalid window start %q", start)
	}

	endSecond, err := parseTimeOfDay(end)
	if err != nil {
		return TradingWindow{}, errors.Wrapf(errors.ErrCodeInvalidTradingWindow, err, "invalid window end %q", end)
	}

	if startSecond >= endSecond {
		return TradingWindow{}, errors.Newf(errors.ErrCodeInvalidTradingWindow, "window start %q must precede end %q", start, end)
	}

	return TradingWindow{start: startSecond, end: endSecond}, nil
}

// Contains reports whether t falls inside the window.
func (w TradingWindow) Contains(t time.Time) bool {
	second := secondOfDay(t)

	return second >= w.start && second < w.end
}

// Before reports whether t falls before the window opens.
func (w TradingWindow) Before(t time.Time) bool {
	return secondOfDay(t) < w.start
}

// Ended reports whether t falls at or after the window end.
func (w TradingWindow) Ended(t time.Time) bool {
	return secondOfDay(t) >= w.end
}

func parseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, err
	}

	return secondOfDay(t), nil
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
