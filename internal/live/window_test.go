package live

import (
	"testing"
	"time"

	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2024, 3, 1, hour, minute, second, 0, time.UTC)
}

func TestTradingWindowContains(t *testing.T) {
	window, err := NewTradingWindow("09:30:00", "15:00:00")
	require.NoError(t, err)

	assert.False(t, window.Contains(at(9, 29, 59)))
	assert.True(t, window.Contains(at(9, 30, 0)))
	assert.True(t, window.Contains(at(12, 0, 0)))
	assert.False(t, window.Contains(at(15, 0, 0)))
	assert.False(t, window.Contains(at(15, 0, 1)))
}

func TestTradingWindowEnded(t *testing.T) {
	window, err := NewTradingWindow("09:30:00", "15:00:00")
	require.NoError(t, err)

	assert.False(t, window.Ended(at(14, 59, 59)))
	assert.True(t, window.Ended(at(15, 0, 0)))
	assert.True(t, window.Ended(at(15, 0, 1)))
}

func TestTradingWindowBefore(t *testing.T) {
	window, err := NewTradingWindow("09:30:00", "15:00:00")
	require.NoError(t, err)

	assert.True(t, window.Before(at(9, 0, 0)))
	assert.False(t, window.Before(at(9, 30, 0)))
}

func TestNewTradingWindowRejectsInvalidBounds(t *testing.T) {
	_, err := NewTradingWindow("15:00:00", "09:30:00")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTradingWindow))

	_, err = NewTradingWindow("nine thirty", "15:00:00")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidTradingWindow))
}
