package strategy

import (
	"testing"

	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMomentumFromRegistry(t *testing.T) {
	s, err := New("momentum", map[string]any{
		"threshold": 0.05,
		"lot_size":  200,
	})
	require.NoError(t, err)

	momentum, ok := s.(*Momentum)
	require.True(t, ok)
	assert.Equal(t, 0.05, momentum.config.Threshold)
	assert.Equal(t, 200.0, momentum.config.LotSize)
}

func TestNewUsesDefaults(t *testing.T) {
	s, err := New("momentum", nil)
	require.NoError(t, err)

	momentum := s.(*Momentum)
	assert.Equal(t, 0.09, momentum.config.Threshold)
	assert.Equal(t, 100.0, momentum.config.LotSize)
}

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New("arbitrage", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStrategyNotFound))
}

func TestNewSectorChaseFromRegistry(t *testing.T) {
	s, err := New("sector-chase", map[string]any{
		"max_positions": 5,
	})
	require.NoError(t, err)

	chase := s.(*SectorChase)
	assert.Equal(t, 5, chase.config.MaxPositions)
	assert.Equal(t, 0.03, chase.config.WeightGain)
}

func TestNames(t *testing.T) {
	assert.ElementsMatch(t, []string{"momentum", "sector-chase"}, Names())
}
