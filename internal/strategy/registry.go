package strategy

import (
	"github.com/quantbay/stratexec/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Factory constructs a strategy from the raw parameter block of the run
// configuration.
type Factory func(params map[string]any) (Strategy, error)

var registry = map[string]Factory{
	"momentum": func(params map[string]any) (Strategy, error) {
		config := MomentumConfig{
			Threshold: 0.09,
			LotSize:   100,
		}
		if err := decodeParams(params, &config); err != nil {
			return nil, err
		}

		return NewMomentum(config)
	},
	"sector-chase": func(params map[string]any) (Strategy, error) {
		config := SectorChaseConfig{
			WeightFloatCapMin:   300e8,
			SmallCapTurnoverMin: 3e8,
			WeightGain:          0.03,
			SectorGain:          0.08,
			OrderAmount:         100000,
			MaxSectors:          3,
			MaxPositions:        10,
			SellTime:            "09:40:00",
		}
		if err := decodeParams(params, &config); err != nil {
			return nil, err
		}

		return NewSectorChase(config)
	},
}

// New constructs a registered strategy by name.
func New(name string, params map[string]any) (Strategy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy: %q", name)
	}

	return factory(params)
}

// Names returns the registered strategy names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	return names
}

// decodeParams round-trips the raw parameter map through YAML into the
// typed config, so strategy params use the same tags as the config
// file.
func decodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}

	raw, err := yaml.Marshal(params)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to encode strategy params", err)
	}

	if err := yaml.Unmarshal(raw, out); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to decode strategy params", err)
	}

	return nil
}
