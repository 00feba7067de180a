package types

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/quantbay/stratexec/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func validRequest() OrderRequest {
	return OrderRequest{
		Symbol:       "600000.SH",
		Side:         PurchaseTypeBuy,
		Quantity:     100,
		PriceType:    PriceTypeMarket,
		LimitPrice:   optional.None[float64](),
		Remark:       "r-1",
		StrategyName: "momentum",
	}
}

func TestOrderRequestValidate(t *testing.T) {
	req := validRequest()
	assert.NoError(t, req.Validate())
}

func TestOrderRequestValidateQuantity(t *testing.T) {
	req := validRequest()
	req.Quantity = 0
	err := req.Validate()
	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidOrderParameters))

	req.Quantity = -10
	assert.Error(t, req.Validate())
}

func TestOrderRequestValidateLimitPrice(t *testing.T) {
	req := validRequest()
	req.PriceType = PriceTypeLimit

	// Limit order without a price is rejected.
	err := req.Validate()
	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidOrderParameters))

	req.LimitPrice = optional.Some(0.0)
	assert.Error(t, req.Validate())

	req.LimitPrice = optional.Some(10.5)
	assert.NoError(t, req.Validate())
}

func TestOrderRequestValidateSymbol(t *testing.T) {
	req := validRequest()
	req.Symbol = "600000"
	err := req.Validate()
	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidOrderParameters))
}

func TestOrderRequestValidateSide(t *testing.T) {
	req := validRequest()
	req.Side = "HOLD"
	assert.Error(t, req.Validate())
}
