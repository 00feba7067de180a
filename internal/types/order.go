package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/quantbay/stratexec/pkg/errors"
)

type PurchaseType string

type PriceType string

type OrderStatus string

const (
	PurchaseTypeBuy  PurchaseType = "BUY"
	PurchaseTypeSell PurchaseType = "SELL"
)

const (
	// PriceTypeMarket executes at the prevailing market price.
	PriceTypeMarket PriceType = "MARKET"
	// PriceTypeLimit executes at or better than the supplied limit price.
	PriceTypeLimit PriceType = "LIMIT"
	// PriceTypeLatest executes at the last traded price known to the backend.
	PriceTypeLatest PriceType = "LATEST"
)

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusAccepted        OrderStatus = "ACCEPTED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
)

// OrderRequest is a strategy's instruction to the execution port. The
// Remark is an opaque client-supplied correlation token; it must be
// unique within a run and is echoed back on every asynchronous event
// for the resulting order.
type OrderRequest struct {
	Symbol    Instrument   `yaml:"symbol" json:"symbol" validate:"required"`
	Side      PurchaseType `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Quantity  float64      `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	PriceType PriceType    `yaml:"price_type" json:"price_type" validate:"required,oneof=MARKET LIMIT LATEST"`
	// LimitPrice is required exactly when PriceType is LIMIT.
	LimitPrice   optional.Option[float64] `yaml:"limit_price" json:"limit_price"`
	Remark       string                   `yaml:"remark" json:"remark"`
	StrategyName string                   `yaml:"strategy_name" json:"strategy_name"`
}

// Validate validates the OrderRequest struct.
func (r *OrderRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrderParameters, "invalid order request", err)
	}

	if err := r.Symbol.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrderParameters, "invalid order symbol", err)
	}

	// A limit price is required exactly when the price type is LIMIT.
	if r.PriceType == PriceTypeLimit {
		if r.LimitPrice.IsNone() {
			return errors.New(errors.ErrCodeInvalidOrderParameters, "limit order requires a limit price")
		}

		if price := r.LimitPrice.Unwrap(); price <= 0 {
			return errors.Newf(errors.ErrCodeInvalidOrderParameters, "limit price must be positive, got %f", price)
		}
	}

	return nil
}

// OrderHandle identifies a submitted order. The ID is assigned by the
// adapter; the Remark is the correlation token carried by the request.
type OrderHandle struct {
	ID     string
	Remark string
}

// Order is an accepted order owned by the adapter until terminal state.
type Order struct {
	ID             string       `yaml:"id" json:"id"`
	Symbol         Instrument   `yaml:"symbol" json:"symbol"`
	Side           PurchaseType `yaml:"side" json:"side"`
	Quantity       float64      `yaml:"quantity" json:"quantity"`
	PriceType      PriceType    `yaml:"price_type" json:"price_type"`
	LimitPrice     float64      `yaml:"limit_price" json:"limit_price"`
	Remark         string       `yaml:"remark" json:"remark"`
	StrategyName   string       `yaml:"strategy_name" json:"strategy_name"`
	Status         OrderStatus  `yaml:"status" json:"status"`
	FilledQuantity float64      `yaml:"filled_quantity" json:"filled_quantity"`
	AvgFillPrice   float64      `yaml:"avg_fill_price" json:"avg_fill_price"`
	Timestamp      time.Time    `yaml:"timestamp" json:"timestamp"`
}

// OrderEventKind tags the variant of an OrderEvent.
type OrderEventKind string

const (
	OrderEventAccepted        OrderEventKind = "ACCEPTED"
	OrderEventRejected        OrderEventKind = "REJECTED"
	OrderEventFilled          OrderEventKind = "FILLED"
	OrderEventPartiallyFilled OrderEventKind = "PARTIALLY_FILLED"
	OrderEventCancelFailed    OrderEventKind = "CANCEL_FAILED"
)

// OrderEvent is the single tagged-variant type for all asynchronous
// order outcomes, correlated to the originating order by Remark (and
// OrderID once assigned). One OnOrderEvent entry point replaces the
// per-kind broker callback methods.
type OrderEvent struct {
	Kind           OrderEventKind `yaml:"kind" json:"kind"`
	OrderID        string         `yaml:"order_id" json:"order_id"`
	Remark         string         `yaml:"remark" json:"remark"`
	Symbol         Instrument     `yaml:"symbol" json:"symbol"`
	Side           PurchaseType   `yaml:"side" json:"side"`
	FilledQuantity float64        `yaml:"filled_quantity" json:"filled_quantity"`
	FillPrice      float64        `yaml:"fill_price" json:"fill_price"`
	// Reason carries the human-readable broker reason for Rejected and
	// CancelFailed events.
	Reason string    `yaml:"reason" json:"reason"`
	Time   time.Time `yaml:"time" json:"time"`
}

// Position is the backend's view of current exposure in one instrument.
type Position struct {
	Symbol        Instrument `yaml:"symbol" json:"symbol"`
	Quantity      float64    `yaml:"quantity" json:"quantity"`
	AvgCost       float64    `yaml:"avg_cost" json:"avg_cost"`
	OpenTimestamp time.Time  `yaml:"open_timestamp" json:"open_timestamp"`
}
