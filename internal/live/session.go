package live

import (
	"context"
	"time"

	"github.com/quantbay/stratexec/internal/types"
)

// OrderUpdate is a broker-side order state change.
type OrderUpdate struct {
	OrderID        string
	Remark         string
	Symbol         types.Instrument
	Side           types.PurchaseType
	Status         types.OrderStatus
	FilledQuantity float64
	AvgFillPrice   float64
	Time           time.Time
}

// TradeFill is one execution against a submitted order.
type TradeFill struct {
	OrderID  string
	Remark   string
	Symbol   types.Instrument
	Side     types.PurchaseType
	Quantity float64
	Price    float64
	Time     time.Time
}

// OrderFailure reports an order the broker refused.
type OrderFailure struct {
	OrderID string
	Remark  string
	Reason  string
	Time    time.Time
}

// CancelFailure reports a cancel request the broker refused.
type CancelFailure struct {
	OrderID string
	Remark  string
	Reason  string
	Time    time.Time
}

// AccountStatus is a broker account state notification.
type AccountStatus struct {
	AccountID string
	Status    string
	Time      time.Time
}

// SessionHandler receives asynchronous session notifications. The
// adapter registers itself as the handler and serializes delivery
// through a single dispatch goroutine; implementations of
// BrokerSession may invoke these methods from any goroutine.
type SessionHandler interface {
	HandleDisconnected()
	HandleOrderUpdate(update OrderUpdate)
	HandleTrade(fill TradeFill)
	HandleOrderError(failure OrderFailure)
	HandleCancelError(failure CancelFailure)
	HandleAccountStatus(status AccountStatus)
}

// BrokerSession is the opaque boundary to a broker terminal. The
// adapter owns exactly one session per run and never reconnects on its
// own; reconnect policy belongs to the runner.
type BrokerSession interface {
	// Connect establishes the session. Must be called before any other
	// method.
	Connect(ctx context.Context) error
	// Close tears the session down. No handler methods are invoked
	// after Close returns.
	Close() error
	// RegisterHandler installs the notification sink. Must be called
	// before Connect.
	RegisterHandler(handler SessionHandler)

	// SubscribeQuotes registers quote interest for the instruments.
	SubscribeQuotes(instruments []types.Instrument, interval types.Interval) error
	// LatestQuotes returns the most recent snapshot per instrument.
	LatestQuotes(instruments []types.Instrument) (map[types.Instrument]types.Snapshot, error)
	// History returns bars from start onwards, ordered ascending.
	History(instruments []types.Instrument, interval types.Interval, start time.Time) ([]types.Bar, error)

	// SubmitOrder routes an order and returns the broker order ID.
	SubmitOrder(request types.OrderRequest) (string, error)
	// CancelOrder requests cancellation of a broker order.
	CancelOrder(orderID string) error
	// Positions returns the account's open positions.
	Positions() ([]types.Position, error)
	// Cash returns the account's available buying power.
	Cash() (float64, error)
}
