// Package trading defines the backend-agnostic order execution contract.
package trading

import (
	"github.com/quantbay/stratexec/internal/types"
)

// EventHandler receives asynchronous order outcomes. The adapter
// guarantees sequential delivery: at most one invocation is in flight
// at any time, in backend arrival order.
type EventHandler func(event types.OrderEvent)

// ExecutionPort routes orders to a trading backend. Both the backtest
// and live adapters implement it.
//
// SubmitOrder validates the request before routing; a request that
// fails validation returns ErrCodeInvalidOrderParameters and never
// reaches the backend. A synchronous error from the backend means the
// order was not accepted and no events will follow for its remark.
type ExecutionPort interface {
	// SubmitOrder routes an order to the backend and returns a handle
	// once the backend acknowledges receipt. Acceptance is not a fill:
	// the outcome arrives later through the event handler.
	SubmitOrder(request types.OrderRequest) (types.OrderHandle, error)

	// CancelOrder requests cancellation of a previously submitted order.
	// A nil return acknowledges the cancel request only; whether the
	// cancel succeeded is reported through the event handler.
	CancelOrder(handle types.OrderHandle) error

	// SetEventHandler installs the asynchronous event sink. Must be
	// called before SubmitOrder; later calls replace the handler.
	SetEventHandler(handler EventHandler)

	// Positions returns the backend's current view of open positions.
	Positions() ([]types.Position, error)

	// Cash returns the currently available buying power.
	Cash() (float64, error)
}
