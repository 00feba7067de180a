package backtest

import (
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
)

// Ledger records every order and fill of a backtest run in an
// in-memory DuckDB instance. The submission-ordered order sequence is
// queryable afterwards, which is how runs are compared for
// determinism.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
	seq    int64
}

func NewLedger(logger *logger.Logger) (*Ledger, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to open ledger database", err)
	}

	return &Ledger{
		db:     db,
		logger: logger,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}, nil
}

// Initialize creates the orders and trades tables.
func (l *Ledger) Initialize() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			seq BIGINT PRIMARY KEY,
			order_id TEXT,
			remark TEXT,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE,
			price_type TEXT,
			limit_price DOUBLE,
			status TEXT,
			strategy_name TEXT,
			submitted_at TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to create orders table", err)
	}

	_, err = l.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			executed_at TIMESTAMP,
			executed_qty DOUBLE,
			executed_price DOUBLE,
			commission DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to create trades table", err)
	}

	return nil
}

// RecordOrder inserts a submitted order with the next sequence number.
func (l *Ledger) RecordOrder(order types.Order) error {
	l.seq++

	_, err := l.sq.
		Insert("orders").
		Columns(
			"seq", "order_id", "remark", "symbol", "side", "quantity",
			"price_type", "limit_price", "status", "strategy_name", "submitted_at",
		).
		Values(
			l.seq, order.ID, order.Remark, order.Symbol, order.Side, order.Quantity,
			order.PriceType, order.LimitPrice, order.Status, order.StrategyName, order.Timestamp,
		).
		RunWith(l.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to record order", err)
	}

	return nil
}

// UpdateOrderStatus moves an order to a new status.
func (l *Ledger) UpdateOrderStatus(orderID string, status types.OrderStatus) error {
	_, err := l.sq.
		Update("orders").
		Set("status", status).
		Where(squirrel.Eq{"order_id": orderID}).
		RunWith(l.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to update order status", err)
	}

	return nil
}

// RecordFill inserts a trade and marks the order filled.
func (l *Ledger) RecordFill(order types.Order, commission float64) error {
	_, err := l.sq.
		Insert("trades").
		Columns("order_id", "symbol", "side", "executed_at", "executed_qty", "executed_price", "commission").
		Values(order.ID, order.Symbol, order.Side, order.Timestamp, order.FilledQuantity, order.AvgFillPrice, commission).
		RunWith(l.db).
		Exec()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to record fill", err)
	}

	return l.UpdateOrderStatus(order.ID, types.OrderStatusFilled)
}

// Orders returns every recorded order in submission order.
func (l *Ledger) Orders() ([]types.Order, error) {
	rows, err := l.sq.
		Select("order_id", "remark", "symbol", "side", "quantity", "price_type", "limit_price", "status", "strategy_name", "submitted_at").
		From("orders").
		OrderBy("seq ASC").
		RunWith(l.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query orders", err)
	}
	defer rows.Close()

	var orders []types.Order

	for rows.Next() {
		var (
			order                          types.Order
			symbol, side, priceType, state string
		)

		err := rows.Scan(
			&order.ID, &order.Remark, &symbol, &side, &order.Quantity,
			&priceType, &order.LimitPrice, &state, &order.StrategyName, &order.Timestamp,
		)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order", err)
		}

		order.Symbol = types.Instrument(symbol)
		order.Side = types.PurchaseType(side)
		order.PriceType = types.PriceType(priceType)
		order.Status = types.OrderStatus(state)
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// TradeCount returns the number of recorded fills.
func (l *Ledger) TradeCount() (int, error) {
	var count int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count trades", err)
	}

	return count, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
