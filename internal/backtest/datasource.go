// Package backtest implements the offline adapter: a DuckDB-backed bar
// datasource replayed deterministically against a simulated broker.
package backtest

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/quantbay/stratexec/internal/logger"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBDataSource loads historical bars and optional reference data
// from CSV or Parquet files into an in-memory DuckDB instance.
type DuckDBDataSource struct {
	db     *sql.DB
	logger *logger.Logger

	hasReference bool
}

func NewDataSource(logger *logger.Logger) (*DuckDBDataSource, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to open duckdb", err)
	}

	return &DuckDBDataSource{
		db:     db,
		logger: logger,
	}, nil
}

// Initialize creates the bars view over the dataset file. The file
// format is picked by extension: .parquet uses read_parquet, everything
// else read_csv_auto.
func (d *DuckDBDataSource) Initialize(path string) error {
	d.logger.Debug("initializing duckdb datasource", zap.String("path", path))

	if _, err := d.db.Exec(`DROP VIEW IF EXISTS bars;`); err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to drop existing bars view", err)
	}

	// CREATE VIEW has no placeholder support, so the path is inlined.
	query := fmt.Sprintf(`CREATE VIEW bars AS SELECT * FROM %s;`, readerFor(path))
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceFailed, err, "failed to load dataset %s", path)
	}

	return nil
}

// InitializeReference creates the reference view over a per-instrument
// metadata dataset with columns symbol, sector, float_cap, turnover.
func (d *DuckDBDataSource) InitializeReference(path string) error {
	if _, err := d.db.Exec(`DROP VIEW IF EXISTS reference;`); err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceFailed, "failed to drop existing reference view", err)
	}

	query := fmt.Sprintf(`CREATE VIEW reference AS SELECT * FROM %s;`, readerFor(path))
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeDataSourceFailed, err, "failed to load reference dataset %s", path)
	}

	d.hasReference = true

	return nil
}

// HasReference reports whether a reference dataset was loaded.
func (d *DuckDBDataSource) HasReference() bool {
	return d.hasReference
}

// BarsSince returns all bars for the instruments from start onwards,
// sorted by timestamp with ties broken by the position of the
// instrument in the given slice so replay order is stable across runs.
// PrevClose is derived with a window function over each instrument's
// own series. Dataset order is checked before that query runs: the
// window operator hands rows back sorted by (symbol, time), which
// would silently repair a per-instrument timestamp regression, so the
// regression check has to see the raw file order.
func (d *DuckDBDataSource) BarsSince(instruments []types.Instrument, start time.Time) ([]types.Bar, error) {
	if len(instruments) == 0 {
		return nil, nil
	}

	placeholders := make([]string, 0, len(instruments))
	params := make([]any, 0, len(instruments)+1)

	for i, instrument := range instruments {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		params = append(params, string(instrument))
	}

	clause := strings.Join(placeholders, ", ")

	if err := d.validateDatasetOrder(clause, params); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT time, symbol, open, high, low, close, volume,
		       lag(close) OVER (PARTITION BY symbol ORDER BY time) AS prev_close
		FROM bars
		WHERE symbol IN (%s)
		QUALIFY time >= $%d
	`, clause, len(instruments)+1)
	params = append(params, start)

	rows, err := d.db.Query(query, params...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var (
			bar       types.Bar
			symbol    string
			prevClose sql.NullFloat64
		)

		if err := rows.Scan(&bar.Time, &symbol, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &prevClose); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
		}

		bar.Symbol = types.Instrument(symbol)
		if prevClose.Valid {
			bar.PrevClose = prevClose.Float64
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read bars", err)
	}

	rank := make(map[types.Instrument]int, len(instruments))
	for i, instrument := range instruments {
		rank[instrument] = i
	}

	sort.SliceStable(bars, func(i, j int) bool {
		if !bars[i].Time.Equal(bars[j].Time) {
			return bars[i].Time.Before(bars[j].Time)
		}

		return rank[bars[i].Symbol] < rank[bars[j].Symbol]
	})

	return bars, nil
}

// SectorOf implements the reference data lookup.
func (d *DuckDBDataSource) SectorOf(instrument types.Instrument) (string, error) {
	var sector string
	if err := d.referenceRow(instrument, "sector", &sector); err != nil {
		return "", err
	}

	return sector, nil
}

// StocksInSector returns all instruments recorded in a sector.
func (d *DuckDBDataSource) StocksInSector(sector string) ([]types.Instrument, error) {
	if !d.hasReference {
		return nil, errors.New(errors.ErrCodeDataUnavailable, "no reference dataset loaded")
	}

	rows, err := d.db.Query(`SELECT symbol FROM reference WHERE sector = $1 ORDER BY symbol`, sector)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query sector members", err)
	}
	defer rows.Close()

	var instruments []types.Instrument

	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan sector member", err)
		}

		instruments = append(instruments, types.Instrument(symbol))
	}

	return instruments, rows.Err()
}

// FloatMarketCap implements the reference data lookup.
func (d *DuckDBDataSource) FloatMarketCap(instrument types.Instrument) (float64, error) {
	var floatCap float64
	if err := d.referenceRow(instrument, "float_cap", &floatCap); err != nil {
		return 0, err
	}

	return floatCap, nil
}

// AvgTurnover implements the reference data lookup.
func (d *DuckDBDataSource) AvgTurnover(instrument types.Instrument) (float64, error) {
	var turnover float64
	if err := d.referenceRow(instrument, "turnover", &turnover); err != nil {
		return 0, err
	}

	return turnover, nil
}

func (d *DuckDBDataSource) Close() error {
	return d.db.Close()
}

func (d *DuckDBDataSource) referenceRow(instrument types.Instrument, column string, dest any) error {
	if !d.hasReference {
		return errors.New(errors.ErrCodeDataUnavailable, "no reference dataset loaded")
	}

	query := fmt.Sprintf(`SELECT %s FROM reference WHERE symbol = $1`, column)

	err := d.db.QueryRow(query, string(instrument)).Scan(dest)
	if err == sql.ErrNoRows {
		return errors.Newf(errors.ErrCodeDataUnavailable, "no reference data for %s", instrument)
	}

	if err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to query reference data for %s", instrument)
	}

	return nil
}

// validateDatasetOrder scans (time, symbol) in file order and rejects a
// per-instrument timestamp regression. The row number is assigned over
// the unfiltered view before any other operator runs, pinning each row
// to its position in the file.
func (d *DuckDBDataSource) validateDatasetOrder(clause string, params []any) error {
	query := fmt.Sprintf(`
		SELECT time, symbol
		FROM (
			SELECT time, symbol, row_number() OVER () AS rn
			FROM bars
		)
		WHERE symbol IN (%s)
		ORDER BY rn
	`, clause)

	rows, err := d.db.Query(query, params...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan dataset order", err)
	}
	defer rows.Close()

	last := make(map[types.Instrument]time.Time)

	for rows.Next() {
		var (
			ts     time.Time
			symbol string
		)

		if err := rows.Scan(&ts, &symbol); err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan dataset order row", err)
		}

		instrument := types.Instrument(symbol)
		if prev, ok := last[instrument]; ok && ts.Before(prev) {
			return errors.Newf(errors.ErrCodeDataUnavailable,
				"timestamp regression for %s: %s after %s",
				instrument, ts.Format(time.RFC3339), prev.Format(time.RFC3339))
		}

		last[instrument] = ts
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to read dataset order", err)
	}

	return nil
}

func readerFor(path string) string {
	escaped := strings.ReplaceAll(path, "'", "''")
	if strings.HasSuffix(path, ".parquet") {
		return fmt.Sprintf("read_parquet('%s')", escaped)
	}

	return fmt.Sprintf("read_csv_auto('%s')", escaped)
}
