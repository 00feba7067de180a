package strategy

import (
	"fmt"
	"time"

	"github.com/quantbay/stratexec/internal/market"
	"github.com/quantbay/stratexec/internal/trading"
	"github.com/quantbay/stratexec/internal/types"
	"github.com/quantbay/stratexec/pkg/errors"
)

// fakeDataPort satisfies market.DataPort for strategies that never pull
// data themselves.
type fakeDataPort struct{}

var _ market.DataPort = (*fakeDataPort)(nil)

func (f *fakeDataPort) Subscribe(instruments []types.Instrument, interval types.Interval) error {
	return nil
}

func (f *fakeDataPort) GetHistory(instruments []types.Instrument, interval types.Interval, start time.Time) ([]types.Bar, error) {
	return nil, nil
}

func (f *fakeDataPort) Latest(instruments []types.Instrument) (map[types.Instrument]types.Snapshot, error) {
	return map[types.Instrument]types.Snapshot{}, nil
}

// refEntry is the static metadata the fake reference data serves.
type refEntry struct {
	sector   string
	floatCap float64
	turnover float64
}

// fakeRefDataPort adds the reference data capability on top of the
// fake data port.
type fakeRefDataPort struct {
	fakeDataPort
	entries map[types.Instrument]refEntry
}

var _ market.ReferenceData = (*fakeRefDataPort)(nil)

func (f *fakeRefDataPort) SectorOf(instrument types.Instrument) (string, error) {
	entry, ok := f.entries[instrument]
	if !ok {
		return "", errors.Newf(errors.ErrCodeDataUnavailable, "no reference data for %s", instrument)
	}

	return entry.sector, nil
}

func (f *fakeRefDataPort) StocksInSector(sector string) ([]types.Instrument, error) {
	var instruments []types.Instrument
	for instrument, entry := range f.entries {
		if entry.sector == sector {
			instruments = append(instruments, instrument)
		}
	}

	return instruments, nil
}

func (f *fakeRefDataPort) FloatMarketCap(instrument types.Instrument) (float64, error) {
	entry, ok := f.entries[instrument]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeDataUnavailable, "no reference data for %s", instrument)
	}

	return entry.floatCap, nil
}

func (f *fakeRefDataPort) AvgTurnover(instrument types.Instrument) (float64, error) {
	entry, ok := f.entries[instrument]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeDataUnavailable, "no reference data for %s", instrument)
	}

	return entry.turnover, nil
}

// fakeExecutionPort records submitted requests and can be primed to
// fail submissions.
type fakeExecutionPort struct {
	submitted []types.OrderRequest
	submitErr error
	handler   trading.EventHandler
	positions []types.Position
	cash      float64
}

var _ trading.ExecutionPort = (*fakeExecutionPort)(nil)

func (f *fakeExecutionPort) SubmitOrder(request types.OrderRequest) (types.OrderHandle, error) {
	if f.submitErr != nil {
		return types.OrderHandle{}, f.submitErr
	}

	f.submitted = append(f.submitted, request)

	return types.OrderHandle{
		ID:     fmt.Sprintf("order-%d", len(f.submitted)),
		Remark: request.Remark,
	}, nil
}

func (f *fakeExecutionPort) CancelOrder(handle types.OrderHandle) error {
	return nil
}

func (f *fakeExecutionPort) SetEventHandler(handler trading.EventHandler) {
	f.handler = handler
}

func (f *fakeExecutionPort) Positions() ([]types.Position, error) {
	return f.positions, nil
}

func (f *fakeExecutionPort) Cash() (float64, error) {
	return f.cash, nil
}
