package strategy

import (
	"sort"

	"github.com/quantbay/stratexec/internal/types"
)

// PositionBook is the strategy-owned set of instruments it considers
// open. Single writer: only the replay or polling goroutine mutates it.
// Order event callbacks observe outcomes but never write here.
// Not safe for concurrent use.
type PositionBook struct {
	open map[types.Instrument]struct{}
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		open: make(map[types.Instrument]struct{}),
	}
}

// IsOpen reports whether the instrument is recorded as open.
func (b *PositionBook) IsOpen(instrument types.Instrument) bool {
	_, ok := b.open[instrument]

	return ok
}

// MarkOpen records the instrument as open. Recording an instrument that
// is already open is a no-op, keeping the set duplicate-free.
func (b *PositionBook) MarkOpen(instrument types.Instrument) {
	b.open[instrument] = struct{}{}
}

// MarkClosed removes the instrument from the open set.
func (b *PositionBook) MarkClosed(instrument types.Instrument) {
	delete(b.open, instrument)
}

// Len returns the number of open instruments.
func (b *PositionBook) Len() int {
	return len(b.open)
}

// Instruments returns the open set sorted lexicographically, so the
// final open set is comparable across runs.
func (b *PositionBook) Instruments() []types.Instrument {
	instruments := make([]types.Instrument, 0, len(b.open))
	for instrument := range b.open {
		instruments = append(instruments, instrument)
	}

	sort.Slice(instruments, func(i, j int) bool {
		return instruments[i] < instruments[j]
	})

	return instruments
}
