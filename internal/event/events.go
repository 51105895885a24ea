package event

import (
	"time"

	"github.com/shopspring/decimal"

	"execsim/internal/domain"
)

// Event is a decoded market-data update. The wire framing that produced it is
// the transport's concern; the book consumes only these two constructors.
type Event interface {
	Sequence() uint64
	Time() time.Time
}

// Snapshot replaces both sides of the book atomically.
type Snapshot struct {
	Seq  uint64
	Ts   time.Time
	Bids []domain.PriceLevel // descending by price
	Asks []domain.PriceLevel // ascending by price
}

func (s *Snapshot) Sequence() uint64 { return s.Seq }
func (s *Snapshot) Time() time.Time  { return s.Ts }

// Delta inserts, updates or removes a single price level.
// A zero quantity removes the level.
type Delta struct {
	Seq      uint64
	Ts       time.Time
	Side     domain.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

func (d *Delta) Sequence() uint64 { return d.Seq }
func (d *Delta) Time() time.Time  { return d.Ts }
