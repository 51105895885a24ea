package event

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Deltas arrive at feed rate, one per changed level. Pool them to keep the
// hotpath allocation-free.
//
// Usage:
//
//	ev := AcquireDelta()
//	ev.Price = ...
//	// ... apply event ...
//	ReleaseDelta(ev)
var deltaPool = sync.Pool{
	New: func() interface{} {
		return &Delta{}
	},
}

// AcquireDelta gets a Delta from the pool.
// The returned event has zero values and must be initialized.
func AcquireDelta() *Delta {
	return deltaPool.Get().(*Delta)
}

// ReleaseDelta returns a Delta to the pool after the book has applied it.
func ReleaseDelta(ev *Delta) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Ts = time.Time{}
	ev.Side = 0
	ev.Price = decimal.Decimal{}
	ev.Quantity = decimal.Decimal{}

	deltaPool.Put(ev)
}

// Warmup pre-allocates delta objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	evs := make([]*Delta, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireDelta())
	}
	for _, ev := range evs {
		ReleaseDelta(ev)
	}
}
