package book

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"execsim/internal/domain"
	"execsim/internal/event"
)

// Manager owns the live book for one symbol. All mutation goes through the
// single-writer Run loop (or direct Apply* calls in tests); readers only ever
// see Snapshot copies taken under a brief exclusive section.
type Manager struct {
	mu         sync.RWMutex
	symbol     string
	bids       []domain.PriceLevel // descending by price
	asks       []domain.PriceLevel // ascending by price
	seq        uint64
	lastUpdate time.Time

	staleDrops   atomic.Uint64
	crossedDrops atomic.Uint64

	mon domain.Recorder
	log *slog.Logger
}

// NewManager creates a book manager for one symbol.
// mon may be nil; a no-op recorder is substituted.
func NewManager(symbol string, mon domain.Recorder, log *slog.Logger) *Manager {
	if mon == nil {
		mon = domain.NopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{symbol: symbol, mon: mon, log: log}
}

// Run consumes decoded market-data events until ctx is cancelled.
// This MUST be the only goroutine mutating the book.
func (m *Manager) Run(ctx context.Context, inbox <-chan event.Event) {
	m.log.Info("book manager started", slog.String("symbol", m.symbol))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("book manager stopping", slog.String("symbol", m.symbol))
			return
		case ev := <-inbox:
			switch e := ev.(type) {
			case *event.Snapshot:
				m.ApplySnapshot(e)
			case *event.Delta:
				m.ApplyDelta(e)
				event.ReleaseDelta(e)
			default:
				m.log.Warn("unknown event type dropped")
			}
		}
	}
}

// ApplySnapshot replaces both sides atomically. A stale or crossed snapshot
// is discarded, preserving the last known-good state. Returns true if applied.
func (m *Manager) ApplySnapshot(ev *event.Snapshot) bool {
	start := time.Now()
	defer m.recordProcessing(start)

	bids := normalize(ev.Bids, domain.Buy)
	asks := normalize(ev.Asks, domain.Sell)
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price.GreaterThanOrEqual(asks[0].Price) {
		m.crossedDrops.Add(1)
		m.log.Warn("crossed snapshot discarded",
			slog.String("symbol", m.symbol),
			slog.String("best_bid", bids[0].Price.String()),
			slog.String("best_ask", asks[0].Price.String()))
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Seq <= m.seq {
		m.staleDrops.Add(1)
		m.log.Debug("stale snapshot dropped",
			slog.Uint64("seq", ev.Seq), slog.Uint64("current", m.seq))
		return false
	}
	m.bids = bids
	m.asks = asks
	m.seq = ev.Seq
	m.lastUpdate = ev.Ts
	return true
}

// ApplyDelta inserts, updates or removes a single level. Zero quantity removes
// the level. Out-of-order deltas (sequence <= current) and deltas that would
// cross the book are dropped and counted, never applied. Returns true if applied.
func (m *Manager) ApplyDelta(ev *event.Delta) bool {
	start := time.Now()
	defer m.recordProcessing(start)

	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Seq <= m.seq {
		m.staleDrops.Add(1)
		m.log.Debug("stale delta dropped",
			slog.Uint64("seq", ev.Seq), slog.Uint64("current", m.seq))
		return false
	}

	// Validate against the crossed-book invariant before commit.
	if ev.Quantity.Sign() > 0 && m.wouldCross(ev.Side, ev.Price) {
		m.crossedDrops.Add(1)
		m.log.Warn("crossing delta discarded",
			slog.String("symbol", m.symbol),
			slog.String("side", ev.Side.String()),
			slog.String("price", ev.Price.String()))
		return false
	}

	switch ev.Side {
	case domain.Buy:
		m.bids = upsertLevel(m.bids, domain.Buy, ev.Price, ev.Quantity)
	case domain.Sell:
		m.asks = upsertLevel(m.asks, domain.Sell, ev.Price, ev.Quantity)
	default:
		m.log.Warn("delta with invalid side dropped")
		return false
	}
	m.seq = ev.Seq
	m.lastUpdate = ev.Ts
	return true
}

func (m *Manager) wouldCross(side domain.Side, price decimal.Decimal) bool {
	if side == domain.Buy {
		return len(m.asks) > 0 && price.GreaterThanOrEqual(m.asks[0].Price)
	}
	return len(m.bids) > 0 && price.LessThanOrEqual(m.bids[0].Price)
}

// Best returns the top level of one side of the live book.
func (m *Manager) Best(side domain.Side) (domain.PriceLevel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	levels := m.bids
	if side == domain.Sell {
		levels = m.asks
	}
	if len(levels) == 0 {
		return domain.PriceLevel{}, false
	}
	return levels[0], true
}

// Walk consumes depth from the live book. See Snapshot.Walk.
func (m *Manager) Walk(side domain.Side, target decimal.Decimal) WalkResult {
	snap := m.Snapshot()
	return snap.Walk(side, target)
}

// Snapshot returns an immutable copy of the current book. The copy is atomic
// with respect to concurrent deltas: no reader observes a half-applied update.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := &Snapshot{
		Symbol:     m.symbol,
		Bids:       make([]domain.PriceLevel, len(m.bids)),
		Asks:       make([]domain.PriceLevel, len(m.asks)),
		Seq:        m.seq,
		LastUpdate: m.lastUpdate,
	}
	copy(snap.Bids, m.bids)
	copy(snap.Asks, m.asks)
	return snap
}

// Sequence returns the last applied sequence number.
func (m *Manager) Sequence() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq
}

// StaleDrops returns the count of out-of-order updates dropped so far.
func (m *Manager) StaleDrops() uint64 { return m.staleDrops.Load() }

// CrossedDrops returns the count of invariant-violating updates discarded.
func (m *Manager) CrossedDrops() uint64 { return m.crossedDrops.Load() }

func (m *Manager) recordProcessing(start time.Time) {
	m.mon.Record(domain.MetricProcessing, float64(time.Since(start).Microseconds())/1000.0)
}

// normalize sorts a side into book order and strips non-positive quantities.
func normalize(levels []domain.PriceLevel, side domain.Side) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Quantity.Sign() > 0 {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if side == domain.Buy {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// upsertLevel inserts/replaces/removes one level keeping the side sorted.
// Prices are unique per side.
func upsertLevel(levels []domain.PriceLevel, side domain.Side, price, qty decimal.Decimal) []domain.PriceLevel {
	idx := sort.Search(len(levels), func(i int) bool {
		if side == domain.Buy {
			return levels[i].Price.LessThanOrEqual(price)
		}
		return levels[i].Price.GreaterThanOrEqual(price)
	})

	exists := idx < len(levels) && levels[idx].Price.Equal(price)
	switch {
	case qty.Sign() <= 0 && exists:
		return append(levels[:idx], levels[idx+1:]...)
	case qty.Sign() <= 0:
		return levels // removing an absent level is a no-op
	case exists:
		levels[idx].Quantity = qty
		return levels
	default:
		levels = append(levels, domain.PriceLevel{})
		copy(levels[idx+1:], levels[idx:])
		levels[idx] = domain.PriceLevel{Price: price, Quantity: qty}
		return levels
	}
}
