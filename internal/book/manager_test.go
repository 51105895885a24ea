package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"execsim/internal/domain"
	"execsim/internal/event"
)

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func seededManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager("BTC-USDT", nil, nil)
	ok := m.ApplySnapshot(&event.Snapshot{
		Seq: 1,
		Ts:  time.Now(),
		Bids: []domain.PriceLevel{
			lvl("100", "1"),
			lvl("99", "2"),
			lvl("98", "3"),
		},
		Asks: []domain.PriceLevel{
			lvl("101", "1"),
			lvl("102", "2"),
			lvl("103", "3"),
		},
	})
	if !ok {
		t.Fatal("seed snapshot should apply")
	}
	return m
}

func TestManager_ApplySnapshot(t *testing.T) {
	m := NewManager("BTC-USDT", nil, nil)

	// Unsorted input with a zero-quantity level mixed in
	ok := m.ApplySnapshot(&event.Snapshot{
		Seq:  1,
		Ts:   time.Now(),
		Bids: []domain.PriceLevel{lvl("98", "3"), lvl("100", "1"), {Price: decimal.RequireFromString("99"), Quantity: decimal.Zero}},
		Asks: []domain.PriceLevel{lvl("103", "3"), lvl("101", "1")},
	})
	if !ok {
		t.Fatal("snapshot should apply")
	}

	snap := m.Snapshot()
	if len(snap.Bids) != 2 {
		t.Fatalf("Expected 2 bids after dropping zero quantity, got %d", len(snap.Bids))
	}
	if !snap.Bids[0].Price.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Expected best bid 100, got %s", snap.Bids[0].Price)
	}
	if !snap.Asks[0].Price.Equal(decimal.RequireFromString("101")) {
		t.Errorf("Expected best ask 101, got %s", snap.Asks[0].Price)
	}
	if snap.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", snap.Seq)
	}
}

func TestManager_CrossedSnapshotRejected(t *testing.T) {
	m := seededManager(t)
	before := m.Snapshot()

	ok := m.ApplySnapshot(&event.Snapshot{
		Seq:  2,
		Ts:   time.Now(),
		Bids: []domain.PriceLevel{lvl("105", "1")},
		Asks: []domain.PriceLevel{lvl("104", "1")},
	})
	if ok {
		t.Fatal("crossed snapshot must be rejected")
	}
	if m.CrossedDrops() != 1 {
		t.Errorf("Expected 1 crossed drop, got %d", m.CrossedDrops())
	}

	// Last known-good state preserved
	after := m.Snapshot()
	if after.Seq != before.Seq || len(after.Bids) != len(before.Bids) {
		t.Error("rejected snapshot must not change the book")
	}
}

func TestManager_ApplyDelta(t *testing.T) {
	m := seededManager(t)

	t.Run("insert", func(t *testing.T) {
		d := &event.Delta{Seq: 2, Ts: time.Now(), Side: domain.Buy, Price: decimal.RequireFromString("99.5"), Quantity: decimal.RequireFromString("4")}
		if !m.ApplyDelta(d) {
			t.Fatal("insert delta should apply")
		}
		snap := m.Snapshot()
		if len(snap.Bids) != 4 {
			t.Fatalf("Expected 4 bids, got %d", len(snap.Bids))
		}
		if !snap.Bids[1].Price.Equal(decimal.RequireFromString("99.5")) {
			t.Errorf("Expected 99.5 at position 1, got %s", snap.Bids[1].Price)
		}
	})

	t.Run("update", func(t *testing.T) {
		d := &event.Delta{Seq: 3, Ts: time.Now(), Side: domain.Sell, Price: decimal.RequireFromString("101"), Quantity: decimal.RequireFromString("9")}
		if !m.ApplyDelta(d) {
			t.Fatal("update delta should apply")
		}
		best, _ := m.Best(domain.Sell)
		if !best.Quantity.Equal(decimal.RequireFromString("9")) {
			t.Errorf("Expected quantity 9 at best ask, got %s", best.Quantity)
		}
	})

	t.Run("remove", func(t *testing.T) {
		d := &event.Delta{Seq: 4, Ts: time.Now(), Side: domain.Sell, Price: decimal.RequireFromString("101"), Quantity: decimal.Zero}
		if !m.ApplyDelta(d) {
			t.Fatal("remove delta should apply")
		}
		best, _ := m.Best(domain.Sell)
		if !best.Price.Equal(decimal.RequireFromString("102")) {
			t.Errorf("Expected best ask 102 after removal, got %s", best.Price)
		}
	})

	t.Run("remove absent is no-op", func(t *testing.T) {
		d := &event.Delta{Seq: 5, Ts: time.Now(), Side: domain.Sell, Price: decimal.RequireFromString("150"), Quantity: decimal.Zero}
		if !m.ApplyDelta(d) {
			t.Fatal("no-op removal still advances sequence")
		}
		if m.Sequence() != 5 {
			t.Errorf("Expected seq 5, got %d", m.Sequence())
		}
	})
}

func TestManager_StaleDropped(t *testing.T) {
	m := seededManager(t)

	d := &event.Delta{Seq: 1, Ts: time.Now(), Side: domain.Buy, Price: decimal.RequireFromString("50"), Quantity: decimal.RequireFromString("1")}
	if m.ApplyDelta(d) {
		t.Fatal("stale delta must be dropped")
	}
	if m.StaleDrops() != 1 {
		t.Errorf("Expected 1 stale drop, got %d", m.StaleDrops())
	}

	snap := m.Snapshot()
	if len(snap.Bids) != 3 {
		t.Error("stale delta must not change the book")
	}
}

func TestManager_CrossingDeltaRejected(t *testing.T) {
	m := seededManager(t)

	// Bid at/above best ask would cross
	d := &event.Delta{Seq: 2, Ts: time.Now(), Side: domain.Buy, Price: decimal.RequireFromString("101"), Quantity: decimal.RequireFromString("1")}
	if m.ApplyDelta(d) {
		t.Fatal("crossing delta must be rejected")
	}
	if m.CrossedDrops() != 1 {
		t.Errorf("Expected 1 crossed drop, got %d", m.CrossedDrops())
	}
	if m.Sequence() != 1 {
		t.Errorf("Expected seq unchanged at 1, got %d", m.Sequence())
	}
}

func TestSnapshot_MidAndSpread(t *testing.T) {
	m := seededManager(t)
	snap := m.Snapshot()

	mid, ok := snap.MidPrice()
	if !ok || !mid.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("Expected mid 100.5, got %s", mid)
	}
	spread, ok := snap.Spread()
	if !ok || !spread.Equal(decimal.RequireFromString("1")) {
		t.Errorf("Expected spread 1, got %s", spread)
	}

	empty := &Snapshot{}
	if _, ok := empty.MidPrice(); ok {
		t.Error("empty book must not report a mid price")
	}
}

func TestSnapshot_Walk(t *testing.T) {
	m := seededManager(t)
	snap := m.Snapshot()

	t.Run("full fill", func(t *testing.T) {
		res := snap.Walk(domain.Sell, decimal.RequireFromString("2"))
		if !res.FullyFilled {
			t.Fatal("Expected full fill for 2 against 6 total depth")
		}
		// 1 @ 101 + 1 @ 102 = 203 / 2 = 101.5
		if !res.VWAP.Equal(decimal.RequireFromString("101.5")) {
			t.Errorf("Expected VWAP 101.5, got %s", res.VWAP)
		}
		if len(res.Fills) != 2 {
			t.Errorf("Expected 2 fills, got %d", len(res.Fills))
		}
	})

	t.Run("partial fill", func(t *testing.T) {
		res := snap.Walk(domain.Sell, decimal.RequireFromString("10"))
		if res.FullyFilled {
			t.Fatal("Expected partial fill for 10 against 6 total depth")
		}
		if !res.Consumed.Equal(decimal.RequireFromString("6")) {
			t.Errorf("Expected 6 consumed, got %s", res.Consumed)
		}
		// VWAP covers consumed quantity only and stays within level bounds
		if res.VWAP.LessThan(decimal.RequireFromString("101")) || res.VWAP.GreaterThan(decimal.RequireFromString("103")) {
			t.Errorf("VWAP %s out of level bounds", res.VWAP)
		}
	})

	t.Run("empty side", func(t *testing.T) {
		empty := &Snapshot{}
		res := empty.Walk(domain.Buy, decimal.RequireFromString("1"))
		if res.FullyFilled || !res.VWAP.IsZero() {
			t.Error("Expected zero-value result on empty side")
		}
	})
}

func BenchmarkManager_ApplyDelta(b *testing.B) {
	m := NewManager("BTC-USDT", nil, nil)
	m.ApplySnapshot(&event.Snapshot{
		Seq:  1,
		Ts:   time.Now(),
		Bids: []domain.PriceLevel{lvl("100", "1")},
		Asks: []domain.PriceLevel{lvl("101", "1")},
	})
	price := decimal.RequireFromString("99.5")
	qty := decimal.RequireFromString("2")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ApplyDelta(&event.Delta{Seq: uint64(i + 2), Ts: time.Now(), Side: domain.Buy, Price: price, Quantity: qty})
	}
}
