// Package book maintains a consistent two-sided price-level order book from
// snapshot/delta updates and answers depth/VWAP queries. The Manager is the
// single writer; every other component sees immutable Snapshot copies.
package book

import (
	"time"

	"github.com/shopspring/decimal"

	"execsim/internal/domain"
)

// Snapshot is an immutable copy of the book taken under the manager's lock.
// It is safe to hand across goroutine boundaries without further copying.
type Snapshot struct {
	Symbol     string
	Bids       []domain.PriceLevel // descending by price
	Asks       []domain.PriceLevel // ascending by price
	Seq        uint64
	LastUpdate time.Time
}

// Fill is one (price, quantity consumed) pair produced by Walk.
type Fill struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// WalkResult is the outcome of consuming book depth for a target size.
// FullyFilled = false means the book lacked depth for the request; callers
// treat that as degraded accuracy, not a hard failure.
type WalkResult struct {
	Fills       []Fill
	VWAP        decimal.Decimal
	Consumed    decimal.Decimal
	FullyFilled bool
}

func (s *Snapshot) side(side domain.Side) []domain.PriceLevel {
	if side == domain.Buy {
		return s.Bids
	}
	return s.Asks
}

// Best returns the top level of the given side, or false if the side is empty.
func (s *Snapshot) Best(side domain.Side) (domain.PriceLevel, bool) {
	levels := s.side(side)
	if len(levels) == 0 {
		return domain.PriceLevel{}, false
	}
	return levels[0], true
}

// MidPrice returns (bestBid + bestAsk) / 2, or false if either side is empty.
func (s *Snapshot) MidPrice() (decimal.Decimal, bool) {
	bid, okB := s.Best(domain.Buy)
	ask, okA := s.Best(domain.Sell)
	if !okB || !okA {
		return decimal.Decimal{}, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Spread returns bestAsk − bestBid, or false if either side is empty.
func (s *Snapshot) Spread() (decimal.Decimal, bool) {
	bid, okB := s.Best(domain.Buy)
	ask, okA := s.Best(domain.Sell)
	if !okB || !okA {
		return decimal.Decimal{}, false
	}
	return ask.Price.Sub(bid.Price), true
}

// Depth returns the cumulative quantity available on one side.
func (s *Snapshot) Depth(side domain.Side) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range s.side(side) {
		total = total.Add(lvl.Quantity)
	}
	return total
}

// Walk consumes levels from the top of the given side until the cumulative
// quantity reaches target. The returned VWAP covers the quantity actually
// consumed; on an empty side it is zero.
func (s *Snapshot) Walk(side domain.Side, target decimal.Decimal) WalkResult {
	res := WalkResult{Consumed: decimal.Zero}
	if target.Sign() <= 0 {
		return res
	}

	remaining := target
	cost := decimal.Zero
	for _, lvl := range s.side(side) {
		take := lvl.Quantity
		if take.GreaterThan(remaining) {
			take = remaining
		}
		res.Fills = append(res.Fills, Fill{Price: lvl.Price, Quantity: take})
		cost = cost.Add(lvl.Price.Mul(take))
		res.Consumed = res.Consumed.Add(take)
		remaining = remaining.Sub(take)
		if remaining.Sign() <= 0 {
			res.FullyFilled = true
			break
		}
	}

	if res.Consumed.Sign() > 0 {
		res.VWAP = cost.Div(res.Consumed)
	}
	return res
}
