package slippage

import (
	"math"

	"github.com/shopspring/decimal"

	"execsim/internal/domain"
)

const defaultAdditionalFactor = 1.1

// OrderbookOptions configures the book-walk estimator and the Simple model it
// falls back to.
type OrderbookOptions struct {
	AdditionalFactor float64       `yaml:"additional_factor"` // 0 = default 1.1
	Simple           SimpleOptions `yaml:"simple"`
}

// OrderbookWalk estimates slippage by simulating the fill against the current
// book snapshot. With no snapshot, or insufficient depth, it transparently
// re-executes as Simple and sets FallbackTriggered — callers must not treat
// that as an error.
type OrderbookWalk struct {
	additionalFactor float64
	simple           *Simple
}

// NewOrderbookWalk validates options and builds the estimator.
func NewOrderbookWalk(opts OrderbookOptions) (*OrderbookWalk, error) {
	if opts.AdditionalFactor < 0 {
		return nil, &domain.ConfigError{Field: "additional_factor", Err: domain.ErrNonPositive}
	}
	f := opts.AdditionalFactor
	if f == 0 {
		f = defaultAdditionalFactor
	}
	simple, err := NewSimple(opts.Simple)
	if err != nil {
		return nil, err
	}
	return &OrderbookWalk{additionalFactor: f, simple: simple}, nil
}

func (o *OrderbookWalk) Name() string { return "orderbook" }

// Estimate walks the opposing side (asks for a buy, bids for a sell) for the
// requested size and prices the concession as abs(vwap − current)·factor.
func (o *OrderbookWalk) Estimate(req domain.TradeRequest, ectx Context) (domain.SlippageEstimate, error) {
	if err := req.Validate(); err != nil {
		return domain.SlippageEstimate{}, err
	}
	if ectx.Book == nil {
		return o.fallback(req, ectx)
	}

	res := ectx.Book.Walk(req.Side.Opposite(), decimal.NewFromFloat(req.Size))
	if !res.FullyFilled {
		// Insufficient depth: degraded accuracy, documented fallback.
		return o.fallback(req, ectx)
	}

	vwap := res.VWAP.InexactFloat64()
	value := math.Abs(vwap-req.CurrentPrice) * o.additionalFactor
	if value < 0 {
		value = 0
	}
	return domain.SlippageEstimate{Value: value, ModelUsed: o.Name()}, nil
}

func (o *OrderbookWalk) fallback(req domain.TradeRequest, ectx Context) (domain.SlippageEstimate, error) {
	est, err := o.simple.Estimate(req, ectx)
	if err != nil {
		return est, err
	}
	est.FallbackTriggered = true
	return est, nil
}
