package slippage

import (
	"math"

	"execsim/internal/domain"
)

const defaultImpactFactor = 0.1

// SimpleOptions configures the closed-form square-root model.
type SimpleOptions struct {
	ImpactFactor float64 `yaml:"impact_factor"` // 0 = default 0.1
	MarketVolume float64 `yaml:"market_volume"` // 0 = unknown
}

// Simple estimates slippage with a square-root market impact formula.
// It always succeeds given only price and size.
type Simple struct {
	impactFactor float64
	marketVolume float64
}

// NewSimple validates options and builds the estimator.
func NewSimple(opts SimpleOptions) (*Simple, error) {
	if opts.ImpactFactor < 0 {
		return nil, &domain.ConfigError{Field: "impact_factor", Err: domain.ErrNonPositive}
	}
	if opts.MarketVolume < 0 {
		return nil, &domain.ConfigError{Field: "market_volume", Err: domain.ErrNonPositive}
	}
	f := opts.ImpactFactor
	if f == 0 {
		f = defaultImpactFactor
	}
	return &Simple{impactFactor: f, marketVolume: opts.MarketVolume}, nil
}

func (s *Simple) Name() string { return "simple" }

// Estimate applies impact·price·sqrt(size/volume) when volume is known, else
// a volatility-adjusted impact·price·sqrt(size).
func (s *Simple) Estimate(req domain.TradeRequest, ectx Context) (domain.SlippageEstimate, error) {
	if err := req.Validate(); err != nil {
		return domain.SlippageEstimate{}, err
	}

	volume := ectx.MarketVolume
	if volume <= 0 {
		volume = s.marketVolume
	}

	var value float64
	if volume > 0 {
		value = s.impactFactor * req.CurrentPrice * math.Sqrt(req.Size/volume)
	} else {
		adjusted := s.impactFactor
		if ectx.Volatility > 0 {
			adjusted *= 1 + ectx.Volatility
		}
		value = adjusted * req.CurrentPrice * math.Sqrt(req.Size)
	}

	return domain.SlippageEstimate{Value: value, ModelUsed: s.Name()}, nil
}
