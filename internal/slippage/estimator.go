// Package slippage provides a family of interchangeable slippage estimators
// (closed-form, order-book-walk, regression, gradient-boosted) behind a single
// factory contract. Recoverable degradation is reported through the
// FallbackTriggered flag on the estimate, never through errors.
package slippage

import (
	"execsim/internal/book"
	"execsim/internal/domain"
)

// Context carries the market state a variant may use. Every field is optional;
// variants degrade (and flag it) rather than fail when data is missing.
type Context struct {
	Book         *book.Snapshot // nil = no book available
	MarketVolume float64        // 0 = unknown
	Volatility   float64        // 0 = unknown
}

// Estimator is the capability all slippage variants implement.
// Estimate is safe for concurrent use across independent requests.
type Estimator interface {
	Name() string
	Estimate(req domain.TradeRequest, ectx Context) (domain.SlippageEstimate, error)
}

// Built-in feature names learned estimators resolve from the request/context
// when not overridden by TradeRequest.Features.
const (
	FeatureOrderSize    = "order_size"
	FeatureVolatility   = "volatility"
	FeatureSpread       = "spread"
	FeatureMarketVolume = "market_volume"
)
