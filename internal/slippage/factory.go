package slippage

import (
	"fmt"

	"execsim/internal/domain"
)

// Kind is the closed set of estimator variants.
type Kind string

const (
	KindSimple     Kind = "simple"
	KindOrderbook  Kind = "orderbook"
	KindRegression Kind = "regression"
	KindAdaptive   Kind = "adaptive"

	// KindAuto resolves to the book-walk variant, whose internal fallback
	// covers missing-book cases. The auto→orderbook→simple chain is a
	// deliberate two-level fallback; the FallbackTriggered flag propagates
	// up both levels.
	KindAuto Kind = "auto"
)

// Options holds the typed per-variant options. Only the section for the
// requested kind is read.
type Options struct {
	Simple     SimpleOptions     `yaml:"simple"`
	Orderbook  OrderbookOptions  `yaml:"orderbook"`
	Regression RegressionOptions `yaml:"regression"`
	Adaptive   AdaptiveOptions   `yaml:"adaptive"`
}

// Create instantiates an estimator variant from its tag. Unknown tags and
// invalid option fields are configuration errors at construction time.
func Create(kind Kind, opts Options) (Estimator, error) {
	switch kind {
	case KindSimple:
		return NewSimple(opts.Simple)
	case KindOrderbook, KindAuto:
		return NewOrderbookWalk(opts.Orderbook)
	case KindRegression:
		return NewRegression(opts.Regression)
	case KindAdaptive:
		return NewAdaptive(opts.Adaptive)
	default:
		return nil, &domain.ConfigError{Field: "kind", Err: fmt.Errorf("unknown estimator kind %q", kind)}
	}
}
