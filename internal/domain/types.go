package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the direction of a trade or a book side.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposing side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PriceLevel is a single price+quantity entry in an order book.
// Quantity is always positive; zero-quantity levels are removed, never stored.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// TradeRequest describes one hypothetical trade to evaluate.
// It is immutable and created per evaluation.
type TradeRequest struct {
	Side         Side               `json:"side"`
	Size         float64            `json:"size"`          // base units
	CurrentPrice float64            `json:"current_price"` // quote units, usually mid
	Features     map[string]float64 `json:"features,omitempty"`
}

// Validate checks the request invariants.
func (r TradeRequest) Validate() error {
	if r.Side != Buy && r.Side != Sell {
		return &ConfigError{Field: "side", Err: ErrInvalidSide}
	}
	if r.Size <= 0 {
		return &ConfigError{Field: "size", Err: ErrNonPositive}
	}
	if r.CurrentPrice <= 0 {
		return &ConfigError{Field: "current_price", Err: ErrNonPositive}
	}
	return nil
}

// SlippageEstimate is the result of one slippage evaluation.
// FallbackTriggered reports a documented degraded-accuracy path, not an error.
type SlippageEstimate struct {
	Value             float64 `json:"value"` // quote units, non-negative
	ModelUsed         string  `json:"model_used"`
	FallbackTriggered bool    `json:"fallback_triggered"`
}

// ExecutionReport is the full fill-quality estimate for one trade request.
type ExecutionReport struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	Request         TradeRequest     `json:"request"`
	Slippage        SlippageEstimate `json:"slippage"`
	TemporaryImpact float64          `json:"temporary_impact"`
	PermanentImpact float64          `json:"permanent_impact"`
	TotalImpact     float64          `json:"total_impact"`
	Notional        decimal.Decimal  `json:"notional"`
	Fee             decimal.Decimal  `json:"fee"`
	EvaluatedAt     time.Time        `json:"evaluated_at"`
	Elapsed         time.Duration    `json:"elapsed"`
}

// MetricKind names one instrumented measurement stream.
type MetricKind string

const (
	MetricProcessing MetricKind = "processing_time" // book update handling, ms
	MetricRender     MetricKind = "render_time"     // outbound snapshot/report assembly, ms
	MetricMemory     MetricKind = "memory_usage"    // process RSS, MB
)
