// Package service composes the book, slippage, impact and fee components into
// one trade-evaluation entry point.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"execsim/internal/book"
	"execsim/internal/domain"
	"execsim/internal/fees"
	"execsim/internal/impact"
	"execsim/internal/slippage"
)

// EvaluatorOptions sets the market assumptions shared by every evaluation.
type EvaluatorOptions struct {
	FeeType       fees.Type       `yaml:"fee_type"`       // default taker
	FeeStructure  fees.Structure  `yaml:"fee_structure"`  // default percentage
	Volatility    float64         `yaml:"volatility"`     // 0 = unknown
	MarketVolume  float64         `yaml:"market_volume"`  // 0 = unknown
	TradingVolume decimal.Decimal `yaml:"trading_volume"` // cumulative, for tiered fees
}

func (o *EvaluatorOptions) applyDefaults() {
	if o.FeeType == "" {
		o.FeeType = fees.Taker
	}
	if o.FeeStructure == "" {
		o.FeeStructure = fees.Percentage
	}
}

// Evaluator estimates the full cost of a hypothetical trade against the live
// book. Slippage and impact are independent and computed concurrently.
type Evaluator struct {
	manager   *book.Manager
	estimator slippage.Estimator
	model     *impact.Model
	fees      *fees.Calculator
	opts      EvaluatorOptions

	mon   domain.Recorder
	store domain.EvaluationStore // nil = no persistence
	log   *slog.Logger
}

// NewEvaluator wires an evaluator. mon, store and log may be nil.
func NewEvaluator(
	manager *book.Manager,
	estimator slippage.Estimator,
	model *impact.Model,
	calc *fees.Calculator,
	opts EvaluatorOptions,
	mon domain.Recorder,
	store domain.EvaluationStore,
	log *slog.Logger,
) *Evaluator {
	opts.applyDefaults()
	if mon == nil {
		mon = domain.NopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		manager:   manager,
		estimator: estimator,
		model:     model,
		fees:      calc,
		opts:      opts,
		mon:       mon,
		store:     store,
		log:       log,
	}
}

// EvaluateTrade produces one ExecutionReport for the request: slippage from
// the configured estimator, temporary and permanent impact from the
// Almgren-Chriss model, and the exchange fee on the notional value.
// A request with CurrentPrice <= 0 is priced at the current mid when the book
// has both sides.
func (e *Evaluator) EvaluateTrade(ctx context.Context, req domain.TradeRequest) (*domain.ExecutionReport, error) {
	start := time.Now()
	defer func() {
		e.mon.Record(domain.MetricRender, float64(time.Since(start).Microseconds())/1000.0)
	}()

	snap := e.manager.Snapshot()
	if req.CurrentPrice <= 0 {
		if mid, ok := snap.MidPrice(); ok {
			req.CurrentPrice = mid.InexactFloat64()
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ectx := slippage.Context{
		Book:         snap,
		MarketVolume: e.opts.MarketVolume,
		Volatility:   e.opts.Volatility,
	}

	var (
		est        domain.SlippageEstimate
		temp, perm float64
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		est, err = e.estimator.Estimate(req, ectx)
		return err
	})
	g.Go(func() error {
		signed := req.Size
		if req.Side == domain.Sell {
			signed = -signed
		}
		var err error
		if temp, err = e.model.TemporaryImpact(signed, 0); err != nil {
			return err
		}
		perm, err = e.model.PermanentImpact(signed, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	notional := decimal.NewFromFloat(req.CurrentPrice).Mul(decimal.NewFromFloat(req.Size))
	fee, err := e.fees.Calculate(e.opts.FeeType, e.opts.FeeStructure, notional, fees.TierContext{
		TradingVolume: e.opts.TradingVolume,
	})
	if err != nil {
		return nil, err
	}

	report := &domain.ExecutionReport{
		ID:              uuid.NewString(),
		Symbol:          snap.Symbol,
		Request:         req,
		Slippage:        est,
		TemporaryImpact: temp,
		PermanentImpact: perm,
		TotalImpact:     temp + perm,
		Notional:        notional,
		Fee:             fee,
		EvaluatedAt:     start.UTC(),
		Elapsed:         time.Since(start),
	}

	if e.store != nil {
		if err := e.store.SaveEvaluation(report); err != nil {
			// Persistence is best-effort; the report is still valid.
			e.log.Warn("evaluation persist failed", slog.String("id", report.ID), slog.Any("error", err))
		}
	}

	e.log.Debug("trade evaluated",
		slog.String("id", report.ID),
		slog.String("side", req.Side.String()),
		slog.Float64("size", req.Size),
		slog.Float64("slippage", est.Value),
		slog.String("model", est.ModelUsed),
		slog.Bool("fallback", est.FallbackTriggered),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}
