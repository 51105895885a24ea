package slippage

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"execsim/internal/book"
	"execsim/internal/domain"
)

func lvl(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func testBook() *book.Snapshot {
	return &book.Snapshot{
		Symbol: "BTC-USDT",
		Bids:   []domain.PriceLevel{lvl("100", "5"), lvl("99", "5")},
		Asks:   []domain.PriceLevel{lvl("101", "5"), lvl("102", "5")},
		Seq:    1,
	}
}

func buyRequest(size float64) domain.TradeRequest {
	return domain.TradeRequest{Side: domain.Buy, Size: size, CurrentPrice: 100.5}
}

func TestSimple_Estimate(t *testing.T) {
	t.Run("volume known", func(t *testing.T) {
		s, err := NewSimple(SimpleOptions{ImpactFactor: 0.1, MarketVolume: 400})
		if err != nil {
			t.Fatal(err)
		}
		est, err := s.Estimate(buyRequest(100), Context{})
		if err != nil {
			t.Fatal(err)
		}
		// 0.1 * 100.5 * sqrt(100/400) = 5.025
		if math.Abs(est.Value-5.025) > 1e-9 {
			t.Errorf("Expected 5.025, got %g", est.Value)
		}
		if est.ModelUsed != "simple" || est.FallbackTriggered {
			t.Errorf("Unexpected estimate metadata: %+v", est)
		}
	})

	t.Run("volume unknown uses volatility adjustment", func(t *testing.T) {
		s, _ := NewSimple(SimpleOptions{})
		est, err := s.Estimate(buyRequest(4), Context{Volatility: 0.5})
		if err != nil {
			t.Fatal(err)
		}
		// 0.1 * 1.5 * 100.5 * sqrt(4) = 30.15
		if math.Abs(est.Value-30.15) > 1e-9 {
			t.Errorf("Expected 30.15, got %g", est.Value)
		}
	})

	t.Run("invalid request", func(t *testing.T) {
		s, _ := NewSimple(SimpleOptions{})
		if _, err := s.Estimate(domain.TradeRequest{Side: domain.Buy, Size: -1, CurrentPrice: 100}, Context{}); err == nil {
			t.Error("Expected error for negative size")
		}
	})

	t.Run("negative options rejected", func(t *testing.T) {
		if _, err := NewSimple(SimpleOptions{ImpactFactor: -0.1}); err == nil {
			t.Error("Expected error for negative impact factor")
		}
	})
}

func TestOrderbookWalk_Estimate(t *testing.T) {
	t.Run("walks opposing side", func(t *testing.T) {
		o, err := NewOrderbookWalk(OrderbookOptions{AdditionalFactor: 2})
		if err != nil {
			t.Fatal(err)
		}
		// Buy 6 walks the asks: 5 @ 101 + 1 @ 102 → VWAP 101.1(6)
		est, err := o.Estimate(buyRequest(6), Context{Book: testBook()})
		if err != nil {
			t.Fatal(err)
		}
		vwap := (5*101.0 + 1*102.0) / 6
		want := math.Abs(vwap-100.5) * 2
		if math.Abs(est.Value-want) > 1e-9 {
			t.Errorf("Expected %g, got %g", want, est.Value)
		}
		if est.ModelUsed != "orderbook" || est.FallbackTriggered {
			t.Errorf("Unexpected estimate metadata: %+v", est)
		}
	})

	t.Run("no book falls back to simple", func(t *testing.T) {
		o, _ := NewOrderbookWalk(OrderbookOptions{Simple: SimpleOptions{MarketVolume: 400}})
		est, err := o.Estimate(buyRequest(100), Context{})
		if err != nil {
			t.Fatal(err)
		}
		if !est.FallbackTriggered {
			t.Error("Expected FallbackTriggered with no book")
		}
		s, _ := NewSimple(SimpleOptions{MarketVolume: 400})
		ref, _ := s.Estimate(buyRequest(100), Context{})
		if est.Value != ref.Value {
			t.Errorf("Fallback must match simple: %g vs %g", est.Value, ref.Value)
		}
	})

	t.Run("insufficient depth falls back", func(t *testing.T) {
		o, _ := NewOrderbookWalk(OrderbookOptions{})
		est, err := o.Estimate(buyRequest(50), Context{Book: testBook()}) // only 10 on asks
		if err != nil {
			t.Fatal(err)
		}
		if !est.FallbackTriggered || est.ModelUsed != "simple" {
			t.Errorf("Expected simple fallback on thin book, got %+v", est)
		}
	})
}

func TestCreate(t *testing.T) {
	t.Run("auto resolves to orderbook", func(t *testing.T) {
		est, err := Create(KindAuto, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if est.Name() != "orderbook" {
			t.Errorf("Expected orderbook, got %s", est.Name())
		}
	})

	t.Run("each kind constructs", func(t *testing.T) {
		for _, kind := range []Kind{KindSimple, KindOrderbook, KindRegression, KindAdaptive} {
			if _, err := Create(kind, Options{}); err != nil {
				t.Errorf("Create(%s) failed: %v", kind, err)
			}
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := Create("neural", Options{})
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Expected ConfigError, got %v", err)
		}
	})

	t.Run("invalid options surface at construction", func(t *testing.T) {
		if _, err := Create(KindRegression, Options{Regression: RegressionOptions{Model: "svm"}}); err == nil {
			t.Error("Expected error for unknown regression model")
		}
	})
}

func TestRegression_Lifecycle(t *testing.T) {
	r, err := NewRegression(RegressionOptions{Model: ModelLinear})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("estimate before train", func(t *testing.T) {
		_, err := r.Estimate(buyRequest(1), Context{})
		if !errors.Is(err, domain.ErrNotTrained) {
			t.Errorf("Expected ErrNotTrained, got %v", err)
		}
	})

	features := []string{FeatureOrderSize, FeatureVolatility}
	X := [][]float64{{1, 2}, {2, 3}}
	y := []float64{0.1, 0.2}

	t.Run("train and estimate", func(t *testing.T) {
		if err := r.Train(features, X, y); err != nil {
			t.Fatalf("Train failed: %v", err)
		}
		if !r.Trained() {
			t.Fatal("Expected trained state")
		}
		est, err := r.Estimate(domain.TradeRequest{
			Side: domain.Buy, Size: 1.5, CurrentPrice: 100,
			Features: map[string]float64{FeatureVolatility: 2.5},
		}, Context{})
		if err != nil {
			t.Fatal(err)
		}
		if math.IsNaN(est.Value) || math.IsInf(est.Value, 0) || est.Value < 0 {
			t.Errorf("Expected finite non-negative estimate, got %g", est.Value)
		}
	})

	t.Run("feature mismatch", func(t *testing.T) {
		// Volatility neither in request features nor context
		_, err := r.Estimate(buyRequest(1), Context{})
		if !errors.Is(err, domain.ErrFeatureMismatch) {
			t.Errorf("Expected ErrFeatureMismatch, got %v", err)
		}
	})

	t.Run("context supplies known features", func(t *testing.T) {
		est, err := r.Estimate(buyRequest(1), Context{Volatility: 0.3})
		if err != nil {
			t.Fatal(err)
		}
		if est.ModelUsed != "regression:linear" {
			t.Errorf("Unexpected model tag %s", est.ModelUsed)
		}
	})

	t.Run("bad training data", func(t *testing.T) {
		if err := r.Train(features, [][]float64{{1}}, []float64{0.1}); err == nil {
			t.Error("Expected error for row width mismatch")
		}
		if err := r.Train(features, X, []float64{0.1}); err == nil {
			t.Error("Expected error for row/target count mismatch")
		}
	})
}

func TestRegression_Families(t *testing.T) {
	features := []string{FeatureOrderSize, FeatureVolatility}
	X := [][]float64{{1, 0.1}, {2, 0.2}, {3, 0.1}, {4, 0.3}, {5, 0.2}, {6, 0.4}}
	y := []float64{0.1, 0.22, 0.29, 0.45, 0.48, 0.66}

	for _, model := range []string{ModelLinear, ModelRidge, ModelLasso, ModelForest} {
		t.Run(model, func(t *testing.T) {
			r, err := NewRegression(RegressionOptions{Model: model})
			if err != nil {
				t.Fatal(err)
			}
			if err := r.Train(features, X, y); err != nil {
				t.Fatalf("Train failed: %v", err)
			}
			est, err := r.Estimate(buyRequest(3.5), Context{Volatility: 0.25})
			if err != nil {
				t.Fatal(err)
			}
			if math.IsNaN(est.Value) || est.Value < 0 {
				t.Errorf("Expected usable estimate, got %g", est.Value)
			}
		})
	}
}

func TestArtifact_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")

	features := []string{FeatureOrderSize}
	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{0.1, 0.2, 0.3, 0.4}

	r, _ := NewRegression(RegressionOptions{Model: ModelLinear})
	if err := r.Train(features, X, y); err != nil {
		t.Fatal(err)
	}
	want, err := r.Estimate(buyRequest(2.5), Context{})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SaveArtifact(path); err != nil {
		t.Fatalf("SaveArtifact failed: %v", err)
	}

	t.Run("restored model predicts identically", func(t *testing.T) {
		fresh, _ := NewRegression(RegressionOptions{Model: ModelLinear})
		if err := fresh.LoadArtifact(path); err != nil {
			t.Fatalf("LoadArtifact failed: %v", err)
		}
		got, err := fresh.Estimate(buyRequest(2.5), Context{})
		if err != nil {
			t.Fatal(err)
		}
		if got.Value != want.Value {
			t.Errorf("Expected %g after reload, got %g", want.Value, got.Value)
		}
	})

	t.Run("model mismatch rejected", func(t *testing.T) {
		other, _ := NewRegression(RegressionOptions{Model: ModelRidge})
		err := other.LoadArtifact(path)
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("Expected ConfigError on model mismatch, got %v", err)
		}
	})

	t.Run("estimator mismatch rejected", func(t *testing.T) {
		a, _ := NewAdaptive(AdaptiveOptions{})
		if err := a.LoadArtifact(path); err == nil {
			t.Error("Expected error loading a regression artifact into adaptive")
		}
	})

	t.Run("save before train", func(t *testing.T) {
		fresh, _ := NewRegression(RegressionOptions{})
		if err := fresh.SaveArtifact(filepath.Join(dir, "none.bin")); !errors.Is(err, domain.ErrNotTrained) {
			t.Errorf("Expected ErrNotTrained, got %v", err)
		}
	})
}

func TestAdaptive_Lifecycle(t *testing.T) {
	a, err := NewAdaptive(AdaptiveOptions{Trees: 20})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := a.Estimate(buyRequest(1), Context{}); !errors.Is(err, domain.ErrNotTrained) {
		t.Fatalf("Expected ErrNotTrained, got %v", err)
	}

	features := []string{FeatureOrderSize, FeatureSpread}
	X := [][]float64{{1, 1}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {6, 3}}
	y := []float64{0.1, 0.2, 0.35, 0.42, 0.6, 0.68}
	if err := a.Train(features, X, y); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	est, err := a.Estimate(buyRequest(3.5), Context{Book: testBook()})
	if err != nil {
		t.Fatal(err)
	}
	if est.ModelUsed != "adaptive" {
		t.Errorf("Expected model tag adaptive, got %s", est.ModelUsed)
	}
	if math.IsNaN(est.Value) || est.Value < 0 {
		t.Errorf("Expected usable estimate, got %g", est.Value)
	}

	t.Run("deterministic for fixed seed", func(t *testing.T) {
		b, _ := NewAdaptive(AdaptiveOptions{Trees: 20})
		if err := b.Train(features, X, y); err != nil {
			t.Fatal(err)
		}
		other, err := b.Estimate(buyRequest(3.5), Context{Book: testBook()})
		if err != nil {
			t.Fatal(err)
		}
		if other.Value != est.Value {
			t.Errorf("Same seed must reproduce: %g vs %g", other.Value, est.Value)
		}
	})

	t.Run("artifact roundtrip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "boost.bin")
		if err := a.SaveArtifact(path); err != nil {
			t.Fatal(err)
		}
		fresh, _ := NewAdaptive(AdaptiveOptions{})
		if err := fresh.LoadArtifact(path); err != nil {
			t.Fatal(err)
		}
		got, err := fresh.Estimate(buyRequest(3.5), Context{Book: testBook()})
		if err != nil {
			t.Fatal(err)
		}
		if got.Value != est.Value {
			t.Errorf("Expected %g after reload, got %g", est.Value, got.Value)
		}
	})
}
