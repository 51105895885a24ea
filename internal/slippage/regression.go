package slippage

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"execsim/internal/domain"
)

// Regression model tags.
const (
	ModelLinear = "linear"
	ModelRidge  = "ridge"
	ModelLasso  = "lasso"
	ModelForest = "random_forest"
)

// RegressionOptions configures the two-phase learned estimator.
// Zero values select the defaults noted per field.
type RegressionOptions struct {
	Model    string  `yaml:"model"`     // linear | ridge | lasso | random_forest (default linear)
	Alpha    float64 `yaml:"alpha"`     // ridge default 1.0, lasso default 0.1
	Trees    int     `yaml:"trees"`     // forest size, default 100
	MaxDepth int     `yaml:"max_depth"` // default 6
	MinLeaf  int     `yaml:"min_leaf"`  // default 1
	Seed     int64   `yaml:"seed"`      // default 42
}

func (o *RegressionOptions) applyDefaults() error {
	if o.Model == "" {
		o.Model = ModelLinear
	}
	switch o.Model {
	case ModelLinear, ModelRidge, ModelLasso, ModelForest:
	default:
		return &domain.ConfigError{Field: "model", Err: fmt.Errorf("unknown regression model %q", o.Model)}
	}
	if o.Alpha < 0 {
		return &domain.ConfigError{Field: "alpha", Err: domain.ErrNonPositive}
	}
	if o.Alpha == 0 {
		if o.Model == ModelRidge {
			o.Alpha = 1.0
		} else if o.Model == ModelLasso {
			o.Alpha = 0.1
		}
	}
	if o.Trees <= 0 {
		o.Trees = 100
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 6
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = 1
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	return nil
}

// fittedState is the trained half of a learned estimator: the scaler, the
// ordered feature-name list, and exactly one fitted regressor. It is persisted
// and restored as a single versioned artifact, making a prediction-time
// feature-order mismatch impossible.
type fittedState struct {
	Features []string
	Scaler   standardScaler
	Linear   *linearCoef
	Forest   []*treeNode
	Boost    *boostedEnsemble
}

func (f *fittedState) predict(x []float64) float64 {
	switch {
	case f.Linear != nil:
		return f.Linear.predict(x)
	case f.Forest != nil:
		return predictForest(f.Forest, x)
	case f.Boost != nil:
		return f.Boost.predict(x)
	default:
		return math.NaN()
	}
}

// Regression is a learned slippage estimator over a chosen regressor family.
// Train replaces the fitted state and is mutually exclusive with Estimate on
// the same instance; independent instances do not contend.
type Regression struct {
	mu     sync.RWMutex
	opts   RegressionOptions
	fitted *fittedState
}

// NewRegression validates options and builds an untrained estimator.
func NewRegression(opts RegressionOptions) (*Regression, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	return &Regression{opts: opts}, nil
}

func (r *Regression) Name() string { return "regression:" + r.opts.Model }

// Trained reports whether a fit or artifact load has occurred.
func (r *Regression) Trained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fitted != nil
}

// Train fits the feature scaler and the chosen regressor on the given matrix,
// storing the ordered feature-name list for prediction-time alignment.
func (r *Regression) Train(features []string, X [][]float64, y []float64) error {
	if err := validateTrainingData(features, X, y); err != nil {
		return err
	}

	scaler := fitScaler(X)
	Xs := scaler.transformAll(X)

	fitted := &fittedState{Features: append([]string(nil), features...), Scaler: scaler}
	var err error
	switch r.opts.Model {
	case ModelLinear:
		var lc linearCoef
		lc, err = fitOLS(Xs, y)
		fitted.Linear = &lc
	case ModelRidge:
		var lc linearCoef
		lc, err = fitRidge(Xs, y, r.opts.Alpha)
		fitted.Linear = &lc
	case ModelLasso:
		var lc linearCoef
		lc, err = fitLasso(Xs, y, r.opts.Alpha)
		fitted.Linear = &lc
	case ModelForest:
		rng := rand.New(rand.NewSource(r.opts.Seed))
		fitted.Forest = fitForest(Xs, y, r.opts.Trees, r.opts.MaxDepth, r.opts.MinLeaf, rng)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.fitted = fitted
	r.mu.Unlock()
	return nil
}

// Estimate predicts slippage from named features. It reports not-trained
// before any Train or artifact load, and feature-mismatch when the supplied
// features do not cover the stored ordered list.
func (r *Regression) Estimate(req domain.TradeRequest, ectx Context) (domain.SlippageEstimate, error) {
	if err := req.Validate(); err != nil {
		return domain.SlippageEstimate{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fitted == nil {
		return domain.SlippageEstimate{}, domain.ErrNotTrained
	}

	x, err := resolveFeatures(r.fitted.Features, req, ectx)
	if err != nil {
		return domain.SlippageEstimate{}, err
	}
	value := math.Abs(r.fitted.predict(r.fitted.Scaler.transform(x)))
	return domain.SlippageEstimate{Value: value, ModelUsed: r.Name()}, nil
}

// SaveArtifact persists the fitted regressor, scaler and feature list as one
// versioned file.
func (r *Regression) SaveArtifact(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fitted == nil {
		return domain.ErrNotTrained
	}
	return saveArtifact(path, "regression", r.opts.Model, r.fitted)
}

// LoadArtifact restores a previously saved fit, replacing any current state.
func (r *Regression) LoadArtifact(path string) error {
	fitted, err := loadArtifact(path, "regression", r.opts.Model)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.fitted = fitted
	r.mu.Unlock()
	return nil
}

func validateTrainingData(features []string, X [][]float64, y []float64) error {
	if len(features) == 0 {
		return &domain.ConfigError{Field: "features", Err: fmt.Errorf("empty feature list")}
	}
	if len(X) == 0 || len(X) != len(y) {
		return &domain.ConfigError{Field: "training_data", Err: fmt.Errorf("need matching feature rows and targets, got %d/%d", len(X), len(y))}
	}
	for i, row := range X {
		if len(row) != len(features) {
			return &domain.ConfigError{Field: "training_data", Err: fmt.Errorf("row %d has %d values for %d features", i, len(row), len(features))}
		}
	}
	return nil
}

// resolveFeatures re-orders incoming named features to match the stored order.
// Request overrides win; known context-derived features fill the rest; any
// remaining gap is a feature mismatch.
func resolveFeatures(names []string, req domain.TradeRequest, ectx Context) ([]float64, error) {
	x := make([]float64, len(names))
	for i, name := range names {
		if v, ok := req.Features[name]; ok {
			x[i] = v
			continue
		}
		switch name {
		case FeatureOrderSize:
			x[i] = req.Size
		case FeatureVolatility:
			if ectx.Volatility <= 0 {
				return nil, fmt.Errorf("%w: %q not supplied", domain.ErrFeatureMismatch, name)
			}
			x[i] = ectx.Volatility
		case FeatureMarketVolume:
			if ectx.MarketVolume <= 0 {
				return nil, fmt.Errorf("%w: %q not supplied", domain.ErrFeatureMismatch, name)
			}
			x[i] = ectx.MarketVolume
		case FeatureSpread:
			if ectx.Book == nil {
				return nil, fmt.Errorf("%w: %q not supplied", domain.ErrFeatureMismatch, name)
			}
			spread, ok := ectx.Book.Spread()
			if !ok {
				return nil, fmt.Errorf("%w: %q not supplied", domain.ErrFeatureMismatch, name)
			}
			x[i] = spread.InexactFloat64()
		default:
			return nil, fmt.Errorf("%w: %q not supplied", domain.ErrFeatureMismatch, name)
		}
	}
	return x, nil
}
