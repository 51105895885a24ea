package slippage

import (
	"math"
	"math/rand"
	"sync"

	"execsim/internal/domain"
)

// AdaptiveOptions configures the gradient-boosted estimator.
// Zero values select the defaults noted per field.
type AdaptiveOptions struct {
	Trees        int     `yaml:"trees"`         // default 100
	LearningRate float64 `yaml:"learning_rate"` // default 0.1
	MaxDepth     int     `yaml:"max_depth"`     // default 3
	MinLeaf      int     `yaml:"min_leaf"`      // default 1
	Seed         int64   `yaml:"seed"`          // default 42
}

func (o *AdaptiveOptions) applyDefaults() error {
	if o.LearningRate < 0 {
		return &domain.ConfigError{Field: "learning_rate", Err: domain.ErrNonPositive}
	}
	if o.Trees <= 0 {
		o.Trees = 100
	}
	if o.LearningRate == 0 {
		o.LearningRate = 0.1
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = 1
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	return nil
}

// Adaptive is the learned estimator fixed to a gradient-boosted ensemble.
// Its train/estimate/persist lifecycle is identical to Regression.
type Adaptive struct {
	mu     sync.RWMutex
	opts   AdaptiveOptions
	fitted *fittedState
}

// NewAdaptive validates options and builds an untrained estimator.
func NewAdaptive(opts AdaptiveOptions) (*Adaptive, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	return &Adaptive{opts: opts}, nil
}

func (a *Adaptive) Name() string { return "adaptive" }

// Trained reports whether a fit or artifact load has occurred.
func (a *Adaptive) Trained() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fitted != nil
}

// Train fits the scaler and the boosted ensemble, storing the ordered
// feature-name list.
func (a *Adaptive) Train(features []string, X [][]float64, y []float64) error {
	if err := validateTrainingData(features, X, y); err != nil {
		return err
	}

	scaler := fitScaler(X)
	Xs := scaler.transformAll(X)
	rng := rand.New(rand.NewSource(a.opts.Seed))
	boost := fitBoosted(Xs, y, a.opts.Trees, a.opts.MaxDepth, a.opts.MinLeaf, a.opts.LearningRate, rng)

	a.mu.Lock()
	a.fitted = &fittedState{
		Features: append([]string(nil), features...),
		Scaler:   scaler,
		Boost:    boost,
	}
	a.mu.Unlock()
	return nil
}

// Estimate predicts slippage from named features; see Regression.Estimate for
// the not-trained and feature-mismatch conditions.
func (a *Adaptive) Estimate(req domain.TradeRequest, ectx Context) (domain.SlippageEstimate, error) {
	if err := req.Validate(); err != nil {
		return domain.SlippageEstimate{}, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fitted == nil {
		return domain.SlippageEstimate{}, domain.ErrNotTrained
	}

	x, err := resolveFeatures(a.fitted.Features, req, ectx)
	if err != nil {
		return domain.SlippageEstimate{}, err
	}
	value := math.Abs(a.fitted.predict(a.fitted.Scaler.transform(x)))
	return domain.SlippageEstimate{Value: value, ModelUsed: a.Name()}, nil
}

// SaveArtifact persists the fitted ensemble, scaler and feature list.
func (a *Adaptive) SaveArtifact(path string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.fitted == nil {
		return domain.ErrNotTrained
	}
	return saveArtifact(path, "adaptive", "gradient_boosted", a.fitted)
}

// LoadArtifact restores a previously saved fit, replacing any current state.
func (a *Adaptive) LoadArtifact(path string) error {
	fitted, err := loadArtifact(path, "adaptive", "gradient_boosted")
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.fitted = fitted
	a.mu.Unlock()
	return nil
}
