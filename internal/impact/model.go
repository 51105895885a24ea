// Package impact implements the Almgren-Chriss market impact model:
// closed-form temporary/permanent impact and the optimal execution trajectory.
package impact

import (
	"fmt"
	"math"
	"sync"

	"execsim/internal/domain"
)

// Parameters are the Almgren-Chriss model inputs. All values are validated at
// construction; derived quantities are recomputed lazily after any change.
type Parameters struct {
	LambdaTemp float64 `yaml:"lambda_temp"` // temporary impact factor
	Gamma      float64 `yaml:"gamma"`       // risk aversion
	Sigma      float64 `yaml:"sigma"`       // volatility
	Eta        float64 `yaml:"eta"`         // permanent impact factor
	Epsilon    float64 `yaml:"epsilon"`     // fixed trading cost (half spread)
	Tau        float64 `yaml:"tau"`         // time interval between trades
}

// Validate checks the parameter ranges the closed forms require.
func (p Parameters) Validate() error {
	if p.Tau <= 0 || math.IsNaN(p.Tau) || math.IsInf(p.Tau, 0) {
		return &domain.ConfigError{Field: "tau", Err: domain.ErrNonPositive}
	}
	if p.Sigma <= 0 || math.IsNaN(p.Sigma) {
		return &domain.ConfigError{Field: "sigma", Err: domain.ErrNonPositive}
	}
	if p.LambdaTemp <= 0 || math.IsNaN(p.LambdaTemp) {
		return &domain.ConfigError{Field: "lambda_temp", Err: domain.ErrNonPositive}
	}
	if math.IsNaN(p.Gamma) || math.IsNaN(p.Eta) || math.IsNaN(p.Epsilon) {
		return &domain.ConfigError{Field: "gamma/eta/epsilon", Err: domain.ErrNonPositive}
	}
	return nil
}

// Derived holds the cached quantities recomputed on parameter change.
type Derived struct {
	EtaTilde     float64 // eta − 0.5·gamma·tau; must be strictly positive
	KappaTildeSq float64 // (lambda·sigma²)/etaTilde
	Kappa        float64 // arccosh(0.5·kappaTildeSq·tau² + 1)/tau
}

// Model is a thread-safe Almgren-Chriss calculator. Derived values are cached
// until the next parameter write (lazy, invalidate-on-write).
type Model struct {
	mu      sync.Mutex
	params  Parameters
	derived *Derived // nil when invalidated
}

// New creates a model with validated parameters.
func New(params Parameters) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Model{params: params}, nil
}

// Parameters returns the current parameter set.
func (m *Model) Parameters() Parameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// SetParameters replaces the parameter set and invalidates the derived cache.
func (m *Model) SetParameters(params Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
	m.derived = nil
	return nil
}

// Derived returns the cached derived quantities, computing them if needed.
// etaTilde <= 0 reports an assumption violation; no calculation proceeds.
func (m *Model) Derived() (Derived, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.derivedLocked()
}

func (m *Model) derivedLocked() (Derived, error) {
	if m.derived != nil {
		return *m.derived, nil
	}
	p := m.params
	etaTilde := p.Eta - 0.5*p.Gamma*p.Tau
	if etaTilde <= 0 {
		return Derived{}, fmt.Errorf("%w: eta_tilde=%g (eta=%g gamma=%g tau=%g)",
			domain.ErrAssumptionViolated, etaTilde, p.Eta, p.Gamma, p.Tau)
	}
	d := Derived{EtaTilde: etaTilde}
	d.KappaTildeSq = (p.LambdaTemp * p.Sigma * p.Sigma) / etaTilde
	d.Kappa = math.Acosh(0.5*d.KappaTildeSq*p.Tau*p.Tau+1) / p.Tau
	m.derived = &d
	return d, nil
}

func (m *Model) snapshot() (Parameters, Derived, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.derivedLocked()
	return m.params, d, err
}

// TemporaryImpact is the instantaneous form:
// epsilon·sign(size) + lambda·(size/interval), in quote units per unit traded.
// interval <= 0 defaults to tau.
func (m *Model) TemporaryImpact(tradeSize, interval float64) (float64, error) {
	p, _, err := m.snapshot()
	if err != nil {
		return 0, err
	}
	if interval <= 0 {
		interval = p.Tau
	}
	return p.Epsilon*sign(tradeSize) + p.LambdaTemp*(tradeSize/interval), nil
}

// PermanentImpact is the instantaneous linear form: eta·(size/interval).
// interval <= 0 defaults to tau.
func (m *Model) PermanentImpact(tradeSize, interval float64) (float64, error) {
	p, _, err := m.snapshot()
	if err != nil {
		return 0, err
	}
	if interval <= 0 {
		interval = p.Tau
	}
	return p.Eta * (tradeSize / interval), nil
}

// TemporaryImpactAt is the hyperbolic-sine trajectory form at elapsed time
// t ∈ [0, tau]: (lambda·sigma²)/(2·etaTilde)·(sinh(κ(τ−t)) − sinh(κt)),
// signed by the trade direction.
func (m *Model) TemporaryImpactAt(tradeSize, t float64) (float64, error) {
	p, d, err := m.snapshot()
	if err != nil {
		return 0, err
	}
	if t < 0 || t > p.Tau {
		return 0, &domain.ConfigError{Field: "t", Err: fmt.Errorf("t=%g outside [0, %g]", t, p.Tau)}
	}
	coef := (p.LambdaTemp * p.Sigma * p.Sigma) / (2 * d.EtaTilde)
	return sign(tradeSize) * coef * (math.Sinh(d.Kappa*(p.Tau-t)) - math.Sinh(d.Kappa*t)), nil
}

// PermanentImpactAt is the cosh companion of the temporary trajectory form:
// (lambda·sigma²)/(2·etaTilde)·(cosh(κ(τ−t)) − cosh(κt)), signed by direction.
func (m *Model) PermanentImpactAt(tradeSize, t float64) (float64, error) {
	p, d, err := m.snapshot()
	if err != nil {
		return 0, err
	}
	if t < 0 || t > p.Tau {
		return 0, &domain.ConfigError{Field: "t", Err: fmt.Errorf("t=%g outside [0, %g]", t, p.Tau)}
	}
	coef := (p.LambdaTemp * p.Sigma * p.Sigma) / (2 * d.EtaTilde)
	return sign(tradeSize) * coef * (math.Cosh(d.Kappa*(p.Tau-t)) - math.Cosh(d.Kappa*t)), nil
}

// CalculateImpact returns temporary + permanent trajectory impact at elapsed
// time t as a single signed value.
func (m *Model) CalculateImpact(tradeSize, t float64) (float64, error) {
	temp, err := m.TemporaryImpactAt(tradeSize, t)
	if err != nil {
		return 0, err
	}
	perm, err := m.PermanentImpactAt(tradeSize, t)
	if err != nil {
		return 0, err
	}
	return temp + perm, nil
}

// OptimalTrajectory produces the closed-form optimal execution schedule:
// exactly n per-interval trade sizes summing to totalSize. The full schedule
// is materialized before the first child trade is attempted.
func (m *Model) OptimalTrajectory(totalSize float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, &domain.ConfigError{Field: "num_intervals", Err: domain.ErrNonPositive}
	}
	p, d, err := m.snapshot()
	if err != nil {
		return nil, err
	}

	horizon := p.Tau
	h := horizon / float64(n)
	sinhKT := math.Sinh(d.Kappa * horizon)

	// Optimal holdings: x_j = X·sinh(κ(T − j·h))/sinh(κT); trades telescope to X.
	holdings := make([]float64, n+1)
	for j := 0; j <= n; j++ {
		if sinhKT == 0 {
			// κ→0 degenerate case: linear liquidation
			holdings[j] = totalSize * float64(n-j) / float64(n)
			continue
		}
		holdings[j] = totalSize * math.Sinh(d.Kappa*(horizon-float64(j)*h)) / sinhKT
	}

	trades := make([]float64, n)
	for j := 0; j < n; j++ {
		trades[j] = holdings[j] - holdings[j+1]
	}
	return trades, nil
}

// CostBreakdown is the estimated cost of executing a trade schedule.
type CostBreakdown struct {
	TemporaryImpact float64
	PermanentImpact float64
	VolatilityRisk  float64
	Total           float64
}

// ScheduleCost estimates the total cost of executing a series of child trades,
// decomposed into impact and volatility-risk components.
// interval <= 0 defaults to tau.
func (m *Model) ScheduleCost(trades []float64, interval float64) (CostBreakdown, error) {
	p, _, err := m.snapshot()
	if err != nil {
		return CostBreakdown{}, err
	}
	if interval <= 0 {
		interval = p.Tau
	}

	var bd CostBreakdown
	holding := 0.0
	for _, tr := range trades {
		holding += tr
	}
	for _, tr := range trades {
		next := holding - tr
		rate := tr / interval
		bd.TemporaryImpact += (p.Epsilon*sign(tr) + p.LambdaTemp*rate) * math.Abs(tr)
		bd.PermanentImpact += (p.Eta * rate) * next
		bd.VolatilityRisk += 0.5 * p.Gamma * p.Sigma * p.Sigma * holding * holding * interval
		holding = next
	}
	bd.Total = bd.TemporaryImpact + bd.PermanentImpact + bd.VolatilityRisk
	return bd, nil
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
