package impact

import (
	"errors"
	"math"
	"testing"

	"execsim/internal/domain"
)

func validParams() Parameters {
	return Parameters{
		LambdaTemp: 1e-6,
		Gamma:      1e-7,
		Sigma:      0.3,
		Eta:        5e-7,
		Epsilon:    0.01,
		Tau:        1.0,
	}
}

func TestModel_Derived(t *testing.T) {
	m, err := New(validParams())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	d, err := m.Derived()
	if err != nil {
		t.Fatalf("Derived failed: %v", err)
	}

	wantEtaTilde := 5e-7 - 0.5*1e-7*1.0
	if math.Abs(d.EtaTilde-wantEtaTilde) > 1e-15 {
		t.Errorf("Expected etaTilde %g, got %g", wantEtaTilde, d.EtaTilde)
	}
	wantKTSq := (1e-6 * 0.3 * 0.3) / wantEtaTilde
	if math.Abs(d.KappaTildeSq-wantKTSq) > 1e-9 {
		t.Errorf("Expected kappaTildeSq %g, got %g", wantKTSq, d.KappaTildeSq)
	}
	wantKappa := math.Acosh(0.5*wantKTSq*1.0+1) / 1.0
	if math.Abs(d.Kappa-wantKappa) > 1e-12 {
		t.Errorf("Expected kappa %g, got %g", wantKappa, d.Kappa)
	}
}

func TestModel_AssumptionViolation(t *testing.T) {
	p := validParams()
	p.Gamma = 0.1 // etaTilde = 5e-7 - 0.05 < 0

	m, err := New(p)
	if err != nil {
		t.Fatalf("construction succeeds; the violation surfaces on use: %v", err)
	}

	if _, err := m.Derived(); !errors.Is(err, domain.ErrAssumptionViolated) {
		t.Errorf("Expected ErrAssumptionViolated, got %v", err)
	}
	if _, err := m.TemporaryImpactAt(100, 0.5); !errors.Is(err, domain.ErrAssumptionViolated) {
		t.Errorf("Expected ErrAssumptionViolated from impact, got %v", err)
	}
}

func TestModel_SetParametersInvalidatesCache(t *testing.T) {
	m, _ := New(validParams())

	first, err := m.Derived()
	if err != nil {
		t.Fatal(err)
	}

	p := validParams()
	p.Sigma = 0.6
	if err := m.SetParameters(p); err != nil {
		t.Fatal(err)
	}

	second, err := m.Derived()
	if err != nil {
		t.Fatal(err)
	}
	if second.KappaTildeSq == first.KappaTildeSq {
		t.Error("Expected derived values to change after parameter update")
	}
	if math.Abs(second.KappaTildeSq-4*first.KappaTildeSq) > 1e-6*first.KappaTildeSq {
		t.Errorf("Doubling sigma should quadruple kappaTildeSq: %g vs %g", second.KappaTildeSq, first.KappaTildeSq)
	}
}

func TestModel_InstantaneousImpact(t *testing.T) {
	m, _ := New(validParams())

	temp, err := m.TemporaryImpact(1000, 0) // interval defaults to tau
	if err != nil {
		t.Fatal(err)
	}
	want := 0.01 + 1e-6*1000
	if math.Abs(temp-want) > 1e-12 {
		t.Errorf("Expected temporary impact %g, got %g", want, temp)
	}

	// Sign follows direction
	tempSell, _ := m.TemporaryImpact(-1000, 0)
	if tempSell >= 0 {
		t.Errorf("Expected negative impact for sell, got %g", tempSell)
	}

	perm, err := m.PermanentImpact(1000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(perm-5e-7*1000) > 1e-12 {
		t.Errorf("Expected permanent impact %g, got %g", 5e-7*1000, perm)
	}
}

func TestModel_TrajectoryImpactBounds(t *testing.T) {
	m, _ := New(validParams())

	if _, err := m.TemporaryImpactAt(100, -0.1); err == nil {
		t.Error("Expected error for t < 0")
	}
	if _, err := m.PermanentImpactAt(100, 1.5); err == nil {
		t.Error("Expected error for t > tau")
	}

	// Defined and finite across the whole interval
	for _, tt := range []float64{0, 0.25, 0.5, 0.75, 1.0} {
		v, err := m.CalculateImpact(100, tt)
		if err != nil {
			t.Fatalf("CalculateImpact(%g) failed: %v", tt, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("CalculateImpact(%g) not finite: %g", tt, v)
		}
	}
}

func TestModel_OptimalTrajectory(t *testing.T) {
	m, _ := New(validParams())

	const total = 10000.0
	trades, err := m.OptimalTrajectory(total, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 10 {
		t.Fatalf("Expected 10 trades, got %d", len(trades))
	}

	sum := 0.0
	for _, tr := range trades {
		sum += tr
		if tr < 0 {
			t.Errorf("Expected non-negative child trade, got %g", tr)
		}
	}
	if math.Abs(sum-total) > 1e-6 {
		t.Errorf("Trajectory must telescope to %g, got %g", total, sum)
	}

	if _, err := m.OptimalTrajectory(total, 0); err == nil {
		t.Error("Expected error for zero intervals")
	}
}

func TestModel_ScheduleCost(t *testing.T) {
	m, _ := New(validParams())

	trades, err := m.OptimalTrajectory(10000, 5)
	if err != nil {
		t.Fatal(err)
	}

	bd, err := m.ScheduleCost(trades, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bd.TemporaryImpact <= 0 {
		t.Errorf("Expected positive temporary cost, got %g", bd.TemporaryImpact)
	}
	if bd.Total != bd.TemporaryImpact+bd.PermanentImpact+bd.VolatilityRisk {
		t.Error("Total must equal the sum of components")
	}
}

func TestParameters_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Parameters)
	}{
		{"zero tau", func(p *Parameters) { p.Tau = 0 }},
		{"negative sigma", func(p *Parameters) { p.Sigma = -0.1 }},
		{"zero lambda", func(p *Parameters) { p.LambdaTemp = 0 }},
		{"nan gamma", func(p *Parameters) { p.Gamma = math.NaN() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			if _, err := New(p); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
