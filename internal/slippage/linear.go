package slippage

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// linearCoef is a fitted linear-family regressor: y = intercept + coef·x.
type linearCoef struct {
	Coef      []float64
	Intercept float64
}

func (l linearCoef) predict(x []float64) float64 {
	y := l.Intercept
	for j, c := range l.Coef {
		y += c * x[j]
	}
	return y
}

// fitOLS solves the least-squares problem over a bias-augmented design matrix.
func fitOLS(X [][]float64, y []float64) (linearCoef, error) {
	n, p := len(X), len(X[0])
	a := mat.NewDense(n, p+1, nil)
	b := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			a.Set(i, j+1, X[i][j])
		}
		b.Set(i, 0, y[i])
	}

	var beta mat.Dense
	if err := beta.Solve(a, b); err != nil {
		// An ill-conditioned (e.g. collinear) system still yields a usable
		// minimum-norm solution; only a hard failure aborts.
		if _, ok := err.(mat.Condition); !ok {
			return linearCoef{}, fmt.Errorf("least squares solve: %w", err)
		}
	}
	out := linearCoef{Coef: make([]float64, p), Intercept: beta.At(0, 0)}
	for j := 0; j < p; j++ {
		out.Coef[j] = beta.At(j+1, 0)
	}
	return out, nil
}

// fitRidge solves the L2-penalized normal equations (XᵀX + αP)β = Xᵀy with
// the intercept left unpenalized.
func fitRidge(X [][]float64, y []float64, alpha float64) (linearCoef, error) {
	n, p := len(X), len(X[0])
	a := mat.NewDense(n, p+1, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			a.Set(i, j+1, X[i][j])
		}
		b.SetVec(i, y[i])
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 1; j <= p; j++ {
		ata.Set(j, j, ata.At(j, j)+alpha)
	}
	var atb mat.VecDense
	atb.MulVec(a.T(), b)

	var beta mat.VecDense
	if err := beta.SolveVec(&ata, &atb); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return linearCoef{}, fmt.Errorf("ridge solve: %w", err)
		}
	}
	out := linearCoef{Coef: make([]float64, p), Intercept: beta.AtVec(0)}
	for j := 0; j < p; j++ {
		out.Coef[j] = beta.AtVec(j + 1)
	}
	return out, nil
}

// fitLasso runs coordinate descent with soft thresholding. X is expected to be
// standardized (the train pipeline scales before fitting).
func fitLasso(X [][]float64, y []float64, alpha float64) (linearCoef, error) {
	const (
		maxIter = 1000
		tol     = 1e-7
	)
	n, p := len(X), len(X[0])

	meanY := 0.0
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)

	coef := make([]float64, p)
	resid := make([]float64, n)
	for i := range y {
		resid[i] = y[i] - meanY
	}

	// Column squared norms for the update denominators.
	z := make([]float64, p)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			z[j] += X[i][j] * X[i][j]
		}
		if z[j] == 0 {
			z[j] = 1
		}
	}

	scaledAlpha := alpha * float64(n)
	for iter := 0; iter < maxIter; iter++ {
		maxDelta := 0.0
		for j := 0; j < p; j++ {
			old := coef[j]
			rho := 0.0
			for i := 0; i < n; i++ {
				rho += X[i][j] * (resid[i] + old*X[i][j])
			}
			coef[j] = softThreshold(rho, scaledAlpha) / z[j]
			if d := math.Abs(coef[j] - old); d > maxDelta {
				maxDelta = d
			}
			if coef[j] != old {
				diff := coef[j] - old
				for i := 0; i < n; i++ {
					resid[i] -= diff * X[i][j]
				}
			}
		}
		if maxDelta < tol {
			break
		}
	}
	return linearCoef{Coef: coef, Intercept: meanY}, nil
}

func softThreshold(x, lambda float64) float64 {
	switch {
	case x > lambda:
		return x - lambda
	case x < -lambda:
		return x + lambda
	default:
		return 0
	}
}
