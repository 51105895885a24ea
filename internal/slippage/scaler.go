package slippage

import (
	"gonum.org/v1/gonum/stat"
)

// standardScaler centers features to zero mean and unit variance.
// Fitted once at train time and stored with the model artifact so the exact
// same transform is applied at prediction time.
type standardScaler struct {
	Mean []float64
	Std  []float64
}

func fitScaler(X [][]float64) standardScaler {
	cols := len(X[0])
	s := standardScaler{Mean: make([]float64, cols), Std: make([]float64, cols)}
	col := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		s.Std[j] = stat.StdDev(col, nil)
		if s.Std[j] == 0 {
			// Constant feature: pass through centered only.
			s.Std[j] = 1
		}
	}
	return s
}

func (s standardScaler) transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

func (s standardScaler) transformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.transform(row)
	}
	return out
}
