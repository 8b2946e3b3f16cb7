// Package ml implements the small numeric toolkit used by the reference
// stages: imputation, scaling, gradient-descent regressors and metrics.
// Missing values are represented as NaN throughout.
package ml

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmpty          = errors.New("empty input")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrDiverged       = errors.New("training diverged")
	ErrNotFitted      = errors.New("not fitted")
)

// present returns the non-NaN values
func present(xs []float64) []float64 {
	vals := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	return vals
}

// Mean of the non-NaN values; NaN when there are none.
func Mean(xs []float64) float64 {
	vals := present(xs)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// Median of the non-NaN values; NaN when there are none. An even count
// averages the two middle values.
func Median(xs []float64) float64 {
	vals := present(xs)
	if len(vals) == 0 {
		return math.NaN()
	}
	sort.Float64s(vals)
	lower := stat.Quantile(0.5, stat.Empirical, vals, nil)
	if len(vals)%2 == 0 {
		return (lower + vals[len(vals)/2]) / 2
	}
	return lower
}

// Std is the population standard deviation of the non-NaN values
func Std(xs []float64) float64 {
	vals := present(xs)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.PopStdDev(vals, nil)
}

// MinMax of the non-NaN values
func MinMax(xs []float64) (lo, hi float64) {
	vals := present(xs)
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(vals), floats.Max(vals)
}

// Column copies column j out of a row-major matrix
func Column(X [][]float64, j int) []float64 {
	col := make([]float64, len(X))
	for i := range X {
		col[i] = X[i][j]
	}
	return col
}

// HasNaN reports whether any cell is NaN
func HasNaN(X [][]float64) bool {
	for _, row := range X {
		for _, v := range row {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

func width(X [][]float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmpty
	}
	c := len(X[0])
	for _, row := range X {
		if len(row) != c {
			return 0, ErrLengthMismatch
		}
	}
	return c, nil
}

func cloneMatrix(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
