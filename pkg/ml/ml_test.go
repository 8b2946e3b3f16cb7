package ml

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func almost(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestStats(t *testing.T) {
	xs := []float64{1, math.NaN(), 3, 5}
	if Mean(xs) != 3 {
		t.Fatalf("Mean=%v", Mean(xs))
	}
	if Median([]float64{4, 1, 3, 2}) != 2.5 {
		t.Fatalf("Median even")
	}
	if !almost(Std([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 2, 1e-12) {
		t.Fatalf("Std")
	}
	lo, hi := MinMax(xs)
	if lo != 1 || hi != 5 {
		t.Fatalf("MinMax=%v,%v", lo, hi)
	}
	if !math.IsNaN(Mean([]float64{math.NaN()})) {
		t.Fatalf("Mean of missing column should be NaN")
	}
	if Median([]float64{9, math.NaN(), 1, 4}) != 4 {
		t.Fatalf("Median odd")
	}
	if lo, hi := MinMax([]float64{math.NaN()}); !math.IsNaN(lo) || !math.IsNaN(hi) {
		t.Fatalf("MinMax of missing column=%v,%v", lo, hi)
	}
	if Std([]float64{3}) != 0 || !math.IsNaN(Std(nil)) {
		t.Fatalf("Std edge cases")
	}
	if dot([]float64{1, 2, 3}, []float64{4, 5, 6}) != 32 {
		t.Fatalf("dot")
	}
}

func TestImputer(t *testing.T) {
	X := [][]float64{{1, math.NaN()}, {3, 10}, {math.NaN(), 20}, {5, 60}}
	im := NewImputer("median")
	if _, err := im.Transform(X); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
	if err := im.Fit(X); err != nil {
		t.Fatalf("Fit err=%v", err)
	}
	out, err := im.Transform(X)
	if err != nil {
		t.Fatalf("Transform err=%v", err)
	}
	if out[2][0] != 3 || out[0][1] != 20 {
		t.Fatalf("out=%v", out)
	}
	if !math.IsNaN(X[2][0]) {
		t.Fatalf("input was mutated")
	}
	if err := NewImputer("mode").Fit(X); err == nil {
		t.Fatalf("expected unknown strategy error")
	}
}

func TestScaler(t *testing.T) {
	X := [][]float64{{1, 7}, {2, 7}, {3, 7}}
	tests := []struct {
		method string
		want   [][]float64
	}{
		{"minmax", [][]float64{{0, 0}, {0.5, 0}, {1, 0}}},
		{"none", [][]float64{{1, 7}, {2, 7}, {3, 7}}},
	}
	for _, tt := range tests {
		got, err := NewScaler(tt.method).FitTransform(X)
		if err != nil {
			t.Fatalf("%s: err=%v", tt.method, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: got %v want %v", tt.method, got, tt.want)
		}
	}

	s := NewScaler("standard")
	got, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("standard err=%v", err)
	}
	col := Column(got, 0)
	if !almost(Mean(col), 0, 1e-12) || !almost(Std(col), 1, 1e-12) {
		t.Fatalf("standardised column %v", col)
	}
	if got[0][1] != 0 {
		t.Fatalf("constant column should map to 0, got %v", got[0][1])
	}
	if _, err := s.Transform([][]float64{{1}}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestLinearRegression_Converges(t *testing.T) {
	X := [][]float64{{-1}, {-0.5}, {0}, {0.5}, {1}}
	y := []float64{-1, 0, 1, 2, 3}
	m := NewLinearRegression(SGD{LearningRate: 0.1, Epochs: 500, BatchSize: 2, Seed: 1})
	loss, err := m.Fit(X, y)
	if err != nil {
		t.Fatalf("Fit err=%v", err)
	}
	if !almost(m.W[0], 2, 0.01) || !almost(m.B, 1, 0.01) {
		t.Fatalf("w=%v b=%v", m.W, m.B)
	}
	if loss > 1e-4 {
		t.Fatalf("loss=%v", loss)
	}

	again := NewLinearRegression(SGD{LearningRate: 0.1, Epochs: 500, BatchSize: 2, Seed: 1})
	if _, err := again.Fit(X, y); err != nil {
		t.Fatalf("Fit err=%v", err)
	}
	if !reflect.DeepEqual(m.Params(), again.Params()) {
		t.Fatalf("same seed should give identical params")
	}
}

func TestLinearRegression_Diverges(t *testing.T) {
	X := [][]float64{{100}, {200}, {300}}
	y := []float64{1, 2, 3}
	m := NewLinearRegression(SGD{LearningRate: 1, Epochs: 500, BatchSize: 3, Seed: 1})
	if _, err := m.Fit(X, y); !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected ErrDiverged, got %v", err)
	}
	if m.W != nil {
		t.Fatalf("diverged fit must not keep weights")
	}
}

func TestLogisticRegression(t *testing.T) {
	X := [][]float64{{-2}, {-1}, {1}, {2}}
	y := []float64{0, 0, 1, 1}
	m := NewLogisticRegression(SGD{LearningRate: 0.5, Epochs: 300, BatchSize: 4, Seed: 3})
	if _, err := m.Fit(X, y); err != nil {
		t.Fatalf("Fit err=%v", err)
	}
	pred, err := m.Predict(X, 0.5)
	if err != nil {
		t.Fatalf("Predict err=%v", err)
	}
	if !reflect.DeepEqual(pred, y) {
		t.Fatalf("pred=%v", pred)
	}
	if _, err := m.Fit(X, []float64{0, 2, 1, 1}); err == nil {
		t.Fatalf("expected label error")
	}
}

func TestParamsScore(t *testing.T) {
	p := Params{Algorithm: Linear, Weights: []float64{2}, Bias: 1}
	got, err := p.Score([][]float64{{3}})
	if err != nil || got[0] != 7 {
		t.Fatalf("Score=%v err=%v", got, err)
	}
	if _, err := p.Score([][]float64{{1, 2}}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if _, err := (Params{Algorithm: "tree"}).Score(nil); err == nil {
		t.Fatalf("expected unknown algorithm error")
	}
}

func TestReports(t *testing.T) {
	reg, err := RegressionReport([]float64{1, 2, 3}, []float64{1, 2, 4})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !almost(reg["mse"], 1.0/3, 1e-12) || !almost(reg["mae"], 1.0/3, 1e-12) || !almost(reg["r2"], 0.5, 1e-12) {
		t.Fatalf("reg=%v", reg)
	}

	cls, err := ClassificationReport([]float64{1, 0, 1, 0}, []float64{0.9, 0.6, 0.4, 0.1}, 0.5)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cls["accuracy"] != 0.5 || cls["precision"] != 0.5 || cls["recall"] != 0.5 || cls["f1"] != 0.5 {
		t.Fatalf("cls=%v", cls)
	}

	if _, err := RegressionReport(nil, nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := RegressionReport([]float64{1}, []float64{1, 2}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}
