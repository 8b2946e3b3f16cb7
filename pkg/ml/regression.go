package ml

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

const (
	Linear   = "linear"
	Logistic = "logistic"
)

// SGD holds mini-batch gradient descent hyperparameters. The seed drives
// weight initialisation and per-epoch shuffling, so a fixed seed gives a
// reproducible model.
type SGD struct {
	LearningRate float64
	Epochs       int
	BatchSize    int
	L2           float64
	Seed         int64
}

// Params are the learned weights of a linear or logistic model
type Params struct {
	Algorithm string    `json:"algorithm"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
}

// Score returns predictions for linear models and p(y=1) for logistic ones
func (p Params) Score(X [][]float64) ([]float64, error) {
	var link func(float64) float64
	switch p.Algorithm {
	case Linear:
		link = identity
	case Logistic:
		link = Sigmoid
	default:
		return nil, fmt.Errorf("unknown algorithm %q", p.Algorithm)
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(p.Weights) {
			return nil, fmt.Errorf("%w: row %d has %d features, model has %d", ErrLengthMismatch, i, len(row), len(p.Weights))
		}
		out[i] = link(dot(p.Weights, row) + p.Bias)
	}
	return out, nil
}

// LinearRegression minimises squared error
type LinearRegression struct {
	SGD
	W []float64
	B float64
}

func NewLinearRegression(opt SGD) *LinearRegression { return &LinearRegression{SGD: opt} }

// Fit trains on X, y and returns the final epoch's mean squared error
func (m *LinearRegression) Fit(X [][]float64, y []float64) (float64, error) {
	w, b, loss, err := fitSGD(X, y, m.SGD, identity, MSE)
	if err != nil {
		return loss, err
	}
	m.W, m.B = w, b
	return loss, nil
}

func (m *LinearRegression) Predict(X [][]float64) ([]float64, error) {
	return m.Params().Score(X)
}

func (m *LinearRegression) Params() Params {
	return Params{Algorithm: Linear, Weights: append([]float64(nil), m.W...), Bias: m.B}
}

// LogisticRegression is a binary classifier over 0/1 labels
type LogisticRegression struct {
	SGD
	W []float64
	B float64
}

func NewLogisticRegression(opt SGD) *LogisticRegression { return &LogisticRegression{SGD: opt} }

// Fit trains on X, y and returns the final epoch's log loss
func (m *LogisticRegression) Fit(X [][]float64, y []float64) (float64, error) {
	for i, v := range y {
		if v != 0 && v != 1 {
			return 0, fmt.Errorf("logistic regression needs 0/1 labels, row %d has %v", i, v)
		}
	}
	w, b, loss, err := fitSGD(X, y, m.SGD, Sigmoid, LogLoss)
	if err != nil {
		return loss, err
	}
	m.W, m.B = w, b
	return loss, nil
}

// PredictProba returns p(y=1) per row
func (m *LogisticRegression) PredictProba(X [][]float64) ([]float64, error) {
	return m.Params().Score(X)
}

// Predict returns 0/1 labels using the given cut-off
func (m *LogisticRegression) Predict(X [][]float64, threshold float64) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return Threshold(proba, threshold), nil
}

func (m *LogisticRegression) Params() Params {
	return Params{Algorithm: Logistic, Weights: append([]float64(nil), m.W...), Bias: m.B}
}

func fitSGD(X [][]float64, y []float64, opt SGD, link func(float64) float64, loss func(yTrue, yPred []float64) float64) ([]float64, float64, float64, error) {
	c, err := width(X)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(y) != len(X) {
		return nil, 0, 0, fmt.Errorf("%w: %d rows, %d targets", ErrLengthMismatch, len(X), len(y))
	}
	if HasNaN(X) {
		return nil, 0, 0, fmt.Errorf("features contain NaN")
	}
	if opt.Epochs < 1 || opt.BatchSize < 1 || opt.LearningRate <= 0 {
		return nil, 0, 0, fmt.Errorf("invalid SGD settings %+v", opt)
	}

	rng := rand.New(rand.NewSource(opt.Seed))
	w := make([]float64, c)
	for j := range w {
		w[j] = rng.NormFloat64() * 0.01
	}
	b := 0.0

	n := len(X)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	gW := make([]float64, c)
	pred := make([]float64, n)
	var last float64

	for ep := 0; ep < opt.Epochs; ep++ {
		rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for start := 0; start < n; start += opt.BatchSize {
			end := min(start+opt.BatchSize, n)
			for j := range gW {
				gW[j] = 0
			}
			gb := 0.0
			for _, i := range idx[start:end] {
				d := link(dot(w, X[i])+b) - y[i]
				for j, xij := range X[i] {
					gW[j] += d * xij
				}
				gb += d
			}
			size := float64(end - start)
			for j := range w {
				w[j] -= opt.LearningRate * (gW[j]/size + opt.L2*w[j])
			}
			b -= opt.LearningRate * gb / size
		}

		for i, row := range X {
			pred[i] = link(dot(w, row) + b)
		}
		last = loss(y, pred)
		if math.IsNaN(last) || math.IsInf(last, 0) {
			return nil, 0, last, fmt.Errorf("%w at epoch %d: loss %v", ErrDiverged, ep+1, last)
		}
	}
	return w, b, last, nil
}

// Sigmoid is the logistic function
func Sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func identity(z float64) float64 { return z }

func dot(w, x []float64) float64 { return floats.Dot(w, x) }
