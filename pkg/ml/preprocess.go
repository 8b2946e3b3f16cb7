package ml

import (
	"fmt"
	"math"
)

// Imputer fills NaN cells with a per-column statistic learned on training data
type Imputer struct {
	Strategy string    `json:"strategy"` // mean, median
	Fill     []float64 `json:"fill"`
}

// NewImputer returns an unfitted imputer
func NewImputer(strategy string) *Imputer { return &Imputer{Strategy: strategy} }

func (im *Imputer) Fit(X [][]float64) error {
	c, err := width(X)
	if err != nil {
		return err
	}
	im.Fill = make([]float64, c)
	for j := 0; j < c; j++ {
		col := Column(X, j)
		switch im.Strategy {
		case "mean":
			im.Fill[j] = Mean(col)
		case "median":
			im.Fill[j] = Median(col)
		default:
			return fmt.Errorf("unknown imputation strategy %q", im.Strategy)
		}
		// a column with no values at all imputes to zero
		if math.IsNaN(im.Fill[j]) {
			im.Fill[j] = 0
		}
	}
	return nil
}

// Transform returns a copy of X with NaN cells replaced
func (im *Imputer) Transform(X [][]float64) ([][]float64, error) {
	if im.Fill == nil {
		return nil, ErrNotFitted
	}
	out := cloneMatrix(X)
	for i, row := range out {
		if len(row) != len(im.Fill) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrLengthMismatch, i, len(row), len(im.Fill))
		}
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = im.Fill[j]
			}
		}
	}
	return out, nil
}

// Scaler applies (x - Center) / Scale per column. Method "standard" learns
// mean/std, "minmax" learns min/range, "none" is the identity.
type Scaler struct {
	Method string    `json:"method"`
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

// NewScaler returns an unfitted scaler
func NewScaler(method string) *Scaler { return &Scaler{Method: method} }

func (s *Scaler) Fit(X [][]float64) error {
	c, err := width(X)
	if err != nil {
		return err
	}
	s.Center = make([]float64, c)
	s.Scale = make([]float64, c)
	for j := 0; j < c; j++ {
		col := Column(X, j)
		switch s.Method {
		case "standard":
			s.Center[j], s.Scale[j] = Mean(col), Std(col)
		case "minmax":
			lo, hi := MinMax(col)
			s.Center[j], s.Scale[j] = lo, hi-lo
		case "none":
			s.Center[j], s.Scale[j] = 0, 1
		default:
			return fmt.Errorf("unknown scaling method %q", s.Method)
		}
		// constant columns map to zero instead of dividing by zero
		if s.Scale[j] == 0 || math.IsNaN(s.Scale[j]) {
			s.Scale[j] = 1
		}
		if math.IsNaN(s.Center[j]) {
			s.Center[j] = 0
		}
	}
	return nil
}

// Transform returns a scaled copy of X
func (s *Scaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Center == nil {
		return nil, ErrNotFitted
	}
	out := cloneMatrix(X)
	for i, row := range out {
		if len(row) != len(s.Center) {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrLengthMismatch, i, len(row), len(s.Center))
		}
		for j := range row {
			row[j] = (row[j] - s.Center[j]) / s.Scale[j]
		}
	}
	return out, nil
}

// FitTransform fits on X and returns the transformed copy
func (s *Scaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
