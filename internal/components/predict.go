package components

import (
	"context"
	"fmt"
	"math"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/pkg/dataset"
	"go-ml-pipeline/pkg/ml"
	"go-ml-pipeline/pkg/utils"
)

// Prediction is the score of one input row. Label is set for classifiers.
type Prediction struct {
	Score float64  `json:"score"`
	Label *float64 `json:"label,omitempty"`
}

// Predictor scores raw rows with a trained model and its fitted
// preprocessing
type Predictor struct {
	model ModelFile
	pre   Preprocessor
}

// LoadPredictor reads model.json and the preprocessor it references
func LoadPredictor(ctx context.Context, sink artifacts.Sink, modelLocation string) (*Predictor, error) {
	var p Predictor
	if err := artifacts.ReadJSON(ctx, sink, modelLocation, &p.model); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if p.model.PreprocessorPath == "" {
		return nil, fmt.Errorf("load model: %s has no preprocessor_path", modelLocation)
	}
	if err := artifacts.ReadJSON(ctx, sink, p.model.PreprocessorPath, &p.pre); err != nil {
		return nil, fmt.Errorf("load preprocessor: %w", err)
	}
	if p.pre.Scaler == nil {
		return nil, fmt.Errorf("load preprocessor: %s has no scaler", p.model.PreprocessorPath)
	}
	if len(p.pre.FeatureNames) != len(p.model.Weights) {
		return nil, fmt.Errorf("model has %d weights but preprocessor lists %d features", len(p.model.Weights), len(p.pre.FeatureNames))
	}
	return &p, nil
}

// Features returns the input columns the model expects
func (p *Predictor) Features() []string { return append([]string(nil), p.pre.FeatureNames...) }

// Algorithm is linear or logistic
func (p *Predictor) Algorithm() string { return p.model.Algorithm }

// Predict scores rows keyed by feature name. Absent features are treated
// as missing and imputed when the preprocessor allows it.
func (p *Predictor) Predict(rows []map[string]float64, threshold float64) ([]Prediction, error) {
	X := make([][]float64, len(rows))
	for i, row := range rows {
		X[i] = make([]float64, len(p.pre.FeatureNames))
		for j, name := range p.pre.FeatureNames {
			v, ok := row[name]
			if !ok {
				v = math.NaN()
			}
			X[i][j] = v
		}
	}
	return p.score(X, threshold)
}

// PredictTable scores every row of a table holding the feature columns
func (p *Predictor) PredictTable(t *dataset.Table, threshold float64) ([]Prediction, error) {
	idx := make([]int, len(p.pre.FeatureNames))
	for j, name := range p.pre.FeatureNames {
		if idx[j] = t.Index(name); idx[j] < 0 {
			return nil, fmt.Errorf("%w: feature %q", ErrMissingColumn, name)
		}
	}
	X := make([][]float64, t.Len())
	for i, row := range t.Rows {
		X[i] = make([]float64, len(idx))
		for j, k := range idx {
			v, ok := utils.ParseNumber(row[k])
			if !ok {
				if !utils.IsMissing(row[k]) {
					return nil, fmt.Errorf("row %d: feature %q is not numeric: %q", i+1, p.pre.FeatureNames[j], row[k])
				}
				v = math.NaN()
			}
			X[i][j] = v
		}
	}
	return p.score(X, threshold)
}

func (p *Predictor) score(X [][]float64, threshold float64) ([]Prediction, error) {
	if len(X) == 0 {
		return []Prediction{}, nil
	}
	prepared, err := p.pre.Apply(X)
	if err != nil {
		return nil, err
	}
	scores, err := p.model.Score(prepared)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(scores))
	for i, s := range scores {
		out[i].Score = s
		if p.model.Algorithm == ml.Logistic {
			label := 0.0
			if s >= threshold {
				label = 1
			}
			out[i].Label = &label
		}
	}
	return out, nil
}
