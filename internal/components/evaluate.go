package components

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/pkg/ml"
)

// EvaluationReport is written to metrics.json
type EvaluationReport struct {
	Algorithm string             `json:"algorithm"`
	Samples   int                `json:"samples"`
	Metrics   map[string]float64 `json:"metrics"`
	Passed    bool               `json:"passed"`
	Misses    []string           `json:"misses"`
}

// Evaluation scores the model on the held-out split
type Evaluation struct {
	sink artifacts.Sink
}

func NewEvaluation(sink artifacts.Sink) *Evaluation { return &Evaluation{sink: sink} }

func (s *Evaluation) Name() string { return model.StageEvaluation }
func (s *Evaluation) Requires() []pipeline.ArtifactKind {
	return []pipeline.ArtifactKind{pipeline.KindTransformation, pipeline.KindModel}
}
func (s *Evaluation) Produces() pipeline.ArtifactKind { return pipeline.KindEvaluation }

func (s *Evaluation) CheckConfig(cfg pipeline.StageConfig) error {
	return checkConfig[model.EvaluationConfig](s.Name(), cfg)
}

func (s *Evaluation) Run(ctx context.Context, in pipeline.Inputs, cfg pipeline.StageConfig) (pipeline.Artifact, error) {
	c, err := pipeline.ConfigAs[model.EvaluationConfig](s.Name(), cfg)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	tr, err := in.Must(pipeline.KindTransformation)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	m, err := in.Must(pipeline.KindModel)
	if err != nil {
		return pipeline.Artifact{}, err
	}

	X, err := tr.Matrix("x_test")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}
	y, err := tr.Floats("y_test")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}
	params, err := paramsFrom(m)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}

	scores, err := params.Score(X)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "predict"))
	}
	var metrics map[string]float64
	if params.Algorithm == ml.Logistic {
		metrics, err = ml.ClassificationReport(y, scores, c.Threshold)
	} else {
		metrics, err = ml.RegressionReport(y, scores)
	}
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "metrics"))
	}

	report := EvaluationReport{
		Algorithm: params.Algorithm,
		Samples:   len(y),
		Metrics:   metrics,
		Misses:    CheckThresholds(metrics, c),
	}
	report.Passed = len(report.Misses) == 0

	metricsPath, err := artifacts.PutJSON(ctx, s.sink, s.Name(), FileMetrics, report)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}
	if !report.Passed && c.FailOnThreshold {
		return pipeline.Artifact{}, pipeline.Wrap(
			fmt.Errorf("%w: %s", ErrThresholdNotMet, strings.Join(report.Misses, "; ")),
			pipeline.At(s.Name(), "threshold"))
	}

	values := pipeline.Values{
		"algorithm":    report.Algorithm,
		"samples":      report.Samples,
		"passed":       report.Passed,
		"misses":       report.Misses,
		"metrics":      sortedMetricNames(metrics),
		"metrics_path": metricsPath,
	}
	for name, v := range metrics {
		values[name] = v
	}
	return pipeline.NewArtifact(pipeline.KindEvaluation, values)
}

// CheckThresholds lists every metric outside its configured bounds. A bound
// on a metric the model type does not produce is also a miss.
func CheckThresholds(metrics map[string]float64, c model.EvaluationConfig) []string {
	misses := []string{}
	for _, name := range sortedMetricNames(c.MinMetrics) {
		v, ok := metrics[name]
		switch {
		case !ok:
			misses = append(misses, fmt.Sprintf("%s not produced", name))
		case v < c.MinMetrics[name]:
			misses = append(misses, fmt.Sprintf("%s %.4f below %.4f", name, v, c.MinMetrics[name]))
		}
	}
	for _, name := range sortedMetricNames(c.MaxMetrics) {
		v, ok := metrics[name]
		switch {
		case !ok:
			misses = append(misses, fmt.Sprintf("%s not produced", name))
		case v > c.MaxMetrics[name]:
			misses = append(misses, fmt.Sprintf("%s %.4f above %.4f", name, v, c.MaxMetrics[name]))
		}
	}
	return misses
}

func paramsFrom(a pipeline.Artifact) (ml.Params, error) {
	algorithm, err := a.String("algorithm")
	if err != nil {
		return ml.Params{}, err
	}
	weights, err := a.Floats("weights")
	if err != nil {
		return ml.Params{}, err
	}
	bias, err := a.Float("bias")
	if err != nil {
		return ml.Params{}, err
	}
	return ml.Params{Algorithm: algorithm, Weights: weights, Bias: bias}, nil
}

func sortedMetricNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
