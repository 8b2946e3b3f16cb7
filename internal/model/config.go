package model

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError aggregates stage config validation issues
type ConfigError struct {
	Stage  string
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return e.Stage + " config invalid"
	}
	return e.Stage + " config invalid: " + strings.Join(e.Issues, "; ")
}

func (e *ConfigError) add(format string, args ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
}

func (e *ConfigError) orNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// IngestionConfig defines where raw data comes from and how it is split
type IngestionConfig struct {
	Source    string  `yaml:"source" json:"source"`                   // local path or http(s) URL
	Format    string  `yaml:"format,omitempty" json:"format,omitempty"` // csv, json; inferred from extension when empty
	TestRatio float64 `yaml:"test_ratio" json:"test_ratio"`           // fraction of rows held out for testing
	Seed      int64   `yaml:"seed" json:"seed"`                       // shuffle seed, fixed for reproducible splits
}

func (c IngestionConfig) Validate() error {
	issues := &ConfigError{Stage: "ingestion"}
	if strings.TrimSpace(c.Source) == "" {
		issues.add("source is required")
	}
	switch strings.ToLower(c.Format) {
	case "", "csv", "json":
	default:
		issues.add("format %q unsupported (csv, json)", c.Format)
	}
	if c.TestRatio <= 0 || c.TestRatio >= 1 {
		issues.add("test_ratio must be in (0, 1), got %v", c.TestRatio)
	}
	return issues.orNil()
}

// ValidationConfig defines validation requirements for the ingested dataset
type ValidationConfig struct {
	RequiredColumns []string           `yaml:"required_columns" json:"required_columns"` // columns that must be present
	NumericColumns  []string           `yaml:"numeric_columns" json:"numeric_columns"`   // columns that must parse as numbers
	MinValues       map[string]float64 `yaml:"min_values" json:"min_values"`             // min allowed numeric values
	MaxValues       map[string]float64 `yaml:"max_values" json:"max_values"`             // max allowed numeric values
	MinRows         int                `yaml:"min_rows" json:"min_rows"`
	MaxMissingRatio float64            `yaml:"max_missing_ratio" json:"max_missing_ratio"` // per column, 0..1
	FailOnInvalid   bool               `yaml:"fail_on_invalid" json:"fail_on_invalid"`
}

func (c ValidationConfig) Validate() error {
	issues := &ConfigError{Stage: "validation"}
	if c.MinRows < 0 {
		issues.add("min_rows must be >= 0")
	}
	if c.MaxMissingRatio < 0 || c.MaxMissingRatio > 1 {
		issues.add("max_missing_ratio must be in [0, 1], got %v", c.MaxMissingRatio)
	}
	for col, min := range c.MinValues {
		if max, ok := c.MaxValues[col]; ok && min > max {
			issues.add("column %s: min %v above max %v", col, min, max)
		}
	}
	seen := make(map[string]struct{})
	for _, col := range c.RequiredColumns {
		if strings.TrimSpace(col) == "" {
			issues.add("required_columns contains an empty name")
			continue
		}
		if _, dup := seen[col]; dup {
			issues.add("required column %q listed twice", col)
		}
		seen[col] = struct{}{}
	}
	return issues.orNil()
}

const (
	ImputeMean   = "mean"
	ImputeMedian = "median"
	ImputeDrop   = "drop"

	ScalingStandard = "standard"
	ScalingMinMax   = "minmax"
	ScalingNone     = "none"
)

// TransformationConfig defines feature selection, imputation and scaling
type TransformationConfig struct {
	TargetColumn   string   `yaml:"target_column" json:"target_column"`
	FeatureColumns []string `yaml:"feature_columns" json:"feature_columns"` // empty: every numeric column except the target
	Impute         string   `yaml:"impute" json:"impute"`                   // mean, median, drop
	Scaling        string   `yaml:"scaling" json:"scaling"`                 // standard, minmax, none
	TrainPath      string   `yaml:"train_path,omitempty" json:"train_path,omitempty"`
	TestPath       string   `yaml:"test_path,omitempty" json:"test_path,omitempty"`
}

func (c TransformationConfig) Validate() error {
	issues := &ConfigError{Stage: "transformation"}
	if strings.TrimSpace(c.TargetColumn) == "" {
		issues.add("target_column is required")
	}
	switch c.Impute {
	case ImputeMean, ImputeMedian, ImputeDrop:
	default:
		issues.add("impute %q unsupported (mean, median, drop)", c.Impute)
	}
	switch c.Scaling {
	case ScalingStandard, ScalingMinMax, ScalingNone:
	default:
		issues.add("scaling %q unsupported (standard, minmax, none)", c.Scaling)
	}
	for _, f := range c.FeatureColumns {
		if f == c.TargetColumn {
			issues.add("target column %q cannot also be a feature", f)
		}
	}
	return issues.orNil()
}

const (
	AlgorithmLinear   = "linear"
	AlgorithmLogistic = "logistic"
)

// TrainingConfig defines model hyperparameters
type TrainingConfig struct {
	Algorithm    string  `yaml:"algorithm" json:"algorithm"` // linear, logistic
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	L2           float64 `yaml:"l2" json:"l2"` // ridge penalty
	Seed         int64   `yaml:"seed" json:"seed"`
}

func (c TrainingConfig) Validate() error {
	issues := &ConfigError{Stage: "training"}
	switch c.Algorithm {
	case AlgorithmLinear, AlgorithmLogistic:
	default:
		issues.add("algorithm %q unsupported (linear, logistic)", c.Algorithm)
	}
	if c.LearningRate <= 0 || c.LearningRate > 10 {
		issues.add("learning_rate must be in (0, 10], got %v", c.LearningRate)
	}
	if c.Epochs < 1 {
		issues.add("epochs must be >= 1")
	}
	if c.BatchSize < 1 {
		issues.add("batch_size must be >= 1")
	}
	if c.L2 < 0 {
		issues.add("l2 must be >= 0")
	}
	return issues.orNil()
}

// Metric names produced by evaluation
const (
	MetricMSE       = "mse"
	MetricRMSE      = "rmse"
	MetricMAE       = "mae"
	MetricR2        = "r2"
	MetricAccuracy  = "accuracy"
	MetricPrecision = "precision"
	MetricRecall    = "recall"
	MetricF1        = "f1"
)

var knownMetrics = map[string]bool{
	MetricMSE: true, MetricRMSE: true, MetricMAE: true, MetricR2: true,
	MetricAccuracy: true, MetricPrecision: true, MetricRecall: true, MetricF1: true,
}

// EvaluationConfig defines the decision threshold and acceptance limits
type EvaluationConfig struct {
	Threshold       float64            `yaml:"threshold" json:"threshold"`     // classification cut-off on p(y=1)
	MinMetrics      map[string]float64 `yaml:"min_metrics" json:"min_metrics"` // e.g. r2: 0.8
	MaxMetrics      map[string]float64 `yaml:"max_metrics" json:"max_metrics"` // e.g. rmse: 2.5
	FailOnThreshold bool               `yaml:"fail_on_threshold" json:"fail_on_threshold"`
}

func (c EvaluationConfig) Validate() error {
	issues := &ConfigError{Stage: "evaluation"}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		issues.add("threshold must be in (0, 1), got %v", c.Threshold)
	}
	for name := range c.MinMetrics {
		if !knownMetrics[name] {
			issues.add("min_metrics: unknown metric %q", name)
		}
	}
	for name := range c.MaxMetrics {
		if !knownMetrics[name] {
			issues.add("max_metrics: unknown metric %q", name)
		}
	}
	return issues.orNil()
}

// ErrUnknownStage is returned when a stage name has no config section
var ErrUnknownStage = errors.New("unknown stage")
