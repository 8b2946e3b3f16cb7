package components

import (
	"context"
	"fmt"
	"math"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/pkg/dataset"
	"go-ml-pipeline/pkg/ml"
	"go-ml-pipeline/pkg/utils"
)

// Preprocessor is the fitted feature pipeline written to preprocessor.json
// and reloaded by the Predictor
type Preprocessor struct {
	FeatureNames []string    `json:"feature_names"`
	Target       string      `json:"target"`
	Impute       string      `json:"impute"`
	Imputer      *ml.Imputer `json:"imputer,omitempty"`
	Scaler       *ml.Scaler  `json:"scaler"`
}

// Apply imputes and scales raw feature rows. With the drop strategy rows
// must not contain missing values.
func (p *Preprocessor) Apply(X [][]float64) ([][]float64, error) {
	if p.Imputer != nil {
		var err error
		if X, err = p.Imputer.Transform(X); err != nil {
			return nil, err
		}
	} else if ml.HasNaN(X) {
		return nil, fmt.Errorf("missing feature values and no imputer fitted (impute=%s)", p.Impute)
	}
	return p.Scaler.Transform(X)
}

// Transformation turns the train/test splits into scaled numeric matrices
type Transformation struct {
	sink artifacts.Sink
}

func NewTransformation(sink artifacts.Sink) *Transformation { return &Transformation{sink: sink} }

func (s *Transformation) Name() string { return model.StageTransformation }
func (s *Transformation) Requires() []pipeline.ArtifactKind {
	return []pipeline.ArtifactKind{pipeline.KindIngestion, pipeline.KindValidation}
}
func (s *Transformation) Produces() pipeline.ArtifactKind { return pipeline.KindTransformation }

func (s *Transformation) CheckConfig(cfg pipeline.StageConfig) error {
	return checkConfig[model.TransformationConfig](s.Name(), cfg)
}

func (s *Transformation) Run(ctx context.Context, in pipeline.Inputs, cfg pipeline.StageConfig) (pipeline.Artifact, error) {
	c, err := pipeline.ConfigAs[model.TransformationConfig](s.Name(), cfg)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	ing, err := in.Must(pipeline.KindIngestion)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	report, err := in.Must(pipeline.KindValidation)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	if status, err := report.String("status"); err != nil || status != StatusPass {
		return pipeline.Artifact{}, pipeline.Wrap(
			fmt.Errorf("%w: validation status %q", ErrValidationFailed, status),
			pipeline.At(s.Name(), "precondition"))
	}

	trainPath, testPath := c.TrainPath, c.TestPath
	if trainPath == "" {
		if trainPath, err = ing.String("train_path"); err != nil {
			return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
		}
	}
	if testPath == "" {
		if testPath, err = ing.String("test_path"); err != nil {
			return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
		}
	}

	train, err := readTable(ctx, s.sink, trainPath)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(fmt.Errorf("load train data %s: %w", trainPath, err), pipeline.At(s.Name(), "load"))
	}
	test, err := readTable(ctx, s.sink, testPath)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(fmt.Errorf("load test data %s: %w", testPath, err), pipeline.At(s.Name(), "load"))
	}

	features := c.FeatureColumns
	if len(features) == 0 {
		features = inferFeatures(train, c.TargetColumn)
	}
	if len(features) == 0 {
		return pipeline.Artifact{}, pipeline.Wrap(fmt.Errorf("%w: no numeric feature columns besides %q", ErrMissingColumn, c.TargetColumn), pipeline.At(s.Name(), "select"))
	}

	xTrain, yTrain, err := extract(train, features, c.TargetColumn, c.Impute == model.ImputeDrop)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(fmt.Errorf("train data: %w", err), pipeline.At(s.Name(), "select"))
	}
	xTest, yTest, err := extract(test, features, c.TargetColumn, c.Impute == model.ImputeDrop)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(fmt.Errorf("test data: %w", err), pipeline.At(s.Name(), "select"))
	}

	pre := &Preprocessor{
		FeatureNames: append([]string(nil), features...),
		Target:       c.TargetColumn,
		Impute:       c.Impute,
		Scaler:       ml.NewScaler(c.Scaling),
	}
	if c.Impute != model.ImputeDrop {
		pre.Imputer = ml.NewImputer(c.Impute)
		if err := pre.Imputer.Fit(xTrain); err != nil {
			return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "impute"))
		}
		if xTrain, err = pre.Imputer.Transform(xTrain); err != nil {
			return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "impute"))
		}
	}
	if err := pre.Scaler.Fit(xTrain); err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "scale"))
	}
	if xTrain, err = pre.Scaler.Transform(xTrain); err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "scale"))
	}
	if xTest, err = pre.Apply(xTest); err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "scale"))
	}

	if _, err := putTable(ctx, s.sink, s.Name(), FileFeaturesTrain, featureTable(features, c.TargetColumn, xTrain, yTrain)); err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}
	if _, err := putTable(ctx, s.sink, s.Name(), FileFeaturesTest, featureTable(features, c.TargetColumn, xTest, yTest)); err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}
	prePath, err := artifacts.PutJSON(ctx, s.sink, s.Name(), FilePreprocessor, pre)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}

	return pipeline.NewArtifact(pipeline.KindTransformation, pipeline.Values{
		"feature_names":     features,
		"target":            c.TargetColumn,
		"x_train":           xTrain,
		"y_train":           yTrain,
		"x_test":            xTest,
		"y_test":            yTest,
		"preprocessor_path": prePath,
	})
}

// inferFeatures picks every column other than target whose present cells
// all parse as numbers
func inferFeatures(t *dataset.Table, target string) []string {
	var out []string
	for _, col := range t.Columns {
		if col == target {
			continue
		}
		cells, _ := t.Column(col)
		numeric, seen := true, false
		for _, cell := range cells {
			if utils.IsMissing(cell) {
				continue
			}
			seen = true
			if _, ok := utils.ParseNumber(cell); !ok {
				numeric = false
				break
			}
		}
		if numeric && seen {
			out = append(out, col)
		}
	}
	return out
}

// extract builds the feature matrix and target vector. Rows without a
// target are dropped; with dropMissing so are rows with any missing feature.
// A present but non-numeric feature cell is an error.
func extract(t *dataset.Table, features []string, target string, dropMissing bool) ([][]float64, []float64, error) {
	ti := t.Index(target)
	if ti < 0 {
		return nil, nil, fmt.Errorf("%w: target %q", ErrMissingColumn, target)
	}
	idx := make([]int, len(features))
	for j, f := range features {
		if idx[j] = t.Index(f); idx[j] < 0 {
			return nil, nil, fmt.Errorf("%w: feature %q", ErrMissingColumn, f)
		}
	}

	var X [][]float64
	var y []float64
rows:
	for i, row := range t.Rows {
		yv, ok := utils.ParseNumber(row[ti])
		if !ok {
			if utils.IsMissing(row[ti]) {
				continue
			}
			return nil, nil, fmt.Errorf("row %d: target %q is not numeric: %q", i+1, target, row[ti])
		}
		x := make([]float64, len(features))
		for j, k := range idx {
			v, ok := utils.ParseNumber(row[k])
			if !ok {
				if !utils.IsMissing(row[k]) {
					return nil, nil, fmt.Errorf("row %d: feature %q is not numeric: %q", i+1, features[j], row[k])
				}
				if dropMissing {
					continue rows
				}
				v = math.NaN()
			}
			x[j] = v
		}
		X = append(X, x)
		y = append(y, yv)
	}
	if len(X) == 0 {
		return nil, nil, fmt.Errorf("%w: no usable rows", ErrEmptyDataset)
	}
	return X, y, nil
}

func featureTable(features []string, target string, X [][]float64, y []float64) *dataset.Table {
	t := &dataset.Table{Columns: append(append([]string(nil), features...), target)}
	for i, row := range X {
		cells := make([]string, 0, len(row)+1)
		for _, v := range row {
			cells = append(cells, utils.FormatFloat(v))
		}
		t.Rows = append(t.Rows, append(cells, utils.FormatFloat(y[i])))
	}
	return t
}
