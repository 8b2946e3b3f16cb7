package components

import (
	"context"
	"fmt"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/pkg/ml"
)

// ModelFile is written to model.json
type ModelFile struct {
	ml.Params
	FeatureNames     []string `json:"feature_names"`
	Target           string   `json:"target"`
	TrainLoss        float64  `json:"train_loss"`
	PreprocessorPath string   `json:"preprocessor_path"`
}

// Training fits a linear or logistic regression on the transformed data
type Training struct {
	sink artifacts.Sink
}

func NewTraining(sink artifacts.Sink) *Training { return &Training{sink: sink} }

func (s *Training) Name() string { return model.StageTraining }
func (s *Training) Requires() []pipeline.ArtifactKind {
	return []pipeline.ArtifactKind{pipeline.KindTransformation}
}
func (s *Training) Produces() pipeline.ArtifactKind { return pipeline.KindModel }

func (s *Training) CheckConfig(cfg pipeline.StageConfig) error {
	return checkConfig[model.TrainingConfig](s.Name(), cfg)
}

func (s *Training) Run(ctx context.Context, in pipeline.Inputs, cfg pipeline.StageConfig) (pipeline.Artifact, error) {
	c, err := pipeline.ConfigAs[model.TrainingConfig](s.Name(), cfg)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	tr, err := in.Must(pipeline.KindTransformation)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	X, err := tr.Matrix("x_train")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}
	y, err := tr.Floats("y_train")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}
	features, err := tr.Strings("feature_names")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}
	target, err := tr.String("target")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}
	prePath, err := tr.String("preprocessor_path")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}

	opt := ml.SGD{
		LearningRate: c.LearningRate,
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		L2:           c.L2,
		Seed:         c.Seed,
	}
	var (
		params ml.Params
		loss   float64
	)
	switch c.Algorithm {
	case model.AlgorithmLogistic:
		m := ml.NewLogisticRegression(opt)
		if loss, err = m.Fit(X, y); err == nil {
			params = m.Params()
		}
	default:
		m := ml.NewLinearRegression(opt)
		if loss, err = m.Fit(X, y); err == nil {
			params = m.Params()
		}
	}
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(fmt.Errorf("fit %s model: %w", c.Algorithm, err), pipeline.At(s.Name(), "fit"))
	}

	modelPath, err := artifacts.PutJSON(ctx, s.sink, s.Name(), FileModel, ModelFile{
		Params:           params,
		FeatureNames:     features,
		Target:           target,
		TrainLoss:        loss,
		PreprocessorPath: prePath,
	})
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}

	return pipeline.NewArtifact(pipeline.KindModel, pipeline.Values{
		"algorithm":  params.Algorithm,
		"weights":    params.Weights,
		"bias":       params.Bias,
		"train_loss": loss,
		"model_path": modelPath,
	})
}
