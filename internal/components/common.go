// Package components contains the reference stages of the training
// pipeline: ingestion, validation, transformation, training and evaluation,
// plus the Predictor that scores new rows with a trained model.
package components

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/pkg/dataset"
	"go-ml-pipeline/pkg/ml"
)

var (
	ErrValidationFailed  = errors.New("data validation failed")
	ErrDiverged          = ml.ErrDiverged
	ErrThresholdNotMet   = errors.New("evaluation threshold not met")
	ErrMissingColumn     = errors.New("missing column")
	ErrEmptyDataset      = errors.New("empty dataset")
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Persisted file names, one directory per stage
const (
	FileRaw              = "raw.csv"
	FileTrain            = "train.csv"
	FileTest             = "test.csv"
	FileValidationReport = "validation_report.json"
	FileFeaturesTrain    = "features_train.csv"
	FileFeaturesTest     = "features_test.csv"
	FilePreprocessor     = "preprocessor.json"
	FileModel            = "model.json"
	FileMetrics          = "metrics.json"
)

// Stages returns the full training pipeline writing through sink
func Stages(sink artifacts.Sink) []pipeline.Stage {
	return []pipeline.Stage{
		NewIngestion(sink),
		NewValidation(sink),
		NewTransformation(sink),
		NewTraining(sink),
		NewEvaluation(sink),
	}
}

// Build selects the stages up to and including until (all stages when
// empty) and pairs each with its config section
func Build(sink artifacts.Sink, cfg model.StagesConfig, until string) ([]pipeline.Stage, pipeline.Configs, error) {
	names, err := model.StagesUntil(until)
	if err != nil {
		return nil, nil, err
	}
	all := Stages(sink)
	stages := make([]pipeline.Stage, 0, len(names))
	configs := make(pipeline.Configs, len(names))
	for i, name := range names {
		section, err := cfg.For(name)
		if err != nil {
			return nil, nil, err
		}
		stages = append(stages, all[i])
		configs[name] = section
	}
	return stages, configs, nil
}

// ModelLocation is where the training stage stores model.json
func ModelLocation(sink artifacts.Sink) string {
	return sink.Location(artifacts.Key(model.StageTraining, FileModel))
}

func readTable(ctx context.Context, sink artifacts.Sink, location string) (*dataset.Table, error) {
	rc, err := sink.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	table, err := dataset.ReadCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	return table, nil
}

func putTable(ctx context.Context, sink artifacts.Sink, stage, fileName string, table *dataset.Table) (string, error) {
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		return "", err
	}
	return artifacts.PutFile(ctx, sink, stage, fileName, buf.Bytes())
}

func checkConfig[T pipeline.StageConfig](stage string, cfg pipeline.StageConfig) error {
	_, err := pipeline.ConfigAs[T](stage, cfg)
	return err
}
