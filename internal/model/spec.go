package model

import "fmt"

// Stage names, in pipeline order
const (
	StageIngestion      = "ingestion"
	StageValidation     = "validation"
	StageTransformation = "transformation"
	StageTraining       = "training"
	StageEvaluation     = "evaluation"
)

// StageOrder is the fixed order of the training pipeline
var StageOrder = []string{
	StageIngestion,
	StageValidation,
	StageTransformation,
	StageTraining,
	StageEvaluation,
}

// StagesConfig holds one config section per stage
type StagesConfig struct {
	Ingestion      IngestionConfig      `yaml:"ingestion" json:"ingestion"`
	Validation     ValidationConfig     `yaml:"validation" json:"validation"`
	Transformation TransformationConfig `yaml:"transformation" json:"transformation"`
	Training       TrainingConfig       `yaml:"training" json:"training"`
	Evaluation     EvaluationConfig     `yaml:"evaluation" json:"evaluation"`
}

// DefaultStagesConfig returns the defaults applied before a config file is decoded
func DefaultStagesConfig() StagesConfig {
	return StagesConfig{
		Ingestion: IngestionConfig{
			TestRatio: 0.2,
			Seed:      42,
		},
		Validation: ValidationConfig{
			MaxMissingRatio: 1,
			FailOnInvalid:   true,
		},
		Transformation: TransformationConfig{
			Impute:  ImputeMean,
			Scaling: ScalingStandard,
		},
		Training: TrainingConfig{
			Algorithm:    AlgorithmLinear,
			LearningRate: 0.05,
			Epochs:       200,
			BatchSize:    32,
			Seed:         42,
		},
		Evaluation: EvaluationConfig{
			Threshold: 0.5,
		},
	}
}

// Validate checks every stage section
func (s StagesConfig) Validate() error {
	for _, name := range StageOrder {
		cfg, _ := s.For(name)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// For returns the config section of the named stage
func (s StagesConfig) For(stage string) (interface{ Validate() error }, error) {
	switch stage {
	case StageIngestion:
		return s.Ingestion, nil
	case StageValidation:
		return s.Validation, nil
	case StageTransformation:
		return s.Transformation, nil
	case StageTraining:
		return s.Training, nil
	case StageEvaluation:
		return s.Evaluation, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
}

// StagesUntil returns the stage names up to and including last.
// An empty last selects every stage.
func StagesUntil(last string) ([]string, error) {
	if last == "" {
		return append([]string(nil), StageOrder...), nil
	}
	for i, name := range StageOrder {
		if name == last {
			return append([]string(nil), StageOrder[:i+1]...), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStage, last)
}
