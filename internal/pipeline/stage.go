package pipeline

import (
	"context"
	"fmt"
	"sort"
)

// StageConfig is the validated configuration scoped to a single stage.
type StageConfig interface {
	Validate() error
}

// Configs maps stage names to their configuration.
type Configs map[string]StageConfig

// Stage is one named step of the pipeline.
type Stage interface {
	// Name identifies the stage in logs, errors and config lookups.
	Name() string

	// Requires lists the artifact kinds the stage consumes. The runner refuses
	// to invoke the stage until all of them are available.
	Requires() []ArtifactKind

	// Produces is the kind of the single artifact returned by Run.
	Produces() ArtifactKind

	// Run consumes its declared inputs and its own config and returns exactly
	// one artifact of kind Produces, or an error.
	Run(ctx context.Context, in Inputs, cfg StageConfig) (Artifact, error)
}

// ConfigChecker is implemented by stages that only accept a particular
// StageConfig type. The runner calls it before invoking Run.
type ConfigChecker interface {
	CheckConfig(cfg StageConfig) error
}

// ConfigAs asserts cfg to the concrete config type a stage expects.
func ConfigAs[T StageConfig](stage string, cfg StageConfig) (T, error) {
	typed, ok := cfg.(T)
	if !ok {
		var zero T
		return zero, &ConfigurationError{
			Stage: stage,
			Msg:   fmt.Sprintf("config type %T, want %T", cfg, zero),
		}
	}
	return typed, nil
}

// Inputs is the read-only view of the artifacts a stage declared as inputs.
type Inputs struct {
	artifacts map[ArtifactKind]Artifact
}

// NewInputs builds an Inputs view; mostly useful for testing stages in isolation.
func NewInputs(artifacts ...Artifact) Inputs {
	m := make(map[ArtifactKind]Artifact, len(artifacts))
	for _, a := range artifacts {
		m[a.Kind()] = a
	}
	return Inputs{artifacts: m}
}

// Get returns the artifact of the given kind.
func (in Inputs) Get(kind ArtifactKind) (Artifact, bool) {
	a, ok := in.artifacts[kind]
	return a, ok
}

// Must returns the artifact of the given kind or an error naming the missing kind.
func (in Inputs) Must(kind ArtifactKind) (Artifact, error) {
	a, ok := in.artifacts[kind]
	if !ok {
		return Artifact{}, fmt.Errorf("input artifact %q not available", kind)
	}
	return a, nil
}

// Kinds returns the available kinds in sorted order.
func (in Inputs) Kinds() []ArtifactKind {
	kinds := make([]ArtifactKind, 0, len(in.artifacts))
	for k := range in.artifacts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (in Inputs) Len() int { return len(in.artifacts) }
