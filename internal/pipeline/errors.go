package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("pipeline configuration error")
	ErrStageFailed   = errors.New("stage failed")
	ErrRunFailed     = errors.New("pipeline run failed")
)

// Location identifies where a failure originated: the stage and a logical step inside it.
type Location struct {
	Stage string
	Step  string
}

// At builds a Location.
func At(stage, step string) Location {
	return Location{Stage: stage, Step: step}
}

func (l Location) String() string {
	switch {
	case l.Stage == "" && l.Step == "":
		return "unknown"
	case l.Step == "":
		return l.Stage
	case l.Stage == "":
		return l.Step
	default:
		return l.Stage + "/" + l.Step
	}
}

// ConfigurationError is raised before a stage is invoked: missing or invalid
// config, missing inputs, or an unsatisfiable stage plan.
type ConfigurationError struct {
	Stage string
	Msg   string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(ErrConfiguration.Error())
	if e.Stage != "" {
		fmt.Fprintf(&b, " [%s]", e.Stage)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(stage string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// StageError wraps any failure inside a stage's own computation.
type StageError struct {
	Stage    string
	Location Location
	Err      error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("stage %s failed at [%s]: %s", e.Stage, e.Location, msg)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrStageFailed }

// PipelineError is the single error surfaced to the caller of a run.
type PipelineError struct {
	RunID       string
	FailedIndex int
	FailedStage string
	Completed   []string
	// Artifacts is a snapshot of the table at the time of failure.
	Artifacts map[ArtifactKind]Artifact
	Err       error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	completed := "none"
	if len(e.Completed) > 0 {
		completed = strings.Join(e.Completed, ", ")
	}
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("pipeline run %s failed at stage %d (%s), completed: [%s]: %s",
		e.RunID, e.FailedIndex, e.FailedStage, completed, msg)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func (e *PipelineError) Is(target error) bool { return target == ErrRunFailed }

// Wrap is the single wrapping point for stage failures. It returns nil for a
// nil cause and passes errors that already belong to the pipeline taxonomy
// through unchanged.
func Wrap(cause error, loc Location) error {
	if cause == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(cause, &stageErr) {
		return cause
	}
	var cfgErr *ConfigurationError
	if errors.As(cause, &cfgErr) {
		return cause
	}
	var runErr *PipelineError
	if errors.As(cause, &runErr) {
		return cause
	}
	return &StageError{Stage: loc.Stage, Location: loc, Err: cause}
}

// Wrapf wraps a formatted cause at loc. Use %w to keep the underlying error reachable.
func Wrapf(loc Location, format string, args ...any) error {
	return Wrap(fmt.Errorf(format, args...), loc)
}
