package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoConfig is the StageConfig for stages that need no configuration.
type NoConfig struct{}

func (NoConfig) Validate() error { return nil }

// RunInfo describes a run to observers.
type RunInfo struct {
	ID        string
	Stages    []string
	State     RunState
	StartedAt time.Time
	EndedAt   time.Time
}

// StageEvent describes a stage boundary to observers. Artifact is set only on
// a successful finish, Err only on a failed one.
type StageEvent struct {
	RunID     string
	Index     int
	Stage     string
	Status    StageStatus
	StartedAt time.Time
	Duration  time.Duration
	Artifact  Artifact
	Err       error
}

// Observer receives run lifecycle events. Observer failures are logged and
// never change the outcome of a run.
type Observer interface {
	RunStarted(ctx context.Context, info RunInfo) error
	StageStarted(ctx context.Context, ev StageEvent) error
	StageFinished(ctx context.Context, ev StageEvent) error
	RunFinished(ctx context.Context, info RunInfo, runErr error) error
}

// Runner executes ordered stage sequences with fail-fast semantics.
type Runner struct {
	logger    *slog.Logger
	observers []Observer
	newID     func() string
	now       func() time.Time
}

type Option func(*Runner)

// WithObserver registers an observer notified of every run and stage event.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithIDGenerator overrides the run id generator (uuid by default).
func WithIDGenerator(fn func() string) Option {
	return func(r *Runner) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// WithClock overrides the wall clock used for timestamps and durations.
func WithClock(fn func() time.Time) Option {
	return func(r *Runner) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRunner creates a runner logging to logger. A nil logger discards records.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Runner{
		logger: logger,
		newID:  func() string { return uuid.New().String() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes stages in order and returns the artifact of the last stage.
// Any failure is returned as a *PipelineError.
func (r *Runner) Run(ctx context.Context, stages []Stage, configs Configs) (Artifact, error) {
	return r.NewRun(stages, configs).Execute(ctx)
}

// NewRun prepares a run without executing it.
func (r *Runner) NewRun(stages []Stage, configs Configs) *Run {
	cfgs := make(Configs, len(configs))
	for name, cfg := range configs {
		cfgs[name] = cfg
	}
	return &Run{
		runner:  r,
		id:      r.newID(),
		stages:  append([]Stage(nil), stages...),
		configs: cfgs,
		state:   RunNotStarted,
		current: -1,
		table:   make(map[ArtifactKind]Artifact),
	}
}

// Run is a single execution of an ordered stage sequence. It owns the
// artifact table for its whole lifetime and can be executed once.
type Run struct {
	runner  *Runner
	id      string
	stages  []Stage
	configs Configs

	mu        sync.Mutex
	state     RunState
	current   int
	completed []string
	table     map[ArtifactKind]Artifact
	final     Artifact
	err       error
	startedAt time.Time
	endedAt   time.Time
}

func (run *Run) ID() string { return run.id }

func (run *Run) State() RunState {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.state
}

// Current returns the index of the stage being (or last) executed, -1 before start.
func (run *Run) Current() int {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.current
}

func (run *Run) Completed() []string {
	run.mu.Lock()
	defer run.mu.Unlock()
	return append([]string(nil), run.completed...)
}

// Artifacts returns a snapshot of the artifact table.
func (run *Run) Artifacts() map[ArtifactKind]Artifact {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.snapshotLocked()
}

// Err returns the terminal error of a failed run.
func (run *Run) Err() error {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.err
}

// StageNames returns the names of the run's stages in order.
func (run *Run) StageNames() []string {
	names := make([]string, len(run.stages))
	for i, st := range run.stages {
		if st != nil {
			names[i] = st.Name()
		}
	}
	return names
}

// Execute runs the stages strictly in sequence. The context is checked
// between stages; a running stage is never interrupted by the runner.
func (run *Run) Execute(ctx context.Context) (Artifact, error) {
	run.mu.Lock()
	if run.state != RunNotStarted {
		state := run.state
		run.mu.Unlock()
		return Artifact{}, fmt.Errorf("run %s already executed (state %s)", run.id, state)
	}
	run.startedAt = run.runner.now()
	run.mu.Unlock()

	logger := run.runner.logger.With("run_id", run.id)

	if idx, err := validatePlan(run.stages, run.configs); err != nil {
		name := ""
		if idx >= 0 && idx < len(run.stages) {
			name = run.stages[idx].Name()
		}
		logger.Error("pipeline plan rejected", "stage", name, "error", err)
		return Artifact{}, run.fail(ctx, idx, name, err)
	}

	if err := run.transition(RunRunning); err != nil {
		return Artifact{}, err
	}
	logger.Info("pipeline run started", "stages", run.StageNames())
	run.notify(ctx, "run started", func(o Observer) error {
		return o.RunStarted(ctx, run.info())
	})

	for i, st := range run.stages {
		if err := ctx.Err(); err != nil {
			logger.Warn("pipeline run cancelled", "stage", st.Name(), "index", i, "error", err)
			return Artifact{}, run.fail(ctx, i, st.Name(), err)
		}

		in, err := run.inputsFor(st)
		if err != nil {
			return Artifact{}, run.fail(ctx, i, st.Name(), err)
		}

		out, err := run.execStage(ctx, logger, i, st, in)
		if err != nil {
			return Artifact{}, run.fail(ctx, i, st.Name(), err)
		}

		run.mu.Lock()
		run.table[out.Kind()] = out
		run.completed = append(run.completed, st.Name())
		run.final = out
		run.mu.Unlock()
	}

	if err := run.transition(RunSucceeded); err != nil {
		return Artifact{}, err
	}
	run.mu.Lock()
	run.endedAt = run.runner.now()
	final := run.final
	run.mu.Unlock()

	logger.Info("pipeline run finished", "status", RunSucceeded, "final_kind", final.Kind())
	run.notify(ctx, "run finished", func(o Observer) error {
		return o.RunFinished(ctx, run.info(), nil)
	})
	return final, nil
}

// execStage emits exactly two log records for the invocation (start and end)
// regardless of its outcome.
func (run *Run) execStage(ctx context.Context, logger *slog.Logger, index int, st Stage, in Inputs) (Artifact, error) {
	name := st.Name()
	run.mu.Lock()
	run.current = index
	run.mu.Unlock()

	started := run.runner.now()
	logger.Info("stage started", "stage", name, "index", index, "status", StageStarted)
	run.notify(ctx, "stage started", func(o Observer) error {
		return o.StageStarted(ctx, StageEvent{
			RunID: run.id, Index: index, Stage: name, Status: StageStarted, StartedAt: started,
		})
	})

	out, err := run.invoke(ctx, index, st, in)
	duration := run.runner.now().Sub(started)

	ev := StageEvent{
		RunID:     run.id,
		Index:     index,
		Stage:     name,
		StartedAt: started,
		Duration:  duration,
	}
	if err != nil {
		ev.Status = StageFailed
		ev.Err = err
		logger.Error("stage finished",
			"stage", name, "index", index, "status", StageFailed,
			"duration_ms", duration.Milliseconds(), "error", err)
	} else {
		ev.Status = StageSucceeded
		ev.Artifact = out
		logger.Info("stage finished",
			"stage", name, "index", index, "status", StageSucceeded,
			"duration_ms", duration.Milliseconds(), "kind", out.Kind())
	}
	run.notify(ctx, "stage finished", func(o Observer) error {
		return o.StageFinished(ctx, ev)
	})
	return out, err
}

// invoke calls the stage and funnels every failure, including panics, through Wrap.
func (run *Run) invoke(ctx context.Context, index int, st Stage, in Inputs) (out Artifact, err error) {
	name := st.Name()
	defer func() {
		if rec := recover(); rec != nil {
			out = Artifact{}
			err = Wrap(fmt.Errorf("panic: %v", rec), At(name, "panic"))
		}
	}()

	out, err = st.Run(ctx, in, run.configs[name])
	if err != nil {
		return Artifact{}, Wrap(err, At(name, "run"))
	}
	if out.Kind() != st.Produces() {
		return Artifact{}, Wrapf(At(name, "output"), "produced artifact kind %q, declared %q", out.Kind(), st.Produces())
	}
	return out.withProvenance(Provenance{Stage: name, Seq: index + 1}), nil
}

func (run *Run) inputsFor(st Stage) (Inputs, error) {
	run.mu.Lock()
	defer run.mu.Unlock()
	in := Inputs{artifacts: make(map[ArtifactKind]Artifact, len(st.Requires()))}
	for _, kind := range st.Requires() {
		a, ok := run.table[kind]
		if !ok {
			return Inputs{}, configErrorf(st.Name(), "required input %q not available", kind)
		}
		in.artifacts[kind] = a
	}
	return in, nil
}

func (run *Run) fail(ctx context.Context, index int, stage string, cause error) error {
	run.mu.Lock()
	if isAllowedTransition(run.state, RunFailed) {
		run.state = RunFailed
	}
	run.endedAt = run.runner.now()
	perr := &PipelineError{
		RunID:       run.id,
		FailedIndex: index,
		FailedStage: stage,
		Completed:   append([]string(nil), run.completed...),
		Artifacts:   run.snapshotLocked(),
		Err:         cause,
	}
	run.err = perr
	run.mu.Unlock()

	run.runner.logger.Error("pipeline run finished",
		"run_id", run.id, "status", RunFailed, "stage", stage, "index", index, "error", cause)
	run.notify(ctx, "run finished", func(o Observer) error {
		return o.RunFinished(ctx, run.info(), perr)
	})
	return perr
}

func (run *Run) transition(to RunState) error {
	run.mu.Lock()
	defer run.mu.Unlock()
	if !isAllowedTransition(run.state, to) {
		return transitionError(run.id, run.state, to)
	}
	run.state = to
	return nil
}

func (run *Run) info() RunInfo {
	run.mu.Lock()
	defer run.mu.Unlock()
	return RunInfo{
		ID:        run.id,
		Stages:    run.StageNames(),
		State:     run.state,
		StartedAt: run.startedAt,
		EndedAt:   run.endedAt,
	}
}

func (run *Run) notify(ctx context.Context, event string, fn func(Observer) error) {
	for _, o := range run.runner.observers {
		if err := fn(o); err != nil {
			run.runner.logger.WarnContext(ctx, "observer failed", "run_id", run.id, "event", event, "error", err)
		}
	}
}

func (run *Run) snapshotLocked() map[ArtifactKind]Artifact {
	out := make(map[ArtifactKind]Artifact, len(run.table))
	for k, v := range run.table {
		out[k] = v
	}
	return out
}

// validatePlan rejects a stage sequence before any stage runs. It returns the
// index of the offending stage, or -1 when the problem is not tied to one.
func validatePlan(stages []Stage, configs Configs) (int, error) {
	if len(stages) == 0 {
		return -1, configErrorf("", "no stages to run")
	}
	seen := make(map[string]struct{}, len(stages))
	available := make(map[ArtifactKind]struct{}, len(stages))
	for i, st := range stages {
		if st == nil {
			return i, configErrorf("", "stage %d is nil", i)
		}
		name := st.Name()
		if name == "" {
			return i, configErrorf("", "stage %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return i, configErrorf(name, "duplicate stage name")
		}
		seen[name] = struct{}{}
		if st.Produces() == "" {
			return i, configErrorf(name, "stage declares no output kind")
		}
		for _, kind := range st.Requires() {
			if _, ok := available[kind]; !ok {
				return i, configErrorf(name, "required input %q is not produced by an earlier stage", kind)
			}
		}

		cfg, ok := configs[name]
		if !ok || cfg == nil {
			return i, configErrorf(name, "missing stage config")
		}
		if checker, ok := st.(ConfigChecker); ok {
			if err := checker.CheckConfig(cfg); err != nil {
				var cfgErr *ConfigurationError
				if errors.As(err, &cfgErr) {
					return i, err
				}
				return i, &ConfigurationError{Stage: name, Msg: "config rejected", Err: err}
			}
		}
		if err := cfg.Validate(); err != nil {
			return i, &ConfigurationError{Stage: name, Msg: "invalid config", Err: err}
		}
		available[st.Produces()] = struct{}{}
	}
	return -1, nil
}
