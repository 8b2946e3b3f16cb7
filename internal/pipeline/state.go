package pipeline

import "fmt"

// RunState is the lifecycle state of a pipeline run.
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunRunning    RunState = "running"
	RunSucceeded  RunState = "succeeded"
	RunFailed     RunState = "failed"
)

// IsTerminal reports whether the state is terminal (finished).
func (s RunState) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed
}

func isAllowedTransition(from, to RunState) bool {
	switch from {
	case RunNotStarted:
		// Failed is reachable directly when the plan is rejected before any stage runs.
		return to == RunRunning || to == RunFailed
	case RunRunning:
		return to == RunSucceeded || to == RunFailed
	default:
		return false
	}
}

// StageStatus is the outcome of a single stage invocation.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
)

func transitionError(runID string, from, to RunState) error {
	return fmt.Errorf("run %s: disallowed transition %s -> %s", runID, from, to)
}
