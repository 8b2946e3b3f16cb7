package model

import "time"

// Run statuses as persisted by the store
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunRecord is the persisted summary of a pipeline run
type RunRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Stages    []string   `json:"stages"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// StageRecord tracks one stage invocation of a run
type StageRecord struct {
	RunID      string     `json:"run_id"`
	Index      int        `json:"index"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"` // "started", "succeeded", "failed"
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// ErrorRecord represents a run failure with the stage that caused it
type ErrorRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"` // "configuration", "stage", "cancelled"
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactRecord is the persisted form of an artifact produced by a run
type ArtifactRecord struct {
	RunID     string         `json:"run_id"`
	Kind      string         `json:"kind"`
	Stage     string         `json:"stage"`
	Seq       int            `json:"seq"`
	Values    map[string]any `json:"values"`
	CreatedAt time.Time      `json:"created_at"`
}
