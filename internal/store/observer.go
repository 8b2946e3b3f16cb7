package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
)

// Observer records the events of runs of one named pipeline
type Observer struct {
	store *Store
	name  string
}

var _ pipeline.Observer = (*Observer)(nil)

// Observer returns a run observer that tags runs with the pipeline name
func (s *Store) Observer(name string) *Observer {
	return &Observer{store: s, name: name}
}

// Events arrive with the run context, which may already be cancelled when a
// run is stopped; writes must still land.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (o *Observer) RunStarted(ctx context.Context, info pipeline.RunInfo) error {
	return o.store.upsertRun(detach(ctx), o.name, info, model.RunStatusRunning, "")
}

func (o *Observer) StageStarted(ctx context.Context, ev pipeline.StageEvent) error {
	return o.store.exec(detach(ctx), `INSERT INTO stage_events (run_id, stage_index, stage, status, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (run_id, stage_index) DO UPDATE SET stage = excluded.stage, status = excluded.status,
			started_at = excluded.started_at, ended_at = NULL, duration_ms = 0, error = ''`,
		ev.RunID, ev.Index, ev.Stage, string(ev.Status), ev.StartedAt.UTC())
}

func (o *Observer) StageFinished(ctx context.Context, ev pipeline.StageEvent) error {
	ctx = detach(ctx)
	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	ended := ev.StartedAt.Add(ev.Duration).UTC()
	if err := o.store.exec(ctx, `UPDATE stage_events SET status = ?, ended_at = ?, duration_ms = ?, error = ?
		WHERE run_id = ? AND stage_index = ?`,
		string(ev.Status), ended, ev.Duration.Milliseconds(), msg, ev.RunID, ev.Index); err != nil {
		return err
	}
	if ev.Status != pipeline.StageSucceeded || ev.Artifact.IsZero() {
		return nil
	}

	vals, err := json.Marshal(ev.Artifact.Values())
	if err != nil {
		return fmt.Errorf("encode %s artifact: %w", ev.Artifact.Kind(), err)
	}
	prov := ev.Artifact.Provenance()
	return o.store.exec(ctx, `INSERT INTO artifacts (run_id, kind, stage, seq, vals, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, kind) DO UPDATE SET stage = excluded.stage, seq = excluded.seq,
			vals = excluded.vals, created_at = excluded.created_at`,
		ev.RunID, string(ev.Artifact.Kind()), prov.Stage, prov.Seq, string(vals), o.store.now())
}

func (o *Observer) RunFinished(ctx context.Context, info pipeline.RunInfo, runErr error) error {
	ctx = detach(ctx)
	if runErr == nil {
		return o.store.upsertRun(ctx, o.name, info, model.RunStatusSucceeded, "")
	}
	if err := o.store.upsertRun(ctx, o.name, info, model.RunStatusFailed, runErr.Error()); err != nil {
		return err
	}

	stage := ""
	var perr *pipeline.PipelineError
	if errors.As(runErr, &perr) {
		stage = perr.FailedStage
	}
	return o.store.exec(ctx, `INSERT INTO run_errors (run_id, stage, kind, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		info.ID, stage, ErrorKind(runErr), runErr.Error(), o.store.now())
}
