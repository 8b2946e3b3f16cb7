package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
)

// CreateRun registers a pending run so it can be listed before it starts
func (s *Store) CreateRun(ctx context.Context, id, name string, stages []string) error {
	stagesJSON, err := json.Marshal(stages)
	if err != nil {
		return err
	}
	now := s.now()
	return s.exec(ctx, `INSERT INTO runs (id, name, status, stages, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, model.RunStatusPending, string(stagesJSON), now, now)
}

func (s *Store) upsertRun(ctx context.Context, name string, info pipeline.RunInfo, status, errMsg string) error {
	stagesJSON, err := json.Marshal(info.Stages)
	if err != nil {
		return err
	}
	now := s.now()
	created := info.StartedAt
	if created.IsZero() {
		created = now
	}
	var ended any
	if !info.EndedAt.IsZero() {
		ended = info.EndedAt.UTC()
	}
	return s.exec(ctx, `INSERT INTO runs (id, name, status, stages, error, created_at, updated_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, stages = excluded.stages,
			error = excluded.error, updated_at = excluded.updated_at, ended_at = excluded.ended_at`,
		info.ID, name, status, string(stagesJSON), errMsg, created.UTC(), now, ended)
}

// ListRuns returns runs newest first. An empty name lists every pipeline.
func (s *Store) ListRuns(ctx context.Context, name string, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, name, status, stages, error, created_at, updated_at, ended_at FROM runs`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []model.RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun fetches one run, ErrNotFound if it does not exist
func (s *Store) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, name, status, stages, error, created_at, updated_at, ended_at FROM runs WHERE id = ?`), id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (model.RunRecord, error) {
	var rec model.RunRecord
	var stages string
	var ended sql.NullTime
	if err := sc.Scan(&rec.ID, &rec.Name, &rec.Status, &stages, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt, &ended); err != nil {
		return model.RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(stages), &rec.Stages); err != nil {
		return model.RunRecord{}, fmt.Errorf("decode stages of run %s: %w", rec.ID, err)
	}
	if ended.Valid {
		t := ended.Time
		rec.EndedAt = &t
	}
	return rec, nil
}

// StageEvents returns the stage invocations of a run in order
func (s *Store) StageEvents(ctx context.Context, runID string) ([]model.StageRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT run_id, stage_index, stage, status, started_at, ended_at, duration_ms, error
		FROM stage_events WHERE run_id = ? ORDER BY stage_index`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.StageRecord{}
	for rows.Next() {
		var rec model.StageRecord
		var ended sql.NullTime
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Stage, &rec.Status, &rec.StartedAt, &ended, &rec.DurationMs, &rec.Error); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Errors(ctx context.Context, runID string) ([]model.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, run_id, stage, kind, message, created_at FROM run_errors WHERE run_id = ? ORDER BY id`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ErrorRecord{}
	for rows.Next() {
		var rec model.ErrorRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Stage, &rec.Kind, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Artifacts returns the recorded artifact values of a run in production order
func (s *Store) Artifacts(ctx context.Context, runID string) ([]model.ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT run_id, kind, stage, seq, vals, created_at FROM artifacts WHERE run_id = ? ORDER BY seq`), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ArtifactRecord{}
	for rows.Next() {
		var rec model.ArtifactRecord
		var vals string
		if err := rows.Scan(&rec.RunID, &rec.Kind, &rec.Stage, &rec.Seq, &vals, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vals), &rec.Values); err != nil {
			return nil, fmt.Errorf("decode %s artifact of run %s: %w", rec.Kind, rec.RunID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ErrorKind classifies a run failure for the run_errors table
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, pipeline.ErrConfiguration):
		return "configuration"
	default:
		return "stage"
	}
}

