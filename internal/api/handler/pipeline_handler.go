package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/components"
	"go-ml-pipeline/internal/config"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/internal/store"
	"go-ml-pipeline/pkg/router"
)

const maxBodyBytes = 1 << 20

// SinkOpener returns the artifact sink of a named pipeline
type SinkOpener func(ctx context.Context, pipeline string) (artifacts.Sink, error)

// Handler serves the run tracking and prediction endpoints. Runs created
// over HTTP execute in the background with the server's storage settings.
type Handler struct {
	ctx      context.Context
	store    *store.Store
	openSink SinkOpener
	logger   *slog.Logger
	newID    func() string
	timeout  time.Duration
	dataRoot string
	runs     sync.WaitGroup

	mu     sync.Mutex
	active map[string]string // pipeline name -> running run id
}

type Option func(*Handler)

func WithIDGenerator(fn func() string) Option {
	return func(h *Handler) {
		if fn != nil {
			h.newID = fn
		}
	}
}

// WithRunTimeout bounds every background run; zero means no limit
func WithRunTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// WithDataRoot sets the directory that local ingestion sources and
// transformation data paths of submitted configs must stay inside
func WithDataRoot(dir string) Option {
	return func(h *Handler) {
		if dir != "" {
			h.dataRoot = dir
		}
	}
}

// New creates a handler. Background runs are cancelled when ctx is done.
func New(ctx context.Context, st *store.Store, openSink SinkOpener, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Handler{
		ctx:      ctx,
		store:    st,
		openSink: openSink,
		logger:   logger,
		newID:    func() string { return uuid.New().String() },
		dataRoot: "data",
		active:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until every background run has finished
func (h *Handler) Wait() { h.runs.Wait() }

// CreateRunResponse is returned when a run is accepted
type CreateRunResponse struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Stages []string `json:"stages"`
}

// ErrorResponse carries a failure message and, for rejected configs, the issues
type ErrorResponse struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// CreateRun starts a pipeline run
// @Summary Start a pipeline run
// @Description Parse the posted pipeline config (YAML or JSON) and run its stages in the background
// @Tags runs
// @Accept json
// @Produce json
// @Param until query string false "Last stage to run"
// @Param config body config.Config true "Pipeline configuration"
// @Success 202 {object} CreateRunResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /runs [post]
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	cfg, err := config.Parse(body)
	if err != nil {
		resp := ErrorResponse{Error: err.Error()}
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			resp.Issues = cfgErr.Issues
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	name := cfg.Run.Name
	sink, err := h.openSink(r.Context(), name)
	if err != nil {
		h.logger.Error("open artifact sink", "pipeline", name, "error", err)
		writeError(w, http.StatusInternalServerError, "artifact storage unavailable")
		return
	}
	stages, configs, err := components.Build(sink, cfg.StagesConfig, r.URL.Query().Get("until"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if issues := h.checkPaths(cfg, sink); len(issues) > 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "config references files outside the data directory", Issues: issues})
		return
	}

	id := h.newID()
	if running, ok := h.claim(name, id); !ok {
		writeError(w, http.StatusConflict, fmt.Sprintf("run %s of pipeline %s is still active", running, name))
		return
	}
	started := false
	defer func() {
		if !started {
			h.release(name)
		}
	}()

	stageNames := make([]string, len(stages))
	for i, st := range stages {
		stageNames[i] = st.Name()
	}
	if err := h.store.CreateRun(r.Context(), id, name, stageNames); err != nil {
		h.logger.Error("create run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save run")
		return
	}

	runner := pipeline.NewRunner(h.logger.With("pipeline", name),
		pipeline.WithObserver(h.store.Observer(name)),
		pipeline.WithIDGenerator(func() string { return id }))

	ctx, cancel := h.runContext()
	h.runs.Add(1)
	started = true
	go func() {
		defer h.runs.Done()
		defer h.release(name)
		defer cancel()
		// the runner records the outcome through the store observer
		_, _ = runner.Run(ctx, stages, configs)
	}()

	writeJSON(w, http.StatusAccepted, CreateRunResponse{
		ID:     id,
		Name:   name,
		Status: model.RunStatusPending,
		Stages: stageNames,
	})
}

// claim marks name as running under id. Runs of one pipeline share its
// artifact directory, so only one may be active at a time.
func (h *Handler) claim(name, id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if running, ok := h.active[name]; ok {
		return running, false
	}
	h.active[name] = id
	return "", true
}

func (h *Handler) release(name string) {
	h.mu.Lock()
	delete(h.active, name)
	h.mu.Unlock()
}

// checkPaths lists the local files of cfg that fall outside the data root.
// Transformation paths may also point into the pipeline's own artifacts.
func (h *Handler) checkPaths(cfg *config.Config, sink artifacts.Sink) []string {
	var issues []string
	if src := cfg.Ingestion.Source; !isURL(src) && !within(h.dataRoot, src) {
		issues = append(issues, fmt.Sprintf("ingestion.source %q is outside %s", src, h.dataRoot))
	}
	own := sink.Location("")
	for _, f := range []struct{ field, path string }{
		{"transformation.train_path", cfg.Transformation.TrainPath},
		{"transformation.test_path", cfg.Transformation.TestPath},
	} {
		if f.path == "" || within(h.dataRoot, f.path) || within(own, f.path) {
			continue
		}
		issues = append(issues, fmt.Sprintf("%s %q is outside %s", f.field, f.path, h.dataRoot))
	}
	return issues
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// within reports whether p names root or something below it
func within(root, p string) bool {
	if strings.HasPrefix(root, "s3://") {
		return strings.HasPrefix(p, root+"/") && !strings.Contains(p, "..")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (h *Handler) runContext() (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(h.ctx, h.timeout)
	}
	return context.WithCancel(h.ctx)
}

// ListRuns lists pipeline runs
// @Summary List runs
// @Description List runs newest first, optionally for one pipeline name
// @Tags runs
// @Produce json
// @Param name query string false "Pipeline name"
// @Param limit query int false "Maximum number of runs" default(100)
// @Success 200 {array} model.RunRecord
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.store.ListRuns(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		h.serverError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns one run
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunRecord
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunStages returns the stage events of a run
// @Summary Get run stages
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} model.StageRecord
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id}/stages [get]
func (h *Handler) GetRunStages(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	events, err := h.store.StageEvents(r.Context(), run.ID)
	if err != nil {
		h.serverError(w, "stage events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GetRunErrors returns the recorded failure of a run
// @Summary Get run errors
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} model.ErrorRecord
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id}/errors [get]
func (h *Handler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	errs, err := h.store.Errors(r.Context(), run.ID)
	if err != nil {
		h.serverError(w, "run errors", err)
		return
	}
	writeJSON(w, http.StatusOK, errs)
}

// GetRunArtifacts returns the artifact values recorded for a run
// @Summary Get run artifacts
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} model.ArtifactRecord
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id}/artifacts [get]
func (h *Handler) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	arts, err := h.store.Artifacts(r.Context(), run.ID)
	if err != nil {
		h.serverError(w, "run artifacts", err)
		return
	}
	writeJSON(w, http.StatusOK, arts)
}

// PredictRequest holds raw feature rows keyed by column name
type PredictRequest struct {
	Rows      []map[string]float64 `json:"rows"`
	Threshold float64              `json:"threshold,omitempty"`
}

type PredictResponse struct {
	Algorithm   string                   `json:"algorithm"`
	Features    []string                 `json:"features"`
	Predictions []components.Prediction `json:"predictions"`
}

// Predict scores rows with the latest trained model of a pipeline
// @Summary Predict
// @Description Score rows with the model stored by the last successful training stage of the pipeline
// @Tags predictions
// @Accept json
// @Produce json
// @Param name path string true "Pipeline name"
// @Param request body PredictRequest true "Rows to score"
// @Success 200 {object} PredictResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /pipelines/{name}/predict [post]
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	name := router.Segment(r, 3)
	var req PredictRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "at least one row is required")
		return
	}
	if req.Threshold == 0 {
		req.Threshold = 0.5
	}
	if req.Threshold <= 0 || req.Threshold >= 1 {
		writeError(w, http.StatusBadRequest, "threshold must be in (0, 1)")
		return
	}

	sink, err := h.openSink(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("pipeline %q: %v", name, err))
		return
	}
	predictor, err := components.LoadPredictor(r.Context(), sink, components.ModelLocation(sink))
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no trained model for pipeline %q: %v", name, err))
		return
	}
	preds, err := predictor.Predict(req.Rows, req.Threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PredictResponse{
		Algorithm:   predictor.Algorithm(),
		Features:    predictor.Features(),
		Predictions: preds,
	})
}

// Healthz reports whether the run database is reachable
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (model.RunRecord, bool) {
	id := strings.TrimSpace(router.Segment(r, 3))
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return model.RunRecord{}, false
	}
	run, err := h.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return model.RunRecord{}, false
	}
	if err != nil {
		h.serverError(w, "get run", err)
		return model.RunRecord{}, false
	}
	return run, true
}

func (h *Handler) serverError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
