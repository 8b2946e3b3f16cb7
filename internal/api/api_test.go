package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go-ml-pipeline/internal/api/handler"
	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/store"
	"go-ml-pipeline/pkg/router"
)

type testServer struct {
	router  *router.Router
	handler *handler.Handler
	store   *store.Store
	dataDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("store.Open() err=%v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	artifactsDir := filepath.Join(dir, "artifacts")
	openSink := func(ctx context.Context, name string) (artifacts.Sink, error) {
		return artifacts.NewLocal(artifactsDir, name)
	}
	n := 0
	h := handler.New(context.Background(), st, openSink, nil, handler.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}), handler.WithDataRoot(dataDir))
	r := router.New(nil)
	RegisterRoutes(r, h)
	return &testServer{router: r, handler: h, store: st, dataDir: dataDir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func linearCSV() string {
	var b strings.Builder
	b.WriteString("x1,x2,y\n")
	for i := 0; i < 40; i++ {
		x1 := float64(i%7) - 3
		x2 := float64(i%5) * 0.5
		fmt.Fprintf(&b, "%v,%v,%v\n", x1, x2, 3*x1-2*x2+5)
	}
	return b.String()
}

func (s *testServer) writeLinearCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(s.dataDir, "data.csv")
	if err := os.WriteFile(path, []byte(linearCSV()), 0644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	return path
}

func runConfig(source string) string {
	return fmt.Sprintf(`
run:
  name: linear
ingestion:
  source: %s
validation:
  required_columns: [x1, x2, y]
transformation:
  target_column: y
  feature_columns: [x1, x2]
training:
  learning_rate: 0.1
  epochs: 500
  batch_size: 8
`, source)
}

func TestCreateRunAndInspect(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/runs", runConfig(s.writeLinearCSV(t)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create code=%d body=%s", rec.Code, rec.Body.String())
	}
	var created handler.CreateRunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID != "run-1" || created.Name != "linear" || len(created.Stages) != 5 {
		t.Fatalf("created=%+v", created)
	}
	s.handler.Wait()

	rec = s.do(t, http.MethodGet, "/api/v1/runs/run-1", "")
	var run model.RunRecord
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &run) != nil || run.Status != model.RunStatusSucceeded {
		t.Fatalf("get code=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/runs/run-1/stages", "")
	var stages []model.StageRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &stages); err != nil || len(stages) != 5 {
		t.Fatalf("stages=%s", rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/runs/run-1/artifacts", "")
	var arts []model.ArtifactRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &arts); err != nil || len(arts) != 5 {
		t.Fatalf("artifacts=%s", rec.Body.String())
	}
	if arts[4].Stage != "evaluation" || arts[4].Values["passed"] != true {
		t.Fatalf("evaluation artifact=%+v", arts[4])
	}

	rec = s.do(t, http.MethodGet, "/api/v1/runs?name=linear", "")
	var runs []model.RunRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil || len(runs) != 1 {
		t.Fatalf("list=%s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/pipelines/linear/predict", `{"rows":[{"x1":2,"x2":1}]}`)
	var pred handler.PredictResponse
	if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &pred) != nil {
		t.Fatalf("predict code=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(pred.Predictions) != 1 || pred.Predictions[0].Score < 8.5 || pred.Predictions[0].Score > 9.5 {
		t.Fatalf("prediction=%+v", pred)
	}
}

func TestCreateRunFailureIsRecorded(t *testing.T) {
	s := newTestServer(t)
	missing := filepath.Join(s.dataDir, "missing.csv")
	rec := s.do(t, http.MethodPost, "/api/v1/runs?until=validation", runConfig(missing))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create code=%d body=%s", rec.Code, rec.Body.String())
	}
	s.handler.Wait()

	rec = s.do(t, http.MethodGet, "/api/v1/runs/run-1/errors", "")
	var errs []model.ErrorRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &errs); err != nil || len(errs) != 1 {
		t.Fatalf("errors=%s", rec.Body.String())
	}
	if errs[0].Stage != "ingestion" || errs[0].Kind != "stage" || !strings.Contains(errs[0].Message, "missing.csv") {
		t.Fatalf("error=%+v", errs[0])
	}
	run, err := s.store.GetRun(context.Background(), "run-1")
	if err != nil || run.Status != model.RunStatusFailed || len(run.Stages) != 2 {
		t.Fatalf("run=%+v err=%v", run, err)
	}
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name, method, path, body string
		code                     int
		contains                 string
	}{
		{"invalid config", http.MethodPost, "/api/v1/runs", "training:\n  epochs: 0\n", 400, "epochs"},
		{"unknown stage", http.MethodPost, "/api/v1/runs?until=deploy", runConfig("data.csv"), 400, "deploy"},
		{"bad limit", http.MethodGet, "/api/v1/runs?limit=-1", "", 400, "limit"},
		{"unknown run", http.MethodGet, "/api/v1/runs/nope", "", 404, "run not found"},
		{"no rows", http.MethodPost, "/api/v1/pipelines/linear/predict", `{"rows":[]}`, 400, "at least one row"},
		{"no model", http.MethodPost, "/api/v1/pipelines/linear/predict", `{"rows":[{"x1":1}]}`, 404, "no trained model"},
		{"bad threshold", http.MethodPost, "/api/v1/pipelines/linear/predict", `{"rows":[{"x1":1}],"threshold":2}`, 400, "threshold"},
	}
	for _, tt := range tests {
		rec := s.do(t, tt.method, tt.path, tt.body)
		if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.contains) {
			t.Fatalf("%s: code=%d body=%s", tt.name, rec.Code, rec.Body.String())
		}
	}
}

func TestCreateRunSerializedPerPipeline(t *testing.T) {
	s := newTestServer(t)
	release := make(chan struct{})
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, linearCSV())
	}))
	defer src.Close()
	unblock := sync.OnceFunc(func() { close(release) })
	defer unblock()

	body := runConfig(src.URL + "/rows.csv")
	if rec := s.do(t, http.MethodPost, "/api/v1/runs?until=ingestion", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first create code=%d body=%s", rec.Code, rec.Body.String())
	}
	rec := s.do(t, http.MethodPost, "/api/v1/runs?until=ingestion", body)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "run-1") {
		t.Fatalf("overlapping create code=%d body=%s", rec.Code, rec.Body.String())
	}
	other := strings.Replace(body, "name: linear", "name: other", 1)
	if rec := s.do(t, http.MethodPost, "/api/v1/runs?until=ingestion", other); rec.Code != http.StatusAccepted {
		t.Fatalf("other pipeline code=%d body=%s", rec.Code, rec.Body.String())
	}

	unblock()
	s.handler.Wait()

	run, err := s.store.GetRun(context.Background(), "run-1")
	if err != nil || run.Status != model.RunStatusSucceeded {
		t.Fatalf("run-1=%+v err=%v", run, err)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/runs?until=ingestion", body); rec.Code != http.StatusAccepted {
		t.Fatalf("create after finish code=%d body=%s", rec.Code, rec.Body.String())
	}
	s.handler.Wait()
}

func TestCreateRunIgnoresServerEnv(t *testing.T) {
	t.Setenv("PIPELINE_NAME", "from-env")
	t.Setenv("PIPELINE_SOURCE", "https://example.com/other.csv")
	t.Setenv("PIPELINE_ARTIFACTS_DIR", t.TempDir())
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/runs?until=validation", runConfig(s.writeLinearCSV(t)))
	var created handler.CreateRunResponse
	if rec.Code != http.StatusAccepted || json.Unmarshal(rec.Body.Bytes(), &created) != nil || created.Name != "linear" {
		t.Fatalf("create code=%d body=%s", rec.Code, rec.Body.String())
	}
	s.handler.Wait()

	run, err := s.store.GetRun(context.Background(), created.ID)
	if err != nil || run.Name != "linear" || run.Status != model.RunStatusSucceeded {
		t.Fatalf("run=%+v err=%v", run, err)
	}
}

func TestCreateRunRejectsPathsOutsideDataDir(t *testing.T) {
	s := newTestServer(t)
	outside := filepath.Join(t.TempDir(), "data.csv")
	inside := s.writeLinearCSV(t)
	tests := []struct {
		name, body, contains string
	}{
		{"absolute source", runConfig(outside), "ingestion.source"},
		{"relative escape", runConfig(filepath.Join(s.dataDir, "..", "runs.db")), "ingestion.source"},
		{"train path", strings.Replace(runConfig(inside), "  target_column: y\n", "  target_column: y\n  train_path: "+outside+"\n", 1), "transformation.train_path"},
		{"test path", strings.Replace(runConfig(inside), "  target_column: y\n", "  target_column: y\n  test_path: /etc/passwd\n", 1), "transformation.test_path"},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodPost, "/api/v1/runs", tt.body)
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), tt.contains) {
			t.Fatalf("%s: code=%d body=%s", tt.name, rec.Code, rec.Body.String())
		}
	}
	runs, err := s.store.ListRuns(context.Background(), "", 0)
	if err != nil || len(runs) != 0 {
		t.Fatalf("runs=%v err=%v", runs, err)
	}
}

func TestHealthzAndSwagger(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("healthz code=%d body=%s", rec.Code, rec.Body.String())
	}
	rec := s.do(t, http.MethodGet, "/swagger/doc.json", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/runs/{id}/stages") {
		t.Fatalf("swagger code=%d body=%.200s", rec.Code, rec.Body.String())
	}
}
