package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewArtifact_CopiesValues(t *testing.T) {
	weights := []float64{0.5, 1.5}
	matrix := [][]float64{{1, 2}, {3, 4}}
	names := []string{"a", "b"}

	a, err := NewArtifact(KindModel, Values{"weights": weights, "x": matrix, "names": names, "bias": 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	weights[0] = 99
	matrix[0][0] = 99
	names[0] = "z"

	w, _ := a.Floats("weights")
	if w[0] != 0.5 {
		t.Fatalf("artifact shares caller slice: %v", w)
	}
	m, _ := a.Matrix("x")
	if m[0][0] != 1 {
		t.Fatalf("artifact shares caller matrix: %v", m)
	}
	s, _ := a.Strings("names")
	if s[0] != "a" {
		t.Fatalf("artifact shares caller strings: %v", s)
	}

	// Mutating returned copies must not leak back either.
	w[1] = -1
	m[1][1] = -1
	again, _ := a.Floats("weights")
	againM, _ := a.Matrix("x")
	if again[1] != 1.5 || againM[1][1] != 4 {
		t.Fatalf("accessor returned shared storage")
	}
}

func TestNewArtifact_Rejects(t *testing.T) {
	if _, err := NewArtifact("", Values{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := NewArtifact(KindModel, Values{"fn": func() {}}); err == nil {
		t.Fatalf("expected error for unsupported value type")
	}
	if _, err := NewArtifact(KindModel, Values{"m": map[string]int{}}); err == nil {
		t.Fatalf("expected error for map value")
	}
}

func TestArtifact_TypedAccessors(t *testing.T) {
	a := MustArtifact(KindEvaluation, Values{
		"status": "pass",
		"rows":   10,
		"r2":     0.75,
		"ok":     true,
	})

	if s, err := a.String("status"); err != nil || s != "pass" {
		t.Fatalf("String=%q err=%v", s, err)
	}
	if n, err := a.Int("rows"); err != nil || n != 10 {
		t.Fatalf("Int=%d err=%v", n, err)
	}
	if f, err := a.Float("rows"); err != nil || f != 10 {
		t.Fatalf("Float widening=%v err=%v", f, err)
	}
	if f, err := a.Float("r2"); err != nil || f != 0.75 {
		t.Fatalf("Float=%v err=%v", f, err)
	}
	if b, err := a.Bool("ok"); err != nil || !b {
		t.Fatalf("Bool=%v err=%v", b, err)
	}
	if _, err := a.String("rows"); err == nil {
		t.Fatalf("expected type error")
	}
	if _, err := a.Floats("missing"); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected missing value error, got %v", err)
	}
	if got := strings.Join(a.Names(), ","); got != "ok,r2,rows,status" {
		t.Fatalf("Names=%s", got)
	}
}

func TestArtifact_Equal(t *testing.T) {
	a := MustArtifact(KindModel, Values{"w": []float64{1, 2}})
	b := MustArtifact(KindModel, Values{"w": []float64{1, 2}})
	if !a.Equal(b) {
		t.Fatalf("expected equal artifacts")
	}
	c := MustArtifact(KindModel, Values{"w": []float64{1, 3}})
	if a.Equal(c) {
		t.Fatalf("expected different values")
	}
	if a.Equal(a.withProvenance(Provenance{Stage: "training", Seq: 4})) {
		t.Fatalf("expected different provenance")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, At("training", "fit")) != nil {
		t.Fatalf("Wrap(nil) must be nil")
	}

	cause := errors.New("no such file")
	err := Wrap(cause, At("transformation", "load-train"))
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %T", err)
	}
	if stageErr.Stage != "transformation" || stageErr.Location.Step != "load-train" {
		t.Fatalf("unexpected context: %+v", stageErr)
	}
	if !errors.Is(err, cause) || !errors.Is(err, ErrStageFailed) {
		t.Fatalf("cause not reachable from %v", err)
	}
	if !strings.Contains(err.Error(), "transformation/load-train") {
		t.Fatalf("location missing from %q", err.Error())
	}

	// Already wrapped errors are not wrapped twice.
	if again := Wrap(err, At("training", "run")); again != err {
		t.Fatalf("double wrapped: %v", again)
	}
	cfgErr := configErrorf("training", "missing config")
	if again := Wrap(cfgErr, At("training", "run")); again != error(cfgErr) {
		t.Fatalf("configuration error re-wrapped")
	}
}

func TestPipelineError_Chain(t *testing.T) {
	cause := fmt.Errorf("open %s: %w", "/data/missing.csv", errors.New("no such file or directory"))
	perr := &PipelineError{
		RunID:       "r1",
		FailedIndex: 1,
		FailedStage: "transformation",
		Completed:   []string{"ingestion"},
		Err:         Wrap(cause, At("transformation", "load-train")),
	}
	msg := perr.Error()
	for _, want := range []string{"r1", "transformation", "ingestion", "/data/missing.csv", "load-train"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
	if !errors.Is(perr, ErrRunFailed) || !errors.Is(perr, ErrStageFailed) {
		t.Fatalf("taxonomy not reachable from %v", perr)
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		loc  Location
		want string
	}{
		{Location{}, "unknown"},
		{At("training", ""), "training"},
		{At("", "fit"), "fit"},
		{At("training", "fit"), "training/fit"},
	}
	for _, tt := range tests {
		if got := tt.loc.String(); got != tt.want {
			t.Fatalf("%+v: got %q, want %q", tt.loc, got, tt.want)
		}
	}
}

func TestInputs(t *testing.T) {
	raw := MustArtifact("raw", Values{"rows": 3})
	in := NewInputs(raw)
	if _, ok := in.Get("raw"); !ok {
		t.Fatalf("expected raw input")
	}
	if _, err := in.Must("features"); err == nil {
		t.Fatalf("expected missing input error")
	}
	if in.Len() != 1 || in.Kinds()[0] != "raw" {
		t.Fatalf("unexpected kinds %v", in.Kinds())
	}
}
