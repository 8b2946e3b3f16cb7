package pipeline

import (
	"fmt"
	"reflect"
	"sort"
)

// ArtifactKind names the type of output a stage produces
type ArtifactKind string

const (
	KindIngestion      ArtifactKind = "ingestion-output"
	KindValidation     ArtifactKind = "validation-report"
	KindTransformation ArtifactKind = "transformation-output"
	KindModel          ArtifactKind = "model"
	KindEvaluation     ArtifactKind = "evaluation-report"
)

// Values is the set of named values carried by an artifact.
// Supported value types: string, bool, int, float64, []string, []float64, [][]float64.
type Values map[string]any

// Provenance records which stage produced an artifact and at what logical time.
// Seq is the 1-based position of the producing stage in its run.
type Provenance struct {
	Stage string `json:"stage"`
	Seq   int    `json:"seq"`
}

// Artifact is an immutable hand-off object between stages.
// The zero value is an empty artifact with no kind.
type Artifact struct {
	kind       ArtifactKind
	values     Values
	provenance Provenance
}

// NewArtifact builds an artifact from a deep copy of values.
func NewArtifact(kind ArtifactKind, values Values) (Artifact, error) {
	if kind == "" {
		return Artifact{}, fmt.Errorf("artifact kind is required")
	}
	copied := make(Values, len(values))
	for name, v := range values {
		c, err := copyValue(v)
		if err != nil {
			return Artifact{}, fmt.Errorf("artifact %s value %q: %w", kind, name, err)
		}
		copied[name] = c
	}
	return Artifact{kind: kind, values: copied}, nil
}

// MustArtifact is NewArtifact for values known to be valid. It panics otherwise.
func MustArtifact(kind ArtifactKind, values Values) Artifact {
	a, err := NewArtifact(kind, values)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Artifact) Kind() ArtifactKind     { return a.kind }
func (a Artifact) Provenance() Provenance { return a.provenance }
func (a Artifact) IsZero() bool           { return a.kind == "" }

// withProvenance returns a copy stamped with the producing stage.
// Values are shared; they are never mutated after construction.
func (a Artifact) withProvenance(p Provenance) Artifact {
	a.provenance = p
	return a
}

// Names returns the value names in sorted order.
func (a Artifact) Names() []string {
	names := make([]string, 0, len(a.values))
	for name := range a.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a Artifact) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Value returns a copy of the named value.
func (a Artifact) Value(name string) (any, bool) {
	v, ok := a.values[name]
	if !ok {
		return nil, false
	}
	c, _ := copyValue(v)
	return c, true
}

// Values returns a deep copy of all values.
func (a Artifact) Values() Values {
	out := make(Values, len(a.values))
	for name, v := range a.values {
		out[name], _ = copyValue(v)
	}
	return out
}

func (a Artifact) String(name string) (string, error) {
	v, err := a.lookup(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", a.typeError(name, "string", v)
	}
	return s, nil
}

func (a Artifact) Bool(name string) (bool, error) {
	v, err := a.lookup(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, a.typeError(name, "bool", v)
	}
	return b, nil
}

func (a Artifact) Int(name string) (int, error) {
	v, err := a.lookup(name)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int)
	if !ok {
		return 0, a.typeError(name, "int", v)
	}
	return i, nil
}

// Float returns a float64 value; int values are widened.
func (a Artifact) Float(name string) (float64, error) {
	v, err := a.lookup(name)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, a.typeError(name, "float64", v)
	}
}

func (a Artifact) Strings(name string) ([]string, error) {
	v, err := a.lookup(name)
	if err != nil {
		return nil, err
	}
	s, ok := v.([]string)
	if !ok {
		return nil, a.typeError(name, "[]string", v)
	}
	return append([]string(nil), s...), nil
}

func (a Artifact) Floats(name string) ([]float64, error) {
	v, err := a.lookup(name)
	if err != nil {
		return nil, err
	}
	f, ok := v.([]float64)
	if !ok {
		return nil, a.typeError(name, "[]float64", v)
	}
	return append([]float64(nil), f...), nil
}

func (a Artifact) Matrix(name string) ([][]float64, error) {
	v, err := a.lookup(name)
	if err != nil {
		return nil, err
	}
	m, ok := v.([][]float64)
	if !ok {
		return nil, a.typeError(name, "[][]float64", v)
	}
	return copyMatrix(m), nil
}

// Equal reports value equality: same kind, same values, same provenance.
func (a Artifact) Equal(b Artifact) bool {
	if a.kind != b.kind || a.provenance != b.provenance || len(a.values) != len(b.values) {
		return false
	}
	for name, v := range a.values {
		w, ok := b.values[name]
		if !ok || !reflect.DeepEqual(v, w) {
			return false
		}
	}
	return true
}

func (a Artifact) lookup(name string) (any, error) {
	v, ok := a.values[name]
	if !ok {
		return nil, fmt.Errorf("artifact %s has no value %q", a.kind, name)
	}
	return v, nil
}

func (a Artifact) typeError(name, want string, got any) error {
	return fmt.Errorf("artifact %s value %q: want %s, got %T", a.kind, name, want, got)
}

func copyValue(v any) (any, error) {
	switch val := v.(type) {
	case string, bool, int, float64:
		return val, nil
	case []string:
		return append([]string(nil), val...), nil
	case []float64:
		return append([]float64(nil), val...), nil
	case [][]float64:
		return copyMatrix(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func copyMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
