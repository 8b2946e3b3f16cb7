package dataset

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
)

const sampleCSV = `" id ",x,y
1,1.5,3
2,NA,5
3,2.5,7
4,3.5,9
5,4.5,11
`

func TestReadCSV(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV err=%v", err)
	}
	if !reflect.DeepEqual(table.Columns, []string{"id", "x", "y"}) {
		t.Fatalf("columns=%v", table.Columns)
	}
	if table.Len() != 5 {
		t.Fatalf("rows=%d", table.Len())
	}

	xs, missing, err := table.Floats("x")
	if err != nil {
		t.Fatalf("Floats err=%v", err)
	}
	if missing != 1 || !math.IsNaN(xs[1]) || xs[0] != 1.5 {
		t.Fatalf("xs=%v missing=%d", xs, missing)
	}
	if _, _, err := table.Floats("z"); !errors.Is(err, ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"duplicate column", "a,a\n1,2\n"},
		{"blank column", "a,\n1,2\n"},
		{"ragged row", "a,b\n1,2\n3\n"},
	}
	for _, tt := range tests {
		if _, err := ReadCSV(strings.NewReader(tt.in)); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestReadJSON(t *testing.T) {
	in := `[{"b": 2, "a": "x"}, {"a": "y", "c": true}]`
	table, err := ReadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadJSON err=%v", err)
	}
	if !reflect.DeepEqual(table.Columns, []string{"a", "b", "c"}) {
		t.Fatalf("columns=%v", table.Columns)
	}
	want := [][]string{{"x", "2", ""}, {"y", "", "true"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Fatalf("rows=%v", table.Rows)
	}

	single, err := ReadJSON(strings.NewReader(`{"k": 1}`))
	if err != nil || single.Len() != 1 {
		t.Fatalf("single object: %v %v", single, err)
	}
	if _, err := ReadJSON(strings.NewReader(`[1, 2]`)); err == nil {
		t.Fatalf("expected error for non-object elements")
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadCSV err=%v", err)
	}
	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV err=%v", err)
	}
	again, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV err=%v", err)
	}
	if !reflect.DeepEqual(table, again) {
		t.Fatalf("round trip mismatch:\n%v\n%v", table, again)
	}
}

func TestTrainTestSplit(t *testing.T) {
	table, _ := ReadCSV(strings.NewReader(sampleCSV))

	train, test, err := TrainTestSplit(table, 0.4, 7)
	if err != nil {
		t.Fatalf("split err=%v", err)
	}
	if train.Len() != 3 || test.Len() != 2 {
		t.Fatalf("train=%d test=%d", train.Len(), test.Len())
	}

	train2, test2, _ := TrainTestSplit(table, 0.4, 7)
	if !reflect.DeepEqual(train, train2) || !reflect.DeepEqual(test, test2) {
		t.Fatalf("split is not deterministic for a fixed seed")
	}

	seen := make(map[string]int)
	for _, row := range append(train.Rows, test.Rows...) {
		seen[row[0]]++
	}
	if len(seen) != table.Len() {
		t.Fatalf("rows lost or duplicated: %v", seen)
	}

	// tiny ratios still hold out one row
	_, test3, _ := TrainTestSplit(table, 0.01, 1)
	if test3.Len() != 1 {
		t.Fatalf("expected one held-out row, got %d", test3.Len())
	}

	one := &Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}}
	if _, _, err := TrainTestSplit(one, 0.5, 1); !errors.Is(err, ErrTooFewRows) {
		t.Fatalf("expected ErrTooFewRows, got %v", err)
	}
}
