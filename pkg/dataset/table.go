// Package dataset holds the tabular representation exchanged between the
// ingestion, validation and transformation stages.
package dataset

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"go-ml-pipeline/pkg/utils"
)

var (
	ErrNoHeader      = errors.New("dataset has no header")
	ErrUnknownColumn = errors.New("unknown column")
	ErrTooFewRows    = errors.New("too few rows")
)

// Table is a header plus string cells. Cells are parsed lazily so that
// validation can report on the raw values.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of a column or -1
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table carries the named column
func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Column returns a copy of the raw cells of one column
func (t *Table) Column(name string) ([]string, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Floats parses one column. Missing or unparsable cells become NaN and are
// counted in missing.
func (t *Table) Floats(name string) (values []float64, missing int, err error) {
	cells, err := t.Column(name)
	if err != nil {
		return nil, 0, err
	}
	values = make([]float64, len(cells))
	for i, c := range cells {
		v, ok := utils.ParseNumber(c)
		if !ok {
			values[i] = math.NaN()
			missing++
			continue
		}
		values[i] = v
	}
	return values, missing, nil
}

// Select returns a new table restricted to rows at the given indices
func (t *Table) Select(indices []int) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: make([][]string, 0, len(indices))}
	for _, i := range indices {
		out.Rows = append(out.Rows, append([]string(nil), t.Rows[i]...))
	}
	return out
}

// ReadCSV reads a header row followed by records. Header names are trimmed
// and stripped of stray quotes.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	t := &Table{Columns: make([]string, len(headers))}
	for i, h := range headers {
		clean := strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
		if clean == "" {
			return nil, fmt.Errorf("read CSV header: column %d has no name", i+1)
		}
		t.Columns[i] = clean
	}
	if dup := firstDuplicate(t.Columns); dup != "" {
		return nil, fmt.Errorf("read CSV header: column %q appears twice", dup)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("CSV read error: %w", err)
		}
		t.Rows = append(t.Rows, record)
	}
	return t, nil
}

// ReadJSON reads either an array of objects or a single object. The column
// set is the sorted union of every object's keys.
func ReadJSON(r io.Reader) (*Table, error) {
	var raw interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	var objects []map[string]interface{}
	switch data := raw.(type) {
	case []interface{}:
		for i, item := range data {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("JSON element %d is %T, want object", i, item)
			}
			objects = append(objects, m)
		}
	case map[string]interface{}:
		objects = append(objects, data)
	default:
		return nil, fmt.Errorf("unexpected JSON structure %T", raw)
	}

	keys := make(map[string]struct{})
	for _, obj := range objects {
		for k := range obj {
			keys[k] = struct{}{}
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoHeader
	}
	t := &Table{Columns: make([]string, 0, len(keys))}
	for k := range keys {
		t.Columns = append(t.Columns, k)
	}
	sort.Strings(t.Columns)

	for _, obj := range objects {
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			row[i] = utils.FormatValue(obj[col])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the header and every row
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func firstDuplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return n
		}
		seen[n] = struct{}{}
	}
	return ""
}
