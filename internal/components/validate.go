package components

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/model"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/pkg/dataset"
	"go-ml-pipeline/pkg/utils"
)

const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// ColumnReport counts rule violations of one column
type ColumnReport struct {
	Missing    int `json:"missing"`
	NonNumeric int `json:"non_numeric"`
	BelowMin   int `json:"below_min"`
	AboveMax   int `json:"above_max"`
}

// ValidationReport is written to validation_report.json
type ValidationReport struct {
	Status      string                  `json:"status"`
	Rows        int                     `json:"rows"`
	InvalidRows int                     `json:"invalid_rows"`
	Issues      []string                `json:"issues"`
	Columns     map[string]ColumnReport `json:"columns"`
}

// Validation checks the raw dataset against the configured rule set
type Validation struct {
	sink artifacts.Sink
}

func NewValidation(sink artifacts.Sink) *Validation { return &Validation{sink: sink} }

func (s *Validation) Name() string { return model.StageValidation }
func (s *Validation) Requires() []pipeline.ArtifactKind {
	return []pipeline.ArtifactKind{pipeline.KindIngestion}
}
func (s *Validation) Produces() pipeline.ArtifactKind { return pipeline.KindValidation }

func (s *Validation) CheckConfig(cfg pipeline.StageConfig) error {
	return checkConfig[model.ValidationConfig](s.Name(), cfg)
}

func (s *Validation) Run(ctx context.Context, in pipeline.Inputs, cfg pipeline.StageConfig) (pipeline.Artifact, error) {
	c, err := pipeline.ConfigAs[model.ValidationConfig](s.Name(), cfg)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	ing, err := in.Must(pipeline.KindIngestion)
	if err != nil {
		return pipeline.Artifact{}, err
	}
	rawPath, err := ing.String("raw_path")
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "input"))
	}

	table, err := readTable(ctx, s.sink, rawPath)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "load"))
	}

	report := ValidateTable(table, c)
	reportPath, err := artifacts.PutJSON(ctx, s.sink, s.Name(), FileValidationReport, report)
	if err != nil {
		return pipeline.Artifact{}, pipeline.Wrap(err, pipeline.At(s.Name(), "persist"))
	}

	if report.Status == StatusFail && c.FailOnInvalid {
		return pipeline.Artifact{}, pipeline.Wrap(
			fmt.Errorf("%w: %s (report %s)", ErrValidationFailed, strings.Join(report.Issues, "; "), reportPath),
			pipeline.At(s.Name(), "check"))
	}

	return pipeline.NewArtifact(pipeline.KindValidation, pipeline.Values{
		"status":       report.Status,
		"rows":         report.Rows,
		"invalid_rows": report.InvalidRows,
		"issues":       report.Issues,
		"report_path":  reportPath,
	})
}

// ValidateTable applies the rule set and never fails; problems are
// reported as issues and a "fail" status.
func ValidateTable(t *dataset.Table, c model.ValidationConfig) ValidationReport {
	report := ValidationReport{
		Rows:    t.Len(),
		Issues:  []string{},
		Columns: make(map[string]ColumnReport),
	}

	for _, col := range c.RequiredColumns {
		if !t.Has(col) {
			report.Issues = append(report.Issues, fmt.Sprintf("missing required column %q", col))
		}
	}
	if t.Len() < c.MinRows {
		report.Issues = append(report.Issues, fmt.Sprintf("dataset has %d rows, want at least %d", t.Len(), c.MinRows))
	}

	numeric := make(map[string]bool, len(c.NumericColumns))
	for _, col := range c.NumericColumns {
		numeric[col] = true
		if !t.Has(col) {
			report.Issues = append(report.Issues, fmt.Sprintf("numeric column %q not found", col))
		}
	}
	ranged := make(map[string]bool)
	for col := range c.MinValues {
		ranged[col] = true
	}
	for col := range c.MaxValues {
		ranged[col] = true
	}
	for _, col := range sortedKeys(ranged) {
		if !t.Has(col) {
			report.Issues = append(report.Issues, fmt.Sprintf("range-checked column %q not found", col))
		}
	}

	invalid := make([]bool, t.Len())
	for j, col := range t.Columns {
		var cr ColumnReport
		min, hasMin := c.MinValues[col]
		max, hasMax := c.MaxValues[col]
		for i, row := range t.Rows {
			cell := row[j]
			if utils.IsMissing(cell) {
				cr.Missing++
				continue
			}
			if !numeric[col] && !hasMin && !hasMax {
				continue
			}
			v, ok := utils.ParseNumber(cell)
			if !ok {
				if numeric[col] {
					cr.NonNumeric++
					invalid[i] = true
				}
				continue
			}
			if hasMin && v < min {
				cr.BelowMin++
				invalid[i] = true
			}
			if hasMax && v > max {
				cr.AboveMax++
				invalid[i] = true
			}
		}
		report.Columns[col] = cr

		if cr.NonNumeric > 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("column %s: %d non-numeric values", col, cr.NonNumeric))
		}
		if cr.BelowMin > 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("column %s: %d values below minimum %v", col, cr.BelowMin, min))
		}
		if cr.AboveMax > 0 {
			report.Issues = append(report.Issues, fmt.Sprintf("column %s: %d values above maximum %v", col, cr.AboveMax, max))
		}
		if t.Len() > 0 {
			ratio := float64(cr.Missing) / float64(t.Len())
			if ratio > c.MaxMissingRatio {
				report.Issues = append(report.Issues, fmt.Sprintf("column %s: missing ratio %.3f above %.3f", col, ratio, c.MaxMissingRatio))
			}
		}
	}

	for _, bad := range invalid {
		if bad {
			report.InvalidRows++
		}
	}
	report.Status = StatusPass
	if len(report.Issues) > 0 {
		report.Status = StatusFail
	}
	return report
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
