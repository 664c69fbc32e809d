package specialist

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
)

// Cleaning operation kinds.
const (
	OpUnitNormalization = "unit_normalization"
	OpNumericCoercion   = "numeric_coercion"
)

const poundsToKg = 0.45359237

var (
	currencyValue = regexp.MustCompile(`^([₹$€])?\s*(-?\d[\d,]*(?:\.\d+)?)\s*([₹$€])?$`)
	groupedDigits = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	weightValue   = regexp.MustCompile(`(?i)^(-?\d+(?:\.\d+)?)\s*(kg|kgs|kilograms?|lb|lbs|pounds?)$`)
)

// Operation is one entry of the cleaning log.
type Operation struct {
	Kind          string `json:"kind"`
	Column        string `json:"column"`
	Row           int    `json:"row"`
	Before        any    `json:"before,omitempty"`
	After         any    `json:"after,omitempty"`
	MissingBefore *int   `json:"missing_before,omitempty"`
	MissingAfter  *int   `json:"missing_after,omitempty"`
}

// CleanOutput is the output of the DataCleaner specialist.
type CleanOutput struct {
	Table      *dataset.Table   `json:"-"`
	Operations []Operation      `json:"operations"`
	Preview    []map[string]any `json:"preview"`
}

// DataCleaner normalizes units and coerces text columns to numbers. It
// never modifies its input; the cleaned table is returned in CleanOutput.
// A column is converted only when every present value parses, so cleaning
// is idempotent.
type DataCleaner struct {
	*agent.Agent
}

// NewDataCleaner creates the DataCleaner specialist.
func NewDataCleaner(optFns ...func(o *Options)) *DataCleaner {
	opts := newOptions(optFns)
	s := &DataCleaner{}
	s.Agent = agent.New(core.LabelDataCleaner, "Normalizes units and coerces numeric text columns", s, opts.agentOptions())
	return s
}

// Execute implements agent.Executor.
func (s *DataCleaner) Execute(_ context.Context, call *agent.Call) (any, error) {
	if err := call.RequireTable(); err != nil {
		return nil, err
	}
	tbl, ops, err := Clean(call.Table)
	if err != nil {
		return nil, core.NewError(core.KindExecutionFailed, core.LabelDataCleaner, "rebuild table").Wrap(err)
	}
	return &CleanOutput{Table: tbl, Operations: ops, Preview: tbl.Head(5)}, nil
}

// Clean returns a cleaned copy of tbl and the operations applied.
func Clean(tbl *dataset.Table) (*dataset.Table, []Operation, error) {
	out := tbl
	ops := []Operation{}
	for _, name := range tbl.ColumnsOfType(dataset.Text) {
		vals, _ := tbl.ColumnValues(name)
		converted, cellOps, ok := coerceColumn(name, vals)
		if !ok {
			continue
		}
		before := tbl.MissingCount(name)
		next, err := out.WithColumn(name, dataset.Number, converted)
		if err != nil {
			return nil, nil, err
		}
		out = next
		after := out.MissingCount(name)
		ops = append(ops, cellOps...)
		ops = append(ops, Operation{
			Kind:          OpNumericCoercion,
			Column:        name,
			Row:           -1,
			MissingBefore: &before,
			MissingAfter:  &after,
		})
	}
	if out == tbl {
		out = tbl.Clone()
	}
	return out, ops, nil
}

// coerceColumn converts every present value of a text column to a number.
// ok is false when a value does not parse or nothing is present.
func coerceColumn(name string, vals []any) ([]any, []Operation, bool) {
	converted := make([]any, len(vals))
	var ops []Operation
	present := 0
	for r, v := range vals {
		if dataset.IsMissing(v) {
			converted[r] = nil
			continue
		}
		s, isText := v.(string)
		if !isText {
			return nil, nil, false
		}
		f, unit, ok := ParseMeasurement(s)
		if !ok {
			return nil, nil, false
		}
		present++
		converted[r] = f
		if unit {
			ops = append(ops, Operation{Kind: OpUnitNormalization, Column: name, Row: r, Before: s, After: f})
		}
	}
	if present == 0 {
		return nil, nil, false
	}
	return converted, ops, true
}

// ParseMeasurement parses a numeric string that may carry a currency
// symbol, digit-grouping commas or a weight unit. Weights are converted to
// kilograms. unit reports whether any normalization beyond plain number
// parsing was applied.
func ParseMeasurement(s string) (value float64, unit bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, false, true
	}
	if m := weightValue.FindStringSubmatch(s); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false, false
		}
		switch strings.ToLower(m[2]) {
		case "lb", "lbs", "pound", "pounds":
			f *= poundsToKg
		}
		return f, true, true
	}
	if m := currencyValue.FindStringSubmatch(s); m != nil {
		if m[1] != "" && m[3] != "" {
			return 0, false, false
		}
		digits := m[2]
		if strings.Contains(digits, ",") && !groupedDigits.MatchString(digits) {
			return 0, false, false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
		if err != nil {
			return 0, false, false
		}
		return f, true, true
	}
	return 0, false, false
}
