package specialist

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
)

// ChartType is the kind of visualization.
type ChartType string

const (
	ChartLine      ChartType = "line"
	ChartBar       ChartType = "bar"
	ChartHistogram ChartType = "histogram"
	ChartScatter   ChartType = "scatter"
	ChartPie       ChartType = "pie"
	ChartTable     ChartType = "table"
)

// maxChartPoints caps the inline data values of a chart spec.
const maxChartPoints = 500

var chartKeywords = []struct {
	typ   ChartType
	words []string
}{
	{ChartLine, []string{"trend", "over time", "time series", "timeline"}},
	{ChartBar, []string{"compare", "comparison", "category", "categories", "by group"}},
	{ChartHistogram, []string{"distribution", "histogram", "spread"}},
	{ChartScatter, []string{"correlation", "correlate", "relationship", "scatter"}},
	{ChartPie, []string{"proportion", "share", "percentage of", "pie"}},
}

// Trend describes the direction of y across the ordered rows.
type Trend struct {
	Direction     string   `json:"direction"`
	PercentChange *float64 `json:"percent_change,omitempty"`
	OrderedBy     string   `json:"ordered_by,omitempty"`
}

// Correlation is the Pearson coefficient between two numeric columns.
type Correlation struct {
	X           string  `json:"x"`
	Y           string  `json:"y"`
	Coefficient float64 `json:"coefficient"`
	Strength    string  `json:"strength"`
}

// ChartInsights are the statistics attached to a chart.
type ChartInsights struct {
	Statistics  *dataset.Stats `json:"statistics,omitempty"`
	Trend       *Trend         `json:"trend,omitempty"`
	Correlation *Correlation   `json:"correlation,omitempty"`
}

// ChartOutput is the output of the Chart specialist.
type ChartOutput struct {
	ChartType ChartType      `json:"chart_type"`
	X         string         `json:"x"`
	Y         string         `json:"y,omitempty"`
	Spec      map[string]any `json:"spec"`
	Insights  ChartInsights  `json:"insights"`
}

// Chart picks a visualization for the question and describes it as a
// Vega-Lite style spec. It does not call the completer.
type Chart struct {
	*agent.Agent
}

// NewChart creates the Chart specialist.
func NewChart(optFns ...func(o *Options)) *Chart {
	opts := newOptions(optFns)
	c := &Chart{}
	c.Agent = agent.New(core.LabelChart, "Chooses and specifies a visualization for the data", c, opts.agentOptions())
	return c
}

// Execute implements agent.Executor.
func (c *Chart) Execute(_ context.Context, call *agent.Call) (any, error) {
	if err := call.RequireTable(); err != nil {
		return nil, err
	}
	tbl := call.Table
	typ := ChooseChartType(call.Query)
	x, y := ChooseAxes(tbl)

	out := &ChartOutput{ChartType: typ, X: x, Y: y}
	out.Spec = chartSpec(call.Query, typ, tbl, x, y)

	if y != "" && columnType(tbl, y) == dataset.Number {
		vals, _ := tbl.ColumnValues(y)
		if xs := dataset.Floats(vals); len(xs) > 0 {
			stats := dataset.Describe(xs)
			out.Insights.Statistics = &stats
		}
		ts := tbl.ColumnsOfType(dataset.Timestamp)
		if typ == ChartLine || len(ts) > 0 {
			var order string
			if len(ts) > 0 {
				order = ts[0]
			}
			out.Insights.Trend = trendOf(tbl, y, order)
		}
	}
	if typ == ChartScatter {
		out.Insights.Correlation = correlationOf(tbl)
	}
	return out, nil
}

// ChooseChartType maps the question onto a chart type by keyword.
func ChooseChartType(query string) ChartType {
	q := strings.ToLower(query)
	for _, k := range chartKeywords {
		for _, w := range k.words {
			if strings.Contains(q, w) {
				return k.typ
			}
		}
	}
	return ChartTable
}

// ChooseAxes picks x as the first categorical column (text or bool), else
// the first column, and y as the first numeric column, else the second
// column.
func ChooseAxes(tbl *dataset.Table) (x, y string) {
	cols := tbl.Columns()
	if len(cols) == 0 {
		return "", ""
	}
	x = cols[0].Name
	for _, c := range cols {
		if c.Type == dataset.Text || c.Type == dataset.Bool {
			x = c.Name
			break
		}
	}
	if nums := tbl.ColumnsOfType(dataset.Number); len(nums) > 0 {
		y = nums[0]
	} else if len(cols) > 1 {
		y = cols[1].Name
	}
	return x, y
}

func columnType(tbl *dataset.Table, name string) dataset.Type {
	for _, c := range tbl.Columns() {
		if c.Name == name {
			return c.Type
		}
	}
	return ""
}

func encodingType(t dataset.Type) string {
	switch t {
	case dataset.Number:
		return "quantitative"
	case dataset.Timestamp:
		return "temporal"
	default:
		return "nominal"
	}
}

func chartSpec(title string, typ ChartType, tbl *dataset.Table, x, y string) map[string]any {
	records := tbl.Head(maxChartPoints)
	for _, rec := range records {
		for k, v := range rec {
			if t, ok := v.(time.Time); ok {
				rec[k] = t.Format(time.RFC3339)
			}
		}
	}

	if typ == ChartTable {
		return map[string]any{
			"type":    "table",
			"title":   title,
			"columns": tbl.ColumnNames(),
			"data":    map[string]any{"values": records},
		}
	}

	xEnc := map[string]any{"field": x, "type": encodingType(columnType(tbl, x))}
	yEnc := map[string]any{"field": y, "type": encodingType(columnType(tbl, y))}
	spec := map[string]any{
		"$schema": "https://vega.github.io/schema/vega-lite/v5.json",
		"title":   title,
		"data":    map[string]any{"values": records},
	}

	switch typ {
	case ChartLine:
		spec["mark"] = "line"
		spec["encoding"] = map[string]any{"x": xEnc, "y": yEnc}
	case ChartBar:
		spec["mark"] = "bar"
		spec["encoding"] = map[string]any{"x": xEnc, "y": yEnc}
	case ChartHistogram:
		field := y
		if field == "" {
			field = x
		}
		spec["mark"] = "bar"
		spec["encoding"] = map[string]any{
			"x": map[string]any{"field": field, "bin": true, "type": "quantitative"},
			"y": map[string]any{"aggregate": "count", "type": "quantitative"},
		}
	case ChartScatter:
		spec["mark"] = "point"
		spec["encoding"] = map[string]any{"x": xEnc, "y": yEnc}
	case ChartPie:
		spec["mark"] = "arc"
		spec["encoding"] = map[string]any{
			"theta": map[string]any{"field": y, "type": "quantitative", "aggregate": "sum"},
			"color": map[string]any{"field": x, "type": "nominal"},
		}
	}
	return spec
}

// trendOf compares the first and last y value, with rows ordered by the
// order column when given.
func trendOf(tbl *dataset.Table, y, order string) *Trend {
	yi := tbl.ColumnIndex(y)
	oi := -1
	if order != "" {
		oi = tbl.ColumnIndex(order)
	}

	type point struct {
		at  time.Time
		val float64
	}
	var pts []point
	for r := 0; r < tbl.Len(); r++ {
		v, ok := tbl.Value(r, yi).(float64)
		if !ok || math.IsNaN(v) {
			continue
		}
		p := point{val: v}
		if oi >= 0 {
			t, ok := tbl.Value(r, oi).(time.Time)
			if !ok {
				continue
			}
			p.at = t
		}
		pts = append(pts, p)
	}
	if len(pts) < 2 {
		return nil
	}
	if oi >= 0 {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].at.Before(pts[j].at) })
	}

	first, last := pts[0].val, pts[len(pts)-1].val
	tr := &Trend{Direction: "flat", OrderedBy: order}
	switch {
	case last > first:
		tr.Direction = "increasing"
	case last < first:
		tr.Direction = "decreasing"
	}
	if first != 0 {
		pct := (last - first) / math.Abs(first) * 100
		tr.PercentChange = &pct
	}
	return tr
}

func correlationOf(tbl *dataset.Table) *Correlation {
	nums := tbl.ColumnsOfType(dataset.Number)
	if len(nums) < 2 {
		return nil
	}
	xs, ys := tbl.PairedFloats(nums[0], nums[1])
	r, ok := dataset.Pearson(xs, ys)
	if !ok {
		return nil
	}
	return &Correlation{X: nums[0], Y: nums[1], Coefficient: r, Strength: correlationStrength(r)}
}

func correlationStrength(r float64) string {
	switch a := math.Abs(r); {
	case a >= 0.7:
		return "strong"
	case a >= 0.4:
		return "moderate"
	case a >= 0.2:
		return "weak"
	default:
		return "none"
	}
}
