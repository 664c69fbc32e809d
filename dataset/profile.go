package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ColumnProfile holds summary statistics for one column. Numeric fields are
// populated only for Number columns; Top/Unique only for Text and Bool.
type ColumnProfile struct {
	Name    string     `json:"name"`
	Type    Type       `json:"type"`
	Count   int        `json:"count"`
	Missing int        `json:"missing"`
	Unique  int        `json:"unique,omitempty"`
	Top     string     `json:"top,omitempty"`
	Mean    *float64   `json:"mean,omitempty"`
	Median  *float64   `json:"median,omitempty"`
	Std     *float64   `json:"std,omitempty"`
	Min     *float64   `json:"min,omitempty"`
	Max     *float64   `json:"max,omitempty"`
	First   *time.Time `json:"first,omitempty"`
	Last    *time.Time `json:"last,omitempty"`
}

// Profile describes the shape and per-column statistics of a table.
type Profile struct {
	Rows            int             `json:"rows"`
	Width           int             `json:"width"`
	Columns         []ColumnProfile `json:"columns"`
	RowsWithMissing int             `json:"rows_with_missing"`
}

// Profile computes the data profile of the table.
func (t *Table) Profile() Profile {
	p := Profile{Rows: t.Len(), Width: t.Width(), RowsWithMissing: t.RowsWithMissing()}
	for _, col := range t.columns {
		vals, _ := t.ColumnValues(col.Name)
		cp := ColumnProfile{Name: col.Name, Type: col.Type}
		for _, v := range vals {
			if IsMissing(v) {
				cp.Missing++
			}
		}
		cp.Count = len(vals) - cp.Missing

		switch col.Type {
		case Number:
			nums := Floats(vals)
			if len(nums) > 0 {
				s := Describe(nums)
				cp.Mean, cp.Median, cp.Std, cp.Min, cp.Max = &s.Mean, &s.Median, &s.Std, &s.Min, &s.Max
			}
		case Timestamp:
			var first, last time.Time
			for _, v := range vals {
				ts, ok := v.(time.Time)
				if !ok {
					continue
				}
				if first.IsZero() || ts.Before(first) {
					first = ts
				}
				if last.IsZero() || ts.After(last) {
					last = ts
				}
			}
			if !first.IsZero() {
				cp.First, cp.Last = &first, &last
			}
		default:
			cp.Unique, cp.Top = topValue(vals)
		}
		p.Columns = append(p.Columns, cp)
	}
	return p
}

func topValue(vals []any) (int, string) {
	counts := map[string]int{}
	for _, v := range vals {
		if IsMissing(v) {
			continue
		}
		counts[fmt.Sprint(v)]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	top, best := "", 0
	for _, k := range keys {
		if counts[k] > best {
			top, best = k, counts[k]
		}
	}
	return len(counts), top
}

// Stats is a five-number style summary of a numeric sample.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Floats extracts the non-missing float64 values from vals.
func Floats(vals []any) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if f, ok := v.(float64); ok && !math.IsNaN(f) {
			out = append(out, f)
		}
	}
	return out
}

// Describe summarizes a non-empty sample. Std is the sample standard
// deviation (n-1), zero for a single value.
func Describe(xs []float64) Stats {
	s := Stats{Count: len(xs)}
	if len(xs) == 0 {
		return s
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	s.Min, s.Max = sorted[0], sorted[len(sorted)-1]

	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	s.Mean = sum / float64(len(xs))

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		s.Median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		s.Median = sorted[mid]
	}

	if len(xs) > 1 {
		ss := 0.0
		for _, x := range xs {
			ss += (x - s.Mean) * (x - s.Mean)
		}
		s.Std = math.Sqrt(ss / float64(len(xs)-1))
	}
	return s
}

// Pearson returns the correlation coefficient of paired samples. ok is false
// when fewer than two pairs exist or either side has zero variance.
func Pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n < 2 {
		return 0, false
	}
	var mx, my float64
	for i := 0; i < n; i++ {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

// PairedFloats returns the rows where both columns hold numbers.
func (t *Table) PairedFloats(a, b string) ([]float64, []float64) {
	ia, ib := t.ColumnIndex(a), t.ColumnIndex(b)
	if ia < 0 || ib < 0 {
		return nil, nil
	}
	var xs, ys []float64
	for _, row := range t.rows {
		x, okx := row[ia].(float64)
		y, oky := row[ib].(float64)
		if okx && oky {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return xs, ys
}
