// Package dataset provides the typed, in-memory tabular model shared by the
// session store, specialists and planner.
//
// A Table is an ordered list of rows over a named, typed schema. Cell values
// are normalized on construction to one of: float64, string, time.Time, bool
// or nil (missing). Tables are treated as immutable once built; every method
// returning rows or columns hands out copies so borrowers can never mutate the
// owner's view.
package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Type is the logical type of a column.
type Type string

const (
	// Number columns hold float64 values.
	Number Type = "number"
	// Text columns hold string values.
	Text Type = "text"
	// Timestamp columns hold time.Time values.
	Timestamp Type = "timestamp"
	// Bool columns hold bool values.
	Bool Type = "bool"
)

// Column describes one named, typed column.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`
}

// ErrEmptySchema is returned when a table is built without columns.
var ErrEmptySchema = errors.New("dataset: schema must not be empty")

// Table is an immutable, ordered collection of rows over a typed schema.
type Table struct {
	columns []Column
	index   map[string]int
	rows    [][]any
}

// New validates the schema and rows and returns a Table. Values are
// normalized: integer kinds become float64, NaN becomes nil.
func New(columns []Column, rows [][]any) (*Table, error) {
	if len(columns) == 0 {
		return nil, ErrEmptySchema
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("dataset: column %d has no name", i)
		}
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %q", c.Name)
		}
		switch c.Type {
		case Number, Text, Timestamp, Bool:
		default:
			return nil, fmt.Errorf("dataset: column %q has unknown type %q", c.Name, c.Type)
		}
		index[c.Name] = i
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("dataset: row %d has %d values, want %d", r, len(row), len(columns))
		}
		nr := make([]any, len(row))
		for c, v := range row {
			nv, err := normalize(v)
			if err != nil {
				return nil, fmt.Errorf("dataset: row %d column %q: %w", r, columns[c].Name, err)
			}
			nr[c] = nv
		}
		out[r] = nr
	}

	cols := make([]Column, len(columns))
	copy(cols, columns)

	return &Table{columns: cols, index: index, rows: out}, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(columns []Column, rows [][]any) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// FromRecords builds a table from keyed records using the given column order.
// Keys missing from a record become nil.
func FromRecords(columns []Column, records []map[string]any) (*Table, error) {
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for c, col := range columns {
			row[c] = rec[col.Name]
		}
		rows[i] = row
	}
	return New(columns, rows)
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsNaN(x) {
			return nil, nil
		}
		return x, nil
	case float32:
		return normalize(float64(x))
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case string, bool:
		return x, nil
	case time.Time:
		return x.UTC(), nil
	case []byte:
		return string(x), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Columns returns a copy of the schema.
func (t *Table) Columns() []Column {
	cols := make([]Column, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// ColumnNames returns the column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of a named column or -1.
func (t *Table) ColumnIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// HasColumn reports whether the schema contains name.
func (t *Table) HasColumn(name string) bool { return t.ColumnIndex(name) >= 0 }

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Width returns the number of columns.
func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.columns)
}

// IsEmpty reports whether the table is nil or has no rows.
func (t *Table) IsEmpty() bool { return t == nil || len(t.rows) == 0 }

// Row returns a copy of row i.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.rows[i]))
	copy(row, t.rows[i])
	return row
}

// Value returns the cell at (row, column index).
func (t *Table) Value(row, col int) any { return t.rows[row][col] }

// ColumnValues returns a copy of one column's values.
func (t *Table) ColumnValues(name string) ([]any, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	vals := make([]any, len(t.rows))
	for r, row := range t.rows {
		vals[r] = row[idx]
	}
	return vals, true
}

// Records returns every row as a column-keyed map.
func (t *Table) Records() []map[string]any { return t.Head(len(t.rows)) }

// Head returns the first n rows as column-keyed maps.
func (t *Table) Head(n int) []map[string]any {
	if n > len(t.rows) {
		n = len(t.rows)
	}
	out := make([]map[string]any, n)
	for r := 0; r < n; r++ {
		rec := make(map[string]any, len(t.columns))
		for c, col := range t.columns {
			rec[col.Name] = t.rows[r][c]
		}
		out[r] = rec
	}
	return out
}

// Clone returns a deep copy. time.Time and scalar values are copied by value.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	rows := make([][]any, len(t.rows))
	for i, row := range t.rows {
		nr := make([]any, len(row))
		copy(nr, row)
		rows[i] = nr
	}
	index := make(map[string]int, len(t.index))
	for k, v := range t.index {
		index[k] = v
	}
	return &Table{columns: t.Columns(), index: index, rows: rows}
}

// WithColumn returns a copy of the table with one column replaced by the
// given type and values. Used by transformations that produce new tables.
func (t *Table) WithColumn(name string, typ Type, values []any) (*Table, error) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("dataset: unknown column %q", name)
	}
	if len(values) != len(t.rows) {
		return nil, fmt.Errorf("dataset: column %q needs %d values, got %d", name, len(t.rows), len(values))
	}
	cols := t.Columns()
	cols[idx].Type = typ
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		nr := make([]any, len(row))
		copy(nr, row)
		nr[idx] = values[r]
		rows[r] = nr
	}
	return New(cols, rows)
}

// Equal reports whether two tables have the same schema and contents.
func (t *Table) Equal(other *Table) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Fingerprint() == other.Fingerprint()
}

// Fingerprint returns a stable SHA-256 digest of the schema and contents.
// Equal contents yield equal fingerprints regardless of memory identity.
// Every cell is written with a type tag, so ±Inf and the string "1" never
// collide with other values.
func (t *Table) Fingerprint() string {
	if t == nil {
		return "none"
	}
	h := sha256.New()
	buf := make([]byte, 0, 64)
	for _, c := range t.columns {
		buf = appendField(buf[:0], 'c', c.Name+"\x00"+string(c.Type))
		h.Write(buf)
	}
	for _, row := range t.rows {
		h.Write([]byte{'r'})
		for _, v := range row {
			buf = appendCell(buf[:0], v)
			h.Write(buf)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// appendCell encodes a normalized value. The set of cases matches normalize.
func appendCell(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(buf, 'n')
	case float64:
		return appendField(buf, 'f', strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		return appendField(buf, 's', x)
	case bool:
		return appendField(buf, 'b', strconv.FormatBool(x))
	case time.Time:
		return appendField(buf, 't', x.UTC().Format(time.RFC3339Nano))
	default:
		return appendField(buf, '?', fmt.Sprintf("%T:%v", v, v))
	}
}

func appendField(buf []byte, tag byte, s string) []byte {
	buf = append(buf, tag)
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, ':')
	return append(buf, s...)
}

// ColumnsOfType returns the names of all columns with the given type.
func (t *Table) ColumnsOfType(typ Type) []string {
	var names []string
	for _, c := range t.columns {
		if c.Type == typ {
			names = append(names, c.Name)
		}
	}
	return names
}

// IsMissing reports whether v counts as a missing value.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// MissingCount returns the number of missing cells in a column.
func (t *Table) MissingCount(name string) int {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return 0
	}
	n := 0
	for _, row := range t.rows {
		if IsMissing(row[idx]) {
			n++
		}
	}
	return n
}

// RowsWithMissing returns the number of rows that have at least one missing cell.
func (t *Table) RowsWithMissing() int {
	n := 0
	for _, row := range t.rows {
		for _, v := range row {
			if IsMissing(v) {
				n++
				break
			}
		}
	}
	return n
}

// Summary is the minimal basic-info view attached to failures.
type Summary struct {
	Rows    int              `json:"rows"`
	Columns []string         `json:"columns"`
	Sample  []map[string]any `json:"sample"`
}

// Summarize returns row count, column names and the first three records.
func (t *Table) Summarize() *Summary {
	if t == nil {
		return nil
	}
	return &Summary{Rows: t.Len(), Columns: t.ColumnNames(), Sample: t.Head(3)}
}
