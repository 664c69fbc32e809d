package testutil

import (
	"time"

	"github.com/hupe1980/insightmesh/dataset"
)

// TableBuilder provides a fluent helper for constructing tables in tests.
// Example:
//
//	tbl := NewTableBuilder().Text("name").Number("salary").Row("ann", 40000).Build()
type TableBuilder struct {
	columns []dataset.Column
	rows    [][]any
}

// NewTableBuilder creates an empty builder.
func NewTableBuilder() *TableBuilder { return &TableBuilder{} }

// Number adds a numeric column (chainable).
func (b *TableBuilder) Number(name string) *TableBuilder { return b.col(name, dataset.Number) }

// Text adds a text column (chainable).
func (b *TableBuilder) Text(name string) *TableBuilder { return b.col(name, dataset.Text) }

// Timestamp adds a timestamp column (chainable).
func (b *TableBuilder) Timestamp(name string) *TableBuilder { return b.col(name, dataset.Timestamp) }

// Bool adds a boolean column (chainable).
func (b *TableBuilder) Bool(name string) *TableBuilder { return b.col(name, dataset.Bool) }

func (b *TableBuilder) col(name string, typ dataset.Type) *TableBuilder {
	b.columns = append(b.columns, dataset.Column{Name: name, Type: typ})
	return b
}

// Row appends a row (chainable).
func (b *TableBuilder) Row(values ...any) *TableBuilder {
	b.rows = append(b.rows, values)
	return b
}

// Build returns the table, panicking on invalid input.
func (b *TableBuilder) Build() *dataset.Table { return dataset.MustNew(b.columns, b.rows) }

// Salaries is the two-row [name, salary] table.
func Salaries() *dataset.Table {
	return NewTableBuilder().Text("name").Number("salary").
		Row("ann", 40000).
		Row("bob", 60000).
		Build()
}

// Sales is a small [date, sales, region] time series.
func Sales() *dataset.Table {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	return NewTableBuilder().Timestamp("date").Number("sales").Text("region").
		Row(day(1), 100, "north").
		Row(day(2), 120, "south").
		Row(day(3), 90, "north").
		Row(day(4), 150, "east").
		Row(day(5), 170, "south").
		Build()
}

// Prices is a text column of currency strings awaiting cleaning.
func Prices() *dataset.Table {
	return NewTableBuilder().Text("price").
		Row("₹1,200").
		Row("$3.50").
		Build()
}
