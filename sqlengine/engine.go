// Package sqlengine executes read-only SQL against a dataset.Table by loading
// it into a private in-memory SQLite database.
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/logging"
)

// DefaultTableName is the name the loaded table is registered under.
const DefaultTableName = "df"

// Options configures an Engine.
type Options struct {
	// TableName is the SQL name of the loaded table.
	TableName string
	// MaxRows caps the result size; zero means unlimited.
	MaxRows int
	Logger  logging.Logger
}

// Engine owns one in-memory SQLite database holding a single table. An
// Engine is not shared between sessions.
type Engine struct {
	db     *sql.DB
	source *dataset.Table
	opts   Options
}

// Open creates a database, loads table into it and switches the connection
// to query-only mode.
func Open(ctx context.Context, table *dataset.Table, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{TableName: DefaultTableName, MaxRows: 10000, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if table == nil || table.Width() == 0 {
		return nil, core.NewError(core.KindValidation, "sqlengine", "no table to load")
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, core.NewError(core.KindResource, "sqlengine", "open database").Wrap(err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	e := &Engine{db: db, source: table, opts: opts}
	if err := e.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA query_only = ON;`); err != nil {
		_ = db.Close()
		return nil, core.NewError(core.KindResource, "sqlengine", "enable query_only").Wrap(err)
	}
	return e, nil
}

func (e *Engine) load(ctx context.Context) error {
	cols := e.source.Columns()
	defs := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("%s %s", QuoteIdent(c.Name), sqlType(c.Type))
		marks[i] = "?"
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewError(core.KindResource, "sqlengine", "begin load").Wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	create := fmt.Sprintf("CREATE TABLE %s (%s);", QuoteIdent(e.opts.TableName), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return core.NewError(core.KindExecutionFailed, "sqlengine", "create table").Wrap(err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s);",
		QuoteIdent(e.opts.TableName), strings.Join(marks, ", ")))
	if err != nil {
		return core.NewError(core.KindExecutionFailed, "sqlengine", "prepare insert").Wrap(err)
	}
	defer stmt.Close()

	for i := 0; i < e.source.Len(); i++ {
		row := e.source.Row(i)
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = toSQLValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return core.NewError(core.KindExecutionFailed, "sqlengine", "insert row").Wrap(err)
		}
	}
	return tx.Commit()
}

// TableName returns the SQL name of the loaded table.
func (e *Engine) TableName() string { return e.opts.TableName }

// Query runs a single SELECT (or WITH ... SELECT) statement and returns the
// result as a table. Column types are inferred from the source schema when a
// result column keeps its source name, otherwise from the returned values.
func (e *Engine) Query(ctx context.Context, query string) (*dataset.Table, error) {
	stmt := FirstStatement(query)
	if !IsReadOnly(stmt) {
		return nil, core.NewError(core.KindValidation, "sqlengine", "only SELECT statements are allowed").
			WithDetail("sql", stmt)
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, executionError(stmt, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, executionError(stmt, err)
	}

	var data [][]any
	for rows.Next() {
		if e.opts.MaxRows > 0 && len(data) >= e.opts.MaxRows {
			break
		}
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, executionError(stmt, err)
		}
		data = append(data, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, executionError(stmt, err)
	}

	cols := make([]dataset.Column, len(names))
	for i, name := range names {
		cols[i] = dataset.Column{Name: uniqueName(name, i, names), Type: e.inferType(name, i, data)}
	}
	for _, row := range data {
		for i, v := range row {
			row[i] = fromSQLValue(v, cols[i].Type)
		}
	}

	out, err := dataset.New(cols, data)
	if err != nil {
		return nil, executionError(stmt, err)
	}
	e.opts.Logger.Debug("sql executed", "rows", out.Len(), "duration", time.Since(start))
	return out, nil
}

// Close releases the database.
func (e *Engine) Close() error { return e.db.Close() }

// Run is Open, Query and Close in one call.
func Run(ctx context.Context, table *dataset.Table, query string, optFns ...func(o *Options)) (*dataset.Table, error) {
	e, err := Open(ctx, table, optFns...)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.Query(ctx, query)
}

// inferType keeps the source column's type for a result column of the same
// name as long as every value converts to it. Derived columns that reuse a
// source name, such as strftime('%Y-%m', date) AS date, fall back to the
// type of their values.
func (e *Engine) inferType(name string, idx int, data [][]any) dataset.Type {
	if i := e.source.ColumnIndex(name); i >= 0 {
		typ := e.source.Columns()[i].Type
		if convertsAll(data, idx, typ) {
			return typ
		}
	}
	for _, row := range data {
		switch row[idx].(type) {
		case nil:
			continue
		case int64, float64:
			return dataset.Number
		case bool:
			return dataset.Bool
		default:
			return dataset.Text
		}
	}
	return dataset.Text
}

func convertsAll(data [][]any, idx int, typ dataset.Type) bool {
	for _, row := range data {
		if _, ok := convertSQLValue(row[idx], typ); !ok {
			return false
		}
	}
	return true
}

func executionError(stmt string, err error) error {
	return core.NewError(core.KindExecutionFailed, "sqlengine", err.Error()).
		WithDetail("sql", stmt).
		Wrap(err)
}

func uniqueName(name string, idx int, names []string) string {
	for j := 0; j < idx; j++ {
		if names[j] == name {
			return fmt.Sprintf("%s_%d", name, idx)
		}
	}
	return name
}

func sqlType(t dataset.Type) string {
	switch t {
	case dataset.Number:
		return "REAL"
	case dataset.Bool:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func toSQLValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func fromSQLValue(v any, typ dataset.Type) any {
	out, _ := convertSQLValue(v, typ)
	return out
}

// convertSQLValue converts a scanned value to typ. It reports false when v
// has no natural representation in typ.
func convertSQLValue(v any, typ dataset.Type) (any, bool) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil, true
	}
	switch typ {
	case dataset.Timestamp:
		switch x := v.(type) {
		case string:
			ts, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, false
			}
			return ts, true
		case time.Time:
			return x, true
		}
		return nil, false
	case dataset.Bool:
		switch x := v.(type) {
		case int64:
			return x != 0, true
		case float64:
			return x != 0, true
		case bool:
			return x, true
		}
		return nil, false
	case dataset.Number:
		switch x := v.(type) {
		case int64, float64:
			return x, true
		case string:
			var f float64
			if _, err := fmt.Sscan(x, &f); err != nil {
				return nil, false
			}
			return f, true
		}
		return nil, false
	default:
		switch x := v.(type) {
		case int64, float64, bool:
			// Text columns store strings, so a number here was computed.
			return fmt.Sprint(x), false
		case time.Time:
			return x.Format(time.RFC3339Nano), true
		}
		return v, true
	}
}
