package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/sqlengine"
)

const sqlInstruction = `You are a SQL analyst. Translate the user's question into a single SQLite SELECT statement.
The data is stored in a table named %s with the columns: {{.schema}}.
Use only these columns. Return only the SQL statement without explanation.`

// SQLOutput is the output of the SQL specialist.
type SQLOutput struct {
	SQLQuery string           `json:"sql_query"`
	Result   []map[string]any `json:"result"`
	RowCount int              `json:"row_count"`
	Columns  []string         `json:"columns"`
}

// SQL turns a question into SQL, runs it against the table registered as
// "df" and returns the rows.
type SQL struct {
	*agent.Agent
	instruction agent.Instruction
	engine      EngineFactory
}

// NewSQL creates the SQL specialist.
func NewSQL(optFns ...func(o *Options)) *SQL {
	opts := newOptions(optFns)
	s := &SQL{
		instruction: opts.instruction(fmt.Sprintf(sqlInstruction, sqlengine.DefaultTableName)),
		engine:      opts.Engine,
	}
	s.Agent = agent.New(core.LabelSQL, "Translates questions into SQL and executes them", s, opts.agentOptions())
	return s
}

// Execute implements agent.Executor.
func (s *SQL) Execute(ctx context.Context, call *agent.Call) (any, error) {
	if err := call.RequireTable(); err != nil {
		return nil, err
	}
	system, err := s.instruction.Resolve(call)
	if err != nil {
		return nil, core.NewError(core.KindValidation, core.LabelSQL, "render instruction").Wrap(err)
	}

	text, err := call.Complete(ctx, system, "Question: "+call.Query)
	if err != nil {
		return nil, completionError(core.LabelSQL, err)
	}
	stmt := sqlengine.FirstStatement(text)
	if stmt == "" {
		return nil, core.NewError(core.KindGenerationFailed, core.LabelSQL, "model returned no SQL")
	}
	if !sqlengine.IsReadOnly(stmt) {
		if !looksLikeSQL(stmt) {
			return nil, core.NewError(core.KindGenerationFailed, core.LabelSQL, "model returned no SQL").
				WithDetail("completion", text)
		}
		return nil, core.NewError(core.KindExecutionFailed, core.LabelSQL, "only SELECT statements are allowed").
			WithDetail("sql", stmt)
	}
	call.Logger.Debug("generated sql", "sql", stmt)

	eng, err := s.engine(ctx, call.Table)
	if err != nil {
		return nil, core.NewError(core.KindExecutionFailed, core.LabelSQL, "load table").Wrap(err)
	}
	defer func() { _ = eng.Close() }()

	res, err := eng.Query(ctx, stmt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewError(core.KindExecutionFailed, core.LabelSQL, "query failed").
			WithDetail("sql", stmt).
			WithDetail("engine_error", err.Error()).
			Wrap(err)
	}

	return &SQLOutput{
		SQLQuery: stmt,
		Result:   res.Records(),
		RowCount: res.Len(),
		Columns:  res.ColumnNames(),
	}, nil
}

var sqlVerbs = []string{"select", "with", "insert", "update", "delete", "drop", "alter", "create", "replace", "pragma", "attach"}

func looksLikeSQL(stmt string) bool {
	fields := strings.Fields(strings.ToLower(stmt))
	if len(fields) == 0 {
		return false
	}
	for _, v := range sqlVerbs {
		if fields[0] == v {
			return true
		}
	}
	return false
}
