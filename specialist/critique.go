package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/util"
	"github.com/hupe1980/insightmesh/sqlengine"
)

// KwargCandidate is the kwarg carrying the *core.Result under review.
const KwargCandidate = "candidate"

const critiqueInstruction = `You are a critical reviewer of data analysis answers.
The dataset has the columns: {{.schema}}.
Check whether the answer addresses the question, uses only existing columns and is plausible for the data.
Respond with a JSON object matching this schema:
%s`

type critiqueVerdict struct {
	Confidence        string   `json:"confidence" enum:"high|medium|low" description:"How trustworthy the answer is"`
	Flagged           bool     `json:"flagged,omitempty" description:"Whether the answer should be shown with a warning"`
	Issues            []string `json:"issues,omitempty" description:"Concrete problems found"`
	Advice            string   `json:"advice,omitempty" description:"How to improve the answer"`
	ReferencedColumns []string `json:"referenced_columns,omitempty" description:"Columns the answer relies on"`
}

var (
	columnAfter  = regexp.MustCompile("(?i)\\bcolumns?\\s+[\"'`]?([A-Za-z_][A-Za-z0-9_]*)")
	columnBefore = regexp.MustCompile("(?i)[\"'`]?([A-Za-z_][A-Za-z0-9_]*)[\"'`]?\\s+columns?\\b")
	noSuchColumn = regexp.MustCompile(`(?i)no such column:\s*["'\x60]?([A-Za-z_][A-Za-z0-9_.]*)`)
	// aggregateOf captures the noun after an aggregate word, as in
	// "the average bonus" or "total of the sales".
	aggregateOf = regexp.MustCompile(`(?i)\b(?:average|avg|mean|sum|total|median|max|maximum|min|minimum)\s+(?:of\s+)?(?:the\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
)

// aggregateStopwords follow an aggregate word without naming a column.
var aggregateStopwords = map[string]struct{}{
	"row": {}, "rows": {}, "record": {}, "records": {}, "value": {}, "values": {}, "entry": {},
	"entries": {}, "item": {}, "items": {}, "data": {}, "dataset": {}, "table": {}, "amount": {},
	"count": {}, "across": {}, "over": {}, "between": {}, "everything": {}, "at": {}, "on": {},
	"it": {}, "them": {}, "column": {}, "columns": {},
}

// columnStopwords are words that precede or follow "column" without naming one.
var columnStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "these": {}, "those": {}, "each": {}, "every": {},
	"which": {}, "what": {}, "any": {}, "all": {}, "new": {}, "same": {}, "one": {}, "two": {}, "other": {},
	"numeric": {}, "number": {}, "text": {}, "date": {}, "first": {}, "second": {}, "last": {}, "next": {},
	"following": {}, "missing": {}, "given": {}, "specified": {}, "your": {}, "its": {}, "their": {},
	"my": {}, "our": {}, "some": {}, "single": {}, "multiple": {}, "named": {}, "called": {}, "of": {},
	"in": {}, "by": {}, "for": {}, "and": {}, "or": {}, "to": {}, "from": {}, "with": {}, "is": {},
	"are": {}, "was": {}, "names": {}, "name_of": {}, "per": {}, "existing": {}, "available": {},
}

// Critique reviews a candidate answer. The model verdict is parsed leniently
// and merged with deterministic checks; parse failures never surface as
// errors.
type Critique struct {
	*agent.Agent
	instruction agent.Instruction
}

// NewCritique creates the Critique specialist.
func NewCritique(optFns ...func(o *Options)) *Critique {
	opts := newOptions(optFns)
	s := &Critique{
		instruction: opts.instruction(fmt.Sprintf(critiqueInstruction, util.SchemaJSON(critiqueVerdict{}))),
	}
	s.Agent = agent.New(core.LabelCritique, "Reviews answers for correctness and grounding", s, opts.agentOptions())
	return s
}

// Execute implements agent.Executor.
func (s *Critique) Execute(ctx context.Context, call *agent.Call) (any, error) {
	if err := call.RequireTable(); err != nil {
		return nil, err
	}
	candidate, _ := call.Kwargs[KwargCandidate].(*core.Result)
	answer := answerText(candidate)

	verdict := critiqueVerdict{Confidence: string(core.ConfidenceMedium)}
	system, err := s.instruction.Resolve(call)
	if err != nil {
		return nil, core.NewError(core.KindValidation, core.LabelCritique, "render instruction").Wrap(err)
	}
	prompt := fmt.Sprintf("Question: %s\n\nAnswer:\n%s", call.Query, answer)
	text, err := call.Complete(ctx, system, prompt)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		call.Logger.Warn("critique model call failed, using deterministic checks", "error", err)
	default:
		if perr := util.DecodeInto(text, &verdict); perr != nil {
			call.Logger.Debug("critique verdict not parseable, using default", "error", perr)
			verdict = critiqueVerdict{Confidence: string(core.ConfidenceMedium)}
		}
	}

	c := &core.Critique{
		Confidence: normalizeConfidence(verdict.Confidence),
		Flagged:    verdict.Flagged,
		Issues:     append([]string(nil), verdict.Issues...),
		Advice:     verdict.Advice,
	}

	columns := call.Table.ColumnNames()
	mentioned := append(mentionedColumns(call.Query), mentionedColumns(answer)...)
	mentioned = append(mentioned, sqlMissingColumns(candidate)...)
	mentioned = append(mentioned, sqlReferencedColumns(candidate)...)
	mentioned = append(mentioned, verdict.ReferencedColumns...)
	missing := MissingColumns(mentioned, columns)
	for _, term := range append(aggregateTerms(call.Query), aggregateTerms(answer)...) {
		if !matchesColumn(term, columns) {
			missing = append(missing, term)
		}
	}
	missing = MissingColumns(missing, nil)

	var deterministic []string
	if len(missing) > 0 {
		for _, m := range missing {
			deterministic = append(deterministic, "missing column: "+m)
		}
		c.Advice = fmt.Sprintf("Refer only to existing columns: %s.", strings.Join(columns, ", "))
	}
	switch {
	case candidate != nil && !candidate.Success:
		deterministic = append(deterministic, fmt.Sprintf("candidate failed: %s", candidate.ErrorKind))
	case candidate == nil || candidate.Output == nil:
		deterministic = append(deterministic, "empty answer")
	}
	if len(deterministic) > 0 {
		c.Confidence = core.ConfidenceLow
		c.Flagged = true
		if c.Advice == "" {
			c.Advice = "Rephrase the question and try again."
		}
	}
	c.Issues = mergeIssues(c.Issues, deterministic)
	if c.Issues == nil {
		c.Issues = []string{}
	}
	return c, nil
}

func normalizeConfidence(s string) core.Confidence {
	switch core.Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case core.ConfidenceHigh:
		return core.ConfidenceHigh
	case core.ConfidenceLow:
		return core.ConfidenceLow
	default:
		return core.ConfidenceMedium
	}
}

func answerText(r *core.Result) string {
	if r == nil {
		return "(no answer)"
	}
	if !r.Success {
		return fmt.Sprintf("The %s agent failed: %s", r.Agent, r.Error)
	}
	b, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Sprint(r.Output)
	}
	return string(b)
}

// mentionedColumns returns identifiers written as "column X" or "X column".
func mentionedColumns(text string) []string {
	var out []string
	for _, re := range []*regexp.Regexp{columnAfter, columnBefore} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if _, stop := columnStopwords[strings.ToLower(m[1])]; stop {
				continue
			}
			out = append(out, m[1])
		}
	}
	return out
}

// aggregateTerms returns the nouns aggregated in text, such as "bonus" in
// "the average bonus is 5000".
func aggregateTerms(text string) []string {
	var out []string
	for _, m := range aggregateOf.FindAllStringSubmatch(text, -1) {
		term := strings.ToLower(m[1])
		if _, stop := columnStopwords[term]; stop {
			continue
		}
		if _, stop := aggregateStopwords[term]; stop {
			continue
		}
		out = append(out, m[1])
	}
	return out
}

// matchesColumn reports whether a free-text term plausibly names one of
// columns: equal up to case and a plural suffix, or one of the underscore
// separated parts of a column name.
func matchesColumn(term string, columns []string) bool {
	t := singular(strings.ToLower(term))
	for _, c := range columns {
		c = strings.ToLower(c)
		if singular(c) == t {
			return true
		}
		for _, part := range strings.FieldsFunc(c, func(r rune) bool { return r == '_' || r == ' ' }) {
			if singular(part) == t {
				return true
			}
		}
	}
	return false
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies") && len(s) > 4:
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses") && len(s) > 4:
		return s[:len(s)-2]
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss") && len(s) > 3:
		return s[:len(s)-1]
	}
	return s
}

// sqlReferencedColumns returns the columns read by the candidate's SQL when
// it ran. SQLite treats an unknown double quoted identifier as a string, so
// such a query can succeed while naming a column that does not exist.
func sqlReferencedColumns(r *core.Result) []string {
	if r == nil || !r.Success {
		return nil
	}
	out, ok := r.Output.(*SQLOutput)
	if !ok || out == nil {
		return nil
	}
	return sqlengine.ColumnReferences(out.SQLQuery)
}

// sqlMissingColumns reports the identifiers the engine rejected while
// running the candidate's SQL.
func sqlMissingColumns(r *core.Result) []string {
	if r == nil || r.ErrorDetail == nil {
		return nil
	}
	msg, _ := r.ErrorDetail["engine_error"].(string)
	var out []string
	for _, m := range noSuchColumn.FindAllStringSubmatch(msg, -1) {
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		out = append(out, name)
	}
	return out
}

// MissingColumns returns the names not present in columns, compared case
// insensitively, deduplicated and sorted.
func MissingColumns(names, columns []string) []string {
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[strings.ToLower(c)] = struct{}{}
	}
	seen := map[string]struct{}{}
	var missing []string
	for _, n := range names {
		key := strings.ToLower(n)
		if key == "" {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		missing = append(missing, n)
	}
	sort.Strings(missing)
	return missing
}

func mergeIssues(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
