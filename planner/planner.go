package planner

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/logging"
)

// FallbackConfidence is the confidence assigned to fallback routings.
const FallbackConfidence = 0.5

// ComplexityThreshold is the complexity above which questions are decomposed.
const ComplexityThreshold = 0.6

// SubQuery is one part of a decomposed question.
type SubQuery struct {
	ID         string   `json:"id" yaml:"id"`
	Query      string   `json:"query" yaml:"query"`
	Agent      string   `json:"agent" yaml:"agent"`
	Intent     Intent   `json:"intent" yaml:"intent"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	DependsOn  []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// Outcome is the planner's verdict for one question.
type Outcome struct {
	QueryID                  string             `json:"query_id" yaml:"query_id"`
	PrimaryAgent             string             `json:"primary_agent" yaml:"primary_agent"`
	Confidence               float64            `json:"confidence" yaml:"confidence"`
	Intent                   Intent             `json:"intent" yaml:"intent"`
	SubQueries               []SubQuery         `json:"sub_queries" yaml:"sub_queries"`
	RequiresData             bool               `json:"requires_data" yaml:"requires_data"`
	ExpectedExecutionSeconds float64            `json:"expected_execution_seconds" yaml:"expected_execution_seconds"`
	Strategy                 Strategy           `json:"strategy" yaml:"strategy"`
	Complexity               float64            `json:"complexity" yaml:"complexity"`
	Scores                   map[string]float64 `json:"scores" yaml:"scores"`
	Fallback                 bool               `json:"fallback" yaml:"fallback"`
	CreatedAt                time.Time          `json:"created_at" yaml:"created_at"`
}

// Planner classifies questions into agent labels. It is safe for
// concurrent use.
type Planner struct {
	opts   Options
	logger logging.Logger
	now    func() time.Time

	mu       sync.Mutex
	history  []RoutingRecord
	feedback []FeedbackRecord
	stats    map[string]*AgentStats
	learned  map[string][]string
}

// New creates a Planner. It returns an error for invalid options.
func New(optFns ...func(o *Options)) (*Planner, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Validate(); err != nil {
		return nil, core.NewError(core.KindValidation, "planner", "invalid options").Wrap(err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Planner{
		opts:    opts,
		logger:  opts.Logger,
		now:     time.Now,
		stats:   map[string]*AgentStats{},
		learned: map[string][]string{},
	}, nil
}

// Options returns the planner's options.
func (p *Planner) Options() Options { return p.opts }

// Plan routes query. The decision is appended to the routing history.
func (p *Planner) Plan(query string, table *dataset.Table) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := Outcome{
		QueryID:    core.NewID(),
		Strategy:   p.opts.Strategy,
		Complexity: Complexity(query),
		SubQueries: []SubQuery{},
		CreatedAt:  p.now(),
	}

	r := p.route(query, table, p.opts.Strategy == StrategyAdaptive || p.opts.WorkloadBalancing)
	out.PrimaryAgent = r.agent
	out.Confidence = r.confidence
	out.Intent = r.intent
	out.Scores = r.scores
	out.Fallback = r.fallback
	out.RequiresData = !dataFree[r.agent]
	out.ExpectedExecutionSeconds = p.expectedSeconds(r.agent)

	if p.shouldDecompose(query, out.Complexity) {
		out.SubQueries = p.decompose(query, table)
	}

	p.record(RoutingRecord{
		QueryID:    out.QueryID,
		Query:      query,
		Agent:      out.PrimaryAgent,
		Intent:     out.Intent,
		Confidence: out.Confidence,
		Strategy:   out.Strategy,
		Timestamp:  out.CreatedAt,
	})
	p.logger.Debug("query planned", "query_id", out.QueryID, "agent", out.PrimaryAgent,
		"confidence", out.Confidence, "fallback", out.Fallback)
	return out
}

type routing struct {
	agent      string
	intent     Intent
	confidence float64
	scores     map[string]float64
	fallback   bool
}

// route runs intent scoring, data adjustments, learning, balancing and the
// confidence threshold for one question. Callers hold p.mu.
func (p *Planner) route(query string, table *dataset.Table, balance bool) routing {
	raw := p.intentScores(query)
	total := 0.0
	for _, s := range raw {
		total += s
	}
	if total == 0 {
		return p.fallback(map[string]float64{})
	}

	scores := make(map[string]float64, len(raw))
	for agent, s := range raw {
		scores[agent] = s / total
	}

	if p.opts.Strategy != StrategyKeyword {
		if p.opts.ConsiderDataState && table != nil {
			applyDataAdjustments(scores, table)
		}
		if p.opts.UseLearning {
			p.applyLearning(scores, query)
		}
		if balance {
			p.applyBalancing(scores)
		}
	}
	for a, s := range scores {
		scores[a] = clamp01(round4(s))
	}

	best, bestScore := "", -1.0
	for _, a := range Agents() {
		if scores[a] > bestScore {
			best, bestScore = a, scores[a]
		}
	}
	if bestScore < p.opts.MinConfidenceThreshold {
		return p.fallback(scores)
	}
	return routing{agent: best, intent: IntentOf(best), confidence: bestScore, scores: scores}
}

func (p *Planner) fallback(scores map[string]float64) routing {
	return routing{
		agent:      p.opts.FallbackAgent,
		intent:     IntentOf(p.opts.FallbackAgent),
		confidence: FallbackConfidence,
		scores:     scores,
		fallback:   true,
	}
}

// intentScores counts keyword matches per agent.
func (p *Planner) intentScores(query string) map[string]float64 {
	q := strings.ToLower(query)
	tokens := Tokenize(q)
	scores := make(map[string]float64, len(intentTable))
	for _, rule := range intentTable {
		keywords := rule.keywords
		if p.opts.Strategy != StrategyKeyword && p.opts.UseLearning {
			keywords = append(append([]string(nil), keywords...), p.learned[rule.agent]...)
		}
		var n float64
		for _, kw := range keywords {
			var hit bool
			switch p.opts.Strategy {
			case StrategyKeyword:
				hit = phraseMatch(q, kw)
			case StrategySemantic:
				hit = prefixMatch(tokens, kw)
			default:
				hit = phraseMatch(q, kw) || prefixMatch(tokens, kw)
			}
			if hit {
				n++
			}
		}
		if n > 0 {
			scores[rule.agent] = n
		}
	}
	return scores
}

// phraseMatch reports whether kw occurs in q starting at a word boundary, so
// "where" does not match "somewhere" while "filter" still matches
// "filtering".
func phraseMatch(q, kw string) bool {
	for i := 0; i <= len(q); {
		j := strings.Index(q[i:], kw)
		if j < 0 {
			return false
		}
		j += i
		if j == 0 || !isWordByte(q[j-1]) {
			return true
		}
		i = j + 1
	}
	return false
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c >= 0x80
}

// prefixMatch reports whether every token of kw starts a token of the query.
func prefixMatch(tokens []string, kw string) bool {
	for _, kt := range strings.Fields(kw) {
		found := false
		for _, t := range tokens {
			if strings.HasPrefix(t, kt) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Data shape adjustments.
const (
	wideColumns      = 20
	largeRows        = 10000
	tinyRows         = 5
	missingShare     = 0.1
	wideSQLBoost     = 0.05
	largeBoost       = 0.1
	timeSeriesBoost  = 0.1
	categoricalBoost = 0.1
	missingBoost     = 0.15
	tinyPenalty      = 0.1
)

func applyDataAdjustments(scores map[string]float64, t *dataset.Table) {
	numeric := len(t.ColumnsOfType(dataset.Number)) > 0
	temporal := len(t.ColumnsOfType(dataset.Timestamp)) > 0
	categorical := len(t.ColumnsOfType(dataset.Text)) > 0 || len(t.ColumnsOfType(dataset.Bool)) > 0

	if t.Width() > wideColumns {
		scores[core.LabelSQL] += wideSQLBoost
	}
	if t.Len() > largeRows {
		scores[core.LabelSQL] += largeBoost
		scores[core.LabelData] += largeBoost
	}
	if temporal && numeric {
		scores[core.LabelChart] += timeSeriesBoost
		scores[core.LabelInsight] += timeSeriesBoost
	}
	if categorical && numeric {
		scores[core.LabelChart] += categoricalBoost
	}
	if t.Len() > 0 && float64(t.RowsWithMissing())/float64(t.Len()) > missingShare {
		scores[core.LabelDataCleaner] += missingBoost
	}
	if t.Len() < tinyRows {
		scores[core.LabelChart] -= tinyPenalty
		scores[core.LabelSQL] -= tinyPenalty
	}
}

// Complexity scores how compound a question is, in [0,1].
func Complexity(query string) float64 {
	c := 0.2 * float64(strings.Count(query, "?"))
	tokens := Tokenize(strings.ToLower(query))
	for _, t := range tokens {
		if _, ok := conjunctions[t]; ok {
			c += 0.3
			break
		}
	}
	if len(tokens) > 15 {
		c += 0.3
	}
	return math.Min(1, round4(c))
}

var conjunctions = map[string]struct{}{"and": {}, "or": {}, "but": {}, "then": {}, "also": {}}

var splitter = regexp.MustCompile(`(?i)\s+(?:and\s+then|and|then)\s+`)

func (p *Planner) shouldDecompose(query string, complexity float64) bool {
	if p.opts.Strategy == StrategyHierarchical {
		return len(splitParts(query)) > 1 || complexity > ComplexityThreshold
	}
	return p.opts.DecomposeComplexQueries && complexity > ComplexityThreshold
}

func splitParts(query string) []string {
	var parts []string
	for _, part := range splitter.Split(query, -1) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// decompose splits query into parts routed independently, each depending on
// its predecessor. Callers hold p.mu.
func (p *Planner) decompose(query string, table *dataset.Table) []SubQuery {
	parts := splitParts(query)
	if len(parts) == 0 {
		parts = []string{query}
	}
	subs := make([]SubQuery, len(parts))
	for i, part := range parts {
		r := p.route(part, table, false)
		subs[i] = SubQuery{
			ID:         fmt.Sprintf("sq%d", i+1),
			Query:      part,
			Agent:      r.agent,
			Intent:     r.intent,
			Confidence: r.confidence,
		}
		if i > 0 {
			subs[i].DependsOn = []string{subs[i-1].ID}
		}
	}
	return subs
}

func (p *Planner) expectedSeconds(agent string) float64 {
	if st, ok := p.stats[agent]; ok && st.Calls > 0 && st.AvgSeconds > 0 {
		return round4(st.AvgSeconds)
	}
	if d, ok := defaultDuration[agent]; ok {
		return d
	}
	return 5
}

var tokenPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Tokenize returns the lowercase word tokens of s in order.
func Tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

func tokenSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

// Jaccard returns the token overlap of two strings.
func Jaccard(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(sa)+len(sb)-inter)
}

func clamp01(f float64) float64 { return math.Max(0, math.Min(1, f)) }

func round4(f float64) float64 { return math.Round(f*10000) / 10000 }

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
