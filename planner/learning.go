package planner

import (
	"sort"
	"strings"
	"time"
)

// Learning and balancing constants.
const (
	similarityThreshold = 0.3
	similarNeighbors    = 5
	learningRate        = 0.2
	maxLearnedTerms     = 5
	maxLearnedKeywords  = 50
	balanceSpread       = 3
	balanceDampen       = 0.9
	balanceLift         = 1.1
)

// RoutingRecord is one routing decision. Success and ActualAgent are filled
// in when feedback arrives.
type RoutingRecord struct {
	QueryID     string    `json:"query_id" yaml:"query_id"`
	Query       string    `json:"query" yaml:"query"`
	Agent       string    `json:"agent" yaml:"agent"`
	Intent      Intent    `json:"intent" yaml:"intent"`
	Confidence  float64   `json:"confidence" yaml:"confidence"`
	Strategy    Strategy  `json:"strategy" yaml:"strategy"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Success     *bool     `json:"success,omitempty" yaml:"success,omitempty"`
	ActualAgent string    `json:"actual_agent,omitempty" yaml:"actual_agent,omitempty"`
}

// Feedback reports how a routed query went.
type Feedback struct {
	// QueryID addresses a specific decision. Empty attaches the feedback to
	// the newest decision for RoutedAgent that has none yet.
	QueryID          string
	RoutedAgent      string
	Success          bool
	ActualAgent      string
	ExecutionSeconds float64
	Error            string
}

// FeedbackRecord is a stored Feedback.
type FeedbackRecord struct {
	QueryID          string    `json:"query_id,omitempty" yaml:"query_id,omitempty"`
	Query            string    `json:"query,omitempty" yaml:"query,omitempty"`
	RoutedAgent      string    `json:"routed_agent" yaml:"routed_agent"`
	ActualAgent      string    `json:"actual_agent,omitempty" yaml:"actual_agent,omitempty"`
	Success          bool      `json:"success" yaml:"success"`
	ExecutionSeconds float64   `json:"execution_seconds" yaml:"execution_seconds"`
	Error            string    `json:"error,omitempty" yaml:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
}

// AgentStats is the running performance of an agent.
type AgentStats struct {
	Calls       int     `json:"calls"`
	SuccessRate float64 `json:"success_rate"`
	AvgSeconds  float64 `json:"avg_seconds"`
}

// AddFeedback records the outcome of a routed query, updating the agent's
// running success rate and, when a corrective label is supplied, learning
// keywords for it.
func (p *Planner) AddFeedback(fb Feedback) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := FeedbackRecord{
		QueryID:          fb.QueryID,
		RoutedAgent:      fb.RoutedAgent,
		ActualAgent:      fb.ActualAgent,
		Success:          fb.Success,
		ExecutionSeconds: fb.ExecutionSeconds,
		Error:            fb.Error,
		Timestamp:        p.now(),
	}
	if i := p.pendingDecision(fb.QueryID, fb.RoutedAgent); i >= 0 {
		d := &p.history[i]
		success := fb.Success
		d.Success = &success
		d.ActualAgent = fb.ActualAgent
		rec.QueryID = d.QueryID
		rec.Query = d.Query
	}
	p.applyFeedback(rec)

	p.feedback = append(p.feedback, rec)
	if over := len(p.feedback) - p.opts.MaxPlanHistory; over > 0 {
		p.feedback = append([]FeedbackRecord(nil), p.feedback[over:]...)
	}
}

func (p *Planner) applyFeedback(rec FeedbackRecord) {
	st, ok := p.stats[rec.RoutedAgent]
	if !ok {
		st = &AgentStats{}
		p.stats[rec.RoutedAgent] = st
	}
	s := 0.0
	if rec.Success {
		s = 1
	}
	n := float64(st.Calls)
	st.SuccessRate = (st.SuccessRate*n + s) / (n + 1)
	st.AvgSeconds = (st.AvgSeconds*n + rec.ExecutionSeconds) / (n + 1)
	st.Calls++

	if rec.ActualAgent != "" && rec.ActualAgent != rec.RoutedAgent && rec.Query != "" {
		p.learnKeywords(rec.ActualAgent, rec.Query)
	}
}

// pendingDecision locates the routing record feedback applies to.
func (p *Planner) pendingDecision(queryID, agent string) int {
	for i := len(p.history) - 1; i >= 0; i-- {
		d := p.history[i]
		if queryID != "" {
			if d.QueryID == queryID {
				return i
			}
			continue
		}
		if d.Agent == agent && d.Success == nil {
			return i
		}
	}
	return -1
}

var stopwords = map[string]struct{}{
	"what": {}, "which": {}, "when": {}, "where": {}, "show": {}, "give": {}, "tell": {}, "about": {},
	"with": {}, "from": {}, "into": {}, "that": {}, "this": {}, "there": {}, "their": {}, "have": {},
	"does": {}, "data": {}, "please": {}, "would": {}, "could": {}, "should": {}, "them": {}, "then": {},
	"than": {}, "each": {}, "every": {}, "some": {}, "more": {}, "most": {}, "over": {}, "your": {},
}

// learnKeywords adds salient terms of query to agent's learned keywords.
func (p *Planner) learnKeywords(agent, query string) {
	known := map[string]struct{}{}
	for _, kw := range Keywords(IntentOf(agent)) {
		known[kw] = struct{}{}
	}
	for _, kw := range p.learned[agent] {
		known[kw] = struct{}{}
	}
	added := 0
	for _, t := range Tokenize(query) {
		if added == maxLearnedTerms {
			break
		}
		if len(t) < 4 || isNumber(t) {
			continue
		}
		if _, ok := stopwords[t]; ok {
			continue
		}
		if _, ok := known[t]; ok {
			continue
		}
		known[t] = struct{}{}
		p.learned[agent] = append(p.learned[agent], t)
		added++
	}
	if over := len(p.learned[agent]) - maxLearnedKeywords; over > 0 {
		p.learned[agent] = p.learned[agent][over:]
	}
}

func isNumber(s string) bool {
	return strings.Trim(s, "0123456789") == ""
}

// applyLearning shifts scores toward agents that served similar questions
// well and away from those that did not.
func (p *Planner) applyLearning(scores map[string]float64, query string) {
	type neighbor struct {
		idx int
		sim float64
	}
	var near []neighbor
	for i, d := range p.history {
		if d.Success == nil {
			continue
		}
		if sim := Jaccard(query, d.Query); sim >= similarityThreshold {
			near = append(near, neighbor{i, sim})
		}
	}
	sort.SliceStable(near, func(a, b int) bool {
		if near[a].sim != near[b].sim {
			return near[a].sim > near[b].sim
		}
		return near[a].idx > near[b].idx
	})
	if len(near) > similarNeighbors {
		near = near[:similarNeighbors]
	}
	for _, n := range near {
		d := p.history[n.idx]
		delta := learningRate * n.sim
		if *d.Success {
			scores[d.Agent] += delta
		} else {
			scores[d.Agent] -= delta
		}
		if d.ActualAgent != "" && d.ActualAgent != d.Agent {
			scores[d.ActualAgent] += delta
		}
	}
}

// applyBalancing dampens busy agents and lifts idle ones when the call
// counts in the routing history are spread apart.
func (p *Planner) applyBalancing(scores map[string]float64) {
	counts := map[string]int{}
	for _, d := range p.history {
		counts[d.Agent]++
	}
	var candidates []string
	for _, a := range sortedKeys(scores) {
		if scores[a] > 0 {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) < 2 {
		return
	}
	lo, hi := counts[candidates[0]], counts[candidates[0]]
	for _, a := range candidates[1:] {
		lo = min(lo, counts[a])
		hi = max(hi, counts[a])
	}
	if hi-lo <= balanceSpread {
		return
	}
	for _, a := range candidates {
		c := float64(counts[a])
		switch {
		case c > 0.8*float64(hi):
			scores[a] *= balanceDampen
		case c < 1.2*float64(lo):
			scores[a] *= balanceLift
		}
	}
}

// record appends a routing decision, keeping at most MaxPlanHistory.
// Callers hold p.mu.
func (p *Planner) record(r RoutingRecord) {
	p.history = append(p.history, r)
	if over := len(p.history) - p.opts.MaxPlanHistory; over > 0 {
		p.history = append([]RoutingRecord(nil), p.history[over:]...)
	}
}

// History returns a copy of the routing history, oldest first.
func (p *Planner) History() []RoutingRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RoutingRecord, len(p.history))
	for i, r := range p.history {
		if r.Success != nil {
			s := *r.Success
			r.Success = &s
		}
		out[i] = r
	}
	return out
}

// FeedbackHistory returns a copy of the feedback history, oldest first.
func (p *Planner) FeedbackHistory() []FeedbackRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]FeedbackRecord(nil), p.feedback...)
}

// Stats returns a copy of the per-agent performance statistics.
func (p *Planner) Stats() map[string]AgentStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]AgentStats, len(p.stats))
	for k, v := range p.stats {
		out[k] = *v
	}
	return out
}

// LearnedKeywords returns a copy of the keywords learned for agent.
func (p *Planner) LearnedKeywords(agent string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.learned[agent]...)
}
