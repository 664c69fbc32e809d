package core

import "time"

// Metrics are recorded for every agent call.
type Metrics struct {
	ExecutionSeconds float64   `json:"execution_seconds"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CacheHits        int       `json:"cache_hits"`
	CacheMisses      int       `json:"cache_misses"`
	ErrorCount       int       `json:"error_count"`
	RetryCount       int       `json:"retry_count"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
}

// AggregateMetrics accumulate Metrics across calls of one agent.
type AggregateMetrics struct {
	Calls            int     `json:"calls"`
	Successes        int     `json:"successes"`
	Failures         int     `json:"failures"`
	TotalSeconds     float64 `json:"total_seconds"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CacheHits        int     `json:"cache_hits"`
	CacheMisses      int     `json:"cache_misses"`
	Retries          int     `json:"retries"`
	Errors           int     `json:"errors"`
}

// Add folds one call into the aggregate.
func (a *AggregateMetrics) Add(m Metrics, success bool) {
	a.Calls++
	if success {
		a.Successes++
	} else {
		a.Failures++
	}
	a.TotalSeconds += m.ExecutionSeconds
	a.PromptTokens += m.PromptTokens
	a.CompletionTokens += m.CompletionTokens
	a.TotalTokens += m.TotalTokens
	a.CacheHits += m.CacheHits
	a.CacheMisses += m.CacheMisses
	a.Retries += m.RetryCount
	a.Errors += m.ErrorCount
}

// AverageSeconds returns the mean execution time, zero before the first call.
func (a AggregateMetrics) AverageSeconds() float64 {
	if a.Calls == 0 {
		return 0
	}
	return a.TotalSeconds / float64(a.Calls)
}

// SuccessRate returns successes over calls, zero before the first call.
func (a AggregateMetrics) SuccessRate() float64 {
	if a.Calls == 0 {
		return 0
	}
	return float64(a.Successes) / float64(a.Calls)
}
