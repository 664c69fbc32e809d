package core

import (
	"time"

	"github.com/hupe1980/insightmesh/dataset"
)

// CacheInfo annotates a result that was served from an agent cache.
type CacheInfo struct {
	Hit        bool      `json:"hit"`
	Key        string    `json:"key"`
	CachedAt   time.Time `json:"cached_at"`
	AgeSeconds float64   `json:"age_seconds"`
}

// Result is what every agent call returns.
//
// On success: Agent, Role, Output, Metrics and Success=true are set.
// On failure: Agent, Role, Error, ErrorKind, RecoveryAction,
// FallbackResponse, Query and (when a table was supplied) DataSummary are set
// and Success=false. Output is specialist defined and treated as immutable
// once the result is returned.
type Result struct {
	Agent   string   `json:"agent"`
	Role    string   `json:"role"`
	Output  any      `json:"output,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
	Success bool     `json:"success"`

	Error            string           `json:"error,omitempty"`
	ErrorKind        ErrorKind        `json:"error_kind,omitempty"`
	ErrorDetail      map[string]any   `json:"error_detail,omitempty"`
	RecoveryAction   RecoveryAction   `json:"recovery_action,omitempty"`
	FallbackResponse string           `json:"fallback_response,omitempty"`
	Query            string           `json:"query,omitempty"`
	DataSummary      *dataset.Summary `json:"data_summary,omitempty"`

	Cache   *CacheInfo `json:"cache,omitempty"`
	Warning string     `json:"warning,omitempty"`
	Issues  []string   `json:"issues,omitempty"`
}

// Clone returns a copy whose slices, maps and metrics can be modified without
// affecting the receiver. Output is shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	if r.Metrics != nil {
		m := *r.Metrics
		c.Metrics = &m
	}
	if r.Cache != nil {
		ci := *r.Cache
		c.Cache = &ci
	}
	if r.Issues != nil {
		c.Issues = append([]string(nil), r.Issues...)
	}
	if r.ErrorDetail != nil {
		c.ErrorDetail = make(map[string]any, len(r.ErrorDetail))
		for k, v := range r.ErrorDetail {
			c.ErrorDetail[k] = v
		}
	}
	return &c
}

// Confidence is the critique's verdict on a response.
type Confidence string

const (
	// ConfidenceHigh means no problems were found.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means minor or unverifiable concerns.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow means the response is likely wrong.
	ConfidenceLow Confidence = "low"
)

// Critique is the evaluation of a candidate answer.
type Critique struct {
	Confidence Confidence `json:"confidence" yaml:"confidence"`
	Flagged    bool       `json:"flagged" yaml:"flagged"`
	Issues     []string   `json:"issues" yaml:"issues"`
	Advice     string     `json:"advice" yaml:"advice"`
}

// HistoryEntry is one completed query in a session's conversation history.
type HistoryEntry struct {
	Query     string    `json:"query"`
	Result    *Result   `json:"result,omitempty"`
	Steps     []string  `json:"steps"`
	Timestamp time.Time `json:"timestamp"`
}
