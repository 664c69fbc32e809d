package planner

import (
	"errors"
	"fmt"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
)

// Strategy selects how questions are matched against intents.
type Strategy string

const (
	// StrategyKeyword matches keyword phrases only and skips data awareness
	// and learning.
	StrategyKeyword Strategy = "keyword"
	// StrategySemantic matches keywords token by token with prefixes.
	StrategySemantic Strategy = "semantic"
	// StrategyHybrid takes the better of keyword and semantic matching.
	StrategyHybrid Strategy = "hybrid"
	// StrategyAdaptive is hybrid plus workload balancing.
	StrategyAdaptive Strategy = "adaptive"
	// StrategyHierarchical is hybrid plus decomposition of every compound question.
	StrategyHierarchical Strategy = "hierarchical"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyKeyword, StrategySemantic, StrategyHybrid, StrategyAdaptive, StrategyHierarchical:
		return true
	}
	return false
}

// Options configures a Planner.
type Options struct {
	Strategy                Strategy `mapstructure:"strategy" yaml:"strategy"`
	UseLearning             bool     `mapstructure:"use_learning" yaml:"use_learning"`
	DecomposeComplexQueries bool     `mapstructure:"decompose_complex_queries" yaml:"decompose_complex_queries"`
	FallbackAgent           string   `mapstructure:"fallback_agent" yaml:"fallback_agent"`
	MinConfidenceThreshold  float64  `mapstructure:"min_confidence_threshold" yaml:"min_confidence_threshold"`
	ConsiderDataState       bool     `mapstructure:"consider_data_state" yaml:"consider_data_state"`
	MaxPlanHistory          int      `mapstructure:"max_plan_history" yaml:"max_plan_history"`
	WorkloadBalancing       bool     `mapstructure:"workload_balancing" yaml:"workload_balancing"`
	// HistoryDir holds routing_history.yaml and feedback_history.yaml.
	// Empty disables persistence.
	HistoryDir string `mapstructure:"history_dir" yaml:"history_dir"`

	Logger logging.Logger `mapstructure:"-" yaml:"-"`
}

// DefaultOptions returns the default planner options.
func DefaultOptions() Options {
	return Options{
		Strategy:                StrategyHybrid,
		UseLearning:             true,
		DecomposeComplexQueries: true,
		FallbackAgent:           core.LabelInsight,
		MinConfidenceThreshold:  0.6,
		ConsiderDataState:       true,
		MaxPlanHistory:          1000,
		Logger:                  logging.NoOpLogger{},
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	var errs []error
	if !o.Strategy.Valid() {
		errs = append(errs, fmt.Errorf("unknown strategy %q", o.Strategy))
	}
	if o.MinConfidenceThreshold < 0 || o.MinConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("min_confidence_threshold must be in [0,1], got %v", o.MinConfidenceThreshold))
	}
	if o.MaxPlanHistory <= 0 {
		errs = append(errs, fmt.Errorf("max_plan_history must be > 0, got %d", o.MaxPlanHistory))
	}
	if o.FallbackAgent == "" {
		errs = append(errs, errors.New("fallback_agent must be set"))
	}
	return errors.Join(errs...)
}
