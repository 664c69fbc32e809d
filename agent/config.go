package agent

import (
	"errors"
	"fmt"
	"time"
)

// CachePolicy selects how the per-agent result cache treats entry age.
type CachePolicy string

const (
	// CacheNone turns the cache into a sink: writes are dropped, reads miss.
	CacheNone CachePolicy = "none"
	// CacheTime hides entries older than the configured TTL.
	CacheTime CachePolicy = "time"
	// CacheQuery keeps entries until cleared, ignoring TTL.
	CacheQuery CachePolicy = "query"
	// CacheHybrid is content addressed and hides entries older than the TTL.
	CacheHybrid CachePolicy = "hybrid"
)

// Config holds the tunables of one agent. A running agent's Config can be
// replaced atomically between queries via (*Agent).SetConfig.
type Config struct {
	Temperature   float64       `json:"temperature" yaml:"temperature"`
	MaxTokens     int           `json:"max_tokens" yaml:"max_tokens"`
	Model         string        `json:"model,omitempty" yaml:"model,omitempty"`
	CacheResults  bool          `json:"cache_results" yaml:"cache_results"`
	CachePolicy   CachePolicy   `json:"cache_policy" yaml:"cache_policy"`
	CacheTTL      time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	RetryAttempts int           `json:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay" yaml:"retry_delay"`
	// Timeout bounds each attempt; zero means no timeout.
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	EnableTracing bool          `json:"enable_tracing" yaml:"enable_tracing"`
	LogLevel      string        `json:"log_level" yaml:"log_level"`
	// MaxModelCalls caps completer calls per Run; zero means unlimited.
	MaxModelCalls int `json:"max_model_calls" yaml:"max_model_calls"`
}

// DefaultConfig returns the framework defaults applied to every specialist
// unless overridden.
func DefaultConfig() Config {
	return Config{
		Temperature:   0.2,
		MaxTokens:     2048,
		CacheResults:  true,
		CachePolicy:   CacheHybrid,
		CacheTTL:      time.Hour,
		RetryAttempts: 2,
		RetryDelay:    500 * time.Millisecond,
		Timeout:       60 * time.Second,
		LogLevel:      "info",
		MaxModelCalls: 10,
	}
}

// Validate checks every field against its documented range.
func (c Config) Validate() error {
	var errs []error
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Errorf("temperature must be in [0,1], got %v", c.Temperature))
	}
	if c.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_tokens must be > 0, got %d", c.MaxTokens))
	}
	switch c.CachePolicy {
	case CacheNone, CacheTime, CacheQuery, CacheHybrid:
	default:
		errs = append(errs, fmt.Errorf("unknown cache_policy %q", c.CachePolicy))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache_ttl must be > 0, got %s", c.CacheTTL))
	}
	if c.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must be >= 0, got %s", c.RetryDelay))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0 or unset, got %s", c.Timeout))
	}
	if c.MaxModelCalls < 0 {
		errs = append(errs, fmt.Errorf("max_model_calls must be >= 0, got %d", c.MaxModelCalls))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid agent config: %w", errors.Join(errs...))
	}
	return nil
}
