// Package config loads typed settings from defaults, an optional YAML file
// and INSIGHTMESH_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/planner"
)

// EnvPrefix prefixes every environment override, e.g.
// INSIGHTMESH_PLANNER_STRATEGY or INSIGHTMESH_AGENTS_SQL_TEMPERATURE.
const EnvPrefix = "INSIGHTMESH"

// Config holds all configuration for the analysis service.
type Config struct {
	Log       LogConfig              `mapstructure:"log"`
	LLM       LLMConfig              `mapstructure:"llm"`
	Agents    map[string]AgentConfig `mapstructure:"agents"`
	Planner   planner.Options        `mapstructure:"planner"`
	Session   SessionConfig          `mapstructure:"session"`
	Telemetry TelemetryConfig        `mapstructure:"telemetry"`
	Server    ServerConfig           `mapstructure:"server"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Backend string `mapstructure:"backend"`
}

// LLMConfig selects the completion provider shared by all specialists.
type LLMConfig struct {
	// Provider is openai, anthropic or mock.
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
}

// AgentConfig is the per-specialist section under agents.<label>.
type AgentConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Cache       bool          `mapstructure:"cache"`
	Retry       int           `mapstructure:"retry"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LogLevel    string        `mapstructure:"log_level"`
}

type SessionConfig struct {
	MaxHistory int `mapstructure:"max_history"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// AgentLabels lists the specialists that carry an agents.<label> section.
var AgentLabels = []string{
	core.LabelSQL,
	core.LabelChart,
	core.LabelInsight,
	core.LabelDebate,
	core.LabelCritique,
	core.LabelDataCleaner,
}

// Load reads configuration. An empty path skips the file; a missing file is
// an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// Origins set through the environment arrive comma separated.
	cfg.Server.CORSOrigins = splitList(strings.Join(cfg.Server.CORSOrigins, ","))
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.backend", "zerolog")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")

	def := agent.DefaultConfig()
	for _, label := range AgentLabels {
		key := "agents." + label + "."
		v.SetDefault(key+"enabled", true)
		v.SetDefault(key+"model", "")
		v.SetDefault(key+"temperature", def.Temperature)
		v.SetDefault(key+"max_tokens", def.MaxTokens)
		v.SetDefault(key+"cache", def.CacheResults)
		v.SetDefault(key+"retry", def.RetryAttempts)
		v.SetDefault(key+"timeout", def.Timeout)
		v.SetDefault(key+"log_level", def.LogLevel)
	}

	p := planner.DefaultOptions()
	v.SetDefault("planner.strategy", string(p.Strategy))
	v.SetDefault("planner.use_learning", p.UseLearning)
	v.SetDefault("planner.decompose_complex_queries", p.DecomposeComplexQueries)
	v.SetDefault("planner.fallback_agent", p.FallbackAgent)
	v.SetDefault("planner.min_confidence_threshold", p.MinConfidenceThreshold)
	v.SetDefault("planner.consider_data_state", p.ConsiderDataState)
	v.SetDefault("planner.max_plan_history", p.MaxPlanHistory)
	v.SetDefault("planner.workload_balancing", p.WorkloadBalancing)
	v.SetDefault("planner.history_dir", p.HistoryDir)

	v.SetDefault("session.max_history", 50)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.service_name", "insightmesh")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
}

// Agent returns the section for label, or defaults when none exists.
func (c *Config) Agent(label string) AgentConfig {
	if ac, ok := c.Agents[label]; ok {
		return ac
	}
	def := agent.DefaultConfig()
	return AgentConfig{
		Enabled:     true,
		Temperature: def.Temperature,
		MaxTokens:   def.MaxTokens,
		Cache:       def.CacheResults,
		Retry:       def.RetryAttempts,
		Timeout:     def.Timeout,
		LogLevel:    def.LogLevel,
	}
}

// Framework converts the section into an agent.Config.
func (a AgentConfig) Framework() agent.Config {
	cfg := agent.DefaultConfig()
	cfg.Model = a.Model
	cfg.Temperature = a.Temperature
	cfg.MaxTokens = a.MaxTokens
	cfg.CacheResults = a.Cache
	cfg.RetryAttempts = a.Retry
	cfg.Timeout = a.Timeout
	if a.LogLevel != "" {
		cfg.LogLevel = a.LogLevel
	}
	return cfg
}

// PlannerOptions returns the planner section with logger attached.
func (c *Config) PlannerOptions(logger logging.Logger) planner.Options {
	opts := c.Planner
	opts.Logger = logger
	return opts
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger() logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(c.Log.Level),
		Format:  c.Log.Format,
		Backend: c.Log.Backend,
		Output:  os.Stderr,
	})
}

// Validate checks every section against its documented range.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Backend {
	case "zerolog", "slog":
	default:
		errs = append(errs, fmt.Errorf("log.backend must be zerolog or slog, got %q", c.Log.Backend))
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be openai, anthropic or mock, got %q", c.LLM.Provider))
	}
	for label, ac := range c.Agents {
		if err := ac.Framework().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("agents.%s: %w", label, err))
		}
	}
	if err := c.Planner.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("planner: %w", err))
	}
	if c.Session.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("session.max_history must be > 0, got %d", c.Session.MaxHistory))
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, errors.New("telemetry.otlp_endpoint is required when telemetry is enabled"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port))
	}

	if err := errors.Join(errs...); err != nil {
		return core.NewError(core.KindValidation, "config.validate", "invalid configuration").Wrap(err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
