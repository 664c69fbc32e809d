package specialist

import (
	"context"
	"errors"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/sqlengine"
)

// Engine runs read-only SQL against a loaded table.
type Engine interface {
	Query(ctx context.Context, sql string) (*dataset.Table, error)
	Close() error
}

// EngineFactory loads table into a fresh Engine.
type EngineFactory func(ctx context.Context, table *dataset.Table) (Engine, error)

// SQLiteEngine is the default EngineFactory backed by sqlengine.
func SQLiteEngine(ctx context.Context, table *dataset.Table) (Engine, error) {
	return sqlengine.Open(ctx, table)
}

// Options configures a specialist.
type Options struct {
	Config    agent.Config
	Completer model.Completer
	Logger    logging.Logger
	Callbacks []agent.Callback

	// Instruction overrides the specialist's system prompt.
	Instruction *agent.Instruction

	// Engine creates the SQL engine used by the SQL specialist.
	Engine EngineFactory
	// Memory stores findings for the Insight specialist. Nil disables it.
	Memory core.MemoryStore
}

func newOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Config: agent.DefaultConfig(),
		Logger: logging.NoOpLogger{},
		Engine: SQLiteEngine,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Engine == nil {
		opts.Engine = SQLiteEngine
	}
	return opts
}

func (o Options) agentOptions() func(ao *agent.Options) {
	return func(ao *agent.Options) {
		ao.Config = o.Config
		ao.Completer = o.Completer
		if o.Logger != nil {
			ao.Logger = o.Logger
		}
		ao.Callbacks = o.Callbacks
	}
}

func (o Options) instruction(def string) agent.Instruction {
	if o.Instruction != nil {
		return *o.Instruction
	}
	return agent.NewInstructionFromText(def)
}

// WithCompleter sets the completer.
func WithCompleter(c model.Completer) func(o *Options) {
	return func(o *Options) { o.Completer = c }
}

// WithConfig sets the agent config.
func WithConfig(cfg agent.Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithMemory sets the finding memory.
func WithMemory(m core.MemoryStore) func(o *Options) {
	return func(o *Options) { o.Memory = m }
}

// WithEngine sets the SQL engine factory.
func WithEngine(f EngineFactory) func(o *Options) {
	return func(o *Options) { o.Engine = f }
}

// completionError maps a completer failure onto the error taxonomy. Typed
// and context errors keep their kind; anything unrecognized becomes
// generation_failed.
func completionError(op string, err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := core.Classify(err)
	if kind == core.KindUnknown {
		kind = core.KindGenerationFailed
	}
	return core.NewError(kind, op, "model call failed").Wrap(err)
}
