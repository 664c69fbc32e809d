package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/model"
)

const instrumentationName = "github.com/hupe1980/insightmesh/agent"

// Executor is the specialist-specific part of an agent. Execute receives a
// Call and returns the specialist output or an error; the framework wraps it
// with caching, retry, timeout, metrics and events.
type Executor interface {
	Execute(ctx context.Context, call *Call) (any, error)
}

// PreProcessor is implemented by executors that validate or enrich a Call
// before the cache lookup.
type PreProcessor interface {
	PreProcess(ctx context.Context, call *Call) error
}

// PostProcessor is implemented by executors that transform a successful
// output before it is cached and returned.
type PostProcessor interface {
	PostProcess(ctx context.Context, call *Call, output any) (any, error)
}

// SessionScoped is implemented by executors whose output depends on session
// state beyond the table, such as stored findings. Their cache entries are
// keyed per session.
type SessionScoped interface {
	SessionScoped() bool
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, call *Call) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, call *Call) (any, error) { return f(ctx, call) }

// Options configures an Agent.
type Options struct {
	Config    Config
	Completer model.Completer
	Logger    logging.Logger
	Tracer    trace.Tracer
	Meter     metric.Meter
	Callbacks []Callback
}

// Health is the health report of one agent.
type Health struct {
	AgentID     string                `json:"agent_id"`
	Name        string                `json:"name"`
	Role        string                `json:"role"`
	Healthy     bool                  `json:"healthy"`
	Cache       CacheStats            `json:"cache"`
	LastMetrics *core.Metrics         `json:"last_metrics,omitempty"`
	Aggregate   core.AggregateMetrics `json:"aggregate"`
}

type runtime struct {
	cfg    Config
	logger logging.Logger
}

// Agent wraps an Executor with the shared agent lifecycle. It satisfies
// core.Agent. All exported methods are goroutine-safe.
type Agent struct {
	id        string
	name      string
	role      string
	exec      Executor
	completer model.Completer
	baseLog   logging.Logger
	tracer    trace.Tracer
	inst      *instruments

	rt        atomic.Pointer[runtime]
	cache     *Cache
	callbacks *CallbackManager

	mu        sync.Mutex
	last      *core.Metrics
	aggregate core.AggregateMetrics
}

var _ core.Agent = (*Agent)(nil)

// New creates an agent around exec. It panics if the resulting Config is
// invalid, matching the fail-fast construction of specialists.
func New(name, role string, exec Executor, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(); err != nil {
		panic(fmt.Sprintf("agent %s: %v", name, err))
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}

	a := &Agent{
		id:        core.NewID(),
		name:      name,
		role:      role,
		exec:      exec,
		completer: opts.Completer,
		baseLog:   logging.With(opts.Logger, "agent", name),
		tracer:    opts.Tracer,
		inst:      newInstruments(opts.Meter),
		cache:     NewCache(opts.Config.CachePolicy, opts.Config.CacheTTL),
	}
	a.callbacks = NewCallbackManager(a.baseLog)
	a.rt.Store(a.newRuntime(opts.Config))
	for _, cb := range opts.Callbacks {
		a.callbacks.RegisterCallback(cb)
	}
	a.emit(context.Background(), core.EventInit, "", map[string]any{"role": role})
	return a
}

// WithConfig sets the agent config.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithCompleter sets the completer used by Call.Complete.
func WithCompleter(c model.Completer) func(o *Options) {
	return func(o *Options) { o.Completer = c }
}

// WithLogger sets the base logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithCallbacks registers callbacks at construction time, so they also
// observe the init event.
func WithCallbacks(cbs ...Callback) func(o *Options) {
	return func(o *Options) { o.Callbacks = append(o.Callbacks, cbs...) }
}

func (a *Agent) newRuntime(cfg Config) *runtime {
	return &runtime{cfg: cfg, logger: logging.WithLevel(a.baseLog, logging.ParseLevel(cfg.LogLevel))}
}

// ID returns the unique agent id.
func (a *Agent) ID() string { return a.id }

// Name returns the agent label.
func (a *Agent) Name() string { return a.name }

// Role returns the agent role description.
func (a *Agent) Role() string { return a.role }

// Config returns the current config.
func (a *Agent) Config() Config { return a.rt.Load().cfg }

// Completer returns the completer the agent was built with.
func (a *Agent) Completer() model.Completer { return a.completer }

// Logger returns the level-filtered agent logger.
func (a *Agent) Logger() logging.Logger { return a.rt.Load().logger }

// Cache exposes the agent's result cache.
func (a *Agent) Cache() *Cache { return a.cache }

// ClearCache drops every cached result.
func (a *Agent) ClearCache() { a.cache.Clear() }

// ClearExpired evicts cached results older than the TTL.
func (a *Agent) ClearExpired() int { return a.cache.ClearExpired() }

// SetConfig validates cfg and swaps it in atomically. Runs already in
// flight keep the config they started with.
func (a *Agent) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cache.Reconfigure(cfg.CachePolicy, cfg.CacheTTL)
	a.rt.Store(a.newRuntime(cfg))
	return nil
}

// RegisterCallback adds an event callback.
func (a *Agent) RegisterCallback(cb Callback) { a.callbacks.RegisterCallback(cb) }

// Health reports identity, cache statistics and the most recent metrics.
func (a *Agent) Health() Health {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := Health{
		AgentID:   a.id,
		Name:      a.name,
		Role:      a.role,
		Healthy:   true,
		Cache:     a.cache.Stats(),
		Aggregate: a.aggregate,
	}
	if a.last != nil {
		m := *a.last
		h.LastMetrics = &m
	}
	return h
}

// LastMetrics returns a copy of the metrics of the most recent Run.
func (a *Agent) LastMetrics() (core.Metrics, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return core.Metrics{}, false
	}
	return *a.last, true
}

// Run executes one query. It never returns an error: failures are reported
// through the failure shape of core.Result.
func (a *Agent) Run(ctx context.Context, query string, table *dataset.Table, kwargs map[string]any) *core.Result {
	rt := a.rt.Load()
	cfg := rt.cfg
	call := NewCall(a.name, query, table, kwargs, cfg, a.completer, rt.logger)
	m := core.Metrics{StartTime: time.Now().UTC()}

	span := trace.SpanFromContext(context.Background())
	if cfg.EnableTracing {
		ctx, span = a.tracer.Start(ctx, "agent."+a.name,
			trace.WithAttributes(
				attribute.String("agent.name", a.name),
				attribute.String("agent.id", a.id),
				attribute.String("call.id", call.ID),
			))
	}
	defer span.End()

	a.emit(ctx, core.EventPreProcess, call.ID, map[string]any{"query": query})
	if pp, ok := a.exec.(PreProcessor); ok {
		if err := pp.PreProcess(ctx, call); err != nil {
			return a.fail(ctx, span, call, m, err)
		}
	}

	var key string
	if cfg.CacheResults {
		key = CacheKey(query, table, kwargs)
		if ss, ok := a.exec.(SessionScoped); ok && ss.SessionScoped() {
			key = SessionCacheKey(key, core.SessionIDFrom(ctx))
		}
		if cached, storedAt, ok := a.cache.Get(key); ok {
			m.CacheHits = 1
			res := cached.Clone()
			res.Cache = &core.CacheInfo{Hit: true, Key: key, CachedAt: storedAt, AgeSeconds: time.Since(storedAt).Seconds()}
			res.Metrics = a.finish(ctx, &m, true)
			a.emit(ctx, core.EventCacheHit, call.ID, map[string]any{"key": key})
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return res
		}
		m.CacheMisses = 1
		a.emit(ctx, core.EventCacheMiss, call.ID, map[string]any{"key": key})
	}

	out, err := a.execute(ctx, call, cfg, &m)
	if err != nil {
		return a.fail(ctx, span, call, m, err)
	}

	if pp, ok := a.exec.(PostProcessor); ok {
		a.emit(ctx, core.EventPostProcess, call.ID, nil)
		if out, err = pp.PostProcess(ctx, call, out); err != nil {
			return a.fail(ctx, span, call, m, err)
		}
	}

	res := &core.Result{
		Agent:   a.name,
		Role:    a.role,
		Output:  out,
		Success: true,
		Query:   query,
	}
	res.Metrics = a.finish(ctx, &m, true)
	if cfg.CacheResults {
		res.Cache = &core.CacheInfo{Key: key}
		a.cache.Set(key, res.Clone())
	}
	a.emit(ctx, core.EventComplete, call.ID, map[string]any{"execution_seconds": m.ExecutionSeconds})
	return res
}

// execute runs the executor with retry and per-attempt timeout. Token usage,
// retry and error counts are written into m.
func (a *Agent) execute(ctx context.Context, call *Call, cfg Config, m *core.Metrics) (any, error) {
	var (
		out     any
		attempt int
	)
	op := func() error {
		attempt++
		if attempt > 1 {
			m.RetryCount++
		}
		a.emit(ctx, core.EventExecuteStart, call.ID, map[string]any{"attempt": attempt})
		res, err := a.attempt(ctx, call, cfg)
		if err != nil {
			m.ErrorCount++
			if !core.Classify(err).Retryable() || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = res
		a.emit(ctx, core.EventExecuteEnd, call.ID, map[string]any{"attempt": attempt})
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{delay: cfg.RetryDelay}, uint64(cfg.RetryAttempts)),
		ctx,
	)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		call.Logger.Warn("attempt failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	})

	u := call.Usage()
	m.PromptTokens, m.CompletionTokens, m.TotalTokens = u.PromptTokens, u.CompletionTokens, u.TotalTokens
	return out, err
}

type outcome struct {
	out any
	err error
}

// attempt runs one Execute under the per-attempt timeout. On timeout the
// executor goroutine is abandoned and its eventual result discarded.
func (a *Agent) attempt(ctx context.Context, call *Call, cfg Config) (any, error) {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	}
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: core.Errorf(core.KindUnknown, a.name, "executor panic: %v", r)}
			}
		}()
		out, err := a.exec.Execute(actx, call)
		ch <- outcome{out: out, err: err}
	}()

	select {
	case o := <-ch:
		return o.out, o.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return nil, core.NewError(core.KindCanceled, a.name, "run canceled").Wrap(err)
		}
		return nil, core.Errorf(core.KindTimeout, a.name, "attempt exceeded %s", cfg.Timeout).Wrap(context.DeadlineExceeded)
	}
}

func (a *Agent) fail(ctx context.Context, span trace.Span, call *Call, m core.Metrics, err error) *core.Result {
	kind := core.Classify(err)
	res := &core.Result{
		Agent:            a.name,
		Role:             a.role,
		Success:          false,
		Error:            err.Error(),
		ErrorKind:        kind,
		RecoveryAction:   kind.Recovery(),
		FallbackResponse: kind.FallbackMessage(),
		Query:            call.Query,
		DataSummary:      call.Table.Summarize(),
	}
	var ce *core.Error
	if errors.As(err, &ce) && len(ce.Detail) > 0 {
		res.ErrorDetail = make(map[string]any, len(ce.Detail))
		for k, v := range ce.Detail {
			res.ErrorDetail[k] = v
		}
	}
	res.Metrics = a.finish(ctx, &m, false)

	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	call.Logger.Error("agent run failed", "kind", string(kind), "error", err)
	a.emit(ctx, core.EventError, call.ID, map[string]any{
		"kind":     string(kind),
		"error":    err.Error(),
		"recovery": string(res.RecoveryAction),
	})
	return res
}

// finish stamps the end time, stores the metrics as the latest snapshot and
// exports them.
func (a *Agent) finish(ctx context.Context, m *core.Metrics, success bool) *core.Metrics {
	m.EndTime = time.Now().UTC()
	m.ExecutionSeconds = m.EndTime.Sub(m.StartTime).Seconds()

	a.mu.Lock()
	snap := *m
	a.last = &snap
	a.aggregate.Add(snap, success)
	a.mu.Unlock()

	a.inst.record(ctx, a.name, snap, success)
	out := snap
	return &out
}

func (a *Agent) emit(ctx context.Context, kind core.EventKind, callID string, payload map[string]any) {
	a.callbacks.ExecuteCallbacks(ctx, core.NewAgentEvent(kind, a.name, a.id, callID, payload))
}
