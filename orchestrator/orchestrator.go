package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/flow"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/planner"
	"github.com/hupe1980/insightmesh/specialist"
)

const instrumentationName = "github.com/hupe1980/insightmesh/orchestrator"

// VegaLiteContentType is the media type of exported chart specifications.
const VegaLiteContentType = "application/vnd.vegalite+json"

// Run outcomes reported in FlowResult.Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// FlowResult is the structured outcome of one query.
type FlowResult struct {
	RunID  string       `json:"run_id,omitempty"`
	Status string       `json:"status"`
	Result *core.Result `json:"result,omitempty"`
	// Steps lists visited nodes in order.
	Steps []string `json:"steps"`
	// ExecutionTime is the wall time of the run in seconds.
	ExecutionTime float64          `json:"execution_time"`
	StartTime     time.Time        `json:"start_time"`
	Critique      *core.Critique   `json:"critique,omitempty"`
	Plan          *planner.Outcome `json:"plan,omitempty"`
	Message       string           `json:"message,omitempty"`
	// Artifacts names the exports saved for this run.
	Artifacts []string `json:"artifacts,omitempty"`
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// Sessions supplies the table when a run passes none and receives
	// history. Nil disables both.
	Sessions core.SessionStore
	// Artifacts receives chart specifications of successful runs. Nil
	// disables exports.
	Artifacts core.ArtifactStore
	// Tracer records flow.start and flow.complete events.
	Tracer trace.Tracer
	Logger logging.Logger
	// MaxConcurrentRuns bounds asynchronous runs in flight.
	MaxConcurrentRuns int64
	// DisableFeedback stops reporting outcomes to the planner.
	DisableFeedback bool
}

// Orchestrator runs queries through a flow. Public methods are safe for
// concurrent use.
type Orchestrator struct {
	flow      *flow.Flow
	planner   *planner.Planner
	sessions  core.SessionStore
	artifacts core.ArtifactStore
	tracer    trace.Tracer
	logger    logging.Logger
	feedback  bool
	slots     *semaphore.Weighted
	now       func() time.Time

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New constructs an Orchestrator around f.
func New(f *flow.Flow, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		MaxConcurrentRuns: 10,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 1
	}

	return &Orchestrator{
		flow:       f,
		planner:    f.Planner(),
		sessions:   opts.Sessions,
		artifacts:  opts.Artifacts,
		tracer:     opts.Tracer,
		logger:     opts.Logger,
		feedback:   !opts.DisableFeedback,
		slots:      semaphore.NewWeighted(opts.MaxConcurrentRuns),
		now:        time.Now,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// RunFlowSync runs query to completion. A nil table falls back to the
// session's current dataset.
func (o *Orchestrator) RunFlowSync(ctx context.Context, query string, table *dataset.Table, sessionID string) (res FlowResult) {
	start := o.now()
	res = FlowResult{Status: StatusError, Steps: []string{}, StartTime: start.UTC()}

	ctx, span := o.tracer.Start(ctx, "flow.run", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()
	span.AddEvent("flow.start", trace.WithAttributes(
		attribute.String("query", query),
		attribute.String("start_time", res.StartTime.Format(time.RFC3339Nano)),
	))

	defer func() {
		if r := recover(); r != nil {
			res.Status = StatusError
			res.Message = fmt.Sprintf("flow panicked: %v", r)
		}
		elapsed := o.now().Sub(start)
		res.ExecutionTime = elapsed.Seconds()

		span.AddEvent("flow.complete", trace.WithAttributes(
			attribute.String("status", res.Status),
			attribute.String("steps", strings.Join(res.Steps, ",")),
			attribute.Float64("execution_time", res.ExecutionTime),
		))
		var err error
		if res.Status == StatusError {
			err = errors.New(res.Message)
			span.SetStatus(codes.Error, res.Message)
		}
		logging.LogFlowExecution(o.logger, sessionID, res.Steps, elapsed, err)
	}()

	if table == nil && o.sessions != nil && sessionID != "" {
		if snap, ok := o.sessions.Snapshot(sessionID); ok {
			table = snap.Table
		}
	}

	st := o.newState(query, table, sessionID)
	err := o.flow.Run(ctx, st)
	res.Steps = st.Steps
	res.Result = st.Result
	res.Critique = st.Critique
	res.Plan = st.Plan
	if err != nil {
		res.Message = err.Error()
		return res
	}
	res.Status = StatusSuccess
	res.Message = st.Message
	res.Artifacts = o.export(st)

	o.record(st, o.now().Sub(start))
	return res
}

// RunFlowAsync starts query in the background. The channel yields exactly one
// FlowResult and is then closed.
func (o *Orchestrator) RunFlowAsync(ctx context.Context, query string, table *dataset.Table, sessionID string) (string, <-chan FlowResult) {
	runID := core.NewID()
	out := make(chan FlowResult, 1)

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.activeRuns[runID] = cancel
	o.mu.Unlock()

	go func() {
		defer func() {
			close(out)
			o.mu.Lock()
			delete(o.activeRuns, runID)
			o.mu.Unlock()
			cancel()
		}()

		if err := o.slots.Acquire(ctx, 1); err != nil {
			out <- FlowResult{RunID: runID, Status: StatusError, Steps: []string{}, Message: err.Error()}
			return
		}
		defer o.slots.Release(1)

		res := o.RunFlowSync(ctx, query, table, sessionID)
		res.RunID = runID
		out <- res
	}()

	return runID, out
}

// Cancel cancels a running run by ID.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	cancel, exists := o.activeRuns[runID]
	o.mu.Unlock()

	if !exists {
		return core.Errorf(core.KindValidation, "orchestrator.cancel", "run %s not found", runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the ids of runs still in flight.
func (o *Orchestrator) ActiveRuns() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.activeRuns))
	for id := range o.activeRuns {
		ids = append(ids, id)
	}
	return ids
}

// export saves the chart specification of a successful chart run.
func (o *Orchestrator) export(st *flow.State) []string {
	if o.artifacts == nil || st.SessionID == "" || st.Result == nil || !st.Result.Success {
		return nil
	}
	chart, ok := st.Result.Output.(*specialist.ChartOutput)
	if !ok || chart.Spec == nil {
		return nil
	}
	data, err := json.Marshal(chart.Spec)
	if err != nil {
		o.logger.Warn("chart spec not exported", "error", err)
		return nil
	}
	name := "chart-" + core.NewID() + ".vl.json"
	if st.Plan != nil {
		name = "chart-" + st.Plan.QueryID + ".vl.json"
	}
	if err := o.artifacts.Save(st.SessionID, core.Artifact{
		Name:        name,
		ContentType: VegaLiteContentType,
		Data:        data,
	}); err != nil {
		o.logger.Warn("chart spec not exported", "error", err)
		return nil
	}
	return []string{name}
}

// newState seeds the flow state with a copy of the session history as it
// was before this question.
func (o *Orchestrator) newState(query string, table *dataset.Table, sessionID string) *flow.State {
	st := flow.NewState(query, table, sessionID)
	if o.sessions != nil && sessionID != "" {
		st.History = o.sessions.History(sessionID)
	}
	return st
}

func (o *Orchestrator) record(st *flow.State, elapsed time.Duration) {
	if o.sessions != nil && st.SessionID != "" {
		o.sessions.Append(st.SessionID, core.HistoryEntry{
			Query:     st.Query,
			Result:    st.Result,
			Steps:     append([]string(nil), st.Steps...),
			Timestamp: o.now().UTC(),
		})
	}

	if !o.feedback || st.Plan == nil {
		return
	}
	fb := planner.Feedback{
		QueryID:          st.Plan.QueryID,
		RoutedAgent:      st.Plan.PrimaryAgent,
		Success:          st.Error == "" && st.Result != nil && st.Result.Success,
		ExecutionSeconds: elapsed.Seconds(),
		Error:            st.Error,
	}
	if fb.Error == "" && st.Result != nil {
		fb.Error = st.Result.Error
	}
	o.planner.AddFeedback(fb)

	if o.planner.Options().HistoryDir == "" {
		return
	}
	if err := o.planner.Save(); err != nil {
		o.logger.Warn("planner history not saved", "error", err)
	}
}
