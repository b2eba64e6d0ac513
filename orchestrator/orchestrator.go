package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentmesh/amcp/bus"
	"github.com/agentmesh/amcp/correlation"
	"github.com/agentmesh/amcp/event"
	"github.com/agentmesh/amcp/fallback"
	"github.com/agentmesh/amcp/identity"
	"github.com/agentmesh/amcp/internal/observability"
	"github.com/agentmesh/amcp/llm"
	"github.com/agentmesh/amcp/planner"
	"github.com/agentmesh/amcp/prompt"
)

// Orchestrator drives the plan -> dispatch -> gather -> synthesize
// pipeline. It holds no per-request state beyond what's threaded through
// ProcessRequest's call stack; concurrent requests are independent.
type Orchestrator struct {
	bus        bus.Bus
	tracker    *correlation.Tracker
	planner    *planner.Planner
	engine     *prompt.Engine
	llmClient  llm.Client
	fallback   *fallback.Manager
	logger     *slog.Logger
	config     Config
	metrics    *Metrics
	tracer     *observability.TraceManager
	obsMetrics *observability.MetricsManager

	responseSub bus.Handle

	sem chan struct{}
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithObservability attaches a tracer and metrics manager so the
// plan/dispatch/synthesize pipeline gets a span per request and per task,
// and the orchestrator's own counters (see Metrics) are mirrored into
// OpenTelemetry. Either argument may be nil.
func WithObservability(tracer *observability.TraceManager, metrics *observability.MetricsManager) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
		o.obsMetrics = metrics
	}
}

// New constructs an Orchestrator. logger may be nil.
func New(
	b bus.Bus,
	tracker *correlation.Tracker,
	pl *planner.Planner,
	engine *prompt.Engine,
	llmClient llm.Client,
	fb *fallback.Manager,
	logger *slog.Logger,
	config Config,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = DefaultConfig().MaxConcurrentRequests
	}
	o := &Orchestrator{
		bus:       b,
		tracker:   tracker,
		planner:   pl,
		engine:    engine,
		llmClient: llmClient,
		fallback:  fb,
		logger:    logger,
		config:    config,
		metrics:   &Metrics{},
		sem:       make(chan struct{}, config.MaxConcurrentRequests),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Metrics returns the orchestrator's running outcome counters.
func (o *Orchestrator) Metrics() Snapshot { return o.metrics.Snapshot() }

// Start subscribes to orchestrator.task.response so task replies route
// back to the correlation context that is awaiting them.
func (o *Orchestrator) Start(ctx context.Context) error {
	h, err := o.bus.Subscribe("orchestrator", event.MustCompilePattern(TopicTaskResponse), o.onTaskResponse)
	if err != nil {
		return fmt.Errorf("orchestrator: subscribe %s: %w", TopicTaskResponse, err)
	}
	o.responseSub = h
	return nil
}

// Shutdown releases the orchestrator's bus subscription. It does not
// shut down the underlying bus, tracker, or planner.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if err := o.bus.Unsubscribe(o.responseSub); err != nil && err != bus.ErrUnknownSubscription {
		return err
	}
	return nil
}

// onTaskResponse resolves the correlation context named by the
// response's correlation ID, regardless of whether the task itself
// reported success: a reply arriving at all means the correlation
// completed communication-wise, and dispatchTask inspects
// TaskResponse.Success to decide the business outcome.
func (o *Orchestrator) onTaskResponse(ctx context.Context, evt event.Event) error {
	corrID := evt.CorrelationID()
	if corrID == "" {
		return nil
	}
	resp, err := event.As[event.TaskResponse](evt.Payload())
	if err != nil {
		o.logger.Warn("orchestrator: malformed task response", "error", err)
		return nil
	}
	if err := o.tracker.Complete(corrID, resp); err != nil && err != correlation.ErrNotFound {
		o.logger.Warn("orchestrator: failed to complete correlation", "correlationId", corrID, "error", err)
	}
	return nil
}

// ProcessRequest runs the full pipeline for one user query.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) (Response, error) {
	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	start := time.Now()
	correlationID := uuid.NewString()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.StartSpan(ctx, "orchestrator.process_request")
		o.tracer.AddComponentAttribute(span, "orchestrator")
		defer span.End()
	}

	normalized := NormalizeInput(req.InputData)

	plan, err := o.planner.Plan(ctx, req.TaskDescription, req.AgentCapabilities, req.Model, correlationID)
	if err != nil {
		if o.tracer != nil {
			o.tracer.RecordError(span, err)
		}
		return o.emergencyResponse(correlationID, "", start, fmt.Errorf("planning failed: %w", err)), nil
	}

	rootTimeout := o.config.rootTimeoutSeconds(len(plan.Tasks))
	if _, err := o.tracker.CreateCorrelation(correlationID, "orchestration", normalized, rootTimeout); err != nil {
		if o.tracer != nil {
			o.tracer.RecordError(span, err)
		}
		return o.emergencyResponse(correlationID, "", start, fmt.Errorf("create root correlation: %w", err)), nil
	}

	levels, err := planner.DispatchLevels(plan)
	if err != nil {
		o.tracker.Fail(correlationID, err)
		if o.tracer != nil {
			o.tracer.RecordError(span, err)
		}
		return o.emergencyResponse(correlationID, "", start, fmt.Errorf("dispatch ordering failed: %w", err)), nil
	}

	outcomes := o.dispatchPlan(ctx, correlationID, levels, req)

	resp := o.finish(ctx, correlationID, plan, req, outcomes, start)

	if o.tracer != nil {
		if resp.Status == StatusFailed {
			o.tracer.RecordError(span, fmt.Errorf("orchestrator: request %s", resp.Status))
		} else {
			o.tracer.SetSpanSuccess(span)
		}
	}
	if o.obsMetrics != nil {
		o.obsMetrics.IncrementEventsProcessed(ctx, "orchestrator.request", correlationID, resp.Status != StatusFailed)
		o.obsMetrics.RecordEventProcessingDuration(ctx, "orchestrator.request", correlationID, time.Since(start))
	}
	return resp, nil
}

// dispatchPlan runs each dependency level concurrently, skipping (and
// marking failed) any task whose dependency already failed.
func (o *Orchestrator) dispatchPlan(ctx context.Context, correlationID string, levels [][]planner.TaskDefinition, req Request) map[string]TaskOutcome {
	outcomes := make(map[string]TaskOutcome)
	var mu sync.Mutex

	for _, level := range levels {
		var wg sync.WaitGroup
		for _, task := range level {
			task := task
			wg.Add(1)
			go func() {
				defer wg.Done()

				mu.Lock()
				depFailed := false
				for _, dep := range task.Dependencies {
					if o, ok := outcomes[dep]; ok && !o.Success {
						depFailed = true
						break
					}
				}
				mu.Unlock()

				var outcome TaskOutcome
				if depFailed {
					outcome = TaskOutcome{
						TaskID:     task.TaskID,
						Capability: task.Capability,
						Success:    false,
						Error:      &event.TaskError{Code: event.ErrCodeExecutionFailed, Message: "a dependency failed"},
					}
				} else {
					outcome = o.dispatchTask(ctx, correlationID, task, req)
				}

				mu.Lock()
				outcomes[task.TaskID] = outcome
				mu.Unlock()
			}()
		}
		wg.Wait()
	}
	return outcomes
}

// dispatchTask publishes one task, retrying through fallback.Manager,
// and returns its terminal outcome.
func (o *Orchestrator) dispatchTask(ctx context.Context, rootCorrelationID string, task planner.TaskDefinition, req Request) TaskOutcome {
	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.StartConsumeSpan(ctx, rootCorrelationID, task.Capability)
		o.tracer.AddTaskAttributes(span, task.TaskID, task.Capability, task.Parameters)
		o.tracer.AddComponentAttribute(span, "orchestrator")
		defer span.End()
	}

	outcome := o.dispatchTaskAttempts(ctx, rootCorrelationID, task, req)

	if o.tracer != nil {
		errMsg := ""
		if outcome.Error != nil {
			errMsg = outcome.Error.Message
		}
		status := "success"
		if !outcome.Success {
			status = "failed"
		}
		o.tracer.AddTaskResult(span, status, outcome.Result, errMsg)
		if outcome.Success {
			o.tracer.SetSpanSuccess(span)
		} else {
			o.tracer.RecordError(span, fmt.Errorf("%s", errMsg))
		}
	}
	if o.obsMetrics != nil {
		o.obsMetrics.IncrementEventsProcessed(ctx, task.Capability, rootCorrelationID, outcome.Success)
	}
	return outcome
}

// dispatchTaskAttempts runs the publish/await/retry cycle for one task,
// per fallback.Manager's policy.
func (o *Orchestrator) dispatchTaskAttempts(ctx context.Context, rootCorrelationID string, task planner.TaskDefinition, req Request) TaskOutcome {
	result, taskErr := o.fallback.Retry(ctx, task.TaskID, func(ctx context.Context, attempt int) (any, *event.TaskError) {
		childID := fmt.Sprintf("%s-%s-%d", rootCorrelationID, task.TaskID, attempt)
		taskTimeoutSeconds := o.config.TaskTimeoutMs / 1000
		if taskTimeoutSeconds < 1 {
			taskTimeoutSeconds = 1
		}
		if _, err := o.tracker.CreateCorrelation(childID, "task", task.Parameters, taskTimeoutSeconds); err != nil {
			return nil, &event.TaskError{Code: event.ErrCodeExecutionFailed, Message: err.Error()}
		}

		reqPayload := event.TaskRequest{
			Capability:  task.Capability,
			Parameters:  task.Parameters,
			UserContext: userContextFrom(req.Metadata),
			Priority:    task.Priority,
			TimeoutMs:   o.config.TaskTimeoutMs,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}
		evt := event.New(TopicTaskRequest, reqPayload,
			event.WithSender(identity.System),
			event.WithCorrelationID(childID),
			event.WithMetadata("taskId", task.TaskID),
			event.WithMetadata("targetAgent", task.TargetAgent),
		)

		if err := o.bus.Publish(ctx, evt); err != nil {
			return nil, &event.TaskError{Code: event.ErrCodeAgentUnavailable, Message: err.Error()}
		}

		raw, err := o.tracker.AwaitResult(ctx, childID, o.config.taskTimeout())
		if err != nil {
			return nil, &event.TaskError{Code: event.ErrCodeTaskTimeout, Message: err.Error()}
		}

		resp, ok := raw.(event.TaskResponse)
		if !ok {
			return nil, &event.TaskError{Code: event.ErrCodeExecutionFailed, Message: "malformed task response"}
		}
		if !resp.Success {
			if resp.Error != nil {
				return nil, resp.Error
			}
			return nil, &event.TaskError{Code: event.ErrCodeExecutionFailed, Message: "task reported failure"}
		}
		return resp.Result, nil
	})

	if taskErr != nil {
		return TaskOutcome{TaskID: task.TaskID, Capability: task.Capability, Success: false, Error: taskErr}
	}
	resultMap, _ := result.(map[string]any)
	return TaskOutcome{TaskID: task.TaskID, Capability: task.Capability, Success: true, Result: resultMap}
}

// finish builds the synthesis prompt, calls the LLM, determines the
// final status, emits the final response event, and records metrics.
func (o *Orchestrator) finish(ctx context.Context, correlationID string, plan planner.TaskPlan, req Request, outcomes map[string]TaskOutcome, start time.Time) Response {
	taskResults := make([]prompt.TaskResult, 0, len(plan.Tasks))
	successCount, failCount := 0, 0
	for _, task := range plan.Tasks {
		outcome := outcomes[task.TaskID]
		errText := ""
		if outcome.Error != nil {
			errText = outcome.Error.Message
		}
		taskResults = append(taskResults, prompt.TaskResult{
			TaskID:     task.TaskID,
			Capability: task.Capability,
			Success:    outcome.Success,
			Result:     outcome.Result,
			Error:      errText,
		})
		if outcome.Success {
			successCount++
		} else {
			failCount++
		}
	}

	status := computeStatus(successCount, failCount)

	synthCtx, cancel := context.WithTimeout(ctx, o.config.llmTimeout())
	defer cancel()

	responseText, err := o.synthesize(synthCtx, req, taskResults)
	if err != nil {
		status = StatusFailed
		responseText = o.fallback.EmergencyMessage(firstFailureCode(outcomes), req.TaskDescription)
		o.tracker.Fail(correlationID, err)
	} else if status == StatusFailed {
		o.tracker.Fail(correlationID, fmt.Errorf("all tasks failed"))
	} else {
		o.tracker.Complete(correlationID, responseText)
	}

	o.metrics.record(status)
	o.publishFinal(ctx, correlationID, status, responseText)

	return Response{
		CorrelationID:        correlationID,
		Status:               status,
		Results:              outcomes,
		TaskPlan:             plan,
		ResponseText:         responseText,
		ProcessingTimeMillis: time.Since(start).Milliseconds(),
		Timestamp:            time.Now().UTC(),
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, req Request, taskResults []prompt.TaskResult) (string, error) {
	promptText, err := o.engine.BuildResponseSynthesisPrompt(req.TaskDescription, taskResults, req.Model)
	if err != nil {
		return "", fmt.Errorf("build synthesis prompt: %w", err)
	}

	callStart := time.Now()
	resp, err := o.llmClient.Complete(ctx, llm.Request{Prompt: promptText, Model: req.Model})
	latency := time.Since(callStart).Milliseconds()
	o.engine.RecordPerformance(prompt.ResponseSynthesis, req.Model, err == nil, latency)
	if err != nil {
		return "", fmt.Errorf("synthesis llm call: %w", err)
	}
	return resp.Text, nil
}

func (o *Orchestrator) publishFinal(ctx context.Context, correlationID string, status Status, responseText string) {
	evt := event.New(TopicFinalResponse, event.Raw{Value: map[string]any{
		"correlationId": correlationID,
		"status":        string(status),
		"response":      responseText,
	}}, event.WithSender(identity.System), event.WithCorrelationID(correlationID), event.WithDeliveryOptions(event.DeliveryOptions{Mode: event.FireAndForget}))
	if err := o.bus.Publish(ctx, evt); err != nil {
		o.logger.Warn("orchestrator: failed to publish final response event", "correlationId", correlationID, "error", err)
	}
}

// emergencyResponse builds a deterministic FAILED response for failures
// that occur before any task is dispatched (planning, correlation setup).
func (o *Orchestrator) emergencyResponse(correlationID, category string, start time.Time, cause error) Response {
	o.logger.Error("orchestrator: request failed before dispatch", "correlationId", correlationID, "error", cause)
	o.metrics.record(StatusFailed)
	text := o.fallback.EmergencyMessage(category, "request")
	return Response{
		CorrelationID:        correlationID,
		Status:               StatusFailed,
		Results:              map[string]TaskOutcome{},
		ResponseText:         text,
		ProcessingTimeMillis: time.Since(start).Milliseconds(),
		Timestamp:            time.Now().UTC(),
	}
}

func computeStatus(successCount, failCount int) Status {
	switch {
	case failCount == 0:
		return StatusSuccess
	case successCount > 0:
		return StatusPartialSuccess
	default:
		return StatusFailed
	}
}

func firstFailureCode(outcomes map[string]TaskOutcome) string {
	for _, o := range outcomes {
		if !o.Success && o.Error != nil {
			return o.Error.Code
		}
	}
	return ""
}

func userContextFrom(metadata map[string]string) event.UserContext {
	return event.UserContext{
		UserID:    metadata["userId"],
		SessionID: metadata["sessionId"],
		Metadata:  metadata,
	}
}
