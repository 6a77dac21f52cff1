// Package manager implements the Manager Orchestrator (spec §4.9): the
// top-level control loop binding the Query Classifier, an optional Planner,
// one or more Specialist Agents, and the Quality Controller into a single
// request lifecycle, emitting progress events at every stage.
package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/classify"
	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/quality"
	"github.com/cortexmesh/orchestrator/telemetry"
)

// managerAgentName identifies the orchestrator itself on events it emits
// directly (as opposed to events forwarded from a specialist's task).
const managerAgentName = "manager"

// directIntents dispatch a single specialist task with no planning step.
var directIntents = map[classify.Intent]string{
	classify.IntentCasualChat: "chat",
	classify.IntentTranslate:  "translate",
	classify.IntentSummarize:  "summarize",
	classify.IntentCompute:    "compute",
	classify.IntentToolUse:    "tool",
}

// plannedIntents require the Planner to produce an ordered step list.
var plannedIntents = map[classify.Intent]struct{}{
	classify.IntentKnowledgeLookup: {},
	classify.IntentPlanAndExecute:  {},
}

// greetings is the small static set used by the confidence tie-break, per
// spec §4.9.
var greetings = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "yo": {}, "sup": {}, "hiya": {}, "howdy": {},
}

// SynthesisMode resolves the §9 open question on when a multi-step plan's
// final answer is synthesized rather than returned verbatim.
type SynthesisMode string

const (
	SynthesisAlways   SynthesisMode = "always"
	SynthesisVerbatim SynthesisMode = "verbatim"
	SynthesisAuto     SynthesisMode = "auto"
)

// ConversationTurn is appended to a session's transcript on request receipt
// and completion.
type ConversationTurn struct {
	Role      string
	Text      string
	Timestamp time.Time
	Sources   []eventbus.Source
}

// SessionRecorder persists conversation turns. Implementations live in
// package session; Orchestrator works without one (turns are simply not
// persisted) so it can be exercised standalone in tests.
type SessionRecorder interface {
	AppendTurn(ctx context.Context, sessionID string, turn ConversationTurn) error
}

// Request is a single incoming client chat request.
type Request struct {
	SessionID      string
	ConversationID string
	Query          string
	// Priority defaults to 5 when zero.
	Priority int
}

// Outcome is the terminal result of handling a Request.
type Outcome struct {
	State         State
	Intent        classify.Intent
	Answer        string
	Sources       []eventbus.Source
	LowConfidence bool
	RetryCount    int
}

// Orchestrator binds the classifier, planner, specialists (via the
// scheduler), and quality controller into the state machine of spec §4.9.
type Orchestrator struct {
	registry   *agent.Registry
	scheduler  *agent.Scheduler
	bus        *eventbus.Bus
	classifier *classify.Classifier
	planner    *Planner
	quality    *quality.Controller
	sessions   SessionRecorder
	logger     telemetry.Logger

	synthesisGateway      *llmgateway.Gateway
	synthesisProviderName string
	synthesisModel        string
	synthesisMode         SynthesisMode

	retryCeiling int
	taskTimeout  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSessionRecorder attaches a conversation-turn recorder.
func WithSessionRecorder(r SessionRecorder) Option {
	return func(o *Orchestrator) { o.sessions = r }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRetryCeiling sets the orchestrator's fallback retry ceiling (default
// 2). Handle replaces it with the Quality Controller's RetryCeiling()
// whenever a Controller is configured.
func WithRetryCeiling(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retryCeiling = n
		}
	}
}

// WithTaskTimeout overrides the default per-task timeout (60s), per spec §6.3.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

// WithSynthesisMode overrides the default "auto" synthesis policy.
func WithSynthesisMode(mode SynthesisMode) Option {
	return func(o *Orchestrator) {
		if mode != "" {
			o.synthesisMode = mode
		}
	}
}

// WithSynthesis configures the LLM call used to combine multi-step plan
// outputs into a single answer.
func WithSynthesis(gateway *llmgateway.Gateway, providerName, model string) Option {
	return func(o *Orchestrator) {
		o.synthesisGateway = gateway
		o.synthesisProviderName = providerName
		o.synthesisModel = model
	}
}

// New constructs an Orchestrator. planner may be nil if the deployment never
// routes to a PLANNED intent.
func New(registry *agent.Registry, scheduler *agent.Scheduler, bus *eventbus.Bus, classifier *classify.Classifier, planner *Planner, qc *quality.Controller, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:      registry,
		scheduler:     scheduler,
		bus:           bus,
		classifier:    classifier,
		planner:       planner,
		quality:       qc,
		logger:        telemetry.NewNoopLogger(),
		synthesisMode: SynthesisAuto,
		retryCeiling:  defaultRetryCeiling,
		taskTimeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// defaultRetryCeiling mirrors quality.Controller's own default so an
// Orchestrator built without a Controller still has a sane bound; the
// Controller passed to New is always consulted when present via
// qc.RetryCeiling().
const defaultRetryCeiling = 2

// Handle drives a single Request through RECEIVED → ... → {COMPLETE|FAILED}.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Outcome, error) {
	if req.Priority == 0 {
		req.Priority = 5
	}
	if o.quality != nil {
		o.retryCeiling = o.quality.RetryCeiling()
	}

	o.recordTurn(ctx, req.SessionID, ConversationTurn{Role: "user", Text: req.Query, Timestamp: time.Now().UTC()})
	o.emit(ctx, req.SessionID, "", eventbus.TypeInit, eventbus.StageInit, "received request")

	intent, reason, confidence, err := o.classify(ctx, req)
	if err != nil {
		o.emitError(ctx, req.SessionID, "", eventbus.StageClassifying, err)
		return Outcome{State: StateFailed}, err
	}
	o.emit(ctx, req.SessionID, "", eventbus.TypeStatus, eventbus.StageClassifying, reason)

	var (
		answer      string
		sources     []eventbus.Source
		retryCount  int
		lastInput   = map[string]any{"query": req.Query}
	)

	for {
		answer, sources, err = o.execute(ctx, req, intent, lastInput)
		if err != nil {
			o.emitError(ctx, req.SessionID, "", eventbus.StageFailed, err)
			return Outcome{State: StateFailed, Intent: intent, RetryCount: retryCount}, err
		}

		if o.quality == nil {
			o.recordTurn(ctx, req.SessionID, ConversationTurn{Role: "assistant", Text: answer, Timestamp: time.Now().UTC(), Sources: sources})
			return Outcome{State: StateComplete, Intent: intent, Answer: answer, Sources: sources, RetryCount: retryCount}, nil
		}

		verdict, verr := o.quality.Validate(ctx, req.Query, answer, sources)
		if verr != nil {
			o.emitError(ctx, req.SessionID, "", eventbus.StageFailed, verr)
			return Outcome{State: StateFailed, Intent: intent, RetryCount: retryCount}, verr
		}
		if verdict.OK {
			o.recordTurn(ctx, req.SessionID, ConversationTurn{Role: "assistant", Text: answer, Timestamp: time.Now().UTC(), Sources: sources})
			o.emit(ctx, req.SessionID, "", eventbus.TypeResult, eventbus.StageComplete, "request complete")
			return Outcome{State: StateComplete, Intent: intent, Answer: answer, Sources: sources, RetryCount: retryCount}, nil
		}

		if retryCount >= o.retryCeiling {
			o.recordTurn(ctx, req.SessionID, ConversationTurn{Role: "assistant", Text: answer, Timestamp: time.Now().UTC(), Sources: sources})
			o.emit(ctx, req.SessionID, "", eventbus.TypeResult, eventbus.StageComplete, "request complete (low confidence)")
			return Outcome{State: StateComplete, Intent: intent, Answer: answer, Sources: sources, LowConfidence: true, RetryCount: retryCount}, nil
		}

		retryCount++
		lastInput = o.quality.RetryWithFeedback(lastInput, verdict.Issues)
		o.emit(ctx, req.SessionID, "", eventbus.TypeStatus, eventbus.StageExecuting, "retrying")
	}
}

// classify applies the Query Classifier and the confidence tie-break.
func (o *Orchestrator) classify(ctx context.Context, req Request) (classify.Intent, string, float64, error) {
	// Conversation context is left empty here: a SessionRecorder only
	// appends turns, it does not expose history to read back. A fuller
	// session.Store wired in by the caller can front this with a recent-turns
	// summary if richer context is needed.
	result, err := o.classifier.Classify(ctx, req.Query, "")
	if err != nil {
		return "", "", 0, err
	}
	if result.Confidence < 0.4 && (isShortQuery(req.Query) || isGreeting(req.Query)) {
		return classify.IntentCasualChat, "low-confidence short query treated as casual_chat", result.Confidence, nil
	}
	return result.Intent, result.Reason, result.Confidence, nil
}

// execute dispatches the DIRECT or PLANNED path for intent and returns the
// final answer and the sources it cites.
func (o *Orchestrator) execute(ctx context.Context, req Request, intent classify.Intent, input map[string]any) (string, []eventbus.Source, error) {
	if agentName, ok := directIntents[intent]; ok {
		result, err := o.runStep(ctx, req, Step{Agent: agentName, Input: input})
		if err != nil {
			return "", nil, err
		}
		return resultAnswer(result), resultSources(result), nil
	}

	if _, ok := plannedIntents[intent]; ok {
		if o.planner == nil {
			return "", nil, faults.New(faults.KindInternal, "manager: no planner configured for a planned intent")
		}
		o.emit(ctx, req.SessionID, "", eventbus.TypeStatus, eventbus.StagePlanning, "planning")
		steps, err := o.planner.Plan(ctx, req.Query)
		if err != nil {
			return "", nil, err
		}
		return o.executePlan(ctx, req, steps, input)
	}

	return "", nil, faults.New(faults.KindBadInput, fmt.Sprintf("manager: intent %q has no registered path", intent))
}

// executePlan runs steps sequentially, emitting progress before each, and
// synthesizes a final answer according to synthesisMode.
func (o *Orchestrator) executePlan(ctx context.Context, req Request, steps []Step, feedbackInput map[string]any) (string, []eventbus.Source, error) {
	var (
		answers []string
		sources []eventbus.Source
	)
	for i, step := range steps {
		o.emit(ctx, req.SessionID, "", eventbus.TypeProgress, eventbus.StageExecuting,
			fmt.Sprintf("step %d/%d: %s", i+1, len(steps), step.Agent))

		stepInput := step.Input
		if i == 0 {
			for k, v := range feedbackInput {
				if _, exists := stepInput[k]; !exists {
					stepInput[k] = v
				}
			}
		}

		result, err := o.runStep(ctx, req, Step{Agent: step.Agent, Input: stepInput})
		if err != nil {
			return "", nil, err
		}
		answers = append(answers, resultAnswer(result))
		sources = append(sources, resultSources(result)...)
	}

	if o.synthesisMode == SynthesisVerbatim || (len(steps) == 1 && o.synthesisMode != SynthesisAlways) {
		return answers[len(answers)-1], sources, nil
	}
	if o.synthesisMode == SynthesisAuto || o.synthesisMode == SynthesisAlways {
		answer, err := o.synthesize(ctx, req.Query, answers)
		if err != nil {
			return "", nil, err
		}
		o.emit(ctx, req.SessionID, "", eventbus.TypeStatus, eventbus.StageSynthesis, "synthesized final answer")
		return answer, sources, nil
	}
	return answers[len(answers)-1], sources, nil
}

// synthesize combines step answers into one with a final LLM call.
func (o *Orchestrator) synthesize(ctx context.Context, query string, answers []string) (string, error) {
	if o.synthesisGateway == nil {
		return strings.Join(answers, "\n\n"), nil
	}
	var b strings.Builder
	b.WriteString("Combine the following step results into a single answer to: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	for i, a := range answers {
		fmt.Fprintf(&b, "Step %d result: %s\n", i+1, a)
	}
	resp, err := o.synthesisGateway.Complete(ctx, o.synthesisProviderName, llmgateway.Request{
		Model:       o.synthesisModel,
		Prompt:      b.String(),
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// runStep submits a single task for step and blocks until it reaches a
// terminal state, observed via the bus rather than polling the scheduler,
// so the orchestrator forwards each task's own events as they occur.
func (o *Orchestrator) runStep(ctx context.Context, req Request, step Step) (map[string]any, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.taskTimeout)
	defer cancel()

	sub := o.bus.Subscribe(req.SessionID)
	defer sub.Close()

	task := agent.Task{
		ID:         "task_" + strings.ToLower(ulid.Make().String()),
		SessionID:  req.SessionID,
		TargetName: step.Agent,
		Input:      step.Input,
		Priority:   req.Priority,
		State:      agent.TaskQueued,
	}
	taskID, err := o.scheduler.Submit(runCtx, task)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case evt, ok := <-sub.Events:
			if !ok {
				return nil, faults.New(faults.KindInternal, "manager: event subscription closed before task completion")
			}
			if evt.TaskID != taskID {
				continue
			}
			if evt.Stage != eventbus.StageComplete && evt.Stage != eventbus.StageFailed {
				continue
			}
			final, ok := o.scheduler.Lookup(taskID)
			if !ok {
				return nil, faults.New(faults.KindInternal, "manager: completed task vanished from scheduler")
			}
			switch final.State {
			case agent.TaskSucceeded:
				return final.Result, nil
			case agent.TaskInterrupted:
				return nil, faults.New(faults.KindInterrupted, "task interrupted")
			default:
				return nil, faults.New(faults.KindInternal, final.FailureDetail)
			}
		case <-runCtx.Done():
			_ = o.scheduler.Interrupt(taskID)
			return nil, faults.New(faults.KindTimeout, "manager: task timed out")
		}
	}
}

func (o *Orchestrator) recordTurn(ctx context.Context, sessionID string, turn ConversationTurn) {
	if o.sessions == nil {
		return
	}
	if err := o.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		o.logger.Warn(ctx, "manager: failed to record conversation turn", "session_id", sessionID, "err", err.Error())
	}
}

func (o *Orchestrator) emit(ctx context.Context, sessionID, taskID string, typ eventbus.Type, stage eventbus.Stage, message string) {
	if o.bus == nil {
		return
	}
	evt := eventbus.NewBuilder(sessionID, taskID, typ, stage, eventbus.AgentRef{Name: managerAgentName}).
		WithMessage(message).
		Build()
	_ = o.bus.Emit(ctx, evt)
}

func (o *Orchestrator) emitError(ctx context.Context, sessionID, taskID string, stage eventbus.Stage, err error) {
	if o.bus == nil {
		return
	}
	kind := string(faults.KindInternal)
	if f, ok := faults.As(err); ok {
		kind = string(f.Kind())
	}
	evt := eventbus.NewBuilder(sessionID, taskID, eventbus.TypeError, stage, eventbus.AgentRef{Name: managerAgentName}).
		WithMessage(err.Error()).
		WithFaultKind(kind).
		Build()
	_ = o.bus.Emit(ctx, evt)
}

func resultAnswer(result map[string]any) string {
	if v, ok := result["answer"].(string); ok {
		return v
	}
	return ""
}

func resultSources(result map[string]any) []eventbus.Source {
	v, ok := result["sources"]
	if !ok {
		return nil
	}
	sources, ok := v.([]eventbus.Source)
	if !ok {
		return nil
	}
	return sources
}

// isShortQuery reports whether query is at most 3 whitespace-separated
// tokens, per the §4.9 confidence tie-break.
func isShortQuery(query string) bool {
	return len(strings.Fields(query)) <= 3
}

// isGreeting reports whether query (case-insensitively, trimmed of
// punctuation) matches the small static greeting set.
func isGreeting(query string) bool {
	trimmed := strings.ToLower(strings.Trim(strings.TrimSpace(query), "!.,? "))
	_, ok := greetings[trimmed]
	return ok
}
