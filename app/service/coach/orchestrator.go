package coach

import (
	"context"
	"encoding/json"
	"familycoach/app/client/llm"
	"familycoach/app/config"
	"familycoach/app/service/digest"
	"familycoach/app/service/safety"
	"familycoach/app/service/session"
	"familycoach/app/service/tools"
	"familycoach/app/util/metrics"
	"familycoach/app/util/mylog"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/samber/do"
)

//go:embed coach_prompt.txt
var coachPromptTemplate string

//go:embed safety_prompt.txt
var safetyPromptTemplate string

type Options struct {
	MaxRounds     int
	ModelTimeout  time.Duration
	ModelAttempts int
	ToolTimeout   time.Duration
	ToolAttempts  int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	// Premature answers sent back to the model before the orchestrator
	// issues the required tool calls itself.
	RepromptAttempts int
	ServiceType      tools.ServiceType
}

func DefaultOptions() Options {
	return Options{
		MaxRounds:     6,
		ModelTimeout:  30 * time.Second,
		ModelAttempts: 2,
		ToolTimeout:   5 * time.Second,
		ToolAttempts:  3,
		BackoffBase:   200 * time.Millisecond,
		BackoffCap:    2 * time.Second,
		ServiceType:   tools.Hospital,
	}
}

// Outcome describes a finished turn. It is filled in as far as the turn
// got, also when RunTurn returns an error.
type Outcome struct {
	Message   string
	Risk      bool
	Degraded  bool
	Rounds    int
	ToolCalls []string
	Location  *tools.Location
	Services  []tools.Service
}

type Orchestrator struct {
	model      llm.Model
	registry   *tools.Registry
	classifier *safety.Classifier
	metrics    *metrics.Metrics
	opts       Options
}

func New(di *do.Injector) (*Orchestrator, error) {
	cfg := do.MustInvoke[*config.Config](di)

	opts := Options{
		MaxRounds:        cfg.Coach.MaxRounds,
		ModelTimeout:     cfg.Model.Timeout,
		ModelAttempts:    cfg.Model.MaxAttempts,
		ToolTimeout:      cfg.Tools.Timeout,
		ToolAttempts:     cfg.Tools.MaxAttempts,
		BackoffBase:      cfg.Tools.BackoffBase,
		BackoffCap:       cfg.Tools.BackoffCap,
		RepromptAttempts: cfg.Safety.RepromptAttempts,
		ServiceType:      tools.ServiceType(cfg.Safety.ServiceType),
	}

	return NewOrchestrator(
		do.MustInvoke[llm.Model](di),
		do.MustInvoke[*tools.Registry](di),
		do.MustInvoke[*safety.Classifier](di),
		do.MustInvoke[*metrics.Metrics](di),
		opts,
	), nil
}

func NewOrchestrator(
	model llm.Model,
	registry *tools.Registry,
	classifier *safety.Classifier,
	m *metrics.Metrics,
	opts Options,
) *Orchestrator {
	defaults := DefaultOptions()
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaults.MaxRounds
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = defaults.ModelTimeout
	}
	if opts.ModelAttempts <= 0 {
		opts.ModelAttempts = defaults.ModelAttempts
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = defaults.ToolTimeout
	}
	if opts.ToolAttempts <= 0 {
		opts.ToolAttempts = defaults.ToolAttempts
	}
	if opts.BackoffCap < opts.BackoffBase {
		opts.BackoffCap = opts.BackoffBase
	}
	if opts.ServiceType == "" {
		opts.ServiceType = defaults.ServiceType
	}

	return &Orchestrator{
		model:      model,
		registry:   registry,
		classifier: classifier,
		metrics:    m,
		opts:       opts,
	}
}

// RunTurn produces the assistant answer to userMessage. history is not
// modified. A risk-indicating message is only answered after the user's
// location and nearby services have been looked up, or after that
// sequence failed and the turn degraded.
func (o *Orchestrator) RunTurn(
	ctx context.Context,
	history []session.Turn,
	dg digest.Digest,
	userMessage string,
) (*Outcome, error) {
	t := &turn{
		orchestrator: o,
		tracker:      safety.NewTracker(),
		digest:       dg,
		started:      time.Now(),
		messages:     toMessages(history, userMessage),
	}

	assessment := o.classifier.Assess(userMessage)
	t.tracker.Classify(assessment)
	t.outcome.Risk = assessment.Risk

	if assessment.Risk {
		slog.Warn("Risk-indicating message, running safety sequence",
			"matched", assessment.Matched,
			mylog.TelegramKey, true,
		)
	}

	return t.run(ctx)
}

func (o *Orchestrator) systemPrompt(dg digest.Digest, risk bool) string {
	safetyInstructions := ""
	if risk {
		safetyInstructions = fillTemplate(safetyPromptTemplate,
			"location_tool", tools.GetUserLocation,
			"services_tool", tools.FindNearbyServices,
			"service_type", string(o.opts.ServiceType),
			"disclaimer", safety.Disclaimer,
		)
	}

	return strings.TrimSpace(fillTemplate(coachPromptTemplate,
		"safety_instructions", safetyInstructions,
		"family_context", string(dg),
	))
}

// turn holds the working state of one RunTurn call.
type turn struct {
	orchestrator *Orchestrator
	tracker      *safety.Tracker
	digest       digest.Digest
	started      time.Time

	messages    []llm.Message
	outcome     Outcome
	reprompts   int
	synthesized int
	// A regular turn gets one extra round when the model replied with tool
	// calls and no text.
	corrected bool
}

func (t *turn) run(ctx context.Context) (*Outcome, error) {
	o := t.orchestrator
	risk := t.tracker.Risk()

	req := llm.Request{
		System: o.systemPrompt(t.digest, risk),
	}
	if risk {
		req.Tools = o.registry.Declarations()
	}

	for t.outcome.Rounds < o.opts.MaxRounds {
		if err := ctx.Err(); err != nil {
			return t.finish("cancelled", err)
		}

		if t.mustSynthesize() {
			t.synthesize(ctx)
			continue
		}

		t.outcome.Rounds++
		req.Messages = t.messages

		resp, err := o.generate(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return t.finish("cancelled", ctx.Err())
			}
			return t.finish("provider_error", err)
		}

		if !risk && len(resp.ToolCalls) > 0 {
			for _, call := range resp.ToolCalls {
				slog.Debug("Dropping tool call on a regular turn", "tool", call.Name)
				o.metrics.ObserveToolCall(call.Name, "refused")
			}

			if strings.TrimSpace(resp.Content) == "" {
				if t.corrected {
					break
				}

				t.corrected = true
				t.messages = append(t.messages, llm.Message{
					Role:    llm.RoleSystem,
					Content: "Tools are not available for this message. Answer the user directly.",
				})
				continue
			}

			return t.answer(resp.Content)
		}

		if len(resp.ToolCalls) == 0 {
			if !t.tracker.Terminal() {
				t.reprompt()
				continue
			}

			return t.answer(resp.Content)
		}

		t.messages = append(t.messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			t.messages = append(t.messages, t.execute(ctx, call))
		}
	}

	slog.Warn("Turn round limit reached",
		"rounds", t.outcome.Rounds,
		"risk", risk,
		"state", t.tracker.State().String(),
		mylog.TelegramKey, risk,
	)

	return t.finish("unresolved", &SafetyUnresolvedError{
		Rounds: t.outcome.Rounds,
		State:  t.tracker.State(),
		Risk:   risk,
	})
}

func (t *turn) mustSynthesize() bool {
	return t.tracker.Required() != "" && t.reprompts >= t.orchestrator.opts.RepromptAttempts
}

// synthesize issues the outstanding required tool call without asking the
// model. It always moves the tracker forward: when the call does not
// advance the sequence, the step is marked failed.
func (t *turn) synthesize(ctx context.Context) {
	required := t.tracker.Required()

	var arguments json.RawMessage
	switch required {
	case tools.GetUserLocation:
		arguments = json.RawMessage(`{}`)
	case tools.FindNearbyServices:
		location, _ := t.tracker.Location()
		arguments, _ = json.Marshal(tools.ServicesInput{
			ServiceType: t.orchestrator.opts.ServiceType,
			Location:    location,
		})
	}

	t.synthesized++
	call := llm.ToolCall{
		ID:        fmt.Sprintf("safety-%d", t.synthesized),
		Name:      required,
		Arguments: arguments,
	}

	slog.Debug("Issuing required tool call", "tool", required, "id", call.ID)

	t.messages = append(t.messages,
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
		t.execute(ctx, call),
	)

	if t.tracker.Required() == required {
		t.tracker.Failed(required)
	}
}

func (t *turn) reprompt() {
	t.reprompts++

	slog.Debug("Discarding answer given before the safety sequence finished",
		"required", t.tracker.Required(),
		"reprompts", t.reprompts,
	)

	t.messages = append(t.messages, llm.Message{
		Role: llm.RoleSystem,
		Content: fmt.Sprintf("Do not answer the user yet. Call the %s tool first and answer only after it returned.",
			t.tracker.Required()),
	})
}

// execute runs one tool call on a risk turn and returns the tool message
// fed back to the model. Calls the tracker does not allow yet are refused
// without reaching the tool and count as a reprompt.
func (t *turn) execute(ctx context.Context, call llm.ToolCall) llm.Message {
	o := t.orchestrator

	if err := t.tracker.Allow(call.Name, call.Arguments); err != nil {
		slog.Debug("Refusing out of sequence tool call",
			"tool", call.Name,
			"state", t.tracker.State().String(),
			"error", err,
		)
		o.metrics.ObserveToolCall(call.Name, "refused")
		if !t.tracker.Terminal() {
			t.reprompts++
		}

		return toolError(call, err)
	}

	t.tracker.Issued(call.Name)
	t.outcome.ToolCalls = append(t.outcome.ToolCalls, call.Name)

	result, err := o.invoke(ctx, call)
	o.metrics.ObserveToolCall(call.Name, tools.Kind(err))

	if err != nil {
		slog.Warn("Tool call failed",
			"tool", call.Name,
			"kind", tools.Kind(err),
			"error", err,
		)

		if tools.IsRetryable(err) {
			t.tracker.Failed(call.Name)
		}

		return toolError(call, err)
	}

	t.tracker.Succeeded(call.Name, call.Arguments, result)

	payload, err := json.Marshal(result)
	if err != nil {
		return toolError(call, fmt.Errorf("failed to encode result: %w", err))
	}

	return llm.Message{
		Role:       llm.RoleTool,
		Content:    string(payload),
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

func (t *turn) answer(content string) (*Outcome, error) {
	text := strings.TrimSpace(content)

	if t.tracker.Risk() {
		text = safety.EnsureResources(text, t.tracker.Services())
		text = safety.EnsureDisclaimer(text)
	}

	t.outcome.Message = text

	label := "answered"
	if t.tracker.Degraded() {
		label = "degraded"
	}

	return t.finish(label, nil)
}

func (t *turn) finish(label string, err error) (*Outcome, error) {
	o := t.orchestrator

	t.outcome.Degraded = t.tracker.Degraded()
	t.outcome.Services = t.tracker.Services()
	if location, ok := t.tracker.Location(); ok {
		t.outcome.Location = &location
	}

	o.metrics.ObserveTurn(label, t.outcome.Rounds, time.Since(t.started))
	if t.outcome.Risk {
		o.metrics.ObserveSafety(label)
	}

	return &t.outcome, err
}

// invoke calls a tool with a per-attempt timeout, retrying execution and
// availability failures with capped exponential backoff.
func (o *Orchestrator) invoke(ctx context.Context, call llm.ToolCall) (any, error) {
	var lastErr error

	for attempt := range o.opts.ToolAttempts {
		if attempt > 0 {
			if err := sleep(ctx, backoff(attempt-1, o.opts.BackoffBase, o.opts.BackoffCap)); err != nil {
				return nil, tools.Unavailable(call.Name, err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.opts.ToolTimeout)
		result, err := o.registry.Invoke(callCtx, call.Name, call.Arguments)
		cancel()

		if err == nil {
			return result, nil
		}

		lastErr = err
		if !tools.IsRetryable(err) || ctx.Err() != nil {
			break
		}

		slog.Debug("Retrying tool call", "tool", call.Name, "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

func (o *Orchestrator) generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var lastErr error

	for attempt := range o.opts.ModelAttempts {
		if attempt > 0 {
			if err := sleep(ctx, backoff(attempt-1, o.opts.BackoffBase, o.opts.BackoffCap)); err != nil {
				return nil, err
			}
		}

		roundCtx, cancel := context.WithTimeout(ctx, o.opts.ModelTimeout)
		resp, err := o.model.Generate(roundCtx, req)
		cancel()

		if err == nil && resp != nil && (strings.TrimSpace(resp.Content) != "" || len(resp.ToolCalls) > 0) {
			return resp, nil
		}
		if err == nil {
			err = errEmptyReply
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		slog.Warn("Model round-trip failed", "attempt", attempt+1, "error", err)
	}

	return nil, &ModelProviderError{Attempts: o.opts.ModelAttempts, Err: lastErr}
}
