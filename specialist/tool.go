package specialist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// ToolAdapter is the seam external tool integrations (spreadsheet, email,
// web search, OCR — out of scope per spec §1, only their consumed
// interface is specified) implement to be invoked by the Tool specialist.
type ToolAdapter interface {
	Name() string
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// toolDecision is the strict shape the LLM Gateway is asked to return when
// choosing which tool to invoke.
type toolDecision struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Tool answers tool_use intents: it asks the LLM Gateway which registered
// adapter to invoke and with what arguments, invokes it, then asks the
// gateway again to phrase the adapter's raw output as a natural-language
// answer. Neither the routing call nor the phrasing call bypass the
// gateway, per spec §4.10.
type Tool struct {
	gateway        *llmgateway.Gateway
	providerName   string
	model          string
	prompts        *prompt.Registry
	routeTemplate  string
	answerTemplate string
	adapters       map[string]ToolAdapter
}

// NewTool constructs a Tool specialist bound to the "tool" agent name.
// routeTemplate must accept a "query" placeholder and instruct the model to
// reply with {"tool": "...", "args": {...}}; answerTemplate must accept
// "query" and "result" placeholders.
func NewTool(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, routeTemplate, answerTemplate string, adapters ...ToolAdapter) *Tool {
	byName := make(map[string]ToolAdapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	return &Tool{
		gateway:        gateway,
		providerName:   providerName,
		model:          model,
		prompts:        prompts,
		routeTemplate:  routeTemplate,
		answerTemplate: answerTemplate,
		adapters:       byName,
	}
}

func (t *Tool) Name() string           { return "tool" }
func (t *Tool) Capabilities() []string { return []string{"tool_use"} }

func (t *Tool) Handle(ctx context.Context, task agent.Task) (map[string]any, error) {
	query, ok := inputQuery(task.Input)
	if !ok {
		return nil, faults.New(faults.KindBadInput, "tool: task input missing \"query\"")
	}

	decision, err := t.route(ctx, query)
	if err != nil {
		return nil, err
	}
	adapter, ok := t.adapters[decision.Tool]
	if !ok {
		return nil, faults.New(faults.KindBadInput, fmt.Sprintf("tool: no adapter registered for %q", decision.Tool))
	}
	toolResult, err := adapter.Invoke(ctx, decision.Args)
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, "tool: adapter invocation failed", err)
	}

	answer, err := t.phraseAnswer(ctx, query, toolResult)
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": answer}, nil
}

func (t *Tool) route(ctx context.Context, query string) (toolDecision, error) {
	tpl, err := t.prompts.Get(t.routeTemplate)
	if err != nil {
		return toolDecision{}, err
	}
	rendered, err := tpl.Render(map[string]string{"query": query})
	if err != nil {
		return toolDecision{}, err
	}
	resp, err := t.gateway.Complete(ctx, t.providerName, llmgateway.Request{
		Model:       t.model,
		Prompt:      rendered,
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return toolDecision{}, err
	}
	var decision toolDecision
	if err := json.Unmarshal([]byte(resp.Text), &decision); err != nil {
		return toolDecision{}, faults.Wrap(faults.KindInternal, "tool: routing response is not valid JSON", err)
	}
	if decision.Tool == "" {
		return toolDecision{}, faults.New(faults.KindInternal, "tool: routing response named no tool")
	}
	return decision, nil
}

func (t *Tool) phraseAnswer(ctx context.Context, query string, toolResult map[string]any) (string, error) {
	tpl, err := t.prompts.Get(t.answerTemplate)
	if err != nil {
		return "", err
	}
	resultJSON, err := json.Marshal(toolResult)
	if err != nil {
		return "", faults.Wrap(faults.KindInternal, "tool: marshal tool result", err)
	}
	rendered, err := tpl.Render(map[string]string{"query": query, "result": string(resultJSON)})
	if err != nil {
		return "", err
	}
	resp, err := t.gateway.Complete(ctx, t.providerName, llmgateway.Request{
		Model:       t.model,
		Prompt:      rendered,
		Temperature: 0.3,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
