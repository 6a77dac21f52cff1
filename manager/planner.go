package manager

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// Step is one unit of work in a plan, naming the specialist agent that
// executes it and the input it receives.
type Step struct {
	Agent string         `json:"agent"`
	Input map[string]any `json:"input"`
}

// Planner produces an ordered list of steps for the PLANNED path (intents
// knowledge_lookup and plan_and_execute), per spec §4.9.
type Planner struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
}

// NewPlanner constructs a Planner. templateKey names the planning prompt
// template, which must accept a "query" placeholder.
func NewPlanner(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string) *Planner {
	return &Planner{gateway: gateway, providerName: providerName, model: model, prompts: prompts, templateKey: templateKey}
}

// Plan asks the LLM Gateway for an ordered step list addressing query.
func (p *Planner) Plan(ctx context.Context, query string) ([]Step, error) {
	tpl, err := p.prompts.Get(p.templateKey)
	if err != nil {
		return nil, err
	}
	rendered, err := tpl.Render(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	resp, err := p.gateway.Complete(ctx, p.providerName, llmgateway.Request{
		Model:       p.model,
		Prompt:      rendered,
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Text)
	var steps []Step
	if err := json.Unmarshal([]byte(text), &steps); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "manager: plan response is not a JSON step array", err)
	}
	if len(steps) == 0 {
		return nil, faults.New(faults.KindInternal, "manager: plan produced no steps")
	}
	for i, s := range steps {
		if strings.TrimSpace(s.Agent) == "" {
			return nil, faults.New(faults.KindInternal, "manager: plan step has no agent")
		}
		if steps[i].Input == nil {
			steps[i].Input = map[string]any{}
		}
	}
	return steps, nil
}
