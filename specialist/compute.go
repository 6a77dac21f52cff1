package specialist

import (
	"context"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// Compute answers compute intents through the LLM Gateway. Per spec §4.10 it
// must not bypass the gateway even though the underlying work is
// arithmetic/deterministic, so that token accounting and retry-with-feedback
// apply uniformly across specialists.
type Compute struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
}

// NewCompute constructs a Compute specialist bound to the "compute" agent
// name.
func NewCompute(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string) *Compute {
	return &Compute{gateway: gateway, providerName: providerName, model: model, prompts: prompts, templateKey: templateKey}
}

func (c *Compute) Name() string           { return "compute" }
func (c *Compute) Capabilities() []string { return []string{"compute"} }

func (c *Compute) Handle(ctx context.Context, task agent.Task) (map[string]any, error) {
	query, ok := inputQuery(task.Input)
	if !ok {
		return nil, faults.New(faults.KindBadInput, "compute: task input missing \"query\"")
	}

	tpl, err := c.prompts.Get(c.templateKey)
	if err != nil {
		return nil, err
	}
	rendered, err := tpl.Render(map[string]string{"query": appendFeedback(query, task.Input)})
	if err != nil {
		return nil, err
	}

	resp, err := c.gateway.Complete(ctx, c.providerName, llmgateway.Request{
		Model:       c.model,
		Prompt:      rendered,
		Temperature: 0,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": resp.Text}, nil
}
