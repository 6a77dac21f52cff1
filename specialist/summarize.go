package specialist

import (
	"context"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// Summarize answers summarize intents through the LLM Gateway.
type Summarize struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
}

// NewSummarize constructs a Summarize specialist bound to the "summarize"
// agent name.
func NewSummarize(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string) *Summarize {
	return &Summarize{gateway: gateway, providerName: providerName, model: model, prompts: prompts, templateKey: templateKey}
}

func (s *Summarize) Name() string           { return "summarize" }
func (s *Summarize) Capabilities() []string { return []string{"summarize"} }

func (s *Summarize) Handle(ctx context.Context, task agent.Task) (map[string]any, error) {
	query, ok := inputQuery(task.Input)
	if !ok {
		return nil, faults.New(faults.KindBadInput, "summarize: task input missing \"query\"")
	}

	tpl, err := s.prompts.Get(s.templateKey)
	if err != nil {
		return nil, err
	}
	rendered, err := tpl.Render(map[string]string{"query": appendFeedback(query, task.Input)})
	if err != nil {
		return nil, err
	}

	resp, err := s.gateway.Complete(ctx, s.providerName, llmgateway.Request{
		Model:       s.model,
		Prompt:      rendered,
		Temperature: 0.3,
		MaxTokens:   768,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": resp.Text}, nil
}
