package specialist

import (
	"context"
	"fmt"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// Chat answers casual_chat intents directly through the LLM Gateway, with
// no retrieval step.
type Chat struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
}

// NewChat constructs a Chat specialist bound to the "chat" agent name.
func NewChat(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string) *Chat {
	return &Chat{gateway: gateway, providerName: providerName, model: model, prompts: prompts, templateKey: templateKey}
}

func (c *Chat) Name() string          { return "chat" }
func (c *Chat) Capabilities() []string { return []string{"casual_chat"} }

// Handle renders the chat prompt from task.Input["query"] (and any
// "feedback" from a prior quality-controller rejection) and returns the
// gateway's answer.
func (c *Chat) Handle(ctx context.Context, task agent.Task) (map[string]any, error) {
	query, ok := inputQuery(task.Input)
	if !ok {
		return nil, faults.New(faults.KindBadInput, "chat: task input missing \"query\"")
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
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": resp.Text}, nil
}

// appendFeedback folds a prior validation failure's issues into query so
// the next attempt addresses them, per spec §4.8's retry_with_feedback.
func appendFeedback(query string, input map[string]any) string {
	issues, ok := inputFeedback(input)
	if !ok || len(issues) == 0 {
		return query
	}
	out := query + "\n\nPrevious attempt was rejected for:"
	for _, issue := range issues {
		out += fmt.Sprintf("\n- %s", issue)
	}
	return out
}
