package specialist

import (
	"context"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// Translate answers translate intents through the LLM Gateway. It expects
// task.Input to carry "query" (text to translate) and "target_language".
type Translate struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
}

// NewTranslate constructs a Translate specialist bound to the "translate"
// agent name.
func NewTranslate(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string) *Translate {
	return &Translate{gateway: gateway, providerName: providerName, model: model, prompts: prompts, templateKey: templateKey}
}

func (t *Translate) Name() string           { return "translate" }
func (t *Translate) Capabilities() []string { return []string{"translate"} }

func (t *Translate) Handle(ctx context.Context, task agent.Task) (map[string]any, error) {
	query, ok := inputQuery(task.Input)
	if !ok {
		return nil, faults.New(faults.KindBadInput, "translate: task input missing \"query\"")
	}
	targetLanguage, _ := task.Input["target_language"].(string)
	if targetLanguage == "" {
		targetLanguage = "English"
	}

	tpl, err := t.prompts.Get(t.templateKey)
	if err != nil {
		return nil, err
	}
	rendered, err := tpl.Render(map[string]string{
		"query":           appendFeedback(query, task.Input),
		"target_language": targetLanguage,
	})
	if err != nil {
		return nil, err
	}

	resp, err := t.gateway.Complete(ctx, t.providerName, llmgateway.Request{
		Model:       t.model,
		Prompt:      rendered,
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": resp.Text}, nil
}
