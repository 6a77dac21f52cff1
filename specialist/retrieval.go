package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
	"github.com/cortexmesh/orchestrator/retrieval"
)

// defaultK is how many sources Retrieval fetches when task.Input carries no
// explicit "k".
const defaultK = 5

// Retrieval answers knowledge_lookup steps: it calls the Retrieval Layer
// (query_auto, or query_multi when task.Input names explicit stores), then
// the LLM Gateway to synthesize the final answer from the fetched sources.
type Retrieval struct {
	layer        *retrieval.Layer
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
}

// NewRetrieval constructs a Retrieval specialist bound to the "retrieval"
// agent name.
func NewRetrieval(layer *retrieval.Layer, gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string) *Retrieval {
	return &Retrieval{layer: layer, gateway: gateway, providerName: providerName, model: model, prompts: prompts, templateKey: templateKey}
}

func (r *Retrieval) Name() string           { return "retrieval" }
func (r *Retrieval) Capabilities() []string { return []string{"knowledge_lookup", "retrieval"} }

func (r *Retrieval) Handle(ctx context.Context, task agent.Task) (map[string]any, error) {
	query, ok := inputQuery(task.Input)
	if !ok {
		return nil, faults.New(faults.KindBadInput, "retrieval: task input missing \"query\"")
	}

	k := defaultK
	if explicit, ok := task.Input["k"].(int); ok && explicit > 0 {
		k = explicit
	}

	var (
		sources []eventbus.Source
		err     error
	)
	if stores, ok := task.Input["stores"].([]string); ok && len(stores) > 0 {
		sources, err = r.layer.QueryMulti(ctx, stores, query, k)
	} else {
		sources, err = r.layer.QueryAuto(ctx, query, k)
	}
	if err != nil {
		return nil, err
	}

	tpl, terr := r.prompts.Get(r.templateKey)
	if terr != nil {
		return nil, terr
	}
	rendered, terr := tpl.Render(map[string]string{
		"query":   appendFeedback(query, task.Input),
		"sources": formatSources(sources),
	})
	if terr != nil {
		return nil, terr
	}

	resp, err := r.gateway.Complete(ctx, r.providerName, llmgateway.Request{
		Model:       r.model,
		Prompt:      rendered,
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"answer": resp.Text, "sources": sources}, nil
}

func formatSources(sources []eventbus.Source) string {
	var b strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&b, "[%s:%s score=%.2f] %s\n", s.Store, s.DocID, s.Score, s.Text)
	}
	return b.String()
}
