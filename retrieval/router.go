package retrieval

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
)

// LLMRouter selects stores for QueryAuto by asking the LLM Gateway to pick
// from a set of store descriptions, per spec §4.5.
type LLMRouter struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	// Descriptions maps a store name to a short human-readable description
	// used to build the routing prompt.
	Descriptions map[string]string
}

// NewLLMRouter constructs an LLMRouter.
func NewLLMRouter(gateway *llmgateway.Gateway, providerName, model string, descriptions map[string]string) *LLMRouter {
	return &LLMRouter{gateway: gateway, providerName: providerName, model: model, Descriptions: descriptions}
}

// SelectStores implements Router.
func (r *LLMRouter) SelectStores(ctx context.Context, query string, available []string) ([]string, error) {
	if len(available) == 0 {
		return nil, faults.New(faults.KindBadInput, "retrieval: no stores available to route")
	}

	var b strings.Builder
	b.WriteString("Given the user query and the following available stores, choose which stores are relevant.\n")
	b.WriteString("Respond with ONLY a JSON array of store names, e.g. [\"docs\", \"tickets\"].\n\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nStores:\n")
	for _, name := range available {
		b.WriteString("- ")
		b.WriteString(name)
		if desc, ok := r.Descriptions[name]; ok && desc != "" {
			b.WriteString(": ")
			b.WriteString(desc)
		}
		b.WriteString("\n")
	}

	resp, err := r.gateway.Complete(ctx, r.providerName, llmgateway.Request{
		Model:       r.model,
		Prompt:      b.String(),
		Temperature: 0,
		MaxTokens:   128,
	})
	if err != nil {
		return nil, err
	}

	var selected []string
	if err := json.Unmarshal([]byte(resp.Text), &selected); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "retrieval: routing response is not a JSON array", err)
	}

	allowed := make(map[string]struct{}, len(available))
	for _, name := range available {
		allowed[name] = struct{}{}
	}
	filtered := selected[:0]
	for _, name := range selected {
		if _, ok := allowed[name]; ok {
			filtered = append(filtered, name)
		}
	}
	if len(filtered) == 0 {
		return nil, faults.New(faults.KindInternal, "retrieval: routing selected no known stores")
	}
	return filtered, nil
}
