// Package classify implements the Query Classifier (spec §4.7): an
// LLM-backed intent classifier over a fixed intent enum, enforcing a
// strict JSON response schema.
package classify

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// Intent is one of the fixed set of classifier outcomes enumerated at
// startup.
type Intent string

const (
	IntentCasualChat      Intent = "casual_chat"
	IntentKnowledgeLookup Intent = "knowledge_lookup"
	IntentCompute         Intent = "compute"
	IntentTranslate       Intent = "translate"
	IntentSummarize       Intent = "summarize"
	IntentToolUse         Intent = "tool_use"
	IntentPlanAndExecute  Intent = "plan_and_execute"
	IntentUnknown         Intent = "unknown"
)

var validIntents = map[Intent]struct{}{
	IntentCasualChat: {}, IntentKnowledgeLookup: {}, IntentCompute: {},
	IntentTranslate: {}, IntentSummarize: {}, IntentToolUse: {},
	IntentPlanAndExecute: {}, IntentUnknown: {},
}

// Result is the outcome of a classification call.
type Result struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// responseSchema is the strict JSON Schema every classifier response must
// satisfy before it is accepted.
const responseSchema = `{
	"type": "object",
	"required": ["intent", "confidence", "reason"],
	"properties": {
		"intent": {"type": "string", "enum": ["casual_chat", "knowledge_lookup", "compute", "translate", "summarize", "tool_use", "plan_and_execute", "unknown"]},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"reason": {"type": "string"}
	},
	"additionalProperties": false
}`

// classifyTemperature caps the gateway temperature at 0.2, per spec §4.7.
const classifyTemperature = 0.2

// Classifier classifies a query into one of the fixed intents using the
// LLM Gateway and a dedicated prompt template.
type Classifier struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
	schema       *jsonschema.Schema
}

// New constructs a Classifier. templateKey names the prompt template (in
// prompts) used to render the classification request; it must accept a
// "query" placeholder.
func New(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string) (*Classifier, error) {
	var schemaDoc any
	if err := json.Unmarshal([]byte(responseSchema), &schemaDoc); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "classify: parse response schema", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("classify-response.json", schemaDoc); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "classify: compile response schema", err)
	}
	schema, err := c.Compile("classify-response.json")
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, "classify: compile response schema", err)
	}

	return &Classifier{
		gateway:      gateway,
		providerName: providerName,
		model:        model,
		prompts:      prompts,
		templateKey:  templateKey,
		schema:       schema,
	}, nil
}

// Classify returns the intent, confidence, and reason for query. An empty
// query never reaches the LLM Gateway: it is unknown with confidence 0.
// On a malformed response, Classify retries once with a stricter prompt
// before giving up and returning unknown/0, per spec §4.7.
func (c *Classifier) Classify(ctx context.Context, query, conversationContext string) (Result, error) {
	if query == "" {
		return Result{Intent: IntentUnknown, Confidence: 0, Reason: "empty query"}, nil
	}

	tpl, err := c.prompts.Get(c.templateKey)
	if err != nil {
		return Result{}, err
	}
	rendered, err := tpl.Render(map[string]string{"query": query, "context": conversationContext})
	if err != nil {
		return Result{}, err
	}

	result, err := c.attempt(ctx, rendered)
	if err == nil {
		return result, nil
	}

	strict := rendered + "\n\nRespond with ONLY a single JSON object matching the required schema. No prose, no markdown fences."
	result, err = c.attempt(ctx, strict)
	if err != nil {
		return Result{Intent: IntentUnknown, Confidence: 0, Reason: "classification failed"}, nil
	}
	return result, nil
}

func (c *Classifier) attempt(ctx context.Context, rendered string) (Result, error) {
	resp, err := c.gateway.Complete(ctx, c.providerName, llmgateway.Request{
		Model:       c.model,
		Prompt:      rendered,
		Temperature: classifyTemperature,
		MaxTokens:   256,
	})
	if err != nil {
		return Result{}, err
	}

	var payload any
	if err := json.Unmarshal([]byte(resp.Text), &payload); err != nil {
		return Result{}, faults.Wrap(faults.KindInternal, "classify: response is not valid JSON", err)
	}
	if err := c.schema.Validate(payload); err != nil {
		return Result{}, faults.Wrap(faults.KindInternal, "classify: response failed schema validation", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(resp.Text), &result); err != nil {
		return Result{}, faults.Wrap(faults.KindInternal, "classify: decode response", err)
	}
	if _, ok := validIntents[result.Intent]; !ok {
		return Result{}, faults.New(faults.KindInternal, "classify: unknown intent in response")
	}
	return result, nil
}
