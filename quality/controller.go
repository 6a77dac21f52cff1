// Package quality implements the Quality Controller (spec §4.8): an
// LLM-as-judge validation pass over a specialist's answer, with a bounded
// retry-with-feedback loop before surfacing a low-confidence result.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
)

// defaultRetryCeiling bounds retry_with_feedback attempts, per §6.3.
const defaultRetryCeiling = 2

// disallowedMarkers are content markers that fail validation outright,
// regardless of what the judge model says.
var disallowedMarkers = []string{"<disallowed>", "[REDACTED_FAILURE]"}

// citationPattern matches the "[store:doc_id ...]" form specialists are
// instructed to cite sources with (see specialist.formatSources), tolerant
// of trailing annotations like "score=0.9" before the closing bracket.
var citationPattern = regexp.MustCompile(`\[([\w.-]+):([\w.-]+)`)

// Verdict is the result of a single validate call.
type Verdict struct {
	OK     bool     `json:"ok"`
	Issues []string `json:"issues"`
}

// judgeResponse is the strict shape expected from the LLM-as-judge prompt.
type judgeResponse struct {
	Addressed bool     `json:"addressed"`
	Issues    []string `json:"issues"`
}

// Controller validates specialist answers and drives the retry-with-feedback
// loop.
type Controller struct {
	gateway      *llmgateway.Gateway
	providerName string
	model        string
	prompts      *prompt.Registry
	templateKey  string
	retryCeiling int
}

// Option configures a Controller.
type Option func(*Controller)

// WithRetryCeiling overrides the default retry ceiling (2).
func WithRetryCeiling(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.retryCeiling = n
		}
	}
}

// New constructs a Controller. templateKey names the judge prompt template,
// which must accept "query", "answer", and "sources" placeholders.
func New(gateway *llmgateway.Gateway, providerName, model string, prompts *prompt.Registry, templateKey string, opts ...Option) *Controller {
	c := &Controller{
		gateway:      gateway,
		providerName: providerName,
		model:        model,
		prompts:      prompts,
		templateKey:  templateKey,
		retryCeiling: defaultRetryCeiling,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Validate checks answer against query and the sources it cites: the
// answer must be non-empty and address the query (an LLM-as-judge call
// with a deterministic rubric), every cited source must actually appear in
// sources, and the answer must carry no disallowed content marker.
func (c *Controller) Validate(ctx context.Context, query, answer string, sources []eventbus.Source) (Verdict, error) {
	var issues []string

	if strings.TrimSpace(answer) == "" {
		issues = append(issues, "answer is empty")
	}
	for _, marker := range disallowedMarkers {
		if strings.Contains(answer, marker) {
			issues = append(issues, "answer contains disallowed content marker")
			break
		}
	}
	issues = append(issues, uncitedSources(answer, sources)...)

	if strings.TrimSpace(answer) != "" {
		judged, err := c.judge(ctx, query, answer, sources)
		if err != nil {
			return Verdict{}, err
		}
		if !judged.Addressed {
			issues = append(issues, "answer does not address the query")
		}
		issues = append(issues, judged.Issues...)
	}

	return Verdict{OK: len(issues) == 0, Issues: issues}, nil
}

// uncitedSources extracts every "[store:doc_id]"-style citation from answer
// and flags the ones that do not match any entry in sources, per spec §4.8
// check (ii): cited sources must appear in the retrieval results actually
// supplied to the specialist.
func uncitedSources(answer string, sources []eventbus.Source) []string {
	var issues []string
	for _, m := range citationPattern.FindAllStringSubmatch(answer, -1) {
		store, docID := m[1], m[2]
		if !sourceExists(sources, store, docID) {
			issues = append(issues, fmt.Sprintf("cited source %s:%s does not appear in retrieval results", store, docID))
		}
	}
	return issues
}

func sourceExists(sources []eventbus.Source, store, docID string) bool {
	for _, s := range sources {
		if s.Store == store && s.DocID == docID {
			return true
		}
	}
	return false
}

func (c *Controller) judge(ctx context.Context, query, answer string, sources []eventbus.Source) (judgeResponse, error) {
	tpl, err := c.prompts.Get(c.templateKey)
	if err != nil {
		return judgeResponse{}, err
	}
	var sourceSummary strings.Builder
	for _, s := range sources {
		sourceSummary.WriteString(s.DocID)
		sourceSummary.WriteString(": ")
		sourceSummary.WriteString(s.Text)
		sourceSummary.WriteString("\n")
	}
	rendered, err := tpl.Render(map[string]string{
		"query":   query,
		"answer":  answer,
		"sources": sourceSummary.String(),
	})
	if err != nil {
		return judgeResponse{}, err
	}

	resp, err := c.gateway.Complete(ctx, c.providerName, llmgateway.Request{
		Model:       c.model,
		Prompt:      rendered,
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		return judgeResponse{}, err
	}

	var judged judgeResponse
	if err := json.Unmarshal([]byte(resp.Text), &judged); err != nil {
		return judgeResponse{}, faults.Wrap(faults.KindInternal, "quality: judge response is not valid JSON", err)
	}
	return judged, nil
}

// RetryWithFeedback builds the augmented input for a retry attempt: the
// original input plus a "feedback" key carrying issues, to be resubmitted
// at the same priority by the caller (the Manager Orchestrator). It does
// not itself touch the scheduler, keeping this package free of a
// dependency on package agent.
func (c *Controller) RetryWithFeedback(originalInput map[string]any, issues []string) map[string]any {
	augmented := make(map[string]any, len(originalInput)+1)
	for k, v := range originalInput {
		augmented[k] = v
	}
	augmented["feedback"] = issues
	return augmented
}

// RetryCeiling returns the configured retry ceiling.
func (c *Controller) RetryCeiling() int { return c.retryCeiling }
