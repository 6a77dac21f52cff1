package quality_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/llmgateway"
	"github.com/cortexmesh/orchestrator/prompt"
	"github.com/cortexmesh/orchestrator/quality"
)

type scriptedJudge struct {
	response string
}

func (p *scriptedJudge) Complete(ctx context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	return llmgateway.Response{Text: p.response}, nil
}

func newFixture(t *testing.T, judgeResponse string) *quality.Controller {
	t.Helper()
	gw, err := llmgateway.NewGateway(llmgateway.WithProvider("anthropic", &scriptedJudge{response: judgeResponse}))
	require.NoError(t, err)

	prompts := prompt.NewRegistry()
	prompts.Register("judge", "Query: {{query}}\nAnswer: {{answer}}\nSources: {{sources}}")

	return quality.New(gw, "anthropic", "claude", prompts, "judge")
}

func TestValidateEmptyAnswerFailsWithoutCallingJudge(t *testing.T) {
	c := newFixture(t, "not json at all")
	verdict, err := c.Validate(context.Background(), "what is the weather", "", nil)
	require.NoError(t, err)
	require.False(t, verdict.OK)
	require.Contains(t, verdict.Issues, "answer is empty")
}

func TestValidatePassesWhenJudgeConfirmsAddressed(t *testing.T) {
	c := newFixture(t, `{"addressed":true,"issues":[]}`)
	verdict, err := c.Validate(context.Background(), "what is the weather", "it is sunny", []eventbus.Source{
		{Store: "docs", DocID: "d1", Text: "weather report"},
	})
	require.NoError(t, err)
	require.True(t, verdict.OK)
	require.Empty(t, verdict.Issues)
}

func TestValidateFailsWhenJudgeSaysNotAddressed(t *testing.T) {
	c := newFixture(t, `{"addressed":false,"issues":["ignores the question"]}`)
	verdict, err := c.Validate(context.Background(), "what is the weather", "unrelated answer", nil)
	require.NoError(t, err)
	require.False(t, verdict.OK)
	require.Contains(t, verdict.Issues, "answer does not address the query")
	require.Contains(t, verdict.Issues, "ignores the question")
}

func TestValidateRejectsDisallowedContentMarker(t *testing.T) {
	c := newFixture(t, `{"addressed":true,"issues":[]}`)
	verdict, err := c.Validate(context.Background(), "q", "here is a <disallowed> answer", nil)
	require.NoError(t, err)
	require.False(t, verdict.OK)
	require.Contains(t, verdict.Issues, "answer contains disallowed content marker")
}

func TestValidateRejectsCitationNotInSources(t *testing.T) {
	c := newFixture(t, `{"addressed":true,"issues":[]}`)
	verdict, err := c.Validate(context.Background(), "what is x", "x is described in [docs:d1]", []eventbus.Source{
		{Store: "docs", DocID: "d2", Text: "unrelated"},
	})
	require.NoError(t, err)
	require.False(t, verdict.OK)
	require.Contains(t, verdict.Issues, "cited source docs:d1 does not appear in retrieval results")
}

func TestValidatePassesWhenCitationMatchesSource(t *testing.T) {
	c := newFixture(t, `{"addressed":true,"issues":[]}`)
	verdict, err := c.Validate(context.Background(), "what is x", "x is described in [docs:d1 score=0.9]", []eventbus.Source{
		{Store: "docs", DocID: "d1", Text: "x explained"},
	})
	require.NoError(t, err)
	require.True(t, verdict.OK)
	require.Empty(t, verdict.Issues)
}

func TestValidateSurfacesJudgeCallError(t *testing.T) {
	c := newFixture(t, "not json")
	_, err := c.Validate(context.Background(), "q", "an answer", nil)
	require.Error(t, err)
}

func TestRetryWithFeedbackAugmentsInputWithoutMutatingOriginal(t *testing.T) {
	c := newFixture(t, `{"addressed":true,"issues":[]}`)
	original := map[string]any{"query": "hello"}
	augmented := c.RetryWithFeedback(original, []string{"too vague"})

	require.Equal(t, "hello", augmented["query"])
	require.Equal(t, []string{"too vague"}, augmented["feedback"])
	_, hasFeedback := original["feedback"]
	require.False(t, hasFeedback)
}

func TestRetryCeilingDefaultsToTwo(t *testing.T) {
	c := newFixture(t, `{"addressed":true,"issues":[]}`)
	require.Equal(t, 2, c.RetryCeiling())
}

func TestWithRetryCeilingOverridesDefault(t *testing.T) {
	gw, err := llmgateway.NewGateway(llmgateway.WithProvider("anthropic", &scriptedJudge{response: `{"addressed":true,"issues":[]}`}))
	require.NoError(t, err)
	prompts := prompt.NewRegistry()
	prompts.Register("judge", "{{query}} {{answer}} {{sources}}")

	c := quality.New(gw, "anthropic", "claude", prompts, "judge", quality.WithRetryCeiling(5))
	require.Equal(t, 5, c.RetryCeiling())
}
