package llmgateway_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/llmgateway"
)

type fakeProvider struct {
	calls   atomic.Int32
	err     error
	errUpTo int32
	text    string
}

func (f *fakeProvider) Complete(ctx context.Context, req llmgateway.Request) (llmgateway.Response, error) {
	n := f.calls.Add(1)
	if f.err != nil && n <= f.errUpTo {
		return llmgateway.Response{}, f.err
	}
	return llmgateway.Response{Text: f.text, Usage: eventbus.TokenUsage{Total: 10}}, nil
}

func TestGatewayCompleteRoutesToNamedProvider(t *testing.T) {
	prov := &fakeProvider{text: "hello"}
	gw, err := llmgateway.NewGateway(llmgateway.WithProvider("anthropic", prov))
	require.NoError(t, err)

	resp, err := gw.Complete(context.Background(), "anthropic", llmgateway.Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
}

func TestGatewayUnknownProviderIsBadInput(t *testing.T) {
	gw, err := llmgateway.NewGateway(llmgateway.WithProvider("anthropic", &fakeProvider{}))
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), "missing", llmgateway.Request{})
	require.Error(t, err)
	f, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.KindBadInput, f.Kind())
}

func TestNewGatewayRequiresAtLeastOneProvider(t *testing.T) {
	_, err := llmgateway.NewGateway()
	require.Error(t, err)
}

func TestCacheMiddlewareServesSecondCallFromCache(t *testing.T) {
	prov := &fakeProvider{text: "hello"}
	cache, err := llmgateway.NewCache(16)
	require.NoError(t, err)

	gw, err := llmgateway.NewGateway(
		llmgateway.WithProvider("anthropic", prov),
		llmgateway.WithMiddleware(llmgateway.CacheMiddleware(cache, "anthropic")),
	)
	require.NoError(t, err)

	req := llmgateway.Request{Model: "claude", Prompt: "hi", Temperature: 0.2, MaxTokens: 64}
	first, err := gw.Complete(context.Background(), "anthropic", req)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := gw.Complete(context.Background(), "anthropic", req)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, int32(1), prov.calls.Load())
}

func TestRetryMiddlewareRetriesRetryableFaultThenSucceeds(t *testing.T) {
	prov := &fakeProvider{text: "ok", err: faults.New(faults.KindLLMError, "transient"), errUpTo: 2}
	gw, err := llmgateway.NewGateway(
		llmgateway.WithProvider("anthropic", prov),
		llmgateway.WithMiddleware(llmgateway.RetryMiddleware(2, nil)),
	)
	require.NoError(t, err)

	resp, err := gw.Complete(context.Background(), "anthropic", llmgateway.Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, int32(3), prov.calls.Load())
}

func TestRetryMiddlewareDoesNotRetryNonRetryableFault(t *testing.T) {
	prov := &fakeProvider{err: faults.New(faults.KindBadInput, "bad"), errUpTo: 10}
	gw, err := llmgateway.NewGateway(
		llmgateway.WithProvider("anthropic", prov),
		llmgateway.WithMiddleware(llmgateway.RetryMiddleware(2, nil)),
	)
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), "anthropic", llmgateway.Request{Prompt: "hi"})
	require.Error(t, err)
	require.Equal(t, int32(1), prov.calls.Load())
}

func TestAdaptiveRateLimiterBacksOffOnLLMError(t *testing.T) {
	limiter := llmgateway.NewAdaptiveRateLimiter(1000, 2000)
	prov := &fakeProvider{err: faults.New(faults.KindLLMError, "throttled"), errUpTo: 1}
	gw, err := llmgateway.NewGateway(
		llmgateway.WithProvider("anthropic", prov),
		llmgateway.WithMiddleware(limiter.Middleware()),
	)
	require.NoError(t, err)

	before := limiter.CurrentTPM()
	_, err = gw.Complete(context.Background(), "anthropic", llmgateway.Request{Prompt: "hi"})
	require.Error(t, err)
	require.Less(t, limiter.CurrentTPM(), before)
}
