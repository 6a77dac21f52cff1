package llmgateway

import (
	"context"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/telemetry"
)

// RetryMiddleware retries a completion up to bound additional times when
// the provider returns a retryable fault (llm_error, store_error, timeout),
// mirroring the scheduler's retry ceiling semantics for the same fault
// taxonomy.
func RetryMiddleware(bound int, logger telemetry.Logger) Middleware {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) (Response, error) {
			var lastErr error
			for attempt := 0; attempt <= bound; attempt++ {
				resp, err := next(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				f, ok := faults.As(err)
				if !ok || !f.Retryable() {
					return Response{}, err
				}
				logger.Info(ctx, "llmgateway: retrying completion", "attempt", attempt, "kind", string(f.Kind()))
			}
			return Response{}, lastErr
		}
	}
}
