package llmgateway

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/cortexmesh/orchestrator/faults"
)

// AdaptiveRateLimiter applies an AIMD-style token-per-minute budget in
// front of a provider: it halves its budget whenever the call fails with an
// llm_error fault and additively recovers it on every successful call, the same
// shape as the teacher's model-client rate limiter.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM   float64
	minTPM       float64
	maxTPM       float64
	recoveryRate float64
}

// NewAdaptiveRateLimiter constructs a limiter with an initial and maximum
// tokens-per-minute budget.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware returns the Middleware enforcing this limiter in front of a
// provider's completions. estimateTokens approximates request size from
// the rendered prompt; providers report exact usage afterward but the
// limiter must gate before the call is made.
func (l *AdaptiveRateLimiter) Middleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) (Response, error) {
			if err := l.limiter.WaitN(ctx, estimateTokens(req)); err != nil {
				return Response{}, faults.Wrap(faults.KindTimeout, "llmgateway: rate limit wait", err)
			}
			resp, err := next(ctx, req)
			l.observe(err)
			return resp, err
		}
	}
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if f, ok := faults.As(err); ok && f.Kind() == faults.KindLLMError {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setLocked(newTPM)
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setLocked(newTPM)
}

func (l *AdaptiveRateLimiter) setLocked(newTPM float64) {
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// CurrentTPM returns the limiter's current tokens-per-minute budget, for
// observability.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens is a cheap heuristic (characters / 4, plus a fixed
// overhead for system prompt framing) used only to size the rate-limiter
// wait; providers report exact usage in Response.Usage.
func estimateTokens(req Request) int {
	chars := len(req.System) + len(req.Prompt)
	tokens := chars/4 + 32
	if req.MaxTokens > 0 {
		tokens += req.MaxTokens
	}
	return tokens
}
