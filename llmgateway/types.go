// Package llmgateway implements the LLM Gateway (spec §4.4): a single
// choke point through which every component issues model completions, with
// response caching, adaptive rate limiting, and bounded retries composed as
// middleware around a provider-specific client, mirroring the teacher's
// onion-style model gateway.
package llmgateway

import (
	"context"

	"github.com/cortexmesh/orchestrator/eventbus"
)

// Request is a single completion request. System and Prompt are rendered
// text, never templates — rendering is the Prompt Registry's job.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Response is a single completion result.
type Response struct {
	Text  string
	Usage eventbus.TokenUsage
	// Cached reports whether this response was served from the gateway's
	// cache rather than a live provider call.
	Cached bool
}

// Provider issues a single completion against one model backend. Provider
// adapters (package llmgateway/provider/...) wrap a concrete SDK client.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Handler processes a single completion request. It is the unit composed
// by Middleware, mirroring the teacher's gateway.UnaryHandler.
type Handler func(ctx context.Context, req Request) (Response, error)

// Middleware wraps a Handler to add cross-cutting behavior — caching, rate
// limiting, retries — around the innermost provider call. Middleware
// registered first becomes the outermost layer, per the teacher's onion
// convention.
type Middleware func(next Handler) Handler
