package llmgateway

import (
	"context"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/telemetry"
)

// Gateway is the assembled middleware chain around a set of named
// providers. Callers select a provider per request by the name it was
// registered under (e.g. "anthropic"), passed to Complete.
type Gateway struct {
	providers map[string]Provider
	chain     func(p Provider) Handler
	logger    telemetry.Logger
	metrics   telemetry.Metrics
}

// Option configures a Gateway.
type Option func(*config)

type config struct {
	providers  map[string]Provider
	middleware []Middleware
	logger     telemetry.Logger
	metrics    telemetry.Metrics
}

// WithProvider registers a Provider under name (e.g. "anthropic").
func WithProvider(name string, p Provider) Option {
	return func(c *config) { c.providers[name] = p }
}

// WithMiddleware appends middleware to the chain, in registration order
// (first registered is outermost).
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) { c.middleware = append(c.middleware, mw...) }
}

// WithLogger sets the gateway's logger.
func WithLogger(l telemetry.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics sets the gateway's metrics sink.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// NewGateway constructs a Gateway. At least one provider must be
// registered.
func NewGateway(opts ...Option) (*Gateway, error) {
	cfg := config{
		providers: make(map[string]Provider),
		logger:    telemetry.NewNoopLogger(),
		metrics:   telemetry.NewNoopMetrics(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if len(cfg.providers) == 0 {
		return nil, faults.New(faults.KindInternal, "llmgateway: at least one provider is required")
	}

	g := &Gateway{providers: cfg.providers, logger: cfg.logger, metrics: cfg.metrics}
	g.chain = func(p Provider) Handler {
		h := Handler(p.Complete)
		for i := len(cfg.middleware) - 1; i >= 0; i-- {
			h = cfg.middleware[i](h)
		}
		return h
	}
	return g, nil
}

// Complete looks up the provider registered under providerName and issues
// req through the full middleware chain. An unknown name is a bad_input
// fault.
func (g *Gateway) Complete(ctx context.Context, providerName string, req Request) (Response, error) {
	p, ok := g.providers[providerName]
	if !ok {
		return Response{}, faults.New(faults.KindBadInput, "llmgateway: unknown provider "+providerName)
	}
	return g.chain(p)(ctx, req)
}
