package retrieval

import (
	"context"
	"sort"
	"sync"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/telemetry"
)

// defaultFanout bounds how many backend queries run concurrently for a
// single QueryMulti/QueryAuto call, per spec §4.5.
const defaultFanout = 8

// Layer fans a query out across one or more named backends and merges the
// results.
type Layer struct {
	mu         sync.RWMutex
	stores     map[string]Backend
	storeOrder []string

	fanout int
	logger telemetry.Logger
	cache  *Cache
	router Router
}

// Router selects a subset of registered stores for a query_auto call,
// typically by asking the LLM Gateway to pick from store descriptions.
type Router interface {
	SelectStores(ctx context.Context, query string, available []string) ([]string, error)
}

// Option configures a Layer.
type Option func(*Layer)

// WithFanout overrides the default concurrent-query bound.
func WithFanout(n int) Option {
	return func(l *Layer) {
		if n > 0 {
			l.fanout = n
		}
	}
}

// WithLogger sets the layer's logger.
func WithLogger(logger telemetry.Logger) Option {
	return func(l *Layer) { l.logger = logger }
}

// WithCache attaches a result cache; queries check it first and populate it
// on a miss.
func WithCache(c *Cache) Option {
	return func(l *Layer) { l.cache = c }
}

// WithRouter attaches the store-selection router used by QueryAuto.
func WithRouter(r Router) Option {
	return func(l *Layer) { l.router = r }
}

// NewLayer constructs an empty Layer.
func NewLayer(opts ...Option) *Layer {
	l := &Layer{
		stores: make(map[string]Backend),
		fanout: defaultFanout,
		logger: telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Register adds a named backend. name must match the store identifier
// pattern; registering the same name twice replaces the backend but
// preserves its original position for tie-breaking.
func (l *Layer) Register(name string, backend Backend) error {
	if err := ValidateStoreName(name); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.stores[name]; !exists {
		l.storeOrder = append(l.storeOrder, name)
	}
	l.stores[name] = backend
	return nil
}

// QuerySingle queries exactly one named store.
func (l *Layer) QuerySingle(ctx context.Context, store, query string, k int) ([]eventbus.Source, error) {
	return l.QueryMulti(ctx, []string{store}, query, k)
}

// QueryAuto asks the configured Router to select a subset of registered
// stores for query, falling back to querying every registered store when
// no router is configured or routing fails, per spec §4.5.
func (l *Layer) QueryAuto(ctx context.Context, query string, k int) ([]eventbus.Source, error) {
	l.mu.RLock()
	all := append([]string(nil), l.storeOrder...)
	l.mu.RUnlock()

	stores := all
	if l.router != nil {
		if selected, err := l.router.SelectStores(ctx, query, all); err == nil && len(selected) > 0 {
			stores = selected
		} else if err != nil {
			l.logger.Warn(ctx, "retrieval: store routing failed, falling back to all stores", "error", err.Error())
		}
	}
	return l.QueryMulti(ctx, stores, query, k)
}

// QueryMulti fans query out across the named stores bounded by the
// configured concurrency limit, dedups results by doc id across stores
// keeping the highest score, and returns them sorted by score descending with ties
// broken by store registration order.
func (l *Layer) QueryMulti(ctx context.Context, stores []string, query string, k int) ([]eventbus.Source, error) {
	if len(stores) == 0 {
		return nil, faults.New(faults.KindBadInput, "retrieval: at least one store is required")
	}
	if l.cache != nil {
		if cached, ok := l.cache.Get(stores, query, k); ok {
			return cached, nil
		}
	}

	l.mu.RLock()
	backends := make(map[string]Backend, len(stores))
	order := make(map[string]int, len(l.storeOrder))
	for i, name := range l.storeOrder {
		order[name] = i
	}
	for _, name := range stores {
		b, ok := l.stores[name]
		if !ok {
			l.mu.RUnlock()
			return nil, faults.New(faults.KindNotFound, "retrieval: unknown store "+name)
		}
		backends[name] = b
	}
	l.mu.RUnlock()

	type result struct {
		store   string
		sources []eventbus.Source
		err     error
	}

	sem := make(chan struct{}, l.fanout)
	results := make([]result, len(stores))
	var wg sync.WaitGroup
	for i, name := range stores {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			sources, err := backends[name].SimilaritySearch(ctx, query, k)
			results[i] = result{store: name, sources: sources, err: err}
		}(i, name)
	}
	wg.Wait()

	best := make(map[string]eventbus.Source)
	for _, r := range results {
		if r.err != nil {
			l.logger.Warn(ctx, "retrieval: backend query failed", "store", r.store, "error", r.err.Error())
			continue
		}
		for _, src := range r.sources {
			src.Store = r.store
			key := src.DocID
			if existing, ok := best[key]; !ok || src.Score > existing.Score {
				best[key] = src
			}
		}
	}

	merged := make([]eventbus.Source, 0, len(best))
	for _, src := range best {
		merged = append(merged, src)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return order[merged[i].Store] < order[merged[j].Store]
	})
	if k > 0 && len(merged) > k {
		merged = merged[:k]
	}

	if l.cache != nil {
		l.cache.Put(stores, query, k, merged)
	}
	return merged, nil
}
