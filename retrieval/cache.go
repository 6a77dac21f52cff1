package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cortexmesh/orchestrator/eventbus"
)

// Cache is a TTL-bounded result cache keyed by the set of stores queried,
// the query text, k, and (per spec §9's resolved Open Question) the
// embedding model in use, so results computed under different embeddings
// never collide.
type Cache struct {
	inner          *expirable.LRU[string, []eventbus.Source]
	embeddingModel string
}

// NewCache constructs a Cache with the given capacity, TTL, and the
// embedding model identifier to fold into cache keys. embeddingModel
// defaults to "default" when empty, per spec §9.
func NewCache(size int, ttl time.Duration, embeddingModel string) *Cache {
	if size <= 0 {
		size = 256
	}
	if embeddingModel == "" {
		embeddingModel = "default"
	}
	return &Cache{inner: expirable.NewLRU[string, []eventbus.Source](size, nil, ttl), embeddingModel: embeddingModel}
}

func (c *Cache) key(stores []string, query string, k int) string {
	sorted := append([]string(nil), stores...)
	sort.Strings(sorted)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s", strings.Join(sorted, ","), query, k, c.embeddingModel)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a cached result set, if present and unexpired.
func (c *Cache) Get(stores []string, query string, k int) ([]eventbus.Source, bool) {
	return c.inner.Get(c.key(stores, query, k))
}

// Put stores a result set under the given query parameters.
func (c *Cache) Put(stores []string, query string, k int, sources []eventbus.Source) {
	c.inner.Add(c.key(stores, query, k), sources)
}
