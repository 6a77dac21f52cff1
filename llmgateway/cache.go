package llmgateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheKey returns the stable cache key for req: a hash of the provider
// name, model, system, prompt, temperature, and max tokens.
func CacheKey(providerName string, req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%.4f\x00%d",
		providerName, req.Model, req.System, req.Prompt, req.Temperature, req.MaxTokens)
	return hex.EncodeToString(h.Sum(nil))
}

// CacheMiddleware returns a Middleware that serves identical requests from
// an in-memory LRU cache, bypassing the provider entirely on a hit.
func CacheMiddleware(cache *lru.Cache[string, Response], providerName string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) (Response, error) {
			key := CacheKey(providerName, req)
			if cached, ok := cache.Get(key); ok {
				cached.Cached = true
				return cached, nil
			}
			resp, err := next(ctx, req)
			if err != nil {
				return Response{}, err
			}
			cache.Add(key, resp)
			return resp, nil
		}
	}
}

// NewCache constructs the LRU backing CacheMiddleware with the given
// maximum entry count.
func NewCache(size int) (*lru.Cache[string, Response], error) {
	if size <= 0 {
		size = 512
	}
	return lru.New[string, Response](size)
}
