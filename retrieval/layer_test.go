package retrieval_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/retrieval"
)

func TestValidateStoreNameRejectsBadNames(t *testing.T) {
	require.NoError(t, retrieval.ValidateStoreName("docs-v1"))
	require.NoError(t, retrieval.ValidateStoreName("a_b-C9"))
	require.Error(t, retrieval.ValidateStoreName("../escape"))
	require.Error(t, retrieval.ValidateStoreName(""))
	require.Error(t, retrieval.ValidateStoreName(strings64()))
}

func strings64() string {
	s := make([]byte, 65)
	for i := range s {
		s[i] = 'a'
	}
	return string(s)
}

func TestLayerQuerySingle(t *testing.T) {
	layer := retrieval.NewLayer()
	require.NoError(t, layer.Register("docs", retrieval.NewMemStore(
		retrieval.Document{ID: "d1", Text: "the quick brown fox"},
		retrieval.Document{ID: "d2", Text: "lazy dog sleeps"},
	)))

	sources, err := layer.QuerySingle(context.Background(), "docs", "quick fox", 5)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, "d1", sources[0].DocID)
}

func TestLayerQueryMultiDedupsAndSortsByScore(t *testing.T) {
	layer := retrieval.NewLayer()
	require.NoError(t, layer.Register("a", retrieval.NewMemStore(retrieval.Document{ID: "shared", Text: "alpha beta"})))
	require.NoError(t, layer.Register("b", retrieval.NewMemStore(retrieval.Document{ID: "shared", Text: "alpha beta gamma"})))

	sources, err := layer.QueryMulti(context.Background(), []string{"a", "b"}, "alpha beta gamma", 5)
	require.NoError(t, err)
	require.Len(t, sources, 1, "duplicate doc ids across stores must be deduped")
	require.Equal(t, "b", sources[0].Store, "highest-scoring store's copy must win")
}

func TestLayerQueryMultiUnknownStore(t *testing.T) {
	layer := retrieval.NewLayer()
	_, err := layer.QueryMulti(context.Background(), []string{"missing"}, "q", 5)
	require.Error(t, err)
	f, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.KindNotFound, f.Kind())
}

type fakeRouter struct {
	selected []string
	err      error
}

func (r fakeRouter) SelectStores(ctx context.Context, query string, available []string) ([]string, error) {
	return r.selected, r.err
}

func TestLayerQueryAutoUsesRouterSelection(t *testing.T) {
	layer := retrieval.NewLayer(retrieval.WithRouter(fakeRouter{selected: []string{"b"}}))
	require.NoError(t, layer.Register("a", retrieval.NewMemStore(retrieval.Document{ID: "x", Text: "alpha"})))
	require.NoError(t, layer.Register("b", retrieval.NewMemStore(retrieval.Document{ID: "y", Text: "alpha"})))

	sources, err := layer.QueryAuto(context.Background(), "alpha", 5)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, "b", sources[0].Store)
}

func TestLayerQueryAutoFallsBackOnRouterError(t *testing.T) {
	layer := retrieval.NewLayer(retrieval.WithRouter(fakeRouter{err: faults.New(faults.KindLLMError, "routing failed")}))
	require.NoError(t, layer.Register("a", retrieval.NewMemStore(retrieval.Document{ID: "x", Text: "alpha"})))
	require.NoError(t, layer.Register("b", retrieval.NewMemStore(retrieval.Document{ID: "y", Text: "alpha"})))

	sources, err := layer.QueryAuto(context.Background(), "alpha", 5)
	require.NoError(t, err)
	require.Len(t, sources, 2, "router failure must fall back to querying every store")
}

func TestLayerCacheServesRepeatedQuery(t *testing.T) {
	cache := retrieval.NewCache(16, time.Minute, "")
	layer := retrieval.NewLayer(retrieval.WithCache(cache))
	store := retrieval.NewMemStore(retrieval.Document{ID: "d1", Text: "alpha beta"})
	require.NoError(t, layer.Register("docs", store))

	first, err := layer.QuerySingle(context.Background(), "docs", "alpha", 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	cached, ok := cache.Get([]string{"docs"}, "alpha", 5)
	require.True(t, ok)
	require.Equal(t, first, cached)
}

func TestResolveWithinRootRejectsEscape(t *testing.T) {
	root := t.TempDir()
	_, err := retrieval.ResolveWithinRoot(root, "../escape.txt")
	require.Error(t, err)

	_, err = retrieval.ResolveWithinRoot(root, "safe.txt")
	require.NoError(t, err, "a non-existent path still inside root is allowed to resolve")
}
