package retrieval_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/retrieval"
)

func TestFSStoreSimilaritySearch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("the quick brown fox"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("lazy dog sleeps"), 0o644))

	store := retrieval.NewFSStore(dir)
	sources, err := store.SimilaritySearch(context.Background(), "quick fox", 5)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, "a", sources[0].DocID)
}

func TestFSStoreEmptyQueryReturnsNoResults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("content"), 0o644))

	store := retrieval.NewFSStore(dir)
	sources, err := store.SimilaritySearch(context.Background(), "", 5)
	require.NoError(t, err)
	require.Empty(t, sources)
}
