package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/cortexmesh/orchestrator/eventbus"
)

// Document is a single entry in a MemStore.
type Document struct {
	ID   string
	Text string
}

// MemStore is a trivial in-memory Backend scoring documents by substring
// term overlap. It exists for tests and local development; production
// deployments plug in a real vector store behind the same Backend
// interface, per spec §1's "vector store engine is a pluggable backend".
type MemStore struct {
	docs []Document
}

// NewMemStore constructs a MemStore over docs.
func NewMemStore(docs ...Document) *MemStore {
	return &MemStore{docs: docs}
}

// SimilaritySearch implements Backend with a naive token-overlap score.
func (m *MemStore) SimilaritySearch(ctx context.Context, query string, k int) ([]eventbus.Source, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	type scored struct {
		doc   Document
		score float64
	}
	var matches []scored
	for _, d := range m.docs {
		lower := strings.ToLower(d.Text)
		var hits int
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, scored{doc: d, score: float64(hits) / float64(len(terms))})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	out := make([]eventbus.Source, len(matches))
	for i, m := range matches {
		out[i] = eventbus.Source{DocID: m.doc.ID, Score: m.score, Text: m.doc.Text}
	}
	return out, nil
}
