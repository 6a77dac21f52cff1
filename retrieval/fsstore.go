package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
)

// FSStore is a Backend over a directory of text files rooted at Root. File
// names derived from document identifiers are always resolved through
// ResolveWithinRoot before any filesystem access, per spec §4.5.
type FSStore struct {
	Root string
}

// NewFSStore constructs an FSStore rooted at root.
func NewFSStore(root string) *FSStore {
	return &FSStore{Root: root}
}

// SimilaritySearch scores every file directly under Root by term overlap
// with query.
func (s *FSStore) SimilaritySearch(ctx context.Context, query string, k int) ([]eventbus.Source, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, faults.Wrap(faults.KindStoreError, "retrieval: list store root", err)
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	type scored struct {
		id    string
		text  string
		score float64
	}
	var matches []scored
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path, err := ResolveWithinRoot(s.Root, entry.Name())
		if err != nil {
			continue
		}
		body, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		lower := strings.ToLower(string(body))
		var hits int
		for _, t := range terms {
			if strings.Contains(lower, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		matches = append(matches, scored{id: id, text: string(body), score: float64(hits) / float64(len(terms))})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	out := make([]eventbus.Source, len(matches))
	for i, m := range matches {
		out[i] = eventbus.Source{DocID: m.id, Score: m.score, Text: m.text}
	}
	return out, nil
}
