// Package retrieval implements the multi-store Retrieval Layer (spec §4.5):
// a fan-out query surface over named backends (vector stores, document
// stores, or any other similarity-searchable source), with dedup, a
// result cache, and strict validation of store identifiers.
package retrieval

import (
	"context"
	"regexp"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
)

// storeNamePattern is the only shape a store name may take, per spec §4.5.
var storeNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateStoreName returns a bad_input fault if name does not match the
// allowed store identifier pattern.
func ValidateStoreName(name string) error {
	if !storeNamePattern.MatchString(name) {
		return faults.New(faults.KindBadInput, "retrieval: invalid store name "+name)
	}
	return nil
}

// Backend is the narrow interface a retrieval source must implement. Any
// vector store, full-text index, or document store is pluggable behind it.
type Backend interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]eventbus.Source, error)
}

// Descriptor names a registered backend.
type Descriptor struct {
	Name    string
	Backend Backend
}
