package retrieval

import (
	"path/filepath"
	"strings"

	"github.com/cortexmesh/orchestrator/faults"
)

// ResolveWithinRoot canonicalizes candidate (joined onto root) and verifies
// it is strictly contained within root by comparing canonical path
// components, never raw string prefixes — a string-prefix check would
// accept a sibling directory like "root-evil" as contained within "root".
func ResolveWithinRoot(root, candidate string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", faults.Wrap(faults.KindBadInput, "retrieval: resolve root", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", faults.Wrap(faults.KindBadInput, "retrieval: resolve root symlinks", err)
	}

	joined := filepath.Join(absRoot, candidate)
	absCandidate, err := filepath.Abs(joined)
	if err != nil {
		return "", faults.Wrap(faults.KindBadInput, "retrieval: resolve candidate", err)
	}

	// EvalSymlinks requires the path to exist; fall back to the
	// unresolved absolute path for as-yet-uncreated candidates, still
	// validated against realRoot's components below.
	realCandidate, err := filepath.EvalSymlinks(absCandidate)
	if err != nil {
		realCandidate = absCandidate
	}

	rootParts := strings.Split(filepath.Clean(realRoot), string(filepath.Separator))
	candidateParts := strings.Split(filepath.Clean(realCandidate), string(filepath.Separator))
	if len(candidateParts) < len(rootParts) {
		return "", faults.New(faults.KindBadInput, "retrieval: path escapes configured root")
	}
	for i, part := range rootParts {
		if candidateParts[i] != part {
			return "", faults.New(faults.KindBadInput, "retrieval: path escapes configured root")
		}
	}
	return realCandidate, nil
}
