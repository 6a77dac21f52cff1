// Package prompt implements the Prompt Registry (spec §4.6): a set of
// named templates loaded from a YAML source at startup, rendered by named
// placeholder substitution.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexmesh/orchestrator/faults"
)

// placeholderPattern matches "{{name}}"-style named placeholders.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Template is a single named prompt template.
type Template struct {
	Key  string
	Body string
}

// Render substitutes every "{{name}}" placeholder in t.Body with the
// corresponding value in values, failing with bad_input if any placeholder
// has no provided value.
func (t Template) Render(values map[string]string) (string, error) {
	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(t.Body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return v
	})
	if len(missing) > 0 {
		return "", faults.New(faults.KindBadInput, fmt.Sprintf("prompt: missing placeholder(s) %s in template %q", strings.Join(missing, ", "), t.Key))
	}
	return rendered, nil
}
