// Package specialist implements the thin per-intent handlers of spec §4.10:
// chat, retrieval, compute, translate, summarize, and tool. Each declares a
// capability set and is registered with the Agent Registry under a fixed
// name; none bypass the LLM Gateway or Retrieval Layer, preserving token
// accounting and validation.
package specialist

import (
	"context"

	"github.com/cortexmesh/orchestrator/agent"
)

// Specialist is a named handler with a declared capability set.
type Specialist interface {
	Name() string
	Capabilities() []string
	Handle(ctx context.Context, task agent.Task) (map[string]any, error)
}

// Bind registers s's agent record with registry and binds its handler on
// scheduler, the wiring every specialist in this package shares.
func Bind(registry *agent.Registry, scheduler *agent.Scheduler, s Specialist) error {
	if err := registry.Register(agent.NewRecord(s.Name(), s.Name(), s.Capabilities()...)); err != nil {
		return err
	}
	scheduler.Bind(s.Name(), s.Handle)
	return nil
}

// inputQuery extracts the required "query" string from a task's input.
func inputQuery(input map[string]any) (string, bool) {
	v, ok := input["query"].(string)
	return v, ok
}

// inputFeedback extracts retry feedback, if any, as the list of issues
// that appendFeedback folds into a prompt.
func inputFeedback(input map[string]any) ([]string, bool) {
	v, ok := input["feedback"].([]string)
	return v, ok
}
