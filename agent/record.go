// Package agent implements the Agent Registry & Scheduler (spec §4.3): a
// directory of known agents and a priority scheduler that dispatches tasks
// to them under a bounded concurrency budget.
package agent

import "time"

// State is the lifecycle state of a registered agent.
type State string

const (
	StateIdle    State = "idle"
	StateBusy    State = "busy"
	StateOffline State = "offline"
)

// Stats tracks lightweight per-agent counters used for observability.
type Stats struct {
	TasksCompleted int64
	TasksFailed    int64
	LastActiveAt   time.Time
}

// Record describes a single registered agent: its identity, declared
// capabilities, and live scheduling state.
type Record struct {
	Name           string
	Role           string
	Capabilities   map[string]struct{}
	State          State
	CurrentTaskID  string
	Stats          Stats
}

// HasCapability reports whether the agent declares the named capability.
func (r Record) HasCapability(name string) bool {
	_, ok := r.Capabilities[name]
	return ok
}

// NewRecord constructs a Record with the given name, role, and capability
// set, starting idle.
func NewRecord(name, role string, capabilities ...string) Record {
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	return Record{Name: name, Role: role, Capabilities: caps, State: StateIdle}
}
