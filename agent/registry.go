package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/cortexmesh/orchestrator/faults"
)

// Registry is a name-keyed directory of agents, guarded by a single
// RWMutex so lookups under steady state never contend with each other.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Record
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Record)}
}

// Register adds or replaces the agent record under name. Registering over
// an agent that owns a running task is rejected: callers must interrupt or
// wait for completion first.
func (r *Registry) Register(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.agents[rec.Name]; ok && existing.State == StateBusy {
		return faults.New(faults.KindBadInput, fmt.Sprintf("agent %q is busy and cannot be re-registered", rec.Name))
	}
	copy := rec
	r.agents[rec.Name] = &copy
	return nil
}

// Deregister removes the named agent, if present.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

// Lookup returns a copy of the named agent's record.
func (r *Registry) Lookup(name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[name]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ByCapability returns copies of every registered agent that declares the
// named capability, in stable name order.
func (r *Registry) ByCapability(capability string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.agents {
		if rec.HasCapability(capability) {
			out = append(out, *rec)
		}
	}
	sortRecordsByName(out)
	return out
}

// Snapshot returns copies of every registered agent, in stable name order.
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, *rec)
	}
	sortRecordsByName(out)
	return out
}

// markBusy transitions the named agent to busy with the given task, failing
// if the agent is unknown or already busy.
func (r *Registry) markBusy(name, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return faults.New(faults.KindNotFound, fmt.Sprintf("agent %q is not registered", name))
	}
	if rec.State == StateBusy {
		return faults.New(faults.KindCapacityExhausted, fmt.Sprintf("agent %q is already busy", name))
	}
	rec.State = StateBusy
	rec.CurrentTaskID = taskID
	return nil
}

// markIdle transitions the named agent back to idle and updates its stats.
func (r *Registry) markIdle(name string, succeeded bool, lastActive time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.agents[name]
	if !ok {
		return
	}
	rec.State = StateIdle
	rec.CurrentTaskID = ""
	rec.Stats.LastActiveAt = lastActive
	if succeeded {
		rec.Stats.TasksCompleted++
	} else {
		rec.Stats.TasksFailed++
	}
}

func sortRecordsByName(recs []Record) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].Name < recs[j-1].Name; j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}
