package manager

// State is a phase of the Manager Orchestrator's per-request control loop
// (spec §4.9). The valid edges between states are recorded in a fixed
// table below; Handle's loop follows those edges but does not check its
// steps against the table.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StatePlanning   State = "planning"
	StateExecuting  State = "executing"
	StateValidating State = "validating"
	StateRetrying   State = "retrying"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// transitions enumerates the only State→State edges a request may take.
// StateComplete and StateFailed are terminal: absent keys mean no outgoing
// edge.
var transitions = map[State][]State{
	StateReceived:   {StateClassified},
	StateClassified: {StateExecuting, StatePlanning},
	StatePlanning:   {StateExecuting},
	StateExecuting:  {StateValidating, StateFailed},
	StateValidating: {StateComplete, StateRetrying, StateFailed},
	StateRetrying:   {StateExecuting},
}

// canTransition reports whether to is a valid next state from.
func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
