package agent

import "time"

// TaskState is the lifecycle state of a Task, per spec §3.
type TaskState string

const (
	TaskQueued      TaskState = "queued"
	TaskRunning     TaskState = "running"
	TaskSucceeded   TaskState = "succeeded"
	TaskFailed      TaskState = "failed"
	TaskInterrupted TaskState = "interrupted"
)

// Task is a unit of work submitted to a target agent.
type Task struct {
	ID         string
	SessionID  string
	TargetName string
	Input      map[string]any
	// Priority ranges 1 (lowest) through 10 (highest); ties are broken by
	// arrival order.
	Priority   int
	State      TaskState
	ParentID   string
	CreatedAt  time.Time
	StartedAt  time.Time
	EndedAt    time.Time
	RetryCount int

	// Result and FailureDetail are populated once the task leaves the
	// running state.
	Result        map[string]any
	FailureDetail string

	// seq records arrival order for FIFO tie-breaking within a priority
	// level; assigned by the scheduler on submission.
	seq uint64
}

// Clone returns a deep-enough copy of t suitable for returning from
// snapshot/lookup APIs without exposing internal mutable state.
func (t Task) Clone() Task {
	input := make(map[string]any, len(t.Input))
	for k, v := range t.Input {
		input[k] = v
	}
	t.Input = input
	if t.Result != nil {
		result := make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			result[k] = v
		}
		t.Result = result
	}
	return t
}

// Terminal reports whether the task has reached a state from which it will
// never transition again.
func (t Task) Terminal() bool {
	switch t.State {
	case TaskSucceeded, TaskFailed, TaskInterrupted:
		return true
	default:
		return false
	}
}
