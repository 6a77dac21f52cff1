// Package message implements the inter-agent task protocol (spec §4.2): a
// small set of typed envelopes exchanged between the orchestrator, the
// scheduler, and agents. Each concrete message carries its own fields
// rather than an open-ended map, per the "tagged variants, no duck-typed
// response objects" guidance in spec §9.
package message

import "time"

// Kind identifies which concrete message a Message wraps.
type Kind string

const (
	KindTaskAssignment Kind = "task_assignment"
	KindAgentStarted   Kind = "agent_started"
	KindStatusUpdate   Kind = "status_update"
	KindAgentCompleted Kind = "agent_completed"
	KindAgentFailed    Kind = "agent_failed"
	KindInterrupt      Kind = "interrupt"
	KindRagResult      Kind = "rag_result"
)

// Envelope carries routing metadata common to every message.
type Envelope struct {
	Kind      Kind      `json:"kind"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
	Priority  int       `json:"priority"`
}

// TaskAssignment instructs Recipient to begin work on a task.
type TaskAssignment struct {
	Envelope
	TaskID      string         `json:"task_id"`
	Description string         `json:"description"`
	Input       map[string]any `json:"input"`
}

// AgentStarted reports that an agent began processing its assigned task.
type AgentStarted struct {
	Envelope
	TaskID string `json:"task_id"`
}

// StatusUpdate reports interim progress from an agent.
type StatusUpdate struct {
	Envelope
	TaskID   string  `json:"task_id"`
	Progress float64 `json:"progress,omitempty"`
	Stage    string  `json:"stage,omitempty"`
}

// AgentCompleted carries a successful task's result.
type AgentCompleted struct {
	Envelope
	TaskID string         `json:"task_id"`
	Result map[string]any `json:"result"`
}

// AgentFailed carries a typed failure (spec §7 Kind values carried as plain
// strings; callers parse with faults.Kind(message.AgentFailed.FaultKind)).
type AgentFailed struct {
	Envelope
	TaskID    string `json:"task_id"`
	FaultKind string `json:"fault_kind"`
	Detail    string `json:"detail"`
}

// Interrupt requests cancellation of a task or every task owned by an agent.
// Exactly one of TaskID or AgentName is set.
type Interrupt struct {
	Envelope
	TaskID    string `json:"task_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
}

// RagResult carries retrieval fragments from a retrieval-capable agent back
// to its caller.
type RagResult struct {
	Envelope
	TaskID  string           `json:"task_id"`
	Sources []map[string]any `json:"sources"`
}
