// Package eventbus implements the Unified Event schema (spec §3, §6.2) and
// the broadcast fabric that fans events out to live subscribers while
// persisting them alongside their session (spec §4.1).
package eventbus

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type enumerates the Unified Event's type field.
type Type string

const (
	TypeInit     Type = "init"
	TypeThinking Type = "thinking"
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeStream   Type = "stream"
	TypeResult   Type = "result"
	TypeError    Type = "error"
)

// Stage enumerates the coarse processing phase surfaced to the client.
type Stage string

const (
	StageInit        Stage = "init"
	StageClassifying Stage = "classifying"
	StagePlanning    Stage = "planning"
	StageRetrieval   Stage = "retrieval"
	StageExecuting   Stage = "executing"
	StageSynthesis   Stage = "synthesis"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

// AgentRef identifies the agent that produced an event.
type AgentRef struct {
	Name string `json:"name"`
	Role string `json:"role"`
	Icon string `json:"icon"`
}

// TokenUsage reports token accounting for an LLM call associated with an event.
type TokenUsage struct {
	Prompt     int     `json:"prompt"`
	Completion int     `json:"completion"`
	Total      int     `json:"total"`
	Cost       float64 `json:"cost"`
}

// Source is a retrieved document fragment (spec §3 Source Fragment), as
// attached to events.
type Source struct {
	Store    string         `json:"store"`
	DocID    string         `json:"doc_id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Content carries the event's payload.
type Content struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Sources []Source       `json:"sources,omitempty"`
	Tokens  *TokenUsage    `json:"tokens,omitempty"`
	Answer  *string        `json:"answer,omitempty"`
}

// UIHints carries rendering hints derived from the Stage→UI defaults table
// (spec §6.2), optionally overridden per event.
type UIHints struct {
	Color           string `json:"color"`
	Icon            string `json:"icon"`
	Priority        int    `json:"priority"`
	Dismissible     bool   `json:"dismissible"`
	ShowInTimeline  bool   `json:"show_in_timeline"`
	Animate         bool   `json:"animate"`
}

// Metadata carries auxiliary routing/progress information.
type Metadata struct {
	Intent     *string `json:"intent,omitempty"`
	Handler    *string `json:"handler,omitempty"`
	DurationMs *int    `json:"duration_ms,omitempty"`
	StepIndex  *int    `json:"step_index,omitempty"`
	TotalSteps *int    `json:"total_steps,omitempty"`
	Kind       string  `json:"kind,omitempty"` // faults.Kind, set only on type=error
}

// Event is the Unified Event (spec §3, §6.2). Once emitted it is immutable;
// callers must copy before mutating any nested slice/map.
type Event struct {
	EventID        string   `json:"event_id"`
	SessionID      string   `json:"session_id"`
	TaskID         string   `json:"task_id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Type           Type     `json:"type"`
	Stage          Stage    `json:"stage"`
	Agent          AgentRef `json:"agent"`
	Content        Content  `json:"content"`
	UI             UIHints  `json:"ui"`
	Metadata       Metadata `json:"metadata"`
	Timestamp      time.Time `json:"timestamp"`
}

// stageDefaults is the bit-exact Stage→UI defaults table from spec §6.2. It
// is part of the external contract: convenience emitters must derive their
// UI hints from this table and nowhere else.
var stageDefaults = map[Stage]UIHints{
	StageInit:        {Color: "#6b7280", Icon: "inbox", Priority: 0, ShowInTimeline: true},
	StageClassifying: {Color: "#8b5cf6", Icon: "tag", Priority: 1, ShowInTimeline: true},
	StagePlanning:    {Color: "#f59e0b", Icon: "clipboard-list", Priority: 2, ShowInTimeline: true},
	StageRetrieval:   {Color: "#10b981", Icon: "search", Priority: 3, ShowInTimeline: true, Animate: true},
	StageExecuting:   {Color: "#3b82f6", Icon: "cog", Priority: 4, ShowInTimeline: true, Animate: true},
	StageSynthesis:   {Color: "#6366f1", Icon: "sparkles", Priority: 5, ShowInTimeline: true, Animate: true},
	StageComplete:    {Color: "#22c55e", Icon: "check-circle", Priority: 9, ShowInTimeline: true, Dismissible: true},
	StageFailed:      {Color: "#ef4444", Icon: "x-circle", Priority: 9, ShowInTimeline: true, Dismissible: true},
}

// UIForStage returns a copy of the stage's default UI hints.
func UIForStage(stage Stage) UIHints {
	if ui, ok := stageDefaults[stage]; ok {
		return ui
	}
	return UIHints{Color: "#6b7280", Icon: "circle", ShowInTimeline: true}
}

// NewEventID mints a sortable event id in the "evt_<ulid>" form used on the
// wire (spec §6.2).
func NewEventID() string {
	return "evt_" + strings.ToLower(ulid.Make().String())
}

// Builder accumulates fields for a single Event before Build. Builder is not
// safe for concurrent use; construct one per event.
type Builder struct {
	e Event
}

// NewBuilder starts a new event for the given session/task, with UI hints
// defaulted from the stage table.
func NewBuilder(sessionID, taskID string, typ Type, stage Stage, agent AgentRef) *Builder {
	return &Builder{e: Event{
		EventID:   NewEventID(),
		SessionID: sessionID,
		TaskID:    taskID,
		Type:      typ,
		Stage:     stage,
		Agent:     agent,
		UI:        UIForStage(stage),
		Timestamp: time.Now().UTC(),
	}}
}

func (b *Builder) WithConversation(id string) *Builder {
	b.e.ConversationID = id
	return b
}

func (b *Builder) WithMessage(msg string) *Builder {
	b.e.Content.Message = msg
	return b
}

func (b *Builder) WithData(data map[string]any) *Builder {
	b.e.Content.Data = data
	return b
}

func (b *Builder) WithSources(sources []Source) *Builder {
	b.e.Content.Sources = sources
	return b
}

func (b *Builder) WithTokens(u TokenUsage) *Builder {
	b.e.Content.Tokens = &u
	return b
}

func (b *Builder) WithAnswer(answer string) *Builder {
	b.e.Content.Answer = &answer
	return b
}

func (b *Builder) WithIntent(intent string) *Builder {
	b.e.Metadata.Intent = &intent
	return b
}

func (b *Builder) WithHandler(handler string) *Builder {
	b.e.Metadata.Handler = &handler
	return b
}

func (b *Builder) WithDuration(d time.Duration) *Builder {
	ms := int(d.Milliseconds())
	b.e.Metadata.DurationMs = &ms
	return b
}

func (b *Builder) WithStep(index, total int) *Builder {
	b.e.Metadata.StepIndex = &index
	b.e.Metadata.TotalSteps = &total
	return b
}

func (b *Builder) WithFaultKind(kind string) *Builder {
	b.e.Metadata.Kind = kind
	return b
}

// Build finalizes the event.
func (b *Builder) Build() Event { return b.e }
