// Package pulsesink publishes Unified Events onto goa.design/pulse Redis
// streams, one stream per session, so a persistence/fan-out path survives
// process restarts and serves subscribers running in another process. It
// mirrors the envelope-over-Pulse-stream layering the teacher uses for its
// own runtime event stream.
package pulsesink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/eventbus/pulsesink/clients/pulse"
)

// Sink publishes eventbus.Event values as JSON envelopes to per-session
// Pulse streams.
type Sink struct {
	client     pulse.Client
	streamName func(eventbus.Event) string
}

// Option configures a Sink.
type Option func(*Sink)

// WithStreamName overrides the default "session/<SessionID>" stream naming.
func WithStreamName(fn func(eventbus.Event) string) Option {
	return func(s *Sink) { s.streamName = fn }
}

// NewSink constructs a Sink over the given Pulse client.
func NewSink(client pulse.Client, opts ...Option) *Sink {
	s := &Sink{
		client:     client,
		streamName: func(e eventbus.Event) string { return "session/" + e.SessionID },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// envelope is the on-wire record written to each Pulse stream entry.
type envelope struct {
	Type      eventbus.Type `json:"type"`
	EventID   string        `json:"event_id"`
	SessionID string        `json:"session_id"`
	Payload   eventbus.Event `json:"payload"`
}

// Persist implements eventbus.Sink.
func (s *Sink) Persist(ctx context.Context, event eventbus.Event) error {
	stream, err := s.client.Stream(s.streamName(event))
	if err != nil {
		return fmt.Errorf("pulsesink: open stream: %w", err)
	}
	body, err := json.Marshal(envelope{Type: event.Type, EventID: event.EventID, SessionID: event.SessionID, Payload: event})
	if err != nil {
		return fmt.Errorf("pulsesink: marshal envelope: %w", err)
	}
	if _, err := stream.Add(ctx, string(event.Type), body); err != nil {
		return fmt.Errorf("pulsesink: publish: %w", err)
	}
	return nil
}
