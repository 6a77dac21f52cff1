package eventbus

import (
	"context"
	"sync"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/telemetry"
)

// Sink persists events alongside their session. Events of Type=stream are
// never passed to Persist (spec §4.1: "not persisted to reduce write
// amplification").
type Sink interface {
	Persist(ctx context.Context, event Event) error
}

// Subscription is a live subscriber's view onto a session's event stream.
type Subscription struct {
	Events <-chan Event
	bus    *Bus
	sub    *subscriber
}

// Close disconnects the subscription. Idempotent.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.sub)
}

type subscriber struct {
	sessionID string
	ch        chan Event
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Bus is the in-process event fan-out fabric described in spec §4.1.
// Delivery to live subscribers is at-least-once and ordered per session; a
// subscriber whose buffer overflows is disconnected with a terminal error
// event, while persistence continues independently of subscriber health.
type Bus struct {
	mu         sync.Mutex
	sessions   map[string]map[*subscriber]struct{}
	sink       Sink
	bufferSize int
	logger     telemetry.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithSink sets the persistence sink. Defaults to a discarding sink if unset.
func WithSink(sink Sink) Option {
	return func(b *Bus) { b.sink = sink }
}

// WithBufferSize sets the per-subscriber buffer capacity (spec §6.3
// event_subscriber_buffer, default 256).
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the logger used to report dropped subscribers.
func WithLogger(l telemetry.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// NewBus constructs a ready-to-use Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		sessions:   make(map[string]map[*subscriber]struct{}),
		sink:       discardSink{},
		bufferSize: 256,
		logger:     telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Emit hands event to the bus. It persists the event (unless Type=stream),
// then fans it out to every subscriber of event.SessionID in emission
// order. A subscriber whose buffer is full is disconnected immediately; its
// disconnection never blocks delivery to other subscribers or future Emit
// calls.
func (b *Bus) Emit(ctx context.Context, event Event) error {
	if event.Type != TypeStream {
		if err := b.sink.Persist(ctx, event); err != nil {
			b.logger.Error(ctx, "eventbus: persist failed", "session_id", event.SessionID, "event_id", event.EventID, "err", err.Error())
		}
	}

	b.mu.Lock()
	subs := b.sessions[event.SessionID]
	snapshot := make([]*subscriber, 0, len(subs))
	for s := range subs {
		snapshot = append(snapshot, s)
	}
	b.mu.Unlock()

	for _, s := range snapshot {
		select {
		case s.ch <- event:
		default:
			b.disconnect(s, ctx)
		}
	}
	return nil
}

// disconnect removes an overflowing subscriber and emits a terminal error
// event on its behalf before closing its channel, per spec §4.1. The
// subscriber's buffer is by definition full at this point, so delivery is
// attempted but not guaranteed; persistence happens regardless, so the
// disconnection is always recorded in the session's event log even when no
// live subscriber ever sees it.
func (b *Bus) disconnect(s *subscriber, ctx context.Context) {
	b.unsubscribe(s)
	b.logger.Warn(ctx, "eventbus: subscriber buffer overflow, disconnecting", "session_id", s.sessionID)

	evt := NewBuilder(s.sessionID, "", TypeError, StageFailed, AgentRef{}).
		WithMessage("subscriber disconnected: event buffer overflow").
		WithFaultKind(string(faults.KindCapacityExhausted)).
		Build()
	if err := b.sink.Persist(ctx, evt); err != nil {
		b.logger.Error(ctx, "eventbus: persist disconnect event failed", "session_id", s.sessionID, "err", err.Error())
	}
	select {
	case s.ch <- evt:
	default:
	}
	s.close()
}

// Subscribe registers a new subscriber for sessionID and returns a
// Subscription whose Events channel delivers events in emission order.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	s := &subscriber{sessionID: sessionID, ch: make(chan Event, b.bufferSize)}
	b.mu.Lock()
	if b.sessions[sessionID] == nil {
		b.sessions[sessionID] = make(map[*subscriber]struct{})
	}
	b.sessions[sessionID][s] = struct{}{}
	b.mu.Unlock()
	return &Subscription{Events: s.ch, bus: b, sub: s}
}

func (b *Bus) unsubscribe(s *subscriber) {
	b.mu.Lock()
	if subs, ok := b.sessions[s.sessionID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.sessions, s.sessionID)
		}
	}
	b.mu.Unlock()
}

type discardSink struct{}

func (discardSink) Persist(context.Context, Event) error { return nil }
