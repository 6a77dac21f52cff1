package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
)

func agent() eventbus.AgentRef { return eventbus.AgentRef{Name: "chat", Role: "specialist", Icon: "message"} }

func TestBusDeliversInOrderPerSession(t *testing.T) {
	sink := eventbus.NewMemSink()
	bus := eventbus.NewBus(eventbus.WithSink(sink), eventbus.WithBufferSize(8))
	sub := bus.Subscribe("s1")
	defer sub.Close()

	for i := 0; i < 3; i++ {
		evt := eventbus.NewBuilder("s1", "t1", eventbus.TypeProgress, eventbus.StageExecuting, agent()).
			WithStep(i, 3).Build()
		require.NoError(t, bus.Emit(context.Background(), evt))
	}

	for i := 0; i < 3; i++ {
		select {
		case evt := <-sub.Events:
			require.Equal(t, i, *evt.Metadata.StepIndex)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	require.Len(t, sink.Events("s1"), 3)
}

func TestStreamEventsAreNotPersisted(t *testing.T) {
	sink := eventbus.NewMemSink()
	bus := eventbus.NewBus(eventbus.WithSink(sink))
	evt := eventbus.NewBuilder("s1", "t1", eventbus.TypeStream, eventbus.StageExecuting, agent()).WithMessage("tok").Build()
	require.NoError(t, bus.Emit(context.Background(), evt))
	require.Empty(t, sink.Events("s1"))
}

func TestSubscriberOverflowDisconnectsOnlyThatSubscriber(t *testing.T) {
	bus := eventbus.NewBus(eventbus.WithBufferSize(1))
	slow := bus.Subscribe("s1")
	fast := bus.Subscribe("s1")

	for i := 0; i < 5; i++ {
		evt := eventbus.NewBuilder("s1", "t1", eventbus.TypeProgress, eventbus.StageExecuting, agent()).Build()
		require.NoError(t, bus.Emit(context.Background(), evt))
		<-fast.Events // fast subscriber keeps draining
	}

	_, open := <-slow.Events // the one event that fit in the buffer before overflow
	require.True(t, open)
	_, open = <-slow.Events
	require.False(t, open, "slow subscriber should have been disconnected")

	// fast subscriber must still receive further events.
	evt := eventbus.NewBuilder("s1", "t1", eventbus.TypeResult, eventbus.StageComplete, agent()).Build()
	require.NoError(t, bus.Emit(context.Background(), evt))
	select {
	case got := <-fast.Events:
		require.Equal(t, eventbus.TypeResult, got.Type)
	case <-time.After(time.Second):
		t.Fatal("fast subscriber did not receive event")
	}
}

func TestSubscriberOverflowPersistsTerminalErrorEvent(t *testing.T) {
	sink := eventbus.NewMemSink()
	bus := eventbus.NewBus(eventbus.WithSink(sink), eventbus.WithBufferSize(1))
	slow := bus.Subscribe("s1")
	defer slow.Close()

	for i := 0; i < 2; i++ {
		evt := eventbus.NewBuilder("s1", "t1", eventbus.TypeProgress, eventbus.StageExecuting, agent()).Build()
		require.NoError(t, bus.Emit(context.Background(), evt))
	}

	persisted := sink.Events("s1")
	last := persisted[len(persisted)-1]
	require.Equal(t, eventbus.TypeError, last.Type)
	require.Equal(t, eventbus.StageFailed, last.Stage)
	require.Equal(t, "s1", last.SessionID)
	require.Equal(t, string(faults.KindCapacityExhausted), last.Metadata.Kind)
}

func TestStageUIDefaultsMatchContract(t *testing.T) {
	ui := eventbus.UIForStage(eventbus.StageRetrieval)
	require.Equal(t, "#10b981", ui.Color)
	require.Equal(t, "search", ui.Icon)
}
