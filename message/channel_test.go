package message_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/message"
)

func TestRouterPreservesOrderPerPair(t *testing.T) {
	r := message.NewRouter(4)
	r.Send("manager", "chat-1", message.TaskAssignment{TaskID: "t1"})
	r.Send("manager", "chat-1", message.TaskAssignment{TaskID: "t2"})
	r.Send("manager", "retrieval-1", message.TaskAssignment{TaskID: "t3"})

	first := r.Receive("manager", "chat-1").(message.TaskAssignment)
	second := r.Receive("manager", "chat-1").(message.TaskAssignment)
	require.Equal(t, "t1", first.TaskID)
	require.Equal(t, "t2", second.TaskID)

	other := r.Receive("manager", "retrieval-1").(message.TaskAssignment)
	require.Equal(t, "t3", other.TaskID)
}

func TestRouterTryReceiveWithoutMessage(t *testing.T) {
	r := message.NewRouter(1)
	_, ok := r.TryReceive("manager", "chat-1")
	require.False(t, ok)

	r.Send("manager", "chat-1", message.AgentStarted{TaskID: "t1"})
	msg, ok := r.TryReceive("manager", "chat-1")
	require.True(t, ok)
	require.Equal(t, "t1", msg.(message.AgentStarted).TaskID)
}

func TestRouterReceiveBlocksUntilSend(t *testing.T) {
	r := message.NewRouter(1)
	done := make(chan message.StatusUpdate, 1)
	go func() {
		done <- r.Receive("chat-1", "manager").(message.StatusUpdate)
	}()

	time.Sleep(10 * time.Millisecond)
	r.Send("chat-1", "manager", message.StatusUpdate{TaskID: "t1", Progress: 0.5})

	select {
	case got := <-done:
		require.Equal(t, 0.5, got.Progress)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}
