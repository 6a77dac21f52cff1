package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/faults"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist", "chat", "casual_chat")))

	rec, ok := reg.Lookup("chat")
	require.True(t, ok)
	require.Equal(t, agent.StateIdle, rec.State)
	require.True(t, rec.HasCapability("casual_chat"))
	require.False(t, rec.HasCapability("translate"))
}

func TestRegistryLookupMissing(t *testing.T) {
	reg := agent.NewRegistry()
	_, ok := reg.Lookup("missing")
	require.False(t, ok)
}

func TestRegistryByCapabilityIsSortedAndCopied(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("zeta", "specialist", "retrieval")))
	require.NoError(t, reg.Register(agent.NewRecord("alpha", "specialist", "retrieval")))

	matches := reg.ByCapability("retrieval")
	require.Len(t, matches, 2)
	require.Equal(t, "alpha", matches[0].Name)
	require.Equal(t, "zeta", matches[1].Name)
}

func TestRegistryDeregister(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist")))
	reg.Deregister("chat")
	_, ok := reg.Lookup("chat")
	require.False(t, ok)
}

func TestRegistryAllowsReregisteringIdleAgent(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist")))
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist", "casual_chat")))

	rec, ok := reg.Lookup("chat")
	require.True(t, ok)
	require.True(t, rec.HasCapability("casual_chat"))
}

func TestRegistrySnapshotIsSortedAndIndependent(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("zeta", "specialist")))
	require.NoError(t, reg.Register(agent.NewRecord("alpha", "specialist")))

	snap := reg.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "alpha", snap[0].Name)

	reg.Deregister("alpha")
	require.Len(t, snap, 2, "snapshot must not be affected by later mutation")
}

func TestRegistryRejectsReregisteringBusyAgent(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist")))
	sched := agent.NewScheduler(reg, agent.WithMaxConcurrent(1))
	started := make(chan struct{})
	release := make(chan struct{})
	sched.Bind("chat", func(ctx context.Context, task agent.Task) (map[string]any, error) {
		close(started)
		<-release
		return map[string]any{}, nil
	})

	_, err := sched.Submit(context.Background(), agent.Task{ID: "t1", TargetName: "chat", Priority: 5})
	require.NoError(t, err)
	<-started

	err = reg.Register(agent.NewRecord("chat", "specialist"))
	require.Error(t, err)
	f, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.KindBadInput, f.Kind())

	close(release)
	sched.Wait()
}
