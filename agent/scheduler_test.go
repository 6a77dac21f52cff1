package agent_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/agent"
	"github.com/cortexmesh/orchestrator/faults"
)

func newTestScheduler(t *testing.T, maxConcurrent int) (*agent.Registry, *agent.Scheduler) {
	t.Helper()
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist", "chat")))
	sched := agent.NewScheduler(reg, agent.WithMaxConcurrent(maxConcurrent), agent.WithRetryBound(1))
	return reg, sched
}

func TestSchedulerRunsBoundHandler(t *testing.T) {
	_, sched := newTestScheduler(t, 1)
	var got atomic.Bool
	sched.Bind("chat", func(ctx context.Context, task agent.Task) (map[string]any, error) {
		got.Store(true)
		return map[string]any{"ok": true}, nil
	})

	id, err := sched.Submit(context.Background(), agent.Task{ID: "t1", SessionID: "s1", TargetName: "chat", Priority: 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, ok := sched.Lookup(id)
		return ok && task.Terminal()
	}, time.Second, 5*time.Millisecond)

	require.True(t, got.Load())
	task, _ := sched.Lookup(id)
	require.Equal(t, agent.TaskSucceeded, task.State)
	require.Equal(t, true, task.Result["ok"])
}

func TestSchedulerRejectsUnknownAgent(t *testing.T) {
	_, sched := newTestScheduler(t, 1)
	_, err := sched.Submit(context.Background(), agent.Task{ID: "t1", TargetName: "missing", Priority: 5})
	require.Error(t, err)
	f, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.KindNotFound, f.Kind())
}

func TestSchedulerRejectsOutOfRangePriority(t *testing.T) {
	_, sched := newTestScheduler(t, 1)
	_, err := sched.Submit(context.Background(), agent.Task{ID: "t1", TargetName: "chat", Priority: 11})
	require.Error(t, err)
}

func TestSchedulerDispatchesHighestPriorityFirst(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist", "chat")))
	sched := agent.NewScheduler(reg, agent.WithMaxConcurrent(1))

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})
	first := true
	sched.Bind("chat", func(ctx context.Context, task agent.Task) (map[string]any, error) {
		if first {
			first = false
			<-release // hold the only slot so the next two queue up
		}
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return map[string]any{}, nil
	})

	ctx := context.Background()
	_, err := sched.Submit(ctx, agent.Task{ID: "blocker", TargetName: "chat", Priority: 1})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // ensure blocker has taken the only slot

	_, err = sched.Submit(ctx, agent.Task{ID: "low", TargetName: "chat", Priority: 2})
	require.NoError(t, err)
	_, err = sched.Submit(ctx, agent.Task{ID: "high", TargetName: "chat", Priority: 9})
	require.NoError(t, err)

	close(release)
	sched.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"blocker", "high", "low"}, order)
}

// A queued higher-priority task whose agent is busy must not block a
// queued lower-priority task whose agent is idle (spec §4.3: skip, don't
// reorder).
func TestSchedulerSkipsBusyAgentForNextAdmissibleTask(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(agent.NewRecord("chat", "specialist", "chat")))
	require.NoError(t, reg.Register(agent.NewRecord("translate", "specialist", "translate")))
	sched := agent.NewScheduler(reg, agent.WithMaxConcurrent(2))

	blockerRelease := make(chan struct{})
	var chatCalls atomic.Int32
	sched.Bind("chat", func(ctx context.Context, task agent.Task) (map[string]any, error) {
		if chatCalls.Add(1) == 1 {
			<-blockerRelease // first call holds the chat agent busy
		}
		return map[string]any{}, nil
	})

	var translateDone atomic.Bool
	sched.Bind("translate", func(ctx context.Context, task agent.Task) (map[string]any, error) {
		translateDone.Store(true)
		return map[string]any{}, nil
	})

	ctx := context.Background()
	blockerID, err := sched.Submit(ctx, agent.Task{ID: "chat-blocker", TargetName: "chat", Priority: 5})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		task, ok := sched.Lookup(blockerID)
		return ok && task.State == agent.TaskRunning
	}, time.Second, 5*time.Millisecond)

	// Queued behind the busy chat agent at a higher priority than translate.
	queuedChatID, err := sched.Submit(ctx, agent.Task{ID: "chat-queued", TargetName: "chat", Priority: 9})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		task, ok := sched.Lookup(queuedChatID)
		return ok && task.State == agent.TaskQueued
	}, time.Second, 5*time.Millisecond)

	translateID, err := sched.Submit(ctx, agent.Task{ID: "translate-1", TargetName: "translate", Priority: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, ok := sched.Lookup(translateID)
		return ok && task.Terminal()
	}, time.Second, 5*time.Millisecond)
	require.True(t, translateDone.Load())

	// The higher-priority chat task was skipped, not reordered: it is still
	// queued, waiting for the chat agent to free up.
	queuedChat, ok := sched.Lookup(queuedChatID)
	require.True(t, ok)
	require.Equal(t, agent.TaskQueued, queuedChat.State)

	close(blockerRelease)
	require.Eventually(t, func() bool {
		task, ok := sched.Lookup(queuedChatID)
		return ok && task.Terminal()
	}, time.Second, 5*time.Millisecond)
	queuedChat, _ = sched.Lookup(queuedChatID)
	require.Equal(t, agent.TaskSucceeded, queuedChat.State)
}

func TestSchedulerRetriesRetryableFaultThenSurfaces(t *testing.T) {
	_, sched := newTestScheduler(t, 1)
	var attempts atomic.Int32
	sched.Bind("chat", func(ctx context.Context, task agent.Task) (map[string]any, error) {
		attempts.Add(1)
		return nil, faults.New(faults.KindLLMError, "provider unavailable")
	})

	id, err := sched.Submit(context.Background(), agent.Task{ID: "t1", TargetName: "chat", Priority: 5})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, ok := sched.Lookup(id)
		return ok && task.State == agent.TaskFailed
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, int32(2), attempts.Load()) // initial attempt + 1 retry (bound=1)
}

func TestSchedulerInterruptCancelsRunningTask(t *testing.T) {
	_, sched := newTestScheduler(t, 1)
	started := make(chan struct{})
	sched.Bind("chat", func(ctx context.Context, task agent.Task) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	id, err := sched.Submit(context.Background(), agent.Task{ID: "t1", TargetName: "chat", Priority: 5})
	require.NoError(t, err)

	<-started
	require.NoError(t, sched.Interrupt(id))

	require.Eventually(t, func() bool {
		task, ok := sched.Lookup(id)
		return ok && task.Terminal()
	}, time.Second, 5*time.Millisecond)

	task, _ := sched.Lookup(id)
	require.Equal(t, agent.TaskInterrupted, task.State)
}
