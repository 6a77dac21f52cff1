package agent

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cortexmesh/orchestrator/eventbus"
	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/telemetry"
)

// Handler executes a Task's work for a single agent. Implementations live
// in package specialist. Handlers must respect ctx cancellation: the
// scheduler cancels a running task's context on Interrupt.
type Handler func(ctx context.Context, task Task) (map[string]any, error)

// Scheduler dispatches queued tasks to registered agents under a bounded
// concurrency budget, ordered by (priority desc, arrival order asc) per
// spec §4.3.
type Scheduler struct {
	registry *Registry
	bus      *eventbus.Bus
	logger   telemetry.Logger
	metrics  telemetry.Metrics

	maxConcurrent int
	retryBound    int

	sem chan struct{}

	mu       sync.Mutex
	queue    taskHeap
	nextSeq  uint64
	handlers map[string]Handler
	cancels  map[string]context.CancelFunc
	tasks    map[string]*Task

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrent bounds the number of tasks running at once. Default 5
// per spec §6.3.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithRetryBound sets how many times a failed task with a retryable fault
// kind is automatically resubmitted before surfacing.
func WithRetryBound(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.retryBound = n
		}
	}
}

// WithEventBus attaches a bus for status/progress event emission.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the scheduler's metrics sink.
func WithMetrics(m telemetry.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler constructs a Scheduler bound to registry.
func NewScheduler(registry *Registry, opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:      registry,
		logger:        telemetry.NewNoopLogger(),
		metrics:       telemetry.NewNoopMetrics(),
		maxConcurrent: 5,
		retryBound:    2,
		handlers:      make(map[string]Handler),
		cancels:       make(map[string]context.CancelFunc),
		tasks:         make(map[string]*Task),
	}
	for _, o := range opts {
		o(s)
	}
	s.sem = make(chan struct{}, s.maxConcurrent)
	return s
}

// Bind associates name with the handler invoked for tasks targeting it.
func (s *Scheduler) Bind(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Submit enqueues task for dispatch and returns its ID immediately. The
// scheduler keeps its own copy of the task; the caller's task is not
// mutated.
func (s *Scheduler) Submit(ctx context.Context, task Task) (string, error) {
	if task.Priority < 1 || task.Priority > 10 {
		return "", faults.New(faults.KindBadInput, fmt.Sprintf("priority %d out of range [1,10]", task.Priority))
	}
	if _, ok := s.registry.Lookup(task.TargetName); !ok {
		return "", faults.New(faults.KindNotFound, fmt.Sprintf("agent %q is not registered", task.TargetName))
	}

	s.mu.Lock()
	task.State = TaskQueued
	task.CreatedAt = now()
	task.seq = s.nextSeq
	s.nextSeq++
	stored := task
	s.tasks[task.ID] = &stored
	heap.Push(&s.queue, &stored)
	s.mu.Unlock()

	s.emitStatus(ctx, task, eventbus.StagePlanning, "queued")
	go s.pump(ctx)
	return task.ID, nil
}

// Interrupt cancels the named task if it is running, or removes it from the
// queue if it has not yet started.
func (s *Scheduler) Interrupt(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.cancels[taskID]; ok {
		cancel()
		return nil
	}
	if t, ok := s.tasks[taskID]; ok && t.State == TaskQueued {
		t.State = TaskInterrupted
		s.queue.removeByID(taskID)
		return nil
	}
	return faults.New(faults.KindNotFound, fmt.Sprintf("task %q is not active", taskID))
}

// Lookup returns a copy of the named task's current state.
func (s *Scheduler) Lookup(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// Snapshot returns copies of every task known to the scheduler.
func (s *Scheduler) Snapshot() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Wait blocks until every task submitted so far has reached a terminal
// state. Intended for tests and graceful shutdown.
func (s *Scheduler) Wait() {
	for {
		s.wg.Wait()
		s.mu.Lock()
		pending := false
		for _, t := range s.tasks {
			if !t.Terminal() {
				pending = true
				break
			}
		}
		s.mu.Unlock()
		if !pending {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// pump finds the highest-priority task whose target agent is currently idle
// and dispatches it, blocking on the semaphore until a slot is free. Tasks
// whose target agent is busy are skipped, not reordered, so a busy agent
// never head-of-line-blocks tasks bound for other idle agents (spec §4.3).
// It is safe to call concurrently; only one goroutine will win the pop for
// any given task because the queue is mutex-guarded.
func (s *Scheduler) pump(ctx context.Context) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	t := s.nextAdmissible()
	if t == nil {
		s.mu.Unlock()
		<-s.sem
		return
	}
	handler, hasHandler := s.handlers[t.TargetName]
	s.mu.Unlock()

	if !hasHandler {
		s.finish(ctx, t, nil, faults.New(faults.KindNotFound, fmt.Sprintf("no handler bound for agent %q", t.TargetName)))
		<-s.sem
		return
	}

	if err := s.registry.markBusy(t.TargetName, t.ID); err != nil {
		// The agent raced to busy between nextAdmissible's check and this
		// claim attempt; requeue the task and let the next pump re-admit it
		// rather than failing it outright.
		s.mu.Lock()
		heap.Push(&s.queue, t)
		s.mu.Unlock()
		<-s.sem
		go s.pump(ctx)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	t.State = TaskRunning
	t.StartedAt = now()
	s.cancels[t.ID] = cancel
	s.mu.Unlock()

	s.emitStatus(ctx, *t, eventbus.StageExecuting, "running")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() { <-s.sem }()
		result, err := handler(runCtx, *t)
		s.registry.markIdle(t.TargetName, err == nil, now())
		s.mu.Lock()
		delete(s.cancels, t.ID)
		s.mu.Unlock()

		if runCtx.Err() != nil && (err == nil || errors.Is(err, runCtx.Err())) {
			err = faults.New(faults.KindInterrupted, "task cancelled")
		}
		s.finish(ctx, t, result, err)
		// The agent just freed up; wake any task that was skipped over
		// while it was busy.
		go s.pump(ctx)
	}()
}

// finish records a task's terminal outcome and retries it if eligible.
func (s *Scheduler) finish(ctx context.Context, t *Task, result map[string]any, err error) {
	s.mu.Lock()
	if err == nil {
		t.State = TaskSucceeded
		t.Result = result
	} else if f, ok := faults.As(err); ok && f.Kind() == faults.KindInterrupted {
		t.State = TaskInterrupted
		t.FailureDetail = f.Error()
	} else {
		retryable := false
		if f, ok := faults.As(err); ok {
			retryable = f.Retryable()
		}
		if retryable && t.RetryCount < s.retryBound {
			retry := *t
			retry.RetryCount++
			retry.State = TaskQueued
			retry.seq = s.nextSeq
			s.nextSeq++
			s.tasks[retry.ID] = &retry
			heap.Push(&s.queue, &retry)
			s.mu.Unlock()
			s.emitStatus(ctx, retry, eventbus.StageExecuting, "retrying")
			go s.pump(ctx)
			return
		}
		t.State = TaskFailed
		if err != nil {
			t.FailureDetail = err.Error()
		}
	}
	t.EndedAt = now()
	s.mu.Unlock()

	stage := eventbus.StageComplete
	if t.State == TaskFailed {
		stage = eventbus.StageFailed
	}
	s.emitStatus(ctx, *t, stage, string(t.State))
}

func (s *Scheduler) emitStatus(ctx context.Context, t Task, stage eventbus.Stage, message string) {
	if s.bus == nil {
		return
	}
	evt := eventbus.NewBuilder(t.SessionID, t.ID, eventbus.TypeStatus, stage, eventbus.AgentRef{Name: t.TargetName}).
		WithMessage(message).
		Build()
	_ = s.bus.Emit(ctx, evt)
}

// nextAdmissible pops and returns the highest-priority queued task whose
// target agent is currently idle, skipping past (without reordering) any
// task whose agent is busy. Skipped tasks are pushed back before returning.
// Callers must hold s.mu.
func (s *Scheduler) nextAdmissible() *Task {
	var skipped []*Task
	var chosen *Task
	for s.queue.Len() > 0 {
		candidate := heap.Pop(&s.queue).(*Task)
		if rec, ok := s.registry.Lookup(candidate.TargetName); ok && rec.State == StateBusy {
			skipped = append(skipped, candidate)
			continue
		}
		chosen = candidate
		break
	}
	for _, sk := range skipped {
		heap.Push(&s.queue, sk)
	}
	return chosen
}

func now() time.Time { return time.Now() }
