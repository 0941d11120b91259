package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumlayer-dev/agentmesh/internal/broker"
	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/monitor"
	"github.com/quantumlayer-dev/agentmesh/internal/orchestrator"
	"github.com/quantumlayer-dev/agentmesh/internal/queue"
	"github.com/quantumlayer-dev/agentmesh/internal/registry"
	"github.com/quantumlayer-dev/agentmesh/internal/store"
)

// scriptedAgent completes every assigned task after a short delay, failing
// tasks whose Type is "fail" and otherwise succeeding, exercising the
// orchestrator's event pump without a real workload behind it.
type scriptedAgent struct {
	mu      sync.Mutex
	id      string
	cfg     domain.AgentConfig
	status  domain.AgentStatus
	tasks   map[string]*domain.Task
	events  chan domain.AgentEvent
	delay   time.Duration
	started bool
}

func newScriptedAgent(id string, delay time.Duration, caps ...string) *scriptedAgent {
	return &scriptedAgent{
		id:     id,
		cfg:    domain.AgentConfig{Name: id, Capabilities: domain.NewStringSet(caps...), MaxConcurrentTasks: 2},
		status: domain.AgentOffline,
		tasks:  make(map[string]*domain.Task),
		events: make(chan domain.AgentEvent, 16),
		delay:  delay,
	}
}

func (f *scriptedAgent) ID() string                { return f.id }
func (f *scriptedAgent) Config() domain.AgentConfig { return f.cfg }
func (f *scriptedAgent) Status() domain.AgentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}
func (f *scriptedAgent) Metrics() domain.AgentMetrics { return domain.AgentMetrics{} }

func (f *scriptedAgent) Start(context.Context, domain.StatusCallback) error {
	f.mu.Lock()
	f.status = domain.AgentIdle
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *scriptedAgent) Stop(context.Context) error {
	f.mu.Lock()
	f.status = domain.AgentOffline
	f.mu.Unlock()
	close(f.events)
	return nil
}

func (f *scriptedAgent) AssignTask(_ context.Context, task *domain.Task) bool {
	f.mu.Lock()
	if len(f.tasks) >= f.cfg.MaxConcurrentTasks {
		f.mu.Unlock()
		return false
	}
	f.tasks[task.ID] = task
	f.status = domain.AgentBusy
	f.mu.Unlock()

	go func() {
		f.events <- domain.AgentEvent{Name: domain.EventTaskStarted, TaskID: task.ID, AgentID: f.id, At: time.Now()}
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		f.mu.Lock()
		delete(f.tasks, task.ID)
		if len(f.tasks) == 0 {
			f.status = domain.AgentIdle
		}
		f.mu.Unlock()

		if task.Type == "fail" {
			f.events <- domain.AgentEvent{Name: domain.EventTaskFailed, TaskID: task.ID, AgentID: f.id, Err: assert.AnError, At: time.Now()}
			return
		}
		result := domain.Text("ok")
		f.events <- domain.AgentEvent{Name: domain.EventTaskCompleted, TaskID: task.ID, AgentID: f.id, Result: &result, At: time.Now()}
	}()
	return true
}

func (f *scriptedAgent) CancelTask(taskID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[taskID]; !ok {
		return false
	}
	delete(f.tasks, taskID)
	return true
}

func (f *scriptedAgent) CurrentTasks() []*domain.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out
}

func (f *scriptedAgent) HandleMessage(*domain.Message)    {}
func (f *scriptedAgent) HealthCheck(context.Context) bool { return true }
func (f *scriptedAgent) Events() <-chan domain.AgentEvent { return f.events }

func newTestOrchestrator(t *testing.T) (*orchestrator.Orchestrator, *queue.Queue, *registry.Registry) {
	t.Helper()
	clock := domain.NewFixedClock(time.Now())
	q := queue.New(clock, 0)
	reg := registry.New(clock, nil)
	cfg := orchestrator.DefaultConfig()
	cfg.SweepDispatchCron = "@every 1s"
	cfg.SweepHealthCron = "@every 1s"
	cfg.SweepCleanupCron = "@every 1h"

	o := orchestrator.New(cfg, orchestrator.Dependencies{
		Clock:    clock,
		Queue:    q,
		Registry: reg,
		Store:    store.NewMemoryTaskStore(),
		Monitor:  monitor.New(clock, nil),
		Broker:   broker.New(clock, nil),
	})
	return o, q, reg
}

func TestSubmitTaskDispatchesToCapableAgent(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	agent := newScriptedAgent("agent-1", 10*time.Millisecond, "code-gen")
	require.NoError(t, o.RegisterAgent(context.Background(), agent))

	task, err := o.SubmitTask(context.Background(), domain.PartialTask{Type: "generate", RequiredCapabilities: []string{"code-gen"}})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, ok := q.GetTask(task.ID)
		return ok && got.Status == domain.TaskCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFailedTaskRetriesThenExhausts(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	agent := newScriptedAgent("agent-1", 5*time.Millisecond, "x")
	require.NoError(t, o.RegisterAgent(context.Background(), agent))

	one := 0
	task, err := o.SubmitTask(context.Background(), domain.PartialTask{Type: "fail", RequiredCapabilities: []string{"x"}, MaxRetries: &one})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, ok := q.GetTask(task.ID)
		return ok && got.Status == domain.TaskFailed
	}, 3*time.Second, 20*time.Millisecond)
}

func TestCancelTaskBeforeAssignment(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	task, err := o.SubmitTask(context.Background(), domain.PartialTask{Type: "noop", RequiredCapabilities: []string{"nothing-registered"}})
	require.NoError(t, err)

	require.NoError(t, o.CancelTask(task.ID))
	got, ok := q.GetTask(task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskCancelled, got.Status)
}

func TestCancelAlreadyTerminalTaskErrors(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	task, err := o.SubmitTask(context.Background(), domain.PartialTask{Type: "noop"})
	require.NoError(t, err)
	require.NoError(t, o.CancelTask(task.ID))

	err = o.CancelTask(task.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

// hangingAgent never returns from Stop, to exercise the drain deadline.
type hangingAgent struct {
	*scriptedAgent
}

func (h *hangingAgent) Stop(ctx context.Context) error {
	<-ctx.Done()
	select {}
}

func TestStopCancelsInProgressTasksPastDrainDeadline(t *testing.T) {
	o, q, _ := newTestOrchestrator(t)
	cfg := orchestrator.DefaultConfig()
	cfg.SweepDispatchCron = "@every 1s"
	cfg.SweepHealthCron = "@every 1h"
	cfg.SweepCleanupCron = "@every 1h"
	cfg.DrainDeadline = 50 * time.Millisecond

	clock := domain.NewFixedClock(time.Now())
	q2 := queue.New(clock, 0)
	reg := registry.New(clock, nil)
	o = orchestrator.New(cfg, orchestrator.Dependencies{
		Clock:    clock,
		Queue:    q2,
		Registry: reg,
		Store:    store.NewMemoryTaskStore(),
		Monitor:  monitor.New(clock, nil),
		Broker:   broker.New(clock, nil),
	})
	q = q2

	agent := &hangingAgent{scriptedAgent: newScriptedAgent("agent-1", time.Hour, "x")}
	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.RegisterAgent(context.Background(), agent))

	task, err := o.SubmitTask(context.Background(), domain.PartialTask{Type: "slow", RequiredCapabilities: []string{"x"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := q.GetTask(task.ID)
		return ok && got.Status == domain.TaskInProgress
	}, time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		_ = o.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within the drain deadline")
	}

	got, ok := q.GetTask(task.ID)
	require.True(t, ok)
	assert.Equal(t, domain.TaskCancelled, got.Status)
}

func TestRegisterAgentPopulatesRegistry(t *testing.T) {
	o, _, reg := newTestOrchestrator(t)
	require.NoError(t, o.Start(context.Background()))
	defer o.Stop(context.Background())

	agent := newScriptedAgent("agent-1", 0, "x")
	require.NoError(t, o.RegisterAgent(context.Background(), agent))
	assert.Len(t, reg.All(), 1)

	require.NoError(t, o.UnregisterAgent(context.Background(), "agent-1"))
	assert.Empty(t, reg.All())
}
