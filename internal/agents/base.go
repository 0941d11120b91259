// Package agents provides concrete domain.AgentInterface implementations
// built around a shared BaseAgent: an atomic workload counter, a
// capability-gated AssignTask, and an Executor function each concrete
// agent plugs in for its actual work.
package agents

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

// Executor is the function a BaseAgent delegates actual task work to. It
// must respect ctx cancellation and return the task's result payload.
type Executor func(ctx context.Context, task *domain.Task) (domain.Payload, error)

// BaseAgent implements domain.AgentInterface generically over an
// Executor, tracking workload with an atomic counter and emitting the
// lifecycle events the orchestrator's event pump expects.
type BaseAgent struct {
	id     string
	cfg    domain.AgentConfig
	logger *zap.Logger
	run    Executor

	workload atomic.Int32
	status   atomic.String

	mu          sync.Mutex
	currentTask map[string]*domain.Task
	cancelFuncs map[string]context.CancelFunc

	events   chan domain.AgentEvent
	onStatus domain.StatusCallback
	metrics  domain.AgentMetrics
	metMu    sync.Mutex

	startTime time.Time
}

// NewBaseAgent builds an agent identified by id, accepting tasks whose
// capability requirements are satisfied by cfg.Capabilities, delegating
// actual execution to run.
func NewBaseAgent(id string, cfg domain.AgentConfig, run Executor, logger *zap.Logger) *BaseAgent {
	a := &BaseAgent{
		id:          id,
		cfg:         cfg,
		logger:      logger,
		run:         run,
		currentTask: make(map[string]*domain.Task),
		cancelFuncs: make(map[string]context.CancelFunc),
		events:      make(chan domain.AgentEvent, 64),
	}
	a.status.Store(string(domain.AgentOffline))
	return a
}

func (a *BaseAgent) ID() string                { return a.id }
func (a *BaseAgent) Config() domain.AgentConfig { return a.cfg }

func (a *BaseAgent) Status() domain.AgentStatus {
	return domain.AgentStatus(a.status.Load())
}

func (a *BaseAgent) Metrics() domain.AgentMetrics {
	a.metMu.Lock()
	defer a.metMu.Unlock()
	m := a.metrics
	m.TasksInProgress = int64(a.workload.Load())
	m.UptimeMs = time.Since(a.startTime).Milliseconds()
	return m
}

func (a *BaseAgent) setStatus(to domain.AgentStatus) {
	from := domain.AgentStatus(a.status.Swap(string(to)))
	if from == to {
		return
	}
	if a.onStatus != nil {
		a.onStatus(domain.StatusEvent{AgentID: a.id, From: from, To: to, At: time.Now()})
	}
	a.emit(domain.AgentEvent{Name: domain.EventAgentStatusChanged, AgentID: a.id, At: time.Now()})
}

func (a *BaseAgent) Start(_ context.Context, onStatusChange domain.StatusCallback) error {
	a.onStatus = onStatusChange
	a.startTime = time.Now()
	a.setStatus(domain.AgentIdle)
	return nil
}

func (a *BaseAgent) Stop(ctx context.Context) error {
	a.setStatus(domain.AgentStopping)
	a.mu.Lock()
	for _, cancel := range a.cancelFuncs {
		cancel()
	}
	a.mu.Unlock()
	a.setStatus(domain.AgentOffline)
	close(a.events)
	return nil
}

// AssignTask rejects work once currentTasks reaches MaxConcurrentTasks,
// otherwise runs it in its own goroutine via Executor, updating the
// atomic workload counter and emitting task.started/completed/failed.
func (a *BaseAgent) AssignTask(ctx context.Context, task *domain.Task) bool {
	if int(a.workload.Load()) >= a.cfg.MaxConcurrentTasks {
		return false
	}
	if !task.RequiredCapabilities.SubsetOf(a.cfg.Capabilities) {
		return false
	}

	taskCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.currentTask[task.ID] = task
	a.cancelFuncs[task.ID] = cancel
	a.mu.Unlock()

	a.workload.Inc()
	a.setStatus(domain.AgentBusy)
	a.emit(domain.AgentEvent{Name: domain.EventTaskStarted, TaskID: task.ID, AgentID: a.id, At: time.Now()})

	go a.execute(taskCtx, task, cancel)
	return true
}

func (a *BaseAgent) execute(ctx context.Context, task *domain.Task, cancel context.CancelFunc) {
	start := time.Now()
	result, err := a.run(ctx, task)
	cancel()

	a.mu.Lock()
	delete(a.currentTask, task.ID)
	delete(a.cancelFuncs, task.ID)
	remaining := len(a.currentTask)
	a.mu.Unlock()

	a.workload.Dec()
	if remaining == 0 {
		a.setStatus(domain.AgentIdle)
	}

	a.metMu.Lock()
	duration := time.Since(start).Milliseconds()
	if err != nil {
		a.metrics.TasksFailed++
	} else {
		a.metrics.TasksCompleted++
	}
	total := a.metrics.TasksCompleted + a.metrics.TasksFailed
	if total > 0 {
		a.metrics.AverageTaskDurationMs = (a.metrics.AverageTaskDurationMs*float64(total-1) + float64(duration)) / float64(total)
	}
	a.metrics.LastActiveAt = time.Now()
	a.metMu.Unlock()

	if err != nil {
		a.emit(domain.AgentEvent{Name: domain.EventTaskFailed, TaskID: task.ID, AgentID: a.id, Err: err, At: time.Now()})
		return
	}
	a.emit(domain.AgentEvent{Name: domain.EventTaskCompleted, TaskID: task.ID, AgentID: a.id, Result: &result, At: time.Now()})
}

func (a *BaseAgent) CancelTask(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	cancel, ok := a.cancelFuncs[taskID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func (a *BaseAgent) CurrentTasks() []*domain.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*domain.Task, 0, len(a.currentTask))
	for _, t := range a.currentTask {
		out = append(out, t)
	}
	return out
}

// HandleMessage is a no-op for the stock agents; specialized agents that
// need inter-agent coordination can embed BaseAgent and override it.
func (a *BaseAgent) HandleMessage(*domain.Message) {}

func (a *BaseAgent) HealthCheck(context.Context) bool {
	return a.Status() != domain.AgentError && a.Status() != domain.AgentOffline
}

func (a *BaseAgent) Events() <-chan domain.AgentEvent { return a.events }

func (a *BaseAgent) emit(ev domain.AgentEvent) {
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("agent event channel full, dropping event", zap.String("agentId", a.id), zap.String("event", ev.Name))
	}
}
