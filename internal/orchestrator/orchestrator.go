// Package orchestrator implements the Orchestrator: the dispatch loop that
// matches queued tasks to capable agents, drives the retry/timeout/cancel
// lifecycle, and raises a scaling signal under sustained backlog. Agents
// are matched by capability rather than by a fixed role roster, so any
// AgentInterface implementation can join the pool.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/sweep"
)

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	cfg  Config
	deps Dependencies

	breaker   *gobreaker.CircuitBreaker
	scheduler *sweep.Scheduler

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pumpStop map[string]chan struct{}
}

// New builds an Orchestrator. Queue and Registry must already be present
// in deps — the orchestrator wires behavior over them, it does not own
// their construction.
func New(cfg Config, deps Dependencies) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.Sink == nil {
		deps.Sink = domain.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		breaker:   newErrorBreaker(cfg, deps.Logger),
		scheduler: sweep.New(),
		pumpStop:  make(map[string]chan struct{}),
	}
}

// Start begins the dispatch, health-sweep, and cleanup-sweep cron jobs.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return domain.New("Start", domain.KindAlreadyRunning, "orchestrator already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.started = true

	if err := o.scheduler.Schedule("dispatch", o.cfg.SweepDispatchCron, func() { o.dispatchOnce(runCtx) }); err != nil {
		return domain.New("Start", domain.KindInternal, "schedule dispatch: %v", err)
	}
	if err := o.scheduler.Schedule("health", o.cfg.SweepHealthCron, func() { o.healthSweep(runCtx) }); err != nil {
		return domain.New("Start", domain.KindInternal, "schedule health sweep: %v", err)
	}
	if err := o.scheduler.Schedule("cleanup", o.cfg.SweepCleanupCron, func() { o.cleanupSweep() }); err != nil {
		return domain.New("Start", domain.KindInternal, "schedule cleanup sweep: %v", err)
	}
	o.scheduler.Start()

	o.deps.Sink.Emit(domain.EventOrchestratorStarted, nil)
	return nil
}

// Stop halts all sweeps, stops agent event pumps, and drains every
// registered agent. It waits for in-progress tasks up to cfg.DrainDeadline;
// anything still IN_PROGRESS once the deadline elapses is force-cancelled
// rather than left dangling.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return domain.New("Stop", domain.KindNotRunning, "orchestrator not running")
	}
	o.started = false
	cancel := o.cancel
	pumps := o.pumpStop
	o.pumpStop = make(map[string]chan struct{})
	o.mu.Unlock()

	o.scheduler.Stop()
	cancel()
	for _, stop := range pumps {
		close(stop)
	}
	o.wg.Wait()

	o.drainWithDeadline(ctx)
	o.cancelRemainingInProgress()

	o.deps.Sink.Emit(domain.EventOrchestratorStopped, nil)
	return nil
}

// drainWithDeadline waits for Registry.DrainAll up to cfg.DrainDeadline. An
// agent whose Stop hangs past the deadline no longer blocks shutdown; the
// drain goroutine is left to finish (or not) on its own.
func (o *Orchestrator) drainWithDeadline(ctx context.Context) {
	deadline := o.cfg.DrainDeadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}
	drainCtx, drainCancel := context.WithTimeout(ctx, deadline)
	defer drainCancel()

	done := make(chan struct{})
	go func() {
		o.deps.Registry.DrainAll(drainCtx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		o.deps.Logger.Warn("drain deadline exceeded, forcing shutdown", zap.Duration("deadline", deadline))
	}
}

// cancelRemainingInProgress transitions every task still IN_PROGRESS after
// the drain window to CANCELLED, mirroring CancelTask's emission path.
func (o *Orchestrator) cancelRemainingInProgress() {
	for _, task := range o.deps.Queue.GetByStatus(domain.TaskInProgress) {
		if err := o.deps.Queue.UpdateStatus(task.ID, domain.TaskCancelled, nil); err != nil {
			continue
		}
		o.deps.Sink.Emit(domain.EventTaskCancelled, map[string]interface{}{"taskId": task.ID})
	}
}

// SubmitTask enqueues new work and immediately attempts a dispatch pass so
// idle capacity isn't left waiting for the next scheduled tick. Refuses
// new work with KindNotRunning while the error-burst breaker is open
// (§7's degraded-mode behavior).
func (o *Orchestrator) SubmitTask(ctx context.Context, partial domain.PartialTask) (*domain.Task, error) {
	if breakerOpen(o.breaker) {
		return nil, domain.New("SubmitTask", domain.KindNotRunning, "orchestrator in degraded mode, refusing new tasks")
	}
	task, err := o.deps.Queue.Enqueue(partial)
	if err != nil {
		return nil, err
	}
	o.deps.Sink.Emit(domain.EventTaskSubmitted, map[string]interface{}{"taskId": task.ID, "type": task.Type})
	o.dispatchOnce(ctx)
	return task, nil
}

func (o *Orchestrator) GetTask(taskID string) (*domain.Task, bool) {
	return o.deps.Queue.GetTask(taskID)
}

func (o *Orchestrator) GetAgents() []domain.Agent {
	return o.deps.Registry.All()
}

// CancelTask cancels a task regardless of which lifecycle stage it is in:
// queued tasks are transitioned directly, in-flight tasks are cancelled on
// their assigned agent first.
func (o *Orchestrator) CancelTask(taskID string) error {
	task, ok := o.deps.Queue.GetTask(taskID)
	if !ok {
		return domain.New("CancelTask", domain.KindNotFound, "task %s not found", taskID)
	}
	if task.Status.Terminal() {
		return domain.New("CancelTask", domain.KindInvalidTransition, "task %s already terminal (%s)", taskID, task.Status)
	}
	if task.AssignedAgent != "" {
		if executor, ok := o.deps.Registry.Executor(task.AssignedAgent); ok {
			executor.CancelTask(taskID)
		}
	}
	if err := o.deps.Queue.UpdateStatus(taskID, domain.TaskCancelled, nil); err != nil {
		return err
	}
	o.deps.Sink.Emit(domain.EventTaskCancelled, map[string]interface{}{"taskId": taskID})
	return nil
}

// RegisterAgent registers executor with the registry and starts a
// goroutine pumping its event channel into the orchestrator's lifecycle
// handling.
func (o *Orchestrator) RegisterAgent(ctx context.Context, executor domain.AgentInterface) error {
	if err := o.deps.Registry.Register(ctx, executor); err != nil {
		return err
	}
	if o.deps.Broker != nil {
		o.deps.Broker.RegisterAgent(executor.ID())
	}

	stop := make(chan struct{})
	o.mu.Lock()
	o.pumpStop[executor.ID()] = stop
	o.mu.Unlock()

	o.wg.Add(1)
	go o.pumpEvents(executor, stop)
	return nil
}

func (o *Orchestrator) UnregisterAgent(ctx context.Context, agentID string) error {
	o.mu.Lock()
	if stop, ok := o.pumpStop[agentID]; ok {
		close(stop)
		delete(o.pumpStop, agentID)
	}
	o.mu.Unlock()
	if o.deps.Broker != nil {
		o.deps.Broker.UnregisterAgent(agentID)
	}
	return o.deps.Registry.Unregister(ctx, agentID)
}

func (o *Orchestrator) pumpEvents(executor domain.AgentInterface, stop chan struct{}) {
	defer o.wg.Done()
	for {
		select {
		case ev, ok := <-executor.Events():
			if !ok {
				return
			}
			o.handleAgentEvent(ev)
		case <-stop:
			return
		}
	}
}

func (o *Orchestrator) handleAgentEvent(ev domain.AgentEvent) {
	switch ev.Name {
	case domain.EventTaskStarted:
		_ = o.deps.Queue.UpdateStatus(ev.TaskID, domain.TaskInProgress, nil)
		o.deps.Sink.Emit(domain.EventTaskStarted, map[string]interface{}{"taskId": ev.TaskID, "agentId": ev.AgentID})
	case domain.EventTaskCompleted:
		o.completeTask(ev)
	case domain.EventTaskFailed:
		o.failTask(ev)
	case domain.EventAgentHeartbeat:
		_ = o.deps.Registry.UpdateHeartbeat(ev.AgentID)
	}
}

// noteInternalError records an orchestrator-side fault against the
// degraded-mode breaker and mirrors it as an orchestrator.error event,
// per §4.3/§7's "every orchestrator.error emission is a breaker failure".
func (o *Orchestrator) noteInternalError(op string, err error) {
	recordInternalError(o.breaker, err)
	o.deps.Sink.Emit(domain.EventOrchestratorError, map[string]interface{}{"op": op, "error": err.Error()})
}

func (o *Orchestrator) completeTask(ev domain.AgentEvent) {
	err := o.deps.Queue.UpdateStatus(ev.TaskID, domain.TaskCompleted, func(t *domain.Task) {
		t.Result = ev.Result
	})
	if err != nil {
		o.noteInternalError("completeTask", err)
		o.deps.Logger.Warn("completing unknown or already-terminal task", zap.String("taskId", ev.TaskID), zap.Error(err))
		return
	}
	if o.deps.Monitor != nil {
		o.deps.Monitor.ObserveTaskOutcome(domain.TaskCompleted)
	}
	o.persistResult(ev.TaskID, domain.TaskCompleted, ev.Result, "")
	o.deps.Sink.Emit(domain.EventTaskCompleted, map[string]interface{}{"taskId": ev.TaskID, "agentId": ev.AgentID})
}

func (o *Orchestrator) failTask(ev domain.AgentEvent) {
	task, ok := o.deps.Queue.GetTask(ev.TaskID)
	if !ok {
		return
	}
	errMsg := ""
	if ev.Err != nil {
		errMsg = ev.Err.Error()
	}
	if err := o.deps.Queue.UpdateStatus(ev.TaskID, domain.TaskFailed, func(t *domain.Task) { t.Err = errMsg }); err != nil {
		o.noteInternalError("failTask", err)
		o.deps.Logger.Warn("failing unknown or already-terminal task", zap.String("taskId", ev.TaskID), zap.Error(err))
		return
	}
	if o.deps.Monitor != nil {
		o.deps.Monitor.ObserveTaskOutcome(domain.TaskFailed)
	}

	if task.RetryCount < task.MaxRetries {
		if _, err := o.deps.Queue.ResetForRetry(ev.TaskID, o.cfg.RetryPolicy); err == nil {
			o.deps.Sink.Emit(domain.EventTaskRetryScheduled, map[string]interface{}{"taskId": ev.TaskID, "retryCount": task.RetryCount + 1})
			return
		}
	}
	o.persistResult(ev.TaskID, domain.TaskFailed, nil, errMsg)
	o.deps.Sink.Emit(domain.EventTaskFailed, map[string]interface{}{"taskId": ev.TaskID, "agentId": ev.AgentID, "error": errMsg})
}

func (o *Orchestrator) persistResult(taskID string, status domain.TaskStatus, result *domain.Payload, errMsg string) {
	if o.deps.Store == nil {
		return
	}
	task, ok := o.deps.Queue.GetTask(taskID)
	if !ok {
		return
	}
	durationMs := int64(0)
	if task.StartedAt != nil && task.CompletedAt != nil {
		durationMs = task.CompletedAt.Sub(*task.StartedAt).Milliseconds()
	}
	tr := domain.TaskResult{
		TaskID: taskID, Status: status, Result: result, Err: errMsg,
		DurationMs: durationMs, RetryCount: task.RetryCount, CompletedAt: o.deps.Clock.Now(),
	}
	if err := guardedSave(o.breaker, func() error { return o.deps.Store.SaveResult(context.Background(), tr) }); err != nil {
		o.deps.Logger.Warn("task result persistence degraded", zap.String("taskId", taskID), zap.Error(err))
	}
}

// dispatchOnce matches queued tasks against capable, non-full agents until
// none remain eligible. It emits a scaling signal when backlog depth
// exceeds cfg.ScaleUpThreshold tasks per registered agent.
func (o *Orchestrator) dispatchOnce(ctx context.Context) {
	for {
		have := o.capableCapabilities()
		task := o.deps.Queue.Dequeue(have)
		if task == nil {
			break
		}
		agent, ok := o.deps.Registry.FindBestAgent(task.RequiredCapabilities.Slice(), task.PreferredCapabilities.Slice(), task.ExcludedAgents)
		if !ok {
			o.deps.Queue.Requeue(task)
			break
		}
		executor, ok := o.deps.Registry.Executor(agent.ID)
		if !ok {
			o.deps.Queue.Requeue(task)
			continue
		}
		if !executor.AssignTask(ctx, task) {
			o.deps.Queue.Requeue(task)
			continue
		}
		_ = o.deps.Queue.UpdateStatus(task.ID, domain.TaskAssigned, func(t *domain.Task) {
			t.AssignedAgent = agent.ID
		})
		o.deps.Sink.Emit(domain.EventTaskAssigned, map[string]interface{}{"taskId": task.ID, "agentId": agent.ID})
	}
	o.checkScale()
}

func (o *Orchestrator) capableCapabilities() domain.StringSet {
	out := domain.NewStringSet()
	for _, a := range o.deps.Registry.All() {
		if a.Status != domain.AgentIdle && a.Status != domain.AgentBusy {
			continue
		}
		if len(a.CurrentTaskIDs) >= a.Config.MaxConcurrentTasks {
			continue
		}
		for c := range a.Config.Capabilities {
			out.Add(c)
		}
	}
	return out
}

func (o *Orchestrator) checkScale() {
	agents := o.deps.Registry.All()
	if len(agents) == 0 {
		if o.deps.Queue.PendingDepth() > 0 {
			o.deps.Sink.Emit(domain.EventSystemScale, map[string]interface{}{"reason": "no agents registered", "pending": o.deps.Queue.PendingDepth()})
		}
		return
	}
	if len(agents) >= o.cfg.MaxAgents {
		return
	}
	ratio := float64(o.deps.Queue.PendingDepth()) / float64(len(agents))
	if ratio > o.cfg.ScaleUpThreshold {
		o.deps.Sink.Emit(domain.EventSystemScale, map[string]interface{}{"reason": "backlog per agent above threshold", "ratio": ratio})
	}
}

// healthSweep evicts stale agents and times out tasks that have exceeded
// their TimeoutMs while IN_PROGRESS.
func (o *Orchestrator) healthSweep(ctx context.Context) {
	stale := o.deps.Registry.SweepStale(ctx, o.cfg.AgentStaleAfter)
	for _, id := range stale {
		o.deps.Logger.Info("evicted stale agent", zap.String("agentId", id))
	}

	now := o.deps.Clock.Now()
	for _, task := range o.deps.Queue.GetByStatus(domain.TaskInProgress) {
		if task.StartedAt == nil {
			continue
		}
		deadline := task.StartedAt.Add(time.Duration(task.TimeoutMs) * time.Millisecond)
		if now.Before(deadline) {
			continue
		}
		if task.AssignedAgent != "" {
			if executor, ok := o.deps.Registry.Executor(task.AssignedAgent); ok {
				executor.CancelTask(task.ID)
			}
		}
		if err := o.deps.Queue.UpdateStatus(task.ID, domain.TaskTimeout, nil); err != nil {
			continue
		}
		o.deps.Sink.Emit(domain.EventTaskTimeout, map[string]interface{}{"taskId": task.ID})
		if task.RetryCount < task.MaxRetries {
			_, _ = o.deps.Queue.ResetForRetry(task.ID, o.cfg.RetryPolicy)
		} else {
			o.persistResult(task.ID, domain.TaskTimeout, nil, "deadline exceeded")
		}
	}
}

func (o *Orchestrator) cleanupSweep() {
	removed := o.deps.Queue.Cleanup(time.Hour)
	if removed > 0 {
		o.deps.Logger.Debug("cleaned up terminal tasks", zap.Int("count", removed))
	}
	if o.deps.Broker != nil {
		o.deps.Broker.SweepHistory()
	}
}
