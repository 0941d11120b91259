package domain

import (
	"context"
	"time"
)

// AgentStatus is the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentOffline  AgentStatus = "OFFLINE"
	AgentStarting AgentStatus = "STARTING"
	AgentIdle     AgentStatus = "IDLE"
	AgentBusy     AgentStatus = "BUSY"
	AgentStopping AgentStatus = "STOPPING"
	AgentError    AgentStatus = "ERROR"
)

// AgentConfig describes an agent's static capacity and identity.
type AgentConfig struct {
	Name               string
	Capabilities       StringSet
	MaxConcurrentTasks int
	DefaultTimeoutMs   int64
	RetryAttempts      int
	Tags               StringSet
	Metadata           map[string]string
}

// AgentMetrics is the rolling performance counters an agent reports.
type AgentMetrics struct {
	TasksCompleted        int64
	TasksInProgress       int64
	TasksFailed           int64
	AverageTaskDurationMs float64
	LastActiveAt          time.Time
	UptimeMs              int64
}

// SuccessRate returns completed/(completed+failed), or 0 with no samples.
func (m AgentMetrics) SuccessRate() float64 {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		return 0
	}
	return float64(m.TasksCompleted) / float64(total)
}

// Agent is the read-only snapshot of a registered agent's state, as handed
// back from registry queries. It is a value copy, never a live reference.
type Agent struct {
	ID             string
	Config         AgentConfig
	Status         AgentStatus
	CurrentTaskIDs []string
	Metrics        AgentMetrics
	LastHeartbeat  time.Time
	StartTime      time.Time
}

// LoadRatio returns currentTasks/maxConcurrentTasks, used by scoring and
// load-balancing strategies. 0 if the agent accepts no concurrent work.
func (a Agent) LoadRatio() float64 {
	if a.Config.MaxConcurrentTasks <= 0 {
		return 0
	}
	return float64(len(a.CurrentTaskIDs)) / float64(a.Config.MaxConcurrentTasks)
}

// StatusEvent notifies a registry of an agent's lifecycle transition. The
// callback pattern (rather than the agent holding a live registry
// reference) breaks the orchestrator<->registry<->agent reference cycle.
type StatusEvent struct {
	AgentID string
	From    AgentStatus
	To      AgentStatus
	At      time.Time
}

// StatusCallback is handed to an agent at registration time; the agent
// invokes it whenever its status changes instead of calling back into the
// registry directly.
type StatusCallback func(StatusEvent)

// AgentInterface is the contract every executor must satisfy. Implementations are
// opaque to the orchestrator beyond this surface — it never inspects task
// payloads or agent internals.
type AgentInterface interface {
	ID() string
	Config() AgentConfig
	Status() AgentStatus
	Metrics() AgentMetrics
	Start(ctx context.Context, onStatusChange StatusCallback) error
	Stop(ctx context.Context) error

	// AssignTask hands the agent a task to run asynchronously; it reports
	// true if the agent accepted it (capacity permitting). The agent emits
	// task.started / task.completed / task.failed through its event
	// surface as execution proceeds — it must never block the caller.
	AssignTask(ctx context.Context, task *Task) bool

	// CancelTask asks the agent to cancel a task it is running. Best
	// effort: the agent should honour it within a bounded grace period.
	CancelTask(taskID string) bool

	CurrentTasks() []*Task
	HandleMessage(msg *Message)
	HealthCheck(ctx context.Context) bool

	// Events returns the channel of lifecycle events the agent emits:
	// task.started | task.completed | task.failed | agent.heartbeat |
	// agent.status.changed.
	Events() <-chan AgentEvent
}

// AgentEvent is one entry on an agent's event surface.
type AgentEvent struct {
	Name    string
	TaskID  string
	AgentID string
	Err     error
	Result  *Payload
	At      time.Time
}
