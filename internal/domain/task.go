package domain

import "time"

// Priority orders tasks and messages. Higher values dispatch first.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// Priorities lists every priority level from highest to lowest, the order
// the task queue scans in.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// TaskStatus is a node in the task lifecycle DAG:
// PENDING -> ASSIGNED -> IN_PROGRESS -> {COMPLETED, FAILED, TIMEOUT, CANCELLED}
// with PENDING/ASSIGNED able to jump directly to CANCELLED.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskAssigned   TaskStatus = "ASSIGNED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
	TaskCancelled  TaskStatus = "CANCELLED"
	TaskTimeout    TaskStatus = "TIMEOUT"
)

// Terminal reports whether status has no further legal transitions.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimeout:
		return true
	default:
		return false
	}
}

// validTaskTransitions enumerates the directed edges of the status graph.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending: {
		TaskAssigned:  true,
		TaskCancelled: true,
	},
	TaskAssigned: {
		TaskInProgress: true,
		TaskCancelled:  true,
	},
	TaskInProgress: {
		TaskCompleted: true,
		TaskFailed:    true,
		TaskTimeout:   true,
		TaskCancelled: true,
	},
}

// CanTransition reports whether from->to is a legal edge in the task status
// graph. A task re-queued after FAILED/TIMEOUT goes through the Orchestrator
// resetting it to PENDING directly (not a graph edge, but a new lifecycle).
func CanTransition(from, to TaskStatus) bool {
	edges, ok := validTaskTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// RetryPolicy controls how a FAILED/TIMEOUT task is re-queued.
type RetryPolicy struct {
	MaxRetries       int
	BackoffMs        int64
	BackoffMultiplier float64
}

// DefaultRetryPolicy is the orchestrator's out-of-the-box retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BackoffMs: 1000, BackoffMultiplier: 2}
}

// NextDelay returns how long to wait before the retryCount-th retry
// becomes eligible: backoffMs * multiplier^retryCount.
func (p RetryPolicy) NextDelay(retryCount int) time.Duration {
	delay := float64(p.BackoffMs)
	for i := 0; i < retryCount; i++ {
		delay *= p.BackoffMultiplier
	}
	return time.Duration(delay) * time.Millisecond
}

// Task is a unit of work routed through the queue to a capable agent.
type Task struct {
	ID                    string
	Type                  string
	Priority              Priority
	Payload               Payload
	RequiredCapabilities  StringSet
	PreferredCapabilities StringSet
	AssignedAgent         string
	Status                TaskStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
	StartedAt             *time.Time
	Result                *Payload
	Err                   string
	RetryCount            int
	MaxRetries            int
	TimeoutMs             int64
	Dependencies          []string
	Metadata              map[string]string

	// ExcludedAgents accumulates agent ids findBestAgent should skip on the
	// next dispatch attempt: the agent assigned to a retried task's prior,
	// failed attempt.
	ExcludedAgents []string

	// NotBefore holds the earliest instant a retried task becomes eligible
	// for dequeue again, per the backoff delay in RetryPolicy.NextDelay.
	NotBefore time.Time
}

// TaskResult is the terminal record the orchestrator keeps for a finished
// task, independent of whether the Task itself is later cleaned up.
type TaskResult struct {
	TaskID      string
	Status      TaskStatus
	Result      *Payload
	Err         string
	DurationMs  int64
	RetryCount  int
	CompletedAt time.Time
}

// PartialTask is the subset of fields a caller may specify when submitting
// work; the orchestrator fills in id, status, and timestamps.
type PartialTask struct {
	Type                  string
	Priority              Priority
	Payload               Payload
	RequiredCapabilities  []string
	PreferredCapabilities []string
	MaxRetries            *int
	TimeoutMs             *int64
	Dependencies          []string
	Metadata              map[string]string
}
