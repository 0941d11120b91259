package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/broker"
	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/monitor"
	"github.com/quantumlayer-dev/agentmesh/internal/queue"
	"github.com/quantumlayer-dev/agentmesh/internal/registry"
	"github.com/quantumlayer-dev/agentmesh/internal/store"
)

// Config is the orchestrator's tunable behavior, populated from
// internal/config.Config by the cmd/orchestratord host.
type Config struct {
	MaxAgents         int
	QueueMaxLen       int
	RetryPolicy       domain.RetryPolicy
	AgentStaleAfter   time.Duration
	ScaleUpThreshold  float64 // pending tasks per agent that triggers EventSystemScale
	TimeoutSweep      time.Duration

	// DrainDeadline bounds how long Stop waits for in-progress tasks to
	// finish before force-cancelling whatever is left.
	DrainDeadline time.Duration

	ErrorBurstThreshold int
	ErrorBurstWindow    time.Duration

	SweepDispatchCron string
	SweepHealthCron   string
	SweepCleanupCron  string
}

// DefaultConfig returns sensible production defaults for a single-node
// deployment.
func DefaultConfig() Config {
	return Config{
		MaxAgents:           20,
		QueueMaxLen:         10000,
		RetryPolicy:         domain.DefaultRetryPolicy(),
		AgentStaleAfter:     90 * time.Second,
		ScaleUpThreshold:    3,
		TimeoutSweep:        time.Second,
		DrainDeadline:       10 * time.Second,
		ErrorBurstThreshold: 10,
		ErrorBurstWindow:    60 * time.Second,
		SweepDispatchCron:   "@every 1s",
		SweepHealthCron:     "@every 15s",
		SweepCleanupCron:    "@every 5m",
	}
}

// Dependencies bundles the orchestrator's external ports: Clock,
// EventSink, TaskStore, and an optional MessageBroker/Monitor/Logger for
// the ambient stack.
type Dependencies struct {
	Clock   domain.Clock
	Sink    domain.EventSink
	Store   store.TaskStore
	Broker  *broker.Broker
	Monitor *monitor.Monitor
	Logger  *zap.Logger

	Queue    *queue.Queue
	Registry *registry.Registry
}
