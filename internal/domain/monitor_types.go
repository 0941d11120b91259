package domain

import "time"

// AlertSeverity ranks how urgently an alert should be surfaced.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// SystemSnapshot is the aggregate state an AlertRule predicate evaluates
// against: one agent's metrics plus the system-wide picture around it.
type SystemSnapshot struct {
	AgentID         string
	AgentMetrics    AgentMetrics
	AgentStatus     AgentStatus
	TotalAgents     int
	ActiveAgents    int
	QueueDepth      int
	TaskSuccessRate float64

	// Now is the instant the snapshot was evaluated at, stamped by the
	// Monitor itself so predicates can measure elapsed time (e.g. time
	// since AgentMetrics.LastActiveAt) without needing their own clock.
	Now time.Time
}

// AlertPredicate decides whether a snapshot should fire a rule.
type AlertPredicate func(SystemSnapshot) bool

// AlertRule is a named, cooldown-gated condition the Monitor evaluates on
// every recorded sample.
type AlertRule struct {
	ID         string
	Name       string
	Predicate  AlertPredicate
	Severity   AlertSeverity
	Message    string
	CooldownMs int64
	Enabled    bool
}

// Alert is one firing of an AlertRule against a particular agent.
type Alert struct {
	RuleID    string
	RuleName  string
	AgentID   string
	Severity  AlertSeverity
	Message   string
	FiredAt   time.Time
}

// PerformanceSample is one point the Monitor retains in an agent's rolling
// history.
type PerformanceSample struct {
	AgentID      string
	Timestamp    time.Time
	Metrics      AgentMetrics
	ResponseTime time.Duration
	MemoryBytes  *uint64
	CPUPercent   *float64
}

// HealthStatus summarizes whether the orchestrated system as a whole is
// healthy, degraded, or unhealthy.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// SystemMetrics is the point-in-time aggregate the dashboard/Prometheus
// exposition is built from.
type SystemMetrics struct {
	TotalAgents      int
	ActiveAgents     int
	IdleAgents       int
	BusyAgents       int
	TotalTasks       int64
	CompletedTasks   int64
	FailedTasks      int64
	PendingTasks     int
	AverageTaskTime  float64
	SuccessRate      float64
	Health           HealthStatus
	GeneratedAt      time.Time
}
