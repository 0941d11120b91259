package monitor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/monitor"
)

func TestHighFailureRateAlertFiresOnce(t *testing.T) {
	clock := domain.NewFixedClock(time.Now())
	m := monitor.New(clock, nil)

	snapshot := domain.SystemSnapshot{
		AgentID:      "agent-1",
		AgentMetrics: domain.AgentMetrics{TasksCompleted: 1, TasksFailed: 10, LastActiveAt: clock.Now()},
		AgentStatus:  domain.AgentBusy,
	}
	sample := domain.PerformanceSample{AgentID: "agent-1", Timestamp: clock.Now(), Metrics: snapshot.AgentMetrics}

	fired := m.RecordSample(sample, snapshot)
	assert.Len(t, fired, 1)
	assert.Equal(t, "high-failure-rate", fired[0].RuleID)

	fired = m.RecordSample(sample, snapshot)
	assert.Empty(t, fired, "cooldown should suppress re-firing")

	clock.Advance(6 * time.Minute)
	snapshot.AgentMetrics.LastActiveAt = clock.Now()
	fired = m.RecordSample(sample, snapshot)
	assert.Len(t, fired, 1, "alert should fire again once cooldown elapses")
}

func TestAgentOfflineAlert(t *testing.T) {
	clock := domain.NewFixedClock(time.Now())
	m := monitor.New(clock, nil)
	snapshot := domain.SystemSnapshot{
		AgentID:      "agent-1",
		AgentStatus:  domain.AgentOffline,
		AgentMetrics: domain.AgentMetrics{LastActiveAt: clock.Now().Add(-3 * time.Minute)},
	}
	sample := domain.PerformanceSample{AgentID: "agent-1", Timestamp: clock.Now()}

	fired := m.RecordSample(sample, snapshot)
	assert.Len(t, fired, 1)
	assert.Equal(t, "agent-offline", fired[0].RuleID)
	assert.Equal(t, domain.SeverityCritical, fired[0].Severity)
}

func TestAgentOfflineAlertDoesNotFireWhileActive(t *testing.T) {
	clock := domain.NewFixedClock(time.Now())
	m := monitor.New(clock, nil)
	snapshot := domain.SystemSnapshot{
		AgentID:      "agent-1",
		AgentStatus:  domain.AgentBusy,
		AgentMetrics: domain.AgentMetrics{LastActiveAt: clock.Now()},
	}
	sample := domain.PerformanceSample{AgentID: "agent-1", Timestamp: clock.Now()}

	fired := m.RecordSample(sample, snapshot)
	assert.Empty(t, fired)
}

func TestHistoryCapsAtPerAgentLimit(t *testing.T) {
	clock := domain.NewFixedClock(time.Now())
	m := monitor.New(clock, nil)
	for i := 0; i < 1100; i++ {
		m.RecordSample(domain.PerformanceSample{AgentID: "agent-1", Timestamp: clock.Now()}, domain.SystemSnapshot{AgentID: "agent-1"})
		clock.Advance(time.Second)
	}
	hist := m.GetPerformanceHistory("agent-1")
	assert.LessOrEqual(t, len(hist), 1000)
}

func TestGetHealthStatusThresholds(t *testing.T) {
	assert.Equal(t, domain.HealthHealthy, monitor.GetHealthStatus(10, 9, 0.95))
	assert.Equal(t, domain.HealthDegraded, monitor.GetHealthStatus(10, 5, 0.6))
	assert.Equal(t, domain.HealthUnhealthy, monitor.GetHealthStatus(10, 1, 0.1))
	assert.Equal(t, domain.HealthUnhealthy, monitor.GetHealthStatus(0, 0, 0))
}

func TestUpsertAndRemoveRule(t *testing.T) {
	m := monitor.New(domain.NewFixedClock(time.Now()), nil)
	m.UpsertRule(domain.AlertRule{ID: "custom", Enabled: true, Predicate: func(domain.SystemSnapshot) bool { return false }})
	assert.Len(t, m.Rules(), 4)
	m.RemoveRule("custom")
	assert.Len(t, m.Rules(), 3)
}
