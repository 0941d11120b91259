// Package monitor implements the Monitor: rolling per-agent performance
// history, rule-based alerting with per-(rule,agent) cooldowns, and an
// additive Prometheus exposition alongside the in-memory query contract.
package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

const defaultHistoryPerAgent = 1000

// promMetrics mirrors the in-memory SystemMetrics via promauto gauges,
// additive to (never a replacement for) the synchronous dashboard path.
type promMetrics struct {
	totalAgents    prometheus.Gauge
	activeAgents   prometheus.Gauge
	queuePending   prometheus.Gauge
	tasksTotal     prometheus.Counter
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	successRate    prometheus.Gauge
	alertsFired    *prometheus.CounterVec
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	factory := promauto.With(reg)
	return &promMetrics{
		totalAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_agents_total", Help: "Registered agents.",
		}),
		activeAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_agents_active", Help: "Agents currently idle or busy.",
		}),
		queuePending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_queue_pending", Help: "Tasks waiting in the queue.",
		}),
		tasksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmesh_tasks_total", Help: "Tasks submitted.",
		}),
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmesh_tasks_completed_total", Help: "Tasks completed successfully.",
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentmesh_tasks_failed_total", Help: "Tasks that ended FAILED or TIMEOUT.",
		}),
		successRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentmesh_task_success_rate", Help: "Rolling task success rate.",
		}),
		alertsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentmesh_alerts_fired_total", Help: "Alert rule firings by rule name.",
		}, []string{"rule"}),
	}
}

// Monitor is safe for concurrent use.
type Monitor struct {
	mu         sync.RWMutex
	history    map[string][]domain.PerformanceSample
	rules      map[string]domain.AlertRule
	lastFired  map[string]time.Time // key: ruleID+"/"+agentID
	alerts     []domain.Alert
	clock      domain.Clock
	sink       domain.EventSink
	prom       *promMetrics
	perAgentCap int
}

// Option configures an optional dependency at construction time.
type Option func(*Monitor)

// WithPrometheus registers the Prometheus exposition against reg. Omit to
// run without Prometheus wiring (e.g. in unit tests).
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(m *Monitor) { m.prom = newPromMetrics(reg) }
}

func New(clock domain.Clock, sink domain.EventSink, opts ...Option) *Monitor {
	if sink == nil {
		sink = domain.NopSink{}
	}
	m := &Monitor{
		history:     make(map[string][]domain.PerformanceSample),
		rules:       make(map[string]domain.AlertRule),
		lastFired:   make(map[string]time.Time),
		clock:       clock,
		sink:        sink,
		perAgentCap: defaultHistoryPerAgent,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, r := range builtinRules() {
		m.rules[r.ID] = r
	}
	return m
}

// builtinRules returns the three default alert rules every Monitor seeds.
func builtinRules() []domain.AlertRule {
	return []domain.AlertRule{
		{
			ID:   "high-failure-rate",
			Name: "High failure rate",
			Predicate: func(s domain.SystemSnapshot) bool {
				total := s.AgentMetrics.TasksCompleted + s.AgentMetrics.TasksFailed
				if total <= 10 {
					return false
				}
				failureRate := float64(s.AgentMetrics.TasksFailed) / float64(total)
				return failureRate > 0.2
			},
			Severity:   domain.SeverityHigh,
			Message:    "agent failure rate exceeds 20%",
			CooldownMs: 300000,
			Enabled:    true,
		},
		{
			ID:   "slow-response",
			Name: "Slow response",
			Predicate: func(s domain.SystemSnapshot) bool {
				return s.AgentMetrics.AverageTaskDurationMs > 60000
			},
			Severity:   domain.SeverityMedium,
			Message:    "average task duration exceeds 60s",
			CooldownMs: 300000,
			Enabled:    true,
		},
		{
			ID:   "agent-offline",
			Name: "Agent offline",
			Predicate: func(s domain.SystemSnapshot) bool {
				return s.Now.Sub(s.AgentMetrics.LastActiveAt) > 120000*time.Millisecond
			},
			Severity:   domain.SeverityCritical,
			Message:    "agent has not been active for over 2 minutes",
			CooldownMs: 60000,
			Enabled:    true,
		},
	}
}

// RecordSample appends a PerformanceSample to an agent's rolling history
// (capped at perAgentCap, oldest dropped first) and evaluates every enabled
// alert rule against the resulting snapshot.
func (m *Monitor) RecordSample(sample domain.PerformanceSample, snapshot domain.SystemSnapshot) []domain.Alert {
	m.mu.Lock()
	hist := append(m.history[sample.AgentID], sample)
	if len(hist) > m.perAgentCap {
		hist = hist[len(hist)-m.perAgentCap:]
	}
	m.history[sample.AgentID] = hist

	var fired []domain.Alert
	now := m.clock.Now()
	snapshot.Now = now
	for _, rule := range m.rules {
		if !rule.Enabled || !rule.Predicate(snapshot) {
			continue
		}
		key := rule.ID + "/" + sample.AgentID
		if last, ok := m.lastFired[key]; ok && now.Sub(last) < time.Duration(rule.CooldownMs)*time.Millisecond {
			continue
		}
		m.lastFired[key] = now
		alert := domain.Alert{RuleID: rule.ID, RuleName: rule.Name, AgentID: sample.AgentID, Severity: rule.Severity, Message: rule.Message, FiredAt: now}
		m.alerts = append(m.alerts, alert)
		fired = append(fired, alert)
	}
	m.mu.Unlock()

	for _, a := range fired {
		if m.prom != nil {
			m.prom.alertsFired.WithLabelValues(a.RuleName).Inc()
		}
		m.sink.Emit(domain.EventMonitorAlert, map[string]interface{}{
			"ruleId": a.RuleID, "agentId": a.AgentID, "severity": string(a.Severity), "message": a.Message,
		})
	}
	return fired
}

func (m *Monitor) GetPerformanceHistory(agentID string) []domain.PerformanceSample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PerformanceSample, len(m.history[agentID]))
	copy(out, m.history[agentID])
	return out
}

// GetAggregatedMetrics returns the Metrics of an agent's most recent
// recorded sample, or zero metrics if none has been recorded. Samples are
// not averaged and no time window is applied.
func (m *Monitor) GetAggregatedMetrics(agentID string) domain.AgentMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.history[agentID]
	if len(hist) == 0 {
		return domain.AgentMetrics{}
	}
	return hist[len(hist)-1].Metrics
}

func (m *Monitor) UpsertRule(rule domain.AlertRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
}

func (m *Monitor) RemoveRule(ruleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, ruleID)
}

func (m *Monitor) Rules() []domain.AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out
}

func (m *Monitor) RecentAlerts(limit int) []domain.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.alerts) {
		limit = len(m.alerts)
	}
	out := make([]domain.Alert, limit)
	copy(out, m.alerts[len(m.alerts)-limit:])
	return out
}

// GetHealthStatus classifies the system as healthy/degraded/unhealthy from
// agent availability and task success rate.
func GetHealthStatus(totalAgents, activeAgents int, successRate float64) domain.HealthStatus {
	if totalAgents == 0 || activeAgents == 0 {
		return domain.HealthUnhealthy
	}
	ratio := float64(activeAgents) / float64(totalAgents)
	switch {
	case ratio >= 0.8 && successRate >= 0.9:
		return domain.HealthHealthy
	case ratio >= 0.4 && successRate >= 0.5:
		return domain.HealthDegraded
	default:
		return domain.HealthUnhealthy
	}
}

// PublishSystemMetrics mirrors a computed SystemMetrics snapshot into the
// Prometheus gauges, additive to the synchronous dashboard read path.
func (m *Monitor) PublishSystemMetrics(sm domain.SystemMetrics) {
	if m.prom == nil {
		return
	}
	m.prom.totalAgents.Set(float64(sm.TotalAgents))
	m.prom.activeAgents.Set(float64(sm.IdleAgents + sm.BusyAgents))
	m.prom.queuePending.Set(float64(sm.PendingTasks))
	m.prom.successRate.Set(sm.SuccessRate)
}

// ObserveTaskOutcome increments the Prometheus task counters; call once
// per terminal task status.
func (m *Monitor) ObserveTaskOutcome(status domain.TaskStatus) {
	if m.prom == nil {
		return
	}
	m.prom.tasksTotal.Inc()
	switch status {
	case domain.TaskCompleted:
		m.prom.tasksCompleted.Inc()
	case domain.TaskFailed, domain.TaskTimeout:
		m.prom.tasksFailed.Inc()
	}
}
