// Package registry implements the AgentRegistry: the directory of live
// agents, keyed by agent id only, with heartbeat-driven staleness
// detection. It keeps no capability, status or tag index; every query
// scans all registered agents. Register/unregister follow the
// double-checked-locking pattern used across the example pack's agent
// registries.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*domain.RegisteredAgent
	clock domain.Clock
	sink  domain.EventSink
}

func New(clock domain.Clock, sink domain.EventSink) *Registry {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &Registry{
		byID:  make(map[string]*domain.RegisteredAgent),
		clock: clock,
		sink:  sink,
	}
}

// Register adds an agent, starting it and wiring its status-change
// callback to update the registry's lastHeartbeat bookkeeping. Returns
// domain.KindDuplicate if the agent is already registered.
func (r *Registry) Register(ctx context.Context, agent domain.AgentInterface) error {
	r.mu.Lock()
	if _, exists := r.byID[agent.ID()]; exists {
		r.mu.Unlock()
		return domain.New("Register", domain.KindDuplicate, "agent %s already registered", agent.ID())
	}
	// Reserve the slot before releasing the lock so a concurrent Register
	// for the same ID loses the race rather than double-starting an agent.
	now := r.clock.Now()
	rec := &domain.RegisteredAgent{
		Executor:      agent,
		RegisteredAt:  now,
		LastHeartbeat: now,
		Capabilities:  agent.Config().Capabilities.Clone(),
		Tags:          agent.Config().Tags.Clone(),
	}
	r.byID[agent.ID()] = rec
	r.mu.Unlock()

	if err := agent.Start(ctx, func(ev domain.StatusEvent) {
		r.onStatusChange(agent.ID(), ev)
	}); err != nil {
		r.mu.Lock()
		delete(r.byID, agent.ID())
		r.mu.Unlock()
		return domain.New("Register", domain.KindInternal, "agent %s failed to start: %v", agent.ID(), err)
	}

	r.sink.Emit(domain.EventAgentRegistered, map[string]interface{}{"agentId": agent.ID()})
	return nil
}

func (r *Registry) onStatusChange(agentID string, ev domain.StatusEvent) {
	r.mu.Lock()
	if rec, ok := r.byID[agentID]; ok {
		rec.LastHeartbeat = r.clock.Now()
	}
	r.mu.Unlock()
	r.sink.Emit(domain.EventAgentStatusChanged, map[string]interface{}{
		"agentId": agentID,
		"from":    string(ev.From),
		"to":      string(ev.To),
	})
}

// Unregister stops and removes an agent. Returns domain.KindNotFound if
// unknown.
func (r *Registry) Unregister(ctx context.Context, agentID string) error {
	r.mu.Lock()
	rec, ok := r.byID[agentID]
	if !ok {
		r.mu.Unlock()
		return domain.New("Unregister", domain.KindNotFound, "agent %s not registered", agentID)
	}
	delete(r.byID, agentID)
	r.mu.Unlock()

	if err := rec.Executor.Stop(ctx); err != nil {
		return domain.New("Unregister", domain.KindInternal, "agent %s failed to stop cleanly: %v", agentID, err)
	}
	r.sink.Emit(domain.EventAgentUnregistered, map[string]interface{}{"agentId": agentID})
	return nil
}

func (r *Registry) Get(agentID string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[agentID]
	if !ok {
		return domain.Agent{}, false
	}
	return rec.Snapshot(), true
}

func (r *Registry) Executor(agentID string) (domain.AgentInterface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[agentID]
	if !ok {
		return nil, false
	}
	return rec.Executor, true
}

// FindByCapability returns every agent whose capability set is a superset
// of required.
func (r *Registry) FindByCapability(required ...string) []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	need := domain.NewStringSet(required...)
	out := make([]domain.Agent, 0)
	for _, rec := range r.byID {
		if need.SubsetOf(rec.Capabilities) {
			out = append(out, rec.Snapshot())
		}
	}
	return out
}

func (r *Registry) FindByStatus(status domain.AgentStatus) []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0)
	for _, rec := range r.byID {
		if rec.Executor.Status() == status {
			out = append(out, rec.Snapshot())
		}
	}
	return out
}

func (r *Registry) FindByTags(tags ...string) []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	need := domain.NewStringSet(tags...)
	out := make([]domain.Agent, 0)
	for _, rec := range r.byID {
		if need.SubsetOf(rec.Tags) {
			out = append(out, rec.Snapshot())
		}
	}
	return out
}

// FindAgents returns every agent whose snapshot satisfies pred, for
// composite queries. FindByCapability/Status/Tags do their own scans and
// do not go through it.
func (r *Registry) FindAgents(pred func(domain.Agent) bool) []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0)
	for _, rec := range r.byID {
		a := rec.Snapshot()
		if pred(a) {
			out = append(out, a)
		}
	}
	return out
}

const (
	preferredCapabilityScore = 10.0
	loadPenalty              = 20.0
	freshHeartbeatScore      = 5.0
	freshHeartbeatWindow     = 30 * time.Second
)

// FindBestAgent scores every capable, idle-or-busy-but-not-full candidate
// not named in exclude and returns the highest scorer: +10 per matched
// preferred capability, -20 * load-ratio (currentTasks/maxConcurrentTasks),
// +5 if lastHeartbeat is within 30s. Ties are broken by the lexicographically
// smallest agent id, for determinism. Returns false if no candidate
// qualifies — an empty candidate set is not an error, the caller decides
// whether to requeue or reject.
func (r *Registry) FindBestAgent(required []string, preferred []string, exclude []string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	need := domain.NewStringSet(required...)
	want := domain.NewStringSet(preferred...)
	skip := domain.NewStringSet(exclude...)
	now := r.clock.Now()

	var best *domain.Agent
	var bestScore float64
	for _, rec := range r.byID {
		status := rec.Executor.Status()
		if status != domain.AgentIdle && status != domain.AgentBusy {
			continue
		}
		if skip.Has(rec.Executor.ID()) {
			continue
		}
		if !need.SubsetOf(rec.Capabilities) {
			continue
		}
		a := rec.Snapshot()
		if len(a.CurrentTaskIDs) >= a.Config.MaxConcurrentTasks {
			continue
		}

		score := preferredCapabilityScore*float64(want.IntersectCount(rec.Capabilities)) - loadPenalty*a.LoadRatio()
		if now.Sub(a.LastHeartbeat) <= freshHeartbeatWindow {
			score += freshHeartbeatScore
		}

		if best == nil || score > bestScore || (score == bestScore && a.ID < best.ID) {
			aCopy := a
			best = &aCopy
			bestScore = score
		}
	}
	if best == nil {
		return domain.Agent{}, false
	}
	return *best, true
}

// UpdateHeartbeat records that an agent is alive, for explicit heartbeat
// messages. Status changes refresh the heartbeat separately, in
// onStatusChange.
func (r *Registry) UpdateHeartbeat(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[agentID]
	if !ok {
		return domain.New("UpdateHeartbeat", domain.KindNotFound, "agent %s not registered", agentID)
	}
	rec.LastHeartbeat = r.clock.Now()
	return nil
}

// SweepStale unregisters agents whose last heartbeat exceeds staleAfter,
// emitting EventAgentStale for each before tearing it down. Intended to be
// driven by a periodic sweep job.
func (r *Registry) SweepStale(ctx context.Context, staleAfter time.Duration) []string {
	now := r.clock.Now()
	r.mu.RLock()
	var stale []string
	for id, rec := range r.byID {
		if now.Sub(rec.LastHeartbeat) > staleAfter {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.sink.Emit(domain.EventAgentStale, map[string]interface{}{"agentId": id})
		_ = r.Unregister(ctx, id)
	}
	return stale
}

// Stats is a summary used by the Monitor's getSystemMetrics/dashboard.
type Stats struct {
	Total int
	Idle  int
	Busy  int
	Other int
}

func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s Stats
	for _, rec := range r.byID {
		s.Total++
		switch rec.Executor.Status() {
		case domain.AgentIdle:
			s.Idle++
		case domain.AgentBusy:
			s.Busy++
		default:
			s.Other++
		}
	}
	return s
}

func (r *Registry) All() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec.Snapshot())
	}
	return out
}

// DrainAll stops every registered agent in parallel, used at shutdown.
func (r *Registry) DrainAll(ctx context.Context) {
	r.mu.RLock()
	recs := make([]*domain.RegisteredAgent, 0, len(r.byID))
	for _, rec := range r.byID {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec *domain.RegisteredAgent) {
			defer wg.Done()
			_ = rec.Executor.Stop(ctx)
		}(rec)
	}
	wg.Wait()

	r.mu.Lock()
	r.byID = make(map[string]*domain.RegisteredAgent)
	r.mu.Unlock()
}
