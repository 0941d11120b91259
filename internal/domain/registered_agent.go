package domain

import "time"

// RegisteredAgent is the registry's internal bookkeeping record for a live
// agent: the executor plus the indexing fields the registry maintains
// alongside it. Never handed out directly — queries return Agent snapshots.
type RegisteredAgent struct {
	Executor      AgentInterface
	RegisteredAt  time.Time
	LastHeartbeat time.Time
	Capabilities  StringSet
	Tags          StringSet
}

func (r *RegisteredAgent) Snapshot() Agent {
	cfg := r.Executor.Config()
	tasks := r.Executor.CurrentTasks()
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return Agent{
		ID:             r.Executor.ID(),
		Config:         cfg,
		Status:         r.Executor.Status(),
		CurrentTaskIDs: ids,
		Metrics:        r.Executor.Metrics(),
		LastHeartbeat:  r.LastHeartbeat,
		StartTime:      r.RegisteredAt,
	}
}
