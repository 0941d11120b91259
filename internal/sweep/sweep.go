// Package sweep is a thin wrapper over robfig/cron/v3. Its only user is the
// orchestrator, which schedules three jobs: dispatch ticks, a health sweep
// (task timeouts and stale-agent eviction) and cleanup (finished tasks and
// broker history). The registry, monitor and broker schedule nothing
// themselves, and the monitor has no periodic job. Grounded on NeboLoop's internal/agent/tools/cron.go, which
// keys cron.EntryID values by job name the same way.
package sweep

import (
	cronlib "github.com/robfig/cron/v3"
)

// Scheduler runs named jobs on cron-expression schedules ("@every 1s" or
// 6-field expressions whose first field is seconds).
type Scheduler struct {
	cron *cronlib.Cron
	jobs map[string]cronlib.EntryID
}

func New() *Scheduler {
	return &Scheduler{
		cron: cronlib.New(cronlib.WithSeconds()),
		jobs: make(map[string]cronlib.EntryID),
	}
}

// Schedule registers fn under name on the given cron spec. Re-registering
// an existing name replaces the prior job. An empty spec schedules nothing
// (and removes any prior job under name).
func (s *Scheduler) Schedule(name, spec string, fn func()) error {
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
	if spec == "" {
		return nil
	}
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return err
	}
	s.jobs[name] = id
	return nil
}

func (s *Scheduler) Unschedule(name string) {
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for any running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
