// Package queue implements the priority task queue: four FIFO lanes keyed
// by domain.Priority, scanned highest-first, with capability, dependency,
// and not-before eligibility gating at dequeue time.
package queue

import (
	"sync"
	"time"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/ids"
)

// Queue is safe for concurrent use. Every mutation takes the write lock;
// reads that only inspect a task snapshot take the read lock.
type Queue struct {
	mu     sync.RWMutex
	lanes  map[domain.Priority][]string
	tasks  map[string]*domain.Task
	clock  domain.Clock
	maxLen int
}

// New builds an empty queue. maxLen <= 0 means unbounded.
func New(clock domain.Clock, maxLen int) *Queue {
	lanes := make(map[domain.Priority][]string, len(domain.Priorities))
	for _, p := range domain.Priorities {
		lanes[p] = nil
	}
	return &Queue{
		lanes:  lanes,
		tasks:  make(map[string]*domain.Task),
		clock:  clock,
		maxLen: maxLen,
	}
}

// Enqueue builds a Task from a PartialTask and files it on its priority
// lane. Returns domain.KindQueueFull if the queue is at capacity.
func (q *Queue) Enqueue(partial domain.PartialTask) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxLen > 0 && len(q.tasks) >= q.maxLen {
		return nil, domain.New("Enqueue", domain.KindQueueFull, "queue at capacity %d", q.maxLen)
	}

	now := q.clock.Now()
	maxRetries := 3
	if partial.MaxRetries != nil {
		maxRetries = *partial.MaxRetries
	}
	var timeoutMs int64 = 30000
	if partial.TimeoutMs != nil {
		timeoutMs = *partial.TimeoutMs
	}
	priority := partial.Priority
	if priority == 0 {
		priority = domain.PriorityNormal
	}

	task := &domain.Task{
		ID:                    ids.New(ids.KindTask),
		Type:                  partial.Type,
		Priority:              priority,
		Payload:               partial.Payload,
		RequiredCapabilities:  domain.NewStringSet(partial.RequiredCapabilities...),
		PreferredCapabilities: domain.NewStringSet(partial.PreferredCapabilities...),
		Status:                domain.TaskPending,
		CreatedAt:             now,
		UpdatedAt:             now,
		MaxRetries:            maxRetries,
		TimeoutMs:             timeoutMs,
		Dependencies:          append([]string(nil), partial.Dependencies...),
		Metadata:              partial.Metadata,
	}

	q.tasks[task.ID] = task
	q.lanes[priority] = append(q.lanes[priority], task.ID)
	return task, nil
}

// Requeue re-files an already-known task (e.g. one that Dequeue returned
// but no agent accepted) without minting a new ID.
func (q *Queue) Requeue(task *domain.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[task.ID] = task
	q.lanes[task.Priority] = append(q.lanes[task.Priority], task.ID)
}

// eligible reports whether a task may be dequeued right now: not already
// claimed, past its NotBefore delay, and every dependency has completed.
func (q *Queue) eligible(t *domain.Task, now time.Time) bool {
	if t.Status != domain.TaskPending {
		return false
	}
	if !t.NotBefore.IsZero() && now.Before(t.NotBefore) {
		return false
	}
	for _, dep := range t.Dependencies {
		depTask, ok := q.tasks[dep]
		if !ok || depTask.Status != domain.TaskCompleted {
			return false
		}
	}
	return true
}

// Dequeue returns the highest-priority eligible task whose required
// capabilities are a subset of have, or nil if none qualifies. It removes
// the task from its lane but does not mutate status — callers transition
// the task via UpdateStatus once an agent is actually assigned, and must
// Requeue a task found-but-not-assigned for it to be scanned again.
func (q *Queue) Dequeue(have domain.StringSet) *domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	for _, p := range domain.Priorities {
		lane := q.lanes[p]
		for i, id := range lane {
			t, ok := q.tasks[id]
			if !ok {
				continue
			}
			if !q.eligible(t, now) {
				continue
			}
			if !t.RequiredCapabilities.SubsetOf(have) {
				continue
			}
			q.lanes[p] = append(append([]string{}, lane[:i]...), lane[i+1:]...)
			return t
		}
	}
	return nil
}

func (q *Queue) GetTask(id string) (*domain.Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	return t, ok
}

// UpdateStatus validates and applies a status transition, stamping the
// relevant timestamp fields. Returns domain.KindInvalidTransition if the
// edge is illegal, domain.KindNotFound if id is unknown.
func (q *Queue) UpdateStatus(id string, to domain.TaskStatus, mutate func(*domain.Task)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return domain.New("UpdateStatus", domain.KindNotFound, "task %s not found", id)
	}
	if !domain.CanTransition(t.Status, to) {
		return domain.New("UpdateStatus", domain.KindInvalidTransition, "cannot go %s -> %s", t.Status, to)
	}

	now := q.clock.Now()
	t.Status = to
	t.UpdatedAt = now
	switch to {
	case domain.TaskInProgress:
		t.StartedAt = &now
	case domain.TaskCompleted, domain.TaskFailed, domain.TaskCancelled, domain.TaskTimeout:
		t.CompletedAt = &now
	}
	if mutate != nil {
		mutate(t)
	}
	return nil
}

// ResetForRetry clears a finished task back to PENDING with an incremented
// retry count and a NotBefore delay, per domain.RetryPolicy.NextDelay. It
// bypasses the status graph deliberately: a retry is a new lifecycle, not
// an edge out of the terminal state.
func (q *Queue) ResetForRetry(id string, policy domain.RetryPolicy) (*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return nil, domain.New("ResetForRetry", domain.KindNotFound, "task %s not found", id)
	}
	t.RetryCount++
	t.Status = domain.TaskPending
	if t.AssignedAgent != "" {
		t.ExcludedAgents = append(t.ExcludedAgents, t.AssignedAgent)
	}
	t.AssignedAgent = ""
	t.StartedAt = nil
	t.CompletedAt = nil
	t.NotBefore = q.clock.Now().Add(policy.NextDelay(t.RetryCount))
	t.UpdatedAt = q.clock.Now()
	q.lanes[t.Priority] = append(q.lanes[t.Priority], t.ID)
	return t, nil
}

func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.tasks[id]; !ok {
		return false
	}
	delete(q.tasks, id)
	for p, lane := range q.lanes {
		for i, tid := range lane {
			if tid == id {
				q.lanes[p] = append(lane[:i], lane[i+1:]...)
				break
			}
		}
	}
	return true
}

func (q *Queue) GetByStatus(status domain.TaskStatus) []*domain.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*domain.Task, 0)
	for _, t := range q.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// PendingDepth returns the count of PENDING tasks still sitting in a
// priority lane, i.e. true backlog depth rather than total tracked tasks.
func (q *Queue) PendingDepth() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	total := 0
	for _, lane := range q.lanes {
		for _, id := range lane {
			if t, ok := q.tasks[id]; ok && t.Status == domain.TaskPending {
				total++
			}
		}
	}
	return total
}

// Cleanup removes terminal tasks older than olderThan, returning how many
// were purged. Intended to be driven by a periodic sweep.
func (q *Queue) Cleanup(olderThan time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	removed := 0
	for id, t := range q.tasks {
		if !t.Status.Terminal() || t.CompletedAt == nil {
			continue
		}
		if now.Sub(*t.CompletedAt) < olderThan {
			continue
		}
		delete(q.tasks, id)
		removed++
	}
	return removed
}
