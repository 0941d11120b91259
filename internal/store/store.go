// Package store implements the TaskStore port: durable persistence of
// terminal task results, independent of the in-memory queue.
package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

// TaskStore persists TaskResults outside the orchestrator's in-memory
// state, so completed work survives a restart even though the live queue
// does not.
type TaskStore interface {
	SaveResult(ctx context.Context, result domain.TaskResult) error
	GetResult(ctx context.Context, taskID string) (*domain.TaskResult, error)
	Close() error
}

// MemoryTaskStore is the default backing: an in-process map, suitable for
// single-node deployments and tests. Agents report outcomes from their
// own goroutines, so access is mutex-guarded.
type MemoryTaskStore struct {
	mu      sync.Mutex
	results map[string]domain.TaskResult
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{results: make(map[string]domain.TaskResult)}
}

func (m *MemoryTaskStore) SaveResult(_ context.Context, result domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.TaskID] = result
	return nil
}

func (m *MemoryTaskStore) GetResult(_ context.Context, taskID string) (*domain.TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[taskID]
	if !ok {
		return nil, domain.New("GetResult", domain.KindNotFound, "no result for task %s", taskID)
	}
	return &r, nil
}

func (m *MemoryTaskStore) Close() error { return nil }

// RedisTaskStore is the optional durable backing, keyed "task:result:{id}".
type RedisTaskStore struct {
	client *redis.Client
	prefix string
}

func NewRedisTaskStore(client *redis.Client) *RedisTaskStore {
	return &RedisTaskStore{client: client, prefix: "task:result:"}
}

func (s *RedisTaskStore) SaveResult(ctx context.Context, result domain.TaskResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return domain.New("SaveResult", domain.KindInternal, "marshal task result: %v", err)
	}
	if err := s.client.Set(ctx, s.prefix+result.TaskID, b, 0).Err(); err != nil {
		return domain.New("SaveResult", domain.KindInternal, "redis set: %v", err)
	}
	return nil
}

func (s *RedisTaskStore) GetResult(ctx context.Context, taskID string) (*domain.TaskResult, error) {
	b, err := s.client.Get(ctx, s.prefix+taskID).Bytes()
	if err == redis.Nil {
		return nil, domain.New("GetResult", domain.KindNotFound, "no result for task %s", taskID)
	}
	if err != nil {
		return nil, domain.New("GetResult", domain.KindInternal, "redis get: %v", err)
	}
	var result domain.TaskResult
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, domain.New("GetResult", domain.KindInternal, "unmarshal task result: %v", err)
	}
	return &result, nil
}

func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}
