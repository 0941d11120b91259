package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
	"github.com/quantumlayer-dev/agentmesh/internal/queue"
)

func TestEnqueueDequeueOrdersByPriority(t *testing.T) {
	q := queue.New(domain.NewFixedClock(time.Now()), 0)

	low, err := q.Enqueue(domain.PartialTask{Type: "t", Priority: domain.PriorityLow})
	require.NoError(t, err)
	high, err := q.Enqueue(domain.PartialTask{Type: "t", Priority: domain.PriorityHigh})
	require.NoError(t, err)

	have := domain.NewStringSet()
	got := q.Dequeue(have)
	require.NotNil(t, got)
	assert.Equal(t, high.ID, got.ID)

	got2 := q.Dequeue(have)
	require.NotNil(t, got2)
	assert.Equal(t, low.ID, got2.ID)
}

func TestDequeueRespectsCapabilities(t *testing.T) {
	q := queue.New(domain.NewFixedClock(time.Now()), 0)
	_, err := q.Enqueue(domain.PartialTask{Type: "t", RequiredCapabilities: []string{"gpu"}})
	require.NoError(t, err)

	assert.Nil(t, q.Dequeue(domain.NewStringSet()))
	assert.NotNil(t, q.Dequeue(domain.NewStringSet("gpu", "other")))
}

func TestDequeueRespectsDependencies(t *testing.T) {
	q := queue.New(domain.NewFixedClock(time.Now()), 0)
	dep, err := q.Enqueue(domain.PartialTask{Type: "parent"})
	require.NoError(t, err)
	child, err := q.Enqueue(domain.PartialTask{Type: "child", Dependencies: []string{dep.ID}})
	require.NoError(t, err)

	have := domain.NewStringSet()
	first := q.Dequeue(have)
	require.NotNil(t, first)
	assert.Equal(t, dep.ID, first.ID)

	assert.Nil(t, q.Dequeue(have), "child must not be eligible before dependency completes")

	require.NoError(t, q.UpdateStatus(dep.ID, domain.TaskAssigned, nil))
	require.NoError(t, q.UpdateStatus(dep.ID, domain.TaskInProgress, nil))
	require.NoError(t, q.UpdateStatus(dep.ID, domain.TaskCompleted, nil))

	second := q.Dequeue(have)
	require.NotNil(t, second)
	assert.Equal(t, child.ID, second.ID)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := queue.New(domain.NewFixedClock(time.Now()), 1)
	_, err := q.Enqueue(domain.PartialTask{Type: "t"})
	require.NoError(t, err)
	_, err = q.Enqueue(domain.PartialTask{Type: "t"})
	require.Error(t, err)
	assert.Equal(t, domain.KindQueueFull, domain.KindOf(err))
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	q := queue.New(domain.NewFixedClock(time.Now()), 0)
	task, err := q.Enqueue(domain.PartialTask{Type: "t"})
	require.NoError(t, err)

	err = q.UpdateStatus(task.ID, domain.TaskCompleted, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

func TestResetForRetryDelaysEligibility(t *testing.T) {
	clock := domain.NewFixedClock(time.Now())
	q := queue.New(clock, 0)
	task, err := q.Enqueue(domain.PartialTask{Type: "t"})
	require.NoError(t, err)
	require.NoError(t, q.UpdateStatus(task.ID, domain.TaskAssigned, nil))
	require.NoError(t, q.UpdateStatus(task.ID, domain.TaskInProgress, nil))
	require.NoError(t, q.UpdateStatus(task.ID, domain.TaskFailed, nil))

	_, err = q.ResetForRetry(task.ID, domain.DefaultRetryPolicy())
	require.NoError(t, err)

	assert.Nil(t, q.Dequeue(domain.NewStringSet()), "must not be eligible before NotBefore elapses")

	clock.Advance(2 * time.Second)
	assert.NotNil(t, q.Dequeue(domain.NewStringSet()))
}

func TestCleanupPurgesOldTerminalTasks(t *testing.T) {
	clock := domain.NewFixedClock(time.Now())
	q := queue.New(clock, 0)
	task, err := q.Enqueue(domain.PartialTask{Type: "t"})
	require.NoError(t, err)
	require.NoError(t, q.UpdateStatus(task.ID, domain.TaskAssigned, nil))
	require.NoError(t, q.UpdateStatus(task.ID, domain.TaskInProgress, nil))
	require.NoError(t, q.UpdateStatus(task.ID, domain.TaskCompleted, nil))

	assert.Equal(t, 0, q.Cleanup(time.Hour))
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, q.Cleanup(time.Hour))
	assert.Equal(t, 0, q.Size())
}
