package agents_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantumlayer-dev/agentmesh/internal/agents"
	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

func TestValidatorAgentFlagsMissingPattern(t *testing.T) {
	a := agents.NewValidatorAgent("validator-1", zaptest.NewLogger(t))
	require.NoError(t, a.Start(context.Background(), nil))
	defer a.Stop(context.Background())

	payload, err := domain.JSON(map[string]interface{}{
		"code": "package main\nfunc main() {}",
		"rules": []string{"import"},
	})
	require.NoError(t, err)

	task := &domain.Task{ID: "t1", RequiredCapabilities: domain.NewStringSet("validation"), Payload: payload}
	require.True(t, a.AssignTask(context.Background(), task))

	// Status-change events share the channel with task events; skip them.
	for {
		select {
		case ev := <-a.Events():
			if ev.Name == domain.EventAgentStatusChanged {
				continue
			}
			require.Equal(t, domain.EventTaskStarted, ev.Name)
		case <-time.After(time.Second):
			t.Fatal("expected task.started event")
		}
		break
	}

	for {
		select {
		case ev := <-a.Events():
			if ev.Name == domain.EventAgentStatusChanged {
				continue
			}
			require.Equal(t, domain.EventTaskCompleted, ev.Name)
			var result struct {
				Valid    bool     `json:"valid"`
				Findings []string `json:"findings"`
			}
			require.NoError(t, ev.Result.Decode(&result))
			assert.False(t, result.Valid)
			assert.Contains(t, result.Findings[0], "import")
		case <-time.After(time.Second):
			t.Fatal("expected task.completed event")
		}
		break
	}
}

func TestBaseAgentRejectsTaskBeyondCapacity(t *testing.T) {
	a := agents.NewTesterAgent("tester-1", zaptest.NewLogger(t))
	require.NoError(t, a.Start(context.Background(), nil))
	defer a.Stop(context.Background())

	payload, err := domain.JSON(map[string]string{"code": "x"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		task := &domain.Task{ID: "slow", RequiredCapabilities: domain.NewStringSet("testing"), Payload: payload}
		task.ID = task.ID + string(rune('0'+i))
		require.True(t, a.AssignTask(context.Background(), task))
	}

	overflow := &domain.Task{ID: "overflow", RequiredCapabilities: domain.NewStringSet("testing"), Payload: payload}
	assert.False(t, a.AssignTask(context.Background(), overflow))
}

func TestBaseAgentRejectsIncapableTask(t *testing.T) {
	a := agents.NewTesterAgent("tester-1", zaptest.NewLogger(t))
	require.NoError(t, a.Start(context.Background(), nil))
	defer a.Stop(context.Background())

	task := &domain.Task{ID: "t1", RequiredCapabilities: domain.NewStringSet("gpu")}
	assert.False(t, a.AssignTask(context.Background(), task))
}
