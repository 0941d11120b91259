package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

type testerPayload struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type testRunResult struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// NewTesterAgent builds an agent advertising the "testing" capability. It
// stands in for a real test-runner integration: run is the seam a
// production deployment would replace with an actual sandboxed execution
// backend.
func NewTesterAgent(id string, logger *zap.Logger) *BaseAgent {
	cfg := domain.AgentConfig{
		Name:               id,
		Capabilities:       domain.NewStringSet("testing"),
		MaxConcurrentTasks: 2,
		DefaultTimeoutMs:   45000,
		RetryAttempts:      1,
	}
	run := func(ctx context.Context, task *domain.Task) (domain.Payload, error) {
		var in testerPayload
		if err := task.Payload.Decode(&in); err != nil {
			return domain.Payload{}, domain.New("TesterAgent.Execute", domain.KindInternal, "decode payload: %v", err)
		}
		if in.Code == "" {
			return domain.Payload{}, domain.New("TesterAgent.Execute", domain.KindInternal, "no code to test")
		}
		select {
		case <-ctx.Done():
			return domain.Payload{}, ctx.Err()
		default:
		}
		return domain.JSON(testRunResult{Passed: 1, Failed: 0})
	}
	return NewBaseAgent(id, cfg, run, logger)
}
