package agents

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

// generatorPayload is the expected shape of a "code.generate" task's
// payload.
type generatorPayload struct {
	Language string `json:"language"`
	Spec     string `json:"spec"`
}

// NewGeneratorAgent builds an agent advertising the "code-gen" capability,
// delegating to llm for synthesis.
func NewGeneratorAgent(id string, llm *LLMClient, logger *zap.Logger) *BaseAgent {
	cfg := domain.AgentConfig{
		Name:               id,
		Capabilities:       domain.NewStringSet("code-gen"),
		MaxConcurrentTasks: 3,
		DefaultTimeoutMs:   60000,
		RetryAttempts:      2,
	}
	run := func(ctx context.Context, task *domain.Task) (domain.Payload, error) {
		var in generatorPayload
		if err := task.Payload.Decode(&in); err != nil {
			return domain.Payload{}, domain.New("GeneratorAgent.Execute", domain.KindInternal, "decode payload: %v", err)
		}
		code, err := llm.GenerateCode(ctx, in.Language, in.Spec)
		if err != nil {
			return domain.Payload{}, err
		}
		return domain.JSON(map[string]string{"code": code, "language": in.Language})
	}
	return NewBaseAgent(id, cfg, run, logger)
}
