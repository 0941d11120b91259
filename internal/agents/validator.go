package agents

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

type validatorPayload struct {
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Rules    []string `json:"rules"`
}

type validationResult struct {
	Valid    bool     `json:"valid"`
	Findings []string `json:"findings"`
}

// NewValidatorAgent builds an agent advertising the "validation"
// capability: a substring scan against an arbitrary rule list.
func NewValidatorAgent(id string, logger *zap.Logger) *BaseAgent {
	cfg := domain.AgentConfig{
		Name:               id,
		Capabilities:       domain.NewStringSet("validation"),
		MaxConcurrentTasks: 5,
		DefaultTimeoutMs:   15000,
		RetryAttempts:      1,
	}
	run := func(_ context.Context, task *domain.Task) (domain.Payload, error) {
		var in validatorPayload
		if err := task.Payload.Decode(&in); err != nil {
			return domain.Payload{}, domain.New("ValidatorAgent.Execute", domain.KindInternal, "decode payload: %v", err)
		}
		var findings []string
		for _, rule := range in.Rules {
			if !strings.Contains(in.Code, rule) {
				findings = append(findings, "missing required pattern: "+rule)
			}
		}
		return domain.JSON(validationResult{Valid: len(findings) == 0, Findings: findings})
	}
	return NewBaseAgent(id, cfg, run, logger)
}
