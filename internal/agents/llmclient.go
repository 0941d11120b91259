// LLMClient is a thin HTTP client against an internal LLM router
// service, used as the generator agent's code-synthesis backend.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantumlayer-dev/agentmesh/internal/domain"
)

// LLMClient calls a router service exposing a single /api/v1/complete
// endpoint, OpenAI-shaped.
type LLMClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewLLMClient(baseURL string) *LLMClient {
	return &LLMClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Complete posts prompt to the router and returns the generated text. It
// respects ctx cancellation so a cancelled task aborts the HTTP call.
func (c *LLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{Prompt: prompt, MaxTokens: 2048, Temperature: 0.2})
	if err != nil {
		return "", domain.New("Complete", domain.KindInternal, "marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/complete", bytes.NewReader(body))
	if err != nil {
		return "", domain.New("Complete", domain.KindInternal, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.New("Complete", domain.KindInternal, "llm router request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.New("Complete", domain.KindInternal, "read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.New("Complete", domain.KindInternal, "llm router returned %d: %s", resp.StatusCode, string(raw))
	}

	var out completionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", domain.New("Complete", domain.KindInternal, "unmarshal response: %v", err)
	}
	if out.Error != "" {
		return "", domain.New("Complete", domain.KindInternal, "llm router error: %s", out.Error)
	}
	return out.Text, nil
}

// GenerateCode asks the router for code matching spec, falling back to a
// deterministic template whenever the router call fails.
func (c *LLMClient) GenerateCode(ctx context.Context, language, spec string) (string, error) {
	prompt := fmt.Sprintf("Generate idiomatic %s code for the following specification:\n%s", language, spec)
	text, err := c.Complete(ctx, prompt)
	if err != nil {
		return fallbackTemplate(language, spec), nil
	}
	return text, nil
}

func fallbackTemplate(language, spec string) string {
	return fmt.Sprintf("// TODO: %s implementation for: %s\n", language, spec)
}
