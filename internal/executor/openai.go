package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"flowpilot/internal/domain"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Pricing is the per-token cost model. Rates are configuration, never
// hardcoded into the engine: cost = prompt tokens * PromptTokenPrice +
// completion tokens * CompletionTokenPrice.
type Pricing struct {
	PromptTokenPrice     float64
	CompletionTokenPrice float64
}

func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*p.PromptTokenPrice + float64(completionTokens)*p.CompletionTokenPrice
}

// Config for the OpenAI-backed executor.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Pricing     Pricing
	Timeout     time.Duration
}

// OpenAIExecutor calls the chat completions endpoint. It implements
// ports.AIExecutor; every transport or provider failure comes back as
// *domain.ExecutorError so the engine can treat them uniformly.
type OpenAIExecutor struct {
	cfg    Config
	client *http.Client
}

func NewOpenAIExecutor(cfg Config) *OpenAIExecutor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIExecutor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (e *OpenAIExecutor) Execute(ctx context.Context, systemPrompt, userPrompt string) (*domain.AIResult, error) {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	body, err := json.Marshal(chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		return nil, &domain.ExecutorError{Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ExecutorError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &domain.ExecutorError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ExecutorError{Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ExecutorError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("openai api error: %s", string(raw)),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &domain.ExecutorError{Status: resp.StatusCode, Message: err.Error()}
	}
	if len(parsed.Choices) == 0 {
		return nil, &domain.ExecutorError{Status: resp.StatusCode, Message: "no completion choices returned"}
	}

	usage := parsed.Usage
	return &domain.AIResult{
		Content:          parsed.Choices[0].Message.Content,
		Cost:             e.cfg.Pricing.Cost(usage.PromptTokens, usage.CompletionTokens),
		TotalTokens:      usage.TotalTokens,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Model:            e.cfg.Model,
	}, nil
}
