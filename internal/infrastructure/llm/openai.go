package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"TubeArticles/internal/config"
	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// OpenAIClient implements ports.ArticleGenerator against OpenAI-compatible
// chat completion APIs (Mistral by default).
type OpenAIClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	maxTokens    int
	temperature  float64
	httpClient   *http.Client
}

var _ ports.ArticleGenerator = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.LLMConfig, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAIClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: systemPrompt(cfg.SystemPrompt),
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		httpClient:   httpClient,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the transcript as a user message and parses the reply.
func (c *OpenAIClient) Generate(ctx context.Context, transcript string) (domain.Article, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.Article{}, fmt.Errorf("%w: %w: llm client misconfigured", domain.ErrGeneration, domain.ErrConfiguration)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt},
			{Role: "user", Content: userPrompt(transcript)},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return domain.Article{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Article{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Article{}, fmt.Errorf("%w: send chat request: %w", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Article{}, statusError(resp.StatusCode, resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Article{}, fmt.Errorf("%w: decode chat response: %w", domain.ErrGeneration, err)
	}
	if len(decoded.Choices) == 0 {
		return domain.Article{}, fmt.Errorf("%w: chat response has no choices", domain.ErrGeneration)
	}

	return ParseArticle(decoded.Choices[0].Message.Content)
}

func statusError(code int, status, detail string) error {
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", domain.ErrGeneration, domain.ErrRateLimited, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", domain.ErrGeneration, domain.ErrUnauthorized, detail)
	default:
		return fmt.Errorf("%w: llm error %s: %s", domain.ErrGeneration, status, detail)
	}
}
