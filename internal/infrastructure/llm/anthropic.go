package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"TubeArticles/internal/config"
	"TubeArticles/internal/domain"
	"TubeArticles/internal/ports"
)

// AnthropicClient implements ports.ArticleGenerator with the Messages API.
type AnthropicClient struct {
	client       anthropic.Client
	model        string
	systemPrompt string
	maxTokens    int64
	temperature  float64
	configured   bool
}

var _ ports.ArticleGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration. Retries are left to
// the monitor loop so one slow video never blocks a channel for long.
func NewAnthropicClient(cfg config.LLMConfig, httpClient *http.Client) *AnthropicClient {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(cfg.APIKey),
		anthropicoption.WithMaxRetries(0),
	}
	if cfg.AnthropicBaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(cfg.AnthropicBaseURL))
	}
	if httpClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(httpClient))
	}

	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		model:        cfg.Model,
		systemPrompt: systemPrompt(cfg.SystemPrompt),
		maxTokens:    int64(cfg.MaxTokens),
		temperature:  cfg.Temperature,
		configured:   cfg.APIKey != "" && cfg.Model != "",
	}
}

// Generate sends the transcript and parses the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, transcript string) (domain.Article, error) {
	if !c.configured {
		return domain.Article{}, fmt.Errorf("%w: %w: anthropic client misconfigured", domain.ErrGeneration, domain.ErrConfiguration)
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: c.systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(transcript))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return domain.Article{}, statusError(apiErr.StatusCode, http.StatusText(apiErr.StatusCode), apiErr.Error())
		}
		return domain.Article{}, fmt.Errorf("%w: anthropic request: %w", domain.ErrGeneration, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return ParseArticle(sb.String())
}
