// Package groq implements ports.Completer against any OpenAI-compatible
// chat completion endpoint. Groq is the default.
package groq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"meeting-copilot/internal/core/domain"
	"meeting-copilot/internal/core/ports"
	"meeting-copilot/internal/logging"
	"meeting-copilot/internal/observability"
)

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
}

type Completer struct {
	client openai.Client
	model  string
	tracer *observability.Tracer
	logger logging.Logger
}

var _ ports.Completer = (*Completer)(nil)

// NewCompleter builds a client with retries disabled; a failed cycle is
// skipped rather than retried.
func NewCompleter(cfg Config, logger logging.Logger) *Completer {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return &Completer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		tracer: observability.NewTracer(),
		logger: logger.With(logging.F("component", "completer")),
	}
}

func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (out string, err error) {
	ctx, span := c.tracer.StartCompletionSpan(ctx, req.Operation, c.model)
	defer func() { observability.EndSpan(span, err) }()

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCompletionFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", domain.ErrCompletionFailure)
	}

	c.logger.Debug("Completion received",
		logging.F("operation", req.Operation),
		logging.F("finish_reason", resp.Choices[0].FinishReason),
		logging.F("total_tokens", resp.Usage.TotalTokens))

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
