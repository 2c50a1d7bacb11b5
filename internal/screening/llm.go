package screening

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// LLMConfig points the classifier at any OpenAI-compatible chat endpoint,
// e.g. a local Ollama at http://localhost:11434/v1.
type LLMConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	SummaryWords int
	// MaxRetries is the SDK's own retry budget per classification.
	MaxRetries int
}

// LLMClassifier classifies transcripts with a chat completion.
type LLMClassifier struct {
	client *openai.Client
	cfg    LLMConfig
}

func NewLLMClassifier(cfg LLMConfig) *LLMClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SummaryWords <= 0 {
		cfg.SummaryWords = DefaultSummaryWords
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	cl := openai.NewClient(opts...)
	return &LLMClassifier{client: &cl, cfg: cfg}
}

func (c *LLMClassifier) Classify(ctx context.Context, transcript string) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Result{}, ErrEmptyTranscript
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(BuildPrompt(transcript, c.cfg.SummaryWords)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return Result{}, fmt.Errorf("screening: create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("screening: completion returned no choices")
	}
	return ParseResponse(resp.Choices[0].Message.Content, c.cfg.SummaryWords), nil
}
