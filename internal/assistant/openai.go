package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultModel     = openai.GPT4oMini
	defaultTimeout   = 20 * time.Second
	defaultMaxTokens = 400
	systemPrompt     = "You are the assistant on a personal portfolio website. Answer briefly and politely about the site owner's projects, services, pricing, and availability. Point visitors to the contact form for anything you cannot answer."
)

var errMissingAPIKey = errors.New("assistant: api key is required")

// OpenAIConfig configures the chat completion responder.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
	Fallback  Responder
	Logger    *zap.Logger
}

// OpenAIResponder answers through the chat completion API and degrades to the fallback responder on failure.
type OpenAIResponder struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
	fallback  Responder
	logger    *zap.Logger
}

func NewOpenAIResponder(cfg OpenAIConfig) (*OpenAIResponder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = NewCannedResponder()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIResponder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		timeout:   timeout,
		maxTokens: maxTokens,
		fallback:  fallback,
		logger:    logger,
	}, nil
}

func (r *OpenAIResponder) Reply(ctx context.Context, message string) (Reply, error) {
	normalized, err := normalizeMessage(message)
	if err != nil {
		return Reply{}, err
	}
	text, err := r.complete(ctx, normalized)
	if err != nil {
		r.logger.Warn("chat completion failed, using canned reply", zap.String("model", r.model), zap.Error(err))
		return r.fallback.Reply(ctx, normalized)
	}
	return Reply{Text: text, Source: SourceModel}, nil
}

func (r *OpenAIResponder) complete(ctx context.Context, message string) (string, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	response, err := r.client.CreateChatCompletion(ctxWithTimeout, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		MaxTokens:   r.maxTokens,
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	text := strings.TrimSpace(response.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("chat completion returned empty content")
	}
	return text, nil
}

// NewResponder selects the model-backed responder when an API key is configured.
func NewResponder(cfg OpenAIConfig) Responder {
	canned := NewCannedResponder()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return canned
	}
	cfg.Fallback = canned
	responder, err := NewOpenAIResponder(cfg)
	if err != nil {
		return canned
	}
	return responder
}
