package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/nfintake/plugin/ai/timeout"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// ChatOptions overrides generation parameters for a single call.
type ChatOptions struct {
	MaxTokens   int
	Temperature float32
}

// ChatOption mutates ChatOptions.
type ChatOption func(*ChatOptions)

// WithMaxTokens caps the generated tokens.
func WithMaxTokens(n int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) ChatOption {
	return func(o *ChatOptions) { o.Temperature = t }
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs synchronous chat.
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error)
}

// NewLLMService creates a new LLMService.
func NewLLMService(ctx context.Context, cfg *LLMConfig) (LLMService, error) {
	defaults := ChatOptions{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}

	switch cfg.Provider {
	case ProviderOpenAI:
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return &openAILLMService{
			client:   openai.NewClientWithConfig(clientConfig),
			model:    cfg.Model,
			defaults: defaults,
		}, nil

	case ProviderGemini:
		client, err := newGeminiClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return &geminiLLMService{
			client:   client,
			model:    cfg.Model,
			defaults: defaults,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func resolveOptions(defaults ChatOptions, opts []ChatOption) ChatOptions {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type openAILLMService struct {
	client   *openai.Client
	model    string
	defaults ChatOptions
}

func (s *openAILLMService) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	o := resolveOptions(s.defaults, opts)

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    convertMessages(messages),
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	}

	var resp openai.ChatCompletionResponse
	err := withRetry(ctx, "openai.chat", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout.GenerationTimeout)
		defer cancel()

		var err error
		resp, err = s.client.CreateChatCompletion(callCtx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	list := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		list[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return list
}

type geminiLLMService struct {
	client   *genai.Client
	model    string
	defaults ChatOptions
}

func (s *geminiLLMService) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	o := resolveOptions(s.defaults, opts)

	// GenerativeModel carries per-call settings, so each call gets its own handle.
	model := s.client.GenerativeModel(s.model)
	if o.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(o.MaxTokens))
	}
	model.SetTemperature(o.Temperature)

	var system []string
	var parts []genai.Part
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		parts = append(parts, genai.Text(m.Content))
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(parts) == 0 {
		return "", errors.New("no user content to send")
	}

	var text string
	err := withRetry(ctx, "gemini.generate", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout.GenerationTimeout)
		defer cancel()

		resp, err := model.GenerateContent(callCtx, parts...)
		if err != nil {
			return err
		}
		text, err = responseText(resp)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}
	return text, nil
}

// SystemPrompt builds a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
