package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *LLMConfig
		expectError bool
	}{
		{
			name:        "OpenAI config",
			cfg:         &LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", MaxTokens: 200, Temperature: 0.3},
			expectError: false,
		},
		{
			name:        "Gemini without key",
			cfg:         &LLMConfig{Provider: "gemini", Model: "gemini-2.5-flash"},
			expectError: true,
		},
		{
			name:        "Unsupported provider",
			cfg:         &LLMConfig{Provider: "unsupported"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMService(context.Background(), tt.cfg)
			assert.Equal(t, tt.expectError, err != nil, "error = %v", err)
		})
	}
}

func TestOpenAILLMService_Chat(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	baseURL := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "You spent 100.00 on pumps."},
				"finish_reason": "stop",
			}},
		})
	})

	svc, err := NewLLMService(context.Background(), &LLMConfig{
		Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", BaseURL: baseURL, MaxTokens: 512, Temperature: 0.7,
	})
	require.NoError(t, err)

	answer, err := svc.Chat(context.Background(),
		[]Message{SystemPrompt("be brief"), UserMessage("how much on pumps?")},
		WithMaxTokens(200), WithTemperature(0.3),
	)
	require.NoError(t, err)
	assert.Equal(t, "You spent 100.00 on pumps.", answer)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAILLMService_EmptyChoices(t *testing.T) {
	baseURL := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "cmpl-1", "choices": []any{}})
	})

	svc, err := NewLLMService(context.Background(), &LLMConfig{Provider: "openai", Model: "m", APIKey: "k", BaseURL: baseURL})
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), []Message{UserMessage("hi")})
	assert.Error(t, err)
}
