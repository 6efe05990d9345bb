package ai

import (
	"errors"

	"github.com/hrygo/nfintake/internal/profile"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	Embedding  EmbeddingConfig
	LLM        LLMConfig
	Extraction ExtractionConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // gemini, openai
	Model      string // text-embedding-004
	Dimensions int    // 768
	APIKey     string
	BaseURL    string
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // gemini, openai
	Model       string // gemini-2.5-flash
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 200
	Temperature float32 // default: 0.3
}

// ExtractionConfig configures the document extraction model. Extraction always runs on
// Gemini because it accepts PDF bytes inline.
type ExtractionConfig struct {
	Model  string
	APIKey string
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}

	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.AIEmbeddingProvider,
		Model:      p.AIEmbeddingModel,
		Dimensions: p.AIEmbeddingDimensions,
	}
	switch p.AIEmbeddingProvider {
	case ProviderGemini:
		cfg.Embedding.APIKey = p.AIGeminiAPIKey
	case ProviderOpenAI:
		cfg.Embedding.APIKey = p.AIOpenAIAPIKey
		cfg.Embedding.BaseURL = p.AIOpenAIBaseURL
	}

	cfg.LLM = LLMConfig{
		Provider:    p.AILLMProvider,
		Model:       p.AILLMModel,
		MaxTokens:   200,
		Temperature: 0.3,
	}
	switch p.AILLMProvider {
	case ProviderGemini:
		cfg.LLM.APIKey = p.AIGeminiAPIKey
	case ProviderOpenAI:
		cfg.LLM.APIKey = p.AIOpenAIAPIKey
		cfg.LLM.BaseURL = p.AIOpenAIBaseURL
	}

	cfg.Extraction = ExtractionConfig{
		Model:  p.AIExtractionModel,
		APIKey: p.AIGeminiAPIKey,
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Embedding.Provider == "" {
		return errors.New("embedding provider is required")
	}
	if c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	return nil
}

// HasExtraction reports whether document extraction can run.
func (c *Config) HasExtraction() bool {
	return c.Enabled && c.Extraction.APIKey != ""
}
