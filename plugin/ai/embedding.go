package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/nfintake/plugin/ai/timeout"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// NewEmbeddingService creates a new EmbeddingService for the configured provider.
func NewEmbeddingService(ctx context.Context, cfg *EmbeddingConfig) (EmbeddingService, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions: %d", cfg.Dimensions)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return &openAIEmbeddingService{
			client:     openai.NewClientWithConfig(clientConfig),
			model:      cfg.Model,
			dimensions: cfg.Dimensions,
		}, nil

	case ProviderGemini:
		client, err := newGeminiClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, err
		}
		return &geminiEmbeddingService{
			model:      client.EmbeddingModel(cfg.Model),
			dimensions: cfg.Dimensions,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

type openAIEmbeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
}

func (s *openAIEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *openAIEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	var resp openai.EmbeddingResponse
	err := withRetry(ctx, "openai.embeddings", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
		defer cancel()

		var err error
		resp, err = s.client.CreateEmbeddings(callCtx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d texts", len(resp.Data), len(texts))
	}

	// Data carries the input index; the API does not promise order.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	if err := checkDimensions(vectors, s.dimensions); err != nil {
		return nil, err
	}

	return vectors, nil
}

func (s *openAIEmbeddingService) Dimensions() int {
	return s.dimensions
}

type geminiEmbeddingService struct {
	model      *genai.EmbeddingModel
	dimensions int
}

func (s *geminiEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	var res *genai.EmbedContentResponse
	err := withRetry(ctx, "gemini.embed", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
		defer cancel()

		var err error
		res, err = s.model.EmbedContent(callCtx, genai.Text(text))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed content failed: %w", err)
	}
	if res == nil || res.Embedding == nil {
		return nil, errors.New("empty embedding response")
	}

	vector := res.Embedding.Values
	if err := checkDimensions([][]float32{vector}, s.dimensions); err != nil {
		return nil, err
	}
	return vector, nil
}

func (s *geminiEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	batch := s.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	var res *genai.BatchEmbedContentsResponse
	err := withRetry(ctx, "gemini.batch_embed", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout.EmbeddingTimeout)
		defer cancel()

		var err error
		res, err = s.model.BatchEmbedContents(callCtx, batch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("batch embed contents failed: %w", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, errors.New("embedding response does not match input")
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, embedding := range res.Embeddings {
		vectors[i] = embedding.Values
	}
	if err := checkDimensions(vectors, s.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *geminiEmbeddingService) Dimensions() int {
	return s.dimensions
}

func checkDimensions(vectors [][]float32, dimensions int) error {
	for i, v := range vectors {
		if len(v) != dimensions {
			return fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), dimensions)
		}
	}
	return nil
}
