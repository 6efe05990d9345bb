package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hrygo/nfintake/plugin/ai"
)

// EmbeddingCache memoizes embeddings by text. Repeated questions and identical
// movement descriptions skip the provider call.
type EmbeddingCache struct {
	inner ai.EmbeddingService
	lru   *LRUCache[[]float32]
}

var _ ai.EmbeddingService = (*EmbeddingCache)(nil)

// NewEmbeddingCache wraps inner with an LRU cache.
func NewEmbeddingCache(inner ai.EmbeddingService, capacity int, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{
		inner: inner,
		lru:   NewLRUCache[[]float32](capacity, ttl),
	}
}

func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Set(key, v)
	return v, nil
}

// EmbedBatch only sends the texts that miss the cache.
func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.lru.Get(cacheKey(text)); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	fetched, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range fetched {
		vectors[missingIdx[j]] = v
		c.lru.Set(cacheKey(missing[j]), v)
	}
	return vectors, nil
}

func (c *EmbeddingCache) Dimensions() int {
	return c.inner.Dimensions()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
