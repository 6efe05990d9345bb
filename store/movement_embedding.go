package store

import "context"

// MovementWithScore represents a vector search result with similarity score.
type MovementWithScore struct {
	Movement *Movement
	// Similarity is the cosine similarity (1 - cosine distance), higher is more similar.
	Similarity float64
}

// MovementVectorSearch represents the options for vector search.
type MovementVectorSearch struct {
	Vector []float32
	Limit  int // default 3
}

// EnsureVectorSchema provisions the embedding column and similarity index if they are absent.
// Existing vectors are never dropped.
func (s *Store) EnsureVectorSchema(ctx context.Context, dimensions int) error {
	return s.driver.EnsureVectorSchema(ctx, dimensions)
}

// ListMovementsWithoutEmbedding lists up to limit movements whose embedding is absent.
func (s *Store) ListMovementsWithoutEmbedding(ctx context.Context, limit int) ([]*Movement, error) {
	return s.driver.ListMovementsWithoutEmbedding(ctx, limit)
}

// UpdateMovementEmbedding writes the embedding vector of a movement description.
func (s *Store) UpdateMovementEmbedding(ctx context.Context, id int32, embedding []float32) error {
	return s.driver.UpdateMovementEmbedding(ctx, id, embedding)
}

// SearchMovementsByVector returns the nearest movements ordered by descending similarity.
func (s *Store) SearchMovementsByVector(ctx context.Context, opts *MovementVectorSearch) ([]*MovementWithScore, error) {
	return s.driver.SearchMovementsByVector(ctx, opts)
}
