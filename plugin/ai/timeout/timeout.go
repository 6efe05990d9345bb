// Package timeout defines centralized timeout constants for AI operations.
package timeout

import "time"

const (
	// ExtractionTimeout bounds a single document extraction call.
	ExtractionTimeout = 2 * time.Minute

	// EmbeddingTimeout is the timeout for embedding generation.
	EmbeddingTimeout = 30 * time.Second

	// GenerationTimeout bounds a single text generation call.
	GenerationTimeout = 60 * time.Second

	// MaxAttempts is the number of tries for a provider call, the first included.
	MaxAttempts = 3

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
