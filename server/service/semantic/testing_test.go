package semantic

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hrygo/nfintake/plugin/ai"
	"github.com/hrygo/nfintake/store"
)

// keywordEmbedder maps texts onto three axes: pumps, furniture and everything else.
type keywordEmbedder struct {
	mu         sync.Mutex
	calls      int
	batchCalls int
	texts      []string
	err        error
}

func (e *keywordEmbedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "pump"):
		return []float32{1, 0.1, 0}
	case strings.Contains(text, "chair"):
		return []float32{0.1, 1, 0}
	default:
		return []float32{0, 0.1, 1}
	}
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.texts = append(e.texts, text)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *keywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batchCalls++
	e.texts = append(e.texts, texts...)
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.vector(text)
	}
	return vectors, nil
}

func (*keywordEmbedder) Dimensions() int { return 3 }

type fakeLLM struct {
	answer   string
	err      error
	calls    int
	messages []ai.Message
}

func (l *fakeLLM) Chat(_ context.Context, messages []ai.Message, _ ...ai.ChatOption) (string, error) {
	l.calls++
	l.messages = messages
	return l.answer, l.err
}

// memoryStore is an in-memory semantic Store.
type memoryStore struct {
	mu         sync.Mutex
	movements  []*store.Movement
	vectors    map[int32][]float32
	dimensions int
	ensured    int
	writes     int

	ensureErr error
	listErr   error
	writeErr  error
	searchErr error
	results   []*store.MovementWithScore
}

func newMemoryStore(movements ...*store.Movement) *memoryStore {
	return &memoryStore{movements: movements, vectors: map[int32][]float32{}}
}

func (s *memoryStore) EnsureVectorSchema(_ context.Context, dimensions int) error {
	s.ensured++
	if s.ensureErr != nil {
		return s.ensureErr
	}
	s.dimensions = dimensions
	return nil
}

func (s *memoryStore) ListMovementsWithoutEmbedding(_ context.Context, limit int) ([]*store.Movement, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []*store.Movement{}
	for _, m := range s.movements {
		if _, ok := s.vectors[m.ID]; !ok && len(list) < limit {
			list = append(list, m)
		}
	}
	return list, nil
}

func (s *memoryStore) UpdateMovementEmbedding(_ context.Context, id int32, embedding []float32) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[id] = embedding
	s.writes++
	return nil
}

func (s *memoryStore) SearchMovementsByVector(_ context.Context, _ *store.MovementVectorSearch) ([]*store.MovementWithScore, error) {
	return s.results, s.searchErr
}

func newTestingMovement(id int32, number, description, amount string) *store.Movement {
	return &store.Movement{
		ID:            id,
		InvoiceNumber: number,
		IssueDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Description:   description,
		TotalAmount:   decimal.RequireFromString(amount),
	}
}

var errProvider = errors.New("provider unavailable")
